// Package config loads and validates node configuration: storage location,
// the consensus knobs §6.4 requires to be injectable rather than hardcoded
// (quorum fraction, election timing, epoch signer/links, the burn account,
// bootstrap representative weights), and the local representative keystore
// this node votes with.
package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/ledger"
)

// EpochLink pairs an epoch number with the link sentinel that marks a state
// block as that epoch's upgrade transition (§3.2, §4.3 rule 11).
type EpochLink struct {
	Epoch uint8  `json:"epoch"`
	Link  string `json:"link"` // hex-encoded 32-byte sentinel
}

// BootstrapWeight seeds the representative-weight cache before any ledger
// data is replayed, for a node joining a chain that already has history.
type BootstrapWeight struct {
	Representative string `json:"representative"` // hex pubkey
	Weight         string `json:"weight"`          // decimal amount
}

// Config holds all node configuration.
type Config struct {
	NodeID   string `json:"node_id"`
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"` // zerolog level name, e.g. "info", "debug"

	Genesis GenesisAccount `json:"genesis"`

	BurnAccount      string            `json:"burn_account"` // hex pubkey, defaults to all-zero
	EpochSigner      string            `json:"epoch_signer"` // hex pubkey authorized to sign epoch blocks
	EpochLinks       []EpochLink       `json:"epoch_links"`
	BootstrapWeights []BootstrapWeight `json:"bootstrap_weights,omitempty"`

	// RepKeystoreDir holds one or more password-protected "*.key" files
	// (repkeystore.LoadAll), one per local representative this node votes
	// with. Empty means the node runs non-voting.
	RepKeystoreDir string `json:"rep_keystore_dir,omitempty"`

	QuorumFraction       float64       `json:"quorum_fraction"`        // fraction of online weight needed to confirm, e.g. 0.67
	PrincipalRepFraction float64       `json:"principal_rep_fraction"` // fraction of online weight to count as principal, e.g. 0.001
	ElectionTTL          time.Duration `json:"election_ttl"`           // how long an election stays active without confirmation
	VoteGeneratorDelay   time.Duration `json:"vote_generator_delay"`   // batching window before a local rep signs a vote
	RequestInterval      time.Duration `json:"request_interval"`       // active engine's confirm_req scheduling tick
	RequestBatchSize     int           `json:"request_batch_size"`     // qualified roots per RequestConfirmations call
	MaxQueuedRequests    int           `json:"max_queued_requests"`    // aggregator per-endpoint queue bound (§ ambient backpressure)
	ConfirmReqBatchSize  int           `json:"confirm_req_batch_size"` // hashes per confirm_req, capped at wire.MaxConfirmReqPairs
	MaxElections         int           `json:"max_elections"`         // active engine capacity before low-priority eviction
	BlockQueueSize       int           `json:"block_queue_size"`      // block processor's combined main+forced queue bound
	SigVerifyWorkers     int           `json:"sig_verify_workers"`    // block processor's batch signature verification pool
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:               "node0",
		DataDir:              "./data",
		LogLevel:             "info",
		BurnAccount:          "", // empty means all-zero
		QuorumFraction:       0.67,
		PrincipalRepFraction: 0.001,
		ElectionTTL:          5 * time.Minute,
		VoteGeneratorDelay:   500 * time.Millisecond,
		RequestInterval:      time.Second,
		RequestBatchSize:     7,
		MaxQueuedRequests:    1024,
		ConfirmReqBatchSize:  12,
		MaxElections:         5000,
		BlockQueueSize:       4096,
		SigVerifyWorkers:     4,
	}
}

// Load reads a JSON config file from path and validates required fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Validate checks that all required fields are present and well-formed.
func (c *Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.BurnAccount != "" {
		if _, err := crypto.PubKeyFromHex(c.BurnAccount); err != nil {
			return fmt.Errorf("burn_account: %w", err)
		}
	}
	if c.EpochSigner != "" {
		if _, err := crypto.PubKeyFromHex(c.EpochSigner); err != nil {
			return fmt.Errorf("epoch_signer: %w", err)
		}
	}
	for i, el := range c.EpochLinks {
		if _, err := crypto.HashFromHex(el.Link); err != nil {
			return fmt.Errorf("epoch_links[%d].link: %w", i, err)
		}
	}
	for i, bw := range c.BootstrapWeights {
		if _, err := crypto.PubKeyFromHex(bw.Representative); err != nil {
			return fmt.Errorf("bootstrap_weights[%d].representative: %w", i, err)
		}
	}
	if c.QuorumFraction <= 0 || c.QuorumFraction > 1 {
		return fmt.Errorf("quorum_fraction must be in (0, 1], got %v", c.QuorumFraction)
	}
	if c.PrincipalRepFraction <= 0 || c.PrincipalRepFraction > 1 {
		return fmt.Errorf("principal_rep_fraction must be in (0, 1], got %v", c.PrincipalRepFraction)
	}
	if c.ConfirmReqBatchSize <= 0 || c.ConfirmReqBatchSize > 12 {
		return fmt.Errorf("confirm_req_batch_size must be 1-12, got %d", c.ConfirmReqBatchSize)
	}
	return nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// DecodeEpochLinks converts the config's hex epoch links into the map shape
// ledger.Config expects.
func DecodeEpochLinks(links []EpochLink) (map[ledger.Epoch]crypto.Hash, error) {
	out := make(map[ledger.Epoch]crypto.Hash, len(links))
	for _, el := range links {
		h, err := crypto.HashFromHex(el.Link)
		if err != nil {
			return nil, err
		}
		out[ledger.Epoch(el.Epoch)] = h
	}
	return out, nil
}

// DecodedBootstrapWeight is one bootstrap_weights entry with its hex/decimal
// fields parsed, ready for RepWeightCache.SeedWeight.
type DecodedBootstrapWeight struct {
	Representative crypto.PublicKey
	Weight         *big.Int
}

// DecodeBootstrapWeights parses the config's hex/decimal bootstrap weights.
// Declared here rather than in ledger to keep hex and decimal parsing, a
// config-layer concern, out of the ledger package.
func DecodeBootstrapWeights(weights []BootstrapWeight) ([]DecodedBootstrapWeight, error) {
	out := make([]DecodedBootstrapWeight, 0, len(weights))
	for i, bw := range weights {
		pub, err := crypto.PubKeyFromHex(bw.Representative)
		if err != nil {
			return nil, fmt.Errorf("bootstrap_weights[%d].representative: %w", i, err)
		}
		amount, ok := new(big.Int).SetString(bw.Weight, 10)
		if !ok {
			return nil, fmt.Errorf("bootstrap_weights[%d].weight: invalid decimal amount %q", i, bw.Weight)
		}
		out = append(out, DecodedBootstrapWeight{Representative: pub, Weight: amount})
	}
	return out, nil
}
