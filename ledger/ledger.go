package ledger

import (
	"github.com/rs/zerolog"
	"github.com/tolelom/nanoledger/crypto"
	"github.com/tolelom/nanoledger/internal/logging"
)

// Config carries the values §6.4 says must be injectable rather than
// hardcoded: the burn account, the epoch signer, and the per-epoch link
// sentinels that mark an epoch-upgrade state block.
type Config struct {
	BurnAccount crypto.PublicKey
	EpochSigner crypto.PublicKey
	EpochLinks  map[Epoch]crypto.Hash
	// Now returns the current unix timestamp; injectable for deterministic
	// tests (§8 testable properties rely on controlling "recent origin").
	Now func() uint64
}

// Ledger is the C3 ledger processor: Process validates and commits blocks,
// Rollback undoes them down to (but never past) confirmation height.
type Ledger struct {
	Store      *Store
	RepWeights *RepWeightCache
	Work       WorkVerifier
	Config     Config
	log        zerolog.Logger
}

// New builds a Ledger over an already-opened Store. Callers should call
// Store.EnsureSchema first.
func New(store *Store, work WorkVerifier, cfg Config) (*Ledger, error) {
	infos, err := store.LoadAllAccountInfos()
	if err != nil {
		return nil, err
	}
	return &Ledger{
		Store:      store,
		RepWeights: NewRepWeightCache(infos),
		Work:       work,
		Config:     cfg,
		log:        logging.Component("ledger"),
	}, nil
}

// epochLinkFor returns the link sentinel for an epoch, or the zero hash
// if unconfigured (in which case no block can ever classify as that epoch's
// transition, §4.3 Subtype determination requires epochLink.IsZero() ==
// false to match).
func (l *Ledger) epochLinkFor(e Epoch) crypto.Hash {
	if l.Config.EpochLinks == nil {
		return crypto.ZeroHash
	}
	return l.Config.EpochLinks[e]
}

// isBurnAccount reports whether acc is the all-zero configured burn account
// (§4.3 rule 3).
func (l *Ledger) isBurnAccount(acc crypto.PublicKey) bool {
	if len(l.Config.BurnAccount) == 0 {
		return acc.AsHash().IsZero()
	}
	return string(acc) == string(l.Config.BurnAccount)
}

// IsAnyEpochLink reports whether h matches any configured epoch's link
// sentinel, regardless of which epoch. Used by the block processor's batch
// signature verifier (§4.4) to decide whether a candidate state block might
// be epoch-signed before Process runs the authoritative check.
func (l *Ledger) IsAnyEpochLink(h crypto.Hash) bool {
	for _, link := range l.Config.EpochLinks {
		if link == h {
			return true
		}
	}
	return false
}
