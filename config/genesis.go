package config

import (
	"fmt"
	"math/big"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
)

// GenesisAccount describes the chain's single hardcoded funding account: an
// opening state block signed by PrivateKey that starts the whole supply on
// one representative (mirrors how a Nano-style chain bootstraps, §3.2).
type GenesisAccount struct {
	PrivateKey     string `json:"private_key"`    // hex ed25519 private key
	Representative string `json:"representative"` // hex pubkey, defaults to itself
	Balance        string `json:"balance"`         // decimal amount
}

// BuildGenesisBlock signs and returns the genesis open block, so a new node
// and a node replaying from scratch agree on the same starting ledger
// state. It returns no account info; the caller processes the block into
// the ledger to create it.
func BuildGenesisBlock(g GenesisAccount) (*blocks.StateBlock, error) {
	priv, err := crypto.PrivKeyFromHex(g.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("genesis: private_key: %w", err)
	}
	pub := priv.Public()

	rep := pub
	if g.Representative != "" {
		rep, err = crypto.PubKeyFromHex(g.Representative)
		if err != nil {
			return nil, fmt.Errorf("genesis: representative: %w", err)
		}
	}

	balance, err := decodeAmount(g.Balance)
	if err != nil {
		return nil, fmt.Errorf("genesis: balance: %w", err)
	}

	b := &blocks.StateBlock{
		Account:        pub,
		Representative: rep,
		Balance:        balance,
	}
	b.Sig = crypto.Sign(priv, b.Hash())
	return b, nil
}

func decodeAmount(s string) (blocks.Amount, error) {
	var amt blocks.Amount
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return amt, fmt.Errorf("invalid decimal amount %q", s)
	}
	return blocks.AmountFromBigInt(n)
}
