package ledger

import (
	"math/big"

	"github.com/tolelom/nanoledger/crypto"
)

// DefaultPrincipalRepFraction is the fraction of online weight a
// representative's own weight must clear to count as principal (glossary:
// "Principal representative"), matching the reference node's default.
const DefaultPrincipalRepFraction = 0.001

// PrincipalRepSet answers "is rep principal right now" against the live
// rep-weight cache and online-weight tracker. cmd/node's vote publisher
// uses it to tag each generated vote for the flood-first policy (§4.7);
// the active engine's request-scheduling loop does not use it.
type PrincipalRepSet struct {
	weights  *RepWeightCache
	online   *OnlineWeightTracker
	fraction float64
}

// NewPrincipalRepSet builds a PrincipalRepSet. fraction <= 0 falls back to
// DefaultPrincipalRepFraction.
func NewPrincipalRepSet(weights *RepWeightCache, online *OnlineWeightTracker, fraction float64) *PrincipalRepSet {
	if fraction <= 0 {
		fraction = DefaultPrincipalRepFraction
	}
	return &PrincipalRepSet{weights: weights, online: online, fraction: fraction}
}

// IsPrincipal reports whether rep's cached weight is at or above the
// configured fraction of the current online-weight total.
func (p *PrincipalRepSet) IsPrincipal(rep crypto.PublicKey) bool {
	total := p.weights.Total()
	if p.online != nil {
		total = p.online.TrimmedTotal()
	}
	if total.Sign() <= 0 {
		return false
	}
	threshold := new(big.Float).Mul(new(big.Float).SetInt(total), big.NewFloat(p.fraction))
	weight := new(big.Float).SetInt(p.weights.Weight(rep))
	return weight.Cmp(threshold) >= 0
}

// Filter returns the subset of reps that are currently principal.
func (p *PrincipalRepSet) Filter(reps []crypto.PublicKey) []crypto.PublicKey {
	out := make([]crypto.PublicKey, 0, len(reps))
	for _, rep := range reps {
		if p.IsPrincipal(rep) {
			out = append(out, rep)
		}
	}
	return out
}
