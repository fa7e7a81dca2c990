package active

import (
	"math/big"
	"testing"
	"time"

	"github.com/tolelom/nanoledger/blocks"
	"github.com/tolelom/nanoledger/crypto"
)

func TestElectionVoteTalliesWeight(t *testing.T) {
	_, acc, _ := crypto.GenerateKeyPair()
	b := &blocks.StateBlock{Account: acc, Representative: acc, Balance: blocks.AmountFromUint64(1)}
	el := newElection(qualifiedRootOf(b, acc), b, 1.0, time.Now())

	_, voter, _ := crypto.GenerateKeyPair()
	changed := el.vote(voter, 1, b.Hash(), big.NewInt(10))
	if !changed {
		t.Fatal("first vote should change the tally")
	}
	_, tally := el.leadingTally()
	if tally.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("tally = %s, want 10", tally)
	}
}

func TestElectionVoteRejectsNonIncreasingSequence(t *testing.T) {
	_, acc, _ := crypto.GenerateKeyPair()
	b := &blocks.StateBlock{Account: acc, Representative: acc, Balance: blocks.AmountFromUint64(1)}
	el := newElection(qualifiedRootOf(b, acc), b, 1.0, time.Now())

	_, voter, _ := crypto.GenerateKeyPair()
	if !el.vote(voter, 5, b.Hash(), big.NewInt(10)) {
		t.Fatal("first vote at sequence 5 should be accepted")
	}
	if el.vote(voter, 5, b.Hash(), big.NewInt(10)) {
		t.Fatal("repeated sequence 5 should be rejected")
	}
	if el.vote(voter, 4, b.Hash(), big.NewInt(10)) {
		t.Fatal("lower sequence 4 should be rejected")
	}
	_, tally := el.leadingTally()
	if tally.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("tally = %s, want 10 (rejected votes must not double-count)", tally)
	}
}

// TestElectionVoteSwitchingCandidateMovesWeight is the regression test for
// the at-most-one-winner invariant (§3.2, §8.2 vote ordering): a
// representative switching its vote to a different candidate at a higher
// sequence must have its weight removed from the candidate it previously
// supported, not summed across both.
func TestElectionVoteSwitchingCandidateMovesWeight(t *testing.T) {
	_, acc, _ := crypto.GenerateKeyPair()
	b1 := &blocks.StateBlock{Account: acc, Representative: acc, Balance: blocks.AmountFromUint64(1)}
	root := qualifiedRootOf(b1, acc)
	el := newElection(root, b1, 1.0, time.Now())

	b2 := &blocks.StateBlock{Account: acc, Representative: acc, Balance: blocks.AmountFromUint64(2)}
	el.addCandidate(b2)

	_, voter, _ := crypto.GenerateKeyPair()
	weight := big.NewInt(100)

	if !el.vote(voter, 1, b1.Hash(), weight) {
		t.Fatal("vote for b1 at sequence 1 should be accepted")
	}
	if el.tally[b1.Hash()].Cmp(weight) != 0 {
		t.Fatalf("b1 tally = %s, want %s", el.tally[b1.Hash()], weight)
	}

	if !el.vote(voter, 2, b2.Hash(), weight) {
		t.Fatal("vote for b2 at sequence 2 should be accepted")
	}
	if el.tally[b1.Hash()].Sign() != 0 {
		t.Fatalf("b1 tally = %s after switch, want 0 (weight must move, not sum)", el.tally[b1.Hash()])
	}
	if el.tally[b2.Hash()].Cmp(weight) != 0 {
		t.Fatalf("b2 tally = %s, want %s", el.tally[b2.Hash()], weight)
	}

	winner, tally := el.leadingTally()
	if winner != b2.Hash() || tally.Cmp(weight) != 0 {
		t.Fatalf("leadingTally = (%s, %s), want (%s, %s)", winner, tally, b2.Hash(), weight)
	}
}

func TestElectionVoteSameCandidateHigherSequenceDoesNotDoubleCount(t *testing.T) {
	_, acc, _ := crypto.GenerateKeyPair()
	b := &blocks.StateBlock{Account: acc, Representative: acc, Balance: blocks.AmountFromUint64(1)}
	el := newElection(qualifiedRootOf(b, acc), b, 1.0, time.Now())

	_, voter, _ := crypto.GenerateKeyPair()
	el.vote(voter, 1, b.Hash(), big.NewInt(5))
	el.vote(voter, 2, b.Hash(), big.NewInt(5))

	_, tally := el.leadingTally()
	if tally.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("tally = %s, want 5 (re-vote for same candidate must not double-count)", tally)
	}
}

func TestElectionAddCandidateIsNoopIfPresent(t *testing.T) {
	_, acc, _ := crypto.GenerateKeyPair()
	b := &blocks.StateBlock{Account: acc, Representative: acc, Balance: blocks.AmountFromUint64(1)}
	el := newElection(qualifiedRootOf(b, acc), b, 1.0, time.Now())

	before := len(el.candidates)
	el.addCandidate(b)
	if len(el.candidates) != before {
		t.Fatalf("addCandidate duplicated an existing candidate: len = %d, want %d", len(el.candidates), before)
	}
}
