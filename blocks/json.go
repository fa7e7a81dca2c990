package blocks

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/tolelom/nanoledger/crypto"
)

// jsonBlock is the wire JSON shape shared by every variant; each variant's
// MarshalJSON leaves the fields it does not have empty, and the omitempty
// struct tags drop them from the output (§4.1: "field name type
// discriminates the variant").
type jsonBlock struct {
	Type           string `json:"type"`
	Previous       string `json:"previous,omitempty"`
	Destination    string `json:"destination,omitempty"`
	Balance        string `json:"balance,omitempty"`
	Source         string `json:"source,omitempty"`
	Representative string `json:"representative,omitempty"`
	Account        string `json:"account,omitempty"`
	Link           string `json:"link,omitempty"`
	Signature      string `json:"signature"`
	Work           string `json:"work"`
}

func hexWork(w uint64) string {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[7-i] = byte(w >> (8 * i))
	}
	return hex.EncodeToString(b[:])
}

// MarshalJSON implements the canonical JSON form for a Send block.
func (b *SendBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonBlock{
		Type:        "send",
		Previous:    b.PreviousHash.String(),
		Destination: hex.EncodeToString(b.Destination),
		Balance:     b.Balance.String(),
		Signature:   hex.EncodeToString(b.Sig[:]),
		Work:        hexWork(b.WorkNonce),
	})
}

// MarshalJSON implements the canonical JSON form for a Receive block.
func (b *ReceiveBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonBlock{
		Type:      "receive",
		Previous:  b.PreviousHash.String(),
		Source:    b.Source.String(),
		Signature: hex.EncodeToString(b.Sig[:]),
		Work:      hexWork(b.WorkNonce),
	})
}

// MarshalJSON implements the canonical JSON form for an Open block.
func (b *OpenBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonBlock{
		Type:           "open",
		Source:         b.Source.String(),
		Representative: hex.EncodeToString(b.Representative),
		Account:        hex.EncodeToString(b.Account),
		Signature:      hex.EncodeToString(b.Sig[:]),
		Work:           hexWork(b.WorkNonce),
	})
}

// MarshalJSON implements the canonical JSON form for a Change block.
func (b *ChangeBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonBlock{
		Type:           "change",
		Previous:       b.PreviousHash.String(),
		Representative: hex.EncodeToString(b.Representative),
		Signature:      hex.EncodeToString(b.Sig[:]),
		Work:           hexWork(b.WorkNonce),
	})
}

// MarshalJSON implements the canonical JSON form for a State block.
func (b *StateBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(jsonBlock{
		Type:           "state",
		Account:        hex.EncodeToString(b.Account),
		Previous:       b.PreviousHash.String(),
		Representative: hex.EncodeToString(b.Representative),
		Balance:        b.Balance.String(),
		Link:           b.Link.String(),
		Signature:      hex.EncodeToString(b.Sig[:]),
		Work:           hexWork(b.WorkNonce),
	})
}

// DecodeJSON parses the canonical JSON form back into a typed Block, reading
// jb.Type as the discriminant.
func DecodeJSON(data []byte) (Block, error) {
	var jb jsonBlock
	if err := json.Unmarshal(data, &jb); err != nil {
		return nil, fmt.Errorf("blocks: decode json: %w", err)
	}
	sig, err := hex.DecodeString(jb.Signature)
	if err != nil || len(sig) != crypto.SignatureSize {
		return nil, fmt.Errorf("blocks: invalid signature hex")
	}
	var sigArr crypto.Signature
	copy(sigArr[:], sig)
	workBytes, err := hex.DecodeString(jb.Work)
	if err != nil || len(workBytes) != 8 {
		return nil, fmt.Errorf("blocks: invalid work hex")
	}
	var work uint64
	for i := 0; i < 8; i++ {
		work = (work << 8) | uint64(workBytes[i])
	}

	switch jb.Type {
	case "send":
		prev, err := crypto.HashFromHex(jb.Previous)
		if err != nil {
			return nil, err
		}
		dest, err := hex.DecodeString(jb.Destination)
		if err != nil {
			return nil, fmt.Errorf("blocks: invalid destination hex: %w", err)
		}
		bal, err := parseAmount(jb.Balance)
		if err != nil {
			return nil, err
		}
		return &SendBlock{PreviousHash: prev, Destination: dest, Balance: bal, Sig: sigArr, WorkNonce: work}, nil
	case "receive":
		prev, err := crypto.HashFromHex(jb.Previous)
		if err != nil {
			return nil, err
		}
		src, err := crypto.HashFromHex(jb.Source)
		if err != nil {
			return nil, err
		}
		return &ReceiveBlock{PreviousHash: prev, Source: src, Sig: sigArr, WorkNonce: work}, nil
	case "open":
		src, err := crypto.HashFromHex(jb.Source)
		if err != nil {
			return nil, err
		}
		rep, err := hex.DecodeString(jb.Representative)
		if err != nil {
			return nil, fmt.Errorf("blocks: invalid representative hex: %w", err)
		}
		acc, err := hex.DecodeString(jb.Account)
		if err != nil {
			return nil, fmt.Errorf("blocks: invalid account hex: %w", err)
		}
		return &OpenBlock{Source: src, Representative: rep, Account: acc, Sig: sigArr, WorkNonce: work}, nil
	case "change":
		prev, err := crypto.HashFromHex(jb.Previous)
		if err != nil {
			return nil, err
		}
		rep, err := hex.DecodeString(jb.Representative)
		if err != nil {
			return nil, fmt.Errorf("blocks: invalid representative hex: %w", err)
		}
		return &ChangeBlock{PreviousHash: prev, Representative: rep, Sig: sigArr, WorkNonce: work}, nil
	case "state":
		acc, err := hex.DecodeString(jb.Account)
		if err != nil {
			return nil, fmt.Errorf("blocks: invalid account hex: %w", err)
		}
		prev, err := crypto.HashFromHex(jb.Previous)
		if err != nil {
			return nil, err
		}
		rep, err := hex.DecodeString(jb.Representative)
		if err != nil {
			return nil, fmt.Errorf("blocks: invalid representative hex: %w", err)
		}
		bal, err := parseAmount(jb.Balance)
		if err != nil {
			return nil, err
		}
		link, err := crypto.HashFromHex(jb.Link)
		if err != nil {
			return nil, err
		}
		return &StateBlock{
			Account: acc, PreviousHash: prev, Representative: rep,
			Balance: bal, Link: link, Sig: sigArr, WorkNonce: work,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, jb.Type)
	}
}

func parseAmount(s string) (Amount, error) {
	bi, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return ZeroAmount, fmt.Errorf("blocks: invalid decimal amount %q", s)
	}
	return AmountFromBigInt(bi)
}
