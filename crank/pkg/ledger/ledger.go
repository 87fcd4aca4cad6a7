package ledger

import (
	"bytes"
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Client is the remote state the crank reads from and submits to.
//
// Implementations must report failures as *Error so callers can classify them.
type Client interface {
	GetAccount(ctx context.Context, address solana.PublicKey) (*Account, error)
	ListAccounts(ctx context.Context, program solana.PublicKey, filters ...Filter) ([]solana.PublicKey, error)
	Submit(ctx context.Context, tx Transaction) (solana.Signature, error)
}

// Account is the raw state of an on-chain account.
type Account struct {
	Address solana.PublicKey
	Owner   solana.PublicKey
	Data    []byte
}

// Filter selects accounts whose data holds Bytes at Offset.
type Filter struct {
	Offset uint64
	Bytes  []byte
}

// KeyFilter selects accounts holding key at offset.
func KeyFilter(offset uint64, key solana.PublicKey) Filter {
	return Filter{Offset: offset, Bytes: key.Bytes()}
}

// Matches evaluates the filter against raw account data.
func (f Filter) Matches(data []byte) bool {
	end := f.Offset + uint64(len(f.Bytes))
	if end > uint64(len(data)) {
		return false
	}
	return bytes.Equal(data[f.Offset:end], f.Bytes)
}

func (f Filter) String() string {
	return fmt.Sprintf("memcmp(offset=%d, bytes=%s)", f.Offset, base58.Encode(f.Bytes))
}

// MatchesAll reports whether data satisfies every filter.
func MatchesAll(data []byte, filters []Filter) bool {
	for _, f := range filters {
		if !f.Matches(data) {
			return false
		}
	}
	return true
}

// Transaction is an ordered instruction list plus the identities that must sign it.
type Transaction struct {
	Instructions []solana.Instruction
	FeePayer     solana.PublicKey
	Signers      []solana.PublicKey
}

// RequiredSigners returns the fee payer followed by the other signers, without duplicates.
func (tx Transaction) RequiredSigners() []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(tx.Signers)+1)
	seen := make(map[solana.PublicKey]struct{}, len(tx.Signers)+1)
	for _, pk := range append([]solana.PublicKey{tx.FeePayer}, tx.Signers...) {
		if pk.IsZero() {
			continue
		}
		if _, ok := seen[pk]; ok {
			continue
		}
		seen[pk] = struct{}{}
		out = append(out, pk)
	}
	return out
}
