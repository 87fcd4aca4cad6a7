package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/gagliardetto/solana-go"
)

// Keyed is a decoded account together with its address.
type Keyed[T any] struct {
	Address solana.PublicKey
	Account T
}

// Decoder turns raw account data into T.
type Decoder[T any] func(data []byte) (T, error)

// Get reads and decodes a single account.
func Get[T any](ctx context.Context, c Client, address solana.PublicKey, decode Decoder[T]) (T, error) {
	var zero T
	acc, err := c.GetAccount(ctx, address)
	if err != nil {
		return zero, err
	}
	v, err := decode(acc.Data)
	if err != nil {
		return zero, NewError(KindMalformed, "decode "+address.String(), err)
	}
	return v, nil
}

// Scan lists the program accounts matching filters and returns a lazy sequence
// that fetches and decodes each of them as it is consumed.
//
// The listing happens up front; an error there is returned directly. Accounts
// that disappear before they are fetched are dropped. Any other fetch or decode
// error is yielded once and ends the sequence. The sequence can be consumed once;
// call Scan again to start over.
func Scan[T any](ctx context.Context, c Client, program solana.PublicKey, decode Decoder[T], filters ...Filter) (iter.Seq2[Keyed[T], error], error) {
	keys, err := c.ListAccounts(ctx, program, filters...)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts of %s: %w", program, err)
	}

	consumed := false
	return func(yield func(Keyed[T], error) bool) {
		if consumed {
			yield(Keyed[T]{}, errors.New("ledger: scan already consumed"))
			return
		}
		consumed = true

		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				yield(Keyed[T]{}, err)
				return
			}
			acc, err := c.GetAccount(ctx, key)
			if err != nil {
				if KindOf(err) == KindNotFound {
					continue
				}
				yield(Keyed[T]{}, err)
				return
			}
			if !MatchesAll(acc.Data, filters) {
				// Reassigned or reallocated between listing and fetch.
				continue
			}
			v, err := decode(acc.Data)
			if err != nil {
				yield(Keyed[T]{}, NewError(KindMalformed, "decode "+key.String(), err))
				return
			}
			if !yield(Keyed[T]{Address: key, Account: v}, nil) {
				return
			}
		}
	}, nil
}
