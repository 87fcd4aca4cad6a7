package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger/ledgertest"
)

// record is a toy account: an 8 byte tag followed by a 32 byte owner key.
type record struct {
	Tag   string
	Owner solana.PublicKey
}

const recordOwnerOffset = 8

func encodeRecord(tag string, owner solana.PublicKey) []byte {
	data := make([]byte, 8, 40)
	copy(data, tag)
	return append(data, owner.Bytes()...)
}

func decodeRecord(data []byte) (record, error) {
	if len(data) != 40 {
		return record{}, fmt.Errorf("record has %d bytes", len(data))
	}
	return record{Tag: string(data[:8]), Owner: solana.PublicKeyFromBytes(data[8:])}, nil
}

func collect[T any](t *testing.T, seq iter.Seq2[ledger.Keyed[T], error]) ([]ledger.Keyed[T], error) {
	t.Helper()
	var out []ledger.Keyed[T]
	for v, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, v)
	}
	return out, nil
}

func TestCrank_Ledger_Scan(t *testing.T) {
	t.Parallel()

	program := ledgertest.Key("program")
	alice := ledgertest.Key("alice")
	bob := ledgertest.Key("bob")

	t.Run("yields only accounts matching the filter", func(t *testing.T) {
		t.Parallel()
		l := ledgertest.New()
		var want []solana.PublicKey
		for i := range 10 {
			addr := ledgertest.Key(fmt.Sprintf("rec-%d", i))
			owner := bob
			if i%3 == 0 {
				owner = alice
				want = append(want, addr)
			}
			l.Put(addr, program, encodeRecord("record__", owner))
		}
		// Same bytes under another program.
		l.Put(ledgertest.Key("foreign"), ledgertest.Key("other-program"), encodeRecord("record__", alice))

		seq, err := ledger.Scan(t.Context(), l, program, decodeRecord, ledger.KeyFilter(recordOwnerOffset, alice))
		require.NoError(t, err)
		got, err := collect(t, seq)
		require.NoError(t, err)

		var addrs []solana.PublicKey
		for _, k := range got {
			require.Equal(t, alice, k.Account.Owner)
			addrs = append(addrs, k.Address)
		}
		require.Equal(t, want, addrs)
	})

	t.Run("accounts vanishing before fetch are dropped", func(t *testing.T) {
		t.Parallel()
		l := ledgertest.New()
		x, y := ledgertest.Key("x"), ledgertest.Key("y")
		l.Put(x, program, encodeRecord("record__", alice))
		l.Put(y, program, encodeRecord("record__", alice))
		l.Vanish(x)

		seq, err := ledger.Scan(t.Context(), l, program, decodeRecord)
		require.NoError(t, err)
		got, err := collect(t, seq)
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, y, got[0].Address)
	})

	t.Run("fetch is lazy", func(t *testing.T) {
		t.Parallel()
		l := ledgertest.New()
		l.Put(ledgertest.Key("x"), program, encodeRecord("record__", alice))
		l.Put(ledgertest.Key("y"), program, encodeRecord("record__", alice))

		seq, err := ledger.Scan(t.Context(), l, program, decodeRecord)
		require.NoError(t, err)
		require.Empty(t, l.Gets())
		for range seq {
			break
		}
		require.Len(t, l.Gets(), 1)
	})

	t.Run("sequence is single use", func(t *testing.T) {
		t.Parallel()
		l := ledgertest.New()
		l.Put(ledgertest.Key("x"), program, encodeRecord("record__", alice))

		seq, err := ledger.Scan(t.Context(), l, program, decodeRecord)
		require.NoError(t, err)
		_, err = collect(t, seq)
		require.NoError(t, err)
		_, err = collect(t, seq)
		require.ErrorContains(t, err, "scan already consumed")
	})

	t.Run("undecodable account is malformed", func(t *testing.T) {
		t.Parallel()
		l := ledgertest.New()
		l.Put(ledgertest.Key("x"), program, []byte("short"))

		seq, err := ledger.Scan(t.Context(), l, program, decodeRecord)
		require.NoError(t, err)
		_, err = collect(t, seq)
		require.Equal(t, ledger.KindMalformed, ledger.KindOf(err))
	})

	t.Run("fetch failure ends the sequence", func(t *testing.T) {
		t.Parallel()
		l := ledgertest.New()
		x := ledgertest.Key("x")
		l.Put(x, program, encodeRecord("record__", alice))
		l.Put(ledgertest.Key("y"), program, encodeRecord("record__", alice))
		l.FailGet(x, ledger.NewError(ledger.KindTransport, "get", errors.New("reset")))

		seq, err := ledger.Scan(t.Context(), l, program, decodeRecord)
		require.NoError(t, err)
		got, err := collect(t, seq)
		require.Empty(t, got)
		require.Equal(t, ledger.KindTransport, ledger.KindOf(err))
		require.Len(t, l.Gets(), 1)
	})

	t.Run("listing failure is returned up front", func(t *testing.T) {
		t.Parallel()
		l := ledgertest.New()
		l.FailList(ledger.NewError(ledger.KindTransport, "list", errors.New("timeout")))

		_, err := ledger.Scan(t.Context(), l, program, decodeRecord)
		require.Equal(t, ledger.KindTransport, ledger.KindOf(err))
	})

	t.Run("cancellation", func(t *testing.T) {
		t.Parallel()
		l := ledgertest.New()
		l.Put(ledgertest.Key("x"), program, encodeRecord("record__", alice))

		ctx, cancel := context.WithCancel(t.Context())
		seq, err := ledger.Scan(ctx, l, program, decodeRecord)
		require.NoError(t, err)
		cancel()
		_, err = collect(t, seq)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestCrank_Ledger_Filter(t *testing.T) {
	t.Parallel()

	key := ledgertest.Key("k")
	f := ledger.KeyFilter(4, key)
	data := append(make([]byte, 4), key.Bytes()...)

	require.True(t, f.Matches(data))
	require.False(t, f.Matches(data[:20]))
	require.False(t, ledger.KeyFilter(0, key).Matches(data))
	require.True(t, ledger.MatchesAll(data, nil))
	require.Contains(t, f.String(), key.String())
}

func TestCrank_Ledger_RequiredSigners(t *testing.T) {
	t.Parallel()

	payer, admin := ledgertest.Key("payer"), ledgertest.Key("admin")
	tx := ledger.Transaction{FeePayer: payer, Signers: []solana.PublicKey{admin, payer, {}, admin}}
	require.Equal(t, []solana.PublicKey{payer, admin}, tx.RequiredSigners())
}
