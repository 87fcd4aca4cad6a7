package crank_test

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/crank"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/govrewards"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger/ledgertest"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/vsr"
)

func snapshot(f *fixture) crank.Snapshot {
	return crank.Snapshot{Address: f.address, Program: f.program, Distribution: f.distribution}
}

func TestCrank_Builders_Claim(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	entity := ledgertest.Key("entity")
	claim := govrewards.ClaimData{Distribution: f.address, Claimant: entity, ChosenOption: 2}

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()
		tx1, payout1, err := crank.BuildClaim(entity, snapshot(f), f.realm, f.payer, claim, nil)
		require.NoError(t, err)
		tx2, payout2, err := crank.BuildClaim(entity, snapshot(f), f.realm, f.payer, claim, nil)
		require.NoError(t, err)
		require.Equal(t, tx1, tx2)
		require.Equal(t, payout1, payout2)

		data1, err := tx1.Instructions[0].Data()
		require.NoError(t, err)
		data2, err := tx2.Instructions[0].Data()
		require.NoError(t, err)
		require.Equal(t, data1, data2)
	})

	t.Run("escrow preference matches no preference", func(t *testing.T) {
		t.Parallel()
		_, none, err := crank.BuildClaim(entity, snapshot(f), f.realm, f.payer, claim, nil)
		require.NoError(t, err)
		_, escrow, err := crank.BuildClaim(entity, snapshot(f), f.realm, f.payer, claim,
			&govrewards.UserPreferences{ResolutionPreference: govrewards.ResolutionEscrow})
		require.NoError(t, err)
		require.Equal(t, none, escrow)

		_, wallet, err := crank.BuildClaim(entity, snapshot(f), f.realm, f.payer, claim,
			&govrewards.UserPreferences{ResolutionPreference: govrewards.ResolutionWallet})
		require.NoError(t, err)
		require.NotEqual(t, none, wallet)
	})

	t.Run("signed by payer only", func(t *testing.T) {
		t.Parallel()
		tx, _, err := crank.BuildClaim(entity, snapshot(f), f.realm, f.payer, claim, nil)
		require.NoError(t, err)
		require.Equal(t, []solana.PublicKey{f.payer}, tx.RequiredSigners())
	})

	t.Run("out of range option", func(t *testing.T) {
		t.Parallel()
		bad := claim
		bad.ChosenOption = govrewards.MaxOptions
		_, _, err := crank.BuildClaim(entity, snapshot(f), f.realm, f.payer, bad, nil)
		require.ErrorIs(t, err, govrewards.ErrInvalidOption)
	})
}

func TestCrank_Builders_Register(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	entity := ledgertest.Key("entity")
	registry := vsr.Program{ID: vsr.ProgramID}

	tx, err := crank.BuildRegister(entity, snapshot(f), f.realm, f.payer, registry)
	require.NoError(t, err)
	require.Len(t, tx.Instructions, 2)
	require.Equal(t, vsr.ProgramID, tx.Instructions[0].ProgramID())
	require.Equal(t, f.program.ID, tx.Instructions[1].ProgramID())

	snap := snapshot(f)
	snap.Distribution.Registrar = nil
	_, err = crank.BuildRegister(entity, snap, f.realm, f.payer, registry)
	require.ErrorIs(t, err, crank.ErrNoRegistrar)
}
