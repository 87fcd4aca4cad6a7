package vsr_test

import (
	"crypto/sha256"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger/ledgertest"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/vsr"
)

func TestCrank_VSR_Voter(t *testing.T) {
	t.Parallel()

	v := vsr.Voter{VoterAuthority: ledgertest.Key("authority"), Registrar: ledgertest.Key("registrar")}
	data := vsr.EncodeVoter(v, 128)

	got, err := vsr.DecodeVoter(data)
	require.NoError(t, err)
	require.Equal(t, v, got)

	require.Equal(t, v.VoterAuthority.Bytes(), data[vsr.VoterAuthorityOffset:vsr.VoterAuthorityOffset+32])
	require.Equal(t, v.Registrar.Bytes(), data[vsr.VoterRegistrarOffset:vsr.VoterRegistrarOffset+32])

	_, err = vsr.DecodeVoter(data[:40])
	require.ErrorContains(t, err, "too short")

	data[0] ^= 0xff
	_, err = vsr.DecodeVoter(data)
	require.ErrorIs(t, err, vsr.ErrDiscriminatorMismatch)
}

func TestCrank_VSR_UpdateVoterWeightRecord(t *testing.T) {
	t.Parallel()

	p := vsr.Program{ID: vsr.ProgramID}
	registrar, authority := ledgertest.Key("registrar"), ledgertest.Key("authority")

	ix, vwr, err := p.UpdateVoterWeightRecord(registrar, authority)
	require.NoError(t, err)
	require.Equal(t, vsr.ProgramID, ix.ProgramID())

	want, _, err := solana.FindProgramAddress([][]byte{registrar.Bytes(), []byte("voter-weight-record"), authority.Bytes()}, vsr.ProgramID)
	require.NoError(t, err)
	require.Equal(t, want, vwr)

	voter, err := p.VoterAddress(registrar, authority)
	require.NoError(t, err)
	accounts := ix.Accounts()
	require.Equal(t, registrar, accounts[0].PublicKey)
	require.Equal(t, voter, accounts[1].PublicKey)
	require.Equal(t, vwr, accounts[2].PublicKey)
	require.True(t, accounts[2].IsWritable)

	data, err := ix.Data()
	require.NoError(t, err)
	h := sha256.Sum256([]byte("global:update_voter_weight_record"))
	require.Equal(t, h[:8], data)
}
