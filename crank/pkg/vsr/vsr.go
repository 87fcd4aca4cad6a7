// Package vsr holds the parts of the voter stake registry program the crank touches:
// the Voter account prefix, its PDAs and the voter weight record refresh.
package vsr

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ProgramID is the mainnet voter stake registry deployment.
var ProgramID = solana.MustPublicKeyFromBase58("4Q6WW2ouZ6V3iaNm56MTd5n2tnTm4C5fiH8miFHnAFHo")

// Byte offsets into a Voter account.
const (
	VoterAuthorityOffset = 8
	VoterRegistrarOffset = 8 + 32
	voterPrefixLength    = VoterRegistrarOffset + 32
)

var ErrDiscriminatorMismatch = errors.New("voter account discriminator mismatch")

var (
	voterDiscriminator                   = sighash("account", "Voter")
	updateVoterWeightRecordDiscriminator = sighash("global", "update_voter_weight_record")
)

func sighash(namespace, name string) [8]byte {
	h := sha256.Sum256([]byte(namespace + ":" + name))
	var out [8]byte
	copy(out[:], h[:8])
	return out
}

// Voter is the prefix of a voter account. Deposits are not decoded.
type Voter struct {
	VoterAuthority solana.PublicKey
	Registrar      solana.PublicKey
}

func DecodeVoter(data []byte) (Voter, error) {
	if len(data) < voterPrefixLength {
		return Voter{}, fmt.Errorf("voter account too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], voterDiscriminator[:]) {
		return Voter{}, ErrDiscriminatorMismatch
	}
	return Voter{
		VoterAuthority: solana.PublicKeyFromBytes(data[VoterAuthorityOffset:VoterRegistrarOffset]),
		Registrar:      solana.PublicKeyFromBytes(data[VoterRegistrarOffset:voterPrefixLength]),
	}, nil
}

// EncodeVoter writes the voter prefix followed by padding bytes standing in for deposits.
func EncodeVoter(v Voter, padding int) []byte {
	buf := make([]byte, 0, voterPrefixLength+padding)
	buf = append(buf, voterDiscriminator[:]...)
	buf = append(buf, v.VoterAuthority.Bytes()...)
	buf = append(buf, v.Registrar.Bytes()...)
	return append(buf, make([]byte, padding)...)
}

// Program derives addresses and builds instructions for one registry deployment.
type Program struct {
	ID solana.PublicKey
}

func (p Program) VoterAddress(registrar, authority solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{registrar.Bytes(), []byte("voter"), authority.Bytes()}, p.ID)
	return addr, err
}

func (p Program) VoterWeightRecordAddress(registrar, authority solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{registrar.Bytes(), []byte("voter-weight-record"), authority.Bytes()}, p.ID)
	return addr, err
}

// UpdateVoterWeightRecord refreshes the voter weight record of authority.
func (p Program) UpdateVoterWeightRecord(registrar, authority solana.PublicKey) (solana.Instruction, solana.PublicKey, error) {
	voter, err := p.VoterAddress(registrar, authority)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("failed to derive voter address: %w", err)
	}
	vwr, err := p.VoterWeightRecordAddress(registrar, authority)
	if err != nil {
		return nil, solana.PublicKey{}, fmt.Errorf("failed to derive voter weight record address: %w", err)
	}
	ix := solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(registrar),
		solana.Meta(voter),
		solana.Meta(vwr).WRITE(),
		solana.Meta(solana.SystemProgramID),
	}, updateVoterWeightRecordDiscriminator[:])
	return ix, vwr, nil
}
