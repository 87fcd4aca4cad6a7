package govrewards

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// MaxOptions is the number of option slots in a distribution.
const MaxOptions = 8

// Byte offsets into a ClaimData account, used to filter claims server-side.
const (
	ClaimDataDistributionOffset = 8 + 8
	ClaimDataClaimantOffset     = ClaimDataDistributionOffset + 32
)

var (
	ErrDiscriminatorMismatch = errors.New("account discriminator mismatch")
	ErrInvalidOption         = errors.New("claim references an empty or unknown distribution option")
)

var (
	distributionDiscriminator    = accountDiscriminator("Distribution")
	claimDataDiscriminator       = accountDiscriminator("ClaimData")
	userPreferencesDiscriminator = accountDiscriminator("UserPreferences")
)

func accountDiscriminator(name string) [8]byte {
	return sighash("account", name)
}

func sighash(namespace, name string) [8]byte {
	h := sha256.Sum256([]byte(namespace + ":" + name))
	var out [8]byte
	copy(out[:], h[:8])
	return out
}

// DistributionOption is one payout slot of a distribution.
type DistributionOption struct {
	Mint   solana.PublicKey
	Wallet solana.PublicKey
}

// Distribution is the configuration of one reward round.
type Distribution struct {
	Realm                 solana.PublicKey
	Registrar             *solana.PublicKey
	RegistrationPeriodEnd int64
	TotalVoteWeight       uint64
	Options               [MaxOptions]*DistributionOption
}

// PopulatedOptions returns the filled option slots with their indexes, in slot order.
func (d Distribution) PopulatedOptions() []IndexedOption {
	var out []IndexedOption
	for i, opt := range d.Options {
		if opt != nil {
			out = append(out, IndexedOption{Index: uint8(i), Option: *opt})
		}
	}
	return out
}

// IndexedOption is a populated option slot.
type IndexedOption struct {
	Index  uint8
	Option DistributionOption
}

// ClaimData links a registered claimant to the option they chose.
type ClaimData struct {
	Weight       uint64
	Distribution solana.PublicKey
	Claimant     solana.PublicKey
	ChosenOption uint8
	HasClaimed   bool
}

// ChosenOptionOf resolves the claimant's option in d.
func (c ClaimData) ChosenOptionOf(d Distribution) (DistributionOption, error) {
	if int(c.ChosenOption) >= len(d.Options) || d.Options[c.ChosenOption] == nil {
		return DistributionOption{}, fmt.Errorf("%w: index %d", ErrInvalidOption, c.ChosenOption)
	}
	return *d.Options[c.ChosenOption], nil
}

// UserPreferences selects how a claimant's payout is routed.
type UserPreferences struct {
	ResolutionPreference ResolutionPreference
}

func DecodeDistribution(data []byte) (Distribution, error) {
	var d Distribution
	dec, err := newDecoder(data, distributionDiscriminator)
	if err != nil {
		return d, err
	}
	if d.Realm, err = readPubkey(dec); err != nil {
		return d, fmt.Errorf("realm: %w", err)
	}
	if d.Registrar, err = readOptionalPubkey(dec); err != nil {
		return d, fmt.Errorf("registrar: %w", err)
	}
	if d.RegistrationPeriodEnd, err = dec.ReadInt64(binary.LittleEndian); err != nil {
		return d, fmt.Errorf("registration period end: %w", err)
	}
	if d.TotalVoteWeight, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return d, fmt.Errorf("total vote weight: %w", err)
	}
	for i := range d.Options {
		some, err := readOptionTag(dec)
		if err != nil {
			return d, fmt.Errorf("option %d: %w", i, err)
		}
		if !some {
			continue
		}
		var opt DistributionOption
		if opt.Mint, err = readPubkey(dec); err != nil {
			return d, fmt.Errorf("option %d mint: %w", i, err)
		}
		if opt.Wallet, err = readPubkey(dec); err != nil {
			return d, fmt.Errorf("option %d wallet: %w", i, err)
		}
		d.Options[i] = &opt
	}
	return d, nil
}

func EncodeDistribution(d Distribution) []byte {
	buf, enc := newEncoder(distributionDiscriminator)
	must(enc.WriteBytes(d.Realm.Bytes(), false))
	writeOptionalPubkey(enc, d.Registrar)
	must(enc.WriteInt64(d.RegistrationPeriodEnd, binary.LittleEndian))
	must(enc.WriteUint64(d.TotalVoteWeight, binary.LittleEndian))
	for _, opt := range d.Options {
		if opt == nil {
			must(enc.WriteUint8(0))
			continue
		}
		must(enc.WriteUint8(1))
		must(enc.WriteBytes(opt.Mint.Bytes(), false))
		must(enc.WriteBytes(opt.Wallet.Bytes(), false))
	}
	return buf.Bytes()
}

func DecodeClaimData(data []byte) (ClaimData, error) {
	var c ClaimData
	dec, err := newDecoder(data, claimDataDiscriminator)
	if err != nil {
		return c, err
	}
	if c.Weight, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return c, fmt.Errorf("weight: %w", err)
	}
	if c.Distribution, err = readPubkey(dec); err != nil {
		return c, fmt.Errorf("distribution: %w", err)
	}
	if c.Claimant, err = readPubkey(dec); err != nil {
		return c, fmt.Errorf("claimant: %w", err)
	}
	if c.ChosenOption, err = dec.ReadUint8(); err != nil {
		return c, fmt.Errorf("chosen option: %w", err)
	}
	if c.HasClaimed, err = dec.ReadBool(); err != nil {
		return c, fmt.Errorf("has claimed: %w", err)
	}
	return c, nil
}

func EncodeClaimData(c ClaimData) []byte {
	buf, enc := newEncoder(claimDataDiscriminator)
	must(enc.WriteUint64(c.Weight, binary.LittleEndian))
	must(enc.WriteBytes(c.Distribution.Bytes(), false))
	must(enc.WriteBytes(c.Claimant.Bytes(), false))
	must(enc.WriteUint8(c.ChosenOption))
	must(enc.WriteBool(c.HasClaimed))
	return buf.Bytes()
}

func DecodeUserPreferences(data []byte) (UserPreferences, error) {
	var p UserPreferences
	dec, err := newDecoder(data, userPreferencesDiscriminator)
	if err != nil {
		return p, err
	}
	tag, err := dec.ReadUint8()
	if err != nil {
		return p, fmt.Errorf("resolution preference: %w", err)
	}
	if tag > uint8(ResolutionWallet) {
		return p, fmt.Errorf("resolution preference: unknown variant %d", tag)
	}
	p.ResolutionPreference = ResolutionPreference(tag)
	return p, nil
}

func EncodeUserPreferences(p UserPreferences) []byte {
	buf, enc := newEncoder(userPreferencesDiscriminator)
	must(enc.WriteUint8(uint8(p.ResolutionPreference)))
	return buf.Bytes()
}

func newDecoder(data []byte, discriminator [8]byte) (*bin.Decoder, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], discriminator[:]) {
		return nil, ErrDiscriminatorMismatch
	}
	return bin.NewBorshDecoder(data[8:]), nil
}

func newEncoder(discriminator [8]byte) (*bytes.Buffer, *bin.Encoder) {
	buf := new(bytes.Buffer)
	buf.Write(discriminator[:])
	return buf, bin.NewBorshEncoder(buf)
}

func readPubkey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return solana.PublicKeyFromBytes(b), nil
}

func readOptionTag(dec *bin.Decoder) (bool, error) {
	tag, err := dec.ReadUint8()
	if err != nil {
		return false, err
	}
	switch tag {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("invalid option tag %d", tag)
	}
}

func readOptionalPubkey(dec *bin.Decoder) (*solana.PublicKey, error) {
	some, err := readOptionTag(dec)
	if err != nil || !some {
		return nil, err
	}
	pk, err := readPubkey(dec)
	if err != nil {
		return nil, err
	}
	return &pk, nil
}

func writeOptionalPubkey(enc *bin.Encoder, pk *solana.PublicKey) {
	if pk == nil {
		must(enc.WriteUint8(0))
		return
	}
	must(enc.WriteUint8(1))
	must(enc.WriteBytes(pk.Bytes(), false))
}

// must panics on encoder errors, which a bytes.Buffer never returns.
func must(err error) {
	if err != nil {
		panic(err)
	}
}
