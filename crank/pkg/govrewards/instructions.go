package govrewards

import (
	"github.com/gagliardetto/solana-go"
)

var (
	registerDiscriminator     = sighash("global", "register")
	claimDiscriminator        = sighash("global", "claim")
	reclaimFundsDiscriminator = sighash("global", "reclaim_funds")
)

// RegisterAccounts are the accounts of the register instruction.
type RegisterAccounts struct {
	User              solana.PublicKey
	Distribution      solana.PublicKey
	Realm             solana.PublicKey
	VoterWeightRecord solana.PublicKey
	Payer             solana.PublicKey
}

// Register registers User against Distribution with the weight in VoterWeightRecord.
func (p Program) Register(a RegisterAccounts) (solana.Instruction, error) {
	claimData, err := p.ClaimDataAddress(a.Distribution, a.User)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(a.User),
		solana.Meta(a.Distribution).WRITE(),
		solana.Meta(claimData).WRITE(),
		solana.Meta(a.Realm),
		solana.Meta(a.VoterWeightRecord),
		solana.Meta(a.Payer).WRITE().SIGNER(),
		solana.Meta(solana.SystemProgramID),
	}, registerDiscriminator[:]), nil
}

// ClaimAccounts are the accounts of the claim instruction.
type ClaimAccounts struct {
	Claimant     solana.PublicKey
	Distribution solana.PublicKey
	Realm        solana.PublicKey
	OptionWallet solana.PublicKey
	Payout       solana.PublicKey
	Payer        solana.PublicKey
}

// Claim pays Claimant's share out of OptionWallet into Payout.
func (p Program) Claim(a ClaimAccounts) (solana.Instruction, error) {
	claimData, err := p.ClaimDataAddress(a.Distribution, a.Claimant)
	if err != nil {
		return nil, err
	}
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(a.Claimant),
		solana.Meta(a.Distribution),
		solana.Meta(claimData).WRITE(),
		solana.Meta(a.Realm),
		solana.Meta(a.OptionWallet).WRITE(),
		solana.Meta(a.Payout).WRITE(),
		solana.Meta(a.Payer).WRITE().SIGNER(),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SystemProgramID),
	}, claimDiscriminator[:]), nil
}

// ReclaimFundsAccounts are the accounts of the reclaim_funds instruction.
type ReclaimFundsAccounts struct {
	Distribution solana.PublicKey
	Admin        solana.PublicKey
	OptionWallet solana.PublicKey
	To           solana.PublicKey
}

// ReclaimFunds sweeps what is left in OptionWallet to To.
func (p Program) ReclaimFunds(a ReclaimFundsAccounts) solana.Instruction {
	return solana.NewInstruction(p.ID, solana.AccountMetaSlice{
		solana.Meta(a.Distribution),
		solana.Meta(a.Admin).SIGNER(),
		solana.Meta(a.OptionWallet).WRITE(),
		solana.Meta(a.To).WRITE(),
		solana.Meta(solana.TokenProgramID),
	}, reclaimFundsDiscriminator[:])
}
