package crank

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/govrewards"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/vsr"
)

// Snapshot is the distribution state every entity of a run is built against.
// It is loaded once per run and never refreshed while the run is in progress.
type Snapshot struct {
	Address      solana.PublicKey
	Program      govrewards.Program
	Distribution govrewards.Distribution
}

// BuildRegister refreshes entity's voter weight record and registers the entity
// against the distribution, in that order.
func BuildRegister(entity solana.PublicKey, snap Snapshot, realm solana.PublicKey, payer solana.PublicKey, registry vsr.Program) (ledger.Transaction, error) {
	if snap.Distribution.Registrar == nil {
		return ledger.Transaction{}, ErrNoRegistrar
	}
	registrar := *snap.Distribution.Registrar

	refresh, vwr, err := registry.UpdateVoterWeightRecord(registrar, entity)
	if err != nil {
		return ledger.Transaction{}, err
	}
	register, err := snap.Program.Register(govrewards.RegisterAccounts{
		User:              entity,
		Distribution:      snap.Address,
		Realm:             realm,
		VoterWeightRecord: vwr,
		Payer:             payer,
	})
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to build register instruction: %w", err)
	}

	return ledger.Transaction{
		Instructions: []solana.Instruction{refresh, register},
		FeePayer:     payer,
		Signers:      []solana.PublicKey{payer},
	}, nil
}

// BuildClaim pays entity's chosen option into the address its preferences
// resolve to. A nil prefs means the entity never set any.
func BuildClaim(entity solana.PublicKey, snap Snapshot, realm solana.PublicKey, payer solana.PublicKey, claim govrewards.ClaimData, prefs *govrewards.UserPreferences) (ledger.Transaction, solana.PublicKey, error) {
	option, err := claim.ChosenOptionOf(snap.Distribution)
	if err != nil {
		return ledger.Transaction{}, solana.PublicKey{}, err
	}

	pref := govrewards.ResolutionEscrow
	if prefs != nil {
		pref = prefs.ResolutionPreference
	}
	payout, err := snap.Program.PayoutAddress(pref, entity, option.Mint, realm)
	if err != nil {
		return ledger.Transaction{}, solana.PublicKey{}, fmt.Errorf("failed to resolve payout address: %w", err)
	}

	ix, err := snap.Program.Claim(govrewards.ClaimAccounts{
		Claimant:     entity,
		Distribution: snap.Address,
		Realm:        realm,
		OptionWallet: option.Wallet,
		Payout:       payout,
		Payer:        payer,
	})
	if err != nil {
		return ledger.Transaction{}, solana.PublicKey{}, fmt.Errorf("failed to build claim instruction: %w", err)
	}

	return ledger.Transaction{
		Instructions: []solana.Instruction{ix},
		FeePayer:     payer,
		Signers:      []solana.PublicKey{payer},
	}, payout, nil
}

// BuildReclaim sweeps what is left of option back to the admin's token account.
func BuildReclaim(option govrewards.DistributionOption, snap Snapshot, admin, payer solana.PublicKey) (ledger.Transaction, error) {
	to, _, err := solana.FindAssociatedTokenAddress(admin, option.Mint)
	if err != nil {
		return ledger.Transaction{}, fmt.Errorf("failed to derive admin token account: %w", err)
	}
	ix := snap.Program.ReclaimFunds(govrewards.ReclaimFundsAccounts{
		Distribution: snap.Address,
		Admin:        admin,
		OptionWallet: option.Wallet,
		To:           to,
	})
	return ledger.Transaction{
		Instructions: []solana.Instruction{ix},
		FeePayer:     payer,
		Signers:      []solana.PublicKey{admin},
	}, nil
}
