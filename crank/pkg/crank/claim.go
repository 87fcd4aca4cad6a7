package crank

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/govrewards"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger"
)

// Claim pays every registered claimant of the distribution that has not been
// paid yet.
func (c *Crank) Claim(ctx context.Context) (Report, error) {
	return c.run(ctx, WorkflowClaim, func(ctx context.Context, b *batch) error {
		claims, err := ledger.Scan(ctx, c.cfg.Ledger, b.snap.Program.ID, govrewards.DecodeClaimData,
			ledger.KeyFilter(govrewards.ClaimDataDistributionOffset, b.snap.Address))
		if err != nil {
			return err
		}
		key := func(cd ledger.Keyed[govrewards.ClaimData]) solana.PublicKey { return cd.Account.Claimant }
		return process(ctx, c, b, claims, key, func(ctx context.Context, cd ledger.Keyed[govrewards.ClaimData]) error {
			return c.claimOne(ctx, b, cd.Account)
		})
	})
}

func (c *Crank) claimOne(ctx context.Context, b *batch, claim govrewards.ClaimData) error {
	entity := claim.Claimant
	log := b.log.With("entity", entity)
	if claim.HasClaimed {
		return skip(errAlreadyClaimed)
	}

	realm := b.snap.Distribution.Realm
	prefs, err := c.preferences(ctx, b.snap.Program, entity, realm)
	if err != nil {
		return err
	}

	tx, payout, err := BuildClaim(entity, b.snap, realm, c.cfg.Payer, claim, prefs)
	if err != nil {
		return fatal(err)
	}
	if err := c.submit(ctx, log, tx); err != nil {
		if govrewards.IsProgramError(err, govrewards.ErrCodeAlreadyClaimed) {
			return skip(errAlreadyClaimed)
		}
		return fmt.Errorf("failed to submit claim: %w", err)
	}
	log.Info("crank/claim: claimed", "option", claim.ChosenOption, "payout", payout)
	return nil
}

// preferences returns nil when the entity never set any.
func (c *Crank) preferences(ctx context.Context, program govrewards.Program, entity, realm solana.PublicKey) (*govrewards.UserPreferences, error) {
	addr, err := program.PreferencesAddress(entity, realm)
	if err != nil {
		return nil, fatal(fmt.Errorf("failed to derive preferences address: %w", err))
	}
	prefs, err := ledger.Get(ctx, c.cfg.Ledger, addr, govrewards.DecodeUserPreferences)
	if err != nil {
		if ledger.KindOf(err) == ledger.KindNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	return &prefs, nil
}
