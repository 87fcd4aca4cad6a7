package crank

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/govrewards"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/vsr"
)

// Register refreshes the voter weight record of every voter of the distribution's
// registrar and registers it against the distribution.
func (c *Crank) Register(ctx context.Context) (Report, error) {
	return c.run(ctx, WorkflowRegister, func(ctx context.Context, b *batch) error {
		if b.snap.Distribution.Registrar == nil {
			return ErrNoRegistrar
		}
		registrar := *b.snap.Distribution.Registrar

		voters, err := ledger.Scan(ctx, c.cfg.Ledger, c.registry.ID, vsr.DecodeVoter,
			ledger.KeyFilter(vsr.VoterRegistrarOffset, registrar))
		if err != nil {
			return err
		}
		key := func(v ledger.Keyed[vsr.Voter]) solana.PublicKey { return v.Account.VoterAuthority }
		return process(ctx, c, b, voters, key, func(ctx context.Context, v ledger.Keyed[vsr.Voter]) error {
			return c.registerOne(ctx, b, v.Account.VoterAuthority)
		})
	})
}

func (c *Crank) registerOne(ctx context.Context, b *batch, entity solana.PublicKey) error {
	log := b.log.With("entity", entity)

	claimData, err := b.snap.Program.ClaimDataAddress(b.snap.Address, entity)
	if err != nil {
		return fatal(fmt.Errorf("failed to derive claim data address: %w", err))
	}
	switch _, err := c.cfg.Ledger.GetAccount(ctx, claimData); {
	case err == nil:
		return skip(errAlreadyRegistered)
	case ledger.KindOf(err) != ledger.KindNotFound:
		return fmt.Errorf("failed to check registration: %w", err)
	}

	tx, err := BuildRegister(entity, b.snap, b.snap.Distribution.Realm, c.cfg.Payer, c.registry)
	if err != nil {
		return fatal(err)
	}
	if err := c.submit(ctx, log, tx); err != nil {
		if govrewards.IsProgramError(err, govrewards.ErrCodeAlreadyRegistered) {
			return skip(errAlreadyRegistered)
		}
		return fmt.Errorf("failed to submit register: %w", err)
	}
	log.Info("crank/register: registered")
	return nil
}
