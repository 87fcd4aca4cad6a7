package crank

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/gagliardetto/solana-go"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/govrewards"
)

var errAlreadyReclaimed = errors.New("option already reclaimed")

// Reclaim sweeps what is left in every option wallet back to the admin.
func (c *Crank) Reclaim(ctx context.Context) (Report, error) {
	return c.run(ctx, WorkflowReclaim, func(ctx context.Context, b *batch) error {
		if c.cfg.Admin.IsZero() {
			return ErrNoAdmin
		}
		options := func(yield func(govrewards.IndexedOption, error) bool) {
			for _, opt := range b.snap.Distribution.PopulatedOptions() {
				if !yield(opt, nil) {
					return
				}
			}
		}
		key := func(o govrewards.IndexedOption) solana.PublicKey { return o.Option.Wallet }
		return process(ctx, c, b, iter.Seq2[govrewards.IndexedOption, error](options), key, func(ctx context.Context, o govrewards.IndexedOption) error {
			return c.reclaimOne(ctx, b, o)
		})
	})
}

func (c *Crank) reclaimOne(ctx context.Context, b *batch, o govrewards.IndexedOption) error {
	log := b.log.With("option", o.Index, "mint", o.Option.Mint)

	tx, err := BuildReclaim(o.Option, b.snap, c.cfg.Admin, c.cfg.Payer)
	if err != nil {
		return fatal(err)
	}
	if err := c.submit(ctx, log, tx); err != nil {
		if govrewards.IsAlreadyReclaimed(err) {
			log.Info("crank/reclaim: option already reclaimed")
			return skip(errAlreadyReclaimed)
		}
		return fmt.Errorf("failed to submit reclaim: %w", err)
	}
	log.Info("crank/reclaim: reclaimed")
	return nil
}
