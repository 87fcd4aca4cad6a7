package ledger

import (
	"context"
	"log/slog"

	"github.com/gagliardetto/solana-go"
)

// DryRun reads through to the wrapped client and logs transactions instead of
// submitting them.
type DryRun struct {
	Client
	log *slog.Logger
}

func NewDryRun(log *slog.Logger, c Client) *DryRun {
	return &DryRun{Client: c, log: log}
}

func (d *DryRun) Submit(_ context.Context, tx Transaction) (solana.Signature, error) {
	programs := make([]string, 0, len(tx.Instructions))
	for _, ix := range tx.Instructions {
		programs = append(programs, ix.ProgramID().String())
	}
	d.log.Info("ledger: dry run, transaction not submitted",
		"fee_payer", tx.FeePayer,
		"signers", len(tx.RequiredSigners()),
		"instructions", len(tx.Instructions),
		"programs", programs,
	)
	return solana.Signature{}, nil
}
