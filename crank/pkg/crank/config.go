package crank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/vsr"
	"github.com/malbeclabs/govrewards-crank/utils/pkg/retry"
)

// Workflow names one crank step.
type Workflow string

const (
	WorkflowRegister Workflow = "register"
	WorkflowClaim    Workflow = "claim"
	WorkflowReclaim  Workflow = "reclaim"
)

// DefaultWorkflows is what a crank invocation runs when none are named.
// Reclaim is an admin operation and only runs on request.
var DefaultWorkflows = []Workflow{WorkflowRegister, WorkflowClaim}

func ParseWorkflow(s string) (Workflow, error) {
	switch w := Workflow(strings.ToLower(strings.TrimSpace(s))); w {
	case WorkflowRegister, WorkflowClaim, WorkflowReclaim:
		return w, nil
	default:
		return "", fmt.Errorf("unknown workflow %q (expected register, claim or reclaim)", s)
	}
}

// ReportSink receives the report of every workflow run.
type ReportSink interface {
	RecordReport(ctx context.Context, r Report) error
}

type Config struct {
	Logger *slog.Logger
	Clock  clockwork.Clock
	Ledger ledger.Client

	Distribution solana.PublicKey
	// RewardsProgramID defaults to the owner of the distribution account.
	RewardsProgramID solana.PublicKey
	// VSRProgramID defaults to the mainnet voter stake registry.
	VSRProgramID solana.PublicKey

	Payer solana.PublicKey
	// Admin signs reclaims. Only required for the reclaim workflow.
	Admin solana.PublicKey

	// Concurrency bounds how many entities are processed at once. Defaults to 1.
	Concurrency int
	// SubmitLimiter paces submissions when set.
	SubmitLimiter *rate.Limiter
	// DegradedRetry retries submissions that failed with a possible degradation.
	// MaxAttempts of 0 or 1 means degradations are only counted.
	DegradedRetry retry.Config

	Sinks []ReportSink
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Ledger == nil {
		return errors.New("ledger client is required")
	}
	if cfg.Distribution.IsZero() {
		return errors.New("distribution is required")
	}
	if cfg.Payer.IsZero() {
		return errors.New("payer is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.VSRProgramID.IsZero() {
		cfg.VSRProgramID = vsr.ProgramID
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return nil
}
