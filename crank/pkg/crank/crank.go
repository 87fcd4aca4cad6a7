package crank

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/failure"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/govrewards"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/ledger"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/metrics"
	"github.com/malbeclabs/govrewards-crank/crank/pkg/vsr"
	"github.com/malbeclabs/govrewards-crank/utils/pkg/retry"
)

var (
	ErrNoRegistrar = errors.New("distribution has no registrar")
	ErrNoAdmin     = errors.New("admin is required to reclaim funds")

	errAlreadyRegistered = errors.New("already registered")
	errAlreadyClaimed    = errors.New("already claimed")
)

// Crank runs the register, claim and reclaim workflows of one distribution.
type Crank struct {
	log      *slog.Logger
	cfg      Config
	registry vsr.Program
}

func New(cfg Config) (*Crank, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Crank{
		log:      cfg.Logger,
		cfg:      cfg,
		registry: vsr.Program{ID: cfg.VSRProgramID},
	}, nil
}

// Run runs workflows in order, or DefaultWorkflows when none are given, and
// stops at the first fatal failure. Reports of the runs that happened are
// returned either way.
func (c *Crank) Run(ctx context.Context, workflows ...Workflow) ([]Report, error) {
	if len(workflows) == 0 {
		workflows = DefaultWorkflows
	}
	reports := make([]Report, 0, len(workflows))
	for _, wf := range workflows {
		report, err := c.RunWorkflow(ctx, wf)
		reports = append(reports, report)
		if err != nil {
			return reports, fmt.Errorf("%s: %w", wf, err)
		}
	}
	return reports, nil
}

// RunWorkflow runs a single workflow.
func (c *Crank) RunWorkflow(ctx context.Context, wf Workflow) (Report, error) {
	switch wf {
	case WorkflowRegister:
		return c.Register(ctx)
	case WorkflowClaim:
		return c.Claim(ctx)
	case WorkflowReclaim:
		return c.Reclaim(ctx)
	default:
		return Report{Workflow: wf}, fmt.Errorf("unknown workflow %q", wf)
	}
}

// batch is the state of one workflow run.
type batch struct {
	log      *slog.Logger
	workflow Workflow
	snap     Snapshot
	tally    tally
}

// run loads the distribution snapshot and hands it to body. The returned error,
// if any, is always a *failure.Fatal.
func (c *Crank) run(ctx context.Context, wf Workflow, body func(ctx context.Context, b *batch) error) (Report, error) {
	report := Report{
		RunID:        uuid.New(),
		Workflow:     wf,
		Distribution: c.cfg.Distribution,
		StartedAt:    c.cfg.Clock.Now(),
	}
	log := c.log.With("workflow", string(wf), "run_id", report.RunID.String())
	log.Info("crank: run started", "distribution", c.cfg.Distribution)

	err := func() error {
		snap, err := c.loadSnapshot(ctx)
		if err != nil {
			return err
		}
		b := &batch{log: log, workflow: wf, snap: snap}
		defer b.tally.fill(&report)
		return body(ctx, b)
	}()
	_, err = failure.MustSucceed(struct{}{}, err)

	report.FinishedAt = c.cfg.Clock.Now()
	report.Err = err
	c.finish(ctx, log, report)
	return report, err
}

func (c *Crank) finish(ctx context.Context, log *slog.Logger, report Report) {
	wf := string(report.Workflow)
	metrics.RunsTotal.WithLabelValues(wf, report.Status()).Inc()
	metrics.RunDuration.WithLabelValues(wf).Observe(report.Duration().Seconds())
	metrics.LastRunDegradations.WithLabelValues(wf).Set(float64(report.Degraded))
	if report.Err == nil {
		metrics.LastSuccessTimestamp.WithLabelValues(wf).Set(float64(report.FinishedAt.Unix()))
	}

	attrs := []any{
		"status", report.Status(),
		"processed", report.Processed,
		"succeeded", report.Succeeded,
		"degraded", report.Degraded,
		"skipped", report.Skipped,
		"duration", report.Duration().String(),
	}
	switch {
	case report.Err != nil:
		log.Error("crank: run aborted", append(attrs, "error", report.Err)...)
	case report.Degraded > 0:
		log.Warn("crank: run completed with degradations", attrs...)
	default:
		log.Info("crank: run completed", attrs...)
	}

	for _, sink := range c.cfg.Sinks {
		// Sinks must not turn a finished run into a failed one.
		if err := sink.RecordReport(context.WithoutCancel(ctx), report); err != nil {
			log.Warn("crank: failed to record report", "sink", fmt.Sprintf("%T", sink), "error", err)
		}
	}
}

// loadSnapshot reads the distribution. Any failure is fatal: without the
// distribution there is nothing meaningful to do.
func (c *Crank) loadSnapshot(ctx context.Context) (Snapshot, error) {
	acc, err := failure.MustSucceed(c.cfg.Ledger.GetAccount(ctx, c.cfg.Distribution))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to load distribution %s: %w", c.cfg.Distribution, err)
	}
	dist, err := failure.MustSucceed(govrewards.DecodeDistribution(acc.Data))
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode distribution %s: %w", c.cfg.Distribution, err)
	}
	programID := c.cfg.RewardsProgramID
	if programID.IsZero() {
		programID = acc.Owner
	}
	return Snapshot{
		Address:      c.cfg.Distribution,
		Program:      govrewards.Program{ID: programID},
		Distribution: dist,
	}, nil
}

// process runs fn for every entity of seq and folds the outcomes into b. The
// first fatal outcome stops the batch: with concurrency 1 no further entity is
// touched; with more, entities not yet started are abandoned and those in flight
// are drained before the fatal failure is returned.
func process[E any](ctx context.Context, c *Crank, b *batch, seq iter.Seq2[E, error], key func(E) solana.PublicKey, fn func(context.Context, E) error) error {
	handle := func(ctx context.Context, e E) error {
		return b.record(key(e), fn(ctx, e))
	}

	if c.cfg.Concurrency <= 1 {
		for e, err := range seq {
			if err != nil {
				_, err = failure.MustSucceed(e, err)
				return fmt.Errorf("failed to enumerate entities: %w", err)
			}
			if err := handle(ctx, e); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	var scanErr error
	for e, err := range seq {
		if err != nil {
			_, err = failure.MustSucceed(e, err)
			scanErr = fmt.Errorf("failed to enumerate entities: %w", err)
			break
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			return handle(gctx, e)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return scanErr
}

// record classifies the outcome of one entity. It returns a non-nil error only
// for fatal outcomes.
func (b *batch) record(entity solana.PublicKey, err error) error {
	wf := string(b.workflow)
	log := b.log.With("entity", entity)

	degraded, fatalErr := failure.Assess(err)
	switch {
	case fatalErr != nil:
		b.tally.add(1, 0, 0, 0)
		metrics.OutcomesTotal.WithLabelValues(wf, "fatal").Inc()
		log.Error("crank: fatal failure, aborting batch", "error", err)
		return fmt.Errorf("entity %s: %w", entity, fatalErr)
	case degraded > 0:
		b.tally.add(1, 0, degraded, 0)
		metrics.OutcomesTotal.WithLabelValues(wf, "degraded").Inc()
		log.Warn("crank: possible degradation", "error", err)
	case err != nil:
		b.tally.add(1, 0, 0, 1)
		metrics.OutcomesTotal.WithLabelValues(wf, "skipped").Inc()
		log.Info("crank: skipped", "reason", err)
	default:
		b.tally.add(1, 1, 0, 0)
		metrics.OutcomesTotal.WithLabelValues(wf, "succeeded").Inc()
		log.Debug("crank: succeeded")
	}
	return nil
}

// submit sends tx, pacing and retrying as configured.
func (c *Crank) submit(ctx context.Context, log *slog.Logger, tx ledger.Transaction) error {
	cfg := c.cfg.DegradedRetry
	cfg.Retryable = failure.IsPossibleDegradation
	cfg.Clock = c.cfg.Clock

	attempt := 0
	return retry.Do(ctx, cfg, func() error {
		attempt++
		if c.cfg.SubmitLimiter != nil {
			if err := c.cfg.SubmitLimiter.Wait(ctx); err != nil {
				return err
			}
		}
		sig, err := c.cfg.Ledger.Submit(ctx, tx)
		if err != nil {
			if attempt > 1 || cfg.MaxAttempts > 1 {
				log.Debug("crank: submission attempt failed", "attempt", attempt, "error", err)
			}
			return err
		}
		log.Debug("crank: submitted", "signature", sig)
		return nil
	})
}

// skip marks an entity that needs no submission.
func skip(reason error) error {
	return &failure.Skip{Err: reason}
}

// fatal marks an entity whose processing cannot continue safely.
func fatal(err error) error {
	return &failure.Fatal{Err: err}
}
