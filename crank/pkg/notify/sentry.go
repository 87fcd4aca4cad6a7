package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/crank"
)

type SentryConfig struct {
	Logger *slog.Logger
	// Hub defaults to sentry.CurrentHub().
	Hub *sentry.Hub
}

func (cfg *SentryConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Hub == nil {
		cfg.Hub = sentry.CurrentHub()
	}
	return nil
}

// Sentry reports aborted runs as exceptions. Other runs are ignored.
type Sentry struct {
	log *slog.Logger
	cfg SentryConfig
}

func NewSentry(cfg SentryConfig) (*Sentry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sentry{log: cfg.Logger, cfg: cfg}, nil
}

func (s *Sentry) RecordReport(_ context.Context, r crank.Report) error {
	if r.Err == nil {
		return nil
	}
	hub := s.cfg.Hub.Clone()
	var id *sentry.EventID
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("workflow", string(r.Workflow))
		scope.SetTag("distribution", r.Distribution.String())
		scope.SetTag("run_id", r.RunID.String())
		scope.SetContext("report", sentry.Context{
			"processed": r.Processed,
			"succeeded": r.Succeeded,
			"degraded":  r.Degraded,
			"skipped":   r.Skipped,
			"duration":  r.Duration().String(),
		})
		id = hub.CaptureException(r.Err)
	})
	if id != nil {
		s.log.Debug("notify/sentry: captured aborted run", "run_id", r.RunID, "event_id", string(*id))
	}
	return nil
}
