package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/crank"
)

// Runner runs crank workflows. It is implemented by *crank.Crank.
type Runner interface {
	Run(ctx context.Context, workflows ...crank.Workflow) ([]crank.Report, error)
}

// Loop runs the crank on an interval.
type Loop struct {
	log *slog.Logger
	cfg LoopConfig

	runMu     sync.Mutex
	readyOnce sync.Once
	readyCh   chan struct{}

	mu      sync.RWMutex
	lastErr error
	lastRun time.Time
}

func NewLoop(cfg LoopConfig) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Loop{
		log:     cfg.Logger,
		cfg:     cfg,
		readyCh: make(chan struct{}),
	}, nil
}

// Ready reports whether the first crank pass has finished.
func (l *Loop) Ready() bool {
	select {
	case <-l.readyCh:
		return true
	default:
		return false
	}
}

// LastRun returns when the last pass finished and the fatal failure it ended
// with, if any.
func (l *Loop) LastRun() (time.Time, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.lastRun, l.lastErr
}

func (l *Loop) Start(ctx context.Context) {
	go func() {
		l.log.Info("server/loop: starting crank loop", "interval", l.cfg.Interval)

		l.safeRunOnce(ctx)

		ticker := l.cfg.Clock.NewTicker(l.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				l.safeRunOnce(ctx)
			}
		}
	}()
}

func (l *Loop) safeRunOnce(ctx context.Context) {
	defer l.readyOnce.Do(func() { close(l.readyCh) })
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("server/loop: crank pass panicked", "panic", r)
		}
	}()

	if err := l.RunOnce(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		// A fatal pass is retried on the next tick.
		l.log.Error("server/loop: crank pass failed", "error", err)
	}
}

// RunOnce runs one crank pass.
func (l *Loop) RunOnce(ctx context.Context) error {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	_, err := l.cfg.Runner.Run(ctx, l.cfg.Workflows...)

	l.mu.Lock()
	l.lastRun = l.cfg.Clock.Now()
	l.lastErr = err
	l.mu.Unlock()
	return err
}
