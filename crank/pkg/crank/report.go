package crank

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

// Report summarises one workflow run. Degraded is the run's degradation count.
type Report struct {
	RunID        uuid.UUID
	Workflow     Workflow
	Distribution solana.PublicKey
	StartedAt    time.Time
	FinishedAt   time.Time

	Processed int
	Succeeded int
	Degraded  int
	Skipped   int

	// Err is the fatal failure that aborted the run, if any.
	Err error
}

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFatal    = "fatal"
)

func (r Report) Status() string {
	switch {
	case r.Err != nil:
		return StatusFatal
	case r.Degraded > 0:
		return StatusDegraded
	default:
		return StatusOK
	}
}

func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// tally accumulates outcomes; entities may finish concurrently.
type tally struct {
	mu        sync.Mutex
	processed int
	succeeded int
	degraded  int
	skipped   int
}

func (t *tally) add(processed, succeeded, degraded, skipped int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processed += processed
	t.succeeded += succeeded
	t.degraded += degraded
	t.skipped += skipped
}

func (t *tally) fill(r *Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r.Processed = t.processed
	r.Succeeded = t.succeeded
	r.Degraded = t.degraded
	r.Skipped = t.skipped
}
