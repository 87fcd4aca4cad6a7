// Package history keeps the reports of past crank runs in PostgreSQL.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx driver with database/sql
	"github.com/pressly/goose/v3"

	"github.com/malbeclabs/govrewards-crank/crank/pkg/crank"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Migrate applies the history schema to the database at connStr.
func Migrate(ctx context.Context, log *slog.Logger, connStr string) error {
	log.Info("history: running migrations")

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info("history: migrations completed")
	return nil
}

// NewPool opens a connection pool and checks it is reachable.
func NewPool(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(pingCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	return pool, nil
}

type StoreConfig struct {
	Logger *slog.Logger
	Pool   *pgxpool.Pool
}

func (cfg *StoreConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Pool == nil {
		return errors.New("pool is required")
	}
	return nil
}

// Store records crank reports. It implements crank.ReportSink.
type Store struct {
	log *slog.Logger
	cfg StoreConfig
}

func NewStore(cfg StoreConfig) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{log: cfg.Logger, cfg: cfg}, nil
}

// Run is a stored report.
type Run struct {
	RunID        uuid.UUID
	Workflow     crank.Workflow
	Distribution solana.PublicKey
	Status       string
	StartedAt    time.Time
	FinishedAt   time.Time
	Processed    int
	Succeeded    int
	Degraded     int
	Skipped      int
	Error        string
}

func (s *Store) RecordReport(ctx context.Context, r crank.Report) error {
	var errText *string
	if r.Err != nil {
		msg := r.Err.Error()
		errText = &msg
	}
	_, err := s.cfg.Pool.Exec(ctx, `
		INSERT INTO crank_runs (
			run_id, workflow, distribution, status, started_at, finished_at,
			processed, succeeded, degraded, skipped, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id) DO NOTHING`,
		r.RunID, string(r.Workflow), r.Distribution.String(), r.Status(), r.StartedAt, r.FinishedAt,
		r.Processed, r.Succeeded, r.Degraded, r.Skipped, errText,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}
	s.log.Debug("history: recorded run", "run_id", r.RunID, "workflow", r.Workflow, "status", r.Status())
	return nil
}

// Recent returns up to limit runs of workflow for distribution, newest first.
func (s *Store) Recent(ctx context.Context, distribution solana.PublicKey, workflow crank.Workflow, limit int) ([]Run, error) {
	rows, err := s.cfg.Pool.Query(ctx, `
		SELECT run_id, workflow, status, started_at, finished_at,
			processed, succeeded, degraded, skipped, COALESCE(error, '')
		FROM crank_runs
		WHERE distribution = $1 AND workflow = $2
		ORDER BY started_at DESC
		LIMIT $3`,
		distribution.String(), string(workflow), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run := Run{Distribution: distribution}
		var wf string
		if err := rows.Scan(&run.RunID, &wf, &run.Status, &run.StartedAt, &run.FinishedAt,
			&run.Processed, &run.Succeeded, &run.Degraded, &run.Skipped, &run.Error); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		run.Workflow = crank.Workflow(wf)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}
	return runs, nil
}
