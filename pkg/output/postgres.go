package output

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dd0wney/netharness/pkg/workflow"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Execer runs a statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresRecorder stores every finished sweep point in the harness_loss
// table. It implements workflow.RowRecorder.
type PostgresRecorder struct {
	db       Execer
	pool     *pgxpool.Pool // nil when built around an Execer
	runID    string
	protocol string
	digest   string
}

// NewPostgresRecorder connects to databaseURL and creates the table if
// needed.
func NewPostgresRecorder(ctx context.Context, databaseURL, runID string, p *workflow.Protocol) (*PostgresRecorder, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// rows arrive one per sweep point, a small pool is plenty
	config.MaxConns = 4
	config.MinConns = 1
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	r := NewPostgresRecorderWithExecer(pool, runID, p)
	r.pool = pool
	if err := r.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return r, nil
}

// NewPostgresRecorderWithExecer builds a recorder around db without
// migrating.
func NewPostgresRecorderWithExecer(db Execer, runID string, p *workflow.Protocol) *PostgresRecorder {
	return &PostgresRecorder{db: db, runID: runID, protocol: p.Name, digest: p.Digest}
}

// Migrate creates the loss table.
func (r *PostgresRecorder) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS harness_loss (
		run_id TEXT NOT NULL,
		protocol TEXT NOT NULL,
		digest TEXT NOT NULL,
		point INTEGER NOT NULL,
		variables TEXT NOT NULL,
		variable_values DOUBLE PRECISION[] NOT NULL,
		real_loss DOUBLE PRECISION,
		not_real_loss DOUBLE PRECISION,
		rate_loss DOUBLE PRECISION,
		replicates INTEGER NOT NULL,
		elapsed_ms BIGINT NOT NULL,
		restored BOOLEAN NOT NULL DEFAULT FALSE,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (run_id, point)
	);

	CREATE INDEX IF NOT EXISTS idx_harness_loss_digest ON harness_loss(digest);
	`

	_, err := r.db.Exec(ctx, schema)
	return err
}

// RecordRow implements workflow.RowRecorder.
func (r *PostgresRecorder) RecordRow(ctx context.Context, variables []string, row workflow.Row) error {
	query := `
		INSERT INTO harness_loss (run_id, protocol, digest, point, variables, variable_values,
			real_loss, not_real_loss, rate_loss, replicates, elapsed_ms, restored)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (run_id, point) DO UPDATE SET
			real_loss = EXCLUDED.real_loss,
			not_real_loss = EXCLUDED.not_real_loss,
			rate_loss = EXCLUDED.rate_loss,
			replicates = EXCLUDED.replicates,
			elapsed_ms = EXCLUDED.elapsed_ms,
			restored = EXCLUDED.restored,
			recorded_at = now()
	`

	values := row.Values
	if values == nil {
		values = []float64{}
	}
	_, err := r.db.Exec(ctx, query,
		r.runID,
		r.protocol,
		r.digest,
		row.Point,
		strings.Join(variables, ";"),
		values,
		row.RealLoss,
		row.NotRealLoss,
		row.RateLoss,
		row.Replicates,
		row.Elapsed.Milliseconds(),
		row.Restored,
	)
	if err != nil {
		return fmt.Errorf("failed to record point %d: %w", row.Point, err)
	}
	return nil
}

// Close closes the connection pool, if the recorder owns one.
func (r *PostgresRecorder) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}
