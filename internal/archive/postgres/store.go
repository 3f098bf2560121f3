// Package postgres archives canonical records into a Postgres table keyed by
// record id, so the history outlives the remote store's destructive replace.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/coursesync/internal/listing"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Begin(context.Context) (pgx.Tx, error)
	Close()
}

// Store upserts records into one table.
type Store struct {
	pool  pool
	table string
}

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("archive.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool builds a Store from an existing pool.
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "courses"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the archive table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	provider     TEXT NOT NULL,
	course_date  DATE,
	course_time  TEXT NOT NULL DEFAULT '',
	location     TEXT NOT NULL,
	price        NUMERIC(10,2),
	course_type  TEXT NOT NULL,
	link         TEXT NOT NULL DEFAULT '',
	region       TEXT NOT NULL,
	last_updated TIMESTAMPTZ NOT NULL,
	run_id       TEXT NOT NULL DEFAULT ''
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("ensure archive schema: %w", err)
	}
	return nil
}

// Upsert writes records in one transaction and returns how many rows changed.
func (s *Store) Upsert(ctx context.Context, runID string, records []listing.CanonicalRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, title, provider, course_date, course_time, location,
	price, course_type, link, region, last_updated, run_id
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	provider = EXCLUDED.provider,
	course_date = EXCLUDED.course_date,
	course_time = EXCLUDED.course_time,
	location = EXCLUDED.location,
	price = EXCLUDED.price,
	course_type = EXCLUDED.course_type,
	link = EXCLUDED.link,
	region = EXCLUDED.region,
	last_updated = EXCLUDED.last_updated,
	run_id = EXCLUDED.run_id`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin archive tx: %w", err)
	}

	affected := 0
	for _, rec := range records {
		tag, err := tx.Exec(ctx, query,
			rec.ID,
			rec.Title,
			rec.Provider,
			rec.Date,
			rec.Time,
			rec.Location,
			rec.Price,
			rec.Type,
			rec.Link,
			rec.Region,
			rec.LastUpdated,
			runID,
		)
		if err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("upsert course %s: %w", rec.ID, err)
		}
		affected += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit archive tx: %w", err)
	}
	return affected, nil
}
