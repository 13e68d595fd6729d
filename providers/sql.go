package providers

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonwraymond/cachecore/health"
	"github.com/jonwraymond/cachecore/secret"
)

// SQLProvider is the reference L3 (persistent) storage provider, backed
// by a relational table. It does no background eviction or cleanup of
// its own: expired rows are only removed lazily, by the next Get that
// observes expires_at in the past, or by the caller's own maintenance
// job.
type SQLProvider struct {
	db    *sqlx.DB
	table string

	hits, misses, errs atomic.Int64
}

const createTableDDL = `
CREATE TABLE IF NOT EXISTS %s (
	key         TEXT PRIMARY KEY,
	value       BYTEA NOT NULL,
	tags        TEXT[] NOT NULL DEFAULT '{}',
	expires_at  TIMESTAMPTZ
)
`

// Open resolves dsnRef (a literal DSN, an env-var reference, or a
// "secretref:" reference — see package secret) via resolver and opens a
// SQLProvider against it, creating its backing table if absent.
func Open(ctx context.Context, resolver *secret.Resolver, dsnRef, table string) (*SQLProvider, error) {
	dsn, err := resolver.ResolveValue(ctx, dsnRef)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &SQLProvider{db: db, table: table}
	if _, err := db.ExecContext(ctx, sprintfDDL(createTableDDL, table)); err != nil {
		_ = db.Close()
		return nil, err
	}
	return p, nil
}

func sprintfDDL(ddl, table string) string {
	return fmt.Sprintf(ddl, table)
}

func (p *SQLProvider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var row struct {
		Value     []byte       `db:"value"`
		ExpiresAt sql.NullTime `db:"expires_at"`
	}
	q := fmt.Sprintf("SELECT value, expires_at FROM %s WHERE key = $1", p.table)
	err := p.db.GetContext(ctx, &row, q, key)
	if err == sql.ErrNoRows {
		p.misses.Add(1)
		return nil, false, nil
	}
	if err != nil {
		p.errs.Add(1)
		return nil, false, err
	}
	if row.ExpiresAt.Valid && row.ExpiresAt.Time.Before(time.Now()) {
		_ = p.Remove(ctx, key)
		p.misses.Add(1)
		return nil, false, nil
	}
	p.hits.Add(1)
	return row.Value, true, nil
}

func (p *SQLProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := time.Now().Add(ttl)
		expiresAt = &t
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (key, value, tags, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (key) DO UPDATE SET value = $2, tags = $3, expires_at = $4
	`, p.table)
	if _, err := p.db.ExecContext(ctx, q, key, value, pq.Array(tagsOrEmpty(tags)), expiresAt); err != nil {
		p.errs.Add(1)
		return err
	}
	return nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func (p *SQLProvider) Remove(ctx context.Context, key string) error {
	q := fmt.Sprintf("DELETE FROM %s WHERE key = $1", p.table)
	if _, err := p.db.ExecContext(ctx, q, key); err != nil {
		p.errs.Add(1)
		return err
	}
	return nil
}

// RemoveByTag is a non-atomic two-step delete: a SELECT of matching
// keys followed by a DELETE, since Postgres has no
// single statement that both identifies and atomically removes rows by
// an array-overlap predicate while also reporting which ones it removed
// to the caller's invalidation accounting. A failure between the two
// steps can leave some matching rows deleted and others not; the caller
// is expected to retry per its configured tier retry policy.
func (p *SQLProvider) RemoveByTag(ctx context.Context, tag string) error {
	var keys []string
	selectQ := fmt.Sprintf("SELECT key FROM %s WHERE tags && ARRAY[$1]", p.table)
	if err := p.db.SelectContext(ctx, &keys, selectQ, tag); err != nil {
		p.errs.Add(1)
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	deleteQ := fmt.Sprintf("DELETE FROM %s WHERE key = ANY($1)", p.table)
	if _, err := p.db.ExecContext(ctx, deleteQ, pq.Array(keys)); err != nil {
		p.errs.Add(1)
		return err
	}
	return nil
}

func (p *SQLProvider) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	q := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE key = $1)", p.table)
	if err := p.db.GetContext(ctx, &exists, q, key); err != nil {
		p.errs.Add(1)
		return false, err
	}
	return exists, nil
}

func (p *SQLProvider) Health(ctx context.Context) health.Result {
	start := time.Now()
	if err := p.db.PingContext(ctx); err != nil {
		return health.Result{
			Status:    health.StatusUnhealthy,
			Message:   "sql ping failed",
			Error:     err,
			Duration:  time.Since(start),
			Timestamp: time.Now(),
		}
	}
	return health.Result{
		Status:    health.StatusHealthy,
		Message:   "sql reachable",
		Duration:  time.Since(start),
		Timestamp: time.Now(),
	}
}

func (p *SQLProvider) Stats(ctx context.Context) (Stats, error) {
	return Stats{Hits: p.hits.Load(), Misses: p.misses.Load(), Errors: p.errs.Load()}, nil
}

func (p *SQLProvider) Close() error { return p.db.Close() }

var _ Provider = (*SQLProvider)(nil)
