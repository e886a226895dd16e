package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"FinPulse/internal/domain/models"
	domrepo "FinPulse/internal/domain/repository"
)

const sqliteDedupSchema = `CREATE TABLE IF NOT EXISTS dedup_entries (
	key TEXT PRIMARY KEY,
	rule_id TEXT NOT NULL,
	fired_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
)`

// SQLiteDedupStore persists dedup entries in a local file so one-shot
// `analyze` runs share cooldowns.
type SQLiteDedupStore struct {
	db *sql.DB
}

// OpenSQLiteDedupStore opens (or creates) the database at path. ":memory:"
// works for tests.
func OpenSQLiteDedupStore(ctx context.Context, path string) (*SQLiteDedupStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s, err := NewSQLiteDedupStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func NewSQLiteDedupStore(ctx context.Context, db *sql.DB) (*SQLiteDedupStore, error) {
	if _, err := db.ExecContext(ctx, sqliteDedupSchema); err != nil {
		return nil, fmt.Errorf("init dedup schema: %w", err)
	}
	return &SQLiteDedupStore{db: db}, nil
}

func (s *SQLiteDedupStore) Lookup(ctx context.Context, key string) (models.DedupEntry, bool, error) {
	var (
		e                models.DedupEntry
		fired, expiresAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, rule_id, fired_at, expires_at FROM dedup_entries WHERE key = ?`, key,
	).Scan(&e.Key, &e.RuleID, &fired, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.DedupEntry{}, false, nil
	}
	if err != nil {
		return models.DedupEntry{}, false, fmt.Errorf("dedup lookup %s: %w", key, err)
	}
	e.FiredAt = time.Unix(0, fired).UTC()
	e.ExpiresAt = time.Unix(0, expiresAt).UTC()
	return e, true, nil
}

// Record replaces any entry for the key.
func (s *SQLiteDedupStore) Record(ctx context.Context, e models.DedupEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO dedup_entries (key, rule_id, fired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET rule_id = excluded.rule_id, fired_at = excluded.fired_at, expires_at = excluded.expires_at`,
		e.Key, e.RuleID, e.FiredAt.UnixNano(), e.ExpiresAt.UnixNano())
	if err != nil {
		return fmt.Errorf("dedup record %s: %w", e.Key, err)
	}
	return nil
}

func (s *SQLiteDedupStore) Evict(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM dedup_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("dedup evict %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteDedupStore) Close() error {
	return s.db.Close()
}

var _ domrepo.DedupStore = (*SQLiteDedupStore)(nil)
