package cooldown

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLite keeps entries in the cooldowns table so restarts do not re-send alerts
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps a database opened with database.Open
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) Allow(ctx context.Context, kind, region, item string, window time.Duration, now time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin cooldown tx: %w", err)
	}
	defer tx.Rollback()

	prev, found, err := lastEntry(ctx, tx, kind)
	if err != nil {
		return false, err
	}
	if !decide(prev, found, region, item, window, now) {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO cooldowns (kind, region, item, sent_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET region = excluded.region, item = excluded.item, sent_at = excluded.sent_at
	`, kind, region, item, now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("saving cooldown: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit cooldown: %w", err)
	}
	return true, nil
}

func (s *SQLite) Last(ctx context.Context, kind string) (Entry, bool, error) {
	return lastEntry(ctx, s.db, kind)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lastEntry(ctx context.Context, q queryer, kind string) (Entry, bool, error) {
	var (
		e      Entry
		sentAt int64
	)
	err := q.QueryRowContext(ctx, `SELECT region, item, sent_at FROM cooldowns WHERE kind = ?`, kind).
		Scan(&e.Region, &e.Item, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("reading cooldown: %w", err)
	}
	e.At = time.UnixMilli(sentAt)
	return e, true, nil
}
