// Package emergencybuffer is the last-resort, on-disk store that the
// resilient data I/O layer spills CRITICAL writes into when the primary
// provider is unhealthy or refuses them; the fallback provider is not tried
// for those writes. It is intentionally dumb: it
// records intent and payload, then waits for the background sync loop to
// drain it once a provider recovers.
package emergencybuffer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Read when key has no buffered entry.
var ErrNotFound = errors.New("emergency buffer: key not found")

const schema = `
CREATE TABLE IF NOT EXISTS emergency_buffer (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	key          TEXT NOT NULL UNIQUE,
	data         TEXT NOT NULL,
	intent       TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	pending_sync INTEGER NOT NULL DEFAULT 1
)`

// Entry is one buffered write awaiting sync to a primary provider.
type Entry struct {
	ID          int64
	Key         string
	Data        []byte
	Intent      string
	CreatedAt   time.Time
	PendingSync bool
}

// Buffer is a SQLite-backed emergency write-ahead store. A Buffer opened
// with path == "" lives entirely in memory and does not survive restarts,
// which is acceptable only in tests.
type Buffer struct {
	db *sql.DB
}

// Open creates or attaches to the SQLite database at path and ensures the
// emergency_buffer schema exists. Pass "" for an in-memory buffer.
func Open(ctx context.Context, path string) (*Buffer, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("emergency buffer: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("emergency buffer: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("emergency buffer: create schema: %w", err)
	}

	return &Buffer{db: db}, nil
}

// Close releases the underlying database handle.
func (b *Buffer) Close() error {
	return b.db.Close()
}

// Write upserts key with the given data and intent tag, marking it pending
// sync. Writing an already-buffered key replaces its payload.
func (b *Buffer) Write(ctx context.Context, key string, data []byte, intent string) error {
	_, err := b.db.ExecContext(ctx, `
		INSERT INTO emergency_buffer (key, data, intent, created_at, pending_sync)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			intent = excluded.intent,
			created_at = excluded.created_at,
			pending_sync = 1
	`, key, string(data), intent, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("emergency buffer: write %q: %w", key, err)
	}
	return nil
}

// Read fetches the buffered entry for key, whether or not it has already
// synced.
func (b *Buffer) Read(ctx context.Context, key string) (*Entry, error) {
	row := b.db.QueryRowContext(ctx, `
		SELECT id, key, data, intent, created_at, pending_sync
		FROM emergency_buffer WHERE key = ?
	`, key)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("emergency buffer: read %q: %w", key, err)
	}
	return e, nil
}

// Delete removes key's buffered entry, if any.
func (b *Buffer) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM emergency_buffer WHERE key = ?`, key); err != nil {
		return fmt.Errorf("emergency buffer: delete %q: %w", key, err)
	}
	return nil
}

// ListPending returns up to limit entries still awaiting sync, oldest first,
// for the background sync loop to drain.
func (b *Buffer) ListPending(ctx context.Context, limit int) ([]*Entry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, key, data, intent, created_at, pending_sync
		FROM emergency_buffer
		WHERE pending_sync = 1
		ORDER BY created_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("emergency buffer: list pending: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("emergency buffer: scan pending row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MarkSynced flips pending_sync off for id, called once the sync loop has
// successfully replayed the entry to a primary provider.
func (b *Buffer) MarkSynced(ctx context.Context, id int64) error {
	if _, err := b.db.ExecContext(ctx, `UPDATE emergency_buffer SET pending_sync = 0 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("emergency buffer: mark synced %d: %w", id, err)
	}
	return nil
}

// PurgeSynced permanently deletes every entry that is no longer pending
// sync, reclaiming disk space.
func (b *Buffer) PurgeSynced(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx, `DELETE FROM emergency_buffer WHERE pending_sync = 0`)
	if err != nil {
		return 0, fmt.Errorf("emergency buffer: purge synced: %w", err)
	}
	return res.RowsAffected()
}

// PendingCount reports how many entries are currently awaiting sync.
func (b *Buffer) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := b.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM emergency_buffer WHERE pending_sync = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("emergency buffer: count pending: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var data string
	var pendingSync int
	if err := row.Scan(&e.ID, &e.Key, &data, &e.Intent, &e.CreatedAt, &pendingSync); err != nil {
		return nil, err
	}
	e.Data = []byte(data)
	e.PendingSync = pendingSync != 0
	return &e, nil
}
