package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps threads in a single SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the checkpoint database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping checkpoint database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS threads (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		messages   TEXT NOT NULL,
		stats      TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_threads_updated ON threads(updated_at DESC);
	`)
	return err
}

// ListThreads implements Store.
func (s *SQLiteStore) ListThreads(ctx context.Context) ([]ThreadMeta, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM threads ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	out := []ThreadMeta{}
	for rows.Next() {
		var (
			m                ThreadMeta
			created, updated int64
		)
		if err := rows.Scan(&m.ID, &m.Title, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan thread: %w", err)
		}
		m.CreatedAt = time.UnixMilli(created)
		m.UpdatedAt = time.UnixMilli(updated)
		out = append(out, m)
	}
	return out, rows.Err()
}

// LoadThread implements Store.
func (s *SQLiteStore) LoadThread(ctx context.Context, id string) (Thread, error) {
	var (
		t                Thread
		msgs, stats      string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, messages, stats, created_at, updated_at FROM threads WHERE id = ?`, id,
	).Scan(&t.ID, &t.Title, &msgs, &stats, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Thread{}, fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	if err != nil {
		return Thread{}, fmt.Errorf("failed to load thread %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(msgs), &t.Messages); err != nil {
		return Thread{}, fmt.Errorf("failed to unmarshal messages of thread %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(stats), &t.Stats); err != nil {
		return Thread{}, fmt.Errorf("failed to unmarshal stats of thread %s: %w", id, err)
	}
	t.CreatedAt = time.UnixMilli(created)
	t.UpdatedAt = time.UnixMilli(updated)
	return t, nil
}

// SaveThread implements Store. The creation time of an existing thread is kept.
func (s *SQLiteStore) SaveThread(ctx context.Context, t Thread) error {
	if t.ID == "" {
		return errors.New("thread id is required")
	}
	if t.Title == "" {
		t.Title = TitleFrom(t.Messages)
	}
	now := time.Now()
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}

	msgs, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	stats, err := json.Marshal(t.Stats)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
	INSERT INTO threads (id, title, messages, stats, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title      = excluded.title,
		messages   = excluded.messages,
		stats      = excluded.stats,
		updated_at = excluded.updated_at`,
		t.ID, t.Title, string(msgs), string(stats), t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save thread %s: %w", t.ID, err)
	}
	return nil
}

// DeleteThread implements Store.
func (s *SQLiteStore) DeleteThread(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete thread %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrThreadNotFound, id)
	}
	return nil
}
