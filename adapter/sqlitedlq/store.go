// Package sqlitedlq persists failures of asynchronous xevent listeners to a
// SQLite table, for single-process deployments without Redis.
package sqlitedlq

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/trickstertwo/xevent"
)

var (
	ErrStoreClosed = errors.New("sqlitedlq: store is closed")
	ErrNotFound    = errors.New("sqlitedlq: record not found")
)

// Entry is one stored failure with its row ID.
type Entry struct {
	ID     int64
	Record xevent.FailureRecord
}

// Store writes failure records to the failed_listeners table.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool

	codec  xevent.Codec
	clock  xclock.Clock
	logger *xlog.Logger
}

// Option configures a Store.
type Option func(*Store)

func WithLogger(l *xlog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithClock(c xclock.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithCodec selects the payload codec (default: json).
func WithCodec(c xevent.Codec) Option {
	return func(s *Store) {
		if c != nil {
			s.codec = c
		}
	}
}

// Open creates or opens the store at path. Use ":memory:" for tests.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS failed_listeners (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			listener_id TEXT NOT NULL,
			listener TEXT NOT NULL DEFAULT '',
			event_id TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL DEFAULT '',
			correlation_id TEXT NOT NULL DEFAULT '',
			causation_id TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			codec TEXT NOT NULL DEFAULT '',
			payload BLOB,
			payload_error TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL,
			panic INTEGER NOT NULL DEFAULT 0,
			stack TEXT NOT NULL DEFAULT '',
			metadata TEXT NOT NULL DEFAULT '{}',
			failed_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_failed_listeners_listener
		ON failed_listeners(listener_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	s := &Store{
		db:     db,
		codec:  xevent.JSONCodec{},
		clock:  xclock.Default(),
		logger: xlog.Default(),
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s, nil
}

// Sink returns an xevent.ErrorSink storing every failure. Write errors are
// logged, never returned to the bus.
func (s *Store) Sink() xevent.ErrorSink {
	return func(err error, id xevent.ListenerID, e *xevent.Event) {
		rec := xevent.NewFailureRecord(s.codec, err, id, e, s.clock.Now())
		if _, werr := s.Write(context.Background(), rec); werr != nil {
			s.logger.Warn().
				Err(werr).
				Str("listener_id", rec.ListenerID).
				Str("event_id", rec.EventID).
				Msg("sqlitedlq: write failed")
		}
	}
}

// Use returns a builder option that sends async failures to the store and to
// the bus log.
func Use(s *Store) func(*xevent.BusBuilder) {
	return func(bb *xevent.BusBuilder) {
		bb.WithErrorSink(xevent.MultiSink(xevent.LogSink(s.logger), s.Sink()))
	}
}

// Write inserts a record and returns its row ID.
func (s *Store) Write(ctx context.Context, rec xevent.FailureRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}
	panicked := 0
	if rec.Panic {
		panicked = 1
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO failed_listeners (
			listener_id, listener, event_id, event_type, correlation_id, causation_id,
			source, codec, payload, payload_error, error, panic, stack, metadata, failed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ListenerID, rec.Listener, rec.EventID, rec.EventType, rec.CorrelationID, rec.CausationID,
		rec.Source, rec.Codec, rec.Payload, rec.PayloadError, rec.Error, panicked, rec.Stack,
		string(meta), rec.FailedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert failure: %w", err)
	}
	return res.LastInsertId()
}

const selectColumns = `
	id, listener_id, listener, event_id, event_type, correlation_id, causation_id,
	source, codec, payload, payload_error, error, panic, stack, metadata, failed_at`

// List returns up to limit records, oldest first. limit <= 0 lists everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `SELECT`+selectColumns+`
		FROM failed_listeners
		ORDER BY id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list failures: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		en, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, en)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate failures: %w", err)
	}
	return out, nil
}

// Get returns a single record.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Entry{}, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `SELECT`+selectColumns+`
		FROM failed_listeners WHERE id = ?
	`, id)
	en, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	return en, err
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failed_listeners`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}

// Delete removes a handled record.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM failed_listeners WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete failure: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the database. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (Entry, error) {
	var (
		en       Entry
		rec      xevent.FailureRecord
		panicked int
		meta     string
		failedAt string
	)
	if err := r.Scan(
		&en.ID, &rec.ListenerID, &rec.Listener, &rec.EventID, &rec.EventType, &rec.CorrelationID,
		&rec.CausationID, &rec.Source, &rec.Codec, &rec.Payload, &rec.PayloadError, &rec.Error,
		&panicked, &rec.Stack, &meta, &failedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan failure: %w", err)
	}
	rec.Panic = panicked != 0
	if meta != "" && meta != "null" {
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return Entry{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	rec.FailedAt, _ = time.Parse(time.RFC3339Nano, failedAt)
	en.Record = rec
	return en, nil
}
