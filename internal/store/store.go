// Package store is the durable local store behind offline mode: a SQLite
// database with a single-slot dashboard snapshot table and an append-only
// action queue whose identifiers are assigned by the database.
//
// Every exported operation is a single statement or a single transaction,
// so each is atomic on its own. No transaction spans two operations; the
// sync engine relies on deletion by identifier to stay correct when an
// enqueue interleaves with a drain.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// dirPerms restricts the state directory to the owner.
const dirPerms = 0o700

// sqlitePageSize is fixed so max_store_size maps to a page count.
const sqlitePageSize = 4096

// Options bound the store. Zero values mean unlimited.
type Options struct {
	MaxQueueSize  int   // reject enqueue once this many actions are pending
	MaxStoreBytes int64 // SQLite max_page_count * page size
}

// Store is the durable store. It is safe for concurrent use: the database
// handle is shared with SetMaxOpenConns(1), so statements are serialized.
type Store struct {
	path    string
	opts    Options
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests

	mu gosync.Mutex
	db *sql.DB
}

// New returns a Store for the database at path. Nothing is touched on disk
// until Open, or until the first operation opens it lazily.
func New(path string, opts Options, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		path:    path,
		opts:    opts,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Open initializes the database and its tables. It is idempotent: after the
// first success, later calls return nil immediately. A failed Open leaves
// the store closed so a later call can try again. Any failure is reported
// as ErrStorageUnavailable.
func (s *Store) Open(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// conn returns the open database handle, opening it on first use.
func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s.db, nil
	}

	db, err := s.openDB(ctx)
	if err != nil {
		return nil, err
	}

	s.db = db

	return db, nil
}

func (s *Store) openDB(ctx context.Context) (*sql.DB, error) {
	if s.path == "" {
		return nil, fmt.Errorf("%w: empty database path", ErrStorageUnavailable)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return nil, fmt.Errorf("%w: creating %s: %w", ErrStorageUnavailable, dir, err)
	}

	db, err := sql.Open("sqlite", s.dsn())
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", ErrStorageUnavailable, s.path, err)
	}

	// Sole-writer pattern: only one connection, so statements serialize.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: connecting to %s: %w", ErrStorageUnavailable, s.path, err)
	}

	if err := migrate(ctx, db, s.logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	s.logger.Debug("store opened", slog.String("db_path", s.path))

	return db, nil
}

// dsn builds the connection string. Pragmas in the DSN apply to every
// connection the pool opens. WAL with synchronous=FULL makes every commit
// durable before the call returns.
func (s *Store) dsn() string {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=page_size(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		s.path, sqlitePageSize,
	)

	if s.opts.MaxStoreBytes > 0 {
		pages := max(s.opts.MaxStoreBytes/sqlitePageSize, 1)
		dsn += fmt.Sprintf("&_pragma=max_page_count(%d)", pages)
	}

	return dsn
}

// Close closes the database. Closing a store that was never opened is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil

	if err != nil {
		return fmt.Errorf("store: closing database: %w", err)
	}

	return nil
}

// classifyWrite maps SQLite failures on a write to the store's sentinels.
func classifyWrite(op string, err error) error {
	switch {
	case isFull(err):
		return fmt.Errorf("%w: %s: %w", ErrStorageQuotaExceeded, op, err)
	case isUnavailable(err):
		return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
	default:
		return fmt.Errorf("store: %s: %w", op, err)
	}
}
