// Package store provides the transactional, range-indexed persistence layer
// described in spec.md §3/§4.1: articles, the category catalog, metadata-day
// records, gaps, smart categories, per-language summaries, analysis
// verdicts, and the delivery log.
//
// Every unit of work goes through WithSession, which opens a *sql.Tx at
// read-committed or stronger isolation, hands the caller a *Session, and
// commits on success or rolls back on error/panic — the scoped transaction
// abstraction spec.md §4.1 calls for.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps the underlying SQLite connection pool.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS categories (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS articles (
	id INTEGER PRIMARY KEY,
	url TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	body_path TEXT NOT NULL DEFAULT '',
	skipped INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_articles_timestamp ON articles(timestamp);
CREATE INDEX IF NOT EXISTS idx_articles_pending
	ON articles(timestamp) WHERE body_path = '' AND skipped = 0 AND failed = 0;

CREATE TABLE IF NOT EXISTS article_categories (
	article_id INTEGER NOT NULL REFERENCES articles(id),
	category_name TEXT NOT NULL REFERENCES categories(name),
	PRIMARY KEY (article_id, category_name)
);

CREATE TABLE IF NOT EXISTS day_index_records (
	date TEXT PRIMARY KEY,
	path TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS gaps (
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	PRIMARY KEY (start_date, end_date)
);

CREATE TABLE IF NOT EXISTS smart_categories (
	name TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	ignore_flag INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS verdicts (
	article_id INTEGER PRIMARY KEY REFERENCES articles(id),
	timestamp DATETIME NOT NULL,
	relation TEXT NOT NULL,
	category TEXT NOT NULL REFERENCES smart_categories(name),
	skipped INTEGER NOT NULL DEFAULT 0,
	failed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_verdicts_timestamp ON verdicts(timestamp);

CREATE TABLE IF NOT EXISTS summaries (
	article_id INTEGER NOT NULL REFERENCES verdicts(article_id),
	lang TEXT NOT NULL,
	path TEXT NOT NULL,
	PRIMARY KEY (article_id, lang)
);

CREATE TABLE IF NOT EXISTS deliveries (
	article_id INTEGER PRIMARY KEY REFERENCES verdicts(article_id),
	timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deliveries_timestamp ON deliveries(timestamp);
`

// Open opens (creating if necessary) the SQLite database at dsn and applies
// the schema migration inside a single transaction.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writers, avoid SQLITE_BUSY

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin migration: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: apply schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit migration: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Session is a single unit-of-work handle: a transaction plus the typed
// query methods the rest of the package exposes as Session methods.
type Session struct {
	tx *sql.Tx
}

// WithSession opens a transaction, invokes fn with a *Session bound to it,
// and commits on success. Any error returned by fn, or a panic inside fn,
// rolls the transaction back; panics are re-raised after rollback.
func (s *Store) WithSession(ctx context.Context, fn func(ctx context.Context, sess *Session) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("store: begin session: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &Session{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit session: %w", err)
	}
	return nil
}
