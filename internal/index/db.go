// Package index provides the SQLite-backed note index: connection handling,
// schema, full-text search plumbing, and filesystem synchronization.
package index

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/mattn/go-sqlite3"
)

// DB owns the database file. It holds one read-write connection and opens a
// read-only connection lazily on first use.
type DB struct {
	path string
	rw   *sql.DB

	roOnce sync.Once
	roErr  error
	ro     *sql.DB
}

// Open opens (or creates) the SQLite database, applies pragma tuning, and
// bootstraps the schema_info table. The domain schema itself is created by
// the migration baseline (or InitSchema directly in tests).
//
// First-open contention can occur when multiple processes share a vault, so
// bootstrap statements are retried on "database is locked/busy" with bounded
// exponential backoff before giving up.
func Open(path string) (*DB, error) {
	rw, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between our own connections.
	rw.SetMaxOpenConns(1)

	db := &DB{path: path, rw: rw}
	if err := db.bootstrap(); err != nil {
		rw.Close()
		return nil, err
	}
	return db, nil
}

func (db *DB) bootstrap() error {
	op := func() error {
		if err := db.rw.Ping(); err != nil {
			return wrapBusy("ping", err)
		}
		if _, err := db.rw.Exec(`PRAGMA cache_size = -20000`); err != nil {
			return wrapBusy("cache pragma", err)
		}
		_, err := db.rw.Exec(`CREATE TABLE IF NOT EXISTS schema_info (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`)
		return wrapBusy("schema_info", err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 50 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithMaxRetries(bo, 5)); err != nil {
		return fmt.Errorf("index: bootstrap: %w", err)
	}
	return nil
}

// wrapBusy marks busy/locked errors as retryable and everything else as
// permanent so the backoff loop does not spin on real failures.
func wrapBusy(op string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database is busy") {
		return fmt.Errorf("index: %s: %w", op, err)
	}
	return backoff.Permanent(fmt.Errorf("index: %s: %w", op, err))
}

// Writer returns the read-write connection.
func (db *DB) Writer() *sql.DB { return db.rw }

// Reader returns the read-only connection, opening it on first call. Raw
// search queries run against this handle so they can never mutate the store.
func (db *DB) Reader() (*sql.DB, error) {
	db.roOnce.Do(func() {
		ro, err := sql.Open("sqlite3", "file:"+db.path+"?mode=ro&_busy_timeout=5000&_query_only=on")
		if err != nil {
			db.roErr = fmt.Errorf("index: open read-only: %w", err)
			return
		}
		db.ro = ro
	})
	return db.ro, db.roErr
}

// SchemaVersion returns the recorded schema version, or "" when none has
// been recorded yet.
func (db *DB) SchemaVersion() (string, error) {
	var v string
	err := db.rw.QueryRow(`SELECT value FROM schema_info WHERE key = 'version'`).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: read schema version: %w", err)
	}
	return v, nil
}

// SetSchemaVersion records the schema version.
func (db *DB) SetSchemaVersion(v string) error {
	_, err := db.rw.Exec(`INSERT INTO schema_info (key, value) VALUES ('version', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, v)
	if err != nil {
		return fmt.Errorf("index: set schema version: %w", err)
	}
	return nil
}

// Close closes both connections.
func (db *DB) Close() error {
	if db.ro != nil {
		_ = db.ro.Close()
	}
	return db.rw.Close()
}
