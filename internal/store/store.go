// Package store owns the single embedded-database file shared by the
// Cache Store and Event Log: one handle, opened once at run start and
// closed at run end, with WAL mode enabled. The handle is limited to one
// open connection, so reads and writes are serialized through it.
package store

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Handle wraps the shared *sql.DB and its on-disk path.
type Handle struct {
	DB   *sql.DB
	Path string
}

// Open creates (if absent) and migrates the embedded store file at path.
// WAL journaling is enabled, but the pool is capped at a single
// connection, so readers do not run concurrently with the writer: every
// query and write waits its turn for that connection.
func Open(path string) (*Handle, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// The write path is serialized by WAL semantics; a single connection
	// avoids "database is locked" contention under modernc.org/sqlite's
	// driver, which does not pool writes internally.
	db.SetMaxOpenConns(1)

	h := &Handle{DB: db, Path: path}
	if err := h.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return h, nil
}

func (h *Handle) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			run_id     TEXT NOT NULL,
			sequence   INTEGER NOT NULL,
			kind       TEXT NOT NULL,
			status     TEXT NOT NULL,
			message    TEXT NOT NULL,
			metadata   TEXT NOT NULL,
			timestamp  INTEGER NOT NULL,
			PRIMARY KEY (run_id, sequence)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_run_sequence ON events(run_id, sequence)`,

		`CREATE TABLE IF NOT EXISTS enrichment_cache (
			url_hash   TEXT PRIMARY KEY,
			url        TEXT NOT NULL,
			payload    BLOB NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_enrichment_created_at ON enrichment_cache(created_at)`,

		`CREATE TABLE IF NOT EXISTS fetch_cache (
			url_hash   TEXT PRIMARY KEY,
			url        TEXT NOT NULL,
			payload    BLOB NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fetch_created_at ON fetch_cache(created_at)`,

		`CREATE TABLE IF NOT EXISTS discovery_cache (
			url_hash   TEXT PRIMARY KEY,
			url        TEXT NOT NULL,
			payload    BLOB NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_discovery_created_at ON discovery_cache(created_at)`,

		// Reserved for a future trend component; created to match the
		// documented persisted-state layout but never written by this run.
		`CREATE TABLE IF NOT EXISTS opportunity_history (
			niche           TEXT NOT NULL,
			region          TEXT NOT NULL,
			domain          TEXT NOT NULL,
			discovered_at   INTEGER NOT NULL,
			relevance_score REAL NOT NULL,
			allowed         INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := h.DB.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt, err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (h *Handle) Close() error {
	return h.DB.Close()
}
