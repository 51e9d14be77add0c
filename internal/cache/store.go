// Package cache implements the Cache Store (C3): a SHA-256-keyed
// persistent key/value mapping with TTL, backed by the shared embedded
// database and safe under concurrent readers and writers.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/huntlines/marketscout/internal/store"
	"github.com/huntlines/marketscout/internal/types"
)

// Store is a view over one table of the shared embedded database. The
// fetch cache and the enrichment cache are each a distinct Store instance
// over their own table, sharing the same underlying *sql.DB handle (and
// therefore its WAL write serialization). TTL is a lookup-time parameter,
// not fixed per store: the fetch cache is always queried with the run's
// configured TTL, while the enrichment cache is queried with the
// shortest enabled provider's TTL for a given URL.
type Store struct {
	db         *sql.DB
	table      string
	defaultTTL time.Duration
}

// New builds a Store bound to table ("fetch_cache", "enrichment_cache" or
// "discovery_cache")
// with a default TTL used by Lookup/Stats when callers don't need a
// per-call override.
func New(h *store.Handle, table string, defaultTTL time.Duration) *Store {
	return &Store{db: h.DB, table: table, defaultTTL: defaultTTL}
}

// Lookup returns the payload for url using the store's default TTL.
func (s *Store) Lookup(ctx context.Context, url string) ([]byte, bool) {
	return s.LookupTTL(ctx, url, s.defaultTTL)
}

// LookupTTL returns the payload for url if a row exists and is within
// ttl. Any I/O error degrades to a miss, per the Cache Store's failure
// semantics: a cache-unavailable lookup is treated as absent.
func (s *Store) LookupTTL(ctx context.Context, url string, ttl time.Duration) ([]byte, bool) {
	key := KeyFor(url)

	var payload []byte
	var createdAtUnix int64
	query := `SELECT payload, created_at FROM ` + s.table + ` WHERE url_hash = ?`
	err := s.db.QueryRowContext(ctx, query, key).Scan(&payload, &createdAtUnix)
	if err != nil {
		return nil, false
	}

	createdAt := time.Unix(createdAtUnix, 0)
	if time.Since(createdAt) >= ttl {
		return nil, false
	}
	return payload, true
}

// RawLookup returns the payload for url and its created-at time with no
// TTL filtering applied, for callers (such as the enrichment
// orchestrator) that persist their own expiry alongside the payload.
func (s *Store) RawLookup(ctx context.Context, url string) ([]byte, time.Time, bool) {
	key := KeyFor(url)

	var payload []byte
	var createdAtUnix int64
	query := `SELECT payload, created_at FROM ` + s.table + ` WHERE url_hash = ?`
	err := s.db.QueryRowContext(ctx, query, key).Scan(&payload, &createdAtUnix)
	if err != nil {
		return nil, time.Time{}, false
	}
	return payload, time.Unix(createdAtUnix, 0), true
}

// Put upserts payload under url's key, setting created-at to now. A row
// already present (expired or not) is overwritten in place: last-writer-
// wins, with no separate eviction step.
func (s *Store) Put(ctx context.Context, url string, payload []byte) error {
	key := KeyFor(url)
	query := `INSERT INTO ` + s.table + ` (url_hash, url, payload, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(url_hash) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`
	_, err := s.db.ExecContext(ctx, query, key, url, payload, time.Now().Unix())
	if err != nil {
		return &types.CacheError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// Stats reports the live/expired composition of the table using the
// store's default TTL.
func (s *Store) Stats(ctx context.Context) (types.CacheStats, error) {
	cutoff := time.Now().Add(-s.defaultTTL).Unix()

	row := s.db.QueryRowContext(ctx, `SELECT
		SUM(CASE WHEN created_at >= ? THEN 1 ELSE 0 END),
		SUM(CASE WHEN created_at < ? THEN 1 ELSE 0 END)
		FROM `+s.table, cutoff, cutoff)

	var liveN, expiredN sql.NullInt64
	if err := row.Scan(&liveN, &expiredN); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.CacheStats{}, nil
		}
		return types.CacheStats{}, &types.CacheError{Op: "stats", Err: err}
	}
	return types.CacheStats{Live: int(liveN.Int64), Expired: int(expiredN.Int64)}, nil
}
