package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/huntlines/marketscout/internal/store"
)

func openTestStore(t *testing.T) *store.Handle {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	h, err := store.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestStorePutAndLookup(t *testing.T) {
	h := openTestStore(t)
	s := New(h, "fetch_cache", time.Hour)
	ctx := context.Background()

	if _, ok := s.Lookup(ctx, "https://example.com"); ok {
		t.Fatal("expected a miss before any Put")
	}

	if err := s.Put(ctx, "https://example.com", []byte("payload")); err != nil {
		t.Fatalf("put: %v", err)
	}

	payload, ok := s.Lookup(ctx, "https://example.com")
	if !ok {
		t.Fatal("expected a hit after Put")
	}
	if string(payload) != "payload" {
		t.Errorf("got %q, want %q", payload, "payload")
	}
}

func TestStoreLookupTTLExpires(t *testing.T) {
	h := openTestStore(t)
	s := New(h, "fetch_cache", time.Hour)
	ctx := context.Background()

	if err := s.Put(ctx, "https://example.com", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, ok := s.LookupTTL(ctx, "https://example.com", time.Nanosecond); ok {
		t.Error("expected a miss once the entry is older than the given ttl")
	}
	if _, ok := s.LookupTTL(ctx, "https://example.com", time.Hour); !ok {
		t.Error("expected a hit when the ttl still covers the entry")
	}
}

func TestStorePutOverwritesExisting(t *testing.T) {
	h := openTestStore(t)
	s := New(h, "fetch_cache", time.Hour)
	ctx := context.Background()

	if err := s.Put(ctx, "https://example.com", []byte("first")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "https://example.com", []byte("second")); err != nil {
		t.Fatalf("put: %v", err)
	}

	payload, ok := s.Lookup(ctx, "https://example.com")
	if !ok || string(payload) != "second" {
		t.Errorf("expected last-writer-wins, got %q, ok=%v", payload, ok)
	}
}

func TestStoreRawLookupIgnoresTTL(t *testing.T) {
	h := openTestStore(t)
	s := New(h, "enrichment_cache", time.Nanosecond)
	ctx := context.Background()

	if err := s.Put(ctx, "https://example.com", []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, ok := s.Lookup(ctx, "https://example.com"); ok {
		t.Fatal("expected Lookup to respect the tiny default TTL")
	}

	payload, createdAt, ok := s.RawLookup(ctx, "https://example.com")
	if !ok {
		t.Fatal("expected RawLookup to find the row regardless of TTL")
	}
	if string(payload) != "x" {
		t.Errorf("got %q", payload)
	}
	if createdAt.IsZero() {
		t.Error("expected a non-zero created-at time")
	}
}

func TestStoreStats(t *testing.T) {
	h := openTestStore(t)
	s := New(h, "fetch_cache", time.Hour)
	ctx := context.Background()

	for _, u := range []string{"https://a.com", "https://b.com", "https://c.com"} {
		if err := s.Put(ctx, u, []byte("x")); err != nil {
			t.Fatalf("put %s: %v", u, err)
		}
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Live != 3 {
		t.Errorf("expected 3 live entries, got %d", stats.Live)
	}
	if stats.Expired != 0 {
		t.Errorf("expected 0 expired entries, got %d", stats.Expired)
	}
}

func TestStoreDiscoveryCacheSharesGenericSchema(t *testing.T) {
	h := openTestStore(t)
	s := New(h, "discovery_cache", 30*24*time.Hour)
	ctx := context.Background()

	if err := s.Put(ctx, "https://shopflex.shop", []byte(`{"confirmed":true}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, ok := s.Lookup(ctx, "https://shopflex.shop"); !ok {
		t.Error("expected a hit on the discovery cache table")
	}
}
