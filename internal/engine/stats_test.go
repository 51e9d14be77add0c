package engine

import (
	"sync"
	"testing"
	"time"
)

func TestStatsSnapshotReflectsCounters(t *testing.T) {
	s := &Stats{StartTime: time.Now()}
	s.Attempted.Add(10)
	s.Succeeded.Add(7)
	s.Failed.Add(3)
	s.PolicyBlocked.Add(1)
	s.CacheHits.Add(5)
	s.CacheMisses.Add(5)

	snap := s.Snapshot()

	if snap["attempted"].(int64) != 10 {
		t.Errorf("attempted = %v, want 10", snap["attempted"])
	}
	if snap["succeeded"].(int64) != 7 {
		t.Errorf("succeeded = %v, want 7", snap["succeeded"])
	}
	if snap["failed"].(int64) != 3 {
		t.Errorf("failed = %v, want 3", snap["failed"])
	}
	if snap["cache_hits"].(int64) != 5 {
		t.Errorf("cache_hits = %v, want 5", snap["cache_hits"])
	}
	if _, ok := snap["elapsed"].(string); !ok {
		t.Error("expected elapsed to be a formatted duration string")
	}
}

func TestStatsConcurrentIncrementsAreConsistent(t *testing.T) {
	s := &Stats{StartTime: time.Now()}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Attempted.Add(1)
			s.Succeeded.Add(1)
		}()
	}
	wg.Wait()

	if s.Attempted.Load() != 100 {
		t.Errorf("expected 100 attempted, got %d", s.Attempted.Load())
	}
	if s.Succeeded.Load() != 100 {
		t.Errorf("expected 100 succeeded, got %d", s.Succeeded.Load())
	}
}
