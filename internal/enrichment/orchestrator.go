package enrichment

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/huntlines/marketscout/internal/cache"
	"github.com/huntlines/marketscout/internal/eventlog"
	"github.com/huntlines/marketscout/internal/ratelimit"
	"github.com/huntlines/marketscout/internal/types"
)

// Orchestrator fans a URL out to every enabled Provider concurrently,
// aggregates the resulting signals into an Enriched-Score, and persists
// the result in the enrichment cache with a TTL equal to the shortest
// enabled provider's TTL.
type Orchestrator struct {
	providers     []Provider
	cacheStore    *cache.Store
	windows       map[string]*ratelimit.Window
	invokeTimeout time.Duration
	log           *eventlog.Log // nil disables throttle-event logging
	runID         string
}

// New builds an Orchestrator. windows maps each provider's RateKey() to
// its sliding-window quota enforcer; a provider with no entry is never
// throttled. log may be nil, in which case throttle skips are silent
// (tests and callers that don't need the audit trail).
func New(providers []Provider, windows map[string]*ratelimit.Window, cacheStore *cache.Store, invokeTimeout time.Duration, log *eventlog.Log, runID string) *Orchestrator {
	return &Orchestrator{
		providers:     providers,
		cacheStore:    cacheStore,
		windows:       windows,
		invokeTimeout: invokeTimeout,
		log:           log,
		runID:         runID,
	}
}

// cachedScore is the enrichment cache's on-disk payload: the Enriched-
// Score plus the TTL it was stored with, since the Cache Store itself
// applies TTL at lookup time using a caller-supplied value, not a value
// fixed per row.
type cachedScore struct {
	Base      float64                  `json:"base"`
	Final     float64                  `json:"final"`
	Signals   []types.EnrichmentSignal `json:"signals"`
	SiteType  types.SiteType           `json:"site_type"`
	TTLSeconds float64                 `json:"ttl_seconds"`
}

// Enrich computes (or retrieves from cache) the Enriched-Score for url
// given a base score. All providers are evaluated independently: one
// provider's failure never fails another, and if every enabled provider
// is unavailable the result is the base score with an empty signal list
// — a success, not an error.
func (o *Orchestrator) Enrich(ctx context.Context, url string, base float64) types.EnrichedScore {
	if payload, createdAt, ok := o.cacheStore.RawLookup(ctx, url); ok {
		var cached cachedScore
		if err := json.Unmarshal(payload, &cached); err == nil {
			ttl := time.Duration(cached.TTLSeconds * float64(time.Second))
			if time.Since(createdAt) < ttl {
				return types.EnrichedScore{Base: cached.Base, Final: cached.Final, Signals: cached.Signals, SiteType: cached.SiteType}
			}
		}
	}

	enabled := make([]Provider, 0, len(o.providers))
	for _, p := range o.providers {
		if p.IsEnabled() {
			enabled = append(enabled, p)
		}
	}

	signals := make([]*types.EnrichmentSignal, len(enabled))
	var wg sync.WaitGroup
	for i, p := range enabled {
		wg.Add(1)
		go func(i int, p Provider) {
			defer wg.Done()

			if w, ok := o.windows[p.RateKey()]; ok {
				if allow, _ := w.Allow(p.RateKey(), time.Now()); !allow {
					if o.log != nil {
						o.log.Emit(types.NewEvent(o.runID, types.EventRateThrottled, "skipped", "provider quota exhausted").
							With("url", url).With("provider", p.Name()))
					}
					return // throttled: skipped, not failed
				}
			}

			pctx, cancel := context.WithTimeout(ctx, o.invokeTimeout)
			defer cancel()

			signal, ok := p.Signal(pctx, url)
			if !ok {
				return
			}
			signals[i] = &signal
		}(i, p)
	}
	wg.Wait()

	final := base
	ordered := make([]types.EnrichmentSignal, 0, len(enabled))
	for i := range enabled {
		if signals[i] == nil {
			continue
		}
		ordered = append(ordered, *signals[i])
		final += signals[i].Adjustment
	}
	final = types.ClampScore(final)
	shortestTTL := o.shortestEnabledTTL(enabled)

	score := types.EnrichedScore{
		Base:     base,
		Final:    final,
		Signals:  ordered,
		SiteType: siteTypeFromSignals(ordered),
	}

	payload, err := json.Marshal(cachedScore{
		Base: base, Final: final, Signals: ordered, SiteType: score.SiteType,
		TTLSeconds: shortestTTL.Seconds(),
	})
	if err == nil {
		_ = o.cacheStore.Put(ctx, url, payload)
	}

	return score
}

// shortestEnabledTTL returns the minimum TTL across every enabled
// provider, whether or not it produced a signal this round. A provider
// that's down (quota-throttled, timed out, no match) still bounds the
// cache-write TTL by its own configured lifetime — caching the
// aggregate result longer than a down provider's TTL would let a stale
// signal from one provider outlive its own cache contract.
func (o *Orchestrator) shortestEnabledTTL(enabled []Provider) time.Duration {
	var shortest time.Duration
	for _, p := range enabled {
		if shortest == 0 || p.TTL() < shortest {
			shortest = p.TTL()
		}
	}
	if shortest == 0 {
		shortest = 24 * time.Hour
	}
	return shortest
}

func siteTypeFromSignals(signals []types.EnrichmentSignal) types.SiteType {
	for _, s := range signals {
		if s.Source == "platform" {
			if st, ok := s.Payload.(string); ok {
				return types.SiteType(st)
			}
		}
	}
	return types.SiteUnknown
}
