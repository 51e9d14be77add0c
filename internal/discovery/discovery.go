// Package discovery implements the Discovery Engine (C8): generation of
// candidate domains from a (niche, region) pair, with liveness
// confirmation via the HTTP Fetcher and a Cache Store-backed idempotence
// guarantee.
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/huntlines/marketscout/internal/cache"
	"github.com/huntlines/marketscout/internal/eventlog"
	"github.com/huntlines/marketscout/internal/fetcher"
	"github.com/huntlines/marketscout/internal/policy"
	"github.com/huntlines/marketscout/internal/types"
)

// seedTokens is the curated, in-memory seed table per niche, grounded on
// the teacher's seed/frontier expansion idiom generalized from literal
// crawl seed URLs to brand-stem strings.
var seedTokens = map[string][]string{
	"ecommerce": {"cart", "shop", "market", "goods", "bazaar", "store", "trove", "mercato"},
	"wellness":  {"glow", "vital", "calm", "zen", "thrive", "bloom", "pure"},
	"fitness":   {"flex", "sweat", "grind", "surge", "forge", "pulse"},
	"pet":       {"paws", "fetch", "whisker", "waggy", "bark"},
	"handmade":  {"craft", "loom", "kiln", "atelier", "forge"},
}

// regionTLDs maps a region code to its candidate TLD set.
var regionTLDs = map[string][]string{
	"US": {".com", ".shop", ".store"},
	"ES": {".es", ".cat", ".com"},
	"DE": {".de", ".com"},
	"FR": {".fr", ".com"},
	"UK": {".co.uk", ".uk", ".com"},
}

var affixPatterns = []string{"shop%s", "%sshop", "get%s", "my%s"}

// Engine generates and confirms candidate domains for a niche/region.
type Engine struct {
	gate           *policy.Gate
	discoveryCache *cache.Store
	fetcher        *fetcher.Fetcher
	log            *eventlog.Log
}

// New builds a discovery Engine.
func New(gate *policy.Gate, discoveryCache *cache.Store, f *fetcher.Fetcher, log *eventlog.Log) *Engine {
	return &Engine{gate: gate, discoveryCache: discoveryCache, fetcher: f, log: log}
}

// Discover generates candidate domains for (niche, region), confirms
// liveness via a HEAD-equivalent fetch for any not already cached, and
// emits at most max confirmed candidates plus a single
// discovery.completed event.
func (e *Engine) Discover(ctx context.Context, runID, niche, region string, max int) []types.Candidate {
	seeds := seedTokens[strings.ToLower(niche)]
	tlds := regionTLDs[strings.ToUpper(region)]
	if len(tlds) == 0 {
		tlds = []string{".com"}
	}

	domains := composeCandidates(seeds, tlds)

	out := make([]types.Candidate, 0, max)
	seen := make(map[string]struct{}, len(domains))

	for _, domain := range domains {
		if len(out) >= max {
			break
		}
		key := strings.ToLower(domain)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		candidateURL := "https://" + domain + "/"

		if _, ok := e.discoveryCache.Lookup(ctx, candidateURL); ok {
			out = append(out, types.Candidate{Raw: candidateURL, Niche: niche, Region: region})
			continue
		}

		if e.confirmLiveness(ctx, candidateURL) {
			_ = e.discoveryCache.Put(ctx, candidateURL, []byte(`{"confirmed":true}`))
			out = append(out, types.Candidate{Raw: candidateURL, Niche: niche, Region: region})
		}
	}

	if e.log != nil {
		e.log.Emit(types.NewEvent(runID, types.EventDiscoveryCompleted, "ok", "discovery completed").
			With("niche", niche).With("region", region).With("count", len(out)))
	}

	return out
}

// confirmLiveness admits the candidate through the Policy Gate and
// issues a liveness fetch; any failure (policy, transport, non-2xx) is
// silently dropped per the spec's failure semantics.
func (e *Engine) confirmLiveness(ctx context.Context, candidateURL string) bool {
	if admit, _ := e.gate.Evaluate(ctx, candidateURL, http.MethodHead); !admit {
		return false
	}
	result, _ := e.fetcher.Probe(ctx, candidateURL)
	return result.Success
}

// composeCandidates expands each seed by TLD and affix pattern.
func composeCandidates(seeds, tlds []string) []string {
	var out []string
	for _, seed := range seeds {
		for _, affix := range affixPatterns {
			stem := fmt.Sprintf(affix, seed)
			for _, tld := range tlds {
				out = append(out, stem+tld)
			}
		}
	}
	return out
}
