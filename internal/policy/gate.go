// Package policy implements the collection core's admission boundary: the
// Policy Gate decides, for every candidate URL, whether it may proceed to
// an HTTP fetch.
package policy

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/huntlines/marketscout/internal/types"
)

const robotsFetchTimeout = 4 * time.Second

// Gate evaluates candidates against an immutable Policy-Config plus a
// runtime denylist populated by the HTTP fetcher on 401/403 responses.
// The config is read-only after construction and safely shared across
// workers; the denylist and the robots cache are the only mutable state.
type Gate struct {
	cfg    types.PolicyConfig
	robots *robotsCache

	mu      sync.RWMutex
	denylist map[string]struct{}
}

// New builds a Policy Gate for the given run-lifetime config.
func New(cfg types.PolicyConfig) *Gate {
	return &Gate{
		cfg:      cfg,
		robots:   newRobotsCache(cfg.UserAgent, robotsFetchTimeout),
		denylist: make(map[string]struct{}),
	}
}

// Evaluate implements the Policy Gate contract: admit or block(reason).
func (g *Gate) Evaluate(ctx context.Context, rawURL, method string) (bool, types.BlockReason) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false, types.BlockUnreachable
	}

	host := normalizeHost(u.Hostname())

	if g.isDenied(host) {
		return false, types.BlockUnreachable
	}

	if _, wildcard := g.cfg.AllowedHosts["*"]; !wildcard {
		if _, ok := g.cfg.AllowedHosts[host]; !ok {
			return false, types.BlockNonWhitelistedHost
		}
	}

	for _, prefix := range g.cfg.BlockedPathPrefixes {
		if strings.HasPrefix(u.Path, prefix) {
			return false, types.BlockBlockedPath
		}
	}

	if _, ok := g.cfg.AllowedMethods[strings.ToUpper(method)]; !ok {
		return false, types.BlockBlockedMethod
	}

	if g.cfg.RobotsCompliance {
		origin := u.Scheme + "://" + u.Host
		if !g.robots.allowed(ctx, origin, u.Path) {
			return false, types.BlockRobotsDisallow
		}
	}

	return true, types.BlockNone
}

// Deny adds host to the run's opt-in denylist, used after the HTTP
// fetcher observes a 401 or 403 from it. Subsequent candidates for that
// host are rejected as unreachable for the remainder of the run.
func (g *Gate) Deny(host string) {
	host = normalizeHost(host)
	g.mu.Lock()
	g.denylist[host] = struct{}{}
	g.mu.Unlock()
}

func (g *Gate) isDenied(host string) bool {
	g.mu.RLock()
	_, ok := g.denylist[host]
	g.mu.RUnlock()
	return ok
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSuffix(host, "."))
}
