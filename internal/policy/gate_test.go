package policy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/huntlines/marketscout/internal/types"
)

func baseConfig() types.PolicyConfig {
	return types.PolicyConfig{
		AllowedHosts:        map[string]struct{}{"example.com": {}},
		BlockedPathPrefixes: []string{"/login", "/admin"},
		AllowedMethods:      map[string]struct{}{"GET": {}, "HEAD": {}},
		UserAgent:           "marketscout/1.0",
		MaxRedirects:        3,
		RobotsCompliance:    false,
	}
}

func TestGateAdmitsAllowedHost(t *testing.T) {
	g := New(baseConfig())
	admit, reason := g.Evaluate(context.Background(), "https://example.com/shop", http.MethodGet)
	if !admit {
		t.Errorf("expected admit, got block reason %q", reason)
	}
}

func TestGateBlocksNonWhitelistedHost(t *testing.T) {
	g := New(baseConfig())
	admit, reason := g.Evaluate(context.Background(), "https://unknown.com/", http.MethodGet)
	if admit {
		t.Error("expected block for a non-whitelisted host")
	}
	if reason != types.BlockNonWhitelistedHost {
		t.Errorf("got reason %q, want %q", reason, types.BlockNonWhitelistedHost)
	}
}

func TestGateWildcardAllowsAnyHost(t *testing.T) {
	cfg := baseConfig()
	cfg.AllowedHosts = map[string]struct{}{"*": {}}
	g := New(cfg)

	admit, _ := g.Evaluate(context.Background(), "https://never-seen-before.shop/", http.MethodGet)
	if !admit {
		t.Error("expected the wildcard allow-list entry to admit any host")
	}
}

func TestGateBlocksBlockedPathPrefix(t *testing.T) {
	g := New(baseConfig())
	admit, reason := g.Evaluate(context.Background(), "https://example.com/login", http.MethodGet)
	if admit {
		t.Error("expected block for a blocked path prefix")
	}
	if reason != types.BlockBlockedPath {
		t.Errorf("got reason %q, want %q", reason, types.BlockBlockedPath)
	}
}

func TestGateBlocksDisallowedMethod(t *testing.T) {
	g := New(baseConfig())
	admit, reason := g.Evaluate(context.Background(), "https://example.com/", http.MethodPost)
	if admit {
		t.Error("expected block for a disallowed method")
	}
	if reason != types.BlockBlockedMethod {
		t.Errorf("got reason %q, want %q", reason, types.BlockBlockedMethod)
	}
}

func TestGateBlocksMalformedURL(t *testing.T) {
	g := New(baseConfig())
	admit, reason := g.Evaluate(context.Background(), "://not-a-url", http.MethodGet)
	if admit {
		t.Error("expected block for a malformed URL")
	}
	if reason != types.BlockUnreachable {
		t.Errorf("got reason %q, want %q", reason, types.BlockUnreachable)
	}
}

func TestGateDenylistBlocksSubsequentCandidates(t *testing.T) {
	g := New(baseConfig())

	admit, _ := g.Evaluate(context.Background(), "https://example.com/", http.MethodGet)
	if !admit {
		t.Fatal("expected the first candidate to be admitted before any denial")
	}

	g.Deny("example.com")

	admit, reason := g.Evaluate(context.Background(), "https://example.com/", http.MethodGet)
	if admit {
		t.Error("expected the host to be rejected after Deny")
	}
	if reason != types.BlockUnreachable {
		t.Errorf("got reason %q, want %q", reason, types.BlockUnreachable)
	}
}

func TestGateRobotsDisallow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer srv.Close()

	cfg := types.PolicyConfig{
		AllowedHosts:     map[string]struct{}{"*": {}},
		AllowedMethods:   map[string]struct{}{"GET": {}},
		UserAgent:        "marketscout/1.0",
		RobotsCompliance: true,
	}
	g := New(cfg)

	admit, reason := g.Evaluate(context.Background(), srv.URL+"/private/data", http.MethodGet)
	if admit {
		t.Error("expected robots.txt Disallow to block the path")
	}
	if reason != types.BlockRobotsDisallow {
		t.Errorf("got reason %q, want %q", reason, types.BlockRobotsDisallow)
	}

	admit, _ = g.Evaluate(context.Background(), srv.URL+"/public", http.MethodGet)
	if !admit {
		t.Error("expected a path outside Disallow to be admitted")
	}
}

func TestGateRobotsFailsOpenOnFetchError(t *testing.T) {
	cfg := types.PolicyConfig{
		AllowedHosts:     map[string]struct{}{"*": {}},
		AllowedMethods:   map[string]struct{}{"GET": {}},
		UserAgent:        "marketscout/1.0",
		RobotsCompliance: true,
	}
	g := New(cfg)

	admit, _ := g.Evaluate(context.Background(), "https://this-host-does-not-resolve.invalid/page", http.MethodGet)
	if !admit {
		t.Error("expected an unreachable robots.txt to fail open (admit)")
	}
}
