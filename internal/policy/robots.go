package policy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// robotsCache fetches, parses, and remembers robots.txt rules per host for
// the lifetime of a run. Entries are never evicted during a run; there is
// no cross-run persistence.
type robotsCache struct {
	userAgentToken string
	client         *http.Client
	mu             sync.RWMutex
	entries        map[string]*robotsRules
}

// robotsRules holds the parsed robots.txt rules for a single host.
type robotsRules struct {
	disallowed []string
	allowed    []string
	crawlDelay time.Duration
	sitemaps   []string
}

func newRobotsCache(userAgent string, timeout time.Duration) *robotsCache {
	return &robotsCache{
		userAgentToken: robotsToken(userAgent),
		client:         &http.Client{Timeout: timeout},
		entries:        make(map[string]*robotsRules),
	}
}

// robotsToken extracts the short product token used to match a robots.txt
// User-agent line (e.g. "marketscout/1.0 (+https://...)" -> "marketscout").
func robotsToken(userAgent string) string {
	token := userAgent
	if idx := strings.IndexAny(token, " /"); idx >= 0 {
		token = token[:idx]
	}
	return strings.ToLower(token)
}

// allowed reports whether path is permitted for origin ("scheme://host")
// per the cached (or freshly fetched) robots.txt. On fetch failure or
// timeout, this fails open (admits) per the Policy Gate's failure
// semantics for unreachable robots.txt.
func (c *robotsCache) allowed(ctx context.Context, origin, path string) bool {
	rules := c.get(ctx, origin)
	if rules == nil {
		return true
	}
	if path == "" {
		path = "/"
	}

	for _, pattern := range rules.allowed {
		if matchRobotsPattern(pattern, path) {
			return true
		}
	}
	for _, pattern := range rules.disallowed {
		if matchRobotsPattern(pattern, path) {
			return false
		}
	}
	return true
}

func (c *robotsCache) get(ctx context.Context, origin string) *robotsRules {
	c.mu.RLock()
	rules, ok := c.entries[origin]
	c.mu.RUnlock()
	if ok {
		return rules
	}

	rules = c.fetch(ctx, origin)

	c.mu.Lock()
	c.entries[origin] = rules
	c.mu.Unlock()
	return rules
}

func (c *robotsCache) fetch(ctx context.Context, origin string) *robotsRules {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return nil
	}

	return c.parse(string(body))
}

func (c *robotsCache) parse(content string) *robotsRules {
	rules := &robotsRules{}

	inOurSection := false
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
		}
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(strings.ToLower(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch key {
		case "user-agent":
			agent := strings.ToLower(value)
			inOurSection = agent == "*" || strings.Contains(agent, c.userAgentToken)
		case "disallow":
			if inOurSection && value != "" {
				rules.disallowed = append(rules.disallowed, value)
			}
		case "allow":
			if inOurSection && value != "" {
				rules.allowed = append(rules.allowed, value)
			}
		case "crawl-delay":
			if inOurSection {
				var delay float64
				if _, err := fmt.Sscanf(value, "%f", &delay); err == nil {
					rules.crawlDelay = time.Duration(delay * float64(time.Second))
				}
			}
		case "sitemap":
			rules.sitemaps = append(rules.sitemaps, value)
		}
	}

	return rules
}

// matchRobotsPattern checks whether path matches a robots.txt pattern.
// Supports "*" (any sequence) and a trailing "$" end-of-path anchor.
func matchRobotsPattern(pattern, path string) bool {
	if pattern == "" {
		return false
	}

	mustEnd := strings.HasSuffix(pattern, "$")
	if mustEnd {
		pattern = pattern[:len(pattern)-1]
	}

	if strings.Contains(pattern, "*") {
		return matchWildcard(pattern, path, mustEnd)
	}

	if mustEnd {
		return path == pattern
	}
	return strings.HasPrefix(path, pattern)
}

func matchWildcard(pattern, path string, mustEnd bool) bool {
	parts := strings.Split(pattern, "*")
	pos := 0

	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(path[pos:], part)
		if idx < 0 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		pos += idx + len(part)
	}

	if mustEnd {
		return pos == len(path)
	}
	return true
}
