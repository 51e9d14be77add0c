package types

// PolicyConfig is immutable for the lifetime of a run and safely shared
// (read-only) across all workers.
type PolicyConfig struct {
	// AllowedHosts is the allow-set of admissible hostnames, lowercase.
	AllowedHosts map[string]struct{}

	// BlockedPathPrefixes are rejected regardless of host, case-sensitive.
	BlockedPathPrefixes []string

	// AllowedMethods is the set of admissible HTTP methods.
	AllowedMethods map[string]struct{}

	// PaywallKeywords are substrings matched case-insensitively against a
	// response body to flag paywalled content for enrichment purposes.
	PaywallKeywords []string

	// UserAgent is the single identifying string sent with every request
	// and checked against robots.txt disallow rules.
	UserAgent string

	// MaxRedirects bounds same-host redirect following.
	MaxRedirects int

	// RobotsCompliance enables the robots.txt admission check.
	RobotsCompliance bool
}

// DefaultPolicyConfig returns the conservative defaults used when no
// policy file overrides them.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		AllowedHosts:        make(map[string]struct{}),
		BlockedPathPrefixes: []string{"/login", "/auth", "/account", "/subscribe", "/admin", "/messages"},
		AllowedMethods:      map[string]struct{}{"GET": {}, "HEAD": {}},
		UserAgent:           "marketscout/1.0 (+https://example.invalid/bot)",
		MaxRedirects:        3,
		RobotsCompliance:    true,
	}
}

// RatePolicy holds per-host token bucket parameters and per-API sliding
// window quotas.
type RatePolicy struct {
	// HostRate is the token refill rate (requests/second) for per-host
	// buckets used by the HTTP fetcher.
	HostRate float64
	// HostBurst is the bucket capacity.
	HostBurst int

	// APIQuotas maps an API/provider name to its sliding-window limits.
	APIQuotas map[string]WindowQuota
}

// WindowQuota bounds the number of requests allowed to a named API within
// a trailing window.
type WindowQuota struct {
	Requests int
	Window   float64 // seconds
}

// DefaultRatePolicy returns conservative defaults.
func DefaultRatePolicy() RatePolicy {
	return RatePolicy{
		HostRate:  2.0,
		HostBurst: 5,
		APIQuotas: make(map[string]WindowQuota),
	}
}
