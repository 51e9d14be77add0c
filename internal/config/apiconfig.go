package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/huntlines/marketscout/internal/types"
)

// ProviderSettings holds one enrichment provider's declarative API
// config: its enabled flag, API key (env override takes precedence),
// and call timeout.
type ProviderSettings struct {
	Enabled        bool
	APIKey         string
	TimeoutSeconds int
}

// ScoringAdjustment pairs a signal's positive boost and negative penalty
// magnitude, both as signed numbers applied by the enrichment providers.
type ScoringAdjustment struct {
	Boost   float64
	Penalty float64
}

// APIConfig is the parsed form of the declarative API config document:
// `[apis]`, `[scoring]`, `[rate_limits]`, `[cache]`, and one `[<provider>]`
// section per enrichment provider.
type APIConfig struct {
	Providers  map[string]ProviderSettings
	Scoring    map[string]ScoringAdjustment
	RateLimits map[string]types.WindowQuota
	CacheTTLDays  int
	CacheMaxEntries int
}

// knownProviders enumerates the enrichment providers this build
// recognizes as `[<provider>]` sections and `<provider>_enabled` flags.
var knownProviders = []string{"trend", "platform", "reputation", "funding", "domain_age"}

// LoadAPIConfig parses the INI-format API config document at path. A
// missing section or key falls back to a provider's conservative
// default (disabled, no quota, 10s timeout).
func LoadAPIConfig(path string) (*APIConfig, error) {
	cfg := &APIConfig{
		Providers:  make(map[string]ProviderSettings),
		Scoring:    make(map[string]ScoringAdjustment),
		RateLimits: make(map[string]types.WindowQuota),
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load API config %q: %w", path, err)
	}

	apis := file.Section("apis")
	for _, name := range knownProviders {
		settings := ProviderSettings{TimeoutSeconds: 10}
		settings.Enabled = apis.Key(name + "_enabled").MustBool(false)

		if section, err := file.GetSection(name); err == nil {
			settings.APIKey = section.Key("api_key").String()
			settings.TimeoutSeconds = section.Key("timeout_seconds").MustInt(10)
		}
		if env := os.Getenv(strings.ToUpper(name) + "_API_KEY"); env != "" {
			settings.APIKey = env
		}
		cfg.Providers[name] = settings
	}

	scoring := file.Section("scoring")
	for _, key := range scoring.Keys() {
		name := key.Name()
		signal, kind, ok := splitScoringKey(name)
		if !ok {
			continue
		}
		adj := cfg.Scoring[signal]
		value := key.MustFloat64(0)
		if kind == "boost" {
			adj.Boost = value
		} else {
			adj.Penalty = value
		}
		cfg.Scoring[signal] = adj
	}

	rateLimits := file.Section("rate_limits")
	for _, key := range rateLimits.Keys() {
		parts := strings.SplitN(key.Value(), ",", 2)
		if len(parts) != 2 {
			continue
		}
		var requests int
		var window float64
		if _, err := fmt.Sscanf(strings.TrimSpace(parts[0]), "%d", &requests); err != nil {
			continue
		}
		if _, err := fmt.Sscanf(strings.TrimSpace(parts[1]), "%f", &window); err != nil {
			continue
		}
		cfg.RateLimits[key.Name()] = types.WindowQuota{Requests: requests, Window: window}
	}

	cacheSection := file.Section("cache")
	cfg.CacheTTLDays = cacheSection.Key("ttl_days").MustInt(7)
	cfg.CacheMaxEntries = cacheSection.Key("max_entries").MustInt(100000)

	if days := os.Getenv("CACHE_TTL_DAYS"); days != "" {
		var n int
		if _, err := fmt.Sscanf(days, "%d", &n); err == nil {
			cfg.CacheTTLDays = n
		}
	}

	return cfg, nil
}

// splitScoringKey splits a "<signal>_boost" or "<signal>_penalty" key
// into its signal name and kind.
func splitScoringKey(key string) (signal, kind string, ok bool) {
	switch {
	case strings.HasSuffix(key, "_boost"):
		return strings.TrimSuffix(key, "_boost"), "boost", true
	case strings.HasSuffix(key, "_penalty"):
		return strings.TrimSuffix(key, "_penalty"), "penalty", true
	default:
		return "", "", false
	}
}
