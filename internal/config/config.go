package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root ambient configuration for MarketScout, loaded from
// YAML plus environment overrides.
type Config struct {
	Collection CollectionConfig `mapstructure:"collection" yaml:"collection"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"  yaml:"discovery"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment" yaml:"enrichment"`
	Storage    StorageConfig    `mapstructure:"storage"    yaml:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
}

// CollectionConfig controls the worker pool and HTTP fetcher for the
// collect subcommand.
type CollectionConfig struct {
	Concurrency      int           `mapstructure:"concurrency"        yaml:"concurrency"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"    yaml:"request_timeout"`
	TaskTimeout      time.Duration `mapstructure:"task_timeout"       yaml:"task_timeout"`
	MaxRedirects     int           `mapstructure:"max_redirects"      yaml:"max_redirects"`
	MaxBodySize      int64         `mapstructure:"max_body_size"      yaml:"max_body_size"`
	MaxAttempts      int           `mapstructure:"max_attempts"       yaml:"max_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay"         yaml:"base_delay"`
	HostRatePerSec   float64       `mapstructure:"host_rate_per_sec"  yaml:"host_rate_per_sec"`
	HostBurst        int           `mapstructure:"host_burst"         yaml:"host_burst"`
	RespectRobotsTxt bool          `mapstructure:"respect_robots_txt" yaml:"respect_robots_txt"`
	UserAgent        string        `mapstructure:"user_agent"         yaml:"user_agent"`
	AllowedHosts     []string      `mapstructure:"allowed_hosts"      yaml:"allowed_hosts"`
	BlockedPaths     []string      `mapstructure:"blocked_paths"      yaml:"blocked_paths"`
	CacheTTL         time.Duration `mapstructure:"cache_ttl"          yaml:"cache_ttl"`
}

// DiscoveryConfig controls domain generation for the discover subcommand.
type DiscoveryConfig struct {
	MaxDomains    int           `mapstructure:"max_domains"     yaml:"max_domains"`
	LivenessCheck bool          `mapstructure:"liveness_check"  yaml:"liveness_check"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"       yaml:"cache_ttl"`
}

// EnrichmentConfig controls the enrichment orchestrator's invocation
// timeout and whether enrichment runs at all for a given collection run.
type EnrichmentConfig struct {
	Enabled         bool          `mapstructure:"enabled"          yaml:"enabled"`
	InvokeTimeout   time.Duration `mapstructure:"invoke_timeout"   yaml:"invoke_timeout"`
	MinDomainAge    int           `mapstructure:"min_domain_age"   yaml:"min_domain_age"`
	ReputationURL   string        `mapstructure:"reputation_url"   yaml:"reputation_url"`
	FundingURL      string        `mapstructure:"funding_url"      yaml:"funding_url"`
}

// StorageConfig controls the Record-Batch output and persisted state.
type StorageConfig struct {
	OutputPath string `mapstructure:"output_path" yaml:"output_path"`
	DBPath     string `mapstructure:"db_path"     yaml:"db_path"`
}

// LoggingConfig controls log/slog behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with the spec's documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Collection: CollectionConfig{
			Concurrency:      10,
			RequestTimeout:   30 * time.Second,
			TaskTimeout:      30 * time.Second,
			MaxRedirects:     3,
			MaxBodySize:      5 * 1024 * 1024,
			MaxAttempts:      3,
			BaseDelay:        100 * time.Millisecond,
			HostRatePerSec:   2,
			HostBurst:        4,
			RespectRobotsTxt: true,
			UserAgent:        "MarketScoutBot/" + Version + " (+https://marketscout.example/bot)",
			CacheTTL:         7 * 24 * time.Hour,
		},
		Discovery: DiscoveryConfig{
			MaxDomains:    500,
			LivenessCheck: true,
			CacheTTL:      30 * 24 * time.Hour,
		},
		Enrichment: EnrichmentConfig{
			Enabled:       true,
			InvokeTimeout: 10 * time.Second,
			MinDomainAge:  2,
		},
		Storage: StorageConfig{
			OutputPath: "./output",
			DBPath:     "data/marketscout.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
