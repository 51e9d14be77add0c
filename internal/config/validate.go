package config

import (
	"fmt"
	"net/url"
)

// Validate checks the ambient configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Collection.Concurrency < 1 {
		return fmt.Errorf("collection.concurrency must be >= 1, got %d", cfg.Collection.Concurrency)
	}
	if cfg.Collection.Concurrency > 1000 {
		return fmt.Errorf("collection.concurrency must be <= 1000, got %d", cfg.Collection.Concurrency)
	}
	if cfg.Collection.RequestTimeout <= 0 {
		return fmt.Errorf("collection.request_timeout must be > 0")
	}
	if cfg.Collection.MaxRedirects < 0 {
		return fmt.Errorf("collection.max_redirects must be >= 0")
	}
	if cfg.Collection.MaxBodySize <= 0 {
		return fmt.Errorf("collection.max_body_size must be > 0")
	}
	if cfg.Collection.MaxAttempts < 1 {
		return fmt.Errorf("collection.max_attempts must be >= 1, got %d", cfg.Collection.MaxAttempts)
	}
	if cfg.Collection.HostRatePerSec <= 0 {
		return fmt.Errorf("collection.host_rate_per_sec must be > 0")
	}

	if cfg.Discovery.MaxDomains < 1 {
		return fmt.Errorf("discovery.max_domains must be >= 1, got %d", cfg.Discovery.MaxDomains)
	}

	if cfg.Storage.OutputPath == "" {
		return fmt.Errorf("storage.output_path must be set")
	}
	if cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path must be set")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateURL checks if a URL string is valid for collection.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
