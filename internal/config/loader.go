package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads the ambient YAML configuration from file, environment, and
// defaults. Priority (highest to lowest): env vars > config file >
// defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("MARKETSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("marketscout")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".marketscout"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if ua := os.Getenv("USER_AGENT"); ua != "" {
		cfg.Collection.UserAgent = ua
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("collection.concurrency", cfg.Collection.Concurrency)
	v.SetDefault("collection.request_timeout", cfg.Collection.RequestTimeout)
	v.SetDefault("collection.task_timeout", cfg.Collection.TaskTimeout)
	v.SetDefault("collection.max_redirects", cfg.Collection.MaxRedirects)
	v.SetDefault("collection.max_body_size", cfg.Collection.MaxBodySize)
	v.SetDefault("collection.max_attempts", cfg.Collection.MaxAttempts)
	v.SetDefault("collection.base_delay", cfg.Collection.BaseDelay)
	v.SetDefault("collection.host_rate_per_sec", cfg.Collection.HostRatePerSec)
	v.SetDefault("collection.host_burst", cfg.Collection.HostBurst)
	v.SetDefault("collection.respect_robots_txt", cfg.Collection.RespectRobotsTxt)
	v.SetDefault("collection.user_agent", cfg.Collection.UserAgent)
	v.SetDefault("collection.cache_ttl", cfg.Collection.CacheTTL)

	v.SetDefault("discovery.max_domains", cfg.Discovery.MaxDomains)
	v.SetDefault("discovery.liveness_check", cfg.Discovery.LivenessCheck)
	v.SetDefault("discovery.cache_ttl", cfg.Discovery.CacheTTL)

	v.SetDefault("enrichment.enabled", cfg.Enrichment.Enabled)
	v.SetDefault("enrichment.invoke_timeout", cfg.Enrichment.InvokeTimeout)
	v.SetDefault("enrichment.min_domain_age", cfg.Enrichment.MinDomainAge)
	v.SetDefault("enrichment.reputation_url", cfg.Enrichment.ReputationURL)
	v.SetDefault("enrichment.funding_url", cfg.Enrichment.FundingURL)

	v.SetDefault("storage.output_path", cfg.Storage.OutputPath)
	v.SetDefault("storage.db_path", cfg.Storage.DBPath)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
