package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/huntlines/marketscout/internal/batch"
	"github.com/huntlines/marketscout/internal/cache"
	"github.com/huntlines/marketscout/internal/config"
	"github.com/huntlines/marketscout/internal/discovery"
	"github.com/huntlines/marketscout/internal/engine"
	"github.com/huntlines/marketscout/internal/enrichment"
	"github.com/huntlines/marketscout/internal/eventlog"
	"github.com/huntlines/marketscout/internal/fetcher"
	"github.com/huntlines/marketscout/internal/observability"
	"github.com/huntlines/marketscout/internal/policy"
	"github.com/huntlines/marketscout/internal/ratelimit"
	"github.com/huntlines/marketscout/internal/store"
	"github.com/huntlines/marketscout/internal/types"
)

// Exit codes per the external command-line contract.
const (
	exitSuccess          = 0
	exitArgumentError    = 2
	exitPolicyConfigErr  = 3
	exitSinkIOFailure    = 4
	exitSignalInterrupt  = 5
)

var (
	cfgFile    string
	apiCfgFile string
	verbose    bool

	runID       string
	inputPath   string
	concurrent  int
	outputPath  string
	timeoutSecs int

	niche      string
	region     string
	maxDomains int
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := &cobra.Command{
		Use:   "marketscout",
		Short: "MarketScout — competitor-intelligence collection core",
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "ambient YAML config file path")
	rootCmd.PersistentFlags().StringVar(&apiCfgFile, "api-config", "", "declarative API config file (INI)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(collectCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(versionCmd())

	exitCode := exitSuccess
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "marketscout:", err)
		if code, ok := err.(exitError); ok {
			exitCode = int(code)
		} else {
			exitCode = exitArgumentError
		}
	}
	return exitCode
}

// exitError lets a subcommand communicate a specific process exit code
// through cobra's ordinary error return.
type exitError int

func (e exitError) Error() string { return fmt.Sprintf("exit %d", int(e)) }

func collectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect a candidate URL stream into a Record-Batch",
		RunE:  runCollect,
	}
	cmd.Flags().StringVar(&runID, "run", "", "run identifier (required)")
	cmd.Flags().StringVar(&inputPath, "input", "", "path to the line-oriented candidate input stream (required)")
	cmd.Flags().IntVar(&concurrent, "concurrent", 0, "worker pool size (0 = config default)")
	cmd.Flags().StringVar(&outputPath, "output", "", "output .parquet path or directory (default from config)")
	cmd.Flags().IntVar(&timeoutSecs, "timeout", 0, "per-task timeout in seconds (0 = config default)")
	cmd.MarkFlagRequired("run")
	cmd.MarkFlagRequired("input")
	return cmd
}

func discoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Generate and confirm candidate domains for a niche/region",
		RunE:  runDiscover,
	}
	cmd.Flags().StringVar(&niche, "niche", "", "seed niche, e.g. ecommerce (required)")
	cmd.Flags().StringVar(&region, "region", "", "region code, e.g. ES (required)")
	cmd.Flags().IntVar(&maxDomains, "max-domains", 0, "maximum domains to confirm (0 = config default)")
	cmd.Flags().StringVar(&outputPath, "output", "", "output path for the confirmed domain list (default stdout)")
	cmd.MarkFlagRequired("niche")
	cmd.MarkFlagRequired("region")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("marketscout %s\n", config.Version)
		},
	}
}

func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func runCollect(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return exitError(exitArgumentError)
	}
	if concurrent > 0 {
		cfg.Collection.Concurrency = concurrent
	}
	if timeoutSecs > 0 {
		cfg.Collection.TaskTimeout = time.Duration(timeoutSecs) * time.Second
	}
	if outputPath != "" {
		cfg.Storage.OutputPath = outputPath
	}
	if err := config.Validate(cfg); err != nil {
		return exitError(exitArgumentError)
	}

	candidates, err := readCandidateStream(inputPath)
	if err != nil {
		logger.Error("failed to read input stream", "error", err)
		return exitError(exitArgumentError)
	}

	policyCfg := types.DefaultPolicyConfig()
	policyCfg.UserAgent = cfg.Collection.UserAgent
	policyCfg.MaxRedirects = cfg.Collection.MaxRedirects
	policyCfg.RobotsCompliance = cfg.Collection.RespectRobotsTxt
	if len(cfg.Collection.BlockedPaths) > 0 {
		policyCfg.BlockedPathPrefixes = cfg.Collection.BlockedPaths
	}
	for _, c := range candidates {
		if host := hostOf(c.Raw); host != "" {
			policyCfg.AllowedHosts[host] = struct{}{}
		}
	}
	if len(policyCfg.AllowedHosts) == 0 {
		logger.Error("no admissible hosts found in input stream")
		return exitError(exitPolicyConfigErr)
	}
	gate := policy.New(policyCfg)

	h, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.Error("failed to open state store", "error", err)
		return exitError(exitSinkIOFailure)
	}
	defer h.Close()

	log := eventlog.New(h, runID, logger)
	defer log.Close()

	fetchCache := cache.New(h, "fetch_cache", cfg.Collection.CacheTTL)

	limiter := ratelimit.New(cfg.Collection.HostRatePerSec, cfg.Collection.HostBurst)
	fetcherCfg := fetcher.Config{
		Timeout:      cfg.Collection.RequestTimeout,
		MaxRedirects: cfg.Collection.MaxRedirects,
		UserAgent:    cfg.Collection.UserAgent,
		MaxBodySize:  cfg.Collection.MaxBodySize,
		MaxAttempts:  cfg.Collection.MaxAttempts,
		BaseDelay:    cfg.Collection.BaseDelay,
	}
	f, err := fetcher.New(fetcherCfg, limiter, gate, logger)
	if err != nil {
		logger.Error("failed to build fetcher", "error", err)
		return exitError(exitPolicyConfigErr)
	}
	defer f.Close()

	outputFile := resolveOutputPath(cfg.Storage.OutputPath, runID)
	if err := os.MkdirAll(filepath.Dir(outputFile), 0o755); err != nil {
		logger.Error("failed to prepare output directory", "error", err)
		return exitError(exitSinkIOFailure)
	}
	writer, err := batch.Open(outputFile)
	if err != nil {
		logger.Error("failed to open record batch writer", "error", err)
		return exitError(exitSinkIOFailure)
	}

	var enricher *enrichment.Orchestrator
	if cfg.Enrichment.Enabled {
		enrichmentCache := cache.New(h, "enrichment_cache", 24*time.Hour)
		apiCfg := loadOptionalAPIConfig(apiCfgFile, logger)
		providers := buildProviders(cfg, apiCfg)
		windows := buildWindows(apiCfg)
		enricher = enrichment.New(providers, windows, enrichmentCache, cfg.Enrichment.InvokeTimeout, log, runID)
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(logger)
		_ = metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path)
	}

	pool := engine.New(engine.Config{
		RunID:       runID,
		MaxWorkers:  cfg.Collection.Concurrency,
		TaskTimeout: cfg.Collection.TaskTimeout,
		CacheTTL:    cfg.Collection.CacheTTL,
	}, gate, fetchCache, f, enricher, writer, log, logger, metrics)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	interrupted := make(chan struct{})
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			close(interrupted)
			cancel()
		case <-ctx.Done():
		}
	}()

	input := make(chan types.Candidate, cfg.Collection.Concurrency)
	go func() {
		defer close(input)
		for _, c := range candidates {
			select {
			case input <- c:
			case <-ctx.Done():
				return
			}
		}
	}()

	start := time.Now()
	runErr := pool.Run(ctx, input)
	if err := writer.Close(); err != nil {
		logger.Error("failed to finalize output writer", "error", err)
		return exitError(exitSinkIOFailure)
	}

	stats := pool.Stats()
	elapsed := time.Since(start)
	reportStats(stats, elapsed, outputFile)

	select {
	case <-interrupted:
		return exitError(exitSignalInterrupt)
	default:
	}
	if runErr != nil {
		return exitError(exitSignalInterrupt)
	}
	return nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	logger := setupLogger()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return exitError(exitArgumentError)
	}
	if maxDomains <= 0 {
		maxDomains = cfg.Discovery.MaxDomains
	}

	policyCfg := types.DefaultPolicyConfig()
	policyCfg.UserAgent = cfg.Collection.UserAgent
	policyCfg.AllowedHosts["*"] = struct{}{}
	policyCfg.RobotsCompliance = cfg.Collection.RespectRobotsTxt
	gate := policy.New(policyCfg)

	h, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.Error("failed to open state store", "error", err)
		return exitError(exitSinkIOFailure)
	}
	defer h.Close()

	discoveryRunID := "discover-" + niche + "-" + region
	log := eventlog.New(h, discoveryRunID, logger)
	defer log.Close()

	discoveryCache := cache.New(h, "discovery_cache", cfg.Discovery.CacheTTL)

	limiter := ratelimit.New(cfg.Collection.HostRatePerSec, cfg.Collection.HostBurst)
	f, err := fetcher.New(fetcher.Config{
		Timeout:      cfg.Collection.RequestTimeout,
		MaxRedirects: cfg.Collection.MaxRedirects,
		UserAgent:    cfg.Collection.UserAgent,
		MaxBodySize:  cfg.Collection.MaxBodySize,
		MaxAttempts:  cfg.Collection.MaxAttempts,
		BaseDelay:    cfg.Collection.BaseDelay,
	}, limiter, gate, logger)
	if err != nil {
		logger.Error("failed to build fetcher", "error", err)
		return exitError(exitPolicyConfigErr)
	}
	defer f.Close()

	eng := discovery.New(gate, discoveryCache, f, log)
	confirmed := eng.Discover(context.Background(), discoveryRunID, niche, region, maxDomains)

	var out *os.File
	if outputPath != "" {
		out, err = os.Create(outputPath)
		if err != nil {
			logger.Error("failed to open discovery output", "error", err)
			return exitError(exitSinkIOFailure)
		}
		defer out.Close()
	} else {
		out = os.Stdout
	}
	for _, c := range confirmed {
		fmt.Fprintln(out, c.Raw)
	}

	logger.Info("discovery complete", "niche", niche, "region", region, "confirmed", len(confirmed))
	return nil
}

// readCandidateStream reads a UTF-8 line-oriented input: blank lines and
// lines beginning with '#' are ignored.
func readCandidateStream(path string) ([]types.Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []types.Candidate
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, types.NewCandidate(line))
	}
	return out, scanner.Err()
}

func resolveOutputPath(outputPath, runID string) string {
	if strings.HasSuffix(outputPath, ".parquet") {
		return outputPath
	}
	return filepath.Join(outputPath, runID+".parquet")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// loadOptionalAPIConfig loads the declarative API config document if
// path is set; a missing or unreadable optional file degrades to an
// empty config (no provider settings, so the API-configured providers
// stay disabled), rather than failing the run.
func loadOptionalAPIConfig(path string, logger *slog.Logger) *config.APIConfig {
	if path == "" {
		return &config.APIConfig{
			Providers:  make(map[string]config.ProviderSettings),
			Scoring:    make(map[string]config.ScoringAdjustment),
			RateLimits: make(map[string]types.WindowQuota),
		}
	}
	apiCfg, err := config.LoadAPIConfig(path)
	if err != nil {
		logger.Warn("failed to load API config, API-configured enrichment providers disabled", "error", err)
		return &config.APIConfig{
			Providers:  make(map[string]config.ProviderSettings),
			Scoring:    make(map[string]config.ScoringAdjustment),
			RateLimits: make(map[string]types.WindowQuota),
		}
	}
	return apiCfg
}

// buildProviders constructs the enrichment providers. Trend, platform and
// domain_age are always included; reputation is added only when enabled in
// the declarative API config and a reputation URL is set, and funding
// additionally needs an API key and a funding URL.
func buildProviders(cfg *config.Config, apiCfg *config.APIConfig) []enrichment.Provider {
	providers := []enrichment.Provider{
		enrichment.NewTrendProvider(24 * time.Hour),
		enrichment.NewPlatformProvider(cfg.Enrichment.InvokeTimeout, 24*time.Hour),
	}

	if settings, ok := apiCfg.Providers["reputation"]; ok && settings.Enabled && cfg.Enrichment.ReputationURL != "" {
		timeout := time.Duration(settings.TimeoutSeconds) * time.Second
		providers = append(providers, enrichment.NewReputationProvider(cfg.Enrichment.ReputationURL, settings.APIKey, timeout, 24*time.Hour))
	}
	if settings, ok := apiCfg.Providers["funding"]; ok && settings.Enabled && settings.APIKey != "" && cfg.Enrichment.FundingURL != "" {
		timeout := time.Duration(settings.TimeoutSeconds) * time.Second
		providers = append(providers, enrichment.NewFundingProvider(cfg.Enrichment.FundingURL, settings.APIKey, timeout, 24*time.Hour))
	}
	providers = append(providers, enrichment.NewDomainAgeProvider(cfg.Enrichment.MinDomainAge, 5*time.Second, 30*24*time.Hour, currentYear))

	return providers
}

func currentYear() int {
	return time.Now().Year()
}

// buildWindows constructs per-provider sliding-window quota enforcers
// from the declarative rate_limits section.
func buildWindows(apiCfg *config.APIConfig) map[string]*ratelimit.Window {
	windows := make(map[string]*ratelimit.Window, len(apiCfg.RateLimits))
	for provider, quota := range apiCfg.RateLimits {
		windows[provider] = ratelimit.NewWindow(quota.Requests, time.Duration(quota.Window*float64(time.Second)))
	}
	return windows
}

func reportStats(s *engine.Stats, elapsed time.Duration, outputFile string) {
	snap := s.Snapshot()
	fmt.Fprintf(os.Stderr, "\n%v/%v candidates succeeded (%s)\n", snap["succeeded"], snap["attempted"], elapsed.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "  policy blocked:     %v\n", snap["policy_blocked"])
	fmt.Fprintf(os.Stderr, "  transport timeout:  %v\n", snap["transport_timeout"])
	fmt.Fprintf(os.Stderr, "  transport I/O:      %v\n", snap["transport_io"])
	fmt.Fprintf(os.Stderr, "  HTTP 4xx:           %v\n", snap["http_client_error"])
	fmt.Fprintf(os.Stderr, "  HTTP 5xx:           %v\n", snap["http_server_error"])
	fmt.Fprintf(os.Stderr, "  body too large:     %v\n", snap["body_too_large"])
	fmt.Fprintf(os.Stderr, "  cache hits/misses:  %v/%v\n", snap["cache_hits"], snap["cache_misses"])
	fmt.Fprintf(os.Stderr, "  output:             %s\n", outputFile)
}
