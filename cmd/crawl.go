package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlharvest/internal/crawler"
	"github.com/JakeFAU/htmlharvest/internal/logging"
	"github.com/JakeFAU/htmlharvest/internal/metrics"
)

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Downloads pages from a prepared URL list",
		Long: `Walks the URL list in order, fetching each admissible URL once and saving
pages that pass the content filter until --limit pages are saved. Every URL
ends up in exactly one of index.txt (saved) or errors.log (SKIP/FAIL).`,
		RunE: runCrawlCommand,
	}

	f := cmd.Flags()
	f.String("urls", "", "path to the URL list (one URL per line)")
	f.String("out", "", "output directory (pages/, index.txt, errors.log, summary.json)")
	f.Int("limit", crawler.DefaultLimit, "stop after this many pages were saved")
	f.Duration("delay", crawler.DefaultDelay, "pause after every fetch")
	f.Duration("timeout", crawler.DefaultTimeout, "per-request timeout")
	f.Int("retries", crawler.DefaultRetries, "extra attempts after a network error")
	f.Int("min-bytes", crawler.DefaultMinBytes, "minimal HTML size in bytes")
	f.Int("min-cyr", crawler.DefaultMinScript, "minimal number of Cyrillic letters")
	f.Float64("min-cyr-ratio", crawler.DefaultMinRatio, "minimal share of Cyrillic among all letters")
	f.Bool("respect-robots", false, "honor robots.txt")
	f.Bool("skip-wikipedia", true, "skip wikipedia.org and wikimedia.org")
	f.String("user-agent", crawler.DefaultUserAgent, "User-Agent header for every request")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address during the run (e.g. :9090)")

	bindFlag(cmd, "crawler.urls", "urls")
	bindFlag(cmd, "crawler.out", "out")
	bindFlag(cmd, "crawler.limit", "limit")
	bindFlag(cmd, "crawler.delay", "delay")
	bindFlag(cmd, "crawler.timeout", "timeout")
	bindFlag(cmd, "crawler.retries", "retries")
	bindFlag(cmd, "filter.min_bytes", "min-bytes")
	bindFlag(cmd, "filter.min_cyr", "min-cyr")
	bindFlag(cmd, "filter.min_cyr_ratio", "min-cyr-ratio")
	bindFlag(cmd, "robots.respect", "respect-robots")
	bindFlag(cmd, "filter.skip_wikipedia", "skip-wikipedia")
	bindFlag(cmd, "crawler.user_agent", "user-agent")
	bindFlag(cmd, "metrics.addr", "metrics-addr")
	return cmd
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	logger := logging.L

	cfg, err := crawler.LoadConfig(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load crawler config: %w", err)
	}
	urls, err := crawler.ReadURLList(cfg.URLsFile)
	if err != nil {
		return err
	}

	store, err := crawler.NewRunStore(cfg.OutputDir, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("init run store: %w", err)
	}
	engine := buildCrawlerEngine(cfg, store, logger)

	stopMetrics := startMetricsServer(viper.GetString("metrics.addr"), logger)
	defer stopMetrics()

	if err := engine.Run(cmd.Context(), urls); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run crawler: %w", err)
	}

	stats := store.Stats()
	cmd.Printf("[ok] done: requested=%d saved=%d skipped=%d failed=%d; see %s\n",
		stats.Requested, stats.Saved, stats.Skipped, stats.Failed, cfg.OutputDir)
	return nil
}

func buildCrawlerEngine(cfg crawler.Config, store *crawler.RunStore, logger *zap.Logger) *crawler.Engine {
	fetcher := crawler.NewCollyFetcher(crawler.FetcherConfig{
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.Retries,
		BackoffStep: cfg.BackoffStep,
	}, logger.Named("fetcher"))

	robots := crawler.NewRobotsEnforcer(cfg.RespectRobots, crawler.RobotsOptions{
		UserAgent: cfg.UserAgent,
		TTL:       cfg.RobotsTTL,
		Timeout:   cfg.RobotsTimeout,
	}, logger.Named("robots"))

	return crawler.NewEngine(
		crawler.EngineConfig{
			Limit:     cfg.Limit,
			Delay:     cfg.Delay,
			URLPolicy: cfg.URLPolicy(),
		},
		fetcher,
		robots,
		crawler.NewContentFilter(cfg.Thresholds()),
		store,
		logger.Named("engine"),
	)
}

// startMetricsServer serves /metrics on addr until the returned stop
// function runs. An empty addr disables it.
func startMetricsServer(addr string, logger *zap.Logger) func() {
	if addr == "" {
		return func() {}
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown error", zap.Error(err))
		}
	}
}
