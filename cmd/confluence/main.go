// Command confluence runs the real-time crypto confluence-analysis
// pipeline: it shapes incoming market snapshots, fans them out across six
// indicator families, fuses the results into a quality-adjusted score,
// classifies a signal, records it to the quality tracker, and dispatches
// it to a sink — adapted from the teacher's cmd/cryptorun/main.go cobra
// tree and zerolog console-writer setup.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quorumtrade/confluence/internal/config"
	"github.com/quorumtrade/confluence/internal/confluence"
	httpserver "github.com/quorumtrade/confluence/internal/interfaces/http"
	applog "github.com/quorumtrade/confluence/internal/log"
	"github.com/quorumtrade/confluence/internal/metrics"
	"github.com/quorumtrade/confluence/internal/provider"
	"github.com/quorumtrade/confluence/internal/shaper"
	"github.com/quorumtrade/confluence/internal/signalgen"
	"github.com/quorumtrade/confluence/internal/sink"
	"github.com/quorumtrade/confluence/internal/tracker"
)

const (
	appName = "confluence"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	var configPath string
	var symbols []string
	var webhookURL string
	var serveHTTP bool

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Real-time crypto confluence-analysis engine",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to confluence.yaml (optional; defaults apply when omitted)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Analyze a stream of synthetic snapshots and dispatch signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(configPath, symbols, webhookURL, serveHTTP)
		},
	}
	runCmd.Flags().StringSliceVar(&symbols, "symbols", []string{"BTC-USD", "ETH-USD"}, "symbols to analyze")
	runCmd.Flags().StringVar(&webhookURL, "webhook", "", "POST signals to this URL instead of discarding them")
	runCmd.Flags().BoolVar(&serveHTTP, "serve", false, "also start the read-only HTTP introspection server")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the pipeline with the HTTP introspection server always on",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(configPath, symbols, webhookURL, true)
		},
	}
	serveCmd.Flags().StringSliceVar(&symbols, "symbols", []string{"BTC-USD", "ETH-USD"}, "symbols to analyze")
	serveCmd.Flags().StringVar(&webhookURL, "webhook", "", "POST signals to this URL instead of discarding them")

	trackerCmd := &cobra.Command{Use: "tracker", Short: "Inspect the quality metrics tracker"}
	var statsHours int
	var statsSymbol string
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print quality statistics over a trailing window",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printTrackerStats(configPath, statsHours, statsSymbol)
		},
	}
	statsCmd.Flags().IntVar(&statsHours, "hours", 24, "trailing window in hours")
	statsCmd.Flags().StringVar(&statsSymbol, "symbol", "", "restrict to one symbol (default: all)")
	trackerCmd.AddCommand(statsCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			log.Info().Str("version", version).Msg(appName)
		},
	}

	rootCmd.AddCommand(runCmd, serveCmd, trackerCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

// loadConfig reads configPath if provided; a missing --config is not an
// error, it just means every component falls back to its own defaults
// (spec.md §6: configuration is optional, structural defaults exist).
func loadConfig(configPath string) *config.Config {
	if configPath == "" {
		return &config.Config{}
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
	}
	return cfg
}

func buildTracker(cfg *config.Config) *tracker.Tracker {
	tcfg := tracker.DefaultConfig()
	if cfg.Tracker.LogDir != "" {
		tcfg.LogDir = cfg.Tracker.LogDir
	}
	if cfg.Tracker.CacheCapacity > 0 {
		tcfg.CacheCapacity = cfg.Tracker.CacheCapacity
	}
	t, err := tracker.New(tcfg, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize quality tracker")
	}
	if cfg.Tracker.SQLMirror.Enabled {
		mirror, err := tracker.NewSQLMirror(cfg.Tracker.SQLMirror.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize sql mirror")
		}
		t.AttachMirror(mirror)
	}
	return t
}

func buildGenerator(cfg *config.Config) *signalgen.Generator {
	th := signalgen.DefaultThresholds()
	if cfg.Signal.CooldownSeconds > 0 {
		th.CooldownSeconds = cfg.Signal.CooldownSeconds
	}
	if cfg.Confluence.Thresholds.Buy > 0 {
		th.Buy = cfg.Confluence.Thresholds.Buy
	}
	if cfg.Confluence.Thresholds.Sell > 0 {
		th.Sell = cfg.Confluence.Thresholds.Sell
	}
	if cfg.Confluence.QualityFilter.MinConfidence > 0 {
		th.MinConfidence = cfg.Confluence.QualityFilter.MinConfidence
	}
	if cfg.Confluence.QualityFilter.MaxDisagreement > 0 {
		th.MaxDisagreement = cfg.Confluence.QualityFilter.MaxDisagreement
	}

	if cfg.Signal.DedupBackend == "redis" && cfg.Signal.RedisAddr != "" {
		client := redisClient(cfg.Signal.RedisAddr)
		return signalgen.NewWithBackend(th, log.Logger, signalgen.NewRedisDedup(client, ""))
	}
	return signalgen.New(th, log.Logger)
}

func redisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func buildSink(webhookURL string) sink.Sink {
	if webhookURL != "" {
		return sink.NewWebhookSink(webhookURL)
	}
	return sink.NullSink{}
}

func runPipeline(configPath string, symbols []string, webhookURL string, serveHTTP bool) error {
	steps := applog.NewStepLogger("confluence-startup", []string{"config", "pipeline", "tracker", "dispatcher"})

	steps.StartStep("config")
	cfg := loadConfig(configPath)
	steps.CompleteStep()

	steps.StartStep("pipeline")
	sh := shaper.New(shaper.Config{IntervalToTag: shaper.DefaultIntervalToTag()}, log.Logger)
	analyzer := confluence.New(sh, confluence.DefaultConfig(), log.Logger)
	generator := buildGenerator(cfg)
	reg := metrics.NewRegistry()
	recent := httpserver.NewRecentSignals(200)
	steps.CompleteStep()

	steps.StartStep("tracker")
	qualityTracker := buildTracker(cfg)
	defer qualityTracker.Close()
	steps.CompleteStep()

	steps.StartStep("dispatcher")
	dispatcher := sink.NewDispatcher(buildSink(webhookURL), 1000, log.Logger)
	steps.CompleteStep()
	steps.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go dispatcher.Run(ctx)

	if serveHTTP {
		srv, err := httpserver.NewServer(httpserver.DefaultServerConfig(), qualityTracker, recent, reg, version, log.Logger)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Start(); err != nil {
				log.Error().Err(err).Msg("http server stopped")
			}
		}()
		defer srv.Shutdown(context.Background())
	}

	supplier := provider.NewDemoSupplier(2)
	chain := provider.NewSupplierChain("demo", []provider.SnapshotSupplier{supplier})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	log.Info().Strs("symbols", symbols).Msg("confluence pipeline starting")

	for {
		select {
		case <-sigCh:
			log.Info().Msg("shutting down")
			return nil
		case <-ticker.C:
			for _, symbol := range symbols {
				analyzeOne(ctx, chain, analyzer, generator, qualityTracker, dispatcher, recent, reg, symbol)
			}
		}
	}
}

func analyzeOne(ctx context.Context, chain *provider.SupplierChain, analyzer *confluence.Analyzer, generator *signalgen.Generator, t *tracker.Tracker, dispatcher *sink.Dispatcher, recent *httpserver.RecentSignals, reg *metrics.Registry, symbol string) {
	snap, err := chain.Supply(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("snapshot supply failed")
		return
	}

	start := time.Now()
	result := analyzer.Analyze(ctx, snap)
	reg.ObserveAnalysis(time.Since(start), result.Reliability, "completed")
	for name, d := range result.Timings {
		reg.ObserveIndicator(name, d, "")
	}

	lastPrice := 0.0
	if snap.Ticker != nil {
		lastPrice = snap.Ticker.Last
	}

	sig, dispatch, reason := generator.Generate(result, lastPrice)

	scoreBase := (result.ScoreRaw + 1) / 2 * 100
	rec := tracker.NewRecord(time.UnixMilli(result.TimestampMs), result.Symbol,
		result.Score, scoreBase, result.Score-scoreBase,
		result.Consensus, result.Confidence, result.Disagreement,
		signalType(sig), !dispatch, string(reason))
	t.Record(rec)

	if !dispatch || sig == nil {
		reg.SignalsFiltered.WithLabelValues(string(reason)).Inc()
		return
	}

	reg.SignalsGenerated.WithLabelValues(string(sig.Type)).Inc()
	reg.SignalsDedup.Inc()
	recent.Record(*sig)
	dispatcher.Enqueue(*sig)
}

func signalType(sig *signalgen.Signal) string {
	if sig == nil {
		return ""
	}
	return string(sig.Type)
}

func printTrackerStats(configPath string, hours int, symbol string) error {
	cfg := loadConfig(configPath)
	t := buildTracker(cfg)
	defer t.Close()

	stats, ok := t.Statistics(hours, symbol)
	if !ok {
		log.Warn().Int("hours", hours).Msg("no quality records in window")
		return nil
	}
	log.Info().
		Int("total_signals", stats.TotalSignals).
		Int("signals_filtered", stats.SignalsFiltered).
		Float64("filter_rate_pct", stats.FilterRatePct).
		Float64("avg_confidence", stats.Confidence.Mean).
		Float64("avg_consensus", stats.Consensus.Mean).
		Msg("quality statistics")
	return nil
}
