package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kmercer/crypto-gatherer/internal/collector"
	"github.com/kmercer/crypto-gatherer/internal/config"
	"github.com/kmercer/crypto-gatherer/internal/database"
	"github.com/kmercer/crypto-gatherer/internal/metrics"
	"github.com/kmercer/crypto-gatherer/internal/quote"
	"github.com/kmercer/crypto-gatherer/internal/version"
	"github.com/kmercer/crypto-gatherer/internal/writer"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to config file (optional)")
	ticker := flag.String("ticker", "", "single ticker symbol to collect (e.g. BTC-USD)")
	tickers := flag.String("tickers", "", "comma-separated ticker symbols for multi-ticker mode")
	interval := flag.Duration("interval", 0, "polling interval (e.g. 1s)")
	batchSize := flag.Int("batch_size", 0, "samples per batch")
	mode := flag.String("mode", "", "topology: parallel or multiplex")
	dataDir := flag.String("data_dir", "", "data directory for parquet output")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting gatherer",
		"version", version.Version,
		"commit", version.Commit,
	)

	// Load configuration
	var cfg *config.GathererConfig
	if *configPath != "" {
		loaded, err := config.LoadWithDefaults(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			return 1
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	// Flags override config
	if *ticker != "" && *tickers != "" {
		logger.Error("--ticker and --tickers are mutually exclusive")
		return 1
	}
	if *ticker != "" {
		cfg.Collector.Tickers = []string{*ticker}
	}
	if *tickers != "" {
		cfg.Collector.Tickers = splitTickers(*tickers)
	}
	if *interval != 0 {
		cfg.Collector.Interval = *interval
	}
	if *batchSize != 0 {
		cfg.Collector.BatchSize = *batchSize
	}
	if *mode != "" {
		cfg.Collector.Topology = *mode
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return 1
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"tickers", cfg.Collector.Tickers,
		"interval", cfg.Collector.Interval,
		"batch_size", cfg.Collector.BatchSize,
		"topology", cfg.Collector.Topology,
		"sink", cfg.Storage.Sink,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Metrics registry
	registry := prometheus.NewRegistry()
	met := metrics.New(registry)

	// Quote source
	source := quote.NewClient(
		cfg.API.BaseURL,
		cfg.API.APIKey,
		quote.WithLogger(logger),
		quote.WithTimeout(cfg.API.Timeout),
	)

	// Storage
	intervalLabel := cfg.Collector.Interval.String()
	spill := writer.NewSpill(cfg.Storage.DataDir, intervalLabel)
	writerCfg := writer.Config{
		MaxRetries:   cfg.Storage.WriteRetries,
		RetryBackoff: cfg.Storage.RetryBackoff,
	}

	var newWriter collector.WriterFactory
	switch cfg.Storage.Sink {
	case "timescale":
		logger.Info("connecting to database",
			"host", cfg.Database.Timescale.Host,
			"port", cfg.Database.Timescale.Port,
			"database", cfg.Database.Timescale.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database.Timescale)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return 1
		}
		defer pool.Close()
		logger.Info("database connected")

		sink := writer.NewTimescaleSink(pool, "samples")
		newWriter = func(string) *writer.Writer {
			return writer.New(writerCfg, sink, spill, met, logger)
		}
	default:
		sink := writer.NewParquetSink(cfg.Storage.DataDir, intervalLabel, writer.Window(cfg.Storage.Window))
		newWriter = func(string) *writer.Writer {
			return writer.New(writerCfg, sink, spill, met, logger)
		}
	}

	// Orchestrator
	col := collector.New(collector.Config{
		Tickers:           cfg.Collector.Tickers,
		Interval:          cfg.Collector.Interval,
		BatchSize:         cfg.Collector.BatchSize,
		MaxBufferDuration: cfg.Collector.MaxBufferDuration,
		FetchTimeout:      cfg.API.Timeout,
		Topology:          collector.Topology(cfg.Collector.Topology),
		ShutdownTimeout:   cfg.Collector.ShutdownTimeout,
		QueueSize:         cfg.Collector.QueueSize,
	}, source, newWriter, met, logger)

	// Health and metrics server
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(col, registry, cfg.Metrics.Path),
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	if err := col.Start(ctx); err != nil {
		logger.Error("failed to start collector", "error", err)
		return 1
	}

	logger.Info("gatherer running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown signal or process-fatal collector error
	exitCode := 0
	select {
	case <-ctx.Done():
	case <-col.Done():
		if err := col.Err(); err != nil {
			logger.Error("collector failed", "error", err)
			exitCode = 1
		}
	}

	logger.Info("shutting down...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Collector.ShutdownTimeout)
	defer stopCancel()
	if err := col.Stop(stopCtx); err != nil {
		logger.Warn("collector shutdown incomplete", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("gatherer stopped")
	return exitCode
}

// splitTickers parses a comma-separated symbol list, dropping empty entries.
func splitTickers(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// createHealthHandler serves job state, health and Prometheus metrics.
func createHealthHandler(col *collector.Collector, registry *prometheus.Registry, metricsPath string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		jobs := col.Jobs()

		status := "healthy"
		running := 0
		for _, j := range jobs {
			if j.Running {
				running++
			}
		}
		if running == 0 {
			status = "unhealthy"
		} else if running < len(jobs) {
			status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": status,
			"jobs":   jobs,
		})
	})

	mux.Handle(metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return mux
}
