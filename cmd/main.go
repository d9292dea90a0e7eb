package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/minkalla/valyze/internal/adapters/http/api"
	"github.com/minkalla/valyze/internal/adapters/http/swagger"
	app "github.com/minkalla/valyze/internal/app"
	"github.com/minkalla/valyze/internal/config"
	"github.com/minkalla/valyze/internal/domain/valuation"
	"github.com/minkalla/valyze/pkg/logger"
	"github.com/minkalla/valyze/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	os.Exit(run())
}

func run() int {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't configured yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	srv, svc, err := newServer(ctx, cfg)
	if err != nil {
		log.Error(ctx, "startup failed", logger.Error(err))
		return 1
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for shutdown signal or listener failure
	code := 0
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		log.Error(ctx, "HTTP server failed", logger.Error(err))
		code = 1
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return code
}

// newServer configures metrics, builds the model, starts the service and wires every route.
// A model configuration error aborts startup.
func newServer(ctx context.Context, cfg *config.Config) (*http.Server, *app.Service, error) {
	if err := metrics.Configure(
		metrics.WithNamespace(cfg.Metrics.Namespace),
		metrics.WithSubsystem(cfg.Metrics.Subsystem),
		metrics.WithConstLabels(cfg.Metrics.ConstLabels),
		metrics.WithLatencyBuckets(cfg.Metrics.LatencyBuckets),
	); err != nil {
		return nil, nil, err
	}

	m, err := valuation.New(cfg.Model.Kind, cfg.Model.Valuation())
	if err != nil {
		return nil, nil, fmt.Errorf("model configuration: %w", err)
	}
	info := valuation.Describe(m)
	metrics.SetModelInfo(info.Kind, info.Name, info.Version)

	svc := app.New(m,
		app.WithLogger(logger.Get()),
		app.WithWorkerCount(cfg.Provenance.WorkerCount),
		app.WithQueueSize(cfg.Provenance.QueueSize),
		app.WithLedgerPath(cfg.Provenance.LedgerPath),
		app.WithLedgerCapacity(cfg.Provenance.LedgerCapacity),
	)
	if err := svc.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("start service: %w", err)
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, svc,
		api.WithExposeErrorDetail(cfg.Server.ExposeErrorDetail),
		api.WithMaxQueryLimit(cfg.Provenance.MaxQueryLimit),
	).Register(ctx, mux)

	logger.Get().Info(ctx, "valuation model loaded",
		logger.String("kind", info.Kind),
		logger.String("model", info.Name),
		logger.String("version", info.Version),
		logger.Float64("baseValue", info.BaseValue),
		logger.Any("multiplierFactor", info.MultiplierFactor))

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}, svc, nil
}

// startSystemMetricsUpdater refreshes runtime metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater refreshes pipeline gauges until ctx is done.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

func updateServiceMetrics(svc *app.Service) {
	stats := svc.GetStats()

	if queueLen, ok := stats["queueLength"].(int); ok {
		metrics.UpdateQueueSize(queueLen)
	}
	if workerCount, ok := stats["workerCount"].(int); ok {
		metrics.UpdateWorkerCount(workerCount)
	}
	if records, ok := stats["ledgerRecords"].(int); ok {
		metrics.UpdateLedgerRecords(records)
	}
}
