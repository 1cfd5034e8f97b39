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

	"github.com/okian/ekpsearch/internal/adapters/http/api"
	"github.com/okian/ekpsearch/internal/adapters/http/site"
	"github.com/okian/ekpsearch/internal/adapters/http/swagger"
	"github.com/okian/ekpsearch/internal/adapters/repository"
	service "github.com/okian/ekpsearch/internal/app"
	"github.com/okian/ekpsearch/internal/config"
	"github.com/okian/ekpsearch/internal/domain/analysis"
	"github.com/okian/ekpsearch/internal/domain/search"
	"github.com/okian/ekpsearch/internal/domain/vectorizer"
	"github.com/okian/ekpsearch/pkg/logger"
	"github.com/okian/ekpsearch/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := run(); err != nil {
		// The logger may not be up yet.
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
}

func run() error {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// defaults -> optional file -> env
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.InitWithOptions(logger.Options{Format: logger.Format(cfg.LogFormat)}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error(ctx, "close store failed", logger.Error(err))
		}
	}()

	svc, err := newService(cfg, store, log)
	if err != nil {
		return err
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, cfg, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service stop failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return nil
}

// openStore opens the configured record store behind a circuit breaker.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	opts := []repository.Option{
		repository.WithLogger(log.Named("store")),
		repository.WithTimeout(cfg.StoreTimeout()),
		repository.WithBreakerFailures(cfg.BreakerFailures),
		repository.WithBreakerOpen(cfg.BreakerOpen()),
	}
	store, err := repository.NewStore(ctx, cfg.StoreDSN, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return repository.NewBreakerStore(store, opts...), nil
}

// newService builds the text pipeline from cfg and the service around it.
func newService(cfg *config.Config, store repository.Store, log logger.Logger) (*service.Service, error) {
	an, err := analysis.New(
		analysis.WithLanguage(cfg.Language),
		analysis.WithStemming(cfg.Stemming),
		analysis.WithStopWords(cfg.StopWords),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build analyzer: %w", err)
	}
	norm, err := vectorizer.ParseNorm(cfg.Norm)
	if err != nil {
		return nil, fmt.Errorf("failed to parse norm: %w", err)
	}

	svc, err := service.New(store,
		service.WithLogger(log),
		service.WithWorkerCount(cfg.IngestWorkers),
		service.WithQueueSize(cfg.IngestQueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithReindexInterval(cfg.ReindexInterval()),
		service.WithEngineOptions(
			search.WithLogger(log.Named("search")),
			search.WithAnalyzer(an),
			search.WithNorm(norm),
			search.WithHydrationConcurrency(cfg.HydrationConcurrency),
			search.WithRebuildTimeout(cfg.RebuildTimeout()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return svc, nil
}

// newMux registers docs, the search page and the business API.
func newMux(ctx context.Context, cfg *config.Config, svc api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	site.Register(ctx, mux)
	api.NewServer(svc,
		api.WithSearchLimits(cfg.DefaultK, cfg.MaxK),
		api.WithRateLimit(cfg.SearchRPS, cfg.SearchBurst),
		api.WithMaxBodyBytes(cfg.MaxBodyBytes),
	).Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
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

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc)
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

type statsSource interface {
	GetStats(ctx context.Context) service.Stats
}

func updateServiceMetrics(ctx context.Context, src statsSource) {
	st := src.GetStats(ctx)
	if st.QueueCapacity > 0 {
		metrics.UpdateQueueSize(st.QueueLength, st.QueueCapacity)
	}
	metrics.UpdateWorkerCount(st.Workers)
}
