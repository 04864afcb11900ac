package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/okian/seasonal/internal/adapters/http/api"
	"github.com/okian/seasonal/internal/adapters/http/site"
	"github.com/okian/seasonal/internal/adapters/http/swagger"
	service "github.com/okian/seasonal/internal/app"
	"github.com/okian/seasonal/internal/config"
	"github.com/okian/seasonal/pkg/logger"
	"github.com/okian/seasonal/pkg/metrics"
)

// HTTP server timeout constants. Writes allow for a full hybrid analysis.
const (
	readTimeout               = 30 * time.Second
	writeTimeout              = 3 * time.Minute
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	l := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		l.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, l); err != nil {
		l.Error(ctx, "server exited", logger.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run(ctx context.Context, cfg *config.Config, l logger.Logger) error {
	if err := metrics.Register(collectors.NewBuildInfoCollector()); err != nil {
		l.Warn(ctx, "build info collector not registered", logger.Error(err))
	}

	svc, err := service.FromConfig(cfg, l)
	if err != nil {
		return err
	}
	if err := startService(ctx, svc); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := svc.Stop(stopCtx); err != nil {
			l.Error(ctx, "service stop failed", logger.Error(err))
		}
	}()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newHandler(ctx, cfg, svc, l),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.Any("providers", svc.Providers()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	l.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	l.Info(ctx, "server stopped")
	return nil
}

// startService starts the worker pool on a context that keeps ctx's values
// but not its cancellation, so a shutdown signal leaves queued analyses for
// Stop to drain.
func startService(ctx context.Context, svc *service.Service) error {
	return svc.Start(context.WithoutCancel(ctx))
}

// newHandler mounts the API, the docs and the landing page behind the
// request id middleware.
func newHandler(ctx context.Context, cfg *config.Config, svc *service.Service, l logger.Logger) http.Handler {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	site.Register(ctx, mux)

	apiServer := api.NewServer(svc, svc,
		api.WithLogger(l.Named("api")),
		api.WithImageLimits(api.ImageLimits{
			MaxBytes:     cfg.MaxImageBytes,
			MinDimension: cfg.MinImageDimension,
			MaxDimension: cfg.MaxImageDimension,
		}),
	)
	apiServer.Register(ctx, mux)
	return api.RequestIDMiddleware(mux)
}

// startSystemMetricsUpdater periodically refreshes the process gauges.
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
