package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	httpadapter "github.com/couchcryptid/s2s-forecast-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/s2s-forecast-service/internal/adapter/kafka"
	"github.com/couchcryptid/s2s-forecast-service/internal/adapter/netcdf"
	"github.com/couchcryptid/s2s-forecast-service/internal/config"
	"github.com/couchcryptid/s2s-forecast-service/internal/observability"
	"github.com/couchcryptid/s2s-forecast-service/internal/pipeline"
	"github.com/couchcryptid/s2s-forecast-service/internal/scheduler"
)

// scheduledReloadTimeout bounds one periodic rebuild, retries included.
const scheduledReloadTimeout = 10 * time.Minute

func main() {
	// A .env file is optional; real environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	metrics := observability.NewMetrics()

	// Cube events are feature-flagged via KAFKA_BROKERS.
	var notifier pipeline.Notifier
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		notifier = writer
		logger.Info("cube events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("cube events disabled")
	}

	opts := pipeline.DefaultOptions()
	opts.Reducer = cfg.Reducer
	opts.Concurrency = cfg.BuildConcurrency
	opts.CacheSize = cfg.QueryCacheSize
	opts.Attempts = cfg.LoadAttempts

	source := netcdf.NewFileSource(cfg.DataDir, cfg.DataPattern, logger)
	svc := pipeline.New(source, notifier, logger, metrics, opts)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A cube that cannot be built at startup is fatal; later reloads are not.
	if err := svc.Reload(ctx); err != nil {
		logger.Error("initial cube build failed", "error", err)
		closeWriter(writer, logger)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, cfg.AllowedOrigins, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	// SIGHUP rebuilds the cube from the current input file.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go svc.Run(ctx, hup)

	if cfg.ReloadInterval > 0 {
		sched := scheduler.New(svc, cfg.ReloadInterval, scheduledReloadTimeout, logger)
		if err := sched.Start(ctx); err != nil {
			logger.Error("failed to start reload scheduler", "error", err)
			stop()
		} else {
			defer sched.Stop()
			logger.Info("periodic reload enabled", "interval", cfg.ReloadInterval)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	closeWriter(writer, logger)

	logger.Info("shutdown complete")
}

func closeWriter(w *kafkaadapter.Writer, logger *slog.Logger) {
	if w == nil {
		return
	}
	if err := w.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
}
