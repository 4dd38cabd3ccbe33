// Command server starts the laptop assistant HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fairyhunter13/laptop-assistant/internal/adapter/observability"
	"github.com/fairyhunter13/laptop-assistant/internal/app"
	"github.com/fairyhunter13/laptop-assistant/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}

	err = run(cfg)
	if shutdownTracer != nil {
		_ = shutdownTracer(context.Background())
	}
	if err != nil {
		slog.Error("assistant stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// run serves chat and ingestion traffic until SIGINT/SIGTERM, then drains
// in-flight turns within ServerShutdownTimeout.
func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.Build(ctx, cfg, app.Options{})
	if err != nil {
		return fmt.Errorf("dependency wiring: %w", err)
	}
	defer c.Close()
	slog.Info("dependencies ready",
		slog.String("catalog_backend", cfg.CatalogBackend),
		slog.String("llm_provider", cfg.LLMProvider),
		slog.Bool("redis", cfg.RedisURL != ""),
		slog.Bool("kafka", cfg.KafkaEnabled()),
		slog.Bool("s3", cfg.S3Enabled()))

	if c.Sweeper != nil {
		go c.Sweeper.Run(ctx)
	}
	go func() {
		if _, err := seedCatalogIfEmpty(ctx, c.Catalog, c.Ingestion, cfg.CatalogSeedFile); err != nil {
			slog.Error("catalog seed failed", slog.Any("error", err))
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app.BuildRouter(cfg, c.Server()),
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("assistant listening", slog.Int("port", cfg.Port))
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("stopping assistant", slog.Any("cause", context.Cause(ctx)))
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("drain: %w", err)
	}
	return nil
}
