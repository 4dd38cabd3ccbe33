// Command ingest maps a laptop catalog file and loads it into the configured
// catalog store.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fairyhunter13/laptop-assistant/internal/adapter/observability"
	"github.com/fairyhunter13/laptop-assistant/internal/app"
	"github.com/fairyhunter13/laptop-assistant/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(openFromEnv)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// openFromEnv wires the ingestion service from the environment. Hand-off
// events are never published from the CLI.
func openFromEnv(ctx context.Context, snapshot string) (ingestor, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(observability.SetupLogger(cfg))
	observability.InitMetrics()
	if snapshot != "" {
		cfg.MappedSnapshot = snapshot
	}
	c, err := app.Build(ctx, cfg, app.Options{SkipEvents: true})
	if err != nil {
		c.Close()
		return nil, nil, err
	}
	return c.Ingestion, c.Close, nil
}
