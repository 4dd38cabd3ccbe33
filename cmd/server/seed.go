package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/usecase"
)

type seedIngestor interface {
	RunIngestion(ctx context.Context, filePath string, progress usecase.ProgressFunc) (usecase.IngestionReport, error)
}

// seedCatalogIfEmpty ingests path when the catalog holds no rows. A missing
// seed file is skipped with a warning. It reports whether ingestion ran.
func seedCatalogIfEmpty(ctx context.Context, catalog domain.CatalogStore, ingest seedIngestor, path string) (bool, error) {
	if path == "" {
		return false, nil
	}
	existing, err := catalog.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("op=seed.load: %w", err)
	}
	if len(existing) > 0 {
		slog.Info("catalog already populated; skipping seed", slog.Int("rows", len(existing)))
		return false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		slog.Warn("catalog seed file not found", slog.String("path", path))
		return false, nil
	}
	rep, err := ingest.RunIngestion(ctx, path, nil)
	if err != nil {
		return false, fmt.Errorf("op=seed.ingest: %w", err)
	}
	slog.Info("catalog seeded", slog.String("run_id", rep.RunID), slog.Int("rows", rep.Rows), slog.Int("reused", rep.Reused))
	return true, nil
}
