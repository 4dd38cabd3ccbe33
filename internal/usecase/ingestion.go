package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/observability"
)

// IngestionService loads a catalog file, maps every row and replaces the
// catalog table. Re-running after a failure converges because the store is
// replaced wholesale and rows that already carry a mapping are reused.
type IngestionService struct {
	Codec   domain.TableCodec
	Catalog domain.CatalogStore
	Mapper  *ProductMapper
	// Objects is optional; when set the source file is uploaded first.
	Objects domain.ObjectStore
	// SnapshotPath, when set, receives the mapped catalog.
	SnapshotPath string
	// WorkDir holds downloaded files; defaults to os.TempDir().
	WorkDir string
}

// IngestionReport summarises one run.
type IngestionReport struct {
	RunID    string `json:"run_id"`
	File     string `json:"file"`
	Rows     int    `json:"rows"`
	Reused   int    `json:"reused"`
	Snapshot string `json:"snapshot,omitempty"`
}

// RunIngestion ingests the catalog file at filePath. Any failure aborts the
// run and is reported with the file (and row where known).
func (s IngestionService) RunIngestion(ctx context.Context, filePath string, progress ProgressFunc) (IngestionReport, error) {
	rep := IngestionReport{RunID: ulid.Make().String(), File: filepath.Base(filePath)}
	emit := func(p Progress) {
		p.RunID = rep.RunID
		progress.emit(p)
	}
	lg := observability.LoggerFromContext(ctx).With(slog.String("run_id", rep.RunID), slog.String("file", rep.File))
	ctx = observability.ContextWithLogger(ctx, lg)

	if s.Objects != nil {
		emit(Progress{Stage: StageUpload, Message: rep.File})
		if err := s.Objects.Put(ctx, filePath, rep.File); err != nil {
			return rep, fmt.Errorf("op=ingestion.Run: upload %s: %w", rep.File, err)
		}
	}

	emit(Progress{Stage: StageRead, Message: rep.File})
	products, err := s.Codec.Read(ctx, filePath)
	if err != nil {
		return rep, fmt.Errorf("op=ingestion.Run: read %s: %w", rep.File, err)
	}
	for i := range products {
		if strings.TrimSpace(products[i].Description) == "" {
			return rep, fmt.Errorf("op=ingestion.Run: %s row %d: %w: empty %s", rep.File, i+1, domain.ErrCatalogSchema, domain.ColumnDescription)
		}
		if products[i].Price == 0 && products[i].RawPrice != "" {
			products[i].Price = domain.NormalizePrice(products[i].RawPrice)
		}
		if products[i].Mapped != nil && !products[i].Mapped.IsZero() {
			rep.Reused++
		}
	}
	rep.Rows = len(products)
	lg.Info("catalog read", slog.Int("rows", rep.Rows), slog.Int("reused", rep.Reused))

	mapProgress := func(p Progress) { emit(p) }
	if err := s.Mapper.StartMapping(ctx, products, mapProgress); err != nil {
		return rep, fmt.Errorf("op=ingestion.Run: %s: %w", rep.File, err)
	}

	emit(Progress{Stage: StageStore, Total: rep.Rows})
	if err := s.Catalog.Replace(ctx, products); err != nil {
		return rep, fmt.Errorf("op=ingestion.Run: replace catalog: %w", err)
	}

	if s.SnapshotPath != "" {
		emit(Progress{Stage: StageSnapshot, Message: s.SnapshotPath})
		if err := s.Codec.Write(ctx, s.SnapshotPath, products); err != nil {
			return rep, fmt.Errorf("op=ingestion.Run: snapshot: %w", err)
		}
		rep.Snapshot = s.SnapshotPath
	}

	emit(Progress{Stage: StageDone, Done: rep.Rows, Total: rep.Rows})
	lg.Info("ingestion completed", slog.Int("rows", rep.Rows))
	return rep, nil
}

// RunIngestionFromObject downloads remoteName from object storage and ingests it.
func (s IngestionService) RunIngestionFromObject(ctx context.Context, remoteName string, progress ProgressFunc) (IngestionReport, error) {
	if s.Objects == nil {
		return IngestionReport{}, fmt.Errorf("op=ingestion.RunFromObject: %w: object storage not configured", domain.ErrInvalidArgument)
	}
	dir := s.WorkDir
	if dir == "" {
		dir = os.TempDir()
	}
	tmp, err := os.MkdirTemp(dir, "ingest-*")
	if err != nil {
		return IngestionReport{}, fmt.Errorf("op=ingestion.RunFromObject: %w", err)
	}
	defer os.RemoveAll(tmp)

	local := filepath.Join(tmp, filepath.Base(remoteName))
	progress.emit(Progress{Stage: StageDownload, Message: remoteName})
	if err := s.Objects.Get(ctx, remoteName, local); err != nil {
		return IngestionReport{}, fmt.Errorf("op=ingestion.RunFromObject: download %s: %w", remoteName, err)
	}
	// the file is already in storage; skip re-upload
	s.Objects = nil
	return s.RunIngestion(ctx, local, progress)
}
