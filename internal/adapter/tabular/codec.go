package tabular

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/observability"
)

var errEmpty = errors.New("no data")

// Supported extensions.
const (
	ExtCSV     = ".csv"
	ExtXLSX    = ".xlsx"
	ExtParquet = ".parquet"
)

// Codec implements domain.TableCodec.
type Codec struct{}

// New returns a Codec.
func New() Codec { return Codec{} }

// Supported reports whether path has an extension the codec handles.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ExtCSV, ExtXLSX, ExtParquet:
		return true
	}
	return false
}

// Read parses the catalog file at path.
func (Codec) Read(ctx context.Context, path string) ([]domain.Product, error) {
	if path == "" {
		return nil, fmt.Errorf("op=tabular.Read: %w: empty path", domain.ErrInvalidArgument)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ext := strings.ToLower(filepath.Ext(path))
	var (
		t   table
		err error
	)
	switch ext {
	case ExtCSV:
		t, err = readCSV(path)
	case ExtXLSX:
		t, err = readXLSX(path)
	case ExtParquet:
		t, err = readParquet(path)
	default:
		return nil, fmt.Errorf("op=tabular.Read: %w: unsupported file format %q", domain.ErrInvalidArgument, ext)
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("op=tabular.Read: %w: %s", domain.ErrNotFound, path)
	case errors.Is(err, errEmpty):
		return nil, fmt.Errorf("op=tabular.Read: %w: %s: %v", domain.ErrCatalogSchema, path, err)
	case err != nil:
		return nil, fmt.Errorf("op=tabular.Read: %w: %s is malformed: %v", domain.ErrCatalogSchema, path, err)
	}
	products, err := t.products()
	if err != nil {
		return nil, fmt.Errorf("op=tabular.Read: %s: %w", path, err)
	}
	observability.LoggerFromContext(ctx).Info("catalog file read",
		slog.String("path", path), slog.Int("rows", len(products)))
	return products, nil
}

// Write stores products at path in the format chosen by its extension.
func (Codec) Write(ctx context.Context, path string, products []domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t := fromProducts(products)
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ExtCSV:
		err = writeCSV(path, t)
	case ExtXLSX:
		err = writeXLSX(path, t)
	case ExtParquet:
		err = writeParquet(path, t)
	default:
		return fmt.Errorf("op=tabular.Write: %w: unsupported file format %q", domain.ErrInvalidArgument, ext)
	}
	if err != nil {
		return fmt.Errorf("op=tabular.Write: %s: %w", path, err)
	}
	observability.LoggerFromContext(ctx).Info("catalog file written",
		slog.String("path", path), slog.Int("rows", len(products)))
	return nil
}
