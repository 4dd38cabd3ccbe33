// Package file keeps the catalog in a single structured file.
package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// CatalogRepo implements domain.CatalogStore on top of a TableCodec.
type CatalogRepo struct {
	Codec domain.TableCodec
	Path  string
	mu    sync.RWMutex
}

// NewCatalogRepo constructs a CatalogRepo for path.
func NewCatalogRepo(codec domain.TableCodec, path string) *CatalogRepo {
	return &CatalogRepo{Codec: codec, Path: path}
}

// Load reads the catalog file; a missing file is an empty catalog.
func (r *CatalogRepo) Load(ctx domain.Context) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, err := os.Stat(r.Path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	products, err := r.Codec.Read(ctx, r.Path)
	if err != nil {
		return nil, fmt.Errorf("op=file.catalog.load: %w", err)
	}
	return products, nil
}

// Replace writes a sibling temp file and renames it over the catalog.
func (r *CatalogRepo) Replace(ctx domain.Context, products []domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	dir := filepath.Dir(r.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("op=file.catalog.replace: %w", err)
	}
	ext := filepath.Ext(r.Path)
	tmp := filepath.Join(dir, "."+strings.TrimSuffix(filepath.Base(r.Path), ext)+".tmp"+ext)
	if err := r.Codec.Write(ctx, tmp, products); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("op=file.catalog.replace: %w", err)
	}
	if err := os.Rename(tmp, r.Path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("op=file.catalog.replace: %w", err)
	}
	return nil
}
