package cache

import (
	"log/slog"

	adapterobs "github.com/fairyhunter13/laptop-assistant/internal/adapter/observability"
	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/observability"
)

// Tiered consults L1 then L2 and back-fills L1 on an L2 hit. L2 is optional
// and its failures degrade to misses.
type Tiered struct {
	L1 *LRU
	L2 domain.MappingCache
}

// NewTiered builds a tiered cache; l2 may be nil.
func NewTiered(l1 *LRU, l2 domain.MappingCache) *Tiered { return &Tiered{L1: l1, L2: l2} }

// Get implements domain.MappingCache.
func (t *Tiered) Get(ctx domain.Context, description string) (domain.Profile, bool, error) {
	if p, ok, _ := t.L1.Get(ctx, description); ok {
		adapterobs.ObserveCacheLookup("l1", true)
		return p, true, nil
	}
	adapterobs.ObserveCacheLookup("l1", false)
	if t.L2 == nil {
		return domain.Profile{}, false, nil
	}
	p, ok, err := t.L2.Get(ctx, description)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("mapping cache l2 get failed", slog.Any("error", err))
		return domain.Profile{}, false, nil
	}
	adapterobs.ObserveCacheLookup("l2", ok)
	if ok {
		_ = t.L1.Set(ctx, description, p)
	}
	return p, ok, nil
}

// Set implements domain.MappingCache; the entry always lands in L1.
func (t *Tiered) Set(ctx domain.Context, description string, p domain.Profile) error {
	_ = t.L1.Set(ctx, description, p)
	if t.L2 == nil {
		return nil
	}
	if err := t.L2.Set(ctx, description, p); err != nil {
		observability.LoggerFromContext(ctx).Warn("mapping cache l2 set failed", slog.Any("error", err))
	}
	return nil
}
