package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/observability"
	"github.com/fairyhunter13/laptop-assistant/internal/prompts"
)

// DefaultMappingCallTimeout bounds a shared mapping call, retries included.
const DefaultMappingCallTimeout = 2 * time.Minute

// ProductMapper maps product descriptions onto the profile schema. Results
// are content-addressed by description: at most one model call is in flight
// per description and completed results go to the cache.
type ProductMapper struct {
	Gateway CompletionGateway
	Prompts *prompts.Set
	Cache   domain.MappingCache
	// Workers bounds concurrent model calls in StartMapping.
	Workers int
	// CallTimeout bounds one shared mapping call; DefaultMappingCallTimeout when zero.
	CallTimeout time.Duration

	flight singleflight.Group
}

// NewProductMapper constructs a ProductMapper. cache may be nil.
func NewProductMapper(g CompletionGateway, p *prompts.Set, cache domain.MappingCache, workers int) *ProductMapper {
	if workers < 1 {
		workers = 1
	}
	return &ProductMapper{Gateway: g, Prompts: p, Cache: cache, Workers: workers}
}

// DoProductMapping returns the mapped profile of one description. Concurrent
// callers for the same description share one model call; a caller that gives
// up returns its own context error while the call runs on for the others.
func (m *ProductMapper) DoProductMapping(ctx context.Context, description string) (domain.Profile, error) {
	if p, ok := m.cached(ctx, description); ok {
		return p, nil
	}
	ch := m.flight.DoChan(description, func() (any, error) {
		// Detached from the caller that started the flight; bounded on its own.
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.callTimeout())
		defer cancel()
		return m.mapUncached(sctx, description)
	})
	select {
	case <-ctx.Done():
		return domain.Profile{}, fmt.Errorf("op=mapper.DoProductMapping: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domain.Profile{}, fmt.Errorf("op=mapper.DoProductMapping: %w", res.Err)
		}
		return res.Val.(domain.Profile), nil
	}
}

func (m *ProductMapper) callTimeout() time.Duration {
	if m.CallTimeout > 0 {
		return m.CallTimeout
	}
	return DefaultMappingCallTimeout
}

func (m *ProductMapper) mapUncached(ctx context.Context, description string) (domain.Profile, error) {
	if p, ok := m.cached(ctx, description); ok {
		return p, nil
	}
	temp := 0.0
	seed := SeedMapping
	req := domain.ChatRequest{
		Messages:    []domain.Message{{Role: domain.RoleSystem, Content: m.Prompts.ProductMap(description)}},
		Seed:        &seed,
		Temperature: &temp,
	}
	var raw map[string]any
	if err := m.Gateway.SendJSON(ctx, req, &raw); err != nil {
		return domain.Profile{}, err
	}
	p, err := domain.MappedProfileFromMap(raw)
	if err != nil {
		return domain.Profile{}, err
	}
	if m.Cache != nil {
		if err := m.Cache.Set(ctx, description, p); err != nil {
			observability.LoggerFromContext(ctx).Warn("mapping cache write failed", slog.Any("error", err))
		}
	}
	return p, nil
}

func (m *ProductMapper) cached(ctx context.Context, description string) (domain.Profile, bool) {
	if m.Cache == nil {
		return domain.Profile{}, false
	}
	p, ok, err := m.Cache.Get(ctx, description)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("mapping cache read failed", slog.Any("error", err))
		return domain.Profile{}, false
	}
	return p, ok
}

// StartMapping fills Mapped for every product that lacks it, in place. Rows
// that already carry a mapping are reused, and each distinct description is
// mapped once per batch. The first failure aborts the batch and names the row.
func (m *ProductMapper) StartMapping(ctx context.Context, products []domain.Product, progress ProgressFunc) error {
	pending := map[string][]int{}
	var order []string
	for i := range products {
		if products[i].Mapped != nil && !products[i].Mapped.IsZero() {
			continue
		}
		d := products[i].Description
		if _, seen := pending[d]; !seen {
			order = append(order, d)
		}
		pending[d] = append(pending[d], i)
	}
	total := len(order)
	progress.emit(Progress{Stage: StageMapping, Done: 0, Total: total})
	if total == 0 {
		return nil
	}

	workers := m.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	var mu sync.Mutex
	done := 0
	for _, d := range order {
		rows := pending[d]
		g.Go(func() error {
			p, err := m.DoProductMapping(gctx, d)
			if err != nil {
				return fmt.Errorf("row %d: %w", rows[0]+1, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, i := range rows {
				pc := p
				products[i].Mapped = &pc
			}
			done++
			progress.emit(Progress{Stage: StageMapping, Done: done, Total: total})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("op=mapper.StartMapping: %w", err)
	}
	return nil
}

// Score counts the ordinal attributes where the product's level meets or
// exceeds the user's. Unmapped products score 0.
func Score(p domain.Product, user domain.Profile) domain.ScoredProduct {
	sp := domain.ScoredProduct{Product: p}
	if p.Mapped == nil {
		return sp
	}
	for _, k := range domain.OrdinalKeys {
		pr, ur := p.Mapped.Level(k).Rank(), user.Level(k).Rank()
		if pr > 0 && pr >= ur {
			sp.Score++
		}
	}
	return sp
}
