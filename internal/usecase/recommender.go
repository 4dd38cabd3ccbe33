package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/observability"
	"github.com/fairyhunter13/laptop-assistant/internal/prompts"
)

// NoMatchMessage is returned when no product fits the budget.
const NoMatchMessage = "Sorry, I could not find any laptops in our catalog that match your budget."

// Recommender ranks the catalog against a user profile and writes the
// recommendation prose for the best matches.
type Recommender struct {
	Catalog domain.CatalogStore
	Mapper  *ProductMapper
	Gateway CompletionGateway
	Prompts *prompts.Set
}

// NewRecommender constructs a Recommender.
func NewRecommender(c domain.CatalogStore, m *ProductMapper, g CompletionGateway, p *prompts.Set) *Recommender {
	return &Recommender{Catalog: c, Mapper: m, Gateway: g, Prompts: p}
}

// MapAndScore maps any unmapped rows, filters by the user's budget and
// returns at most TopScored products ranked by score. catalog is not modified.
func (r *Recommender) MapAndScore(ctx context.Context, catalog []domain.Product, user domain.Profile) ([]domain.ScoredProduct, error) {
	rows := append([]domain.Product(nil), catalog...)
	if r.Mapper != nil {
		if err := r.Mapper.StartMapping(ctx, rows, nil); err != nil {
			return nil, fmt.Errorf("op=recommender.MapAndScore: %w", err)
		}
	}
	affordable := FilterBudget(rows, strconv.FormatInt(user.Budget, 10))
	return FilterByUserScore(affordable, user), nil
}

// Recommend loads the catalog, ranks it and returns the prose for the top
// TopRecommend products together with those products.
func (r *Recommender) Recommend(ctx context.Context, user domain.Profile) (string, []domain.ScoredProduct, error) {
	catalog, err := r.Catalog.Load(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("op=recommender.Recommend: %w", err)
	}
	ranked, err := r.MapAndScore(ctx, catalog, user)
	if err != nil {
		return "", nil, err
	}
	if len(ranked) > TopRecommend {
		ranked = ranked[:TopRecommend]
	}
	observability.LoggerFromContext(ctx).Info("recommendation ranked",
		slog.Int("catalog_rows", len(catalog)),
		slog.Int("selected", len(ranked)),
		slog.Int64("budget", user.Budget))
	if len(ranked) == 0 {
		return NoMatchMessage, nil, nil
	}

	temp := 0.0
	prose, err := r.Gateway.Send(ctx, domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: r.Prompts.Recommender()},
			{Role: domain.RoleUser, Content: RenderShortlist(ranked)},
		},
		Temperature: &temp,
	})
	if err != nil {
		return "", nil, fmt.Errorf("op=recommender.Recommend: %w", err)
	}
	return strings.TrimSpace(prose), ranked, nil
}

// RenderShortlist formats products as numbered Description/Price lines.
func RenderShortlist(products []domain.ScoredProduct) string {
	var b strings.Builder
	for i, p := range products {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. Description: %s | Price: %d", i+1, strings.TrimSpace(p.Description), p.Price)
	}
	return b.String()
}
