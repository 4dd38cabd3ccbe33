package usecase

import (
	"sort"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// Result sizes.
const (
	TopScored    = 10
	TopRecommend = 3
)

// FilterBudget keeps the products priced at or below the budget found in
// criteria (first run of digits and commas). Without a number the median
// price of records is used. Input order is preserved.
func FilterBudget(records []domain.Product, criteria string) []domain.Product {
	threshold, ok := domain.ParseBudget(criteria)
	if !ok {
		threshold = medianPrice(records)
	}
	out := make([]domain.Product, 0, len(records))
	for _, r := range records {
		if r.Price <= threshold {
			out = append(out, r)
		}
	}
	return out
}

func medianPrice(records []domain.Product) int64 {
	n := len(records)
	if n == 0 {
		return 0
	}
	prices := make([]int64, n)
	for i, r := range records {
		prices[i] = r.Price
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i] < prices[j] })
	if n%2 == 1 {
		return prices[n/2]
	}
	return int64((float64(prices[n/2-1]) + float64(prices[n/2])) / 2)
}

// FilterByUserScore scores every record against user, sorts by score
// descending (stable on ties) and keeps the top TopScored.
func FilterByUserScore(records []domain.Product, user domain.Profile) []domain.ScoredProduct {
	scored := make([]domain.ScoredProduct, len(records))
	for i, r := range records {
		scored[i] = Score(r, user)
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > TopScored {
		scored = scored[:TopScored]
	}
	return scored
}
