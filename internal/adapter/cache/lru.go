// Package cache provides mapping caches keyed by product description: an
// in-process LRU, a Redis-backed shared tier and a tiered combination.
package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// DefaultLRUSize bounds the in-process tier.
const DefaultLRUSize = 4096

// LRU is an in-process mapping cache.
type LRU struct {
	c *lru.Cache[string, domain.Profile]
}

// NewLRU returns an LRU holding up to size entries.
func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		size = DefaultLRUSize
	}
	c, err := lru.New[string, domain.Profile](size)
	if err != nil {
		return nil, fmt.Errorf("op=cache.NewLRU: %w", err)
	}
	return &LRU{c: c}, nil
}

// Get implements domain.MappingCache.
func (l *LRU) Get(_ domain.Context, description string) (domain.Profile, bool, error) {
	p, ok := l.c.Get(Key(description))
	return p, ok, nil
}

// Set implements domain.MappingCache.
func (l *LRU) Set(_ domain.Context, description string, p domain.Profile) error {
	l.c.Add(Key(description), p)
	return nil
}

// Len reports the number of cached entries.
func (l *LRU) Len() int { return l.c.Len() }
