package app

import (
	"context"
	"fmt"

	httpserver "github.com/fairyhunter13/laptop-assistant/internal/adapter/httpserver"
	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// Pinger is any dependency that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RedisPingResult is the minimal return type of a Redis client's Ping.
type RedisPingResult interface{ Err() error }

// RedisClient is the minimal interface for a Redis client needed for readiness.
type RedisClient interface {
	Ping(ctx context.Context) RedisPingResult
}

// BuildReadinessChecks returns one check per configured dependency.
// A nil dependency is skipped; the catalog check always runs.
func BuildReadinessChecks(db Pinger, rdb RedisClient, catalog domain.CatalogStore) []httpserver.ReadinessCheck {
	var checks []httpserver.ReadinessCheck
	if db != nil {
		checks = append(checks, httpserver.ReadinessCheck{Name: "db", Check: db.Ping})
	}
	if rdb != nil {
		checks = append(checks, httpserver.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	checks = append(checks, httpserver.ReadinessCheck{Name: "catalog", Check: func(ctx context.Context) error {
		if catalog == nil {
			return fmt.Errorf("catalog not configured")
		}
		_, err := catalog.Load(ctx)
		return err
	}})
	return checks
}
