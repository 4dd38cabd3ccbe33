package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// Key normalises a description into a cache key: surrounding whitespace is
// ignored and long descriptions are hashed.
func Key(description string) string {
	d := strings.TrimSpace(description)
	if len(d) <= 64 {
		return d
	}
	sum := sha256.Sum256([]byte(d))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// Redis stores mappings in Redis so replicas and later runs share them.
type Redis struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis returns a Redis tier; ttl <= 0 keeps entries forever.
func NewRedis(rdb *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "mapping:"
	}
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(description string) string {
	sum := sha256.Sum256([]byte(Key(description)))
	return r.prefix + hex.EncodeToString(sum[:])
}

// Get implements domain.MappingCache.
func (r *Redis) Get(ctx domain.Context, description string) (domain.Profile, bool, error) {
	b, err := r.rdb.Get(ctx, r.key(description)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Profile{}, false, nil
	}
	if err != nil {
		return domain.Profile{}, false, fmt.Errorf("op=cache.redis.get: %w", err)
	}
	var p domain.Profile
	if err := json.Unmarshal(b, &p); err != nil {
		// a corrupt entry is a miss; the next Set overwrites it
		return domain.Profile{}, false, nil
	}
	return p, true, nil
}

// Set implements domain.MappingCache.
func (r *Redis) Set(ctx domain.Context, description string, p domain.Profile) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("op=cache.redis.set: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(description), b, r.ttl).Err(); err != nil {
		return fmt.Errorf("op=cache.redis.set: %w", err)
	}
	return nil
}
