// Package session persists conversation state between turns.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// DefaultTTL expires idle conversations.
const DefaultTTL = 24 * time.Hour

// RedisStore keeps each conversation as a JSON document with a sliding TTL.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a RedisStore; ttl <= 0 selects DefaultTTL.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, prefix: "session:", now: time.Now}
}

// Load implements domain.SessionStore; unknown ids yield domain.ErrNotFound.
func (s *RedisStore) Load(ctx domain.Context, id string) (domain.ConversationState, error) {
	if id == "" {
		return domain.ConversationState{}, fmt.Errorf("op=session.redis.load: %w: empty id", domain.ErrInvalidArgument)
	}
	b, err := s.rdb.Get(ctx, s.prefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ConversationState{}, fmt.Errorf("op=session.redis.load: %w: %s", domain.ErrNotFound, id)
	}
	if err != nil {
		return domain.ConversationState{}, fmt.Errorf("op=session.redis.load: %w", err)
	}
	var st domain.ConversationState
	if err := json.Unmarshal(b, &st); err != nil {
		return domain.ConversationState{}, fmt.Errorf("op=session.redis.load: %w: %v", domain.ErrInternal, err)
	}
	return st, nil
}

// Save implements domain.SessionStore and refreshes the TTL.
func (s *RedisStore) Save(ctx domain.Context, st domain.ConversationState) error {
	if st.ID == "" {
		return fmt.Errorf("op=session.redis.save: %w: empty id", domain.ErrInvalidArgument)
	}
	st.UpdatedAt = s.now().UTC()
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("op=session.redis.save: %w", err)
	}
	if err := s.rdb.Set(ctx, s.prefix+st.ID, b, s.ttl).Err(); err != nil {
		return fmt.Errorf("op=session.redis.save: %w", err)
	}
	return nil
}

// Delete implements domain.SessionStore.
func (s *RedisStore) Delete(ctx domain.Context, id string) error {
	if err := s.rdb.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("op=session.redis.delete: %w", err)
	}
	return nil
}

// Ping reports whether Redis answers.
func (s *RedisStore) Ping(ctx domain.Context) error { return s.rdb.Ping(ctx).Err() }
