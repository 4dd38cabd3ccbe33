package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

func newTestLimiter(t *testing.T, buckets map[string]BucketConfig) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLimiter(rdb, buckets), mr
}

func TestNewBucketConfigFromPerMinute(t *testing.T) {
	cfg := NewBucketConfigFromPerMinute(60)
	assert.Equal(t, int64(60), cfg.Capacity)
	assert.InDelta(t, 1.0, cfg.RefillRate, 1e-9)
	assert.Equal(t, BucketConfig{}, NewBucketConfigFromPerMinute(0))
}

func TestRedisLimiter_NilAllowsEverything(t *testing.T) {
	var l *RedisLimiter
	ok, retry, err := l.Allow(context.Background(), KeyChat, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, retry)
	l.SetBucketConfig(KeyChat, BucketConfig{Capacity: 1, RefillRate: 1})
	assert.Nil(t, NewRedisLimiter(nil, nil))
}

func TestRedisLimiter_UnknownKeyIsUnlimited(t *testing.T) {
	l, _ := newTestLimiter(t, nil)
	for i := 0; i < 5; i++ {
		ok, _, err := l.Allow(context.Background(), "other", 1)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRedisLimiter_ExhaustsAndRefills(t *testing.T) {
	l, _ := newTestLimiter(t, map[string]BucketConfig{KeyChat: {Capacity: 2, RefillRate: 1}})
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _, err := l.Allow(ctx, KeyChat, 1)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, retry, err := l.Allow(ctx, KeyChat, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.InDelta(t, time.Second, retry, float64(10*time.Millisecond))

	now = now.Add(1500 * time.Millisecond)
	ok, _, err = l.Allow(ctx, KeyChat, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiter_FailsOpenOnRedisError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })
	l := NewRedisLimiter(rdb, map[string]BucketConfig{KeyChat: {Capacity: 1, RefillRate: 1}})
	ok, _, err := l.Allow(context.Background(), KeyChat, 1)
	assert.Error(t, err)
	assert.True(t, ok)
}

type stubLimiter struct {
	allowed bool
	err     error
}

func (s stubLimiter) Allow(context.Context, string, int64) (bool, time.Duration, error) {
	return s.allowed, time.Second, s.err
}

type stubChat struct{ calls int }

func (s *stubChat) Chat(domain.Context, domain.ChatRequest) (string, error) {
	s.calls++
	return "ok", nil
}

type stubModerator struct{ calls int }

func (s *stubModerator) Moderate(domain.Context, string) (bool, error) {
	s.calls++
	return false, nil
}

func TestChatProvider_ThrottledCallIsRetryableRateLimit(t *testing.T) {
	next := &stubChat{}
	c := ChatProvider{Next: next, Limiter: stubLimiter{allowed: false}}
	_, err := c.Chat(context.Background(), domain.ChatRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
	assert.True(t, domain.IsRetryable(err))
	assert.Zero(t, next.calls)

	c.Limiter = stubLimiter{allowed: true}
	out, err := c.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, 1, next.calls)
}

func TestModerator_LimiterErrorFailsOpen(t *testing.T) {
	next := &stubModerator{}
	m := Moderator{Next: next, Limiter: stubLimiter{err: errors.New("redis down")}}
	_, err := m.Moderate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)

	m.Limiter = nil
	_, err = m.Moderate(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}
