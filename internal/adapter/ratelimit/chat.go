package ratelimit

import (
	"fmt"
	"log/slog"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/observability"
)

// Bucket keys.
const (
	KeyChat       = "llm:chat"
	KeyModeration = "llm:moderation"
)

// ChatProvider throttles an underlying domain.ChatProvider. A refused call
// returns domain.ErrUpstreamRateLimit so the completion gateway backs off.
type ChatProvider struct {
	Next    domain.ChatProvider
	Limiter Limiter
}

// Chat implements domain.ChatProvider.
func (c ChatProvider) Chat(ctx domain.Context, req domain.ChatRequest) (string, error) {
	if err := wait(ctx, c.Limiter, KeyChat); err != nil {
		return "", fmt.Errorf("op=ratelimit.Chat: %w", err)
	}
	return c.Next.Chat(ctx, req)
}

// Moderator throttles an underlying domain.Moderator.
type Moderator struct {
	Next    domain.Moderator
	Limiter Limiter
}

// Moderate implements domain.Moderator.
func (m Moderator) Moderate(ctx domain.Context, text string) (bool, error) {
	if err := wait(ctx, m.Limiter, KeyModeration); err != nil {
		return false, fmt.Errorf("op=ratelimit.Moderate: %w", err)
	}
	return m.Next.Moderate(ctx, text)
}

func wait(ctx domain.Context, l Limiter, key string) error {
	if l == nil {
		return nil
	}
	allowed, retryAfter, err := l.Allow(ctx, key, 1)
	if err != nil || allowed {
		return nil
	}
	observability.LoggerFromContext(ctx).Warn("outbound call throttled",
		slog.String("key", key), slog.Duration("retry_after", retryAfter))
	return fmt.Errorf("%w: local bucket %s empty, retry after %s", domain.ErrUpstreamRateLimit, key, retryAfter)
}
