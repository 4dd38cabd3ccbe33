package breaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// ErrOpen is returned while the breaker rejects calls. It wraps
// domain.ErrUpstreamUnavailable so the completion gateway backs off.
var ErrOpen = fmt.Errorf("%w: circuit open", domain.ErrUpstreamUnavailable)

// countsAsFailure reports whether err says something about upstream health.
// Caller cancellation and bad requests do not.
func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return domain.IsRetryable(err)
}

func (b *Breaker) record(err error) {
	switch {
	case err == nil:
		b.RecordSuccess()
	case countsAsFailure(err):
		b.RecordFailure()
	default:
		b.Release()
	}
}

// ChatProvider wraps a domain.ChatProvider with a breaker.
type ChatProvider struct {
	Next    domain.ChatProvider
	Breaker *Breaker
}

// Chat implements domain.ChatProvider.
func (c ChatProvider) Chat(ctx domain.Context, req domain.ChatRequest) (string, error) {
	if !c.Breaker.Allow() {
		return "", fmt.Errorf("op=breaker.Chat: %w", ErrOpen)
	}
	out, err := c.Next.Chat(ctx, req)
	c.Breaker.record(err)
	return out, err
}

// Moderator wraps a domain.Moderator with a breaker.
type Moderator struct {
	Next    domain.Moderator
	Breaker *Breaker
}

// Moderate implements domain.Moderator.
func (m Moderator) Moderate(ctx domain.Context, text string) (bool, error) {
	if !m.Breaker.Allow() {
		return false, fmt.Errorf("op=breaker.Moderate: %w", ErrOpen)
	}
	flagged, err := m.Next.Moderate(ctx, text)
	m.Breaker.record(err)
	return flagged, err
}
