package breaker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

func stateOf(b *Breaker) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestNew_Defaults(t *testing.T) {
	b := New("llm", 0, 0, 0)
	assert.Equal(t, 5, b.maxFailures)
	assert.Equal(t, 30*time.Second, b.openTimeout)
	assert.Equal(t, 1, b.successThreshold)
	assert.Equal(t, StateClosed, stateOf(b))
}

func TestBreaker_Lifecycle(t *testing.T) {
	now := time.Now()
	b := New("llm", 2, time.Minute, 2)
	b.now = func() time.Time { return now }

	b.RecordFailure()
	assert.Equal(t, StateClosed, stateOf(b))
	b.RecordSuccess()
	b.RecordFailure()
	assert.Equal(t, StateClosed, stateOf(b), "success resets the consecutive count")
	b.RecordFailure()
	assert.Equal(t, StateOpen, stateOf(b))
	assert.False(t, b.Allow())

	now = now.Add(time.Minute)
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, stateOf(b))
	b.RecordFailure()
	assert.Equal(t, StateOpen, stateOf(b), "trial failure reopens")

	now = now.Add(time.Minute)
	require.True(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, stateOf(b))
	b.RecordSuccess()
	assert.Equal(t, StateClosed, stateOf(b))
}

func TestBreaker_HalfOpenAdmitsOneTrialAtATime(t *testing.T) {
	now := time.Now()
	b := New("llm", 1, time.Minute, 2)
	b.now = func() time.Time { return now }
	b.RecordFailure()
	require.Equal(t, StateOpen, stateOf(b))

	now = now.Add(time.Minute)
	require.True(t, b.Allow())
	assert.False(t, b.Allow(), "second caller rejected while the trial is outstanding")
	assert.False(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, StateHalfOpen, stateOf(b))
	require.True(t, b.Allow(), "next trial admitted once the first settles")
	assert.False(t, b.Allow())
	b.Release()
	require.True(t, b.Allow(), "released trial frees the slot")
	b.RecordSuccess()
	assert.Equal(t, StateClosed, stateOf(b))
	assert.True(t, b.Allow())
	assert.True(t, b.Allow())
}

func TestChatProvider_HalfOpenConcurrentCallersGetErrOpen(t *testing.T) {
	now := time.Now()
	br := New("chat", 1, time.Minute, 1)
	br.now = func() time.Time { return now }
	br.RecordFailure()
	now = now.Add(time.Minute)

	release := make(chan struct{})
	entered := make(chan struct{})
	next := &gatedProvider{entered: entered, release: release}
	p := ChatProvider{Next: next, Breaker: br}

	first := make(chan error, 1)
	go func() {
		_, err := p.Chat(context.Background(), domain.ChatRequest{})
		first <- err
	}()
	<-entered

	for i := 0; i < 3; i++ {
		_, err := p.Chat(context.Background(), domain.ChatRequest{})
		assert.ErrorIs(t, err, ErrOpen)
	}
	close(release)
	require.NoError(t, <-first)
	assert.Equal(t, StateClosed, stateOf(br))
	assert.Equal(t, 1, next.calls)
}

func TestChatProvider_CancelledTrialReleasesSlot(t *testing.T) {
	now := time.Now()
	br := New("chat", 1, time.Minute, 1)
	br.now = func() time.Time { return now }
	br.RecordFailure()
	now = now.Add(time.Minute)

	next := &stubProvider{err: context.Canceled}
	p := ChatProvider{Next: next, Breaker: br}
	_, err := p.Chat(context.Background(), domain.ChatRequest{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateHalfOpen, stateOf(br))

	next.err = nil
	_, err = p.Chat(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, stateOf(br))
}

type gatedProvider struct {
	entered chan struct{}
	release chan struct{}
	calls   int
}

func (g *gatedProvider) Chat(context.Context, domain.ChatRequest) (string, error) {
	g.calls++
	close(g.entered)
	<-g.release
	return "ok", nil
}

type stubProvider struct {
	calls int
	err   error
}

func (s *stubProvider) Chat(context.Context, domain.ChatRequest) (string, error) {
	s.calls++
	return "ok", s.err
}

func (s *stubProvider) Moderate(context.Context, string) (bool, error) {
	s.calls++
	return false, s.err
}

func TestChatProvider_OpensOnUpstreamFailures(t *testing.T) {
	next := &stubProvider{err: fmt.Errorf("x: %w", domain.ErrUpstreamUnavailable)}
	p := ChatProvider{Next: next, Breaker: New("chat", 2, time.Hour, 1)}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.Chat(ctx, domain.ChatRequest{})
		require.Error(t, err)
	}
	_, err := p.Chat(ctx, domain.ChatRequest{})
	assert.ErrorIs(t, err, ErrOpen)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.True(t, domain.IsRetryable(err))
	assert.Equal(t, 2, next.calls)
}

func TestChatProvider_IgnoresNonUpstreamErrors(t *testing.T) {
	next := &stubProvider{err: domain.ErrInvalidArgument}
	p := ChatProvider{Next: next, Breaker: New("chat", 1, time.Hour, 1)}
	for i := 0; i < 3; i++ {
		_, _ = p.Chat(context.Background(), domain.ChatRequest{})
	}
	next.err = context.Canceled
	_, _ = p.Chat(context.Background(), domain.ChatRequest{})
	assert.Equal(t, StateClosed, stateOf(p.Breaker))
	assert.Equal(t, 4, next.calls)
}

func TestModerator_ShortCircuits(t *testing.T) {
	next := &stubProvider{err: domain.ErrUpstreamTimeout}
	m := Moderator{Next: next, Breaker: New("moderation", 1, time.Hour, 1)}
	_, err := m.Moderate(context.Background(), "hi")
	require.ErrorIs(t, err, domain.ErrUpstreamTimeout)
	_, err = m.Moderate(context.Background(), "hi")
	assert.True(t, errors.Is(err, ErrOpen))
	assert.Equal(t, 1, next.calls)
}
