// Package breaker guards LLM providers with a circuit breaker so that a
// failing upstream is given time to recover instead of absorbing every retry.
package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// State represents the state of the circuit breaker
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the open timeout elapses.
	StateOpen
	// StateHalfOpen admits one trial call at a time to test recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker counts consecutive upstream failures. After maxFailures it opens
// for openTimeout, then admits trial calls one at a time; successThreshold
// trial successes close it again and any trial failure reopens it.
type Breaker struct {
	mu sync.Mutex

	name             string
	maxFailures      int
	openTimeout      time.Duration
	successThreshold int
	now              func() time.Time

	state     State
	failures  int
	successes int
	openedAt  time.Time
	// trial is set while a half-open call is outstanding.
	trial bool
}

// New returns a closed breaker. Non-positive arguments select 5 failures,
// 30s and 1 trial success.
func New(name string, maxFailures int, openTimeout time.Duration, successThreshold int) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	return &Breaker{
		name:             name,
		maxFailures:      maxFailures,
		openTimeout:      openTimeout,
		successThreshold: successThreshold,
		now:              time.Now,
	}
}

// Allow reports whether a call may proceed, moving open to half-open once
// the timeout has passed. In half-open only one call is admitted until it
// is settled by RecordSuccess, RecordFailure or Release.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.openTimeout {
			return false
		}
		b.transition(StateHalfOpen)
		b.trial = true
		return true
	case StateHalfOpen:
		if b.trial {
			return false
		}
		b.trial = true
		return true
	default:
		return true
	}
}

// Release settles an admitted call whose outcome says nothing about
// upstream health, such as a caller cancellation.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trial = false
}

// RecordSuccess records a call that reached the upstream and succeeded.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.trial = false
	if b.state != StateHalfOpen {
		return
	}
	b.successes++
	if b.successes >= b.successThreshold {
		b.transition(StateClosed)
	}
}

// RecordFailure records an upstream failure.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.trial = false
	switch b.state {
	case StateClosed:
		if b.failures >= b.maxFailures {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

// caller holds b.mu
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	b.successes = 0
	if to == StateOpen {
		b.openedAt = b.now()
	}
	if to == StateClosed {
		b.failures = 0
	}
	lvl := slog.LevelInfo
	if to == StateOpen {
		lvl = slog.LevelWarn
	}
	slog.Log(context.Background(), lvl, "circuit breaker state change",
		slog.String("breaker", b.name),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.Int("failures", b.failures))
}
