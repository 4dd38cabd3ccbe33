package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Sweepable is a session store that needs expired entries purged explicitly.
type Sweepable interface {
	Sweep(ctx context.Context) (int, error)
}

// SessionSweeper periodically purges expired conversation sessions from
// stores that do not expire keys on their own.
type SessionSweeper struct {
	store    Sweepable
	interval time.Duration
}

// NewSessionSweeper returns nil when store is nil.
func NewSessionSweeper(store Sweepable, interval time.Duration) *SessionSweeper {
	if store == nil {
		return nil
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &SessionSweeper{store: store, interval: interval}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *SessionSweeper) Run(ctx context.Context) {
	if s == nil || s.store == nil {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *SessionSweeper) sweepOnce(ctx context.Context) int {
	ctx, span := otel.Tracer("sessions.sweeper").Start(ctx, "SessionSweeper.sweepOnce")
	defer span.End()

	n, err := s.store.Sweep(ctx)
	if err != nil {
		span.RecordError(err)
		slog.Error("session sweep failed", slog.Any("error", err))
		return 0
	}
	span.SetAttributes(attribute.Int("sessions.removed", n))
	if n > 0 {
		slog.Debug("expired sessions removed", slog.Int("count", n))
	}
	return n
}
