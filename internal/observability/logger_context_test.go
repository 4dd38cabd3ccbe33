package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextWithLoggerAndLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	lg := slog.New(slog.NewJSONHandler(&buf, nil))
	base := context.Background()

	ctx := ContextWithLogger(base, lg)
	assert.NotEqual(t, base, ctx)
	assert.Same(t, lg, LoggerFromContext(ctx))

	LoggerFromContext(ctx).Info("turn", slog.String("session_id", "s-1"))
	assert.Contains(t, buf.String(), `"session_id":"s-1"`)

	assert.Equal(t, base, ContextWithLogger(base, nil))
	assert.Same(t, slog.Default(), LoggerFromContext(context.Background()))
	//nolint:staticcheck // nil context is tolerated
	assert.Same(t, slog.Default(), LoggerFromContext(nil))
}

func TestContextWithRequestID(t *testing.T) {
	base := context.Background()
	assert.Equal(t, base, ContextWithRequestID(base, ""))

	ctx := ContextWithRequestID(base, "req-123")
	assert.Equal(t, "req-123", RequestIDFromContext(ctx))
	assert.Empty(t, RequestIDFromContext(base))
}
