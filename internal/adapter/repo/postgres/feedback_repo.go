package postgres

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// FeedbackRepo persists end-of-conversation ratings.
type FeedbackRepo struct{ Pool PgxPool }

// NewFeedbackRepo constructs a FeedbackRepo with the given pool.
func NewFeedbackRepo(p PgxPool) *FeedbackRepo { return &FeedbackRepo{Pool: p} }

// EnsureSchema creates the ratings table when missing.
func (r *FeedbackRepo) EnsureSchema(ctx domain.Context) error {
	q := `CREATE TABLE IF NOT EXISTS conversation_ratings (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		score SMALLINT NOT NULL DEFAULT 0,
		raw TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := r.Pool.Exec(ctx, q); err != nil {
		return fmt.Errorf("op=feedback.ensure_schema: %w", err)
	}
	return nil
}

// RecordRating stores one rating. A zero score means the raw answer was not
// a number in 1..5.
func (r *FeedbackRepo) RecordRating(ctx domain.Context, rt domain.Rating) error {
	ctx, span := otel.Tracer("repo.feedback").Start(ctx, "feedback.RecordRating")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "conversation_ratings"),
	)
	if rt.SessionID == "" {
		return fmt.Errorf("op=feedback.record: %w: session id required", domain.ErrInvalidArgument)
	}
	created := rt.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	q := `INSERT INTO conversation_ratings (session_id, score, raw, created_at) VALUES ($1,$2,$3,$4)`
	if _, err := r.Pool.Exec(ctx, q, rt.SessionID, rt.Score, rt.Raw, created); err != nil {
		return fmt.Errorf("op=feedback.record: %w", err)
	}
	return nil
}

// Ping reports whether the database answers.
func (r *FeedbackRepo) Ping(ctx domain.Context) error {
	var one int
	if err := r.Pool.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("op=feedback.ping: %w", err)
	}
	return nil
}
