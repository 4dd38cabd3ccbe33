package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// FeedbackRepo persists end-of-conversation ratings next to the catalog.
type FeedbackRepo struct{ DB *sql.DB }

// NewFeedbackRepo constructs a FeedbackRepo on db.
func NewFeedbackRepo(db *sql.DB) *FeedbackRepo { return &FeedbackRepo{DB: db} }

// EnsureSchema creates the ratings table when missing.
func (r *FeedbackRepo) EnsureSchema(ctx domain.Context) error {
	q := `CREATE TABLE IF NOT EXISTS conversation_ratings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		raw TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`
	if _, err := r.DB.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("op=sqlite.feedback.ensure_schema: %w", err)
	}
	return nil
}

// RecordRating stores one rating.
func (r *FeedbackRepo) RecordRating(ctx domain.Context, rt domain.Rating) error {
	ctx, span := otel.Tracer("repo.feedback").Start(ctx, "feedback.RecordRating")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation", "INSERT"),
	)
	if rt.SessionID == "" {
		return fmt.Errorf("op=sqlite.feedback.record: %w: session id required", domain.ErrInvalidArgument)
	}
	created := rt.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	q := `INSERT INTO conversation_ratings (session_id, score, raw, created_at) VALUES (?,?,?,?)`
	if _, err := r.DB.ExecContext(ctx, q, rt.SessionID, rt.Score, rt.Raw, created.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("op=sqlite.feedback.record: %w", err)
	}
	return nil
}

// Ping reports whether the database answers.
func (r *FeedbackRepo) Ping(ctx domain.Context) error { return r.DB.PingContext(ctx) }
