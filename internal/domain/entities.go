// Package domain holds the core types, error taxonomy and ports of the
// laptop shopping assistant.
package domain

import (
	"context"
	"errors"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrUpstreamRateLimit   = errors.New("upstream rate limit")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrSchemaInvalid       = errors.New("schema invalid")
	ErrBudgetTooLow        = errors.New("budget too low")
	ErrCatalogSchema       = errors.New("catalog schema invalid")
	ErrInternal            = errors.New("internal error")
)

// IsRetryable reports whether err is a transient failure of an external
// capability that may succeed on a later attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUpstreamTimeout) ||
		errors.Is(err, ErrUpstreamRateLimit) ||
		errors.Is(err, ErrUpstreamUnavailable)
}

// Context is an alias so adapters and usecases share one name for context.Context.
type Context = context.Context

// ChatRequest is one call to the chat-completion capability.
type ChatRequest struct {
	Messages []Message
	// JSON asks the provider for a JSON-object response format.
	JSON bool
	// Seed is a request nonce used to stabilise fixtures; nil means unset.
	Seed *int
	// Temperature is optional; nil leaves the provider default.
	Temperature *float64
}

// ChatProvider (port) sends messages to a chat-style language model.
type ChatProvider interface {
	Chat(ctx Context, req ChatRequest) (string, error)
}

// Moderator (port) classifies text with an external safety classifier.
type Moderator interface {
	Moderate(ctx Context, text string) (flagged bool, err error)
}

// CatalogStore (port) reads the product catalog and replaces it wholesale.
type CatalogStore interface {
	Load(ctx Context) ([]Product, error)
	Replace(ctx Context, products []Product) error
}

// ObjectStore (port) moves files to and from object storage.
type ObjectStore interface {
	Put(ctx Context, localPath, remoteName string) error
	Get(ctx Context, remoteName, localPath string) error
}

// MappingCache (port) stores description -> mapped profile results.
// Implementations must be safe for concurrent use.
type MappingCache interface {
	Get(ctx Context, description string) (Profile, bool, error)
	Set(ctx Context, description string, p Profile) error
}

// SessionStore (port) persists conversation state between turns.
type SessionStore interface {
	Load(ctx Context, id string) (ConversationState, error)
	Save(ctx Context, state ConversationState) error
	Delete(ctx Context, id string) error
}

// FeedbackRecorder (port) persists end-of-conversation ratings.
type FeedbackRecorder interface {
	RecordRating(ctx Context, r Rating) error
}

// TableCodec (port) reads and writes catalog rows in a structured file format
// chosen by extension.
type TableCodec interface {
	Read(ctx Context, path string) ([]Product, error)
	Write(ctx Context, path string, products []Product) error
}

// EventPublisher (port) emits conversation events such as human hand-offs.
type EventPublisher interface {
	Publish(ctx Context, ev ConversationEvent) error
}
