package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/pkg/textx"
)

// Request nonces per call mode.
const (
	SeedJSON    = 1234
	SeedText    = 2345
	SeedMapping = 5678
)

// JSONInstructionSuffix is appended to the final user message in JSON mode.
const JSONInstructionSuffix = "<<. Return the output in JSON format to the key output. >>"

// CompletionGateway wraps a chat provider with the retry policy and JSON
// decoding. Malformed JSON is an ErrSchemaInvalid and is never retried.
type CompletionGateway struct {
	Provider domain.ChatProvider
	Retry    RetryPolicy
}

// NewCompletionGateway constructs a CompletionGateway.
func NewCompletionGateway(p domain.ChatProvider, r RetryPolicy) CompletionGateway {
	return CompletionGateway{Provider: p, Retry: r}
}

// Complete returns the free-text reply to msgs.
func (g CompletionGateway) Complete(ctx context.Context, msgs []domain.Message) (string, error) {
	seed := SeedText
	return g.Send(ctx, domain.ChatRequest{Messages: msgs, Seed: &seed})
}

// CompleteJSON asks for a JSON object reply and decodes it into out.
func (g CompletionGateway) CompleteJSON(ctx context.Context, msgs []domain.Message, out any) error {
	seed := SeedJSON
	return g.SendJSON(ctx, domain.ChatRequest{Messages: withJSONSuffix(msgs), JSON: true, Seed: &seed}, out)
}

// Send performs one logical completion with retries.
func (g CompletionGateway) Send(ctx context.Context, req domain.ChatRequest) (string, error) {
	if g.Provider == nil {
		return "", fmt.Errorf("op=gateway.Send: %w: no chat provider", domain.ErrInternal)
	}
	if len(req.Messages) == 0 {
		return "", fmt.Errorf("op=gateway.Send: %w: empty messages", domain.ErrInvalidArgument)
	}
	var out string
	err := g.Retry.Do(ctx, "gateway.Send", func(ctx context.Context) error {
		s, err := g.Provider.Chat(ctx, req)
		if err != nil {
			return err
		}
		out = s
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("op=gateway.Send: %w", err)
	}
	return out, nil
}

// SendJSON performs a completion and decodes the first JSON object of the reply.
// A top-level {"output": {...}} envelope is unwrapped.
func (g CompletionGateway) SendJSON(ctx context.Context, req domain.ChatRequest, out any) error {
	req.JSON = true
	text, err := g.Send(ctx, req)
	if err != nil {
		return err
	}
	if err := DecodeJSONReply(text, out); err != nil {
		return fmt.Errorf("op=gateway.SendJSON: %w", err)
	}
	return nil
}

// DecodeJSONReply extracts and decodes the JSON object in a model reply.
func DecodeJSONReply(text string, out any) error {
	obj, ok := textx.ExtractJSONObject(text)
	if !ok {
		return fmt.Errorf("%w: no JSON object in reply", domain.ErrSchemaInvalid)
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(obj), &top); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	raw := json.RawMessage(obj)
	if inner, ok := top["output"]; ok && len(top) == 1 {
		if s := strings.TrimSpace(string(inner)); strings.HasPrefix(s, "{") {
			raw = inner
		}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrSchemaInvalid, err)
	}
	return nil
}

// withJSONSuffix copies msgs and appends the JSON instruction to the last
// user message, or to the last message when there is none.
func withJSONSuffix(msgs []domain.Message) []domain.Message {
	out := append([]domain.Message(nil), msgs...)
	idx := len(out) - 1
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == domain.RoleUser {
			idx = i
			break
		}
	}
	if idx >= 0 {
		out[idx].Content += JSONInstructionSuffix
	}
	return out
}
