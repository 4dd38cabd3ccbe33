// Package tokencount estimates prompt and completion token usage for chat
// requests with tiktoken-go. Counts feed the ai_tokens_total metric and the
// request logs; they never gate a request.
package tokencount

import (
	"strings"
	"sync"

	"log/slog"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// Chat framing overhead for OpenAI-compatible APIs.
const (
	tokensPerMessage = 3
	replyPriming     = 3
)

// Usage holds token counts for one chat completion.
type Usage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Provider         string `json:"provider"`
}

// Counter caches encodings per model family and is safe for concurrent use.
type Counter struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewCounter returns an empty Counter.
func NewCounter() *Counter {
	return &Counter{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// Default is the process-wide counter used by the AI adapters.
var Default = NewCounter()

func (c *Counter) encoding(model string) (*tiktoken.Tiktoken, error) {
	family := Family(model)

	c.mu.RLock()
	enc, ok := c.encodings[family]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodings[family]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(family)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding", slog.String("model", model), slog.Any("error", err))
		if enc, err = tiktoken.GetEncoding("cl100k_base"); err != nil {
			return nil, err
		}
	}
	c.encodings[family] = enc
	return enc, nil
}

// Family maps a provider model id onto a tiktoken model name. Models outside
// the OpenAI families (Gemini included) are approximated with gpt-4.
func Family(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	switch {
	case strings.HasPrefix(m, "gpt-3.5"):
		return "gpt-3.5-turbo"
	case strings.HasPrefix(m, "gpt-4o"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"):
		return "gpt-4o"
	default:
		return "gpt-4"
	}
}

// Count returns the token count of text.
func (c *Counter) Count(text, model string) (int, error) {
	enc, err := c.encoding(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountMessages returns the prompt tokens of a chat request including the
// per-message framing.
func (c *Counter) CountMessages(msgs []domain.Message, model string) (int, error) {
	enc, err := c.encoding(model)
	if err != nil {
		return 0, err
	}
	n := replyPriming
	for _, m := range msgs {
		n += tokensPerMessage
		n += len(enc.Encode(string(m.Role), nil, nil))
		n += len(enc.Encode(m.Content, nil, nil))
	}
	return n, nil
}

// Estimate computes usage for a completed call, falling back to four
// characters per token when no encoding is available.
func (c *Counter) Estimate(msgs []domain.Message, completion, model, provider string) Usage {
	prompt, err := c.CountMessages(msgs, model)
	if err != nil {
		prompt = 0
		for _, m := range msgs {
			prompt += len(m.Content) / 4
		}
	}
	out, err := c.Count(completion, model)
	if err != nil {
		out = len(completion) / 4
	}
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
		Model:            model,
		Provider:         provider,
	}
}
