// Package openai implements the chat and moderation ports against an
// OpenAI-compatible HTTP API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/laptop-assistant/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/observability"
	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	obsctx "github.com/fairyhunter13/laptop-assistant/internal/observability"
)

const provider = "openai"

// Options configures a Client.
type Options struct {
	BaseURL         string
	APIKey          string
	ChatModel       string
	ModerationModel string
	Timeout         time.Duration
	// HTTPClient overrides the default instrumented client (tests).
	HTTPClient *http.Client
}

// Client makes single-attempt calls; retries belong to the completion gateway.
type Client struct {
	opts Options
	hc   *http.Client
}

// New constructs a Client with an otelhttp-instrumented transport.
func New(opts Options) *Client {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{
			Timeout: timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "openai " + r.URL.Path
				})),
		}
	}
	return &Client{opts: opts, hc: hc}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Seed           *int            `json:"seed,omitempty"`
	Temperature    *float64        `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat implements domain.ChatProvider.
func (c *Client) Chat(ctx domain.Context, req domain.ChatRequest) (string, error) {
	if c.opts.APIKey == "" {
		return "", fmt.Errorf("op=openai.Chat: %w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}
	body := chatRequest{Model: c.opts.ChatModel, Seed: req.Seed, Temperature: req.Temperature}
	for _, m := range req.Messages {
		body.Messages = append(body.Messages, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	start := time.Now()
	var out chatResponse
	err := c.post(ctx, "/chat/completions", body, &out)
	observability.ObserveAIRequest(provider, "chat", start, err)
	if err != nil {
		return "", fmt.Errorf("op=openai.Chat: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("op=openai.Chat: %w: empty choices", domain.ErrUpstreamUnavailable)
	}
	content := out.Choices[0].Message.Content

	usage := tokencount.Default.Estimate(req.Messages, content, c.opts.ChatModel, provider)
	observability.ObserveTokens(provider, usage.PromptTokens, usage.CompletionTokens)
	obsctx.LoggerFromContext(ctx).Debug("chat completion",
		slog.String("provider", provider),
		slog.String("model", out.Model),
		slog.Bool("json", req.JSON),
		slog.Int("prompt_tokens", usage.PromptTokens),
		slog.Int("completion_tokens", usage.CompletionTokens),
		slog.Duration("took", time.Since(start)))
	return content, nil
}

type moderationRequest struct {
	Model string `json:"model,omitempty"`
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged bool `json:"flagged"`
	} `json:"results"`
}

// Moderate implements domain.Moderator. Any flagged result flags the text.
func (c *Client) Moderate(ctx domain.Context, text string) (bool, error) {
	if c.opts.APIKey == "" {
		return false, fmt.Errorf("op=openai.Moderate: %w: OPENAI_API_KEY missing", domain.ErrInvalidArgument)
	}
	start := time.Now()
	var out moderationResponse
	err := c.post(ctx, "/moderations", moderationRequest{Model: c.opts.ModerationModel, Input: text}, &out)
	observability.ObserveAIRequest(provider, "moderation", start, err)
	if err != nil {
		return false, fmt.Errorf("op=openai.Moderate: %w", err)
	}
	if len(out.Results) == 0 {
		return false, fmt.Errorf("op=openai.Moderate: %w: empty results", domain.ErrUpstreamUnavailable)
	}
	for _, r := range out.Results {
		if r.Flagged {
			return true, nil
		}
	}
	return false, nil
}

// post sends one JSON request and maps failures onto the domain taxonomy.
func (c *Client) post(ctx domain.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", domain.ErrInternal, err)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	r.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	r.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(r)
	if err != nil {
		return classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", domain.ErrUpstreamUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		obsctx.LoggerFromContext(ctx).Warn("ai provider non-2xx",
			slog.String("provider", provider),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
			slog.String("body", snippet))
		return statusError(resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %v", domain.ErrUpstreamUnavailable, err)
	}
	return nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", domain.ErrUpstreamRateLimit, code)
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", domain.ErrUpstreamTimeout, code)
	case code >= 500:
		return fmt.Errorf("%w: status %d", domain.ErrUpstreamUnavailable, code)
	default:
		return fmt.Errorf("%w: status %d", domain.ErrInvalidArgument, code)
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
}
