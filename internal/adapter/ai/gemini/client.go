// Package gemini implements the chat port on Google's Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/genai"

	"github.com/fairyhunter13/laptop-assistant/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/laptop-assistant/internal/adapter/observability"
	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	obsctx "github.com/fairyhunter13/laptop-assistant/internal/observability"
)

const provider = "gemini"

// Options configures a Client.
type Options struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint (tests).
	BaseURL    string
	HTTPClient *http.Client
}

// Client is a thin wrapper around the genai client.
type Client struct {
	cli   *genai.Client
	model string
}

// New constructs a Gemini client.
func New(ctx domain.Context, opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("op=gemini.New: %w: GEMINI_API_KEY missing", domain.ErrInvalidArgument)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	cfg := &genai.ClientConfig{
		APIKey:     opts.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: hc,
	}
	if opts.BaseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: opts.BaseURL}
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=gemini.New: %w", err)
	}
	return &Client{cli: cli, model: opts.Model}, nil
}

// Chat implements domain.ChatProvider. System messages become the system
// instruction; assistant turns are sent with the "model" role.
func (c *Client) Chat(ctx domain.Context, req domain.ChatRequest) (string, error) {
	contents, system := toContents(req.Messages)
	gc := &genai.GenerateContentConfig{SystemInstruction: system}
	if req.JSON {
		gc.ResponseMIMEType = "application/json"
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		gc.Temperature = &t
	}
	if req.Seed != nil {
		s := int32(*req.Seed)
		gc.Seed = &s
	}

	start := time.Now()
	resp, err := c.cli.Models.GenerateContent(ctx, c.model, contents, gc)
	if err != nil {
		err = classify(err)
		observability.ObserveAIRequest(provider, "chat", start, err)
		return "", fmt.Errorf("op=gemini.Chat: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		err = fmt.Errorf("%w: empty candidates", domain.ErrUpstreamUnavailable)
		observability.ObserveAIRequest(provider, "chat", start, err)
		return "", fmt.Errorf("op=gemini.Chat: %w", err)
	}
	observability.ObserveAIRequest(provider, "chat", start, nil)

	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	out := sb.String()

	usage := tokencount.Default.Estimate(req.Messages, out, c.model, provider)
	if resp.UsageMetadata != nil {
		usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	observability.ObserveTokens(provider, usage.PromptTokens, usage.CompletionTokens)
	obsctx.LoggerFromContext(ctx).Debug("chat completion",
		slog.String("provider", provider),
		slog.String("model", c.model),
		slog.Bool("json", req.JSON),
		slog.Duration("took", time.Since(start)))
	return out, nil
}

func toContents(msgs []domain.Message) ([]*genai.Content, *genai.Content) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		part := &genai.Part{Text: m.Content}
		switch m.Role {
		case domain.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, part)
		case domain.RoleAssistant:
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{part}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{part}})
		}
	}
	return contents, system
}

func classify(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		code = apiErrPtr.Code
	}
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", domain.ErrUpstreamRateLimit, err)
	case code == http.StatusGatewayTimeout || code == http.StatusRequestTimeout:
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	case code >= 500:
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	case code >= 400:
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
}
