package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return New(Options{
		BaseURL:         ts.URL + "/",
		APIKey:          "k",
		ChatModel:       "gpt-3.5-turbo",
		ModerationModel: "omni-moderation-latest",
		HTTPClient:      ts.Client(),
	})
}

func TestChat_SendsJSONFormatSeedAndTemperature(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var body chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-3.5-turbo", body.Model)
		require.NotNil(t, body.ResponseFormat)
		assert.Equal(t, "json_object", body.ResponseFormat.Type)
		require.NotNil(t, body.Seed)
		assert.Equal(t, 1234, *body.Seed)
		require.NotNil(t, body.Temperature)
		assert.Zero(t, *body.Temperature)
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model":   "gpt-3.5-turbo",
			"choices": []map[string]any{{"message": map[string]any{"content": `{"ok":true}`}}},
		})
	})
	seed, temp := 1234, 0.0
	out, err := c.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "sys"},
			{Role: domain.RoleUser, Content: "hi"},
		},
		JSON:        true,
		Seed:        &seed,
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, out)
}

func TestChat_PlainRequestOmitsOptionalFields(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		assert.NotContains(t, raw, "response_format")
		assert.NotContains(t, raw, "seed")
		assert.NotContains(t, raw, "temperature")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "hello"}}},
		})
	})
	out, err := c.Chat(context.Background(), domain.ChatRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestChat_StatusMapping(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrUpstreamRateLimit},
		{http.StatusBadGateway, domain.ErrUpstreamUnavailable},
		{http.StatusServiceUnavailable, domain.ErrUpstreamUnavailable},
		{http.StatusGatewayTimeout, domain.ErrUpstreamTimeout},
		{http.StatusBadRequest, domain.ErrInvalidArgument},
		{http.StatusUnauthorized, domain.ErrInvalidArgument},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			})
			_, err := c.Chat(context.Background(), domain.ChatRequest{
				Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestChat_EmptyChoicesIsUnavailable(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err := c.Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	assert.True(t, domain.IsRetryable(err))
}

func TestChat_MissingKey(t *testing.T) {
	t.Parallel()
	c := New(Options{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = c.Moderate(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestChat_ClientTimeoutIsUpstreamTimeout(t *testing.T) {
	t.Parallel()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(ts.Close)
	hc := ts.Client()
	hc.Timeout = 20 * time.Millisecond
	c := New(Options{BaseURL: ts.URL, APIKey: "k", HTTPClient: hc})
	_, err := c.Chat(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}

func TestModerate(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/moderations", r.URL.Path)
		var body moderationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "omni-moderation-latest", body.Model)
		flagged := body.Input == "bad words"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{{"flagged": flagged}},
		})
	})
	flagged, err := c.Moderate(context.Background(), "bad words")
	require.NoError(t, err)
	assert.True(t, flagged)

	flagged, err = c.Moderate(context.Background(), "a gaming laptop please")
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestModerate_EmptyResults(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	})
	_, err := c.Moderate(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}
