package usecase_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/usecase"
)

type mockProvider struct{ mock.Mock }

func (m *mockProvider) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func TestGateway_CompleteUsesTextSeed(t *testing.T) {
	t.Parallel()
	p := &mockProvider{}
	p.On("Chat", mock.Anything, mock.MatchedBy(func(r domain.ChatRequest) bool {
		return !r.JSON && r.Seed != nil && *r.Seed == usecase.SeedText
	})).Return("hello", nil).Once()

	g := usecase.NewCompletionGateway(p, noRetry())
	out, err := g.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	p.AssertExpectations(t)
}

func TestGateway_CompleteJSON_AppendsSuffixToCopy(t *testing.T) {
	t.Parallel()
	p := &mockProvider{}
	p.On("Chat", mock.Anything, mock.MatchedBy(func(r domain.ChatRequest) bool {
		last := r.Messages[len(r.Messages)-2]
		return r.JSON && *r.Seed == usecase.SeedJSON &&
			strings.HasSuffix(last.Content, usecase.JSONInstructionSuffix) &&
			!strings.HasSuffix(r.Messages[len(r.Messages)-1].Content, usecase.JSONInstructionSuffix)
	})).Return(`{"output":{"result":"Yes"}}`, nil).Once()

	msgs := []domain.Message{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "check this"},
		{Role: domain.RoleAssistant, Content: "trailing"},
	}
	var out struct {
		Result string `json:"result"`
	}
	g := usecase.NewCompletionGateway(p, noRetry())
	require.NoError(t, g.CompleteJSON(context.Background(), msgs, &out))
	assert.Equal(t, "Yes", out.Result)
	assert.Equal(t, "check this", msgs[1].Content)
	p.AssertExpectations(t)
}

func TestGateway_MalformedJSONIsNotRetried(t *testing.T) {
	t.Parallel()
	p := &mockProvider{}
	p.On("Chat", mock.Anything, mock.Anything).Return("not json at all", nil).Once()

	g := usecase.NewCompletionGateway(p, zeroPolicy(6))
	var out map[string]any
	err := g.CompleteJSON(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}}, &out)
	require.ErrorIs(t, err, domain.ErrSchemaInvalid)
	p.AssertNumberOfCalls(t, "Chat", 1)
}

func TestGateway_TransientRetriedThenPropagated(t *testing.T) {
	t.Parallel()
	p := &mockProvider{}
	p.On("Chat", mock.Anything, mock.Anything).Return("", fmt.Errorf("429: %w", domain.ErrUpstreamRateLimit))

	g := usecase.NewCompletionGateway(p, zeroPolicy(6))
	_, err := g.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "x"}})
	require.ErrorIs(t, err, domain.ErrUpstreamRateLimit)
	p.AssertNumberOfCalls(t, "Chat", 6)
}

func TestGateway_RejectsEmptyMessages(t *testing.T) {
	t.Parallel()
	g := usecase.NewCompletionGateway(&mockProvider{}, noRetry())
	_, err := g.Complete(context.Background(), nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestDecodeJSONReply(t *testing.T) {
	t.Parallel()
	var out map[string]any
	require.NoError(t, usecase.DecodeJSONReply("```json\n{\"a\":\"b\"}\n```", &out))
	assert.Equal(t, "b", out["a"])

	// a scalar "output" key is data, not an envelope
	out = nil
	require.NoError(t, usecase.DecodeJSONReply(`{"output":"plain"}`, &out))
	assert.Equal(t, "plain", out["output"])

	require.ErrorIs(t, usecase.DecodeJSONReply(`{bad}`, &out), domain.ErrSchemaInvalid)
}
