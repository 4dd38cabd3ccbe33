package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/prompts"
	"github.com/fairyhunter13/laptop-assistant/pkg/textx"
)

// ProfileExtractor decides whether assistant text carries a complete user
// profile and extracts it into canonical form.
type ProfileExtractor struct {
	Gateway   CompletionGateway
	Prompts   *prompts.Set
	MinBudget int64
}

// NewProfileExtractor constructs a ProfileExtractor.
func NewProfileExtractor(g CompletionGateway, p *prompts.Set, minBudget int64) ProfileExtractor {
	if minBudget <= 0 {
		minBudget = domain.DefaultMinBudget
	}
	return ProfileExtractor{Gateway: g, Prompts: p, MinBudget: minBudget}
}

type intentReply struct {
	Result any `json:"result"`
	Reason any `json:"reason"`
}

// IntentConfirmationCheck asks the model whether text embeds a complete
// six-key profile. A result other than yes/no yields IntentInvalid together
// with an ErrSchemaInvalid error.
func (e ProfileExtractor) IntentConfirmationCheck(ctx context.Context, text string) (domain.IntentResult, error) {
	msgs := []domain.Message{
		{Role: domain.RoleSystem, Content: e.Prompts.IntentConfirmation()},
		{Role: domain.RoleUser, Content: text},
	}
	var r intentReply
	if err := e.Gateway.CompleteJSON(ctx, msgs, &r); err != nil {
		return domain.IntentResult{Kind: domain.IntentInvalid}, fmt.Errorf("op=extractor.IntentConfirmationCheck: %w", err)
	}
	result, _ := r.Result.(string)
	reason := stringify(r.Reason)
	switch strings.ToLower(strings.TrimSpace(result)) {
	case "yes":
		return domain.IntentResult{Kind: domain.IntentComplete}, nil
	case "no":
		if reason == "" {
			reason = "profile is incomplete"
		}
		return domain.IntentResult{Kind: domain.IntentIncomplete, Reason: reason}, nil
	}
	return domain.IntentResult{Kind: domain.IntentInvalid},
		fmt.Errorf("op=extractor.IntentConfirmationCheck: %w: result %v", domain.ErrSchemaInvalid, r.Result)
}

// DictionaryPresentCheck extracts the profile from text and normalises it.
// A dictionary that already parses locally is used as is, so re-extracting
// canonical output never calls the model. Budgets below the minimum yield
// ErrBudgetTooLow.
func (e ProfileExtractor) DictionaryPresentCheck(ctx context.Context, text string) (domain.Profile, error) {
	if p, err := e.profileFromText(text); err == nil || errors.Is(err, domain.ErrBudgetTooLow) {
		return p, err
	}
	msgs := []domain.Message{
		{Role: domain.RoleSystem, Content: e.Prompts.DictionaryPresent()},
		{Role: domain.RoleUser, Content: text},
	}
	var raw map[string]any
	if err := e.Gateway.CompleteJSON(ctx, msgs, &raw); err != nil {
		return domain.Profile{}, fmt.Errorf("op=extractor.DictionaryPresentCheck: %w", err)
	}
	p, err := domain.ProfileFromMap(raw, e.MinBudget)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("op=extractor.DictionaryPresentCheck: %w", err)
	}
	return p, nil
}

// profileFromText parses the first dictionary-looking span of text, accepting
// both JSON and single-quoted python literal forms.
func (e ProfileExtractor) profileFromText(text string) (domain.Profile, error) {
	obj, ok := textx.ExtractJSONObject(text)
	if !ok {
		return domain.Profile{}, domain.ErrSchemaInvalid
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		if err := json.Unmarshal([]byte(strings.ReplaceAll(obj, "'", `"`)), &raw); err != nil {
			return domain.Profile{}, domain.ErrSchemaInvalid
		}
	}
	return domain.ProfileFromMap(raw, e.MinBudget)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
