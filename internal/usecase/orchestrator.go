package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
	"github.com/fairyhunter13/laptop-assistant/internal/observability"
	"github.com/fairyhunter13/laptop-assistant/internal/prompts"
	"github.com/fairyhunter13/laptop-assistant/pkg/textx"
)

// User-facing replies.
const (
	MsgWelcome       = "Hello there! I am here to help you. I am your personal laptop assistant. What kind of laptop are you looking for?"
	MsgExit          = "Exiting conversation."
	MsgFlagged       = "Your conversation has been flagged, restart the conversation."
	MsgRetry         = "Sorry, something went wrong on my side. Could you please rephrase your last message?"
	MsgFeedbackAsk   = "Hope I have solved your request. Did this help you? (yes/no)"
	MsgRatingAsk     = "Thank you for your interest! I'm glad I could assist you.\nWould you mind rating my support on a scale of 1 (worst) to 5 (best)?"
	MsgRatingThanks  = "Thank you for your valuable feedback! Chat ended."
	MsgHandoff       = "I'm sorry I couldn't fully help. I am connecting you with a human agent who will follow up with you shortly. Chat ended."
	MsgEnded         = "This chat has ended. Please start a new conversation."
	msgBudgetTooLowF = "Sorry, there are no laptops in that range. Our laptops start at %d INR. Could you share a budget of at least %d?"
)

var affirmatives = map[string]bool{
	"yes": true, "y": true, "yeah": true, "yep": true, "sure": true, "of course": true, "thanks": true,
}

var errorLinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)there was a problem with your input`),
	regexp.MustCompile(`(?i)missing required dictionary`),
	regexp.MustCompile(`(?i)missing dictionary with required keys`),
	regexp.MustCompile(`(?i)expected dictionary keys and values are not present`),
	regexp.MustCompile(`(?i)the required dictionary is not present in the input`),
	regexp.MustCompile(`(?i)required dictionary structure.*missing`),
}

// Orchestrator drives one conversation turn: moderate, complete, moderate,
// confirm intent, then recommend or surface what is missing. It owns no
// session state; callers pass the state in and persist the returned one.
type Orchestrator struct {
	Gateway     CompletionGateway
	Moderation  ModerationGate
	Extractor   ProfileExtractor
	Recommender *Recommender
	Prompts     *prompts.Set
	// Feedback and Events are optional.
	Feedback  domain.FeedbackRecorder
	Events    domain.EventPublisher
	MinBudget int64
	Now       func() time.Time
}

// InitializeConversation returns a fresh state holding only the system instruction.
func (o Orchestrator) InitializeConversation() domain.ConversationState {
	return domain.ConversationState{
		ID:        uuid.NewString(),
		Messages:  []domain.Message{{Role: domain.RoleSystem, Content: o.Prompts.SystemInstruction(o.minBudget())}},
		Phase:     domain.PhaseNormal,
		UpdatedAt: o.now(),
	}
}

// AdvanceConversation applies one user message to state. The input state is
// never modified. Upstream and model-output failures produce a retry prompt
// with the prior state; only context cancellation is returned as an error.
func (o Orchestrator) AdvanceConversation(ctx context.Context, state domain.ConversationState, userMessage string) (domain.Reply, domain.ConversationState, error) {
	prior := state.Clone()
	if len(prior.Messages) == 0 || prior.Messages[0].Role != domain.RoleSystem {
		fresh := o.InitializeConversation()
		if prior.ID != "" {
			fresh.ID = prior.ID
		}
		prior = fresh
	}
	if !prior.Phase.Valid() {
		prior.Phase = domain.PhaseNormal
	}
	lg := observability.LoggerFromContext(ctx).With(slog.String("session_id", prior.ID), slog.String("phase", string(prior.Phase)))
	ctx = observability.ContextWithLogger(ctx, lg)

	msg := strings.TrimSpace(userMessage)
	if prior.Phase == domain.PhaseEnded {
		return domain.Reply{Message: MsgEnded, Phase: domain.PhaseEnded}, prior, nil
	}
	if isExit(msg) {
		next := prior.Clone()
		next.Phase = domain.PhaseEnded
		return o.reply(MsgExit, &next), next, nil
	}

	verdict, err := o.Moderation.Check(ctx, msg)
	if err != nil {
		return o.degrade(ctx, prior, "moderate user message", err)
	}
	if verdict == domain.VerdictFlagged {
		return o.flag(ctx, prior, "user")
	}

	switch prior.Phase {
	case domain.PhaseAwaitingFeedback:
		return o.handleFeedback(ctx, prior, msg)
	case domain.PhaseAwaitingRating:
		return o.handleRating(ctx, prior, msg)
	default:
		return o.handleTurn(ctx, prior, msg)
	}
}

func (o Orchestrator) handleTurn(ctx context.Context, prior domain.ConversationState, msg string) (domain.Reply, domain.ConversationState, error) {
	lg := observability.LoggerFromContext(ctx)
	next := prior.Clone()

	if next.UserTurns() == 0 && o.isGreeting(ctx, msg) {
		next.Append(domain.RoleUser, msg)
		next.Append(domain.RoleAssistant, MsgWelcome)
		return o.reply(MsgWelcome, &next), next, nil
	}

	next.Append(domain.RoleUser, msg)
	assistant, err := o.Gateway.Complete(ctx, next.Messages)
	if err != nil {
		return o.degrade(ctx, prior, "complete", err)
	}
	verdict, err := o.Moderation.Check(ctx, assistant)
	if err != nil {
		return o.degrade(ctx, prior, "moderate assistant reply", err)
	}
	if verdict == domain.VerdictFlagged {
		return o.flag(ctx, prior, "assistant")
	}
	next.Append(domain.RoleAssistant, assistant)
	visible := FilterErrorLines(textx.RemoveObjects(assistant))

	intent, err := o.Extractor.IntentConfirmationCheck(ctx, assistant)
	if err != nil || intent.Kind == domain.IntentInvalid {
		return o.degrade(ctx, prior, "intent confirmation", err)
	}
	if intent.Kind == domain.IntentIncomplete {
		lg.Info("profile incomplete", slog.String("reason", intent.Reason))
		text := visible
		if text == "" {
			text = intent.Reason
		}
		r := o.reply(text, &next)
		r.Reason = intent.Reason
		return r, next, nil
	}

	profile, err := o.Extractor.DictionaryPresentCheck(ctx, assistant)
	if errors.Is(err, domain.ErrBudgetTooLow) {
		note := fmt.Sprintf(msgBudgetTooLowF, o.minBudget(), o.minBudget())
		next.Append(domain.RoleAssistant, note)
		r := o.reply(joinParagraphs(visible, note), &next)
		r.Reason = fmt.Sprintf("Budget below minimum %d", o.minBudget())
		return r, next, nil
	}
	if err != nil {
		return o.degrade(ctx, prior, "dictionary extraction", err)
	}

	prose, ranked, err := o.Recommender.Recommend(ctx, profile)
	if err != nil {
		return o.degrade(ctx, prior, "recommend", err)
	}
	final := FilterErrorLines(joinParagraphs(visible, prose, MsgFeedbackAsk))
	next.Append(domain.RoleAssistant, joinParagraphs(prose, MsgFeedbackAsk))
	next.Profile = &profile
	next.Phase = domain.PhaseAwaitingFeedback
	lg.Info("recommendation served", slog.String("profile", profile.String()), slog.Int("products", len(ranked)))
	r := o.reply(final, &next)
	r.Recommendations = ranked
	return r, next, nil
}

func (o Orchestrator) handleFeedback(ctx context.Context, prior domain.ConversationState, msg string) (domain.Reply, domain.ConversationState, error) {
	next := prior.Clone()
	next.Append(domain.RoleUser, msg)
	if affirmatives[strings.ToLower(msg)] {
		next.Append(domain.RoleAssistant, MsgRatingAsk)
		next.Phase = domain.PhaseAwaitingRating
		return o.reply(MsgRatingAsk, &next), next, nil
	}

	o.publish(ctx, domain.ConversationEvent{
		Type:        domain.EventHandoff,
		SessionID:   next.ID,
		UserMessage: msg,
		Profile:     next.Profile,
		Transcript:  next.Messages,
		CreatedAt:   o.now(),
	})
	next.Append(domain.RoleAssistant, MsgHandoff)
	next.Phase = domain.PhaseEnded
	return o.reply(MsgHandoff, &next), next, nil
}

func (o Orchestrator) handleRating(ctx context.Context, prior domain.ConversationState, msg string) (domain.Reply, domain.ConversationState, error) {
	next := prior.Clone()
	next.Append(domain.RoleUser, msg)
	rating := domain.Rating{SessionID: next.ID, Score: ParseRating(msg), Raw: msg, CreatedAt: o.now()}
	if o.Feedback != nil {
		if err := o.Feedback.RecordRating(ctx, rating); err != nil {
			observability.LoggerFromContext(ctx).Error("record rating failed", slog.Any("error", err))
		}
	}
	o.publish(ctx, domain.ConversationEvent{
		Type:        domain.EventRating,
		SessionID:   next.ID,
		UserMessage: msg,
		Rating:      rating.Score,
		Profile:     next.Profile,
		CreatedAt:   rating.CreatedAt,
	})
	next.Append(domain.RoleAssistant, MsgRatingThanks)
	next.Phase = domain.PhaseEnded
	return o.reply(MsgRatingThanks, &next), next, nil
}

func (o Orchestrator) isGreeting(ctx context.Context, msg string) bool {
	temp := 0.0
	out, err := o.Gateway.Send(ctx, domain.ChatRequest{
		Messages:    []domain.Message{{Role: domain.RoleUser, Content: o.Prompts.Greeting(msg)}},
		Temperature: &temp,
	})
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("greeting check failed", slog.Any("error", err))
		return false
	}
	return strings.Trim(strings.ToLower(strings.TrimSpace(out)), ".!'\"") == "yes"
}

func (o Orchestrator) flag(ctx context.Context, prior domain.ConversationState, source string) (domain.Reply, domain.ConversationState, error) {
	observability.LoggerFromContext(ctx).Warn("conversation flagged by moderation", slog.String("source", source))
	next := prior.Clone()
	next.ResetToSystem()
	r := o.reply(MsgFlagged, &next)
	r.Flagged = true
	return r, next, nil
}

func (o Orchestrator) degrade(ctx context.Context, prior domain.ConversationState, step string, err error) (domain.Reply, domain.ConversationState, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Reply{}, prior, fmt.Errorf("op=orchestrator.AdvanceConversation: %w", ctxErr)
	}
	if err == nil {
		err = domain.ErrSchemaInvalid
	}
	observability.LoggerFromContext(ctx).Error("conversation turn failed",
		slog.String("step", step), slog.Any("error", err))
	return domain.Reply{Message: MsgRetry, Phase: prior.Phase, Degraded: true}, prior, nil
}

func (o Orchestrator) publish(ctx context.Context, ev domain.ConversationEvent) {
	if o.Events == nil {
		return
	}
	if err := o.Events.Publish(ctx, ev); err != nil {
		observability.LoggerFromContext(ctx).Error("publish conversation event failed",
			slog.String("type", ev.Type), slog.Any("error", err))
	}
}

func (o Orchestrator) reply(text string, next *domain.ConversationState) domain.Reply {
	next.UpdatedAt = o.now()
	return domain.Reply{Message: text, Phase: next.Phase}
}

func (o Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

func (o Orchestrator) minBudget() int64 {
	if o.MinBudget > 0 {
		return o.MinBudget
	}
	return domain.DefaultMinBudget
}

func isExit(msg string) bool {
	m := strings.ToLower(msg)
	return m == "exit" || m == "quit"
}

// FilterErrorLines drops lines where the model complains about a missing
// dictionary; those are meant for the extractor, not the user.
func FilterErrorLines(text string) string { return textx.DropLines(text, errorLinePatterns) }

var ratingRe = regexp.MustCompile(`\d+`)

// ParseRating returns the 1..5 score in msg, or 0 when msg holds no such number.
func ParseRating(msg string) int {
	n, err := strconv.Atoi(ratingRe.FindString(msg))
	if err != nil || n < 1 || n > 5 {
		return 0
	}
	return n
}

func joinParagraphs(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, "\n\n")
}
