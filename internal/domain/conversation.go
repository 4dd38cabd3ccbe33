package domain

import "time"

// Role tags a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Phase is the conversation's resting state between turns.
type Phase string

const (
	PhaseNormal           Phase = "normal"
	PhaseAwaitingFeedback Phase = "awaiting_feedback"
	PhaseAwaitingRating   Phase = "awaiting_rating"
	PhaseEnded            Phase = "ended"
)

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	switch p {
	case PhaseNormal, PhaseAwaitingFeedback, PhaseAwaitingRating, PhaseEnded:
		return true
	}
	return false
}

// ConversationState is owned by one session and mutated only by the orchestrator.
// Invariant: Messages[0] is the system instruction.
type ConversationState struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	Phase     Phase     `json:"phase"`
	Profile   *Profile  `json:"profile,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so a failed turn can be discarded.
func (s ConversationState) Clone() ConversationState {
	out := s
	out.Messages = append([]Message(nil), s.Messages...)
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	return out
}

// ResetToSystem truncates history to the system instruction and returns to normal.
func (s *ConversationState) ResetToSystem() {
	if len(s.Messages) > 1 {
		s.Messages = s.Messages[:1:1]
	}
	s.Phase = PhaseNormal
	s.Profile = nil
}

// Append adds a message to the history.
func (s *ConversationState) Append(role Role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}

// UserTurns counts user-role messages.
func (s ConversationState) UserTurns() int {
	n := 0
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}

// Reply is what the orchestrator hands back to the transport after one turn.
type Reply struct {
	Message string `json:"message"`
	Phase   Phase  `json:"phase"`
	// Flagged is set when moderation reset the conversation.
	Flagged bool `json:"flagged,omitempty"`
	// Reason carries the extractor's explanation when the profile is incomplete.
	Reason string `json:"reason,omitempty"`
	// Degraded is set when an upstream failure was turned into a retry prompt.
	Degraded        bool            `json:"degraded,omitempty"`
	Recommendations []ScoredProduct `json:"recommendations,omitempty"`
}

// IntentKind tags the result of an intent confirmation check.
type IntentKind int

const (
	IntentInvalid IntentKind = iota
	IntentComplete
	IntentIncomplete
)

func (k IntentKind) String() string {
	switch k {
	case IntentComplete:
		return "complete"
	case IntentIncomplete:
		return "incomplete"
	}
	return "invalid"
}

// IntentResult is the tagged outcome of the intent confirmation check.
type IntentResult struct {
	Kind   IntentKind
	Reason string
}

// Verdict is the moderation gate's decision.
type Verdict string

const (
	VerdictSafe    Verdict = "safe"
	VerdictFlagged Verdict = "flagged"
)

// Rating is the user's end-of-conversation feedback.
type Rating struct {
	SessionID string
	// Score is 1..5 when the input was numeric, otherwise 0.
	Score     int
	Raw       string
	CreatedAt time.Time
}

// Conversation event types.
const (
	EventHandoff = "handoff"
	EventRating  = "rating"
)

// ConversationEvent is published when a conversation leaves the assistant's hands.
type ConversationEvent struct {
	Type        string    `json:"type"`
	SessionID   string    `json:"session_id"`
	UserMessage string    `json:"user_message,omitempty"`
	Rating      int       `json:"rating,omitempty"`
	Profile     *Profile  `json:"profile,omitempty"`
	Transcript  []Message `json:"transcript,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
