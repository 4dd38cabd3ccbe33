package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationState_CloneIsDeep(t *testing.T) {
	p := Profile{GPUIntensity: LevelHigh, Budget: 50000}
	s := ConversationState{ID: "s", Messages: []Message{{Role: RoleSystem, Content: "sys"}}, Profile: &p}

	c := s.Clone()
	c.Append(RoleUser, "hi")
	c.Profile.Budget = 1

	assert.Len(t, s.Messages, 1)
	assert.Equal(t, int64(50000), s.Profile.Budget)
}

func TestConversationState_ResetToSystem(t *testing.T) {
	p := Profile{}
	s := ConversationState{
		Messages: []Message{{Role: RoleSystem, Content: "sys"}, {Role: RoleUser, Content: "a"}, {Role: RoleAssistant, Content: "b"}},
		Phase:    PhaseAwaitingRating,
		Profile:  &p,
	}
	assert.Equal(t, 1, s.UserTurns())

	s.ResetToSystem()
	assert.Equal(t, []Message{{Role: RoleSystem, Content: "sys"}}, s.Messages)
	assert.Equal(t, PhaseNormal, s.Phase)
	assert.Nil(t, s.Profile)
	assert.Zero(t, s.UserTurns())

	s.Append(RoleUser, "again")
	assert.Len(t, s.Messages, 2)
}

func TestPhaseAndIntentKind(t *testing.T) {
	assert.True(t, PhaseAwaitingFeedback.Valid())
	assert.False(t, Phase("flagged_restart").Valid())
	assert.Equal(t, "complete", IntentComplete.String())
	assert.Equal(t, "incomplete", IntentIncomplete.String())
	assert.Equal(t, "invalid", IntentInvalid.String())
}
