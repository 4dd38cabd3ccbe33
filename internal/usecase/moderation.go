package usecase

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/laptop-assistant/internal/domain"
)

// ModerationGate classifies text before it moves further into the pipeline.
// It is stateless and calls the moderator exactly once per check.
type ModerationGate struct {
	Moderator domain.Moderator
}

// Check returns VerdictFlagged when the moderator flags text. Transport
// failures are returned to the caller.
func (m ModerationGate) Check(ctx context.Context, text string) (domain.Verdict, error) {
	if m.Moderator == nil {
		return "", fmt.Errorf("op=moderation.Check: %w: no moderator", domain.ErrInternal)
	}
	flagged, err := m.Moderator.Moderate(ctx, text)
	if err != nil {
		return "", fmt.Errorf("op=moderation.Check: %w", err)
	}
	if flagged {
		return domain.VerdictFlagged, nil
	}
	return domain.VerdictSafe, nil
}
