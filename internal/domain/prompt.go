package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// PromptState is the derived lifecycle state of an upgrade prompt.
type PromptState string

const (
	PromptStateActive    PromptState = "active"
	PromptStateDismissed PromptState = "dismissed"
	PromptStateConverted PromptState = "converted"
)

// UpgradePrompt records that a user was shown an upgrade suggestion after
// hitting a quota limit. Prompts are never deleted.
type UpgradePrompt struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"-"`
	QuotaType     QuotaType       `json:"quotaType"`
	CurrentTier   Tier            `json:"currentTier"`
	SuggestedTier Tier            `json:"suggestedTier"`
	ShownAt       time.Time       `json:"shownAt"`
	DismissedAt   *time.Time      `json:"dismissedAt,omitempty"`
	ConvertedAt   *time.Time      `json:"convertedAt,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// State returns the prompt's lifecycle state. Conversion wins over dismissal.
func (p *UpgradePrompt) State() PromptState {
	switch {
	case p.ConvertedAt != nil:
		return PromptStateConverted
	case p.DismissedAt != nil:
		return PromptStateDismissed
	default:
		return PromptStateActive
	}
}

// IsActive returns true if the prompt has been neither dismissed nor converted.
func (p *UpgradePrompt) IsActive() bool {
	return p.State() == PromptStateActive
}

// CreatePromptParams contains the parameters for recording a prompt.
type CreatePromptParams struct {
	UserID        uuid.UUID
	QuotaType     QuotaType
	CurrentTier   Tier
	SuggestedTier Tier
	Metadata      map[string]any
}
