// Package service contains the business logic layer.
//
// This file implements the upgrade prompt tracker.
package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/DukeRupert/regdesk/internal/metrics"
	"github.com/DukeRupert/regdesk/internal/repository"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// DefaultPromptCooldown suppresses a new prompt after the user dismissed
// one for the same quota type.
const DefaultPromptCooldown = 24 * time.Hour

// PromptTracker records upgrade prompts shown to users.
type PromptTracker struct {
	queries  *repository.Queries
	logger   *slog.Logger
	cooldown time.Duration
	now      func() time.Time
}

// NewPromptTracker creates a PromptTracker. A zero cooldown disables the
// dismissal cooldown.
func NewPromptTracker(queries *repository.Queries, logger *slog.Logger, cooldown time.Duration) *PromptTracker {
	return &PromptTracker{
		queries:  queries,
		logger:   logger,
		cooldown: cooldown,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the tracker's time source. Used by tests.
func (t *PromptTracker) WithClock(now func() time.Time) *PromptTracker {
	t.now = now
	return t
}

// MaybeCreatePrompt records a prompt unless the user already has an active
// one for the quota type or dismissed one within the cooldown. created is
// false when nothing was inserted; prompt is then nil.
func (t *PromptTracker) MaybeCreatePrompt(ctx context.Context, params domain.CreatePromptParams) (*domain.UpgradePrompt, bool, error) {
	const op = "prompt.create"

	if !params.QuotaType.Valid() {
		return nil, false, domain.Invalid(op, "unknown quota type: "+string(params.QuotaType))
	}

	now := t.now().Truncate(time.Microsecond)

	if t.cooldown > 0 {
		recent, err := t.queries.CountRecentDismissals(ctx, repository.CountRecentDismissalsParams{
			UserID:    params.UserID,
			QuotaType: string(params.QuotaType),
			Since:     now.Add(-t.cooldown),
		})
		if err != nil {
			return nil, false, domain.Unavailable(err, op, "failed to check recent dismissals")
		}
		if recent > 0 {
			return nil, false, nil
		}
	}

	var metadata pqtype.NullRawMessage
	if len(params.Metadata) > 0 {
		raw, err := json.Marshal(params.Metadata)
		if err != nil {
			return nil, false, domain.Invalid(op, "metadata is not JSON encodable")
		}
		metadata = pqtype.NullRawMessage{RawMessage: raw, Valid: true}
	}

	id := uuid.New()
	inserted, err := t.queries.InsertUpgradePrompt(ctx, repository.InsertUpgradePromptParams{
		ID:            id,
		UserID:        params.UserID,
		QuotaType:     string(params.QuotaType),
		CurrentTier:   string(params.CurrentTier),
		SuggestedTier: string(params.SuggestedTier),
		ShownAt:       now,
		Metadata:      metadata,
	})
	if err != nil {
		return nil, false, domain.Unavailable(err, op, "failed to insert upgrade prompt")
	}
	if inserted == 0 {
		return nil, false, nil
	}

	metrics.UpgradePromptEvent(string(params.QuotaType), "created")
	t.logger.Info("Upgrade prompt created",
		"user_id", params.UserID,
		"quota_type", params.QuotaType,
		"current_tier", params.CurrentTier,
		"suggested_tier", params.SuggestedTier,
	)

	return &domain.UpgradePrompt{
		ID:            id,
		UserID:        params.UserID,
		QuotaType:     params.QuotaType,
		CurrentTier:   params.CurrentTier,
		SuggestedTier: params.SuggestedTier,
		ShownAt:       now,
		Metadata:      metadata.RawMessage,
	}, true, nil
}

// Dismiss moves an active prompt to dismissed. Dismissing a dismissed or
// converted prompt changes nothing.
func (t *PromptTracker) Dismiss(ctx context.Context, userID, promptID uuid.UUID) (*domain.UpgradePrompt, error) {
	const op = "prompt.dismiss"

	n, err := t.queries.DismissUpgradePrompt(ctx, repository.UpdateUpgradePromptParams{
		ID:     promptID,
		UserID: userID,
		At:     t.now().Truncate(time.Microsecond),
	})
	if err != nil {
		return nil, domain.Unavailable(err, op, "failed to dismiss upgrade prompt")
	}

	prompt, err := t.get(ctx, op, userID, promptID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		metrics.UpgradePromptEvent(string(prompt.QuotaType), "dismissed")
	}
	return prompt, nil
}

// MarkConverted records that the user upgraded from this prompt. Active and
// dismissed prompts can convert; converting twice changes nothing.
func (t *PromptTracker) MarkConverted(ctx context.Context, userID, promptID uuid.UUID) (*domain.UpgradePrompt, error) {
	const op = "prompt.convert"

	n, err := t.queries.ConvertUpgradePrompt(ctx, repository.UpdateUpgradePromptParams{
		ID:     promptID,
		UserID: userID,
		At:     t.now().Truncate(time.Microsecond),
	})
	if err != nil {
		return nil, domain.Unavailable(err, op, "failed to convert upgrade prompt")
	}

	prompt, err := t.get(ctx, op, userID, promptID)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		metrics.UpgradePromptEvent(string(prompt.QuotaType), "converted")
		t.logger.Info("Upgrade prompt converted",
			"user_id", userID,
			"prompt_id", promptID,
			"suggested_tier", prompt.SuggestedTier,
		)
	}
	return prompt, nil
}

// ListActive returns the user's active prompts, newest first.
func (t *PromptTracker) ListActive(ctx context.Context, userID uuid.UUID) ([]domain.UpgradePrompt, error) {
	const op = "prompt.list_active"

	rows, err := t.queries.ListActiveUpgradePrompts(ctx, userID)
	if err != nil {
		return nil, domain.Unavailable(err, op, "failed to list upgrade prompts")
	}

	prompts := make([]domain.UpgradePrompt, 0, len(rows))
	for _, r := range rows {
		prompts = append(prompts, promptFromRow(r))
	}
	return prompts, nil
}

func (t *PromptTracker) get(ctx context.Context, op string, userID, promptID uuid.UUID) (*domain.UpgradePrompt, error) {
	row, err := t.queries.GetUpgradePromptByIDAndUser(ctx, repository.GetUpgradePromptByIDAndUserParams{
		ID:     promptID,
		UserID: userID,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(op, "upgrade prompt", promptID.String())
	}
	if err != nil {
		return nil, domain.Unavailable(err, op, "failed to load upgrade prompt")
	}
	prompt := promptFromRow(row)
	return &prompt, nil
}

func promptFromRow(r repository.UpgradePrompt) domain.UpgradePrompt {
	p := domain.UpgradePrompt{
		ID:            r.ID,
		UserID:        r.UserID,
		QuotaType:     domain.QuotaType(r.QuotaType),
		CurrentTier:   domain.Tier(r.CurrentTier),
		SuggestedTier: domain.Tier(r.SuggestedTier),
		ShownAt:       r.ShownAt.UTC(),
		DismissedAt:   domain.NullTimeValue(r.DismissedAt),
		ConvertedAt:   domain.NullTimeValue(r.ConvertedAt),
	}
	if r.Metadata.Valid {
		p.Metadata = r.Metadata.RawMessage
	}
	return p
}
