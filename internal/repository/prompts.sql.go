package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const upgradePromptColumns = `id, user_id, quota_type, current_tier, suggested_tier, shown_at, dismissed_at, converted_at, metadata`

const insertUpgradePrompt = `-- name: InsertUpgradePrompt :execrows
INSERT INTO upgrade_prompts (id, user_id, quota_type, current_tier, suggested_tier, shown_at, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
`

type InsertUpgradePromptParams struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	QuotaType     string
	CurrentTier   string
	SuggestedTier string
	ShownAt       time.Time
	Metadata      pqtype.NullRawMessage
}

// InsertUpgradePrompt returns 0 when an active prompt already exists for
// the user and quota type.
func (q *Queries) InsertUpgradePrompt(ctx context.Context, arg InsertUpgradePromptParams) (int64, error) {
	return q.execRows(ctx, insertUpgradePrompt,
		arg.ID,
		arg.UserID,
		arg.QuotaType,
		arg.CurrentTier,
		arg.SuggestedTier,
		arg.ShownAt,
		arg.Metadata,
	)
}

const getUpgradePromptByIDAndUser = `-- name: GetUpgradePromptByIDAndUser :one
SELECT ` + upgradePromptColumns + `
FROM upgrade_prompts
WHERE id = ? AND user_id = ?
`

type GetUpgradePromptByIDAndUserParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) GetUpgradePromptByIDAndUser(ctx context.Context, arg GetUpgradePromptByIDAndUserParams) (UpgradePrompt, error) {
	var i UpgradePrompt
	err := q.get(ctx, &i, getUpgradePromptByIDAndUser, arg.ID, arg.UserID)
	return i, err
}

const listActiveUpgradePrompts = `-- name: ListActiveUpgradePrompts :many
SELECT ` + upgradePromptColumns + `
FROM upgrade_prompts
WHERE user_id = ? AND dismissed_at IS NULL AND converted_at IS NULL
ORDER BY shown_at DESC
`

func (q *Queries) ListActiveUpgradePrompts(ctx context.Context, userID uuid.UUID) ([]UpgradePrompt, error) {
	items := []UpgradePrompt{}
	err := q.selectAll(ctx, &items, listActiveUpgradePrompts, userID)
	return items, err
}

const countRecentDismissals = `-- name: CountRecentDismissals :one
SELECT COUNT(*)
FROM upgrade_prompts
WHERE user_id = ? AND quota_type = ? AND dismissed_at IS NOT NULL AND dismissed_at > ?
`

type CountRecentDismissalsParams struct {
	UserID    uuid.UUID
	QuotaType string
	Since     time.Time
}

func (q *Queries) CountRecentDismissals(ctx context.Context, arg CountRecentDismissalsParams) (int64, error) {
	var count int64
	err := q.get(ctx, &count, countRecentDismissals, arg.UserID, arg.QuotaType, arg.Since)
	return count, err
}

const dismissUpgradePrompt = `-- name: DismissUpgradePrompt :execrows
UPDATE upgrade_prompts
SET dismissed_at = ?
WHERE id = ? AND user_id = ? AND dismissed_at IS NULL AND converted_at IS NULL
`

type UpdateUpgradePromptParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
	At     time.Time
}

// DismissUpgradePrompt only touches active prompts.
func (q *Queries) DismissUpgradePrompt(ctx context.Context, arg UpdateUpgradePromptParams) (int64, error) {
	return q.execRows(ctx, dismissUpgradePrompt, arg.At, arg.ID, arg.UserID)
}

const convertUpgradePrompt = `-- name: ConvertUpgradePrompt :execrows
UPDATE upgrade_prompts
SET converted_at = ?
WHERE id = ? AND user_id = ? AND converted_at IS NULL
`

// ConvertUpgradePrompt marks an active or dismissed prompt as converted.
func (q *Queries) ConvertUpgradePrompt(ctx context.Context, arg UpdateUpgradePromptParams) (int64, error) {
	return q.execRows(ctx, convertUpgradePrompt, arg.At, arg.ID, arg.UserID)
}
