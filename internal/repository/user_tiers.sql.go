package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const getUserTier = `-- name: GetUserTier :one
SELECT tier FROM user_tiers WHERE user_id = ?
`

func (q *Queries) GetUserTier(ctx context.Context, userID uuid.UUID) (string, error) {
	var tier string
	err := q.get(ctx, &tier, getUserTier, userID)
	return tier, err
}

const upsertUserTier = `-- name: UpsertUserTier :exec
INSERT INTO user_tiers (user_id, tier, updated_at)
VALUES (?, ?, ?)
ON CONFLICT (user_id) DO UPDATE
SET tier = excluded.tier, updated_at = excluded.updated_at
`

type UpsertUserTierParams struct {
	UserID    uuid.UUID
	Tier      string
	UpdatedAt time.Time
}

func (q *Queries) UpsertUserTier(ctx context.Context, arg UpsertUserTierParams) error {
	_, err := q.exec(ctx, upsertUserTier, arg.UserID, arg.Tier, arg.UpdatedAt)
	return err
}
