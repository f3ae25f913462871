package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const getUsageCounter = `-- name: GetUsageCounter :one
SELECT user_id, quota_type, period_start, period_end, usage_count, limit_value, created_at, updated_at
FROM usage_counters
WHERE user_id = ? AND quota_type = ? AND period_start = ?
`

type GetUsageCounterParams struct {
	UserID      uuid.UUID
	QuotaType   string
	PeriodStart time.Time
}

func (q *Queries) GetUsageCounter(ctx context.Context, arg GetUsageCounterParams) (UsageCounter, error) {
	var i UsageCounter
	err := q.get(ctx, &i, getUsageCounter, arg.UserID, arg.QuotaType, arg.PeriodStart)
	return i, err
}

const incrementUsageCounter = `-- name: IncrementUsageCounter :one
INSERT INTO usage_counters (user_id, quota_type, period_start, period_end, usage_count, limit_value, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id, quota_type, period_start) DO UPDATE
SET usage_count = usage_counters.usage_count + excluded.usage_count,
    limit_value = excluded.limit_value,
    updated_at  = excluded.updated_at
RETURNING usage_count, limit_value
`

type IncrementUsageCounterParams struct {
	UserID      uuid.UUID
	QuotaType   string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Amount      int64
	LimitValue  int64
	Now         time.Time
}

type IncrementUsageCounterRow struct {
	UsageCount int64 `db:"usage_count"`
	LimitValue int64 `db:"limit_value"`
}

// IncrementUsageCounter adds Amount to the counter in a single statement,
// creating the row on first use. Concurrent callers are serialized by the
// row lock, so every increment is counted exactly once.
func (q *Queries) IncrementUsageCounter(ctx context.Context, arg IncrementUsageCounterParams) (IncrementUsageCounterRow, error) {
	var i IncrementUsageCounterRow
	err := q.get(ctx, &i, incrementUsageCounter,
		arg.UserID,
		arg.QuotaType,
		arg.PeriodStart,
		arg.PeriodEnd,
		arg.Amount,
		arg.LimitValue,
		arg.Now,
		arg.Now,
	)
	return i, err
}

const archiveExpiredUsage = `-- name: ArchiveExpiredUsage :execrows
INSERT INTO usage_history (user_id, quota_type, period_start, usage_count, limit_value, archived_at)
SELECT user_id, quota_type, period_start, usage_count, limit_value, ?
FROM usage_counters
WHERE period_end <= ? AND usage_count > 0
ON CONFLICT (user_id, quota_type, period_start) DO UPDATE
SET usage_count = usage_history.usage_count + excluded.usage_count,
    limit_value = excluded.limit_value,
    archived_at = excluded.archived_at
`

// ArchiveExpiredUsage copies closed, non-zero counters into usage_history.
func (q *Queries) ArchiveExpiredUsage(ctx context.Context, now time.Time) (int64, error) {
	return q.execRows(ctx, archiveExpiredUsage, now, now)
}

const countExpiredUsageUsers = `-- name: CountExpiredUsageUsers :one
SELECT COUNT(DISTINCT user_id)
FROM usage_counters
WHERE period_end <= ? AND usage_count > 0
`

func (q *Queries) CountExpiredUsageUsers(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	err := q.get(ctx, &count, countExpiredUsageUsers, now)
	return count, err
}

const resetExpiredUsage = `-- name: ResetExpiredUsage :execrows
UPDATE usage_counters
SET usage_count = 0, updated_at = ?
WHERE period_end <= ? AND usage_count > 0
`

func (q *Queries) ResetExpiredUsage(ctx context.Context, now time.Time) (int64, error) {
	return q.execRows(ctx, resetExpiredUsage, now, now)
}

const listUsageHistory = `-- name: ListUsageHistory :many
SELECT quota_type, period_start, usage_count, limit_value
FROM usage_history
WHERE user_id = ? AND period_start >= ?
ORDER BY period_start, quota_type
`

type ListDailyUsageParams struct {
	UserID uuid.UUID
	Since  time.Time
}

// ListUsageHistory returns archived days.
func (q *Queries) ListUsageHistory(ctx context.Context, arg ListDailyUsageParams) ([]DailyUsage, error) {
	items := []DailyUsage{}
	err := q.selectAll(ctx, &items, listUsageHistory, arg.UserID, arg.Since)
	return items, err
}

const listOpenUsage = `-- name: ListOpenUsage :many
SELECT quota_type, period_start, usage_count, limit_value
FROM usage_counters
WHERE user_id = ? AND period_start >= ? AND usage_count > 0
ORDER BY period_start, quota_type
`

// ListOpenUsage returns counters that have not been archived yet. A day is
// never returned by both ListOpenUsage and ListUsageHistory: the reset
// archives and zeroes a counter in the same transaction.
func (q *Queries) ListOpenUsage(ctx context.Context, arg ListDailyUsageParams) ([]DailyUsage, error) {
	items := []DailyUsage{}
	err := q.selectAll(ctx, &items, listOpenUsage, arg.UserID, arg.Since)
	return items, err
}
