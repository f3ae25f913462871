package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type UsageCounter struct {
	UserID      uuid.UUID `db:"user_id"`
	QuotaType   string    `db:"quota_type"`
	PeriodStart time.Time `db:"period_start"`
	PeriodEnd   time.Time `db:"period_end"`
	UsageCount  int64     `db:"usage_count"`
	LimitValue  int64     `db:"limit_value"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

type DailyUsage struct {
	QuotaType   string    `db:"quota_type"`
	PeriodStart time.Time `db:"period_start"`
	UsageCount  int64     `db:"usage_count"`
	LimitValue  int64     `db:"limit_value"`
}

type UpgradePrompt struct {
	ID            uuid.UUID             `db:"id"`
	UserID        uuid.UUID             `db:"user_id"`
	QuotaType     string                `db:"quota_type"`
	CurrentTier   string                `db:"current_tier"`
	SuggestedTier string                `db:"suggested_tier"`
	ShownAt       time.Time             `db:"shown_at"`
	DismissedAt   sql.NullTime          `db:"dismissed_at"`
	ConvertedAt   sql.NullTime          `db:"converted_at"`
	Metadata      pqtype.NullRawMessage `db:"metadata"`
}

type CacheEntry struct {
	QueryHash string                `db:"query_hash"`
	Query     string                `db:"query"`
	Filters   pqtype.NullRawMessage `db:"filters"`
	Results   []byte                `db:"results"`
	CreatedAt time.Time             `db:"created_at"`
	ExpiresAt time.Time             `db:"expires_at"`
	HitCount  int64                 `db:"hit_count"`
}

type QuotaResetLog struct {
	ID              uuid.UUID      `db:"id"`
	ResetDate       time.Time      `db:"reset_date"`
	UsersReset      int64          `db:"users_reset"`
	QuotasReset     int64          `db:"quotas_reset"`
	ExecutionTimeMs int64          `db:"execution_time_ms"`
	Status          string         `db:"status"`
	ErrorMessage    sql.NullString `db:"error_message"`
	TriggeredBy     string         `db:"triggered_by"`
	CreatedAt       time.Time      `db:"created_at"`
}
