package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const insertQuotaResetLog = `-- name: InsertQuotaResetLog :exec
INSERT INTO quota_reset_log (id, reset_date, users_reset, quotas_reset, execution_time_ms, status, error_message, triggered_by, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

type InsertQuotaResetLogParams struct {
	ID              uuid.UUID
	ResetDate       time.Time
	UsersReset      int64
	QuotasReset     int64
	ExecutionTimeMs int64
	Status          string
	ErrorMessage    sql.NullString
	TriggeredBy     string
	CreatedAt       time.Time
}

func (q *Queries) InsertQuotaResetLog(ctx context.Context, arg InsertQuotaResetLogParams) error {
	_, err := q.exec(ctx, insertQuotaResetLog,
		arg.ID,
		arg.ResetDate,
		arg.UsersReset,
		arg.QuotasReset,
		arg.ExecutionTimeMs,
		arg.Status,
		arg.ErrorMessage,
		arg.TriggeredBy,
		arg.CreatedAt,
	)
	return err
}

const listQuotaResetLogs = `-- name: ListQuotaResetLogs :many
SELECT id, reset_date, users_reset, quotas_reset, execution_time_ms, status, error_message, triggered_by, created_at
FROM quota_reset_log
ORDER BY created_at DESC
LIMIT ?
`

func (q *Queries) ListQuotaResetLogs(ctx context.Context, limit int32) ([]QuotaResetLog, error) {
	items := []QuotaResetLog{}
	err := q.selectAll(ctx, &items, listQuotaResetLogs, limit)
	return items, err
}
