package repository

import (
	"context"
	"time"

	"github.com/sqlc-dev/pqtype"
)

const touchCacheEntry = `-- name: TouchCacheEntry :execrows
UPDATE cache_entries
SET hit_count = hit_count + 1
WHERE query_hash = ? AND expires_at > ?
`

type TouchCacheEntryParams struct {
	QueryHash string
	Now       time.Time
}

// TouchCacheEntry counts a hit on a live entry. It returns 0 when the entry
// is missing or expired.
func (q *Queries) TouchCacheEntry(ctx context.Context, arg TouchCacheEntryParams) (int64, error) {
	return q.execRows(ctx, touchCacheEntry, arg.QueryHash, arg.Now)
}

const getCacheEntry = `-- name: GetCacheEntry :one
SELECT query_hash, query, filters, results, created_at, expires_at, hit_count
FROM cache_entries
WHERE query_hash = ? AND expires_at > ?
`

type GetCacheEntryParams struct {
	QueryHash string
	Now       time.Time
}

func (q *Queries) GetCacheEntry(ctx context.Context, arg GetCacheEntryParams) (CacheEntry, error) {
	var i CacheEntry
	err := q.get(ctx, &i, getCacheEntry, arg.QueryHash, arg.Now)
	return i, err
}

const upsertCacheEntry = `-- name: UpsertCacheEntry :exec
INSERT INTO cache_entries (query_hash, query, filters, results, created_at, expires_at, hit_count)
VALUES (?, ?, ?, ?, ?, ?, 0)
ON CONFLICT (query_hash) DO UPDATE
SET query      = excluded.query,
    filters    = excluded.filters,
    results    = excluded.results,
    created_at = excluded.created_at,
    expires_at = excluded.expires_at,
    hit_count  = 0
`

type UpsertCacheEntryParams struct {
	QueryHash string
	Query     string
	Filters   pqtype.NullRawMessage
	Results   []byte
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (q *Queries) UpsertCacheEntry(ctx context.Context, arg UpsertCacheEntryParams) error {
	_, err := q.exec(ctx, upsertCacheEntry,
		arg.QueryHash,
		arg.Query,
		arg.Filters,
		string(arg.Results),
		arg.CreatedAt,
		arg.ExpiresAt,
	)
	return err
}

const deleteCacheEntry = `-- name: DeleteCacheEntry :execrows
DELETE FROM cache_entries
WHERE query_hash = ?
`

func (q *Queries) DeleteCacheEntry(ctx context.Context, queryHash string) (int64, error) {
	return q.execRows(ctx, deleteCacheEntry, queryHash)
}

const deleteExpiredCacheEntries = `-- name: DeleteExpiredCacheEntries :execrows
DELETE FROM cache_entries
WHERE expires_at <= ?
`

func (q *Queries) DeleteExpiredCacheEntries(ctx context.Context, now time.Time) (int64, error) {
	return q.execRows(ctx, deleteExpiredCacheEntries, now)
}

const getCacheStats = `-- name: GetCacheStats :one
SELECT
    COUNT(*) AS entries,
    COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0) AS expired,
    COALESCE(SUM(hit_count), 0) AS total_hits
FROM cache_entries
`

type GetCacheStatsRow struct {
	Entries   int64 `db:"entries"`
	Expired   int64 `db:"expired"`
	TotalHits int64 `db:"total_hits"`
}

func (q *Queries) GetCacheStats(ctx context.Context, now time.Time) (GetCacheStatsRow, error) {
	var i GetCacheStatsRow
	err := q.get(ctx, &i, getCacheStats, now)
	return i, err
}
