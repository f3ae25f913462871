package repository_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DukeRupert/regdesk/internal/repository"
	"github.com/DukeRupert/regdesk/internal/testdb"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func incrementParams(userID uuid.UUID, amount int64) repository.IncrementUsageCounterParams {
	return repository.IncrementUsageCounterParams{
		UserID:      userID,
		QuotaType:   "search",
		PeriodStart: day,
		PeriodEnd:   day.Add(24 * time.Hour),
		Amount:      amount,
		LimitValue:  20,
		Now:         day.Add(time.Hour),
	}
}

func TestIncrementUsageCounter_CreatesThenAccumulates(t *testing.T) {
	ctx := context.Background()
	q := repository.New(testdb.Open(t))
	userID := uuid.New()

	row, err := q.IncrementUsageCounter(ctx, incrementParams(userID, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), row.UsageCount)
	assert.Equal(t, int64(20), row.LimitValue)

	row, err = q.IncrementUsageCounter(ctx, incrementParams(userID, 3))
	require.NoError(t, err)
	assert.Equal(t, int64(4), row.UsageCount)

	counter, err := q.GetUsageCounter(ctx, repository.GetUsageCounterParams{
		UserID:      userID,
		QuotaType:   "search",
		PeriodStart: day,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), counter.UsageCount)
	assert.True(t, counter.PeriodEnd.Equal(day.Add(24*time.Hour)))
}

func TestGetUsageCounter_NoRow(t *testing.T) {
	q := repository.New(testdb.Open(t))

	_, err := q.GetUsageCounter(context.Background(), repository.GetUsageCounterParams{
		UserID:      uuid.New(),
		QuotaType:   "search",
		PeriodStart: day,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestResetExpiredUsage_ArchivesAndZeroes(t *testing.T) {
	ctx := context.Background()
	q := repository.New(testdb.Open(t))
	alice, bob := uuid.New(), uuid.New()

	for _, userID := range []uuid.UUID{alice, bob} {
		_, err := q.IncrementUsageCounter(ctx, incrementParams(userID, 5))
		require.NoError(t, err)
	}
	exportParams := incrementParams(alice, 2)
	exportParams.QuotaType = "export"
	_, err := q.IncrementUsageCounter(ctx, exportParams)
	require.NoError(t, err)

	now := day.Add(24 * time.Hour)

	users, err := q.CountExpiredUsageUsers(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), users)

	archived, err := q.ArchiveExpiredUsage(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), archived)

	reset, err := q.ResetExpiredUsage(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), reset)

	reset, err = q.ResetExpiredUsage(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, reset)

	history, err := q.ListUsageHistory(ctx, repository.ListDailyUsageParams{UserID: alice, Since: day})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "export", history[0].QuotaType)
	assert.Equal(t, int64(2), history[0].UsageCount)

	open, err := q.ListOpenUsage(ctx, repository.ListDailyUsageParams{UserID: alice, Since: day})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestResetExpiredUsage_LeavesCurrentPeriod(t *testing.T) {
	ctx := context.Background()
	q := repository.New(testdb.Open(t))

	_, err := q.IncrementUsageCounter(ctx, incrementParams(uuid.New(), 1))
	require.NoError(t, err)

	reset, err := q.ResetExpiredUsage(ctx, day.Add(23*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, reset)
}

func TestUpgradePrompts_OneActivePerQuotaType(t *testing.T) {
	ctx := context.Background()
	q := repository.New(testdb.Open(t))
	userID := uuid.New()

	insert := func() (uuid.UUID, int64) {
		id := uuid.New()
		n, err := q.InsertUpgradePrompt(ctx, repository.InsertUpgradePromptParams{
			ID:            id,
			UserID:        userID,
			QuotaType:     "search",
			CurrentTier:   "free",
			SuggestedTier: "pro",
			ShownAt:       day,
			Metadata:      pqtype.NullRawMessage{RawMessage: []byte(`{"usage":21}`), Valid: true},
		})
		require.NoError(t, err)
		return id, n
	}

	first, n := insert()
	assert.Equal(t, int64(1), n)
	_, n = insert()
	assert.Zero(t, n, "second active prompt must be rejected")

	active, err := q.ListActiveUpgradePrompts(ctx, userID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, first, active[0].ID)
	assert.JSONEq(t, `{"usage":21}`, string(active[0].Metadata.RawMessage))

	dismissed, err := q.DismissUpgradePrompt(ctx, repository.UpdateUpgradePromptParams{ID: first, UserID: userID, At: day.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), dismissed)

	_, n = insert()
	assert.Equal(t, int64(1), n, "dismissed prompt frees the slot")

	recent, err := q.CountRecentDismissals(ctx, repository.CountRecentDismissalsParams{
		UserID:    userID,
		QuotaType: "search",
		Since:     day,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), recent)
}

func TestUpgradePrompts_ForeignUserCannotUpdate(t *testing.T) {
	ctx := context.Background()
	q := repository.New(testdb.Open(t))
	owner := uuid.New()
	id := uuid.New()

	_, err := q.InsertUpgradePrompt(ctx, repository.InsertUpgradePromptParams{
		ID: id, UserID: owner, QuotaType: "search", CurrentTier: "free", SuggestedTier: "pro", ShownAt: day,
	})
	require.NoError(t, err)

	n, err := q.ConvertUpgradePrompt(ctx, repository.UpdateUpgradePromptParams{ID: id, UserID: uuid.New(), At: day})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = q.GetUpgradePromptByIDAndUser(ctx, repository.GetUpgradePromptByIDAndUserParams{ID: id, UserID: uuid.New()})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCacheEntries(t *testing.T) {
	ctx := context.Background()
	q := repository.New(testdb.Open(t))
	now := day.Add(time.Hour)

	err := q.UpsertCacheEntry(ctx, repository.UpsertCacheEntryParams{
		QueryHash: "abc",
		Query:     "fall protection",
		Results:   []byte(`[{"id":"1926.501"}]`),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	})
	require.NoError(t, err)

	n, err := q.TouchCacheEntry(ctx, repository.TouchCacheEntryParams{QueryHash: "abc", Now: now})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	entry, err := q.GetCacheEntry(ctx, repository.GetCacheEntryParams{QueryHash: "abc", Now: now})
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.HitCount)
	assert.False(t, entry.Filters.Valid)
	assert.JSONEq(t, `[{"id":"1926.501"}]`, string(entry.Results))

	n, err = q.TouchCacheEntry(ctx, repository.TouchCacheEntryParams{QueryHash: "abc", Now: now.Add(time.Hour)})
	require.NoError(t, err)
	assert.Zero(t, n, "expired entries are not hit")

	stats, err := q.GetCacheStats(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entries)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(1), stats.TotalHits)

	deleted, err := q.DeleteExpiredCacheEntries(ctx, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
}

func TestQuotaResetLog(t *testing.T) {
	ctx := context.Background()
	q := repository.New(testdb.Open(t))

	err := q.InsertQuotaResetLog(ctx, repository.InsertQuotaResetLogParams{
		ID:           uuid.New(),
		ResetDate:    day,
		Status:       "failed",
		ErrorMessage: sql.NullString{String: "database is locked", Valid: true},
		TriggeredBy:  "scheduled",
		CreatedAt:    day,
	})
	require.NoError(t, err)

	logs, err := q.ListQuotaResetLogs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "failed", logs[0].Status)
	assert.Equal(t, "database is locked", logs[0].ErrorMessage.String)
}

func TestUserTiers(t *testing.T) {
	ctx := context.Background()
	q := repository.New(testdb.Open(t))
	userID := uuid.New()

	_, err := q.GetUserTier(ctx, userID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, q.UpsertUserTier(ctx, repository.UpsertUserTierParams{UserID: userID, Tier: "pro", UpdatedAt: day}))
	require.NoError(t, q.UpsertUserTier(ctx, repository.UpsertUserTierParams{UserID: userID, Tier: "enterprise", UpdatedAt: day}))

	tier, err := q.GetUserTier(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "enterprise", tier)
}
