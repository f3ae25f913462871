// Package service contains the business logic layer.
//
// This file implements the usage counter store: durable per-user, per-day
// counters with an atomic increment-and-check.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/DukeRupert/regdesk/internal/metrics"
	"github.com/DukeRupert/regdesk/internal/repository"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// IncrementResult is the outcome of an atomic increment.
type IncrementResult struct {
	NewCount      int64
	Limit         int64
	Remaining     int64
	QuotaExceeded bool
	PeriodStart   time.Time
}

// Counter returns the post-increment snapshot.
func (r IncrementResult) Counter(userID uuid.UUID, quotaType domain.QuotaType) domain.UsageCounter {
	return domain.NewUsageCounter(userID, quotaType, r.NewCount, r.Limit, r.PeriodStart)
}

// UsageCounterStore is the subset of UsageStore used by the quota manager.
type UsageCounterStore interface {
	GetUsage(ctx context.Context, userID uuid.UUID, quotaType domain.QuotaType, limit int64) (domain.UsageCounter, error)
	IncrementAndCheck(ctx context.Context, userID uuid.UUID, quotaType domain.QuotaType, amount, limit int64) (IncrementResult, error)
	History(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.DailyUsage, error)
}

// UsageStore persists usage counters.
type UsageStore struct {
	db      *sqlx.DB
	queries *repository.Queries
	logger  *slog.Logger
	now     func() time.Time
}

// NewUsageStore creates a UsageStore.
func NewUsageStore(db *sqlx.DB, logger *slog.Logger) *UsageStore {
	return &UsageStore{
		db:      db,
		queries: repository.New(db),
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the store's time source. Used by tests.
func (s *UsageStore) WithClock(now func() time.Time) *UsageStore {
	s.now = now
	return s
}

// GetUsage returns the current period's counter. A user with no usage yet
// gets a zero-valued counter; no row is created.
func (s *UsageStore) GetUsage(ctx context.Context, userID uuid.UUID, quotaType domain.QuotaType, limit int64) (domain.UsageCounter, error) {
	const op = "usage.get"

	periodStart := domain.PeriodStart(s.now())

	row, err := s.queries.GetUsageCounter(ctx, repository.GetUsageCounterParams{
		UserID:      userID,
		QuotaType:   string(quotaType),
		PeriodStart: periodStart,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewUsageCounter(userID, quotaType, 0, limit, periodStart), nil
	}
	if err != nil {
		return domain.UsageCounter{}, s.unavailable(err, op, "failed to read usage counter")
	}

	return domain.NewUsageCounter(userID, quotaType, row.UsageCount, limit, periodStart), nil
}

// IncrementAndCheck adds amount to the current period's counter and reports
// whether the new total exceeds limit. The increment is applied even when
// the result is exceeded, so the stored count is the sum of all attempts.
func (s *UsageStore) IncrementAndCheck(ctx context.Context, userID uuid.UUID, quotaType domain.QuotaType, amount, limit int64) (IncrementResult, error) {
	const op = "usage.increment"

	if amount < 0 {
		return IncrementResult{}, domain.Invalid(op, "amount must not be negative")
	}

	now := s.now().Truncate(time.Microsecond)
	periodStart := domain.PeriodStart(now)

	row, err := s.queries.IncrementUsageCounter(ctx, repository.IncrementUsageCounterParams{
		UserID:      userID,
		QuotaType:   string(quotaType),
		PeriodStart: periodStart,
		PeriodEnd:   domain.NextPeriodStart(now),
		Amount:      amount,
		LimitValue:  limit,
		Now:         now,
	})
	if err != nil {
		return IncrementResult{}, s.unavailable(err, op, "failed to increment usage counter")
	}

	counter := domain.NewUsageCounter(userID, quotaType, row.UsageCount, limit, periodStart)
	return IncrementResult{
		NewCount:      row.UsageCount,
		Limit:         limit,
		Remaining:     counter.Remaining,
		QuotaExceeded: counter.Exceeded(),
		PeriodStart:   periodStart,
	}, nil
}

// ResetExpired archives and zeroes every counter whose period ended at or
// before now. Running it twice for the same instant resets nothing the
// second time.
func (s *UsageStore) ResetExpired(ctx context.Context, now time.Time) (domain.ResetOutcome, error) {
	const op = "usage.reset"

	now = now.UTC().Truncate(time.Microsecond)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.ResetOutcome{}, s.unavailable(err, op, "failed to begin reset transaction")
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	users, err := qtx.CountExpiredUsageUsers(ctx, now)
	if err != nil {
		return domain.ResetOutcome{}, s.unavailable(err, op, "failed to count expired counters")
	}

	if _, err := qtx.ArchiveExpiredUsage(ctx, now); err != nil {
		return domain.ResetOutcome{}, s.unavailable(err, op, "failed to archive usage")
	}

	quotas, err := qtx.ResetExpiredUsage(ctx, now)
	if err != nil {
		return domain.ResetOutcome{}, s.unavailable(err, op, "failed to zero counters")
	}

	if err := tx.Commit(); err != nil {
		return domain.ResetOutcome{}, s.unavailable(err, op, "failed to commit reset")
	}

	return domain.ResetOutcome{UsersReset: users, QuotasReset: quotas}, nil
}

// History returns one entry per (quota type, day) with usage since the
// given day, oldest first.
func (s *UsageStore) History(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.DailyUsage, error) {
	const op = "usage.history"

	params := repository.ListDailyUsageParams{UserID: userID, Since: domain.PeriodStart(since)}

	archived, err := s.queries.ListUsageHistory(ctx, params)
	if err != nil {
		return nil, s.unavailable(err, op, "failed to read usage history")
	}
	open, err := s.queries.ListOpenUsage(ctx, params)
	if err != nil {
		return nil, s.unavailable(err, op, "failed to read open usage")
	}

	days := make([]domain.DailyUsage, 0, len(archived)+len(open))
	for _, rows := range [][]repository.DailyUsage{archived, open} {
		for _, r := range rows {
			days = append(days, domain.DailyUsage{
				QuotaType:   domain.QuotaType(r.QuotaType),
				PeriodStart: r.PeriodStart.UTC(),
				UsageCount:  r.UsageCount,
				LimitValue:  r.LimitValue,
			})
		}
	}
	return days, nil
}

func (s *UsageStore) unavailable(err error, op, message string) error {
	metrics.QuotaStoreError(op)
	s.logger.Error("usage store failure", "op", op, "error", err)
	return domain.Unavailable(err, op, message)
}
