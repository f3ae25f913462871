// Package scheduler runs the daily quota reset.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/DukeRupert/regdesk/internal/metrics"
	"github.com/DukeRupert/regdesk/internal/repository"
	"github.com/google/uuid"
)

// ErrResetInProgress is returned when a reset is requested while another
// one is running.
var ErrResetInProgress = errors.New("quota reset already in progress")

// logWriteTimeout bounds writing the reset log after the run itself.
const logWriteTimeout = 5 * time.Second

// CounterResetter zeroes counters whose period has ended.
type CounterResetter interface {
	ResetExpired(ctx context.Context, now time.Time) (domain.ResetOutcome, error)
}

// ResetLogStore persists reset runs.
type ResetLogStore interface {
	InsertQuotaResetLog(ctx context.Context, arg repository.InsertQuotaResetLogParams) error
	ListQuotaResetLogs(ctx context.Context, limit int32) ([]repository.QuotaResetLog, error)
}

// ResetScheduler resets usage counters at every UTC midnight and on demand.
type ResetScheduler struct {
	resetter CounterResetter
	logs     ResetLogStore
	logger   *slog.Logger

	now   func() time.Time
	delay func(now time.Time) time.Duration

	// running serializes executions; overlapping callers fail fast.
	running sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun *domain.ResetLog
}

// New creates a stopped ResetScheduler.
func New(resetter CounterResetter, logs ResetLogStore, logger *slog.Logger) *ResetScheduler {
	return &ResetScheduler{
		resetter: resetter,
		logs:     logs,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		delay:    UntilNextMidnight,
	}
}

// WithClock replaces the scheduler's time source. Used by tests.
func (s *ResetScheduler) WithClock(now func() time.Time) *ResetScheduler {
	s.now = now
	return s
}

// WithDelay replaces the function that computes the wait before the next
// scheduled run. Used by tests.
func (s *ResetScheduler) WithDelay(delay func(now time.Time) time.Duration) *ResetScheduler {
	s.delay = delay
	return s
}

// UntilNextMidnight returns the time left until the next UTC midnight.
func UntilNextMidnight(now time.Time) time.Duration {
	return domain.NextPeriodStart(now).Sub(now.UTC())
}

// Start arms the schedule. Calling Start on a running scheduler does
// nothing.
func (s *ResetScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(ctx, s.done)

	s.logger.Info("Quota reset scheduler started", "next_run_in", s.delay(s.now()).Round(time.Second))
}

// Stop cancels the schedule and waits for a running reset to finish. No
// scheduled reset fires after Stop returns.
func (s *ResetScheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	<-done
	s.logger.Info("Quota reset scheduler stopped")
}

// Running reports whether the schedule is armed.
func (s *ResetScheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// loop re-arms a timer for every run so the schedule stays on midnight
// instead of drifting with run time.
func (s *ResetScheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		timer := time.NewTimer(s.delay(s.now()))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if _, err := s.ExecuteReset(ctx); err != nil {
			// A failed run is logged and recorded; the schedule continues.
			s.logger.Error("Scheduled quota reset failed", "error", err)
		}
	}
}

// ExecuteReset runs a scheduled reset.
func (s *ResetScheduler) ExecuteReset(ctx context.Context) (*domain.ResetLog, error) {
	return s.execute(ctx, domain.ResetTriggerScheduled)
}

// ForceReset runs a reset now, outside the schedule.
func (s *ResetScheduler) ForceReset(ctx context.Context) (*domain.ResetLog, error) {
	return s.execute(ctx, domain.ResetTriggerManual)
}

// LastRun returns the most recent run recorded by this process, or nil.
func (s *ResetScheduler) LastRun() *domain.ResetLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	run := *s.lastRun
	return &run
}

// History returns the most recent reset runs, newest first.
func (s *ResetScheduler) History(ctx context.Context, limit int) ([]domain.ResetLog, error) {
	const op = "reset.history"

	if limit <= 0 || limit > 100 {
		limit = 20
	}

	rows, err := s.logs.ListQuotaResetLogs(ctx, int32(limit))
	if err != nil {
		return nil, domain.Unavailable(err, op, "failed to list reset runs")
	}

	runs := make([]domain.ResetLog, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, domain.ResetLog{
			ID:              r.ID,
			ResetDate:       r.ResetDate.UTC(),
			UsersReset:      r.UsersReset,
			QuotasReset:     r.QuotasReset,
			ExecutionTimeMs: r.ExecutionTimeMs,
			Status:          domain.ResetStatus(r.Status),
			ErrorMessage:    domain.NullStringValue(r.ErrorMessage),
			Trigger:         domain.ResetTrigger(r.TriggeredBy),
			CreatedAt:       r.CreatedAt.UTC(),
		})
	}
	return runs, nil
}

func (s *ResetScheduler) execute(ctx context.Context, trigger domain.ResetTrigger) (*domain.ResetLog, error) {
	if !s.running.TryLock() {
		return nil, ErrResetInProgress
	}
	defer s.running.Unlock()

	start := time.Now()
	now := s.now().UTC().Truncate(time.Microsecond)

	outcome, resetErr := s.resetter.ResetExpired(ctx, now)
	elapsed := time.Since(start)

	run := domain.ResetLog{
		ID:              uuid.New(),
		ResetDate:       domain.PeriodStart(now),
		UsersReset:      outcome.UsersReset,
		QuotasReset:     outcome.QuotasReset,
		ExecutionTimeMs: elapsed.Milliseconds(),
		Status:          domain.ResetStatusSuccess,
		Trigger:         trigger,
		CreatedAt:       now,
	}
	if resetErr != nil {
		run.Status = domain.ResetStatusFailed
		run.ErrorMessage = resetErr.Error()
	}

	// Record the run even if the caller's context is already done.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()

	if err := s.logs.InsertQuotaResetLog(logCtx, repository.InsertQuotaResetLogParams{
		ID:              run.ID,
		ResetDate:       run.ResetDate,
		UsersReset:      run.UsersReset,
		QuotasReset:     run.QuotasReset,
		ExecutionTimeMs: run.ExecutionTimeMs,
		Status:          string(run.Status),
		ErrorMessage:    sql.NullString{String: run.ErrorMessage, Valid: run.ErrorMessage != ""},
		TriggeredBy:     string(run.Trigger),
		CreatedAt:       run.CreatedAt,
	}); err != nil {
		s.logger.Error("Failed to record quota reset", "reset_id", run.ID, "error", err)
	}

	metrics.ResetCompleted(string(trigger), string(run.Status), elapsed, run.QuotasReset)

	s.mu.Lock()
	s.lastRun = &run
	s.mu.Unlock()

	if resetErr != nil {
		return &run, resetErr
	}

	s.logger.Info("Quota reset completed",
		"trigger", trigger,
		"users_reset", run.UsersReset,
		"quotas_reset", run.QuotasReset,
		"duration_ms", run.ExecutionTimeMs,
	)
	return &run, nil
}
