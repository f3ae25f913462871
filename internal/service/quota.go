// Package service contains the business logic layer.
//
// This file implements the quota manager, which applies tier policy to the
// usage counter store and triggers upgrade prompts.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/DukeRupert/regdesk/internal/metrics"
	"github.com/google/uuid"
)

const (
	// DefaultCheckTimeout bounds every quota call.
	DefaultCheckTimeout = 2 * time.Second

	// MaxStatisticsWindow is the longest statistics window in days.
	MaxStatisticsWindow = 90
)

// PromptCreator records upgrade prompts.
type PromptCreator interface {
	MaybeCreatePrompt(ctx context.Context, params domain.CreatePromptParams) (*domain.UpgradePrompt, bool, error)
}

// QuotaManager decides whether a user may consume quota.
type QuotaManager struct {
	store   UsageCounterStore
	prompts PromptCreator
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time

	// pending tracks asynchronous prompt creation.
	pending sync.WaitGroup
}

// NewQuotaManager creates a QuotaManager. A zero timeout uses
// DefaultCheckTimeout.
func NewQuotaManager(store UsageCounterStore, prompts PromptCreator, logger *slog.Logger, timeout time.Duration) *QuotaManager {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &QuotaManager{
		store:   store,
		prompts: prompts,
		logger:  logger,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the manager's time source. Used by tests.
func (m *QuotaManager) WithClock(now func() time.Time) *QuotaManager {
	m.now = now
	return m
}

// CheckQuota reports whether one more use would be allowed without
// consuming any quota.
func (m *QuotaManager) CheckQuota(ctx context.Context, userID uuid.UUID, tier domain.Tier, quotaType domain.QuotaType) (*domain.QuotaCheckResult, error) {
	const op = "quota.check"

	limit, err := m.limit(op, tier, quotaType)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	usage, err := m.store.GetUsage(ctx, userID, quotaType, limit)
	if err != nil {
		return nil, m.storeError(ctx, err, op)
	}

	result := &domain.QuotaCheckResult{
		Allowed: !usage.AtLimit(),
		Usage:   usage,
		Tier:    m.tier(tier),
	}
	if !result.Allowed {
		m.markExceeded(result)
	}

	metrics.QuotaDecision(string(quotaType), string(result.Tier), result.Allowed)
	return result, nil
}

// IncrementQuota consumes amount units of quota and reports whether the
// request is allowed. The counter is incremented even when the result is
// denied. An amount of zero behaves as CheckQuota.
func (m *QuotaManager) IncrementQuota(ctx context.Context, userID uuid.UUID, tier domain.Tier, quotaType domain.QuotaType, amount int64) (*domain.QuotaCheckResult, error) {
	const op = "quota.increment"

	if amount < 0 {
		return nil, domain.Invalid(op, "amount must not be negative")
	}
	if amount == 0 {
		return m.CheckQuota(ctx, userID, tier, quotaType)
	}

	limit, err := m.limit(op, tier, quotaType)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	inc, err := m.store.IncrementAndCheck(ctx, userID, quotaType, amount, limit)
	if err != nil {
		return nil, m.storeError(ctx, err, op)
	}

	result := &domain.QuotaCheckResult{
		Allowed:       !inc.QuotaExceeded,
		Usage:         inc.Counter(userID, quotaType),
		QuotaExceeded: inc.QuotaExceeded,
		Tier:          m.tier(tier),
	}

	if inc.QuotaExceeded {
		m.markExceeded(result)
		m.logger.Info("Quota exceeded",
			"user_id", userID,
			"tier", result.Tier,
			"quota_type", quotaType,
			"used", inc.NewCount,
			"limit", inc.Limit,
		)
		if result.ShowUpgradePrompt {
			m.createPromptAsync(ctx, userID, result)
		}
	}

	metrics.QuotaDecision(string(quotaType), string(result.Tier), result.Allowed)
	return result, nil
}

// GetUsageStatistics summarises the trailing windowDays days, today
// included, for every quota type.
func (m *QuotaManager) GetUsageStatistics(ctx context.Context, userID uuid.UUID, windowDays int) ([]domain.UsageStatistics, error) {
	const op = "quota.statistics"

	if windowDays < 1 || windowDays > MaxStatisticsWindow {
		return nil, domain.Errorf(domain.EINVALID, op, "window must be between 1 and %d days", MaxStatisticsWindow)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	since := domain.PeriodStart(m.now()).AddDate(0, 0, -(windowDays - 1))
	days, err := m.store.History(ctx, userID, since)
	if err != nil {
		return nil, m.storeError(ctx, err, op)
	}

	byType := make(map[domain.QuotaType]*domain.UsageStatistics, len(domain.QuotaTypes))
	stats := make([]domain.UsageStatistics, len(domain.QuotaTypes))
	for i, qt := range domain.QuotaTypes {
		stats[i] = domain.UsageStatistics{QuotaType: qt, WindowDays: windowDays}
		byType[qt] = &stats[i]
	}

	for _, d := range days {
		s, ok := byType[d.QuotaType]
		if !ok || d.PeriodStart.Before(since) {
			continue
		}
		s.TotalUsage += d.UsageCount
		if d.UsageCount > s.MaxPerDay {
			s.MaxPerDay = d.UsageCount
		}
		if d.LimitValue != domain.Unlimited && d.UsageCount >= d.LimitValue {
			s.DaysAtLimit++
		}
	}
	for i := range stats {
		stats[i].AveragePerDay = float64(stats[i].TotalUsage) / float64(windowDays)
	}

	return stats, nil
}

// Drain waits for in-flight prompt creation to finish or ctx to end.
func (m *QuotaManager) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *QuotaManager) limit(op string, tier domain.Tier, quotaType domain.QuotaType) (int64, error) {
	if !quotaType.Valid() {
		return 0, domain.Invalid(op, "unknown quota type: "+string(quotaType))
	}
	return domain.GetPolicy(tier).LimitFor(quotaType)
}

// tier normalizes unknown tiers to free so results report the policy that
// was applied.
func (m *QuotaManager) tier(tier domain.Tier) domain.Tier {
	if !tier.Valid() {
		return domain.TierFree
	}
	return tier
}

func (m *QuotaManager) markExceeded(result *domain.QuotaCheckResult) {
	suggested := domain.SuggestedTier(result.Tier)
	result.QuotaExceeded = true
	result.SuggestedTier = &suggested
	result.ShowUpgradePrompt = domain.CanUpgrade(result.Tier)
}

func (m *QuotaManager) createPromptAsync(ctx context.Context, userID uuid.UUID, result *domain.QuotaCheckResult) {
	if m.prompts == nil {
		return
	}

	params := domain.CreatePromptParams{
		UserID:        userID,
		QuotaType:     result.Usage.QuotaType,
		CurrentTier:   result.Tier,
		SuggestedTier: *result.SuggestedTier,
		Metadata: map[string]any{
			"usage":     result.Usage.UsageCount,
			"limit":     result.Usage.LimitValue,
			"periodEnd": result.Usage.PeriodEnd,
		},
	}

	// Detached from the request so a client disconnect does not drop it.
	promptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)

	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		defer cancel()

		if _, _, err := m.prompts.MaybeCreatePrompt(promptCtx, params); err != nil {
			m.logger.Warn("Failed to record upgrade prompt",
				"user_id", userID,
				"quota_type", params.QuotaType,
				"error", err,
			)
		}
	}()
}

// storeError maps store failures, including a hit timeout, to EUNAVAILABLE.
func (m *QuotaManager) storeError(ctx context.Context, err error, op string) error {
	if domain.ErrorCode(err) == domain.EINVALID {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.Unavailable(err, op, "quota check timed out")
	}
	if domain.IsUnavailable(err) {
		return err
	}
	return domain.Unavailable(err, op, "quota store unavailable")
}
