// Package domain contains core business types and interfaces.
//
// This file defines quota types, usage counters and the results returned by
// quota checks.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// QuotaType identifies the type of quota being checked.
type QuotaType string

const (
	QuotaTypeSearch  QuotaType = "search"
	QuotaTypeExport  QuotaType = "export"
	QuotaTypeAPICall QuotaType = "api_call"
)

// QuotaTypes lists every quota type, in display order.
var QuotaTypes = []QuotaType{QuotaTypeSearch, QuotaTypeExport, QuotaTypeAPICall}

// Valid returns true if the quota type is known.
func (q QuotaType) Valid() bool {
	switch q {
	case QuotaTypeSearch, QuotaTypeExport, QuotaTypeAPICall:
		return true
	default:
		return false
	}
}

// ParseQuotaType validates a raw quota type string.
func ParseQuotaType(op, raw string) (QuotaType, error) {
	q := QuotaType(raw)
	if !q.Valid() {
		return "", Invalid(op, "unknown quota type: "+raw)
	}
	return q, nil
}

// UsageCounter is a snapshot of one user's usage of one quota type in the
// current period.
type UsageCounter struct {
	UserID      uuid.UUID `json:"-"`
	QuotaType   QuotaType `json:"quotaType"`
	UsageCount  int64     `json:"usageCount"`
	LimitValue  int64     `json:"limitValue"`
	Remaining   int64     `json:"remaining"`
	PeriodStart time.Time `json:"periodStart"`
	PeriodEnd   time.Time `json:"periodEnd"`
	IsUnlimited bool      `json:"isUnlimited"`
}

// NewUsageCounter builds a counter snapshot and derives Remaining.
// Remaining is -1 for unlimited quotas and never negative otherwise.
func NewUsageCounter(userID uuid.UUID, quotaType QuotaType, count, limit int64, periodStart time.Time) UsageCounter {
	c := UsageCounter{
		UserID:      userID,
		QuotaType:   quotaType,
		UsageCount:  count,
		LimitValue:  limit,
		PeriodStart: periodStart,
		PeriodEnd:   periodStart.Add(24 * time.Hour),
		IsUnlimited: limit == Unlimited,
	}
	switch {
	case c.IsUnlimited:
		c.Remaining = Unlimited
	case count >= limit:
		c.Remaining = 0
	default:
		c.Remaining = limit - count
	}
	return c
}

// AtLimit reports whether no further use is allowed in this period.
func (c UsageCounter) AtLimit() bool {
	return !c.IsUnlimited && c.UsageCount >= c.LimitValue
}

// Exceeded reports whether usage went past the limit.
func (c UsageCounter) Exceeded() bool {
	return !c.IsUnlimited && c.UsageCount > c.LimitValue
}

// QuotaCheckResult is returned by every check and increment call.
// It is recomputed on each call and never persisted.
type QuotaCheckResult struct {
	Allowed           bool         `json:"allowed"`
	Usage             UsageCounter `json:"usage"`
	QuotaExceeded     bool         `json:"quotaExceeded"`
	ShowUpgradePrompt bool         `json:"showUpgradePrompt"`
	SuggestedTier     *Tier        `json:"suggestedTier,omitempty"`
	Tier              Tier         `json:"-"`
}

// UsageStatistics aggregates one quota type's usage over a trailing window.
type UsageStatistics struct {
	QuotaType     QuotaType `json:"quotaType"`
	WindowDays    int       `json:"windowDays"`
	TotalUsage    int64     `json:"totalUsage"`
	AveragePerDay float64   `json:"averagePerDay"`
	MaxPerDay     int64     `json:"maxPerDay"`
	DaysAtLimit   int       `json:"daysAtLimit"`
}

// DailyUsage is one day's closed or open usage count, used for statistics.
type DailyUsage struct {
	QuotaType   QuotaType
	PeriodStart time.Time
	UsageCount  int64
	LimitValue  int64
}

// PeriodStart returns the UTC midnight that starts the day containing t.
func PeriodStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// NextPeriodStart returns the next UTC midnight strictly after t.
func NextPeriodStart(t time.Time) time.Time {
	return PeriodStart(t).Add(24 * time.Hour)
}
