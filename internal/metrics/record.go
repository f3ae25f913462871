package metrics

import "time"

// QuotaDecision records the outcome of a quota check or increment.
func QuotaDecision(quotaType, tier string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	QuotaDecisionsTotal.WithLabelValues(quotaType, tier, outcome).Inc()
}

// QuotaStoreError records a usage store failure.
func QuotaStoreError(op string) {
	QuotaStoreErrorsTotal.WithLabelValues(op).Inc()
}

// UpgradePromptEvent records a prompt being created, dismissed or converted.
func UpgradePromptEvent(quotaType, event string) {
	UpgradePromptsTotal.WithLabelValues(quotaType, event).Inc()
}

// ResetCompleted records a finished reset run.
func ResetCompleted(trigger, status string, duration time.Duration, quotasReset int64) {
	QuotaResetsTotal.WithLabelValues(trigger, status).Inc()
	QuotaResetDuration.Observe(duration.Seconds())
	if quotasReset > 0 {
		QuotaCountersResetTotal.Add(float64(quotasReset))
	}
}

// CacheLookup records a cache hit, miss or error.
func CacheLookup(result string) {
	CacheLookupsTotal.WithLabelValues(result).Inc()
}

// CacheEvicted records entries removed by a sweep.
func CacheEvicted(n int64) {
	if n > 0 {
		CacheEvictionsTotal.Add(float64(n))
	}
}

// UpstreamCall records one embedding or search call.
func UpstreamCall(operation, status string, duration time.Duration) {
	UpstreamCallsTotal.WithLabelValues(operation, status).Inc()
	UpstreamCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
