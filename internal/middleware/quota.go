package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/regdesk/internal/auth"
	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/DukeRupert/regdesk/internal/handler"
)

// QuotaChecker is the subset of the quota manager used by the middleware.
type QuotaChecker interface {
	CheckQuota(ctx context.Context, userID uuid.UUID, tier domain.Tier, quotaType domain.QuotaType) (*domain.QuotaCheckResult, error)
	IncrementQuota(ctx context.Context, userID uuid.UUID, tier domain.Tier, quotaType domain.QuotaType, amount int64) (*domain.QuotaCheckResult, error)
}

// Rate-limit response headers set on every request that reaches a quota
// decision.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRateLimitUnlimited = "X-RateLimit-Unlimited"
)

// QuotaMiddleware guards routes with a per-user daily quota.
type QuotaMiddleware struct {
	quotas   QuotaChecker
	logger   *slog.Logger
	failOpen bool
	now      func() time.Time
}

// NewQuotaMiddleware creates a QuotaMiddleware. With failOpen set, requests
// proceed when the quota store cannot be reached; otherwise they fail with
// a 500.
func NewQuotaMiddleware(quotas QuotaChecker, logger *slog.Logger, failOpen bool) *QuotaMiddleware {
	return &QuotaMiddleware{
		quotas:   quotas,
		logger:   logger,
		failOpen: failOpen,
		now:      time.Now,
	}
}

// Enforce consumes one unit of quotaType per request.
func (m *QuotaMiddleware) Enforce(quotaType domain.QuotaType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.guard(quotaType, true, next)
	}
}

// Check denies requests from users already at their limit without
// consuming quota.
func (m *QuotaMiddleware) Check(quotaType domain.QuotaType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return m.guard(quotaType, false, next)
	}
}

func (m *QuotaMiddleware) guard(quotaType domain.QuotaType, consume bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUser(r.Context())
		if user == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		var (
			result *domain.QuotaCheckResult
			err    error
		)
		if consume {
			result, err = m.quotas.IncrementQuota(r.Context(), user.ID, user.EffectiveTier(), quotaType, 1)
		} else {
			result, err = m.quotas.CheckQuota(r.Context(), user.ID, user.EffectiveTier(), quotaType)
		}

		if err != nil {
			if domain.IsUnavailable(err) && m.failOpen {
				m.logger.Warn("quota check unavailable, allowing request",
					"user_id", user.ID,
					"quota_type", quotaType,
					"error", err,
				)
				next.ServeHTTP(w, r)
				return
			}
			if domain.IsUnavailable(err) {
				m.logger.Error("quota check unavailable",
					"user_id", user.ID,
					"quota_type", quotaType,
					"path", r.URL.Path,
					"error", err,
				)
				handler.WriteJSONError(w, http.StatusInternalServerError, "quota_unavailable",
					"We could not verify your usage quota. Please try again shortly.")
				return
			}
			handler.ErrorResponse(w, r, m.logger, err)
			return
		}

		setRateLimitHeaders(w, result.Usage)

		if !result.Allowed {
			m.deny(w, r, user, quotaType, result)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetQuotaResult(r.Context(), result)))
	})
}

// QuotaExceededResponse is the body of a 429 quota denial.
type QuotaExceededResponse struct {
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Quota   QuotaState    `json:"quota"`
	Upgrade *UpgradeOffer `json:"upgrade,omitempty"`
}

// QuotaState describes the counter that caused a denial.
type QuotaState struct {
	Usage          int64     `json:"usage"`
	Limit          int64     `json:"limit"`
	Remaining      int64     `json:"remaining"`
	PeriodEnd      time.Time `json:"periodEnd"`
	ResetInSeconds int64     `json:"resetInSeconds"`
}

// UpgradeOffer suggests a higher tier.
type UpgradeOffer struct {
	CurrentTier   domain.Tier `json:"currentTier"`
	SuggestedTier domain.Tier `json:"suggestedTier"`
	Message       string      `json:"message"`
}

func (m *QuotaMiddleware) deny(w http.ResponseWriter, r *http.Request, user *domain.User, quotaType domain.QuotaType, result *domain.QuotaCheckResult) {
	resetIn := retryAfterSeconds(result.Usage.PeriodEnd, m.now())
	w.Header().Set("Retry-After", strconv.FormatInt(resetIn, 10))

	body := QuotaExceededResponse{
		Error:   "quota_exceeded",
		Message: fmt.Sprintf("You have reached your daily %s limit of %d.", quotaLabel(quotaType), result.Usage.LimitValue),
		Quota: QuotaState{
			Usage:          result.Usage.UsageCount,
			Limit:          result.Usage.LimitValue,
			Remaining:      result.Usage.Remaining,
			PeriodEnd:      result.Usage.PeriodEnd,
			ResetInSeconds: resetIn,
		},
	}
	if result.ShowUpgradePrompt && result.SuggestedTier != nil {
		body.Upgrade = &UpgradeOffer{
			CurrentTier:   user.EffectiveTier(),
			SuggestedTier: *result.SuggestedTier,
			Message:       fmt.Sprintf("Upgrade to %s for a higher daily %s limit.", *result.SuggestedTier, quotaLabel(quotaType)),
		}
	}

	// Denials are expected outcomes, not application errors.
	m.logger.Info("quota exceeded",
		"user_id", user.ID,
		"quota_type", quotaType,
		"usage", result.Usage.UsageCount,
		"limit", result.Usage.LimitValue,
		"path", r.URL.Path,
	)

	handler.WriteJSON(w, http.StatusTooManyRequests, body)
}

func setRateLimitHeaders(w http.ResponseWriter, usage domain.UsageCounter) {
	h := w.Header()
	h.Set(HeaderRateLimitLimit, strconv.FormatInt(usage.LimitValue, 10))
	h.Set(HeaderRateLimitRemaining, strconv.FormatInt(usage.Remaining, 10))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(usage.PeriodEnd.Unix(), 10))
	h.Set(HeaderRateLimitUnlimited, strconv.FormatBool(usage.IsUnlimited))
}

// retryAfterSeconds rounds up so clients never retry before the reset.
func retryAfterSeconds(periodEnd, now time.Time) int64 {
	seconds := int64(math.Ceil(periodEnd.Sub(now).Seconds()))
	if seconds < 1 {
		return 1
	}
	return seconds
}

func quotaLabel(quotaType domain.QuotaType) string {
	switch quotaType {
	case domain.QuotaTypeSearch:
		return "search"
	case domain.QuotaTypeExport:
		return "export"
	case domain.QuotaTypeAPICall:
		return "API call"
	default:
		return string(quotaType)
	}
}
