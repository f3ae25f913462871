package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/regdesk/internal/auth"
	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/google/uuid"
)

// DefaultStatsWindow is the statistics window used when ?days is absent.
const DefaultStatsWindow = 30

// QuotaReader reads quota state without consuming it.
type QuotaReader interface {
	CheckQuota(ctx context.Context, userID uuid.UUID, tier domain.Tier, quotaType domain.QuotaType) (*domain.QuotaCheckResult, error)
	GetUsageStatistics(ctx context.Context, userID uuid.UUID, windowDays int) ([]domain.UsageStatistics, error)
}

// QuotaHandler serves the caller's quota status and statistics.
type QuotaHandler struct {
	quotas QuotaReader
	logger *slog.Logger
}

// NewQuotaHandler creates a new QuotaHandler.
func NewQuotaHandler(quotas QuotaReader, logger *slog.Logger) *QuotaHandler {
	return &QuotaHandler{
		quotas: quotas,
		logger: logger,
	}
}

// RegisterRoutes registers the quota routes behind requireUser.
func (h *QuotaHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/quota", requireUser(http.HandlerFunc(h.Summary)))
	mux.Handle("GET /api/quota/stats", requireUser(http.HandlerFunc(h.Stats)))
	mux.Handle("GET /api/quota/{type}", requireUser(http.HandlerFunc(h.Status)))
}

// QuotaSummary is the response of GET /api/quota.
type QuotaSummary struct {
	Tier   domain.Tier           `json:"tier"`
	Policy domain.TierPolicy     `json:"policy"`
	Usage  []domain.UsageCounter `json:"usage"`
}

// Summary handles GET /api/quota.
func (h *QuotaHandler) Summary(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	tier := user.EffectiveTier()
	summary := QuotaSummary{
		Tier:   tier,
		Policy: domain.GetPolicy(tier),
		Usage:  make([]domain.UsageCounter, 0, len(domain.QuotaTypes)),
	}
	for _, qt := range domain.QuotaTypes {
		result, err := h.quotas.CheckQuota(r.Context(), user.ID, tier, qt)
		if err != nil {
			ErrorResponse(w, r, h.logger, err)
			return
		}
		summary.Usage = append(summary.Usage, result.Usage)
	}

	WriteJSON(w, http.StatusOK, summary)
}

// Status handles GET /api/quota/{type}. A blocked quota is still a 200; the
// body carries the decision.
func (h *QuotaHandler) Status(w http.ResponseWriter, r *http.Request) {
	const op = "handler.quota_status"

	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	qt, err := domain.ParseQuotaType(op, r.PathValue("type"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.quotas.CheckQuota(r.Context(), user.ID, user.EffectiveTier(), qt)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

// StatsResponse is the response of GET /api/quota/stats.
type StatsResponse struct {
	WindowDays int                      `json:"windowDays"`
	Stats      []domain.UsageStatistics `json:"stats"`
}

// Stats handles GET /api/quota/stats?days=N.
func (h *QuotaHandler) Stats(w http.ResponseWriter, r *http.Request) {
	const op = "handler.quota_stats"

	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	days, err := queryInt(r, op, "days", DefaultStatsWindow)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	stats, err := h.quotas.GetUsageStatistics(r.Context(), user.ID, days)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, StatsResponse{WindowDays: days, Stats: stats})
}
