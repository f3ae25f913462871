package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/DukeRupert/regdesk/internal/repository"
	"github.com/DukeRupert/regdesk/internal/scheduler"
)

// ResetRunner runs and reports quota resets.
type ResetRunner interface {
	ForceReset(ctx context.Context) (*domain.ResetLog, error)
	History(ctx context.Context, limit int) ([]domain.ResetLog, error)
	LastRun() *domain.ResetLog
}

// CacheAdmin maintains the result cache.
type CacheAdmin interface {
	Invalidate(ctx context.Context, query string, filters domain.SearchFilters) error
	ClearExpired(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (domain.CacheStats, error)
}

// TierStore records each user's subscription tier.
type TierStore interface {
	UpsertUserTier(ctx context.Context, arg repository.UpsertUserTierParams) error
}

// AdminHandler handles operator requests.
type AdminHandler struct {
	resets ResetRunner
	cache  CacheAdmin
	tiers  TierStore
	logger *slog.Logger
	now    func() time.Time
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(resets ResetRunner, cache CacheAdmin, tiers TierStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		resets: resets,
		cache:  cache,
		tiers:  tiers,
		logger: logger,
		now:    time.Now,
	}
}

// RegisterRoutes registers admin routes with the provided middleware.
func (h *AdminHandler) RegisterRoutes(
	mux *http.ServeMux,
	requireAdmin func(http.Handler) http.Handler,
) {
	mux.Handle("POST /api/admin/quota/reset", requireAdmin(http.HandlerFunc(h.ForceReset)))
	mux.Handle("GET /api/admin/quota/resets", requireAdmin(http.HandlerFunc(h.ResetHistory)))
	mux.Handle("POST /api/admin/cache/invalidate", requireAdmin(http.HandlerFunc(h.InvalidateCache)))
	mux.Handle("POST /api/admin/cache/sweep", requireAdmin(http.HandlerFunc(h.SweepCache)))
	mux.Handle("GET /api/admin/cache/stats", requireAdmin(http.HandlerFunc(h.CacheStats)))
	mux.Handle("PUT /api/admin/users/{id}/tier", requireAdmin(http.HandlerFunc(h.SetUserTier)))
}

// ResetFailure is returned when a forced reset ran but failed.
type ResetFailure struct {
	Error JSONErrorBody    `json:"error"`
	Run   *domain.ResetLog `json:"run"`
}

// ForceReset handles POST /api/admin/quota/reset.
func (h *AdminHandler) ForceReset(w http.ResponseWriter, r *http.Request) {
	const op = "handler.force_reset"

	run, err := h.resets.ForceReset(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrResetInProgress):
		ErrorResponse(w, r, h.logger, domain.Conflict(op, "A quota reset is already running"))
		return
	case err != nil && run != nil:
		h.logger.Error("forced quota reset failed", "reset_id", run.ID, "error", err)
		WriteJSON(w, http.StatusInternalServerError, ResetFailure{
			Error: JSONErrorBody{Code: domain.EINTERNAL, Message: "Quota reset failed"},
			Run:   run,
		})
		return
	case err != nil:
		ErrorResponse(w, r, h.logger, domain.Internal(err, op, "quota reset failed"))
		return
	}

	h.logger.Info("forced quota reset", "reset_id", run.ID, "quotas_reset", run.QuotasReset)
	WriteJSON(w, http.StatusOK, run)
}

// ResetHistory handles GET /api/admin/quota/resets?limit=N.
func (h *AdminHandler) ResetHistory(w http.ResponseWriter, r *http.Request) {
	const op = "handler.reset_history"

	limit, err := queryInt(r, op, "limit", 20)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	runs, err := h.resets.History(r.Context(), limit)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":    runs,
		"lastRun": h.resets.LastRun(),
	})
}

// InvalidateRequest is the body of POST /api/admin/cache/invalidate.
type InvalidateRequest struct {
	Query   string               `json:"query"`
	Filters domain.SearchFilters `json:"filters,omitempty"`
}

// InvalidateCache handles POST /api/admin/cache/invalidate.
func (h *AdminHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	const op = "handler.cache_invalidate"

	var req InvalidateRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.Query == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "query is required"))
		return
	}

	if err := h.cache.Invalidate(r.Context(), req.Query, req.Filters); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SweepCache handles POST /api/admin/cache/sweep.
func (h *AdminHandler) SweepCache(w http.ResponseWriter, r *http.Request) {
	removed, err := h.cache.ClearExpired(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("cache sweep", "removed", removed)
	WriteJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// CacheStats handles GET /api/admin/cache/stats.
func (h *AdminHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.cache.Stats(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}

// TierRequest is the body of PUT /api/admin/users/{id}/tier.
type TierRequest struct {
	Tier domain.Tier `json:"tier"`
}

// SetUserTier handles PUT /api/admin/users/{id}/tier. The stored tier is
// used when a token carries no tier claim.
func (h *AdminHandler) SetUserTier(w http.ResponseWriter, r *http.Request) {
	const op = "handler.set_user_tier"

	id, err := pathUUID(r, op, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req TierRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if !req.Tier.Valid() {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "unknown tier: "+string(req.Tier)))
		return
	}

	if err := h.tiers.UpsertUserTier(r.Context(), repository.UpsertUserTierParams{
		UserID:    id,
		Tier:      string(req.Tier),
		UpdatedAt: h.now().UTC(),
	}); err != nil {
		ErrorResponse(w, r, h.logger, domain.Unavailable(err, op, "failed to store tier"))
		return
	}

	h.logger.Info("user tier updated", "user_id", id, "tier", req.Tier)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"userId": id,
		"tier":   req.Tier,
	})
}
