// Package handler contains HTTP handlers for the regdesk API.
//
// This file implements the search endpoints.
//
// Routes:
//   - POST /api/search           -> Search
//   - GET  /api/search/preflight -> Preflight
//
// Both routes sit behind authentication and the quota middleware, which
// stores the quota decision on the request context.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/regdesk/internal/auth"
	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/DukeRupert/regdesk/internal/search"
)

// Searcher runs searches.
type Searcher interface {
	Search(ctx context.Context, params search.Params) (*search.Response, error)
}

// SearchHandler serves search requests.
type SearchHandler struct {
	searcher Searcher
	logger   *slog.Logger
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(searcher Searcher, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		searcher: searcher,
		logger:   logger,
	}
}

// RegisterRoutes registers the search routes. enforce wraps the search
// route with the counting quota check and check wraps the preflight route
// with the read-only one.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux, enforce, check func(http.Handler) http.Handler) {
	mux.Handle("POST /api/search", enforce(http.HandlerFunc(h.Search)))
	mux.Handle("GET /api/search/preflight", check(http.HandlerFunc(h.Preflight)))
}

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query   string               `json:"query"`
	Filters domain.SearchFilters `json:"filters,omitempty"`
	Limit   int                  `json:"limit,omitempty"`
}

// SearchResponse wraps the search answer with the caller's quota usage.
type SearchResponse struct {
	*search.Response
	Usage *domain.UsageCounter `json:"usage,omitempty"`
}

// Search handles POST /api/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	const op = "handler.search"

	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req SearchRequest
	if err := decodeJSON(w, r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp, err := h.searcher.Search(r.Context(), search.Params{
		Query:   req.Query,
		Filters: req.Filters,
		Limit:   req.Limit,
		Tier:    user.EffectiveTier(),
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	out := SearchResponse{Response: resp}
	if result := auth.GetQuotaResult(r.Context()); result != nil {
		out.Usage = &result.Usage
	}
	WriteJSON(w, http.StatusOK, out)
}

// QuotaUnknown is the preflight answer when the quota store could not be
// reached and enforcement failed open.
type QuotaUnknown struct {
	Allowed bool `json:"allowed"`
	Unknown bool `json:"unknown"`
}

// Preflight handles GET /api/search/preflight. It reports whether a search
// would be allowed without consuming quota.
func (h *SearchHandler) Preflight(w http.ResponseWriter, r *http.Request) {
	result := auth.GetQuotaResult(r.Context())
	if result == nil {
		h.logger.Warn("preflight without quota result, reporting unknown usage")
		WriteJSON(w, http.StatusOK, QuotaUnknown{Allowed: true, Unknown: true})
		return
	}
	WriteJSON(w, http.StatusOK, result)
}
