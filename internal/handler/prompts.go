package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/regdesk/internal/auth"
	"github.com/DukeRupert/regdesk/internal/domain"
	"github.com/google/uuid"
)

// PromptService manages a user's upgrade prompts.
type PromptService interface {
	ListActive(ctx context.Context, userID uuid.UUID) ([]domain.UpgradePrompt, error)
	Dismiss(ctx context.Context, userID, promptID uuid.UUID) (*domain.UpgradePrompt, error)
	MarkConverted(ctx context.Context, userID, promptID uuid.UUID) (*domain.UpgradePrompt, error)
}

// PromptHandler serves the upgrade prompt endpoints.
type PromptHandler struct {
	prompts PromptService
	logger  *slog.Logger
}

// NewPromptHandler creates a new PromptHandler.
func NewPromptHandler(prompts PromptService, logger *slog.Logger) *PromptHandler {
	return &PromptHandler{
		prompts: prompts,
		logger:  logger,
	}
}

// RegisterRoutes registers the prompt routes behind requireUser.
func (h *PromptHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/upgrade-prompts", requireUser(http.HandlerFunc(h.List)))
	mux.Handle("POST /api/upgrade-prompts/{id}/dismiss", requireUser(http.HandlerFunc(h.Dismiss)))
	mux.Handle("POST /api/upgrade-prompts/{id}/convert", requireUser(http.HandlerFunc(h.Convert)))
}

// List handles GET /api/upgrade-prompts.
func (h *PromptHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	prompts, err := h.prompts.ListActive(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if prompts == nil {
		prompts = []domain.UpgradePrompt{}
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{"prompts": prompts})
}

// Dismiss handles POST /api/upgrade-prompts/{id}/dismiss.
func (h *PromptHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "handler.prompt_dismiss", h.prompts.Dismiss)
}

// Convert handles POST /api/upgrade-prompts/{id}/convert.
func (h *PromptHandler) Convert(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "handler.prompt_convert", h.prompts.MarkConverted)
}

func (h *PromptHandler) transition(
	w http.ResponseWriter,
	r *http.Request,
	op string,
	apply func(ctx context.Context, userID, promptID uuid.UUID) (*domain.UpgradePrompt, error),
) {
	user := auth.GetUserFromRequest(r)
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	id, err := pathUUID(r, op, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	prompt, err := apply(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, prompt)
}
