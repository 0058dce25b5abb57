package handler

import (
	"encoding/json"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// ProtectionHandler exposes the cooldown guard to internal callers (the
// processing pipeline checks before starting work on a video and records
// after finishing).
type ProtectionHandler struct {
	cooldownSvc service.CooldownService
	validate    *validator.Validate
	logger      zerolog.Logger
}

// NewProtectionHandler creates a new ProtectionHandler.
func NewProtectionHandler(cooldownSvc service.CooldownService, validate *validator.Validate, logger zerolog.Logger) *ProtectionHandler {
	return &ProtectionHandler{cooldownSvc: cooldownSvc, validate: validate, logger: logger}
}

// RegisterRoutes mounts the cooldown endpoints.
func (h *ProtectionHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("POST /protection/cooldown/check", authMw(http.HandlerFunc(h.checkCooldown)))
	mux.Handle("POST /protection/cooldown/record", authMw(http.HandlerFunc(h.recordProcessing)))
}

// checkCooldown godoc
// @Summary Check whether the caller may reprocess a resource
// @Tags protection
// @Accept json
// @Produce json
// @Param request body dto.CooldownCheckRequest true "Cooldown check"
// @Success 200 {object} model.LimitResult
// @Failure 400 {string} string "invalid request payload"
// @Failure 401 {string} string "unauthorized"
// @Router /protection/cooldown/check [post]
func (h *ProtectionHandler) checkCooldown(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.CooldownCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	result := h.cooldownSvc.CheckCooldown(r.Context(), userID, req.ResourceID, req.CooldownMinutes)
	writeJSON(w, h.logger, http.StatusOK, result)
}

// recordProcessing godoc
// @Summary Record that the caller just processed a resource
// @Tags protection
// @Accept json
// @Produce json
// @Param request body dto.CooldownRecordRequest true "Processing record"
// @Success 204 {string} string "recorded"
// @Failure 400 {string} string "invalid request payload"
// @Failure 401 {string} string "unauthorized"
// @Router /protection/cooldown/record [post]
func (h *ProtectionHandler) recordProcessing(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.CooldownRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.cooldownSvc.RecordProcessing(r.Context(), userID, req.ResourceID); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to record processing")
		http.Error(w, "failed to record processing", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
