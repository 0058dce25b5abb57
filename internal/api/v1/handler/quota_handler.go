package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"app/internal/api/v1/dto"
	"app/internal/middleware"
	"app/internal/model"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// QuotaHandler handles quota check, recording and alert endpoints.
type QuotaHandler struct {
	quotaSvc service.QuotaService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewQuotaHandler creates a new QuotaHandler.
func NewQuotaHandler(quotaSvc service.QuotaService, validate *validator.Validate, logger zerolog.Logger) *QuotaHandler {
	return &QuotaHandler{quotaSvc: quotaSvc, validate: validate, logger: logger}
}

// RegisterRoutes mounts quota routes. The check endpoint is the admission
// point for processing work, so it runs behind the guard as well as auth.
func (h *QuotaHandler) RegisterRoutes(mux *http.ServeMux, authMw, guardMw func(http.Handler) http.Handler) {
	mux.Handle("POST /quota/check", authMw(guardMw(http.HandlerFunc(h.checkQuota))))
	mux.Handle("POST /quota/record", authMw(http.HandlerFunc(h.recordUsage)))
	mux.Handle("GET /quota/usage", authMw(http.HandlerFunc(h.getUsage)))
	mux.Handle("GET /quota/alerts", authMw(http.HandlerFunc(h.getAlerts)))
	mux.Handle("POST /quota/alerts/read", authMw(http.HandlerFunc(h.markAlertsRead)))
}

// checkQuota godoc
// @Summary Check whether an action fits within the caller's quota
// @Tags quota
// @Accept json
// @Produce json
// @Param request body dto.QuotaCheckRequest true "Quota check request"
// @Success 200 {object} model.QuotaCheckResult
// @Failure 400 {string} string "invalid request payload"
// @Failure 401 {string} string "unauthorized"
// @Router /quota/check [post]
func (h *QuotaHandler) checkQuota(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.QuotaCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	result := h.quotaSvc.CheckQuota(r.Context(), userID, req.QuotaType, req.Amount, &model.QuotaMetadata{
		VideoDurationSec: req.VideoDurationSec,
		FileSizeMB:       req.FileSizeMB,
	})
	writeJSON(w, h.logger, http.StatusOK, result)
}

// recordUsage godoc
// @Summary Record quota usage for a completed action
// @Tags quota
// @Accept json
// @Produce json
// @Param request body dto.QuotaRecordRequest true "Usage record request"
// @Success 204 {string} string "recorded"
// @Failure 400 {string} string "invalid request payload"
// @Failure 401 {string} string "unauthorized"
// @Failure 500 {string} string "failed to record usage"
// @Router /quota/record [post]
func (h *QuotaHandler) recordUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.QuotaRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	err := h.quotaSvc.RecordQuotaUsage(r.Context(), service.RecordUsageParams{
		UserID:       userID,
		QuotaType:    req.QuotaType,
		Action:       req.Action,
		Amount:       req.Amount,
		ResourceID:   req.ResourceID,
		ResourceType: req.ResourceType,
		Metadata: &model.QuotaMetadata{
			VideoDurationSec: req.VideoDurationSec,
			FileSizeMB:       req.FileSizeMB,
		},
		IP:        middleware.RealIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to record quota usage")
		http.Error(w, "failed to record usage", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getUsage godoc
// @Summary Get the caller's current-period quota usage
// @Tags quota
// @Produce json
// @Success 200 {array} model.QuotaUsage
// @Failure 401 {string} string "unauthorized"
// @Router /quota/usage [get]
func (h *QuotaHandler) getUsage(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	usages, err := h.quotaSvc.GetUserAllQuotaUsage(r.Context(), userID)
	if err != nil {
		http.Error(w, "failed to fetch usage", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, usages)
}

// getAlerts godoc
// @Summary Get the caller's quota alerts
// @Tags quota
// @Produce json
// @Success 200 {array} model.QuotaAlert
// @Failure 401 {string} string "unauthorized"
// @Router /quota/alerts [get]
func (h *QuotaHandler) getAlerts(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	alerts, err := h.quotaSvc.GetUserQuotaAlerts(r.Context(), userID)
	if err != nil {
		http.Error(w, "failed to fetch alerts", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, alerts)
}

// markAlertsRead godoc
// @Summary Mark quota alerts as read
// @Tags quota
// @Accept json
// @Produce json
// @Param request body dto.MarkAlertsReadRequest true "Alert IDs"
// @Success 200 {object} map[string]int64
// @Failure 400 {string} string "invalid request payload"
// @Failure 401 {string} string "unauthorized"
// @Router /quota/alerts/read [post]
func (h *QuotaHandler) markAlertsRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.MarkAlertsReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	n, err := h.quotaSvc.MarkQuotaAlertsAsRead(r.Context(), userID, req.AlertIDs)
	if err != nil {
		http.Error(w, "failed to mark alerts as read", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]int64{"updated": n})
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, logger zerolog.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

// statusForServiceError maps the engine error taxonomy onto HTTP statuses.
func statusForServiceError(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPlanNotFound), errors.Is(err, service.ErrSubscriptionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrNothingToCancel):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
