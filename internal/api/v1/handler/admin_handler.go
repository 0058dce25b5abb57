package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"app/internal/api/v1/dto"
	"app/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// AdminHandler exposes the blacklist, abuse scan and plan change history to
// operator tooling.
type AdminHandler struct {
	blacklistSvc service.BlacklistService
	abuseSvc     service.AbuseService
	subSvc       service.SubscriptionService
	validate     *validator.Validate
	logger       zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	blacklistSvc service.BlacklistService,
	abuseSvc service.AbuseService,
	subSvc service.SubscriptionService,
	validate *validator.Validate,
	logger zerolog.Logger,
) *AdminHandler {
	return &AdminHandler{blacklistSvc: blacklistSvc, abuseSvc: abuseSvc, subSvc: subSvc, validate: validate, logger: logger}
}

// RegisterRoutes mounts the admin endpoints.
func (h *AdminHandler) RegisterRoutes(mux *http.ServeMux, authMw func(http.Handler) http.Handler) {
	mux.Handle("GET /admin/blacklist", authMw(http.HandlerFunc(h.listBlacklist)))
	mux.Handle("POST /admin/blacklist", authMw(http.HandlerFunc(h.addToBlacklist)))
	mux.Handle("DELETE /admin/blacklist", authMw(http.HandlerFunc(h.removeFromBlacklist)))
	mux.Handle("GET /admin/abuse/scan", authMw(http.HandlerFunc(h.scanIP)))
	mux.Handle("GET /admin/plan-changes", authMw(http.HandlerFunc(h.listPlanChanges)))
}

// listBlacklist godoc
// @Summary List active blacklist entries
// @Tags admin
// @Produce json
// @Success 200 {array} model.BlacklistEntry
// @Router /admin/blacklist [get]
func (h *AdminHandler) listBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.blacklistSvc.List(r.Context(), 200)
	if err != nil {
		http.Error(w, "failed to list blacklist", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, entries)
}

// addToBlacklist godoc
// @Summary Ban an ip, user or email
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.BlacklistAddRequest true "Ban request"
// @Success 204 {string} string "added"
// @Failure 400 {string} string "invalid request payload"
// @Router /admin/blacklist [post]
func (h *AdminHandler) addToBlacklist(w http.ResponseWriter, r *http.Request) {
	var req dto.BlacklistAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.blacklistSvc.Add(r.Context(), req.Type, req.Value, req.Reason, req.ExpiresAt); err != nil {
		h.logger.Error().Err(err).Str("type", req.Type).Str("value", req.Value).Msg("failed to add blacklist entry")
		http.Error(w, err.Error(), statusForServiceError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// removeFromBlacklist godoc
// @Summary Lift a ban
// @Tags admin
// @Accept json
// @Produce json
// @Param request body dto.BlacklistRemoveRequest true "Unban request"
// @Success 200 {object} map[string]bool
// @Failure 400 {string} string "invalid request payload"
// @Router /admin/blacklist [delete]
func (h *AdminHandler) removeFromBlacklist(w http.ResponseWriter, r *http.Request) {
	var req dto.BlacklistRemoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	removed, err := h.blacklistSvc.Remove(r.Context(), req.Type, req.Value)
	if err != nil {
		http.Error(w, err.Error(), statusForServiceError(err))
		return
	}
	writeJSON(w, h.logger, http.StatusOK, map[string]bool{"removed": removed})
}

// scanIP godoc
// @Summary Run an anomaly scan over an IP's recent operations
// @Tags admin
// @Produce json
// @Param ip query string true "IP address"
// @Param window_minutes query int false "Lookback window in minutes (default 30)"
// @Success 200 {object} model.AbuseReport
// @Failure 400 {string} string "ip query parameter required"
// @Router /admin/abuse/scan [get]
func (h *AdminHandler) scanIP(w http.ResponseWriter, r *http.Request) {
	ip := r.URL.Query().Get("ip")
	if ip == "" {
		http.Error(w, "ip query parameter required", http.StatusBadRequest)
		return
	}
	windowMinutes := 30
	if v := r.URL.Query().Get("window_minutes"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "window_minutes must be a positive integer", http.StatusBadRequest)
			return
		}
		windowMinutes = n
	}
	report, err := h.abuseSvc.DetectAnomalousPattern(r.Context(), ip, windowMinutes)
	if err != nil {
		http.Error(w, "failed to scan ip", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, report)
}

// listPlanChanges godoc
// @Summary Get a user's plan transition history
// @Tags admin
// @Produce json
// @Param user_id query string true "User ID"
// @Success 200 {array} model.PlanChange
// @Failure 400 {string} string "user_id query parameter required"
// @Router /admin/plan-changes [get]
func (h *AdminHandler) listPlanChanges(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id query parameter required", http.StatusBadRequest)
		return
	}
	changes, err := h.subSvc.ListPlanChanges(r.Context(), userID, 100)
	if err != nil {
		http.Error(w, "failed to list plan changes", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, changes)
}
