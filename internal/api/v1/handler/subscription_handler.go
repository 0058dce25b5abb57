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

// SubscriptionHandler handles plan change endpoints.
type SubscriptionHandler struct {
	subSvc   service.SubscriptionService
	validate *validator.Validate
	logger   zerolog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subSvc service.SubscriptionService, validate *validator.Validate, logger zerolog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subSvc: subSvc, validate: validate, logger: logger}
}

// RegisterRoutes mounts the subscription endpoints. Plan mutations run
// behind the abuse-prevention guard in addition to auth.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, authMw, guardMw func(http.Handler) http.Handler) {
	mux.Handle("GET /subscriptions/current", authMw(http.HandlerFunc(h.current)))
	mux.Handle("POST /subscriptions/upgrade", authMw(guardMw(http.HandlerFunc(h.upgrade))))
	mux.Handle("POST /subscriptions/downgrade", authMw(guardMw(http.HandlerFunc(h.downgrade))))
	mux.Handle("POST /subscriptions/cancel", authMw(guardMw(http.HandlerFunc(h.cancel))))
	mux.Handle("POST /subscriptions/refund", authMw(guardMw(http.HandlerFunc(h.refund))))
}

// current godoc
// @Summary Get the caller's active subscription
// @Tags subscriptions
// @Produce json
// @Success 200 {object} model.Subscription
// @Failure 401 {string} string "unauthorized"
// @Router /subscriptions/current [get]
func (h *SubscriptionHandler) current(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	sub, err := h.subSvc.GetActiveSubscription(r.Context(), userID)
	if err != nil {
		http.Error(w, "failed to fetch subscription", http.StatusInternalServerError)
		return
	}
	writeJSON(w, h.logger, http.StatusOK, sub)
}

// upgrade godoc
// @Summary Upgrade to a higher-priced plan, effective immediately
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param request body dto.PlanChangeRequest true "Target plan"
// @Success 200 {object} model.Subscription
// @Failure 400 {string} string "invalid request payload"
// @Failure 401 {string} string "unauthorized"
// @Failure 409 {string} string "invalid transition"
// @Router /subscriptions/upgrade [post]
func (h *SubscriptionHandler) upgrade(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := h.planChangeRequest(w, r)
	if !ok {
		return
	}
	sub, err := h.subSvc.UpgradePlan(r.Context(), userID, req.PlanType, req.PaymentMethod)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Str("plan_type", req.PlanType).Msg("upgrade failed")
		http.Error(w, err.Error(), statusForServiceError(err))
		return
	}
	writeJSON(w, h.logger, http.StatusOK, sub)
}

// downgrade godoc
// @Summary Schedule a downgrade for the end of the current period
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param request body dto.PlanChangeRequest true "Target plan"
// @Success 200 {object} model.Subscription
// @Failure 400 {string} string "invalid request payload"
// @Failure 401 {string} string "unauthorized"
// @Failure 409 {string} string "invalid transition"
// @Router /subscriptions/downgrade [post]
func (h *SubscriptionHandler) downgrade(w http.ResponseWriter, r *http.Request) {
	userID, req, ok := h.planChangeRequest(w, r)
	if !ok {
		return
	}
	pending, err := h.subSvc.DowngradePlan(r.Context(), userID, req.PlanType)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Str("plan_type", req.PlanType).Msg("downgrade failed")
		http.Error(w, err.Error(), statusForServiceError(err))
		return
	}
	writeJSON(w, h.logger, http.StatusOK, pending)
}

// cancel godoc
// @Summary Cancel the subscription at the end of the current period
// @Tags subscriptions
// @Produce json
// @Success 204 {string} string "cancelled"
// @Failure 401 {string} string "unauthorized"
// @Failure 409 {string} string "nothing to cancel"
// @Router /subscriptions/cancel [post]
func (h *SubscriptionHandler) cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.subSvc.CancelSubscription(r.Context(), userID); err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("cancel failed")
		http.Error(w, err.Error(), statusForServiceError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// refund godoc
// @Summary Refund the unused period and drop to the free plan immediately
// @Tags subscriptions
// @Accept json
// @Produce json
// @Param request body dto.RefundRequest true "Refund reason"
// @Success 200 {object} model.RefundResult
// @Failure 400 {string} string "invalid request payload"
// @Failure 401 {string} string "unauthorized"
// @Failure 409 {string} string "nothing to cancel"
// @Router /subscriptions/refund [post]
func (h *SubscriptionHandler) refund(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var req dto.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return
	}
	result, err := h.subSvc.RefundAndCancel(r.Context(), userID, req.Reason)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("refund failed")
		http.Error(w, err.Error(), statusForServiceError(err))
		return
	}
	writeJSON(w, h.logger, http.StatusOK, result)
}

func (h *SubscriptionHandler) planChangeRequest(w http.ResponseWriter, r *http.Request) (string, *dto.PlanChangeRequest, bool) {
	userID, ok := r.Context().Value(middleware.UserContextKey).(string)
	if !ok || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", nil, false
	}
	var req dto.PlanChangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return "", nil, false
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, "validation failed: "+err.Error(), http.StatusBadRequest)
		return "", nil, false
	}
	return userID, &req, true
}
