package handlers

import (
	"database/sql"
	"net/http"

	"github.com/apexvest/backend/internal/models"
	"github.com/apexvest/backend/internal/services"
	"github.com/apexvest/backend/internal/store"
	"github.com/go-chi/chi/v5"
)

type CopyTradingHandler struct {
	db        *sql.DB
	service   *services.CopyTradingService
	validator *services.ValidationHelper
}

func NewCopyTradingHandler(db *sql.DB, service *services.CopyTradingService) *CopyTradingHandler {
	return &CopyTradingHandler{
		db:        db,
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// ListSubscriptions returns the caller's active subscriptions
// @Summary List active subscriptions
// @Tags copytrading
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Subscription
// @Failure 401 {object} services.ErrorResponse
// @Router /copytrading/subscriptions [get]
func (h *CopyTradingHandler) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	subs, err := store.ListActiveSubscriptions(h.db, userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, subs)
}

// Subscribe starts copying a trader
// @Summary Subscribe to a trader
// @Tags copytrading
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{traderId=string,amount=int64,settings=models.CopySettings} true "Subscription request"
// @Success 200 {object} models.Subscription
// @Failure 422 {object} services.ErrorResponse
// @Router /copytrading/subscriptions [post]
func (h *CopyTradingHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		TraderID string              `json:"traderId" validate:"required"`
		Amount   int64               `json:"amount" validate:"required,gt=0"`
		Settings models.CopySettings `json:"settings"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	sub, err := h.service.Subscribe(r.Context(), userID, req.TraderID, req.Amount, req.Settings)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, sub)
}

// Unsubscribe stops copying and returns the current value
// @Summary Unsubscribe from a trader
// @Tags copytrading
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subscription ID"
// @Success 200 {object} models.Transaction
// @Failure 409 {object} services.ErrorResponse
// @Router /copytrading/subscriptions/{id} [delete]
func (h *CopyTradingHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	record, err := h.service.Unsubscribe(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// UpdateSettings replaces the risk configuration
// @Summary Update copy settings
// @Tags copytrading
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Subscription ID"
// @Param request body models.CopySettings true "New settings"
// @Success 200 {object} map[string]string
// @Failure 400 {object} services.ErrorResponse
// @Router /copytrading/subscriptions/{id}/settings [put]
func (h *CopyTradingHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	var settings models.CopySettings
	if !decodeBody(w, r, &settings) {
		return
	}

	if err := h.service.UpdateSettings(r.Context(), userID, chi.URLParam(r, "id"), settings); err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, map[string]string{"status": "updated"})
}
