package handlers

import (
	"net/http"

	"github.com/apexvest/backend/internal/services"
)

type VoucherHandler struct {
	service   *services.VoucherService
	validator *services.ValidationHelper
}

func NewVoucherHandler(service *services.VoucherService) *VoucherHandler {
	return &VoucherHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Create issues a voucher funded from the caller's balance
// @Summary Create voucher
// @Tags vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64} true "Voucher request"
// @Success 200 {object} services.Voucher
// @Failure 422 {object} services.ErrorResponse
// @Router /vouchers [post]
func (h *VoucherHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount int64 `json:"amount" validate:"required,gt=0"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	voucher, err := h.service.CreateVoucher(r.Context(), userID, req.Amount)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, voucher)
}

// Redeem claims a voucher code
// @Summary Redeem voucher
// @Tags vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{code=string} true "Redemption request"
// @Success 200 {object} models.Transaction
// @Failure 409 {object} services.ErrorResponse
// @Router /vouchers/redeem [post]
func (h *VoucherHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" validate:"required"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	record, err := h.service.RedeemVoucher(r.Context(), userID, req.Code)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// Cancel refunds an unredeemed voucher
// @Summary Cancel voucher
// @Tags vouchers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{code=string} true "Cancellation request"
// @Success 200 {object} models.Transaction
// @Failure 403 {object} services.ErrorResponse
// @Router /vouchers/cancel [post]
func (h *VoucherHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" validate:"required"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	record, err := h.service.CancelVoucher(r.Context(), userID, req.Code)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}
