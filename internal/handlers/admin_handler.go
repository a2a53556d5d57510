package handlers

import (
	"net/http"

	"github.com/apexvest/backend/internal/services"
	"github.com/go-chi/chi/v5"
)

// AdminHandler exposes the administrative ledger operations. Routes
// are mounted behind the admin-role middleware.
type AdminHandler struct {
	ledger      *services.LedgerService
	distributor *services.DistributionService
	validator   *services.ValidationHelper
}

func NewAdminHandler(ledger *services.LedgerService, distributor *services.DistributionService) *AdminHandler {
	return &AdminHandler{
		ledger:      ledger,
		distributor: distributor,
		validator:   services.NewValidationHelper(),
	}
}

func adminID(w http.ResponseWriter, r *http.Request) (string, bool) {
	return contextUserID(w, r)
}

// ApproveDeposit approves a pending deposit
// @Summary Approve deposit
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/deposits/{id}/approve [post]
func (h *AdminHandler) ApproveDeposit(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(w, r)
	if !ok {
		return
	}
	record, err := h.ledger.ApproveDeposit(r.Context(), admin, chi.URLParam(r, "id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// RejectDeposit rejects a pending deposit
// @Summary Reject deposit
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Router /admin/deposits/{id}/reject [post]
func (h *AdminHandler) RejectDeposit(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(w, r)
	if !ok {
		return
	}
	record, err := h.ledger.RejectDeposit(r.Context(), admin, chi.URLParam(r, "id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// ApproveWithdrawal finalizes a reserved withdrawal
// @Summary Approve withdrawal
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Router /admin/withdrawals/{id}/approve [post]
func (h *AdminHandler) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(w, r)
	if !ok {
		return
	}
	record, err := h.ledger.ApproveWithdrawal(r.Context(), admin, chi.URLParam(r, "id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// RejectWithdrawal releases a reserved withdrawal
// @Summary Reject withdrawal
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Router /admin/withdrawals/{id}/reject [post]
func (h *AdminHandler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(w, r)
	if !ok {
		return
	}
	record, err := h.ledger.RejectWithdrawal(r.Context(), admin, chi.URLParam(r, "id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// ApproveInvestmentWithdrawal pays out an investment exit
// @Summary Approve investment withdrawal
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Router /admin/investment-withdrawals/{id}/approve [post]
func (h *AdminHandler) ApproveInvestmentWithdrawal(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(w, r)
	if !ok {
		return
	}
	record, err := h.ledger.ApproveInvestmentWithdrawal(r.Context(), admin, chi.URLParam(r, "id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// RejectInvestmentWithdrawal declines an investment exit
// @Summary Reject investment withdrawal
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} map[string]string
// @Router /admin/investment-withdrawals/{id}/reject [post]
func (h *AdminHandler) RejectInvestmentWithdrawal(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(w, r)
	if !ok {
		return
	}
	if err := h.ledger.RejectInvestmentWithdrawal(r.Context(), admin, chi.URLParam(r, "id")); err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, map[string]string{"status": "rejected"})
}

// AdjustBalance credits or debits a user's spendable balance
// @Summary Adjust balance
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{userId=string,direction=string,amount=int64,reason=string} true "Adjustment"
// @Success 200 {object} models.Transaction
// @Failure 422 {object} services.ErrorResponse
// @Router /admin/adjustments/balance [post]
func (h *AdminHandler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(w, r)
	if !ok {
		return
	}

	var req struct {
		UserID    string `json:"userId" validate:"required"`
		Direction string `json:"direction" validate:"required,oneof=ADD DEDUCT"`
		Amount    int64  `json:"amount" validate:"required,gt=0"`
		Reason    string `json:"reason" validate:"required"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	record, err := h.ledger.AdminAdjustBalance(r.Context(), admin, req.UserID, req.Direction, req.Amount, req.Reason)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// AdjustInvestment mutates a user's invested or profit bucket
// @Summary Adjust investment buckets
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{userId=string,bucket=string,direction=string,amount=int64,reason=string} true "Adjustment"
// @Success 200 {object} models.Transaction
// @Router /admin/adjustments/investment [post]
func (h *AdminHandler) AdjustInvestment(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(w, r)
	if !ok {
		return
	}

	var req struct {
		UserID    string `json:"userId" validate:"required"`
		Bucket    string `json:"bucket" validate:"required,oneof=INVESTED UNCLAIMED_PROFIT"`
		Direction string `json:"direction" validate:"required,oneof=ADD DEDUCT"`
		Amount    int64  `json:"amount" validate:"required,gt=0"`
		Reason    string `json:"reason" validate:"required"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	record, err := h.ledger.AdjustInvestment(r.Context(), admin, req.UserID, req.Bucket, req.Direction, req.Amount, req.Reason)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// ApproveKYC verifies a user and credits the signup bonus
// @Summary Approve KYC
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} models.Transaction
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/kyc/{userId}/approve [post]
func (h *AdminHandler) ApproveKYC(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(w, r)
	if !ok {
		return
	}
	record, err := h.ledger.ApproveKYC(r.Context(), admin, chi.URLParam(r, "userId"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// EscalateDispute escalates an open dispute
// @Summary Escalate dispute
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} map[string]string
// @Router /admin/disputes/{id}/escalate [post]
func (h *AdminHandler) EscalateDispute(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(w, r)
	if !ok {
		return
	}
	if err := h.ledger.EscalateDispute(r.Context(), admin, chi.URLParam(r, "id")); err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, map[string]string{"status": "escalated"})
}

// ResolveDispute releases held funds to the winner
// @Summary Resolve dispute
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Param request body object{winnerId=string} true "Resolution"
// @Success 200 {object} models.Transaction
// @Router /admin/disputes/{id}/resolve [post]
func (h *AdminHandler) ResolveDispute(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(w, r)
	if !ok {
		return
	}

	var req struct {
		WinnerID string `json:"winnerId" validate:"required"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	record, err := h.ledger.ResolveDispute(r.Context(), admin, chi.URLParam(r, "id"), req.WinnerID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// RefundDispute refunds a disputed transfer to the payer
// @Summary Refund dispute
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Router /admin/disputes/{id}/refund [post]
func (h *AdminHandler) RefundDispute(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(w, r)
	if !ok {
		return
	}
	record, err := h.ledger.RefundDispute(r.Context(), admin, chi.URLParam(r, "id"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// DistributeProfits applies a profit percentage to subscriptions
// @Summary Distribute copy-trading profits
// @Tags admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{subscriptionIds=[]string,percentage=number} true "Distribution batch"
// @Success 200 {array} services.DistributionResult
// @Router /admin/copytrading/distribute [post]
func (h *AdminHandler) DistributeProfits(w http.ResponseWriter, r *http.Request) {
	admin, ok := adminID(w, r)
	if !ok {
		return
	}

	var req struct {
		SubscriptionIDs []string `json:"subscriptionIds" validate:"required,min=1"`
		Percentage      float64  `json:"percentage" validate:"required,gt=0"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	results, err := h.distributor.DistributeProfits(r.Context(), admin, req.SubscriptionIDs, req.Percentage)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, results)
}
