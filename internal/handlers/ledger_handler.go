package handlers

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/apexvest/backend/internal/models"
	"github.com/apexvest/backend/internal/services"
	"github.com/apexvest/backend/internal/store"
	"github.com/go-chi/chi/v5"
)

// LedgerHandler exposes the user-facing ledger operations.
type LedgerHandler struct {
	db        *sql.DB
	ledger    *services.LedgerService
	scheduler *services.ProfitAccrualService
	validator *services.ValidationHelper
}

func NewLedgerHandler(db *sql.DB, ledger *services.LedgerService, scheduler *services.ProfitAccrualService) *LedgerHandler {
	return &LedgerHandler{
		db:        db,
		ledger:    ledger,
		scheduler: scheduler,
		validator: services.NewValidationHelper(),
	}
}

// GetAccount returns the caller's account overview
// @Summary Account overview
// @Description Get the authenticated user's balances and status
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Account
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /account [get]
func (h *LedgerHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	// Profit accrual piggybacks on the busiest read path. Detached
	// from the request context so the run outlives the response.
	go h.scheduler.MaybeRun(context.Background())

	account, err := store.GetAccount(h.db, userID)
	if err == sql.ErrNoRows {
		services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, account)
}

// ListTransactions returns the caller's transaction history
// @Summary Transaction history
// @Tags account
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.Transaction
// @Failure 401 {object} services.ErrorResponse
// @Router /transactions [get]
func (h *LedgerHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	transactions, err := store.ListTransactions(h.db, userID, 100)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, transactions)
}

// RequestDeposit opens a deposit awaiting confirmation
// @Summary Request a deposit
// @Tags ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64,description=string} true "Deposit request"
// @Success 200 {object} models.Transaction
// @Failure 400 {object} services.ErrorResponse
// @Router /deposits [post]
func (h *LedgerHandler) RequestDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount      int64  `json:"amount" validate:"required,gt=0"`
		Description string `json:"description"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	record, err := h.ledger.RequestDeposit(r.Context(), userID, req.Amount, req.Description)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// RequestWithdrawal reserves funds for a withdrawal
// @Summary Request a withdrawal
// @Tags ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{amount=int64,details=models.WithdrawalDetails} true "Withdrawal request"
// @Success 200 {object} models.Transaction
// @Failure 422 {object} services.ErrorResponse
// @Router /withdrawals [post]
func (h *LedgerHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		Amount  int64                     `json:"amount" validate:"required,gt=0"`
		Details *models.WithdrawalDetails `json:"details" validate:"required"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	record, err := h.ledger.RequestWithdrawal(r.Context(), userID, req.Amount, req.Details)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// Transfer moves funds to another user
// @Summary Internal transfer
// @Tags ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{recipientId=string,amount=int64,description=string} true "Transfer request"
// @Success 200 {object} services.TransferResult
// @Failure 422 {object} services.ErrorResponse
// @Router /transfers [post]
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		RecipientID string `json:"recipientId" validate:"required"`
		Amount      int64  `json:"amount" validate:"required,gt=0"`
		Description string `json:"description"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.ledger.InternalTransfer(r.Context(), userID, req.RecipientID, req.Amount, req.Description)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, result)
}

// Invest moves funds into an investment plan
// @Summary Invest in a plan
// @Tags investments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{planId=string,amount=int64} true "Investment request"
// @Success 200 {object} models.Transaction
// @Failure 422 {object} services.ErrorResponse
// @Router /investments [post]
func (h *LedgerHandler) Invest(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	var req struct {
		PlanID string `json:"planId" validate:"required"`
		Amount int64  `json:"amount" validate:"required,gt=0"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	record, err := h.ledger.Invest(r.Context(), userID, req.PlanID, req.Amount)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// RequestInvestmentWithdrawal asks to exit the active plan
// @Summary Request investment withdrawal
// @Tags investments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.Transaction
// @Failure 409 {object} services.ErrorResponse
// @Router /investments/withdraw [post]
func (h *LedgerHandler) RequestInvestmentWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}

	record, err := h.ledger.RequestInvestmentWithdrawal(r.Context(), userID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}

// FileDispute opens a dispute on a completed transfer
// @Summary File a dispute
// @Tags disputes
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Transaction ID"
// @Param request body object{reason=string,details=string} true "Dispute request"
// @Success 200 {object} models.Transaction
// @Failure 409 {object} services.ErrorResponse
// @Router /transactions/{id}/dispute [post]
func (h *LedgerHandler) FileDispute(w http.ResponseWriter, r *http.Request) {
	userID, ok := contextUserID(w, r)
	if !ok {
		return
	}
	txID := chi.URLParam(r, "id")

	var req struct {
		Reason  string `json:"reason" validate:"required"`
		Details string `json:"details"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	record, err := h.ledger.FileDispute(r.Context(), userID, txID, req.Reason, req.Details)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	sendJSON(w, record)
}
