package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/apexvest/backend/internal/audit"
	"github.com/apexvest/backend/internal/config"
	"github.com/apexvest/backend/internal/models"
	"github.com/apexvest/backend/internal/notify"
	"github.com/apexvest/backend/internal/store"
	"github.com/google/uuid"
)

// LedgerService owns every balance-mutating operation. Each operation
// runs inside one database transaction: row locks in consistent order,
// precondition checks, mutations with a paired transaction record,
// commit. Notification and audit emission happen strictly after commit
// and are best-effort.
type LedgerService struct {
	db         *sql.DB
	cfg        *config.LedgerConfig
	notifier   *notify.Publisher
	audit      *audit.Logger
	settlement *SettlementService
}

func NewLedgerService(db *sql.DB, cfg *config.LedgerConfig, notifier *notify.Publisher, auditLogger *audit.Logger) *LedgerService {
	return &LedgerService{
		db:         db,
		cfg:        cfg,
		notifier:   notifier,
		audit:      auditLogger,
		settlement: NewSettlementService(),
	}
}

// inTx wraps fn in a database transaction with rollback on any error.
func (s *LedgerService) inTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func lockAccount(tx *sql.Tx, userID string) (*models.Account, error) {
	account, err := store.GetAccountForUpdate(tx, userID)
	if err == sql.ErrNoRows {
		return nil, opErrorf(KindNotFound, "account for user %s not found", userID)
	}
	if err != nil {
		return nil, err
	}
	return account, nil
}

func lockTransaction(tx *sql.Tx, txID string) (*models.Transaction, error) {
	t, err := store.GetTransactionForUpdate(tx, txID)
	if err == sql.ErrNoRows {
		return nil, opErrorf(KindNotFound, "transaction %s not found", txID)
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func requireOperable(account *models.Account) error {
	if account.IsBanned {
		return opErrorf(KindForbidden, "account for user %s is banned", account.UserID)
	}
	if account.IsFrozen {
		return opErrorf(KindForbidden, "account for user %s is frozen", account.UserID)
	}
	return nil
}

// RequestDeposit creates a deposit awaiting admin confirmation. No
// balance changes until approval.
func (s *LedgerService) RequestDeposit(ctx context.Context, userID string, amount int64, description string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, opErrorf(KindInvalidInput, "deposit amount must be positive")
	}

	record := &models.Transaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Amount:      amount,
		Type:        models.TxTypeDeposit,
		Status:      models.TxStatusAwaitingConfirmation,
		Description: description,
	}

	err := s.inTx(func(tx *sql.Tx) error {
		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if account.IsBanned {
			return opErrorf(KindForbidden, "account for user %s is banned", userID)
		}
		return store.InsertTransaction(tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, "deposit.requested", map[string]any{"txId": record.ID, "userId": userID})
	return record, nil
}

// ApproveDeposit completes a pending deposit: status to COMPLETED,
// balance and lifetime deposit total credited. Approving the same
// transaction twice fails with InvalidState, never double-credits.
func (s *LedgerService) ApproveDeposit(ctx context.Context, adminID, txID string) (*models.Transaction, error) {
	var record *models.Transaction
	err := s.inTx(func(tx *sql.Tx) error {
		t, err := lockTransaction(tx, txID)
		if err != nil {
			return err
		}
		if t.Type != models.TxTypeDeposit || t.Status != models.TxStatusAwaitingConfirmation {
			return opErrorf(KindInvalidState, "transaction %s is not a deposit awaiting confirmation", txID)
		}

		account, err := lockAccount(tx, t.UserID)
		if err != nil {
			return err
		}
		account.Balance += t.Amount
		account.TotalDeposits += t.Amount
		if err := store.UpdateAccountBalances(tx, account); err != nil {
			return err
		}
		if err := store.UpdateTransactionStatus(tx, txID, models.TxStatusCompleted); err != nil {
			return err
		}
		t.Status = models.TxStatusCompleted
		record = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogAction(adminID, "DEPOSIT_APPROVED", txID, fmt.Sprintf("amount=%d", record.Amount))
	s.notifier.NotifyUser(ctx, record.UserID, "deposit.completed",
		fmt.Sprintf("Your deposit of %d has been confirmed", record.Amount))
	return record, nil
}

// RejectDeposit fails a pending deposit. Funds were never credited, so
// no balance change.
func (s *LedgerService) RejectDeposit(ctx context.Context, adminID, txID string) (*models.Transaction, error) {
	var record *models.Transaction
	err := s.inTx(func(tx *sql.Tx) error {
		t, err := lockTransaction(tx, txID)
		if err != nil {
			return err
		}
		if t.Type != models.TxTypeDeposit || t.Status != models.TxStatusAwaitingConfirmation {
			return opErrorf(KindInvalidState, "transaction %s is not a deposit awaiting confirmation", txID)
		}
		if err := store.UpdateTransactionStatus(tx, txID, models.TxStatusFailed); err != nil {
			return err
		}
		t.Status = models.TxStatusFailed
		record = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogAction(adminID, "DEPOSIT_REJECTED", txID, "")
	s.notifier.NotifyUser(ctx, record.UserID, "deposit.failed", "Your deposit could not be confirmed")
	return record, nil
}

// RequestWithdrawal reserves the amount: the balance is debited at
// request time, released on rejection, finalized on approval.
func (s *LedgerService) RequestWithdrawal(ctx context.Context, userID string, amount int64, details *models.WithdrawalDetails) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, opErrorf(KindInvalidInput, "withdrawal amount must be positive")
	}
	if details == nil {
		return nil, opErrorf(KindInvalidInput, "withdrawal details are required")
	}

	record := &models.Transaction{
		ID:                uuid.New().String(),
		UserID:            userID,
		Amount:            -amount,
		Type:              models.TxTypeWithdrawal,
		Status:            models.TxStatusPending,
		WithdrawalDetails: details,
	}

	err := s.inTx(func(tx *sql.Tx) error {
		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if err := requireOperable(account); err != nil {
			return err
		}
		if account.Balance < amount {
			return opErrorf(KindInsufficientFunds, "balance %d below requested withdrawal %d", account.Balance, amount)
		}
		account.Balance -= amount
		if err := store.UpdateAccountBalances(tx, account); err != nil {
			return err
		}
		return store.InsertTransaction(tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyUser(ctx, userID, "withdrawal.requested",
		fmt.Sprintf("Withdrawal of %d is pending review", amount))
	return record, nil
}

// ApproveWithdrawal finalizes a reserved withdrawal. The amount was
// debited at request time, so approval only completes the record and
// hands the payout to settlement.
func (s *LedgerService) ApproveWithdrawal(ctx context.Context, adminID, txID string) (*models.Transaction, error) {
	var record *models.Transaction
	err := s.inTx(func(tx *sql.Tx) error {
		t, err := lockTransaction(tx, txID)
		if err != nil {
			return err
		}
		if t.Type != models.TxTypeWithdrawal || t.Status != models.TxStatusPending {
			return opErrorf(KindInvalidState, "transaction %s is not a pending withdrawal", txID)
		}
		if err := store.UpdateTransactionStatus(tx, txID, models.TxStatusCompleted); err != nil {
			return err
		}
		t.Status = models.TxStatusCompleted
		record = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.settlement.SendPayoutInstruction(record); err != nil {
		log.Printf("[LEDGER] settlement instruction for %s failed: %v", txID, err)
	}
	s.audit.LogAction(adminID, "WITHDRAWAL_APPROVED", txID, fmt.Sprintf("amount=%d", -record.Amount))
	s.notifier.NotifyUser(ctx, record.UserID, "withdrawal.completed",
		fmt.Sprintf("Your withdrawal of %d has been paid out", -record.Amount))
	return record, nil
}

// RejectWithdrawal releases the reservation: the amount debited at
// request time is returned to the balance.
func (s *LedgerService) RejectWithdrawal(ctx context.Context, adminID, txID string) (*models.Transaction, error) {
	var record *models.Transaction
	err := s.inTx(func(tx *sql.Tx) error {
		t, err := lockTransaction(tx, txID)
		if err != nil {
			return err
		}
		if t.Type != models.TxTypeWithdrawal || t.Status != models.TxStatusPending {
			return opErrorf(KindInvalidState, "transaction %s is not a pending withdrawal", txID)
		}

		account, err := lockAccount(tx, t.UserID)
		if err != nil {
			return err
		}
		account.Balance += -t.Amount
		if err := store.UpdateAccountBalances(tx, account); err != nil {
			return err
		}
		if err := store.UpdateTransactionStatus(tx, txID, models.TxStatusFailed); err != nil {
			return err
		}
		t.Status = models.TxStatusFailed
		record = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.settlement.SendStatusReport(record, "RJCT"); err != nil {
		log.Printf("[LEDGER] settlement status report for %s failed: %v", txID, err)
	}
	s.audit.LogAction(adminID, "WITHDRAWAL_REJECTED", txID, "")
	s.notifier.NotifyUser(ctx, record.UserID, "withdrawal.failed",
		fmt.Sprintf("Your withdrawal of %d was rejected and refunded", -record.Amount))
	return record, nil
}

// Invest moves spendable funds into an investment plan principal.
func (s *LedgerService) Invest(ctx context.Context, userID, planID string, amount int64) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, opErrorf(KindInvalidInput, "investment amount must be positive")
	}

	record := &models.Transaction{
		ID:     uuid.New().String(),
		UserID: userID,
		Amount: -amount,
		Type:   models.TxTypeInvestment,
		Status: models.TxStatusCompleted,
	}

	err := s.inTx(func(tx *sql.Tx) error {
		plan, err := store.GetPlan(tx, planID)
		if err == sql.ErrNoRows {
			return opErrorf(KindNotFound, "investment plan %s not found", planID)
		}
		if err != nil {
			return err
		}
		if amount < plan.MinAmount || (plan.MaxAmount > 0 && amount > plan.MaxAmount) {
			return opErrorf(KindInvalidInput, "amount %d outside plan limits [%d, %d]", amount, plan.MinAmount, plan.MaxAmount)
		}

		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if err := requireOperable(account); err != nil {
			return err
		}
		if account.Balance < amount {
			return opErrorf(KindInsufficientFunds, "balance %d below investment %d", account.Balance, amount)
		}
		account.Balance -= amount
		account.Invested += amount
		account.ActivePlanID = &plan.ID
		if err := store.UpdateAccountBalances(tx, account); err != nil {
			return err
		}
		record.Description = plan.Name
		return store.InsertTransaction(tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyUser(ctx, userID, "investment.created",
		fmt.Sprintf("You invested %d", amount))
	return record, nil
}

// RequestInvestmentWithdrawal records the user's intent to exit the
// active plan. The payout amount is fixed at approval time.
func (s *LedgerService) RequestInvestmentWithdrawal(ctx context.Context, userID string) (*models.Transaction, error) {
	var record *models.Transaction
	err := s.inTx(func(tx *sql.Tx) error {
		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if account.Invested <= 0 {
			return opErrorf(KindInvalidState, "user %s has no active investment", userID)
		}
		record = &models.Transaction{
			ID:     uuid.New().String(),
			UserID: userID,
			Amount: account.Invested,
			Type:   models.TxTypeInvestmentWithdrawal,
			Status: models.TxStatusPending,
		}
		return store.InsertTransaction(tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, "investment.withdrawal_requested", map[string]any{"userId": userID, "txId": record.ID})
	return record, nil
}

// ApproveInvestmentWithdrawal returns principal plus accrued profit to
// the spendable balance and clears the plan. The original request
// record stays untouched; a new completed payout record carries the
// final amount and references the request.
func (s *LedgerService) ApproveInvestmentWithdrawal(ctx context.Context, adminID, txID string) (*models.Transaction, error) {
	var payout *models.Transaction
	err := s.inTx(func(tx *sql.Tx) error {
		t, err := lockTransaction(tx, txID)
		if err != nil {
			return err
		}
		if t.Type != models.TxTypeInvestmentWithdrawal || t.Status != models.TxStatusPending {
			return opErrorf(KindInvalidState, "transaction %s is not a pending investment withdrawal", txID)
		}

		account, err := lockAccount(tx, t.UserID)
		if err != nil {
			return err
		}
		amount := account.Invested + account.UnclaimedProfit
		if amount <= 0 {
			return opErrorf(KindInvalidState, "user %s has nothing to withdraw", t.UserID)
		}
		account.Balance += amount
		account.Invested = 0
		account.UnclaimedProfit = 0
		account.ActivePlanID = nil
		if err := store.UpdateAccountBalances(tx, account); err != nil {
			return err
		}
		if err := store.UpdateTransactionStatus(tx, txID, models.TxStatusCompleted); err != nil {
			return err
		}

		payout = &models.Transaction{
			ID:          uuid.New().String(),
			UserID:      t.UserID,
			Amount:      amount,
			Type:        models.TxTypeInvestmentWithdrawal,
			Status:      models.TxStatusCompleted,
			Reference:   t.ID,
			Description: "investment withdrawal payout",
		}
		return store.InsertTransaction(tx, payout)
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogAction(adminID, "INVESTMENT_WITHDRAWAL_APPROVED", txID, fmt.Sprintf("payout=%d", payout.Amount))
	s.notifier.NotifyUser(ctx, payout.UserID, "investment.withdrawn",
		fmt.Sprintf("Your investment payout of %d is available", payout.Amount))
	return payout, nil
}

// RejectInvestmentWithdrawal fails the request. Nothing was reserved,
// so no balance change.
func (s *LedgerService) RejectInvestmentWithdrawal(ctx context.Context, adminID, txID string) error {
	err := s.inTx(func(tx *sql.Tx) error {
		t, err := lockTransaction(tx, txID)
		if err != nil {
			return err
		}
		if t.Type != models.TxTypeInvestmentWithdrawal || t.Status != models.TxStatusPending {
			return opErrorf(KindInvalidState, "transaction %s is not a pending investment withdrawal", txID)
		}
		return store.UpdateTransactionStatus(tx, txID, models.TxStatusFailed)
	})
	if err != nil {
		return err
	}
	s.audit.LogAction(adminID, "INVESTMENT_WITHDRAWAL_REJECTED", txID, "")
	return nil
}

// TransferResult is the committed outcome of an internal transfer.
type TransferResult struct {
	SenderTx    *models.Transaction `json:"sender_tx"`
	RecipientTx *models.Transaction `json:"recipient_tx"`
	FeeTx       *models.Transaction `json:"fee_tx,omitempty"`
	Fee         int64               `json:"fee"`
}

// InternalTransfer debits sender amount+fee, credits recipient amount
// and the fee collector fee, with paired transaction records for each
// leg. All writes are one atomic unit.
func (s *LedgerService) InternalTransfer(ctx context.Context, senderID, recipientID string, amount int64, description string) (*TransferResult, error) {
	if amount <= 0 {
		return nil, opErrorf(KindInvalidInput, "transfer amount must be positive")
	}
	if senderID == recipientID {
		return nil, opErrorf(KindInvalidInput, "cannot transfer to the same account")
	}

	result := &TransferResult{}
	err := s.inTx(func(tx *sql.Tx) error {
		// Lock every involved account in sorted order to avoid deadlocks.
		ids := []string{senderID, recipientID, s.cfg.FeeCollectorID}
		sort.Strings(ids)
		accounts := make(map[string]*models.Account, 3)
		for _, id := range ids {
			if _, done := accounts[id]; done {
				continue
			}
			account, err := lockAccount(tx, id)
			if err != nil {
				return err
			}
			accounts[id] = account
		}

		sender := accounts[senderID]
		recipient := accounts[recipientID]
		collector := accounts[s.cfg.FeeCollectorID]

		if err := requireOperable(sender); err != nil {
			return err
		}

		fee := s.transferFee(amount)
		if sender.IsFeeExempt {
			fee = 0
		}
		if sender.Balance < amount+fee {
			return opErrorf(KindInsufficientFunds, "balance %d below transfer total %d", sender.Balance, amount+fee)
		}

		sender.Balance -= amount + fee
		recipient.Balance += amount
		if fee > 0 {
			collector.Balance += fee
		}

		// The parties may alias when the fee collector itself sends or
		// receives; each locked row must be written exactly once or the
		// second write fails the version check.
		written := make(map[string]bool, len(accounts))
		for _, id := range []string{senderID, recipientID, s.cfg.FeeCollectorID} {
			if written[id] {
				continue
			}
			written[id] = true
			if err := store.UpdateAccountBalances(tx, accounts[id]); err != nil {
				return err
			}
		}

		result.Fee = fee
		result.SenderTx = &models.Transaction{
			ID:          uuid.New().String(),
			UserID:      senderID,
			RecipientID: &recipientID,
			Amount:      -amount,
			Type:        models.TxTypeInternalTransfer,
			Status:      models.TxStatusCompleted,
			Description: description,
		}
		result.RecipientTx = &models.Transaction{
			ID:          uuid.New().String(),
			UserID:      recipientID,
			RecipientID: &senderID,
			Amount:      amount,
			Type:        models.TxTypeInternalTransfer,
			Status:      models.TxStatusCompleted,
			Description: description,
		}
		if err := store.InsertTransaction(tx, result.SenderTx); err != nil {
			return err
		}
		if err := store.InsertTransaction(tx, result.RecipientTx); err != nil {
			return err
		}
		if fee > 0 {
			result.FeeTx = &models.Transaction{
				ID:        uuid.New().String(),
				UserID:    senderID,
				Amount:    -fee,
				Type:      models.TxTypeTransferFee,
				Status:    models.TxStatusCompleted,
				Reference: result.SenderTx.ID,
			}
			if err := store.InsertTransaction(tx, result.FeeTx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyUser(ctx, senderID, "transfer.sent",
		fmt.Sprintf("You sent %d (fee %d)", amount, result.Fee))
	s.notifier.NotifyUser(ctx, recipientID, "transfer.received",
		fmt.Sprintf("You received %d", amount))
	return result, nil
}

func (s *LedgerService) transferFee(amount int64) int64 {
	fee := int64(float64(amount) * s.cfg.TransferFeePercentage / 100)
	return fee + s.cfg.TransferFeeFixed
}

// Adjustment directions and buckets for admin adjustments.
const (
	AdjustAdd    = "ADD"
	AdjustDeduct = "DEDUCT"

	BucketInvested        = "INVESTED"
	BucketUnclaimedProfit = "UNCLAIMED_PROFIT"
)

// AdminAdjustBalance credits or debits the spendable balance with a
// mandatory reason. Deductions never drive the balance negative.
func (s *LedgerService) AdminAdjustBalance(ctx context.Context, adminID, userID, direction string, amount int64, reason string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, opErrorf(KindInvalidInput, "adjustment amount must be positive")
	}
	if reason == "" {
		return nil, opErrorf(KindInvalidInput, "adjustment reason is required")
	}

	signed := amount
	switch direction {
	case AdjustAdd:
	case AdjustDeduct:
		signed = -amount
	default:
		return nil, opErrorf(KindInvalidInput, "unknown direction %q", direction)
	}

	record := &models.Transaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Amount:      signed,
		Type:        models.TxTypeAdminAdjustment,
		Status:      models.TxStatusCompleted,
		Description: reason,
	}

	err := s.inTx(func(tx *sql.Tx) error {
		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if account.Balance+signed < 0 {
			return opErrorf(KindInsufficientFunds, "deduction %d would drive balance %d negative", amount, account.Balance)
		}
		account.Balance += signed
		if err := store.UpdateAccountBalances(tx, account); err != nil {
			return err
		}
		return store.InsertTransaction(tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogAction(adminID, "BALANCE_ADJUSTED", userID, fmt.Sprintf("%s %d: %s", direction, amount, reason))
	s.notifier.NotifyUser(ctx, userID, "balance.adjusted", reason)
	return record, nil
}

// AdjustInvestment mutates the invested or unclaimed-profit bucket.
// Adding to invested moves the amount out of the spendable balance, so
// account totals stay conserved.
func (s *LedgerService) AdjustInvestment(ctx context.Context, adminID, userID, bucket, direction string, amount int64, reason string) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, opErrorf(KindInvalidInput, "adjustment amount must be positive")
	}
	if reason == "" {
		return nil, opErrorf(KindInvalidInput, "adjustment reason is required")
	}
	if direction != AdjustAdd && direction != AdjustDeduct {
		return nil, opErrorf(KindInvalidInput, "unknown direction %q", direction)
	}
	if bucket != BucketInvested && bucket != BucketUnclaimedProfit {
		return nil, opErrorf(KindInvalidInput, "unknown bucket %q", bucket)
	}

	record := &models.Transaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Amount:      amount,
		Type:        models.TxTypeAdminAdjustment,
		Status:      models.TxStatusCompleted,
		Description: fmt.Sprintf("%s %s: %s", direction, bucket, reason),
	}
	if direction == AdjustDeduct {
		record.Amount = -amount
	}

	err := s.inTx(func(tx *sql.Tx) error {
		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}

		switch {
		case bucket == BucketInvested && direction == AdjustAdd:
			if account.Balance < amount {
				return opErrorf(KindInsufficientFunds, "balance %d below investment adjustment %d", account.Balance, amount)
			}
			account.Balance -= amount
			account.Invested += amount
		case bucket == BucketInvested && direction == AdjustDeduct:
			if account.Invested < amount {
				return opErrorf(KindInsufficientFunds, "invested %d below deduction %d", account.Invested, amount)
			}
			account.Invested -= amount
		case bucket == BucketUnclaimedProfit && direction == AdjustAdd:
			account.UnclaimedProfit += amount
		default:
			if account.UnclaimedProfit < amount {
				return opErrorf(KindInsufficientFunds, "unclaimed profit %d below deduction %d", account.UnclaimedProfit, amount)
			}
			account.UnclaimedProfit -= amount
		}

		if err := store.UpdateAccountBalances(tx, account); err != nil {
			return err
		}
		return store.InsertTransaction(tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogAction(adminID, "INVESTMENT_ADJUSTED", userID, fmt.Sprintf("%s %s %d: %s", direction, bucket, amount, reason))
	return record, nil
}

// ApproveKYC marks the account verified and credits the signup bonus
// with a paired bonus record. Document checks happen upstream; only
// the ledger mutation lives here.
func (s *LedgerService) ApproveKYC(ctx context.Context, adminID, userID string) (*models.Transaction, error) {
	record := &models.Transaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Amount:      s.cfg.SignupBonus,
		Type:        models.TxTypeBonus,
		Status:      models.TxStatusCompleted,
		Description: "KYC verification bonus",
	}

	err := s.inTx(func(tx *sql.Tx) error {
		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if account.KYCVerified {
			return opErrorf(KindInvalidState, "user %s is already verified", userID)
		}
		account.KYCVerified = true
		account.Balance += s.cfg.SignupBonus
		if err := store.UpdateAccountBalances(tx, account); err != nil {
			return err
		}
		return store.InsertTransaction(tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogAction(adminID, "KYC_APPROVED", userID, fmt.Sprintf("bonus=%d", s.cfg.SignupBonus))
	s.notifier.NotifyUser(ctx, userID, "kyc.approved", "Your identity has been verified")
	return record, nil
}

// FileDispute attaches an open dispute to a completed transfer the
// user took part in and freezes the disputed amount on the
// counterparty's account.
func (s *LedgerService) FileDispute(ctx context.Context, userID, txID, reason, details string) (*models.Transaction, error) {
	if reason == "" {
		return nil, opErrorf(KindInvalidInput, "dispute reason is required")
	}

	var record *models.Transaction
	err := s.inTx(func(tx *sql.Tx) error {
		t, err := lockTransaction(tx, txID)
		if err != nil {
			return err
		}
		if t.Type != models.TxTypeInternalTransfer || t.Status != models.TxStatusCompleted {
			return opErrorf(KindInvalidState, "transaction %s is not a completed transfer", txID)
		}
		if t.Dispute != nil {
			return opErrorf(KindInvalidState, "transaction %s already has a dispute", txID)
		}
		if t.RecipientID == nil {
			return opErrorf(KindInvalidState, "transaction %s has no counterparty", txID)
		}
		if t.UserID != userID && *t.RecipientID != userID {
			return opErrorf(KindForbidden, "user %s is not a party to transaction %s", userID, txID)
		}

		counterparty := t.UserID
		if counterparty == userID {
			counterparty = *t.RecipientID
		}

		amount := t.Amount
		if amount < 0 {
			amount = -amount
		}

		account, err := lockAccount(tx, counterparty)
		if err != nil {
			return err
		}
		if account.Balance < amount {
			return opErrorf(KindInsufficientFunds, "counterparty balance %d below disputed amount %d", account.Balance, amount)
		}
		account.Balance -= amount
		account.OnHoldBalance += amount
		if err := store.UpdateAccountBalances(tx, account); err != nil {
			return err
		}

		dispute := &models.Dispute{
			Reason:   reason,
			Details:  details,
			Status:   models.DisputeOpen,
			OpenedBy: userID,
			OpenedAt: time.Now(),
		}
		if err := store.UpdateTransactionDispute(tx, txID, dispute); err != nil {
			return err
		}
		t.Dispute = dispute
		record = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ctx, "dispute.opened", map[string]any{"txId": txID, "openedBy": userID})
	return record, nil
}

// EscalateDispute moves an open dispute to ESCALATED for manual
// review. The hold stays in place.
func (s *LedgerService) EscalateDispute(ctx context.Context, adminID, txID string) error {
	err := s.inTx(func(tx *sql.Tx) error {
		t, err := lockTransaction(tx, txID)
		if err != nil {
			return err
		}
		if t.Dispute == nil || t.Dispute.Status != models.DisputeOpen {
			return opErrorf(KindInvalidState, "transaction %s has no open dispute", txID)
		}
		t.Dispute.Status = models.DisputeEscalated
		return store.UpdateTransactionDispute(tx, txID, t.Dispute)
	})
	if err != nil {
		return err
	}
	s.audit.LogAction(adminID, "DISPUTE_ESCALATED", txID, "")
	return nil
}

// ResolveDispute releases the held amount to the winner. The loser is
// whichever party is not the winner; their on-hold bucket absorbs the
// debit.
func (s *LedgerService) ResolveDispute(ctx context.Context, adminID, txID, winnerID string) (*models.Transaction, error) {
	record, err := s.settleDispute(txID, winnerID, models.DisputeResolved,
		models.DisputeOpen, models.DisputeEscalated)
	if err != nil {
		return nil, err
	}

	s.audit.LogAction(adminID, "DISPUTE_RESOLVED", txID, fmt.Sprintf("winner=%s", winnerID))
	s.notifier.NotifyUser(ctx, winnerID, "dispute.resolved", "The dispute was resolved in your favor")
	return record, nil
}

// RefundDispute resolves an open dispute in favor of the original
// payer. Escalated disputes must go through explicit resolution.
func (s *LedgerService) RefundDispute(ctx context.Context, adminID, txID string) (*models.Transaction, error) {
	record, err := s.settleDispute(txID, "", models.DisputeRefunded, models.DisputeOpen)
	if err != nil {
		return nil, err
	}

	payerID := record.UserID
	s.audit.LogAction(adminID, "DISPUTE_REFUNDED", txID, fmt.Sprintf("payer=%s", payerID))
	s.notifier.NotifyUser(ctx, payerID, "dispute.refunded", "The disputed amount was refunded to you")
	return record, nil
}

// settleDispute releases the hold and finalizes the dispute in one
// transaction. The dispute must be in one of the allowed statuses at
// settlement time. An empty winnerID means the original payer.
func (s *LedgerService) settleDispute(txID, winnerID, finalStatus string, allowed ...string) (*models.Transaction, error) {
	var record *models.Transaction
	err := s.inTx(func(tx *sql.Tx) error {
		t, err := lockTransaction(tx, txID)
		if err != nil {
			return err
		}
		if t.Dispute == nil {
			return opErrorf(KindInvalidState, "transaction %s has no dispute", txID)
		}
		actionable := false
		for _, status := range allowed {
			if t.Dispute.Status == status {
				actionable = true
				break
			}
		}
		if !actionable {
			return opErrorf(KindInvalidState, "dispute on %s is %s, not actionable", txID, t.Dispute.Status)
		}
		if t.RecipientID == nil {
			return opErrorf(KindInvalidState, "transaction %s has no counterparty", txID)
		}
		if winnerID == "" {
			winnerID = t.UserID
		}
		if t.UserID != winnerID && *t.RecipientID != winnerID {
			return opErrorf(KindInvalidInput, "winner %s is not a party to transaction %s", winnerID, txID)
		}

		loserID := t.UserID
		if loserID == winnerID {
			loserID = *t.RecipientID
		}

		amount := t.Amount
		if amount < 0 {
			amount = -amount
		}

		winner, loser, err := store.LockAccounts(tx, winnerID, loserID)
		if err == sql.ErrNoRows {
			return opErrorf(KindNotFound, "dispute party account not found")
		}
		if err != nil {
			return err
		}
		if loser.OnHoldBalance < amount {
			return opErrorf(KindInsufficientFunds, "on-hold balance %d below disputed amount %d", loser.OnHoldBalance, amount)
		}

		winner.Balance += amount
		loser.OnHoldBalance -= amount
		if err := store.UpdateAccountBalances(tx, winner); err != nil {
			return err
		}
		if err := store.UpdateAccountBalances(tx, loser); err != nil {
			return err
		}

		now := time.Now()
		t.Dispute.Status = finalStatus
		t.Dispute.ResolvedAt = &now
		if err := store.UpdateTransactionDispute(tx, txID, t.Dispute); err != nil {
			return err
		}
		record = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}
