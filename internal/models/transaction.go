package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Transaction types. Amount sign convention: negative for outflows,
// positive for inflows on the owning user's account.
const (
	TxTypeDeposit              = "DEPOSIT"
	TxTypeWithdrawal           = "WITHDRAWAL"
	TxTypeInvestment           = "INVESTMENT"
	TxTypeInvestmentWithdrawal = "INVESTMENT_WITHDRAWAL"
	TxTypeBonus                = "BONUS"
	TxTypeInternalTransfer     = "INTERNAL_TRANSFER"
	TxTypeTransferFee          = "TRANSFER_FEE"
	TxTypeAdminAdjustment      = "ADMIN_ADJUSTMENT"
	TxTypeCopyTradeSubscribe   = "COPYTRADE_SUBSCRIBE"
	TxTypeCopyTradeUnsubscribe = "COPYTRADE_UNSUBSCRIBE"
	TxTypePenaltyFee           = "PENALTY_FEE"
	TxTypeCopyTradingProfit    = "COPYTRADING_PROFIT"
	TxTypeVoucherCreate        = "VAULT_VOUCHER_CREATE"
	TxTypeVoucherRedeem        = "VAULT_VOUCHER_REDEEM"
)

// Transaction statuses.
const (
	TxStatusPending              = "PENDING"
	TxStatusAwaitingConfirmation = "AWAITING_CONFIRMATION"
	TxStatusCompleted            = "COMPLETED"
	TxStatusFailed               = "FAILED"
)

// Dispute statuses.
const (
	DisputeOpen      = "OPEN"
	DisputeResolved  = "RESOLVED"
	DisputeRejected  = "REJECTED"
	DisputeEscalated = "ESCALATED"
	DisputeRefunded  = "REFUNDED"
)

// Transaction is the append-mostly audit record paired with every
// balance change. Amount and Type are immutable after insert; only
// Status and Dispute are mutated afterwards.
type Transaction struct {
	ID                string             `json:"id" db:"id"`
	UserID            string             `json:"user_id" db:"user_id"`
	RecipientID       *string            `json:"recipient_id,omitempty" db:"recipient_id"`
	Amount            int64              `json:"amount" db:"amount"` // cents, signed
	Type              string             `json:"type" db:"type"`
	Status            string             `json:"status" db:"status"`
	Reference         string             `json:"reference,omitempty" db:"reference"`
	Description       string             `json:"description,omitempty" db:"description"`
	Dispute           *Dispute           `json:"dispute,omitempty" db:"dispute"`
	WithdrawalDetails *WithdrawalDetails `json:"withdrawal_details,omitempty" db:"withdrawal_details"`
	CreatedAt         time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" db:"updated_at"`
}

// Dispute is the typed sub-record stored as JSONB on a transaction.
type Dispute struct {
	Reason     string     `json:"reason"`
	Details    string     `json:"details,omitempty"`
	Status     string     `json:"status"`
	OpenedBy   string     `json:"opened_by"`
	OpenedAt   time.Time  `json:"opened_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// WithdrawalDetails is the typed payout destination stored as JSONB.
type WithdrawalDetails struct {
	Method        string `json:"method"` // BANK or CRYPTO
	AccountName   string `json:"account_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
	BankCode      string `json:"bank_code,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
	Currency      string `json:"currency"`
}

func (d Dispute) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *Dispute) Scan(value any) error {
	return scanJSON(value, d)
}

func (w WithdrawalDetails) Value() (driver.Value, error) {
	return json.Marshal(w)
}

func (w *WithdrawalDetails) Scan(value any) error {
	return scanJSON(value, w)
}

func scanJSON(value, dst any) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, dst)
}

// AuditLog records an administrative action. Write-only sink.
type AuditLog struct {
	ID        int       `json:"id" db:"id"`
	ActorID   string    `json:"actor_id" db:"actor_id"`
	Action    string    `json:"action" db:"action"`
	EntityID  string    `json:"entity_id" db:"entity_id"`
	Detail    string    `json:"detail" db:"detail"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Notification is a per-user message row written best-effort after a
// committed ledger mutation.
type Notification struct {
	ID        int       `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Event     string    `json:"event" db:"event"`
	Message   string    `json:"message" db:"message"`
	Read      bool      `json:"read" db:"read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
