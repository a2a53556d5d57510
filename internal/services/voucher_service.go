package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"image/png"
	"io"

	"github.com/apexvest/backend/internal/audit"
	"github.com/apexvest/backend/internal/models"
	"github.com/apexvest/backend/internal/notify"
	"github.com/apexvest/backend/internal/store"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
)

const voucherCodeBytes = 9

// VoucherService handles value vouchers: a creator locks an amount
// behind a single-use code, anyone else redeems it. The voucher lives
// as a PENDING transaction whose reference holds the code.
type VoucherService struct {
	db       *sql.DB
	notifier *notify.Publisher
	audit    *audit.Logger
}

func NewVoucherService(db *sql.DB, notifier *notify.Publisher, auditLogger *audit.Logger) *VoucherService {
	return &VoucherService{db: db, notifier: notifier, audit: auditLogger}
}

func (s *VoucherService) inTx(fn func(tx *sql.Tx) error) error {
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

func generateVoucherCode() (string, error) {
	buf := make([]byte, voucherCodeBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("voucher code entropy: %w", err)
	}
	return "AVX-" + base64.RawURLEncoding.EncodeToString(buf), nil
}

// Voucher is the API shape of a created voucher, including a base64
// PNG QR image of the code.
type Voucher struct {
	Code    string              `json:"code"`
	Amount  int64               `json:"amount"`
	QRImage string              `json:"qr_image"`
	Tx      *models.Transaction `json:"tx"`
}

// CreateVoucher debits the creator's balance and issues a single-use
// code worth that amount.
func (s *VoucherService) CreateVoucher(ctx context.Context, userID string, amount int64) (*Voucher, error) {
	if amount <= 0 {
		return nil, opErrorf(KindInvalidInput, "voucher amount must be positive")
	}

	code, err := generateVoucherCode()
	if err != nil {
		return nil, err
	}
	record := &models.Transaction{
		ID:          uuid.New().String(),
		UserID:      userID,
		Amount:      -amount,
		Type:        models.TxTypeVoucherCreate,
		Status:      models.TxStatusPending,
		Reference:   code,
		Description: "voucher created",
	}

	err = s.inTx(func(tx *sql.Tx) error {
		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if err := requireOperable(account); err != nil {
			return err
		}
		if account.Balance < amount {
			return opErrorf(KindInsufficientFunds, "balance %d below voucher amount %d", account.Balance, amount)
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

	qrImage, err := renderQRCode(code)
	if err != nil {
		// The voucher is already committed; the code alone is usable.
		qrImage = ""
	}

	s.notifier.NotifyUser(ctx, userID, "voucher.created",
		fmt.Sprintf("Voucher for %d created", amount))
	return &Voucher{Code: code, Amount: amount, QRImage: qrImage, Tx: record}, nil
}

// RedeemVoucher credits the full voucher amount to the redeemer and
// consumes the code. Self-redemption is rejected.
func (s *VoucherService) RedeemVoucher(ctx context.Context, userID, code string) (*models.Transaction, error) {
	if code == "" {
		return nil, opErrorf(KindInvalidInput, "voucher code is required")
	}

	var record *models.Transaction
	err := s.inTx(func(tx *sql.Tx) error {
		voucher, err := store.GetVoucherByCode(tx, code)
		if err == sql.ErrNoRows {
			return opErrorf(KindNotFound, "voucher %s not found", code)
		}
		if err != nil {
			return err
		}
		if voucher.Status != models.TxStatusPending {
			return opErrorf(KindInvalidState, "voucher %s has already been redeemed or cancelled", code)
		}
		if voucher.UserID == userID {
			return opErrorf(KindForbidden, "cannot redeem your own voucher")
		}

		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if err := requireOperable(account); err != nil {
			return err
		}

		amount := -voucher.Amount
		account.Balance += amount
		if err := store.UpdateAccountBalances(tx, account); err != nil {
			return err
		}
		if err := store.UpdateTransactionStatus(tx, voucher.ID, models.TxStatusCompleted); err != nil {
			return err
		}

		record = &models.Transaction{
			ID:          uuid.New().String(),
			UserID:      userID,
			RecipientID: &voucher.UserID,
			Amount:      amount,
			Type:        models.TxTypeVoucherRedeem,
			Status:      models.TxStatusCompleted,
			Reference:   code,
			Description: "voucher redeemed",
		}
		return store.InsertTransaction(tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyUser(ctx, userID, "voucher.redeemed",
		fmt.Sprintf("You redeemed a voucher for %d", record.Amount))
	s.notifier.NotifyUser(ctx, *record.RecipientID, "voucher.claimed",
		fmt.Sprintf("Your voucher %s was redeemed", code))
	return record, nil
}

// CancelVoucher refunds an unredeemed voucher back to its creator.
func (s *VoucherService) CancelVoucher(ctx context.Context, userID, code string) (*models.Transaction, error) {
	var record *models.Transaction
	err := s.inTx(func(tx *sql.Tx) error {
		voucher, err := store.GetVoucherByCode(tx, code)
		if err == sql.ErrNoRows {
			return opErrorf(KindNotFound, "voucher %s not found", code)
		}
		if err != nil {
			return err
		}
		if voucher.UserID != userID {
			return opErrorf(KindForbidden, "voucher %s belongs to another user", code)
		}
		if voucher.Status != models.TxStatusPending {
			return opErrorf(KindInvalidState, "voucher %s is no longer cancellable", code)
		}

		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		account.Balance += -voucher.Amount
		if err := store.UpdateAccountBalances(tx, account); err != nil {
			return err
		}
		if err := store.UpdateTransactionStatus(tx, voucher.ID, models.TxStatusFailed); err != nil {
			return err
		}
		voucher.Status = models.TxStatusFailed
		record = voucher
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.LogAction(userID, "VOUCHER_CANCELLED", record.ID, code)
	s.notifier.NotifyUser(ctx, userID, "voucher.cancelled",
		fmt.Sprintf("Voucher %s was cancelled and refunded", code))
	return record, nil
}

func renderQRCode(code string) (string, error) {
	qr, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
