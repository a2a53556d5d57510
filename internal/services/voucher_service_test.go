package services

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/apexvest/backend/internal/audit"
	"github.com/apexvest/backend/internal/models"
	"github.com/apexvest/backend/internal/notify"
	"github.com/stretchr/testify/assert"
)

func newTestVoucherService(t *testing.T) (*VoucherService, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewVoucherService(db, notify.NewPublisher(nil, nil), audit.NewLogger(nil)), mock
}

func TestVoucherService_CreateVoucher(t *testing.T) {
	t.Run("debits creator and issues a code with a QR image", func(t *testing.T) {
		service, mock := newTestVoucherService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM accounts").
			WithArgs("alice").
			WillReturnRows(accountRows(&models.Account{ID: "a1", UserID: "alice", Balance: 10000, Version: 1}))
		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(8000), int64(0), int64(0), int64(0), int64(0),
				nil, "", false, sqlmock.AnyArg(), "alice", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		voucher, err := service.CreateVoucher(context.Background(), "alice", 2000)
		assert.NoError(t, err)
		assert.True(t, strings.HasPrefix(voucher.Code, "AVX-"))
		assert.Equal(t, int64(2000), voucher.Amount)
		assert.NotEmpty(t, voucher.QRImage)
		assert.Equal(t, int64(-2000), voucher.Tx.Amount)
		assert.Equal(t, models.TxStatusPending, voucher.Tx.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance", func(t *testing.T) {
		service, mock := newTestVoucherService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM accounts").
			WithArgs("alice").
			WillReturnRows(accountRows(&models.Account{ID: "a1", UserID: "alice", Balance: 500, Version: 1}))
		mock.ExpectRollback()

		_, err := service.CreateVoucher(context.Background(), "alice", 2000)
		assert.Error(t, err)
		assert.Equal(t, KindInsufficientFunds, KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive amount", func(t *testing.T) {
		service, _ := newTestVoucherService(t)
		_, err := service.CreateVoucher(context.Background(), "alice", 0)
		assert.Error(t, err)
		assert.Equal(t, KindInvalidInput, KindOf(err))
	})
}

func TestGenerateVoucherCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := generateVoucherCode()
		assert.NoError(t, err)
		assert.True(t, strings.HasPrefix(code, "AVX-"))
		assert.Len(t, code, 4+12) // 9 random bytes base64url-encoded
		assert.False(t, seen[code], "codes must not repeat")
		seen[code] = true
	}
}

func TestVoucherService_RedeemVoucher(t *testing.T) {
	t.Run("credits redeemer and consumes the code", func(t *testing.T) {
		service, mock := newTestVoucherService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM transactions").
			WithArgs("AVX-abc", models.TxTypeVoucherCreate).
			WillReturnRows(transactionRows(&models.Transaction{
				ID: "v1", UserID: "alice", Amount: -2000,
				Type: models.TxTypeVoucherCreate, Status: models.TxStatusPending,
				Reference: "AVX-abc",
			}))
		mock.ExpectQuery("FROM accounts").
			WithArgs("bob").
			WillReturnRows(accountRows(&models.Account{ID: "a2", UserID: "bob", Balance: 100, Version: 2}))
		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(2100), int64(0), int64(0), int64(0), int64(0),
				nil, "", false, sqlmock.AnyArg(), "bob", 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE transactions").
			WithArgs(models.TxStatusCompleted, sqlmock.AnyArg(), "v1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		record, err := service.RedeemVoucher(context.Background(), "bob", "AVX-abc")
		assert.NoError(t, err)
		assert.Equal(t, int64(2000), record.Amount)
		assert.Equal(t, models.TxTypeVoucherRedeem, record.Type)
		assert.Equal(t, "alice", *record.RecipientID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("self-redemption is rejected", func(t *testing.T) {
		service, mock := newTestVoucherService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM transactions").
			WithArgs("AVX-abc", models.TxTypeVoucherCreate).
			WillReturnRows(transactionRows(&models.Transaction{
				ID: "v1", UserID: "alice", Amount: -2000,
				Type: models.TxTypeVoucherCreate, Status: models.TxStatusPending,
				Reference: "AVX-abc",
			}))
		mock.ExpectRollback()

		_, err := service.RedeemVoucher(context.Background(), "alice", "AVX-abc")
		assert.Error(t, err)
		assert.Equal(t, KindForbidden, KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already redeemed voucher", func(t *testing.T) {
		service, mock := newTestVoucherService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM transactions").
			WithArgs("AVX-abc", models.TxTypeVoucherCreate).
			WillReturnRows(transactionRows(&models.Transaction{
				ID: "v1", UserID: "alice", Amount: -2000,
				Type: models.TxTypeVoucherCreate, Status: models.TxStatusCompleted,
				Reference: "AVX-abc",
			}))
		mock.ExpectRollback()

		_, err := service.RedeemVoucher(context.Background(), "bob", "AVX-abc")
		assert.Error(t, err)
		assert.Equal(t, KindInvalidState, KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown code", func(t *testing.T) {
		service, mock := newTestVoucherService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM transactions").
			WithArgs("AVX-missing", models.TxTypeVoucherCreate).
			WillReturnRows(sqlmock.NewRows(transactionCols))
		mock.ExpectRollback()

		_, err := service.RedeemVoucher(context.Background(), "bob", "AVX-missing")
		assert.Error(t, err)
		assert.Equal(t, KindNotFound, KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVoucherService_CancelVoucher(t *testing.T) {
	t.Run("refunds the creator", func(t *testing.T) {
		service, mock := newTestVoucherService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM transactions").
			WithArgs("AVX-abc", models.TxTypeVoucherCreate).
			WillReturnRows(transactionRows(&models.Transaction{
				ID: "v1", UserID: "alice", Amount: -2000,
				Type: models.TxTypeVoucherCreate, Status: models.TxStatusPending,
				Reference: "AVX-abc",
			}))
		mock.ExpectQuery("FROM accounts").
			WithArgs("alice").
			WillReturnRows(accountRows(&models.Account{ID: "a1", UserID: "alice", Balance: 8000, Version: 1}))
		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(10000), int64(0), int64(0), int64(0), int64(0),
				nil, "", false, sqlmock.AnyArg(), "alice", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE transactions").
			WithArgs(models.TxStatusFailed, sqlmock.AnyArg(), "v1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		record, err := service.CancelVoucher(context.Background(), "alice", "AVX-abc")
		assert.NoError(t, err)
		assert.Equal(t, models.TxStatusFailed, record.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("only the creator can cancel", func(t *testing.T) {
		service, mock := newTestVoucherService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM transactions").
			WithArgs("AVX-abc", models.TxTypeVoucherCreate).
			WillReturnRows(transactionRows(&models.Transaction{
				ID: "v1", UserID: "alice", Amount: -2000,
				Type: models.TxTypeVoucherCreate, Status: models.TxStatusPending,
				Reference: "AVX-abc",
			}))
		mock.ExpectRollback()

		_, err := service.CancelVoucher(context.Background(), "bob", "AVX-abc")
		assert.Error(t, err)
		assert.Equal(t, KindForbidden, KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
