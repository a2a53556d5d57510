package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/apexvest/backend/internal/audit"
	"github.com/apexvest/backend/internal/config"
	"github.com/apexvest/backend/internal/models"
	"github.com/apexvest/backend/internal/notify"
	"github.com/stretchr/testify/assert"
)

var subscriptionCols = []string{
	"id", "trader_id", "user_id", "invested_amount", "current_value", "pnl",
	"is_active", "settings", "created_at", "updated_at",
}

var traderCols = []string{"id", "name", "followers", "profit_share", "monthly_profit", "daily_profit", "created_at"}

func subscriptionRows(s *models.Subscription) *sqlmock.Rows {
	return sqlmock.NewRows(subscriptionCols).AddRow(
		s.ID, s.TraderID, s.UserID, s.InvestedAmount, s.CurrentValue, s.PnL,
		s.IsActive, []byte(`{"copy_ratio":1}`), time.Now(), time.Now(),
	)
}

func newTestDistributionService(t *testing.T) (*DistributionService, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.LedgerConfig{FeeCollectorID: "system-fees"}
	return NewDistributionService(db, cfg, notify.NewPublisher(nil, nil), audit.NewLogger(nil)), mock
}

func TestDistributionService_DistributeProfits(t *testing.T) {
	t.Run("splits profit between subscriber and trader share", func(t *testing.T) {
		service, mock := newTestDistributionService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM subscriptions").
			WithArgs("sub1").
			WillReturnRows(subscriptionRows(&models.Subscription{
				ID: "sub1", TraderID: "trader1", UserID: "alice",
				InvestedAmount: 100000, CurrentValue: 100000, IsActive: true,
			}))
		// Trader keeps 10% of the distributed profit.
		mock.ExpectQuery("FROM copy_traders").
			WithArgs("trader1").
			WillReturnRows(sqlmock.NewRows(traderCols).
				AddRow("trader1", "Alpha Trades", 12, 10.0, 8.5, 0.3, time.Now()))

		// profit = 100000 x 5% = 5000, trader share 500, user net 4500
		mock.ExpectQuery("FROM accounts").
			WithArgs("alice").
			WillReturnRows(accountRows(&models.Account{ID: "a1", UserID: "alice", Balance: 1000, Version: 2}))
		mock.ExpectQuery("FROM accounts").
			WithArgs("system-fees").
			WillReturnRows(accountRows(&models.Account{ID: "fee", UserID: "system-fees", Balance: 0, Version: 1}))
		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(500), int64(0), int64(0), int64(0), int64(0),
				nil, "", false, sqlmock.AnyArg(), "system-fees", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(5500), int64(0), int64(0), int64(0), int64(0),
				nil, "", false, sqlmock.AnyArg(), "alice", 2).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE subscriptions").
			WithArgs(int64(104500), int64(4500), sqlmock.AnyArg(), "sub1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		results, err := service.DistributeProfits(context.Background(), "admin", []string{"sub1"}, 5.0)
		assert.NoError(t, err)
		assert.Len(t, results, 1)
		assert.True(t, results[0].Applied)
		assert.Equal(t, int64(5000), results[0].Profit)
		assert.Equal(t, int64(500), results[0].TraderShare)
		assert.Equal(t, int64(4500), results[0].UserNet)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing subscription is skipped, batch continues", func(t *testing.T) {
		service, mock := newTestDistributionService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM subscriptions").
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(subscriptionCols))
		mock.ExpectQuery("FROM subscriptions").
			WithArgs("sub2").
			WillReturnRows(subscriptionRows(&models.Subscription{
				ID: "sub2", TraderID: "trader1", UserID: "bob",
				InvestedAmount: 10000, CurrentValue: 10000, IsActive: true,
			}))
		mock.ExpectQuery("FROM copy_traders").
			WithArgs("trader1").
			WillReturnRows(sqlmock.NewRows(traderCols).
				AddRow("trader1", "Alpha Trades", 12, 10.0, 8.5, 0.3, time.Now()))
		mock.ExpectQuery("FROM accounts").
			WithArgs("bob").
			WillReturnRows(accountRows(&models.Account{ID: "a2", UserID: "bob", Balance: 0, Version: 1}))
		mock.ExpectQuery("FROM accounts").
			WithArgs("system-fees").
			WillReturnRows(accountRows(&models.Account{ID: "fee", UserID: "system-fees", Balance: 0, Version: 1}))
		mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE subscriptions").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		results, err := service.DistributeProfits(context.Background(), "admin", []string{"missing", "sub2"}, 5.0)
		assert.NoError(t, err)
		assert.Len(t, results, 2)
		assert.False(t, results[0].Applied)
		assert.Equal(t, "subscription not found", results[0].Reason)
		assert.True(t, results[1].Applied)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("inactive subscription is skipped", func(t *testing.T) {
		service, mock := newTestDistributionService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM subscriptions").
			WithArgs("sub1").
			WillReturnRows(subscriptionRows(&models.Subscription{
				ID: "sub1", TraderID: "trader1", UserID: "alice",
				InvestedAmount: 10000, CurrentValue: 10000, IsActive: false,
			}))
		mock.ExpectCommit()

		results, err := service.DistributeProfits(context.Background(), "admin", []string{"sub1"}, 5.0)
		assert.NoError(t, err)
		assert.Len(t, results, 1)
		assert.False(t, results[0].Applied)
		assert.Equal(t, "subscription not active", results[0].Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing subscriber account leaves no trader share behind", func(t *testing.T) {
		service, mock := newTestDistributionService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM subscriptions").
			WithArgs("sub1").
			WillReturnRows(subscriptionRows(&models.Subscription{
				ID: "sub1", TraderID: "trader1", UserID: "ghost",
				InvestedAmount: 100000, CurrentValue: 100000, IsActive: true,
			}))
		mock.ExpectQuery("FROM copy_traders").
			WithArgs("trader1").
			WillReturnRows(sqlmock.NewRows(traderCols).
				AddRow("trader1", "Alpha Trades", 12, 10.0, 8.5, 0.3, time.Now()))
		// No account row for the subscriber: the item must be skipped
		// with zero writes for it in the committed batch.
		mock.ExpectQuery("FROM accounts").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows(accountCols))
		mock.ExpectCommit()

		results, err := service.DistributeProfits(context.Background(), "admin", []string{"sub1"}, 5.0)
		assert.NoError(t, err)
		assert.Len(t, results, 1)
		assert.False(t, results[0].Applied)
		assert.Equal(t, "subscriber account not found", results[0].Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing trader is skipped without writes", func(t *testing.T) {
		service, mock := newTestDistributionService(t)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM subscriptions").
			WithArgs("sub1").
			WillReturnRows(subscriptionRows(&models.Subscription{
				ID: "sub1", TraderID: "gone", UserID: "alice",
				InvestedAmount: 100000, CurrentValue: 100000, IsActive: true,
			}))
		mock.ExpectQuery("FROM copy_traders").
			WithArgs("gone").
			WillReturnRows(sqlmock.NewRows(traderCols))
		mock.ExpectCommit()

		results, err := service.DistributeProfits(context.Background(), "admin", []string{"sub1"}, 5.0)
		assert.NoError(t, err)
		assert.Len(t, results, 1)
		assert.False(t, results[0].Applied)
		assert.Equal(t, "trader not found", results[0].Reason)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid percentage", func(t *testing.T) {
		service, _ := newTestDistributionService(t)
		_, err := service.DistributeProfits(context.Background(), "admin", []string{"sub1"}, 0)
		assert.Error(t, err)
		assert.Equal(t, KindInvalidInput, KindOf(err))
	})
}
