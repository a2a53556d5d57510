package services

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/apexvest/backend/internal/config"
	"github.com/apexvest/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func newTestAccrualService(t *testing.T, now time.Time) (*ProfitAccrualService, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.LedgerConfig{AgentTierRates: [3]float64{0.5, 0.8, 1.2}}
	service := NewProfitAccrualService(db, nil, cfg)
	service.now = func() time.Time { return now }
	return service, mock
}

func TestProfitAccrualService_MaybeRun(t *testing.T) {
	t.Run("weekends are skipped without touching the database", func(t *testing.T) {
		saturday := time.Date(2025, 3, 8, 10, 0, 0, 0, time.UTC)
		service, mock := newTestAccrualService(t, saturday)

		service.MaybeRun(context.Background())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("recent run throttles the pass", func(t *testing.T) {
		monday := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
		service, mock := newTestAccrualService(t, monday)

		mock.ExpectQuery("FROM scheduler_state").
			WillReturnRows(sqlmock.NewRows([]string{"last_run"}).AddRow(monday.Add(-30 * time.Minute)))

		service.MaybeRun(context.Background())

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestProfitAccrualService_Run(t *testing.T) {
	monday := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	today := "2025-03-10"
	planID := "plan-growth"

	t.Run("credits plan rate into unclaimed profit", func(t *testing.T) {
		service, mock := newTestAccrualService(t, monday)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM accounts").
			WithArgs(today).
			WillReturnRows(accountRows(&models.Account{
				ID: "a1", UserID: "alice", Balance: 5000, Invested: 100000,
				UnclaimedProfit: 200, ActivePlanID: &planID,
				LastRewardDate: "2025-03-07", Version: 3,
			}))
		// 1.5% daily on 100000 invested
		mock.ExpectQuery("FROM investment_plans").
			WithArgs(planID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "daily_profit_rate", "min_amount", "max_amount"}).
				AddRow(planID, "Growth", 1.5, 10000, 1000000))
		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(5000), int64(0), int64(100000), int64(1700), int64(0),
				planID, today, false, sqlmock.AnyArg(), "alice", 3).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO scheduler_state").
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.Run(context.Background())
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("agent tier rate takes precedence over the plan", func(t *testing.T) {
		service, mock := newTestAccrualService(t, monday)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM accounts").
			WithArgs(today).
			WillReturnRows(accountRows(&models.Account{
				ID: "a2", UserID: "bob", Invested: 100000,
				ActivePlanID: &planID, AgentLevel: 2,
				LastRewardDate: "2025-03-07", Version: 1,
			}))
		// agent tier 2 pays 0.8%, no plan lookup
		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(0), int64(0), int64(100000), int64(800), int64(0),
				planID, today, false, sqlmock.AnyArg(), "bob", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO scheduler_state").
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.Run(context.Background())
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("idle accounts still advance the reward date", func(t *testing.T) {
		service, mock := newTestAccrualService(t, monday)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM accounts").
			WithArgs(today).
			WillReturnRows(accountRows(&models.Account{
				ID: "a3", UserID: "carol", Balance: 2500,
				LastRewardDate: "2025-03-07", Version: 1,
			}))
		mock.ExpectExec("UPDATE accounts").
			WithArgs(int64(2500), int64(0), int64(0), int64(0), int64(0),
				nil, today, false, sqlmock.AnyArg(), "carol", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO scheduler_state").
			WithArgs(sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.Run(context.Background())
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
