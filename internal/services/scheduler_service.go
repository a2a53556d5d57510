package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/apexvest/backend/internal/config"
	"github.com/apexvest/backend/internal/models"
	"github.com/apexvest/backend/internal/store"
	"github.com/go-redis/redis/v8"
)

const (
	accrualInterval = time.Hour
	accrualLockKey  = "ledger:scheduler:lock"
)

// ProfitAccrualService credits daily investment profit into the
// unclaimed-profit bucket. It is opportunistic: high-traffic read
// paths call MaybeRun, which throttles to at most one run per hour
// across all instances.
type ProfitAccrualService struct {
	db    *sql.DB
	redis *redis.Client
	cfg   *config.LedgerConfig
	now   func() time.Time
}

func NewProfitAccrualService(db *sql.DB, redisClient *redis.Client, cfg *config.LedgerConfig) *ProfitAccrualService {
	return &ProfitAccrualService{db: db, redis: redisClient, cfg: cfg, now: time.Now}
}

// MaybeRun runs the accrual pass if it is due. Weekends are skipped
// entirely, the persisted SchedulerState throttles to one run per
// hour, and a Redis SETNX lock keeps concurrent instances from
// racing.
func (s *ProfitAccrualService) MaybeRun(ctx context.Context) {
	now := s.now()
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return
	}

	state, err := store.GetSchedulerState(s.db)
	if err != nil {
		log.Printf("[SCHEDULER] failed to read scheduler state: %v", err)
		return
	}
	if now.Sub(state.LastRun) < accrualInterval {
		return
	}

	if s.redis != nil {
		ok, err := s.redis.SetNX(ctx, accrualLockKey, now.Format(time.RFC3339), accrualInterval).Result()
		if err != nil {
			log.Printf("[SCHEDULER] lock acquisition failed: %v", err)
			return
		}
		if !ok {
			return
		}
	}

	if err := s.Run(ctx); err != nil {
		log.Printf("[SCHEDULER] accrual run failed: %v", err)
	}
}

// Run executes one accrual pass over every account that has not been
// rewarded today. Per-account failures are logged and skipped; only a
// transaction-level fault aborts the pass.
func (s *ProfitAccrualService) Run(ctx context.Context) error {
	now := s.now()
	today := now.Format("2006-01-02")

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	accounts, err := store.ListAccountsDueForReward(tx, today)
	if err != nil {
		return err
	}

	plans := make(map[string]*models.InvestmentPlan)
	credited := 0
	for i := range accounts {
		account := &accounts[i]
		profit, err := s.dailyProfit(tx, plans, account)
		if err != nil {
			log.Printf("[SCHEDULER] skipping user %s: %v", account.UserID, err)
			continue
		}

		if profit > 0 {
			account.UnclaimedProfit += profit
		}
		account.LastRewardDate = today
		if err := store.UpdateAccountBalances(tx, account); err != nil {
			log.Printf("[SCHEDULER] skipping user %s: %v", account.UserID, err)
			continue
		}
		if profit > 0 {
			credited++
		}
	}

	if err := store.SetSchedulerState(tx, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("[SCHEDULER] accrual pass done: %d accounts examined, %d credited", len(accounts), credited)
	return nil
}

// dailyProfit computes invested x rate / 100, where agent tier rates
// take precedence over the active plan's rate.
func (s *ProfitAccrualService) dailyProfit(tx *sql.Tx, plans map[string]*models.InvestmentPlan, account *models.Account) (int64, error) {
	if account.Invested <= 0 {
		return 0, nil
	}

	rate := 0.0
	switch {
	case account.AgentLevel > 0:
		rate = s.cfg.AgentRate(account.AgentLevel)
	case account.ActivePlanID != nil:
		plan, ok := plans[*account.ActivePlanID]
		if !ok {
			var err error
			plan, err = store.GetPlan(tx, *account.ActivePlanID)
			if err != nil {
				return 0, err
			}
			plans[*account.ActivePlanID] = plan
		}
		rate = plan.DailyProfitRate
	}

	return int64(float64(account.Invested) * rate / 100), nil
}
