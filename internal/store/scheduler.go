package store

import (
	"database/sql"
	"time"

	"github.com/apexvest/backend/internal/models"
)

// GetSchedulerState reads the single-row accrual throttle state. A
// missing row means the job has never run.
func GetSchedulerState(q Querier) (*models.SchedulerState, error) {
	var s models.SchedulerState
	err := q.QueryRow(`SELECT last_run FROM scheduler_state WHERE id = 1`).Scan(&s.LastRun)
	if err == sql.ErrNoRows {
		return &models.SchedulerState{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSchedulerState upserts the accrual throttle state.
func SetSchedulerState(q Querier, lastRun time.Time) error {
	_, err := q.Exec(`
		INSERT INTO scheduler_state (id, last_run)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET last_run = $1`,
		lastRun)
	return err
}

// ListAccountsDueForReward returns accounts whose last reward date is
// not the given day.
func ListAccountsDueForReward(q Querier, today string) ([]models.Account, error) {
	rows, err := q.Query(`
		SELECT `+accountColumns+`
		FROM accounts
		WHERE last_reward_date IS DISTINCT FROM $1
		ORDER BY user_id`, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.Account{}
	for rows.Next() {
		var a models.Account
		err := rows.Scan(
			&a.ID, &a.UserID, &a.Balance, &a.OnHoldBalance, &a.Invested, &a.UnclaimedProfit,
			&a.TotalDeposits, &a.ActivePlanID, &a.AgentLevel, &a.LastRewardDate,
			&a.KYCVerified, &a.IsFeeExempt, &a.IsFrozen, &a.IsBanned, &a.Version, &a.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
