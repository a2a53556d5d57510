package store

import (
	"database/sql"
	"time"

	"github.com/apexvest/backend/internal/models"
)

// Querier is satisfied by both *sql.DB and *sql.Tx so the typed
// primitives below compose inside one atomic unit.
type Querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

const accountColumns = `id, user_id, balance, on_hold_balance, invested, unclaimed_profit,
	       total_deposits, active_plan_id, agent_level, last_reward_date,
	       kyc_verified, is_fee_exempt, is_frozen, is_banned, version, updated_at`

func scanAccount(row *sql.Row) (*models.Account, error) {
	var a models.Account
	err := row.Scan(
		&a.ID, &a.UserID, &a.Balance, &a.OnHoldBalance, &a.Invested, &a.UnclaimedProfit,
		&a.TotalDeposits, &a.ActivePlanID, &a.AgentLevel, &a.LastRewardDate,
		&a.KYCVerified, &a.IsFeeExempt, &a.IsFrozen, &a.IsBanned, &a.Version, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAccount fetches the account owned by userID.
func GetAccount(q Querier, userID string) (*models.Account, error) {
	return scanAccount(q.QueryRow(`
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1`, userID))
}

// GetAccountForUpdate fetches and row-locks an account inside a
// transaction. Callers locking more than one account must go through
// LockAccounts to keep a consistent lock order.
func GetAccountForUpdate(tx *sql.Tx, userID string) (*models.Account, error) {
	return scanAccount(tx.QueryRow(`
		SELECT `+accountColumns+`
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE`, userID))
}

// LockAccounts locks two accounts in lexicographic user-id order to
// prevent deadlocks, returning them in the order they were requested.
func LockAccounts(tx *sql.Tx, firstUserID, secondUserID string) (*models.Account, *models.Account, error) {
	lockFirst, lockSecond := firstUserID, secondUserID
	if lockFirst > lockSecond {
		lockFirst, lockSecond = lockSecond, lockFirst
	}

	a, err := GetAccountForUpdate(tx, lockFirst)
	if err != nil {
		return nil, nil, err
	}
	b, err := GetAccountForUpdate(tx, lockSecond)
	if err != nil {
		return nil, nil, err
	}

	if lockFirst != firstUserID {
		a, b = b, a
	}
	return a, b, nil
}

// UpdateAccountBalances writes all balance buckets back, checking and
// incrementing the optimistic version column. A zero-row update means
// a concurrent writer got there first.
func UpdateAccountBalances(q Querier, a *models.Account) error {
	result, err := q.Exec(`
		UPDATE accounts
		SET balance = $1, on_hold_balance = $2, invested = $3, unclaimed_profit = $4,
		    total_deposits = $5, active_plan_id = $6, last_reward_date = $7,
		    kyc_verified = $8, version = version + 1, updated_at = $9
		WHERE user_id = $10 AND version = $11`,
		a.Balance, a.OnHoldBalance, a.Invested, a.UnclaimedProfit,
		a.TotalDeposits, a.ActivePlanID, a.LastRewardDate,
		a.KYCVerified, time.Now(), a.UserID, a.Version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return &VersionConflictError{UserID: a.UserID}
	}
	return nil
}

// VersionConflictError signals that an optimistic-lock check failed.
type VersionConflictError struct {
	UserID string
}

func (e *VersionConflictError) Error() string {
	return "optimistic lock failed for account " + e.UserID
}

// GetPlan fetches an investment plan by id.
func GetPlan(q Querier, planID string) (*models.InvestmentPlan, error) {
	var p models.InvestmentPlan
	err := q.QueryRow(`
		SELECT id, name, daily_profit_rate, min_amount, max_amount
		FROM investment_plans
		WHERE id = $1`, planID).
		Scan(&p.ID, &p.Name, &p.DailyProfitRate, &p.MinAmount, &p.MaxAmount)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// InsertAuditLog appends an administrative action record.
func InsertAuditLog(q Querier, actorID, action, entityID, detail string) error {
	_, err := q.Exec(`
		INSERT INTO audit_logs (actor_id, action, entity_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		actorID, action, entityID, detail, time.Now())
	return err
}

// InsertNotification appends a per-user notification row.
func InsertNotification(q Querier, userID, event, message string) error {
	_, err := q.Exec(`
		INSERT INTO notifications (user_id, event, message, read, created_at)
		VALUES ($1, $2, $3, false, $4)`,
		userID, event, message, time.Now())
	return err
}
