package store

import (
	"database/sql"
	"time"

	"github.com/apexvest/backend/internal/models"
)

const subscriptionColumns = `id, trader_id, user_id, invested_amount, current_value, pnl,
	       is_active, settings, created_at, updated_at`

func scanSubscription(row *sql.Row) (*models.Subscription, error) {
	var s models.Subscription
	err := row.Scan(
		&s.ID, &s.TraderID, &s.UserID, &s.InvestedAmount, &s.CurrentValue, &s.PnL,
		&s.IsActive, &s.Settings, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSubscription fetches a subscription by id.
func GetSubscription(q Querier, subID string) (*models.Subscription, error) {
	return scanSubscription(q.QueryRow(`
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE id = $1`, subID))
}

// GetSubscriptionForUpdate fetches and row-locks a subscription.
func GetSubscriptionForUpdate(tx *sql.Tx, subID string) (*models.Subscription, error) {
	return scanSubscription(tx.QueryRow(`
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE id = $1
		FOR UPDATE`, subID))
}

// ListActiveSubscriptions returns a user's active subscriptions,
// newest first.
func ListActiveSubscriptions(q Querier, userID string) ([]models.Subscription, error) {
	rows, err := q.Query(`
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND is_active = true
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := []models.Subscription{}
	for rows.Next() {
		var s models.Subscription
		err := rows.Scan(
			&s.ID, &s.TraderID, &s.UserID, &s.InvestedAmount, &s.CurrentValue, &s.PnL,
			&s.IsActive, &s.Settings, &s.CreatedAt, &s.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// InsertSubscription creates an active subscription row.
func InsertSubscription(q Querier, s *models.Subscription) error {
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	_, err := q.Exec(`
		INSERT INTO subscriptions
		(id, trader_id, user_id, invested_amount, current_value, pnl, is_active,
		 settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.TraderID, s.UserID, s.InvestedAmount, s.CurrentValue, s.PnL,
		s.IsActive, s.Settings, s.CreatedAt, s.UpdatedAt)
	return err
}

// DeactivateSubscription flips is_active off. Rows are never deleted.
func DeactivateSubscription(q Querier, subID string) error {
	_, err := q.Exec(`
		UPDATE subscriptions
		SET is_active = false, updated_at = $1
		WHERE id = $2`,
		time.Now(), subID)
	return err
}

// UpdateSubscriptionValue writes the distributor-owned valuation
// fields.
func UpdateSubscriptionValue(q Querier, subID string, currentValue, pnl int64) error {
	_, err := q.Exec(`
		UPDATE subscriptions
		SET current_value = $1, pnl = $2, updated_at = $3
		WHERE id = $4`,
		currentValue, pnl, time.Now(), subID)
	return err
}

// UpdateSubscriptionSettings rewrites the typed settings sub-record.
func UpdateSubscriptionSettings(q Querier, subID string, settings models.CopySettings) error {
	_, err := q.Exec(`
		UPDATE subscriptions
		SET settings = $1, updated_at = $2
		WHERE id = $3`,
		settings, time.Now(), subID)
	return err
}

// GetTrader fetches a copy trader profile.
func GetTrader(q Querier, traderID string) (*models.CopyTrader, error) {
	var t models.CopyTrader
	err := q.QueryRow(`
		SELECT id, name, followers, profit_share, monthly_profit, daily_profit, created_at
		FROM copy_traders
		WHERE id = $1`, traderID).
		Scan(&t.ID, &t.Name, &t.Followers, &t.ProfitShare, &t.MonthlyProfit, &t.DailyProfit, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AdjustFollowers increments or decrements a trader's follower count.
func AdjustFollowers(q Querier, traderID string, delta int) error {
	_, err := q.Exec(`
		UPDATE copy_traders
		SET followers = followers + $1
		WHERE id = $2`,
		delta, traderID)
	return err
}
