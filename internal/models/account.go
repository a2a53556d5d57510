package models

import (
	"time"
)

// Account holds the balance buckets for a single user. All monetary
// amounts are int64 cents. balance, on_hold_balance, invested and
// unclaimed_profit must never be negative after a committed operation.
type Account struct {
	ID              string     `json:"id" db:"id"`
	UserID          string     `json:"user_id" db:"user_id"`
	Balance         int64      `json:"balance" db:"balance"`
	OnHoldBalance   int64      `json:"on_hold_balance" db:"on_hold_balance"`
	Invested        int64      `json:"invested" db:"invested"`
	UnclaimedProfit int64      `json:"unclaimed_profit" db:"unclaimed_profit"`
	TotalDeposits   int64      `json:"total_deposits" db:"total_deposits"`
	ActivePlanID    *string    `json:"active_plan_id" db:"active_plan_id"`
	AgentLevel      int        `json:"agent_level" db:"agent_level"`
	LastRewardDate  string     `json:"last_reward_date" db:"last_reward_date"` // YYYY-MM-DD
	KYCVerified     bool       `json:"kyc_verified" db:"kyc_verified"`
	IsFeeExempt     bool       `json:"is_fee_exempt" db:"is_fee_exempt"`
	IsFrozen        bool       `json:"is_frozen" db:"is_frozen"`
	IsBanned        bool       `json:"is_banned" db:"is_banned"`
	Version         int        `json:"version" db:"version"` // for optimistic locking
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// InvestmentPlan is a fixed-rate daily profit plan.
type InvestmentPlan struct {
	ID              string  `json:"id" db:"id"`
	Name            string  `json:"name" db:"name"`
	DailyProfitRate float64 `json:"daily_profit_rate" db:"daily_profit_rate"` // percent per day
	MinAmount       int64   `json:"min_amount" db:"min_amount"`
	MaxAmount       int64   `json:"max_amount" db:"max_amount"`
}

// SchedulerState is the persisted throttle state for the profit
// accrual job. Single row, updated after every completed run.
type SchedulerState struct {
	LastRun time.Time `json:"last_run" db:"last_run"`
}
