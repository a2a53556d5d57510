package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Subscription links a follower to a copy trader. InvestedAmount is
// the principal and never changes; CurrentValue and PnL are mutated
// only by the profit distributor. Deactivated on unsubscribe, never
// deleted.
type Subscription struct {
	ID             string       `json:"id" db:"id"`
	TraderID       string       `json:"trader_id" db:"trader_id"`
	UserID         string       `json:"user_id" db:"user_id"`
	InvestedAmount int64        `json:"invested_amount" db:"invested_amount"`
	CurrentValue   int64        `json:"current_value" db:"current_value"`
	PnL            int64        `json:"pnl" db:"pnl"`
	IsActive       bool         `json:"is_active" db:"is_active"`
	Settings       CopySettings `json:"settings" db:"settings"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// CopySettings is the typed risk configuration stored as JSONB.
type CopySettings struct {
	CopyRatio       float64 `json:"copy_ratio" validate:"gt=0,lte=1"`
	MaxPositionSize int64   `json:"max_position_size,omitempty" validate:"gte=0"`
	StopLossPercent float64 `json:"stop_loss_percent,omitempty" validate:"gte=0,lte=100"`
}

func (s CopySettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *CopySettings) Scan(value any) error {
	return scanJSON(value, s)
}

// CopyTrader is a followable trader profile. MonthlyProfit and
// DailyProfit are display-only projected rates, not balances.
type CopyTrader struct {
	ID            string    `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	Followers     int       `json:"followers" db:"followers"`
	ProfitShare   float64   `json:"profit_share" db:"profit_share"` // percent retained by the trader
	MonthlyProfit float64   `json:"monthly_profit" db:"monthly_profit"`
	DailyProfit   float64   `json:"daily_profit" db:"daily_profit"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
