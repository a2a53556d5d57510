package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/apexvest/backend/internal/models"
	"github.com/apexvest/backend/internal/notify"
	"github.com/apexvest/backend/internal/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// CopyTradingService manages follower subscriptions to copy traders.
type CopyTradingService struct {
	db       *sql.DB
	notifier *notify.Publisher
	validate *validator.Validate
}

func NewCopyTradingService(db *sql.DB, notifier *notify.Publisher) *CopyTradingService {
	return &CopyTradingService{
		db:       db,
		notifier: notifier,
		validate: validator.New(),
	}
}

func (s *CopyTradingService) inTx(fn func(tx *sql.Tx) error) error {
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

// Subscribe moves amount from the follower's balance into invested,
// opens an active subscription and bumps the trader's follower count.
func (s *CopyTradingService) Subscribe(ctx context.Context, userID, traderID string, amount int64, settings models.CopySettings) (*models.Subscription, error) {
	if amount <= 0 {
		return nil, opErrorf(KindInvalidInput, "subscription amount must be positive")
	}
	if err := s.validate.Struct(settings); err != nil {
		return nil, opErrorf(KindInvalidInput, "invalid copy settings: %v", err)
	}

	sub := &models.Subscription{
		ID:             uuid.New().String(),
		TraderID:       traderID,
		UserID:         userID,
		InvestedAmount: amount,
		CurrentValue:   amount,
		PnL:            0,
		IsActive:       true,
		Settings:       settings,
	}

	err := s.inTx(func(tx *sql.Tx) error {
		trader, err := store.GetTrader(tx, traderID)
		if err == sql.ErrNoRows {
			return opErrorf(KindNotFound, "trader %s not found", traderID)
		}
		if err != nil {
			return err
		}

		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		if err := requireOperable(account); err != nil {
			return err
		}
		if account.Balance < amount {
			return opErrorf(KindInsufficientFunds, "balance %d below subscription amount %d", account.Balance, amount)
		}
		account.Balance -= amount
		account.Invested += amount
		if err := store.UpdateAccountBalances(tx, account); err != nil {
			return err
		}
		if err := store.InsertSubscription(tx, sub); err != nil {
			return err
		}
		if err := store.AdjustFollowers(tx, trader.ID, 1); err != nil {
			return err
		}
		return store.InsertTransaction(tx, &models.Transaction{
			ID:          uuid.New().String(),
			UserID:      userID,
			Amount:      -amount,
			Type:        models.TxTypeCopyTradeSubscribe,
			Status:      models.TxStatusCompleted,
			Reference:   sub.ID,
			Description: trader.Name,
		})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyUser(ctx, userID, "copytrading.subscribed",
		fmt.Sprintf("You are now copying trader %s with %d", traderID, amount))
	return sub, nil
}

// Unsubscribe deactivates the subscription and returns its current
// value to the follower's balance. The invested bucket is reduced by
// the original principal, floored at zero.
func (s *CopyTradingService) Unsubscribe(ctx context.Context, userID, subID string) (*models.Transaction, error) {
	var record *models.Transaction
	err := s.inTx(func(tx *sql.Tx) error {
		sub, err := store.GetSubscriptionForUpdate(tx, subID)
		if err == sql.ErrNoRows {
			return opErrorf(KindNotFound, "subscription %s not found", subID)
		}
		if err != nil {
			return err
		}
		if sub.UserID != userID {
			return opErrorf(KindForbidden, "subscription %s belongs to another user", subID)
		}
		if !sub.IsActive {
			return opErrorf(KindInvalidState, "subscription %s is not active", subID)
		}

		account, err := lockAccount(tx, userID)
		if err != nil {
			return err
		}
		account.Balance += sub.CurrentValue
		account.Invested -= sub.InvestedAmount
		if account.Invested < 0 {
			account.Invested = 0
		}
		if err := store.UpdateAccountBalances(tx, account); err != nil {
			return err
		}
		if err := store.DeactivateSubscription(tx, subID); err != nil {
			return err
		}
		if err := store.AdjustFollowers(tx, sub.TraderID, -1); err != nil {
			return err
		}

		record = &models.Transaction{
			ID:        uuid.New().String(),
			UserID:    userID,
			Amount:    sub.CurrentValue,
			Type:      models.TxTypeCopyTradeUnsubscribe,
			Status:    models.TxStatusCompleted,
			Reference: sub.ID,
		}
		return store.InsertTransaction(tx, record)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.NotifyUser(ctx, userID, "copytrading.unsubscribed",
		fmt.Sprintf("Copy trading ended, %d returned to your balance", record.Amount))
	return record, nil
}

// UpdateSettings validates and stores a new risk configuration.
func (s *CopyTradingService) UpdateSettings(ctx context.Context, userID, subID string, settings models.CopySettings) error {
	if err := s.validate.Struct(settings); err != nil {
		return opErrorf(KindInvalidInput, "invalid copy settings: %v", err)
	}

	return s.inTx(func(tx *sql.Tx) error {
		sub, err := store.GetSubscriptionForUpdate(tx, subID)
		if err == sql.ErrNoRows {
			return opErrorf(KindNotFound, "subscription %s not found", subID)
		}
		if err != nil {
			return err
		}
		if sub.UserID != userID {
			return opErrorf(KindForbidden, "subscription %s belongs to another user", subID)
		}
		if !sub.IsActive {
			return opErrorf(KindInvalidState, "subscription %s is not active", subID)
		}
		return store.UpdateSubscriptionSettings(tx, subID, settings)
	})
}
