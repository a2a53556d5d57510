package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/apexvest/backend/internal/audit"
	"github.com/apexvest/backend/internal/config"
	"github.com/apexvest/backend/internal/models"
	"github.com/apexvest/backend/internal/notify"
	"github.com/apexvest/backend/internal/store"
	"github.com/google/uuid"
)

// DistributionService credits copy-trading profit to subscribers and
// the trader's share to the fee collector.
type DistributionService struct {
	db       *sql.DB
	cfg      *config.LedgerConfig
	notifier *notify.Publisher
	audit    *audit.Logger
}

func NewDistributionService(db *sql.DB, cfg *config.LedgerConfig, notifier *notify.Publisher, auditLogger *audit.Logger) *DistributionService {
	return &DistributionService{db: db, cfg: cfg, notifier: notifier, audit: auditLogger}
}

// DistributionResult records the outcome for one subscription in a
// batch. Skipped items carry the reason; applied items carry the
// amounts.
type DistributionResult struct {
	SubscriptionID string `json:"subscription_id"`
	Applied        bool   `json:"applied"`
	Reason         string `json:"reason,omitempty"`
	Profit         int64  `json:"profit"`
	TraderShare    int64  `json:"trader_share"`
	UserNet        int64  `json:"user_net"`
}

// DistributeProfits applies a percentage profit to each subscription
// in one atomic batch. profit = investedAmount x percentage / 100;
// the trader's profit-share cut goes to the fee collector, the net to
// the subscriber's balance and the subscription's valuation. Items
// with missing rows are skipped and recorded; any store fault rolls
// back the entire batch.
func (s *DistributionService) DistributeProfits(ctx context.Context, adminID string, subscriptionIDs []string, percentage float64) ([]DistributionResult, error) {
	if percentage <= 0 {
		return nil, opErrorf(KindInvalidInput, "profit percentage must be positive")
	}
	if len(subscriptionIDs) == 0 {
		return nil, opErrorf(KindInvalidInput, "no subscriptions given")
	}

	results := make([]DistributionResult, 0, len(subscriptionIDs))
	var credited []models.Transaction

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	traders := make(map[string]*models.CopyTrader)
	for _, subID := range subscriptionIDs {
		result := DistributionResult{SubscriptionID: subID}

		sub, err := store.GetSubscriptionForUpdate(tx, subID)
		if err == sql.ErrNoRows {
			result.Reason = "subscription not found"
			results = append(results, result)
			continue
		}
		if err != nil {
			return nil, err
		}
		if !sub.IsActive {
			result.Reason = "subscription not active"
			results = append(results, result)
			continue
		}

		trader, ok := traders[sub.TraderID]
		if !ok {
			trader, err = store.GetTrader(tx, sub.TraderID)
			if err == sql.ErrNoRows {
				result.Reason = "trader not found"
				results = append(results, result)
				continue
			}
			if err != nil {
				return nil, err
			}
			traders[sub.TraderID] = trader
		}

		profit := int64(float64(sub.InvestedAmount) * percentage / 100)
		traderShare := int64(float64(profit) * trader.ProfitShare / 100)
		userNet := profit - traderShare

		// The subscriber lookup can still skip the item, so it must
		// happen before the first write; a skipped item leaves no
		// trace in the committed batch.
		subscriber, err := store.GetAccountForUpdate(tx, sub.UserID)
		if err == sql.ErrNoRows {
			result.Reason = "subscriber account not found"
			results = append(results, result)
			continue
		}
		if err != nil {
			return nil, err
		}

		collector, err := store.GetAccountForUpdate(tx, s.cfg.FeeCollectorID)
		if err != nil {
			return nil, err
		}
		collector.Balance += traderShare
		if err := store.UpdateAccountBalances(tx, collector); err != nil {
			return nil, err
		}
		if err := store.InsertTransaction(tx, &models.Transaction{
			ID:          uuid.New().String(),
			UserID:      s.cfg.FeeCollectorID,
			Amount:      traderShare,
			Type:        models.TxTypeAdminAdjustment,
			Status:      models.TxStatusCompleted,
			Reference:   sub.ID,
			Description: fmt.Sprintf("trader %s profit share", sub.TraderID),
		}); err != nil {
			return nil, err
		}

		subscriber.Balance += userNet
		if err := store.UpdateAccountBalances(tx, subscriber); err != nil {
			return nil, err
		}
		if err := store.UpdateSubscriptionValue(tx, sub.ID, sub.CurrentValue+userNet, sub.PnL+userNet); err != nil {
			return nil, err
		}

		profitTx := models.Transaction{
			ID:          uuid.New().String(),
			UserID:      sub.UserID,
			Amount:      userNet,
			Type:        models.TxTypeCopyTradingProfit,
			Status:      models.TxStatusCompleted,
			Reference:   sub.ID,
			Description: fmt.Sprintf("copy trading profit from %s", sub.TraderID),
		}
		if err := store.InsertTransaction(tx, &profitTx); err != nil {
			return nil, err
		}
		credited = append(credited, profitTx)

		result.Applied = true
		result.Profit = profit
		result.TraderShare = traderShare
		result.UserNet = userNet
		results = append(results, result)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	for _, t := range credited {
		s.notifier.NotifyUser(ctx, t.UserID, "copytrading.profit",
			fmt.Sprintf("Copy trading profit of %d credited", t.Amount))
	}
	s.audit.LogAction(adminID, "PROFITS_DISTRIBUTED", "",
		fmt.Sprintf("batch=%d applied=%d pct=%.2f", len(subscriptionIDs), len(credited), percentage))
	log.Printf("[DISTRIBUTION] batch of %d processed, %d credited", len(subscriptionIDs), len(credited))
	return results, nil
}
