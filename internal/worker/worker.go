package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"MarketSettle/internal/models"
)

// AccountSource lists payout accounts that still need a status refresh.
type AccountSource interface {
	ListPendingPayoutAccounts(ctx context.Context, limit int) ([]models.PayoutAccount, error)
	CountPaidOrders(ctx context.Context, sellerID string) (int64, error)
}

type Refresher interface {
	RefreshStatus(ctx context.Context, sellerID string) (*models.PayoutAccount, error)
}

// Worker periodically reconciles incomplete payout accounts with the
// provider so sellers blocked at paid are unblocked without a webhook.
type Worker struct {
	Store     AccountSource
	Payouts   Refresher
	Interval  time.Duration
	BatchSize int
	Logger    *slog.Logger
}

// SyncStats summarizes one reconciliation pass.
type SyncStats struct {
	Checked   int
	Onboarded int
	Failed    int
	Blocked   int
}

func (w *Worker) log() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return slog.Default()
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := w.SyncOnce(ctx); err != nil {
			w.log().Error("payout sync failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SyncOnce refreshes one batch of pending accounts. Per-account failures are
// logged and counted; only a failure to list the batch is returned.
func (w *Worker) SyncOnce(ctx context.Context) (SyncStats, error) {
	var stats SyncStats
	accounts, err := w.Store.ListPendingPayoutAccounts(ctx, w.BatchSize)
	if err != nil {
		return stats, err
	}
	if len(accounts) == 0 {
		return stats, nil
	}

	for _, acct := range accounts {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Checked++
		updated, err := w.Payouts.RefreshStatus(ctx, acct.SellerID)
		if err != nil {
			stats.Failed++
			if !errors.Is(err, models.ErrProviderUnavailable) {
				w.log().Error("payout refresh failed", "seller_id", acct.SellerID, "error", err)
			}
		}
		if updated != nil && updated.FullyOnboarded() {
			stats.Onboarded++
			continue
		}

		paid, err := w.Store.CountPaidOrders(ctx, acct.SellerID)
		if err != nil {
			w.log().Error("count paid orders failed", "seller_id", acct.SellerID, "error", err)
			continue
		}
		if paid > 0 {
			stats.Blocked++
			w.log().Warn("seller has paid orders awaiting payout onboarding",
				"seller_id", acct.SellerID, "paid_orders", paid)
		}
	}

	w.log().Info("payout sync",
		"checked", stats.Checked,
		"onboarded", stats.Onboarded,
		"failed", stats.Failed,
		"blocked", stats.Blocked,
	)
	return stats, nil
}
