package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"payment-engine/internal/models"
	"payment-engine/internal/services"
)

const (
	payoutBatchSize    = 100
	holdBatchSize      = 100
	webhookRetryBatch  = 50
	webhookStuckBatch  = 100
	webhookStuckWindow = 30 * time.Minute
	webhookRetention   = 90 * 24 * time.Hour

	// Aggregated subscription payouts below this are rolled into the
	// next period instead of paying transfer fees on pennies.
	aggregationMinimumCents = 1000
)

// JobDeps bundles everything the background jobs touch
type JobDeps struct {
	Payouts        *services.PayoutService
	Escrow         *services.EscrowStrategy
	Webhooks       *services.WebhookService
	Reconciliation *services.ReconciliationService
	Orders         services.OrderStore
	PayoutStore    services.PayoutStore
	Accounts       services.AccountStore
	Logger         *logrus.Logger
}

// Registry returns the full background job set
func Registry(deps JobDeps) []Job {
	logger := deps.Logger.WithField("component", "jobs")
	return []Job{
		{
			Name:        "process_pending_payouts",
			Interval:    time.Minute,
			MaxAttempts: 2,
			Backoff:     5 * time.Second,
			Run:         func(ctx context.Context) error { return processPendingPayouts(ctx, deps, logger) },
		},
		{
			Name:     "process_expired_holds",
			Interval: 5 * time.Minute,
			Run:      func(ctx context.Context) error { return processExpiredHolds(ctx, deps, logger) },
		},
		{
			Name:     "retry_failed_webhooks",
			Interval: 5 * time.Minute,
			Run:      func(ctx context.Context) error { return retryFailedWebhooks(ctx, deps, logger) },
		},
		{
			Name:     "requeue_stuck_webhooks",
			Interval: 10 * time.Minute,
			Run:      func(ctx context.Context) error { return requeueStuckWebhooks(ctx, deps, logger) },
		},
		{
			Name:     "cleanup_old_webhooks",
			Interval: 24 * time.Hour,
			Run:      func(ctx context.Context) error { return cleanupOldWebhooks(ctx, deps, logger) },
		},
		{
			Name:        "run_reconciliation",
			Interval:    time.Hour,
			RunOnStart:  true,
			MaxAttempts: 3,
			Backoff:     30 * time.Second,
			Run:         func(ctx context.Context) error { return runReconciliation(ctx, deps) },
		},
		{
			Name:        "create_monthly_subscription_payouts",
			Interval:    24 * time.Hour,
			MaxAttempts: 3,
			Backoff:     time.Minute,
			Run:         func(ctx context.Context) error { return createMonthlySubscriptionPayouts(ctx, deps, logger) },
		},
	}
}

func processPendingPayouts(ctx context.Context, deps JobDeps, logger *logrus.Entry) error {
	payouts, err := deps.Payouts.PendingDue(ctx, time.Now(), payoutBatchSize)
	if err != nil {
		return err
	}
	for i := range payouts {
		if err := deps.Payouts.ExecutePayout(ctx, payouts[i].ID); err != nil {
			logger.WithError(err).WithField("payout_id", payouts[i].ID).Warn("payout execution failed")
		}
	}
	return nil
}

func processExpiredHolds(ctx context.Context, deps JobDeps, logger *logrus.Entry) error {
	holds, err := deps.Orders.ExpiredHolds(ctx, time.Now(), holdBatchSize)
	if err != nil {
		return err
	}
	for i := range holds {
		if err := deps.Escrow.ReleaseHold(ctx, holds[i].PaymentOrderID, "expiration"); err != nil {
			logger.WithError(err).WithField("order_id", holds[i].PaymentOrderID).Warn("hold release failed")
		}
	}
	return nil
}

func retryFailedWebhooks(ctx context.Context, deps JobDeps, logger *logrus.Entry) error {
	retried, err := deps.Webhooks.RetryFailed(ctx, webhookRetryBatch)
	if err != nil {
		return err
	}
	if retried > 0 {
		logger.WithField("count", retried).Info("retried failed webhooks")
	}
	return nil
}

func requeueStuckWebhooks(ctx context.Context, deps JobDeps, logger *logrus.Entry) error {
	requeued, err := deps.Webhooks.RequeueStuck(ctx, time.Now().Add(-webhookStuckWindow), webhookStuckBatch)
	if err != nil {
		return err
	}
	if requeued > 0 {
		logger.WithField("count", requeued).Warn("requeued webhooks stuck in processing")
	}
	return nil
}

func cleanupOldWebhooks(ctx context.Context, deps JobDeps, logger *logrus.Entry) error {
	deleted, err := deps.Webhooks.CleanupProcessed(ctx, time.Now().Add(-webhookRetention))
	if err != nil {
		return err
	}
	if deleted > 0 {
		logger.WithField("count", deleted).Info("deleted old processed webhooks")
	}
	return nil
}

func runReconciliation(ctx context.Context, deps JobDeps) error {
	_, err := deps.Reconciliation.RunReconciliation(ctx)
	return err
}

// createMonthlySubscriptionPayouts aggregates last month's settled
// subscription orders into one payout per recipient. The period tag in
// metadata makes the daily runs idempotent.
func createMonthlySubscriptionPayouts(ctx context.Context, deps JobDeps, logger *logrus.Entry) error {
	now := time.Now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	periodStart := monthStart.AddDate(0, -1, 0)
	period := periodStart.Format("2006-01")

	orders, err := deps.Orders.CompletedSubscriptionOrders(ctx, periodStart)
	if err != nil {
		return err
	}

	type bucket struct {
		netCents int64
		currency string
	}
	byRecipient := make(map[uuid.UUID]*bucket)
	for i := range orders {
		order := &orders[i]
		if order.SettledAt == nil || !order.SettledAt.Before(monthStart) {
			continue
		}
		b, ok := byRecipient[order.RecipientID]
		if !ok {
			b = &bucket{currency: order.Currency}
			byRecipient[order.RecipientID] = b
		}
		b.netCents += order.AmountCents - order.PlatformFeeCents
	}

	for recipientID, b := range byRecipient {
		if b.netCents < aggregationMinimumCents {
			continue
		}
		account, aerr := deps.Accounts.GetByOwner(ctx, recipientID)
		if aerr != nil {
			logger.WithError(aerr).WithField("recipient_id", recipientID).Warn("no connected account for subscription payout")
			continue
		}
		exists, eerr := deps.PayoutStore.HasAggregatedForPeriod(ctx, account.ID, period)
		if eerr != nil {
			return eerr
		}
		if exists {
			continue
		}
		payout := &models.Payout{
			ConnectedAccountID: account.ID,
			AmountCents:        b.netCents,
			Currency:           b.currency,
			State:              models.PayoutPending,
			Metadata: models.JSONB{
				"aggregation_type": "monthly_subscription",
				"period":           period,
			},
		}
		if cerr := deps.PayoutStore.Create(ctx, payout); cerr != nil {
			return fmt.Errorf("create aggregated payout for %s: %w", recipientID, cerr)
		}
		logger.WithFields(logrus.Fields{
			"recipient_id": recipientID,
			"period":       period,
			"amount":       b.netCents,
		}).Info("created monthly subscription payout")
	}
	return nil
}
