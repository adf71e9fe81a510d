package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"payment-engine/internal/gateway"
	"payment-engine/internal/locks"
	"payment-engine/internal/models"
)

// Reconciliation sweep parameters
const (
	ReconciliationLookback  = 24 * time.Hour
	ReconciliationStuck     = 2 * time.Hour
	ReconciliationBatchSize = 500

	transferSearchWindow = 48 * time.Hour
	transferSearchLimit  = 100
)

// ReconciliationService sweeps entities stuck between local state and the
// processor's, records every mismatch, and heals the ones a webhook
// replay would have fixed. Healing runs under per-entity locks so a late
// webhook and the sweeper never apply the same fix twice.
type ReconciliationService struct {
	store        ReconciliationStore
	orders       OrderStore
	payouts      PayoutStore
	orchestrator *PaymentOrchestrator
	payoutSvc    *PayoutService
	processor    gateway.ProcessorAdapter
	locker       Locker
	publisher    EventPublisher
	logger       *logrus.Entry
}

// NewReconciliationService creates the reconciliation service
func NewReconciliationService(store ReconciliationStore, orders OrderStore, payouts PayoutStore, orchestrator *PaymentOrchestrator, payoutSvc *PayoutService, processor gateway.ProcessorAdapter, locker Locker, publisher EventPublisher, logger *logrus.Logger) *ReconciliationService {
	return &ReconciliationService{
		store:        store,
		orders:       orders,
		payouts:      payouts,
		orchestrator: orchestrator,
		payoutSvc:    payoutSvc,
		processor:    processor,
		locker:       locker,
		publisher:    publisher,
		logger:       logger.WithField("component", "reconciliation"),
	}
}

// RunReconciliation performs one sweep. A cluster-wide lock keeps runs
// from overlapping across instances.
func (s *ReconciliationService) RunReconciliation(ctx context.Context) (*models.ReconciliationRun, error) {
	lock, err := s.locker.Acquire(ctx, locks.ReconciliationRunKey(), locks.ReconciliationTTL, locks.ReconciliationWait)
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	run := &models.ReconciliationRun{
		StartedAt:           time.Now(),
		LookbackHours:       int(ReconciliationLookback.Hours()),
		StuckThresholdHours: int(ReconciliationStuck.Hours()),
		Status:              models.RunInProgress,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	if err := s.sweep(ctx, run); err != nil {
		run.Status = models.RunFailed
		run.ErrorMessage = err.Error()
		now := time.Now()
		run.CompletedAt = &now
		if uerr := s.store.UpdateRun(ctx, run); uerr != nil {
			s.logger.WithError(uerr).Error("failed to record failed run")
		}
		return run, err
	}

	run.Status = models.RunCompleted
	now := time.Now()
	run.CompletedAt = &now
	if err := s.store.UpdateRun(ctx, run); err != nil {
		return run, err
	}

	s.logger.WithFields(logrus.Fields{
		"run_id":        run.ID,
		"orders":        run.PaymentOrdersChecked,
		"payouts":       run.PayoutsChecked,
		"discrepancies": run.DiscrepanciesFound,
		"auto_healed":   run.AutoHealed,
	}).Info("reconciliation run completed")
	return run, nil
}

func (s *ReconciliationService) sweep(ctx context.Context, run *models.ReconciliationRun) error {
	if err := s.checkPaymentOrders(ctx, run); err != nil {
		return fmt.Errorf("check payment orders: %w", err)
	}
	if err := s.checkPayouts(ctx, run); err != nil {
		return fmt.Errorf("check payouts: %w", err)
	}
	return nil
}

func (s *ReconciliationService) checkPaymentOrders(ctx context.Context, run *models.ReconciliationRun) error {
	now := time.Now()
	orders, err := s.orders.StuckProcessing(ctx, now.Add(-ReconciliationStuck), now.Add(-ReconciliationLookback), ReconciliationBatchSize)
	if err != nil {
		return err
	}

	for i := range orders {
		order := &orders[i]
		run.PaymentOrdersChecked++

		if order.ProcessorIntentID == "" {
			s.flag(ctx, run, &models.ReconciliationDiscrepancy{
				EntityType:      "payment_order",
				EntityID:        order.ID,
				DiscrepancyType: models.DiscrepancyPaymentStuckInProcessing,
				LocalState:      string(order.State),
				Details:         models.JSONB{"reason": "no processor intent recorded"},
			})
			continue
		}

		intent, ierr := s.processor.GetPaymentIntent(ctx, order.ProcessorIntentID)
		if ierr != nil {
			s.logger.WithError(ierr).WithField("order_id", order.ID).Warn("could not fetch intent during sweep")
			continue
		}

		switch intent.Status {
		case gateway.IntentStatusSucceeded:
			dtype := models.DiscrepancyStripeSucceededLocalProcessing
			if order.State == models.OrderPending {
				dtype = models.DiscrepancyStripeSucceededLocalPending
			}
			s.heal(ctx, run, &models.ReconciliationDiscrepancy{
				EntityType:      "payment_order",
				EntityID:        order.ID,
				ProcessorID:     intent.ID,
				DiscrepancyType: dtype,
				LocalState:      string(order.State),
				ProcessorState:  intent.Status,
			}, "applied missed payment confirmation", func(ctx context.Context) error {
				return s.orchestrator.HandleIntentSucceeded(ctx, order.ProcessorIntentID, intent)
			})
		case gateway.IntentStatusFailed:
			s.heal(ctx, run, &models.ReconciliationDiscrepancy{
				EntityType:      "payment_order",
				EntityID:        order.ID,
				ProcessorID:     intent.ID,
				DiscrepancyType: models.DiscrepancyStripeFailedLocalProcessing,
				LocalState:      string(order.State),
				ProcessorState:  intent.Status,
			}, "applied missed payment failure", func(ctx context.Context) error {
				return s.orchestrator.HandleIntentFailed(ctx, order.ProcessorIntentID, "reconciliation", "intent failed at processor")
			})
		case gateway.IntentStatusCanceled:
			s.heal(ctx, run, &models.ReconciliationDiscrepancy{
				EntityType:      "payment_order",
				EntityID:        order.ID,
				ProcessorID:     intent.ID,
				DiscrepancyType: models.DiscrepancyStripeCanceledLocalActive,
				LocalState:      string(order.State),
				ProcessorState:  intent.Status,
			}, "cancelled order for cancelled intent", func(ctx context.Context) error {
				return s.orchestrator.HandleIntentCanceled(ctx, order.ProcessorIntentID)
			})
		default:
			// Still pending at the processor too, just slow.
		}
	}
	return nil
}

func (s *ReconciliationService) checkPayouts(ctx context.Context, run *models.ReconciliationRun) error {
	now := time.Now()
	payouts, err := s.payouts.StuckProcessing(ctx, now.Add(-ReconciliationStuck), now.Add(-ReconciliationLookback), ReconciliationBatchSize)
	if err != nil {
		return err
	}

	for i := range payouts {
		payout := &payouts[i]
		run.PayoutsChecked++

		if payout.ProcessorTransferID == "" {
			s.checkOrphanedTransfer(ctx, run, payout)
			continue
		}

		transfer, terr := s.processor.GetTransfer(ctx, payout.ProcessorTransferID)
		if terr != nil {
			s.logger.WithError(terr).WithField("payout_id", payout.ID).Warn("could not fetch transfer during sweep")
			continue
		}

		if transfer.Reversed {
			s.heal(ctx, run, &models.ReconciliationDiscrepancy{
				EntityType:      "payout",
				EntityID:        payout.ID,
				ProcessorID:     transfer.ID,
				DiscrepancyType: models.DiscrepancyTransferFailedLocalProcessing,
				LocalState:      string(payout.State),
				ProcessorState:  "reversed",
			}, "applied missed transfer reversal", func(ctx context.Context) error {
				return s.payoutSvc.HandleTransferFailed(ctx, transfer, "transfer reversed at processor")
			})
			continue
		}

		dtype := models.DiscrepancyTransferPaidLocalProcessing
		if payout.State == models.PayoutScheduled {
			dtype = models.DiscrepancyTransferPaidLocalScheduled
		}
		s.heal(ctx, run, &models.ReconciliationDiscrepancy{
			EntityType:      "payout",
			EntityID:        payout.ID,
			ProcessorID:     transfer.ID,
			DiscrepancyType: dtype,
			LocalState:      string(payout.State),
			ProcessorState:  "paid",
		}, "applied missed transfer confirmation", func(ctx context.Context) error {
			return s.payoutSvc.CompletePayoutPaid(ctx, transfer)
		})
	}
	return nil
}

// checkOrphanedTransfer handles the crash window between creating the
// transfer and persisting its id: recent transfers are searched by the
// payout_id metadata written at creation.
func (s *ReconciliationService) checkOrphanedTransfer(ctx context.Context, run *models.ReconciliationRun, payout *models.Payout) {
	transfers, err := s.processor.ListRecentTransfers(ctx, time.Now().Add(-transferSearchWindow), transferSearchLimit)
	if err != nil {
		s.logger.WithError(err).Warn("could not list recent transfers during sweep")
		return
	}

	for i := range transfers {
		transfer := &transfers[i]
		if transfer.Metadata["payout_id"] != payout.ID.String() {
			continue
		}
		s.heal(ctx, run, &models.ReconciliationDiscrepancy{
			EntityType:      "payout",
			EntityID:        payout.ID,
			ProcessorID:     transfer.ID,
			DiscrepancyType: models.DiscrepancyTransferExistsNoLocalID,
			LocalState:      string(payout.State),
			ProcessorState:  "created",
			Details:         models.JSONB{"recovered_transfer_id": transfer.ID},
		}, "recovered transfer id from metadata", func(ctx context.Context) error {
			return s.payoutSvc.HandleTransferCreated(ctx, transfer)
		})
		return
	}

	s.flag(ctx, run, &models.ReconciliationDiscrepancy{
		EntityType:      "payout",
		EntityID:        payout.ID,
		DiscrepancyType: models.DiscrepancyPayoutStuckInProcessing,
		LocalState:      string(payout.State),
		Details:         models.JSONB{"reason": "no transfer id and no matching recent transfer"},
	})
}

// flag records a discrepancy that needs a human
func (s *ReconciliationService) flag(ctx context.Context, run *models.ReconciliationRun, d *models.ReconciliationDiscrepancy) {
	d.RunID = run.ID
	d.Resolution = models.ResolutionFlaggedForReview
	run.DiscrepanciesFound++
	run.FlaggedForReview++
	if err := s.store.CreateDiscrepancy(ctx, d); err != nil {
		s.logger.WithError(err).Error("failed to record discrepancy")
		return
	}
	if s.publisher != nil {
		s.publisher.DiscrepancyFlagged(ctx, d)
	}
}

// heal records the discrepancy and applies the fix under a per-entity
// lock. Losing the lock means a concurrent webhook is already applying
// the same fix, so the finding is left for the next sweep.
func (s *ReconciliationService) heal(ctx context.Context, run *models.ReconciliationRun, d *models.ReconciliationDiscrepancy, action string, fix func(ctx context.Context) error) {
	d.RunID = run.ID
	run.DiscrepanciesFound++

	lock, err := s.locker.Acquire(ctx, locks.HealKey(d.EntityType, d.EntityID), locks.HealTTL, 0)
	if err != nil {
		s.logger.WithField("entity_id", d.EntityID).Debug("heal lock busy, skipping")
		run.DiscrepanciesFound--
		return
	}
	defer lock.Release(ctx)

	if ferr := fix(ctx); ferr != nil {
		d.Resolution = models.ResolutionFailedToHeal
		d.ErrorMessage = ferr.Error()
		run.FailedToHeal++
		s.logger.WithError(ferr).WithFields(logrus.Fields{
			"entity_type": d.EntityType,
			"entity_id":   d.EntityID,
			"type":        d.DiscrepancyType,
		}).Error("failed to heal discrepancy")
	} else {
		d.Resolution = models.ResolutionAutoHealed
		d.ActionTaken = action
		run.AutoHealed++
	}

	if cerr := s.store.CreateDiscrepancy(ctx, d); cerr != nil {
		s.logger.WithError(cerr).Error("failed to record discrepancy")
	}
}
