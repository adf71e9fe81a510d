package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"payment-engine/internal/gateway"
	"payment-engine/internal/locks"
	"payment-engine/internal/models"
)

// RefundService returns captured funds to payers. Like payouts, execution
// is a two-phase commit around the processor call; completion arrives by
// webhook.
type RefundService struct {
	refunds   RefundStore
	orders    OrderStore
	payouts   PayoutStore
	ledger    *LedgerService
	processor gateway.ProcessorAdapter
	locker    Locker
	publisher EventPublisher
	logger    *logrus.Entry
}

// NewRefundService creates the refund service
func NewRefundService(refunds RefundStore, orders OrderStore, payouts PayoutStore, ledger *LedgerService, processor gateway.ProcessorAdapter, locker Locker, publisher EventPublisher, logger *logrus.Logger) *RefundService {
	return &RefundService{
		refunds:   refunds,
		orders:    orders,
		payouts:   payouts,
		ledger:    ledger,
		processor: processor,
		locker:    locker,
		publisher: publisher,
		logger:    logger.WithField("component", "refund-service"),
	}
}

// RequestRefund validates eligibility and records the refund. A zero
// amount means the full remaining refundable balance. When released funds
// have a payout queued but not yet in flight, the payout is cancelled and
// the funds pulled back into escrow.
func (s *RefundService) RequestRefund(ctx context.Context, orderID uuid.UUID, amountCents int64, reason string) (*models.Refund, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsRefundable() {
		return nil, fmt.Errorf("order in state %s: %w", order.State, models.ErrRefundNotEligible)
	}

	inProgress, err := s.refunds.HasProcessingForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if inProgress {
		return nil, fmt.Errorf("a refund is already in progress for order %s: %w", orderID, models.ErrRefundNotEligible)
	}

	refunded, err := s.refunds.CompletedTotalForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	remaining := order.AmountCents - refunded
	if remaining <= 0 {
		return nil, fmt.Errorf("order %s is fully refunded: %w", orderID, models.ErrRefundNotEligible)
	}
	if amountCents == 0 {
		amountCents = remaining
	}
	if amountCents < 0 || amountCents > remaining {
		return nil, fmt.Errorf("refund amount %d exceeds refundable %d: %w", amountCents, remaining, models.ErrRefundNotEligible)
	}

	payoutCancelled := false
	if order.State == models.OrderReleased || order.State == models.OrderSettled {
		active, aerr := s.payouts.ActiveForOrder(ctx, orderID)
		if aerr != nil {
			return nil, aerr
		}
		for _, p := range active {
			switch p.State {
			case models.PayoutProcessing:
				return nil, fmt.Errorf("payout %s is in flight: %w", p.ID, models.ErrRefundNotEligible)
			case models.PayoutPaid:
				return nil, fmt.Errorf("payout %s already paid out, manual intervention required: %w", p.ID, models.ErrRefundNotEligible)
			}
		}
		payoutCancelled = len(active) > 0
	}

	refund := &models.Refund{
		PaymentOrderID: orderID,
		AmountCents:    amountCents,
		Currency:       order.Currency,
		Reason:         reason,
		State:          models.RefundPending,
		// Escrow still holds the full amount before release, so the fee
		// share goes back to the payer too.
		FeeRefunded: order.State == models.OrderHeld,
		Metadata:    models.JSONB{},
	}
	if err := s.refunds.Create(ctx, refund); err != nil {
		return nil, err
	}

	if payoutCancelled {
		if err := s.cancelPayoutsForRefund(ctx, order, refund); err != nil {
			return nil, err
		}
		refund.Metadata["payout_cancelled"] = true
		if err := s.refunds.UpdateGuarded(ctx, refund); err != nil {
			return nil, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"refund_id": refund.ID,
		"order_id":  orderID,
		"amount":    amountCents,
	}).Info("refund requested")
	return refund, nil
}

// cancelPayoutsForRefund pulls queued payouts back: the payout is
// cancelled and the recipient's credited balance moves back into escrow.
func (s *RefundService) cancelPayoutsForRefund(ctx context.Context, order *models.PaymentOrder, refund *models.Refund) error {
	active, err := s.payouts.ActiveForOrder(ctx, order.ID)
	if err != nil {
		return err
	}

	user, err := s.ledger.UserAccount(ctx, order.RecipientID, order.Currency)
	if err != nil {
		return err
	}
	escrow, err := s.ledger.SystemAccount(ctx, models.AccountPlatformEscrow)
	if err != nil {
		return err
	}

	orderID := order.ID
	for i := range active {
		payout := &active[i]
		if err := payout.Transition(models.PayoutCancelled); err != nil {
			return err
		}
		if err := s.payouts.UpdateGuarded(ctx, payout); err != nil {
			return err
		}
		entries := []models.LedgerEntry{
			{
				DebitAccountID:  user.ID,
				CreditAccountID: escrow.ID,
				AmountCents:     payout.AmountCents,
				Currency:        payout.Currency,
				EntryType:       models.EntryTransfer,
				IdempotencyKey:  RefundPayoutCancelKey(refund.ID, payout.ID),
				PaymentOrderID:  &orderID,
			},
		}
		if _, err := s.ledger.Post(ctx, entries); err != nil {
			return fmt.Errorf("payout cancellation ledger: %w", err)
		}
	}
	return nil
}

// ExecuteRefund sends the refund to the processor. Same two-phase shape
// as payout execution.
func (s *RefundService) ExecuteRefund(ctx context.Context, refundID uuid.UUID) error {
	lock, err := s.locker.Acquire(ctx, locks.RefundExecuteKey(refundID), locks.RefundExecuteTTL, locks.RefundExecuteTimeout)
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	refund, err := s.refunds.GetByID(ctx, refundID)
	if err != nil {
		return err
	}
	if refund.State == models.RefundCompleted {
		return nil
	}
	if refund.State == models.RefundProcessing && refund.ProcessorRefundID != "" {
		// Already at the processor, waiting for the webhook.
		return nil
	}

	order, err := s.orders.GetByID(ctx, refund.PaymentOrderID)
	if err != nil {
		return err
	}

	refund.Attempt++
	if err := refund.Transition(models.RefundProcessing); err != nil {
		return err
	}
	if err := s.refunds.UpdateGuarded(ctx, refund); err != nil {
		return err
	}

	result, err := s.processor.CreateRefund(ctx, &gateway.RefundRequest{
		IntentID:       order.ProcessorIntentID,
		ChargeID:       order.ProcessorChargeID,
		AmountCents:    refund.AmountCents,
		Reason:         refund.Reason,
		IdempotencyKey: gateway.IdempotencyKey("create_refund", refund.ID, refund.Attempt),
		Metadata: map[string]string{
			"refund_id": refund.ID.String(),
			"order_id":  order.ID.String(),
		},
	})
	if err != nil {
		if gateway.IsRetryable(err) {
			s.logger.WithError(err).WithField("refund_id", refund.ID).Warn("transient refund failure, refund stays in flight")
			return fmt.Errorf("create refund: %w", err)
		}
		refund.FailureReason = err.Error()
		if terr := refund.Transition(models.RefundFailed); terr != nil {
			return terr
		}
		if uerr := s.refunds.UpdateGuarded(ctx, refund); uerr != nil {
			return uerr
		}
		return fmt.Errorf("create refund: %w", err)
	}

	refund.ProcessorRefundID = result.RefundID
	if err := s.refunds.UpdateGuarded(ctx, refund); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"refund_id":    refund.ID,
		"processor_id": result.RefundID,
	}).Info("refund created at processor")
	return nil
}

// CompleteRefund finalizes a processor-confirmed refund: the reversal is
// posted, the order state reflects partial or full refund, and any open
// hold is closed.
func (s *RefundService) CompleteRefund(ctx context.Context, refund *models.Refund) error {
	if refund.State == models.RefundCompleted {
		return nil
	}

	order, err := s.orders.GetByID(ctx, refund.PaymentOrderID)
	if err != nil {
		return err
	}

	// Funds came out of escrow when the order was still held or when the
	// queued payout was pulled back; otherwise the recipient's balance
	// takes the reversal.
	fromEscrow := refund.FeeRefunded
	if cancelled, ok := refund.Metadata["payout_cancelled"].(bool); ok && cancelled {
		fromEscrow = true
	}

	var source *models.LedgerAccount
	if fromEscrow {
		source, err = s.ledger.SystemAccount(ctx, models.AccountPlatformEscrow)
	} else {
		source, err = s.ledger.UserAccount(ctx, order.RecipientID, order.Currency)
	}
	if err != nil {
		return err
	}
	external, err := s.ledger.SystemAccount(ctx, models.AccountExternalStripe)
	if err != nil {
		return err
	}

	orderID := order.ID
	entries := []models.LedgerEntry{
		{
			DebitAccountID:  source.ID,
			CreditAccountID: external.ID,
			AmountCents:     refund.AmountCents,
			Currency:        refund.Currency,
			EntryType:       models.EntryRefund,
			IdempotencyKey:  RefundReversalKey(refund.ID),
			PaymentOrderID:  &orderID,
		},
	}
	if _, err := s.ledger.Post(ctx, entries); err != nil {
		return fmt.Errorf("refund reversal ledger: %w", err)
	}

	if err := refund.Transition(models.RefundCompleted); err != nil {
		return err
	}
	if err := s.refunds.UpdateGuarded(ctx, refund); err != nil {
		return err
	}

	refunded, err := s.refunds.CompletedTotalForOrder(ctx, orderID)
	if err != nil {
		return err
	}
	target := models.OrderPartiallyRefunded
	if refunded >= order.AmountCents {
		target = models.OrderRefunded
	}
	if order.State != target {
		if err := order.Transition(target); err != nil {
			return err
		}
		if err := s.orders.UpdateGuarded(ctx, order); err != nil {
			return err
		}
	}

	if hold, herr := s.orders.GetHoldByOrder(ctx, orderID); herr == nil && !hold.Released {
		now := time.Now()
		hold.Released = true
		hold.ReleasedAt = &now
		hold.ReleaseReason = "refund"
		if uerr := s.orders.UpdateHold(ctx, hold); uerr != nil {
			return uerr
		}
	}

	if s.publisher != nil {
		s.publisher.RefundCompleted(ctx, refund)
	}
	s.logger.WithFields(logrus.Fields{
		"refund_id": refund.ID,
		"order_id":  orderID,
		"state":     target,
	}).Info("refund completed")
	return nil
}

// HandleChargeRefunded resolves a refund webhook by processor refund id
func (s *RefundService) HandleChargeRefunded(ctx context.Context, processorRefundID string) error {
	refund, err := s.refunds.GetByProcessorID(ctx, processorRefundID)
	if err != nil {
		return err
	}
	return s.CompleteRefund(ctx, refund)
}

// GetRefund loads a refund by id
func (s *RefundService) GetRefund(ctx context.Context, refundID uuid.UUID) (*models.Refund, error) {
	return s.refunds.GetByID(ctx, refundID)
}

// ListRefunds lists refunds for an order
func (s *RefundService) ListRefunds(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	return s.refunds.ListByOrder(ctx, orderID)
}
