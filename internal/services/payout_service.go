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

// PayoutService executes transfers to connected accounts. Execution is a
// two-phase commit: state goes to PROCESSING before the processor call, so
// a crash between phases leaves a PROCESSING payout for reconciliation to
// settle instead of a double transfer.
type PayoutService struct {
	payouts   PayoutStore
	orders    OrderStore
	accounts  AccountStore
	ledger    *LedgerService
	processor gateway.ProcessorAdapter
	locker    Locker
	publisher EventPublisher
	logger    *logrus.Entry
}

// NewPayoutService creates the payout service
func NewPayoutService(payouts PayoutStore, orders OrderStore, accounts AccountStore, ledger *LedgerService, processor gateway.ProcessorAdapter, locker Locker, publisher EventPublisher, logger *logrus.Logger) *PayoutService {
	return &PayoutService{
		payouts:   payouts,
		orders:    orders,
		accounts:  accounts,
		ledger:    ledger,
		processor: processor,
		locker:    locker,
		publisher: publisher,
		logger:    logger.WithField("component", "payout-service"),
	}
}

// ExecutePayout sends the transfer for a pending or scheduled payout.
// Concurrent executions of the same payout are serialized by a
// distributed lock; the loser sees either PAID or PROCESSING and does not
// call the processor again.
func (s *PayoutService) ExecutePayout(ctx context.Context, payoutID uuid.UUID) error {
	lock, err := s.locker.Acquire(ctx, locks.PayoutExecuteKey(payoutID), locks.PayoutExecuteTTL, locks.PayoutExecuteTimeout)
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	payout, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return err
	}

	// Phase 1: validate and mark in flight.
	switch payout.State {
	case models.PayoutPaid:
		return nil
	case models.PayoutFailed:
		return fmt.Errorf("payout %s failed, retry it first: %w", payoutID, models.ErrPayoutNotExecutable)
	case models.PayoutCancelled:
		return fmt.Errorf("payout %s is cancelled: %w", payoutID, models.ErrPayoutNotExecutable)
	case models.PayoutProcessing:
		return fmt.Errorf("payout %s already in flight: %w", payoutID, models.ErrPayoutNotExecutable)
	}
	if payout.AmountCents <= 0 {
		return fmt.Errorf("payout %s has non-positive amount: %w", payoutID, models.ErrPayoutNotExecutable)
	}

	account, err := s.accounts.GetByID(ctx, payout.ConnectedAccountID)
	if err != nil {
		return err
	}
	if !account.ReadyForPayouts() {
		return fmt.Errorf("connected account %s not ready for payouts: %w", account.ID, models.ErrPayoutNotExecutable)
	}

	payout.Attempt++
	if err := payout.Transition(models.PayoutProcessing); err != nil {
		return err
	}
	if err := s.payouts.UpdateGuarded(ctx, payout); err != nil {
		return err
	}

	// Phase 2: the processor call, idempotent per attempt.
	transfer, err := s.processor.CreateTransfer(ctx, &gateway.TransferRequest{
		DestinationAccountID: account.ProcessorAccountID,
		AmountCents:          payout.AmountCents,
		Currency:             payout.Currency,
		IdempotencyKey:       gateway.IdempotencyKey("create_transfer", payout.ID, payout.Attempt),
		Metadata: map[string]string{
			"payout_id": payout.ID.String(),
		},
	})
	if err != nil {
		if gateway.IsRetryable(err) {
			// Leave PROCESSING so reconciliation can find a transfer that
			// may have been created despite the error.
			s.logger.WithError(err).WithField("payout_id", payout.ID).Warn("transient transfer failure, payout stays in flight")
			return fmt.Errorf("create transfer: %w", err)
		}
		payout.FailureReason = err.Error()
		if terr := payout.Transition(models.PayoutFailed); terr != nil {
			return terr
		}
		if uerr := s.payouts.UpdateGuarded(ctx, payout); uerr != nil {
			return uerr
		}
		return fmt.Errorf("create transfer: %w", err)
	}

	// Phase 3: record the transfer id. The payout stays PROCESSING until
	// the processor confirms via webhook.
	payout.ProcessorTransferID = transfer.ID
	if err := s.payouts.UpdateGuarded(ctx, payout); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"payout_id":   payout.ID,
		"transfer_id": transfer.ID,
		"amount":      payout.AmountCents,
	}).Info("transfer created")
	return nil
}

// findByTransfer resolves the payout for an incoming transfer webhook,
// falling back to the payout_id metadata when the transfer id was never
// persisted.
func (s *PayoutService) findByTransfer(ctx context.Context, transfer *gateway.Transfer) (*models.Payout, error) {
	payout, err := s.payouts.GetByTransferID(ctx, transfer.ID)
	if err == nil {
		return payout, nil
	}
	if raw, ok := transfer.Metadata["payout_id"]; ok {
		payoutID, perr := uuid.Parse(raw)
		if perr != nil {
			return nil, fmt.Errorf("transfer %s carries malformed payout_id %q", transfer.ID, raw)
		}
		return s.payouts.GetByID(ctx, payoutID)
	}
	return nil, err
}

// HandleTransferCreated acknowledges the transfer: the payout moves to
// SCHEDULED and the transfer id is persisted if the crash window ate it.
func (s *PayoutService) HandleTransferCreated(ctx context.Context, transfer *gateway.Transfer) error {
	payout, err := s.findByTransfer(ctx, transfer)
	if err != nil {
		return err
	}
	if payout.State != models.PayoutProcessing {
		return nil
	}
	payout.ProcessorTransferID = transfer.ID
	if err := payout.Transition(models.PayoutScheduled); err != nil {
		return err
	}
	return s.payouts.UpdateGuarded(ctx, payout)
}

// CompletePayoutPaid finalizes a confirmed transfer: payout PAID, the
// recipient balance is debited to the external account, and the parent
// order settles.
func (s *PayoutService) CompletePayoutPaid(ctx context.Context, transfer *gateway.Transfer) error {
	payout, err := s.findByTransfer(ctx, transfer)
	if err != nil {
		return err
	}
	if payout.State == models.PayoutPaid {
		return nil
	}

	payout.ProcessorTransferID = transfer.ID
	if payout.State == models.PayoutScheduled {
		if err := payout.Transition(models.PayoutProcessing); err != nil {
			return err
		}
	}
	if err := payout.Transition(models.PayoutPaid); err != nil {
		return err
	}

	account, err := s.accounts.GetByID(ctx, payout.ConnectedAccountID)
	if err != nil {
		return err
	}
	user, err := s.ledger.UserAccount(ctx, account.OwnerID, payout.Currency)
	if err != nil {
		return err
	}
	external, err := s.ledger.SystemAccount(ctx, models.AccountExternalStripe)
	if err != nil {
		return err
	}

	payoutID := payout.ID
	entries := []models.LedgerEntry{
		{
			DebitAccountID:  user.ID,
			CreditAccountID: external.ID,
			AmountCents:     payout.AmountCents,
			Currency:        payout.Currency,
			EntryType:       models.EntryPayout,
			IdempotencyKey:  PayoutCompletionKey(payoutID),
			PaymentOrderID:  payout.PaymentOrderID,
		},
	}
	if _, err := s.ledger.Post(ctx, entries); err != nil {
		return fmt.Errorf("payout completion ledger: %w", err)
	}

	if err := s.payouts.UpdateGuarded(ctx, payout); err != nil {
		return err
	}

	if payout.PaymentOrderID != nil {
		order, oerr := s.orders.GetByID(ctx, *payout.PaymentOrderID)
		if oerr != nil {
			return oerr
		}
		if order.State == models.OrderReleased {
			if terr := order.Transition(models.OrderSettled); terr != nil {
				return terr
			}
			if uerr := s.orders.UpdateGuarded(ctx, order); uerr != nil {
				return uerr
			}
			if s.publisher != nil {
				s.publisher.PaymentSettled(ctx, order)
			}
		}
	}

	if s.publisher != nil {
		s.publisher.PayoutPaid(ctx, payout)
	}
	s.logger.WithFields(logrus.Fields{
		"payout_id":   payout.ID,
		"transfer_id": transfer.ID,
	}).Info("payout paid")
	return nil
}

// HandleTransferFailed marks the payout FAILED with the processor's reason
func (s *PayoutService) HandleTransferFailed(ctx context.Context, transfer *gateway.Transfer, reason string) error {
	payout, err := s.findByTransfer(ctx, transfer)
	if err != nil {
		return err
	}
	if payout.State == models.PayoutFailed {
		return nil
	}
	if payout.State == models.PayoutScheduled {
		if err := payout.Transition(models.PayoutProcessing); err != nil {
			return err
		}
	}
	if err := payout.Transition(models.PayoutFailed); err != nil {
		return err
	}
	payout.FailureReason = reason
	return s.payouts.UpdateGuarded(ctx, payout)
}

// RetryPayout re-arms a failed payout for another execution attempt
func (s *PayoutService) RetryPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if err := payout.Transition(models.PayoutPending); err != nil {
		return nil, err
	}
	payout.FailureReason = ""
	if err := s.payouts.UpdateGuarded(ctx, payout); err != nil {
		return nil, err
	}
	return payout, nil
}

// CancelPayout cancels a payout that has not reached the processor. An
// in-flight payout cannot be cancelled.
func (s *PayoutService) CancelPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	payout, err := s.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.State == models.PayoutCancelled {
		return payout, nil
	}
	if payout.State == models.PayoutProcessing {
		return nil, fmt.Errorf("payout %s is in flight and cannot be cancelled", payoutID)
	}
	if err := payout.Transition(models.PayoutCancelled); err != nil {
		return nil, err
	}
	if err := s.payouts.UpdateGuarded(ctx, payout); err != nil {
		return nil, err
	}
	return payout, nil
}

// PendingDue lists payouts whose scheduled time has arrived
func (s *PayoutService) PendingDue(ctx context.Context, now time.Time, limit int) ([]models.Payout, error) {
	return s.payouts.PendingDue(ctx, now, limit)
}

// GetPayout loads a payout by id
func (s *PayoutService) GetPayout(ctx context.Context, payoutID uuid.UUID) (*models.Payout, error) {
	return s.payouts.GetByID(ctx, payoutID)
}
