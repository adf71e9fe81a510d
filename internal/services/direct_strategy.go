package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"payment-engine/internal/gateway"
	"payment-engine/internal/models"
)

// DirectStrategy captures, takes the platform fee, and settles to the
// recipient's balance in one step.
type DirectStrategy struct {
	baseStrategy
}

// NewDirectStrategy creates the direct payment strategy
func NewDirectStrategy(deps StrategyDeps) *DirectStrategy {
	return &DirectStrategy{baseStrategy: newBaseStrategy(deps, "direct")}
}

// Flow returns the strategy tag
func (s *DirectStrategy) Flow() models.PaymentFlow {
	return models.FlowDirect
}

// CreatePayment starts collection with the processor
func (s *DirectStrategy) CreatePayment(ctx context.Context, order *models.PaymentOrder) (*gateway.IntentResult, error) {
	return s.createIntent(ctx, order)
}

// HandlePaymentSucceeded captures and settles in a single pass:
// the full amount moves in from the processor, the fee is taken, and the
// remainder lands on the recipient's balance.
func (s *DirectStrategy) HandlePaymentSucceeded(ctx context.Context, order *models.PaymentOrder, intent *gateway.Intent) error {
	if order.State == models.OrderSettled || order.State == models.OrderCaptured {
		return nil
	}
	if err := s.markProcessing(order); err != nil {
		return err
	}
	if err := order.Transition(models.OrderCaptured); err != nil {
		return err
	}

	fee := s.PlatformFee(order.AmountCents)
	entries, err := s.captureEntries(ctx, order, fee)
	if err != nil {
		return err
	}
	if _, err := s.deps.Ledger.Post(ctx, entries); err != nil {
		return fmt.Errorf("direct capture ledger: %w", err)
	}

	order.PlatformFeeCents = fee
	if intent != nil && intent.ChargeID != "" {
		order.ProcessorChargeID = intent.ChargeID
	}
	if err := order.Transition(models.OrderSettled); err != nil {
		return err
	}
	if err := s.deps.Orders.UpdateGuarded(ctx, order); err != nil {
		return err
	}

	if s.deps.Publisher != nil {
		s.deps.Publisher.PaymentSettled(ctx, order)
	}
	s.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"amount":   order.AmountCents,
		"fee":      fee,
	}).Info("direct payment settled")
	return nil
}

// HandlePaymentFailed moves the order to FAILED
func (s *DirectStrategy) HandlePaymentFailed(ctx context.Context, order *models.PaymentOrder, code, message string) error {
	return s.failPayment(ctx, order, code, message)
}

func (s *DirectStrategy) captureEntries(ctx context.Context, order *models.PaymentOrder, fee int64) ([]models.LedgerEntry, error) {
	external, err := s.deps.Ledger.SystemAccount(ctx, models.AccountExternalStripe)
	if err != nil {
		return nil, err
	}
	escrow, err := s.deps.Ledger.SystemAccount(ctx, models.AccountPlatformEscrow)
	if err != nil {
		return nil, err
	}
	revenue, err := s.deps.Ledger.SystemAccount(ctx, models.AccountPlatformRevenue)
	if err != nil {
		return nil, err
	}
	user, err := s.deps.Ledger.UserAccount(ctx, order.RecipientID, order.Currency)
	if err != nil {
		return nil, err
	}

	orderID := order.ID
	entries := []models.LedgerEntry{
		{
			DebitAccountID:  external.ID,
			CreditAccountID: escrow.ID,
			AmountCents:     order.AmountCents,
			Currency:        order.Currency,
			EntryType:       models.EntryPaymentReceived,
			IdempotencyKey:  PaymentReceivedKey(orderID),
			PaymentOrderID:  &orderID,
		},
	}
	// Sub-7-cent payments truncate to a zero fee; the ledger rejects
	// zero-amount entries, so no fee entry is posted.
	if fee > 0 {
		entries = append(entries, models.LedgerEntry{
			DebitAccountID:  escrow.ID,
			CreditAccountID: revenue.ID,
			AmountCents:     fee,
			Currency:        order.Currency,
			EntryType:       models.EntryFeeCollected,
			IdempotencyKey:  PaymentFeeKey(orderID),
			PaymentOrderID:  &orderID,
		})
	}
	entries = append(entries, models.LedgerEntry{
		DebitAccountID:  escrow.ID,
		CreditAccountID: user.ID,
		AmountCents:     order.AmountCents - fee,
		Currency:        order.Currency,
		EntryType:       models.EntryPaymentReleased,
		IdempotencyKey:  PaymentReleaseKey(orderID),
		PaymentOrderID:  &orderID,
	})
	return entries, nil
}
