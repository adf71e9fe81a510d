package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"payment-engine/internal/gateway"
	"payment-engine/internal/models"
)

// SubscriptionStrategy manages recurring billing. The processor owns the
// billing cycle; each paid invoice spawns a settled child payment order.
type SubscriptionStrategy struct {
	baseStrategy
}

// NewSubscriptionStrategy creates the subscription payment strategy
func NewSubscriptionStrategy(deps StrategyDeps) *SubscriptionStrategy {
	return &SubscriptionStrategy{baseStrategy: newBaseStrategy(deps, "subscription")}
}

// Flow returns the strategy tag
func (s *SubscriptionStrategy) Flow() models.PaymentFlow {
	return models.FlowSubscription
}

// CreatePayment is not a valid entry point for recurring billing. Orders
// under this flow are created by paid invoices, not by clients.
func (s *SubscriptionStrategy) CreatePayment(ctx context.Context, order *models.PaymentOrder) (*gateway.IntentResult, error) {
	return nil, fmt.Errorf("subscription orders are created from invoices, use CreateSubscription")
}

// HandlePaymentSucceeded is a no-op for this flow: invoice webhooks carry
// the settlement, and the child order is created already settled.
func (s *SubscriptionStrategy) HandlePaymentSucceeded(ctx context.Context, order *models.PaymentOrder, intent *gateway.Intent) error {
	s.logger.WithField("order_id", order.ID).Debug("intent callback ignored for subscription order")
	return nil
}

// HandlePaymentFailed moves the child order to FAILED
func (s *SubscriptionStrategy) HandlePaymentFailed(ctx context.Context, order *models.PaymentOrder, code, message string) error {
	return s.failPayment(ctx, order, code, message)
}

// CreateSubscription registers the agreement locally and with the
// processor. A missing processor customer is created on the fly.
func (s *SubscriptionStrategy) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.AmountCents <= 0 {
		return fmt.Errorf("subscription amount must be positive")
	}
	if sub.ProcessorPriceID == "" {
		return fmt.Errorf("subscription requires a processor price")
	}
	if err := s.deps.Subscriptions.Create(ctx, sub); err != nil {
		return err
	}

	if sub.ProcessorCustomerID == "" {
		customerID, err := s.deps.Processor.CreateCustomer(ctx, &gateway.CustomerRequest{
			Metadata: map[string]string{"payer_id": sub.PayerID.String()},
		})
		if err != nil {
			return fmt.Errorf("create processor customer: %w", err)
		}
		sub.ProcessorCustomerID = customerID
	}

	result, err := s.deps.Processor.CreateSubscription(ctx, &gateway.SubscriptionRequest{
		CustomerID:     sub.ProcessorCustomerID,
		PriceID:        sub.ProcessorPriceID,
		IdempotencyKey: gateway.IdempotencyKey("create_subscription", sub.ID, 0),
		Metadata: map[string]string{
			"subscription_id": sub.ID.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("create processor subscription: %w", err)
	}

	sub.ProcessorSubscriptionID = result.SubscriptionID
	sub.CurrentPeriodStart = result.CurrentPeriodStart
	sub.CurrentPeriodEnd = result.CurrentPeriodEnd
	if err := s.deps.Subscriptions.UpdateGuarded(ctx, sub); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"processor_id":    sub.ProcessorSubscriptionID,
	}).Info("subscription created")
	return nil
}

// CancelSubscription cancels at the processor. With atPeriodEnd the local
// state flips only when the deletion webhook arrives.
func (s *SubscriptionStrategy) CancelSubscription(ctx context.Context, subID uuid.UUID, atPeriodEnd bool) (*models.Subscription, error) {
	sub, err := s.deps.Subscriptions.GetByID(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.State == models.SubscriptionCancelled {
		return sub, nil
	}

	if sub.ProcessorSubscriptionID != "" {
		if _, err := s.deps.Processor.CancelSubscription(ctx, sub.ProcessorSubscriptionID, atPeriodEnd); err != nil {
			return nil, fmt.Errorf("cancel processor subscription: %w", err)
		}
	}

	if atPeriodEnd {
		sub.CancelAtPeriodEnd = true
	} else {
		if err := sub.Transition(models.SubscriptionCancelled); err != nil {
			return nil, err
		}
	}
	if err := s.deps.Subscriptions.UpdateGuarded(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// HandleInvoicePaid settles a billing period: creates the child order,
// posts the full capture-fee-release split keyed on the invoice id, and
// activates the subscription. Redelivered invoices are detected by the
// existing child order.
func (s *SubscriptionStrategy) HandleInvoicePaid(ctx context.Context, sub *models.Subscription, invoiceID string, amountCents int64, periodStart, periodEnd *time.Time) error {
	if invoiceID == "" {
		return fmt.Errorf("invoice id is required")
	}
	if existing, err := s.deps.Orders.GetByInvoiceID(ctx, invoiceID); err == nil && existing != nil {
		s.logger.WithField("invoice_id", invoiceID).Debug("invoice already settled")
		return nil
	}

	if amountCents <= 0 {
		amountCents = sub.AmountCents
	}
	fee := s.PlatformFee(amountCents)

	subID := sub.ID
	order := &models.PaymentOrder{
		PayerID:            sub.PayerID,
		RecipientID:        sub.RecipientID,
		Flow:               models.FlowSubscription,
		AmountCents:        amountCents,
		PlatformFeeCents:   fee,
		Currency:           sub.Currency,
		State:              models.OrderPending,
		SubscriptionID:     &subID,
		ProcessorInvoiceID: invoiceID,
	}
	if err := s.deps.Orders.Create(ctx, order); err != nil {
		return fmt.Errorf("create invoice order: %w", err)
	}

	external, err := s.deps.Ledger.SystemAccount(ctx, models.AccountExternalStripe)
	if err != nil {
		return err
	}
	escrow, err := s.deps.Ledger.SystemAccount(ctx, models.AccountPlatformEscrow)
	if err != nil {
		return err
	}
	revenue, err := s.deps.Ledger.SystemAccount(ctx, models.AccountPlatformRevenue)
	if err != nil {
		return err
	}
	user, err := s.deps.Ledger.UserAccount(ctx, sub.RecipientID, sub.Currency)
	if err != nil {
		return err
	}

	orderID := order.ID
	entries := []models.LedgerEntry{
		{
			DebitAccountID:  external.ID,
			CreditAccountID: escrow.ID,
			AmountCents:     amountCents,
			Currency:        sub.Currency,
			EntryType:       models.EntryPaymentReceived,
			IdempotencyKey:  SubscriptionReceivedKey(invoiceID),
			PaymentOrderID:  &orderID,
		},
	}
	// Zero fees post no entry; the ledger rejects zero amounts.
	if fee > 0 {
		entries = append(entries, models.LedgerEntry{
			DebitAccountID:  escrow.ID,
			CreditAccountID: revenue.ID,
			AmountCents:     fee,
			Currency:        sub.Currency,
			EntryType:       models.EntryFeeCollected,
			IdempotencyKey:  SubscriptionFeeKey(invoiceID),
			PaymentOrderID:  &orderID,
		})
	}
	entries = append(entries, models.LedgerEntry{
		DebitAccountID:  escrow.ID,
		CreditAccountID: user.ID,
		AmountCents:     amountCents - fee,
		Currency:        sub.Currency,
		EntryType:       models.EntryPaymentReleased,
		IdempotencyKey:  SubscriptionReleaseKey(invoiceID),
		PaymentOrderID:  &orderID,
	})
	if _, err := s.deps.Ledger.Post(ctx, entries); err != nil {
		return fmt.Errorf("invoice ledger: %w", err)
	}

	for _, next := range []models.OrderState{models.OrderProcessing, models.OrderCaptured, models.OrderSettled} {
		if err := order.Transition(next); err != nil {
			return err
		}
	}
	if err := s.deps.Orders.UpdateGuarded(ctx, order); err != nil {
		return err
	}

	now := time.Now()
	sub.LastInvoiceID = invoiceID
	sub.LastPaymentAt = &now
	if periodStart != nil {
		sub.CurrentPeriodStart = periodStart
	}
	if periodEnd != nil {
		sub.CurrentPeriodEnd = periodEnd
	}
	if sub.State == models.SubscriptionPending || sub.State == models.SubscriptionPastDue {
		if err := sub.Transition(models.SubscriptionActive); err != nil {
			return err
		}
	}
	if err := s.deps.Subscriptions.UpdateGuarded(ctx, sub); err != nil {
		return err
	}

	if s.deps.Publisher != nil {
		s.deps.Publisher.PaymentSettled(ctx, order)
	}
	s.logger.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"invoice_id":      invoiceID,
		"amount":          amountCents,
	}).Info("subscription invoice settled")
	return nil
}

// HandleInvoiceFailed marks an active subscription past due
func (s *SubscriptionStrategy) HandleInvoiceFailed(ctx context.Context, sub *models.Subscription, invoiceID string) error {
	if sub.State != models.SubscriptionActive {
		return nil
	}
	if err := sub.Transition(models.SubscriptionPastDue); err != nil {
		return err
	}
	if err := s.deps.Subscriptions.UpdateGuarded(ctx, sub); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"subscription_id": sub.ID,
		"invoice_id":      invoiceID,
	}).Warn("subscription invoice failed, marked past due")
	return nil
}
