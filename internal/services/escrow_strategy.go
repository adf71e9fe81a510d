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

// EscrowStrategy captures into escrow and defers the fee and recipient
// credit until the hold is released.
type EscrowStrategy struct {
	baseStrategy
}

// NewEscrowStrategy creates the escrow payment strategy
func NewEscrowStrategy(deps StrategyDeps) *EscrowStrategy {
	return &EscrowStrategy{baseStrategy: newBaseStrategy(deps, "escrow")}
}

// Flow returns the strategy tag
func (s *EscrowStrategy) Flow() models.PaymentFlow {
	return models.FlowEscrow
}

// CreatePayment starts collection with the processor
func (s *EscrowStrategy) CreatePayment(ctx context.Context, order *models.PaymentOrder) (*gateway.IntentResult, error) {
	return s.createIntent(ctx, order)
}

// HandlePaymentSucceeded captures into escrow and opens a fund hold. No
// fee is taken yet: the split happens at release, so a full refund before
// release can return every cent.
func (s *EscrowStrategy) HandlePaymentSucceeded(ctx context.Context, order *models.PaymentOrder, intent *gateway.Intent) error {
	if order.State == models.OrderHeld {
		return nil
	}
	if err := s.markProcessing(order); err != nil {
		return err
	}
	if err := order.Transition(models.OrderHeld); err != nil {
		return err
	}

	external, err := s.deps.Ledger.SystemAccount(ctx, models.AccountExternalStripe)
	if err != nil {
		return err
	}
	escrow, err := s.deps.Ledger.SystemAccount(ctx, models.AccountPlatformEscrow)
	if err != nil {
		return err
	}

	orderID := order.ID
	entries := []models.LedgerEntry{
		{
			DebitAccountID:  external.ID,
			CreditAccountID: escrow.ID,
			AmountCents:     order.AmountCents,
			Currency:        order.Currency,
			EntryType:       models.EntryPaymentReceived,
			IdempotencyKey:  EscrowCaptureKey(orderID),
			PaymentOrderID:  &orderID,
		},
	}
	if _, err := s.deps.Ledger.Post(ctx, entries); err != nil {
		return fmt.Errorf("escrow capture ledger: %w", err)
	}

	if intent != nil && intent.ChargeID != "" {
		order.ProcessorChargeID = intent.ChargeID
	}
	if err := s.deps.Orders.UpdateGuarded(ctx, order); err != nil {
		return err
	}

	hold := &models.FundHold{
		PaymentOrderID: orderID,
		AmountCents:    order.AmountCents,
		Currency:       order.Currency,
		ExpiresAt:      time.Now().Add(s.deps.HoldPeriod),
	}
	if err := s.deps.Orders.CreateHold(ctx, hold); err != nil {
		return fmt.Errorf("create fund hold: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":   order.ID,
		"amount":     order.AmountCents,
		"expires_at": hold.ExpiresAt,
	}).Info("payment held in escrow")
	return nil
}

// HandlePaymentFailed moves the order to FAILED
func (s *EscrowStrategy) HandlePaymentFailed(ctx context.Context, order *models.PaymentOrder, code, message string) error {
	return s.failPayment(ctx, order, code, message)
}

// ReleaseHold moves held funds to the recipient: the fee to platform
// revenue, the remainder to the recipient balance, and a payout is queued.
// Guarded by a per-order lock so manual release and the expiry worker
// cannot double-release.
func (s *EscrowStrategy) ReleaseHold(ctx context.Context, orderID uuid.UUID, reason string) error {
	lock, err := s.deps.Locker.Acquire(ctx, locks.EscrowReleaseKey(orderID), locks.EscrowReleaseTTL, 5*time.Second)
	if err != nil {
		return err
	}
	defer lock.Release(ctx)

	order, err := s.deps.Orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.State == models.OrderReleased || order.State == models.OrderSettled {
		return nil
	}
	if order.State != models.OrderHeld {
		return &models.InvalidTransitionError{Entity: "payment_order", From: string(order.State), To: string(models.OrderReleased)}
	}

	hold, err := s.deps.Orders.GetHoldByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load fund hold: %w", err)
	}
	if hold.Released {
		return nil
	}

	fee := s.PlatformFee(order.AmountCents)
	escrow, err := s.deps.Ledger.SystemAccount(ctx, models.AccountPlatformEscrow)
	if err != nil {
		return err
	}
	revenue, err := s.deps.Ledger.SystemAccount(ctx, models.AccountPlatformRevenue)
	if err != nil {
		return err
	}
	user, err := s.deps.Ledger.UserAccount(ctx, order.RecipientID, order.Currency)
	if err != nil {
		return err
	}

	entries := []models.LedgerEntry{
		{
			DebitAccountID:  escrow.ID,
			CreditAccountID: user.ID,
			AmountCents:     order.AmountCents - fee,
			Currency:        order.Currency,
			EntryType:       models.EntryPaymentReleased,
			IdempotencyKey:  EscrowReleaseRecipientKey(orderID),
			PaymentOrderID:  &orderID,
		},
	}
	// Zero fees post no entry; the ledger rejects zero amounts.
	if fee > 0 {
		entries = append(entries, models.LedgerEntry{
			DebitAccountID:  escrow.ID,
			CreditAccountID: revenue.ID,
			AmountCents:     fee,
			Currency:        order.Currency,
			EntryType:       models.EntryFeeCollected,
			IdempotencyKey:  EscrowReleaseFeeKey(orderID),
			PaymentOrderID:  &orderID,
		})
	}
	if _, err := s.deps.Ledger.Post(ctx, entries); err != nil {
		return fmt.Errorf("escrow release ledger: %w", err)
	}

	now := time.Now()
	hold.Released = true
	hold.ReleasedAt = &now
	hold.ReleaseReason = reason
	if err := s.deps.Orders.UpdateHold(ctx, hold); err != nil {
		return err
	}

	order.PlatformFeeCents = fee
	if err := order.Transition(models.OrderReleased); err != nil {
		return err
	}
	if err := s.deps.Orders.UpdateGuarded(ctx, order); err != nil {
		return err
	}

	if err := s.queuePayout(ctx, order, order.AmountCents-fee); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"reason":   reason,
		"fee":      fee,
	}).Info("escrow hold released")
	return nil
}

func (s *EscrowStrategy) queuePayout(ctx context.Context, order *models.PaymentOrder, amountCents int64) error {
	active, err := s.deps.Payouts.ActiveForOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if len(active) > 0 {
		return nil
	}

	account, err := s.deps.Accounts.GetByOwner(ctx, order.RecipientID)
	if err != nil {
		return fmt.Errorf("recipient %s has no connected account: %w", order.RecipientID, err)
	}

	orderID := order.ID
	payout := &models.Payout{
		PaymentOrderID:     &orderID,
		ConnectedAccountID: account.ID,
		AmountCents:        amountCents,
		Currency:           order.Currency,
		State:              models.PayoutPending,
	}
	return s.deps.Payouts.Create(ctx, payout)
}
