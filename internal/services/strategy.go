package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"payment-engine/internal/gateway"
	"payment-engine/internal/models"
)

// DefaultFeePercent is the platform's cut of every payment.
const DefaultFeePercent = 15

// DefaultHoldPeriod is how long escrowed funds are held before automatic
// release.
const DefaultHoldPeriod = 7 * 24 * time.Hour

// PaymentStrategy is the per-flow behavior behind the orchestrator. One
// implementation per PaymentFlow tag.
type PaymentStrategy interface {
	Flow() models.PaymentFlow

	// CreatePayment asks the processor to start collecting the order's
	// amount and returns the intent handle.
	CreatePayment(ctx context.Context, order *models.PaymentOrder) (*gateway.IntentResult, error)

	// HandlePaymentSucceeded applies capture-time state transitions and
	// ledger effects. Safe to call again on webhook redelivery.
	HandlePaymentSucceeded(ctx context.Context, order *models.PaymentOrder, intent *gateway.Intent) error

	// HandlePaymentFailed moves the order to FAILED with the processor's
	// failure details.
	HandlePaymentFailed(ctx context.Context, order *models.PaymentOrder, code, message string) error

	// PlatformFee computes the platform's cut in minor units.
	PlatformFee(amountCents int64) int64
}

// StrategyDeps bundles the collaborators every strategy needs
type StrategyDeps struct {
	Orders        OrderStore
	Payouts       PayoutStore
	Accounts      AccountStore
	Subscriptions SubscriptionStore
	Ledger        *LedgerService
	Processor     gateway.ProcessorAdapter
	Locker        Locker
	Publisher     EventPublisher
	FeePercent    int64
	HoldPeriod    time.Duration
	Logger        *logrus.Logger
}

type baseStrategy struct {
	deps   StrategyDeps
	logger *logrus.Entry
}

func newBaseStrategy(deps StrategyDeps, name string) baseStrategy {
	if deps.FeePercent == 0 {
		deps.FeePercent = DefaultFeePercent
	}
	if deps.HoldPeriod == 0 {
		deps.HoldPeriod = DefaultHoldPeriod
	}
	return baseStrategy{
		deps:   deps,
		logger: deps.Logger.WithField("strategy", name),
	}
}

// PlatformFee truncates toward zero: amount * percent / 100 in integer
// arithmetic, so the recipient gets the rounding benefit.
func (b *baseStrategy) PlatformFee(amountCents int64) int64 {
	return amountCents * b.deps.FeePercent / 100
}

// markProcessing walks an order from PENDING into PROCESSING when the
// processor's callback outruns our own confirmation path.
func (b *baseStrategy) markProcessing(order *models.PaymentOrder) error {
	if order.State == models.OrderPending {
		return order.Transition(models.OrderProcessing)
	}
	return nil
}

// failPayment is shared by all flows
func (b *baseStrategy) failPayment(ctx context.Context, order *models.PaymentOrder, code, message string) error {
	if order.State == models.OrderFailed {
		return nil
	}
	if err := b.markProcessing(order); err != nil {
		return err
	}
	if err := order.Transition(models.OrderFailed); err != nil {
		return err
	}
	order.FailureCode = code
	order.FailureMessage = message
	if err := b.deps.Orders.UpdateGuarded(ctx, order); err != nil {
		return err
	}
	if b.deps.Publisher != nil {
		b.deps.Publisher.PaymentFailed(ctx, order)
	}
	b.logger.WithFields(logrus.Fields{
		"order_id": order.ID,
		"code":     code,
	}).Warn("payment failed")
	return nil
}

// createIntent is the shared processor call for one-shot flows
func (b *baseStrategy) createIntent(ctx context.Context, order *models.PaymentOrder) (*gateway.IntentResult, error) {
	return b.deps.Processor.CreatePaymentIntent(ctx, &gateway.CreateIntentRequest{
		AmountCents:    order.AmountCents,
		Currency:       order.Currency,
		Description:    order.Description,
		IdempotencyKey: gateway.IdempotencyKey("create_intent", order.ID, 0),
		Metadata: map[string]string{
			"order_id": order.ID.String(),
			"flow":     string(order.Flow),
		},
	})
}
