package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"payment-engine/internal/gateway"
	"payment-engine/internal/models"
)

// PaymentOrchestrator routes payment lifecycle events to the strategy
// registered for the order's flow.
type PaymentOrchestrator struct {
	orders     OrderStore
	strategies map[models.PaymentFlow]PaymentStrategy
	logger     *logrus.Entry
}

// NewPaymentOrchestrator builds the orchestrator over a set of strategies
func NewPaymentOrchestrator(orders OrderStore, logger *logrus.Logger, strategies ...PaymentStrategy) *PaymentOrchestrator {
	registry := make(map[models.PaymentFlow]PaymentStrategy, len(strategies))
	for _, s := range strategies {
		registry[s.Flow()] = s
	}
	return &PaymentOrchestrator{
		orders:     orders,
		strategies: registry,
		logger:     logger.WithField("component", "payment-orchestrator"),
	}
}

// Strategy returns the strategy registered for a flow
func (o *PaymentOrchestrator) Strategy(flow models.PaymentFlow) (PaymentStrategy, error) {
	s, ok := o.strategies[flow]
	if !ok {
		return nil, fmt.Errorf("no strategy registered for flow %s", flow)
	}
	return s, nil
}

// InitiatePayment validates and persists a new order, then asks the
// processor to start collecting. The order comes back PENDING with the
// intent handle attached.
func (o *PaymentOrchestrator) InitiatePayment(ctx context.Context, order *models.PaymentOrder) (*gateway.IntentResult, error) {
	if order.AmountCents <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	if order.Currency == "" {
		order.Currency = "USD"
	}
	strategy, err := o.Strategy(order.Flow)
	if err != nil {
		return nil, err
	}

	order.State = models.OrderDraft
	if err := o.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	result, err := strategy.CreatePayment(ctx, order)
	if err != nil {
		if terr := order.Transition(models.OrderCancelled); terr == nil {
			order.FailureCode = "intent_creation_failed"
			order.FailureMessage = err.Error()
			if uerr := o.orders.UpdateGuarded(ctx, order); uerr != nil {
				o.logger.WithError(uerr).WithField("order_id", order.ID).Error("failed to cancel order after intent failure")
			}
		}
		return nil, fmt.Errorf("create payment intent: %w", err)
	}

	if err := order.Transition(models.OrderPending); err != nil {
		return nil, err
	}
	order.ProcessorIntentID = result.IntentID
	if err := o.orders.UpdateGuarded(ctx, order); err != nil {
		return nil, err
	}

	o.logger.WithFields(logrus.Fields{
		"order_id":  order.ID,
		"flow":      order.Flow,
		"amount":    order.AmountCents,
		"intent_id": result.IntentID,
	}).Info("payment initiated")
	return result, nil
}

// GetOrder loads an order with its hold, refunds, and payouts
func (o *PaymentOrchestrator) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentOrder, error) {
	return o.orders.GetByID(ctx, orderID)
}

// HandleIntentSucceeded dispatches a confirmed intent to the order's
// strategy.
func (o *PaymentOrchestrator) HandleIntentSucceeded(ctx context.Context, intentID string, intent *gateway.Intent) error {
	order, err := o.orders.GetByIntentID(ctx, intentID)
	if err != nil {
		return fmt.Errorf("order for intent %s: %w", intentID, err)
	}
	strategy, err := o.Strategy(order.Flow)
	if err != nil {
		return err
	}
	return strategy.HandlePaymentSucceeded(ctx, order, intent)
}

// HandleIntentFailed dispatches a failed intent to the order's strategy
func (o *PaymentOrchestrator) HandleIntentFailed(ctx context.Context, intentID, code, message string) error {
	order, err := o.orders.GetByIntentID(ctx, intentID)
	if err != nil {
		return fmt.Errorf("order for intent %s: %w", intentID, err)
	}
	strategy, err := o.Strategy(order.Flow)
	if err != nil {
		return err
	}
	return strategy.HandlePaymentFailed(ctx, order, code, message)
}

// HandleIntentCanceled cancels an order whose intent was abandoned
func (o *PaymentOrchestrator) HandleIntentCanceled(ctx context.Context, intentID string) error {
	order, err := o.orders.GetByIntentID(ctx, intentID)
	if err != nil {
		return fmt.Errorf("order for intent %s: %w", intentID, err)
	}
	if order.State == models.OrderCancelled {
		return nil
	}
	if err := order.Transition(models.OrderCancelled); err != nil {
		return err
	}
	return o.orders.UpdateGuarded(ctx, order)
}
