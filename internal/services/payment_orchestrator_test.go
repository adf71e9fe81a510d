package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"payment-engine/internal/gateway"
	"payment-engine/internal/models"
)

func newOrchestrator(env *testEnv) *PaymentOrchestrator {
	deps := env.strategyDeps()
	return NewPaymentOrchestrator(env.orders, testLogger(),
		NewDirectStrategy(deps), NewEscrowStrategy(deps), NewSubscriptionStrategy(deps))
}

func TestInitiatePaymentCreatesIntent(t *testing.T) {
	env := newTestEnv()
	orchestrator := newOrchestrator(env)
	ctx := context.Background()

	order := &models.PaymentOrder{
		PayerID:     uuid.New(),
		RecipientID: uuid.New(),
		Flow:        models.FlowDirect,
		AmountCents: 10000,
	}
	result, err := orchestrator.InitiatePayment(ctx, order)
	require.NoError(t, err)

	assert.Equal(t, models.OrderPending, order.State)
	assert.Equal(t, "USD", order.Currency)
	assert.Equal(t, result.IntentID, order.ProcessorIntentID)
	assert.NotEmpty(t, result.ClientSecret)

	require.Len(t, env.processor.intentRequests, 1)
	req := env.processor.intentRequests[0]
	assert.Equal(t, int64(10000), req.AmountCents)
	assert.Equal(t, order.ID.String(), req.Metadata["order_id"])
}

func TestInitiatePaymentRejectsBadInput(t *testing.T) {
	env := newTestEnv()
	orchestrator := newOrchestrator(env)
	ctx := context.Background()

	_, err := orchestrator.InitiatePayment(ctx, &models.PaymentOrder{
		PayerID: uuid.New(), RecipientID: uuid.New(), Flow: models.FlowDirect, AmountCents: 0,
	})
	require.Error(t, err)

	_, err = orchestrator.InitiatePayment(ctx, &models.PaymentOrder{
		PayerID: uuid.New(), RecipientID: uuid.New(), Flow: models.PaymentFlow("MYSTERY"), AmountCents: 100,
	})
	require.Error(t, err)
}

func TestInitiatePaymentCancelsOrderOnIntentFailure(t *testing.T) {
	env := newTestEnv()
	orchestrator := newOrchestrator(env)
	ctx := context.Background()

	env.processor.createIntentFn = func(req *gateway.CreateIntentRequest) (*gateway.IntentResult, error) {
		return nil, gateway.NewProcessorError(gateway.CodeInvalidRequest, "amount too small", false)
	}
	order := &models.PaymentOrder{
		PayerID: uuid.New(), RecipientID: uuid.New(), Flow: models.FlowDirect, AmountCents: 100,
	}
	_, err := orchestrator.InitiatePayment(ctx, order)
	require.Error(t, err)

	assert.Equal(t, models.OrderCancelled, order.State)
	assert.Equal(t, "intent_creation_failed", order.FailureCode)
}

func TestStrategyLookup(t *testing.T) {
	env := newTestEnv()
	orchestrator := newOrchestrator(env)

	for _, flow := range []models.PaymentFlow{models.FlowDirect, models.FlowEscrow, models.FlowSubscription} {
		strategy, err := orchestrator.Strategy(flow)
		require.NoError(t, err)
		assert.Equal(t, flow, strategy.Flow())
	}

	_, err := orchestrator.Strategy(models.PaymentFlow("MYSTERY"))
	require.Error(t, err)
}

func TestHandleIntentCanceled(t *testing.T) {
	env := newTestEnv()
	orchestrator := newOrchestrator(env)
	ctx := context.Background()

	order := pendingOrder(env, models.FlowDirect, 10000)
	require.NoError(t, orchestrator.HandleIntentCanceled(ctx, order.ProcessorIntentID))
	assert.Equal(t, models.OrderCancelled, order.State)

	// Redelivery is a no-op.
	require.NoError(t, orchestrator.HandleIntentCanceled(ctx, order.ProcessorIntentID))
}

func TestHandleIntentFailedDispatchesByFlow(t *testing.T) {
	env := newTestEnv()
	orchestrator := newOrchestrator(env)
	ctx := context.Background()

	order := pendingOrder(env, models.FlowEscrow, 10000)
	require.NoError(t, orchestrator.HandleIntentFailed(ctx, order.ProcessorIntentID, "card_declined", "declined"))
	assert.Equal(t, models.OrderFailed, order.State)
	assert.Equal(t, "card_declined", order.FailureCode)
}
