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

func pendingOrder(env *testEnv, flow models.PaymentFlow, amountCents int64) *models.PaymentOrder {
	return env.orders.put(&models.PaymentOrder{
		PayerID:           uuid.New(),
		RecipientID:       uuid.New(),
		Flow:              flow,
		AmountCents:       amountCents,
		Currency:          "USD",
		State:             models.OrderPending,
		ProcessorIntentID: "pi_" + uuid.NewString()[:8],
	})
}

func TestDirectCaptureSettlesInOnePass(t *testing.T) {
	env := newTestEnv()
	strategy := NewDirectStrategy(env.strategyDeps())
	ctx := context.Background()

	order := pendingOrder(env, models.FlowDirect, 10000)
	intent := &gateway.Intent{ID: order.ProcessorIntentID, Status: gateway.IntentStatusSucceeded, ChargeID: "ch_1"}

	require.NoError(t, strategy.HandlePaymentSucceeded(ctx, order, intent))

	assert.Equal(t, models.OrderSettled, order.State)
	assert.Equal(t, int64(1500), order.PlatformFeeCents)
	assert.Equal(t, "ch_1", order.ProcessorChargeID)
	assert.NotNil(t, order.SettledAt)

	received, ok := env.ledger.entryByKey(PaymentReceivedKey(order.ID))
	require.True(t, ok)
	assert.Equal(t, int64(10000), received.AmountCents)
	assert.Equal(t, models.EntryPaymentReceived, received.EntryType)

	fee, ok := env.ledger.entryByKey(PaymentFeeKey(order.ID))
	require.True(t, ok)
	assert.Equal(t, int64(1500), fee.AmountCents)

	release, ok := env.ledger.entryByKey(PaymentReleaseKey(order.ID))
	require.True(t, ok)
	assert.Equal(t, int64(8500), release.AmountCents)

	// Recipient balance reflects amount minus fee.
	user, err := env.ledgerSvc.UserAccount(ctx, order.RecipientID, "USD")
	require.NoError(t, err)
	balance, err := env.ledgerSvc.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8500), balance)

	assert.True(t, env.publisher.has("payment.settled"))
}

func TestDirectCaptureIdempotentOnRedelivery(t *testing.T) {
	env := newTestEnv()
	strategy := NewDirectStrategy(env.strategyDeps())
	ctx := context.Background()

	order := pendingOrder(env, models.FlowDirect, 10000)
	intent := &gateway.Intent{ID: order.ProcessorIntentID, Status: gateway.IntentStatusSucceeded}

	require.NoError(t, strategy.HandlePaymentSucceeded(ctx, order, intent))
	require.NoError(t, strategy.HandlePaymentSucceeded(ctx, order, intent))

	assert.Equal(t, models.OrderSettled, order.State)
	assert.Len(t, env.ledger.entries, 3)
}

func TestDirectCaptureZeroFeeSkipsFeeEntry(t *testing.T) {
	env := newTestEnv()
	strategy := NewDirectStrategy(env.strategyDeps())
	ctx := context.Background()

	// 15% of 5 cents truncates to zero; settlement still succeeds with
	// no fee entry posted.
	order := pendingOrder(env, models.FlowDirect, 5)
	intent := &gateway.Intent{ID: order.ProcessorIntentID, Status: gateway.IntentStatusSucceeded}

	require.NoError(t, strategy.HandlePaymentSucceeded(ctx, order, intent))

	assert.Equal(t, models.OrderSettled, order.State)
	assert.Equal(t, int64(0), order.PlatformFeeCents)
	assert.Len(t, env.ledger.entries, 2)

	_, ok := env.ledger.entryByKey(PaymentFeeKey(order.ID))
	assert.False(t, ok)

	release, ok := env.ledger.entryByKey(PaymentReleaseKey(order.ID))
	require.True(t, ok)
	assert.Equal(t, int64(5), release.AmountCents)
}

func TestDirectPlatformFeeTruncates(t *testing.T) {
	env := newTestEnv()
	strategy := NewDirectStrategy(env.strategyDeps())

	// 15% of 999 is 149.85; integer truncation favors the recipient.
	assert.Equal(t, int64(149), strategy.PlatformFee(999))
	assert.Equal(t, int64(0), strategy.PlatformFee(5))
	assert.Equal(t, int64(15), strategy.PlatformFee(100))
}

func TestDirectPaymentFailed(t *testing.T) {
	env := newTestEnv()
	strategy := NewDirectStrategy(env.strategyDeps())
	ctx := context.Background()

	order := pendingOrder(env, models.FlowDirect, 10000)
	require.NoError(t, strategy.HandlePaymentFailed(ctx, order, "card_declined", "insufficient funds"))

	assert.Equal(t, models.OrderFailed, order.State)
	assert.Equal(t, "card_declined", order.FailureCode)
	assert.NotNil(t, order.FailedAt)
	assert.Empty(t, env.ledger.entries)
	assert.True(t, env.publisher.has("payment.failed"))

	// Redelivered failure is a no-op.
	require.NoError(t, strategy.HandlePaymentFailed(ctx, order, "card_declined", "insufficient funds"))
}
