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

func newRefundService(env *testEnv) *RefundService {
	return NewRefundService(env.refunds, env.orders, env.payouts, env.ledgerSvc, env.processor, env.locker, env.publisher, testLogger())
}

func refundableOrder(env *testEnv, state models.OrderState, amountCents int64) *models.PaymentOrder {
	return env.orders.put(&models.PaymentOrder{
		PayerID:           uuid.New(),
		RecipientID:       uuid.New(),
		Flow:              models.FlowEscrow,
		AmountCents:       amountCents,
		Currency:          "USD",
		State:             state,
		ProcessorIntentID: "pi_" + uuid.NewString()[:8],
		ProcessorChargeID: "ch_" + uuid.NewString()[:8],
	})
}

func TestRequestRefundFullAmountByDefault(t *testing.T) {
	env := newTestEnv()
	svc := newRefundService(env)
	ctx := context.Background()

	order := refundableOrder(env, models.OrderHeld, 10000)
	refund, err := svc.RequestRefund(ctx, order.ID, 0, "requested_by_customer")
	require.NoError(t, err)

	assert.Equal(t, int64(10000), refund.AmountCents)
	assert.Equal(t, models.RefundPending, refund.State)
	assert.True(t, refund.FeeRefunded, "held orders refund the fee share too")
}

func TestRequestRefundEligibility(t *testing.T) {
	env := newTestEnv()
	svc := newRefundService(env)
	ctx := context.Background()

	t.Run("non refundable state", func(t *testing.T) {
		order := refundableOrder(env, models.OrderProcessing, 10000)
		_, err := svc.RequestRefund(ctx, order.ID, 0, "r")
		assert.ErrorIs(t, err, models.ErrRefundNotEligible)
	})

	t.Run("refund already in progress", func(t *testing.T) {
		order := refundableOrder(env, models.OrderHeld, 10000)
		_, err := svc.RequestRefund(ctx, order.ID, 4000, "first")
		require.NoError(t, err)
		_, err = svc.RequestRefund(ctx, order.ID, 4000, "second")
		assert.ErrorIs(t, err, models.ErrRefundNotEligible)
	})

	t.Run("amount exceeds remaining", func(t *testing.T) {
		order := refundableOrder(env, models.OrderCaptured, 10000)
		completed := &models.Refund{
			PaymentOrderID: order.ID,
			AmountCents:    6000,
			Currency:       "USD",
			State:          models.RefundCompleted,
		}
		env.refunds.put(completed)
		_, err := svc.RequestRefund(ctx, order.ID, 5000, "too much")
		assert.ErrorIs(t, err, models.ErrRefundNotEligible)

		refund, err := svc.RequestRefund(ctx, order.ID, 4000, "exact remainder")
		require.NoError(t, err)
		assert.Equal(t, int64(4000), refund.AmountCents)
	})

	t.Run("fully refunded", func(t *testing.T) {
		order := refundableOrder(env, models.OrderRefunded, 10000)
		_, err := svc.RequestRefund(ctx, order.ID, 0, "again")
		assert.ErrorIs(t, err, models.ErrRefundNotEligible)
	})
}

func TestRequestRefundBlockedByInFlightPayout(t *testing.T) {
	env := newTestEnv()
	svc := newRefundService(env)
	ctx := context.Background()

	order := refundableOrder(env, models.OrderReleased, 10000)
	account := env.readyAccount(order.RecipientID)
	orderID := order.ID
	env.payouts.put(&models.Payout{
		PaymentOrderID:     &orderID,
		ConnectedAccountID: account.ID,
		AmountCents:        8500,
		Currency:           "USD",
		State:              models.PayoutProcessing,
	})

	_, err := svc.RequestRefund(ctx, order.ID, 0, "r")
	assert.ErrorIs(t, err, models.ErrRefundNotEligible)
	assert.Contains(t, err.Error(), "in flight")
}

func TestRequestRefundBlockedByPaidPayout(t *testing.T) {
	env := newTestEnv()
	svc := newRefundService(env)
	ctx := context.Background()

	order := refundableOrder(env, models.OrderSettled, 10000)
	account := env.readyAccount(order.RecipientID)
	orderID := order.ID
	env.payouts.put(&models.Payout{
		PaymentOrderID:     &orderID,
		ConnectedAccountID: account.ID,
		AmountCents:        8500,
		Currency:           "USD",
		State:              models.PayoutPaid,
	})

	_, err := svc.RequestRefund(ctx, order.ID, 0, "r")
	assert.ErrorIs(t, err, models.ErrRefundNotEligible)
	assert.Contains(t, err.Error(), "manual intervention")
}

func TestRequestRefundCancelsQueuedPayout(t *testing.T) {
	env := newTestEnv()
	svc := newRefundService(env)
	ctx := context.Background()

	order := refundableOrder(env, models.OrderReleased, 10000)
	account := env.readyAccount(order.RecipientID)
	orderID := order.ID
	payout := &models.Payout{
		PaymentOrderID:     &orderID,
		ConnectedAccountID: account.ID,
		AmountCents:        8500,
		Currency:           "USD",
		State:              models.PayoutPending,
	}
	env.payouts.put(payout)

	refund, err := svc.RequestRefund(ctx, order.ID, 0, "r")
	require.NoError(t, err)

	stored, err := env.payouts.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutCancelled, stored.State)
	cancelled, ok := refund.Metadata["payout_cancelled"].(bool)
	require.True(t, ok)
	assert.True(t, cancelled)

	// The recipient's credited balance moved back into escrow.
	pullback, ok := env.ledger.entryByKey(RefundPayoutCancelKey(refund.ID, payout.ID))
	require.True(t, ok)
	assert.Equal(t, int64(8500), pullback.AmountCents)
	assert.Equal(t, models.EntryTransfer, pullback.EntryType)
}

func TestRequestRefundCancelsEveryQueuedPayout(t *testing.T) {
	env := newTestEnv()
	svc := newRefundService(env)
	ctx := context.Background()

	order := refundableOrder(env, models.OrderReleased, 10000)
	account := env.readyAccount(order.RecipientID)
	orderID := order.ID
	first := &models.Payout{
		PaymentOrderID:     &orderID,
		ConnectedAccountID: account.ID,
		AmountCents:        5000,
		Currency:           "USD",
		State:              models.PayoutPending,
	}
	second := &models.Payout{
		PaymentOrderID:     &orderID,
		ConnectedAccountID: account.ID,
		AmountCents:        3500,
		Currency:           "USD",
		State:              models.PayoutScheduled,
	}
	env.payouts.put(first)
	env.payouts.put(second)

	refund, err := svc.RequestRefund(ctx, order.ID, 0, "r")
	require.NoError(t, err)

	// Each payout gets its own pullback entry.
	for _, payout := range []*models.Payout{first, second} {
		stored, gerr := env.payouts.GetByID(ctx, payout.ID)
		require.NoError(t, gerr)
		assert.Equal(t, models.PayoutCancelled, stored.State)
		pullback, ok := env.ledger.entryByKey(RefundPayoutCancelKey(refund.ID, payout.ID))
		require.True(t, ok)
		assert.Equal(t, payout.AmountCents, pullback.AmountCents)
	}
}

func TestExecuteRefundTwoPhase(t *testing.T) {
	env := newTestEnv()
	svc := newRefundService(env)
	ctx := context.Background()

	order := refundableOrder(env, models.OrderHeld, 10000)
	refund, err := svc.RequestRefund(ctx, order.ID, 0, "r")
	require.NoError(t, err)

	require.NoError(t, svc.ExecuteRefund(ctx, refund.ID))
	assert.Equal(t, models.RefundProcessing, refund.State)
	assert.Equal(t, 1, refund.Attempt)
	assert.NotEmpty(t, refund.ProcessorRefundID)

	require.Len(t, env.processor.refundRequests, 1)
	req := env.processor.refundRequests[0]
	assert.Equal(t, order.ProcessorIntentID, req.IntentID)
	assert.Equal(t, gateway.IdempotencyKey("create_refund", refund.ID, 1), req.IdempotencyKey)

	// A second execute sees the refund already at the processor.
	require.NoError(t, svc.ExecuteRefund(ctx, refund.ID))
	assert.Len(t, env.processor.refundRequests, 1)
}

func TestExecuteRefundPermanentFailure(t *testing.T) {
	env := newTestEnv()
	svc := newRefundService(env)
	ctx := context.Background()

	order := refundableOrder(env, models.OrderHeld, 10000)
	refund, err := svc.RequestRefund(ctx, order.ID, 0, "r")
	require.NoError(t, err)

	env.processor.createRefundFn = func(req *gateway.RefundRequest) (*gateway.RefundResult, error) {
		return nil, gateway.NewProcessorError(gateway.CodeInvalidRequest, "charge already refunded", false)
	}
	require.Error(t, svc.ExecuteRefund(ctx, refund.ID))
	assert.Equal(t, models.RefundFailed, refund.State)
	assert.Contains(t, refund.FailureReason, "charge already refunded")
}

func TestCompleteRefundFullFromEscrow(t *testing.T) {
	env := newTestEnv()
	escrowStrategy := NewEscrowStrategy(env.strategyDeps())
	svc := newRefundService(env)
	ctx := context.Background()

	order := pendingOrder(env, models.FlowEscrow, 10000)
	intent := &gateway.Intent{ID: order.ProcessorIntentID, Status: gateway.IntentStatusSucceeded}
	require.NoError(t, escrowStrategy.HandlePaymentSucceeded(ctx, order, intent))

	refund, err := svc.RequestRefund(ctx, order.ID, 0, "r")
	require.NoError(t, err)
	require.NoError(t, svc.ExecuteRefund(ctx, refund.ID))
	require.NoError(t, svc.CompleteRefund(ctx, refund))

	assert.Equal(t, models.RefundCompleted, refund.State)
	assert.NotNil(t, refund.CompletedAt)
	assert.Equal(t, models.OrderRefunded, order.State)

	reversal, ok := env.ledger.entryByKey(RefundReversalKey(refund.ID))
	require.True(t, ok)
	assert.Equal(t, int64(10000), reversal.AmountCents)
	assert.Equal(t, models.EntryRefund, reversal.EntryType)

	// The reversal drained escrow: capture in, full refund out.
	escrowAccount, err := env.ledgerSvc.SystemAccount(ctx, models.AccountPlatformEscrow)
	require.NoError(t, err)
	balance, err := env.ledgerSvc.Balance(ctx, escrowAccount.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance)

	// The open hold closed with the refund reason.
	hold, err := env.orders.GetHoldByOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, hold.Released)
	assert.Equal(t, "refund", hold.ReleaseReason)

	assert.True(t, env.publisher.has("refund.completed"))

	// Redelivery is a no-op.
	entryCount := len(env.ledger.entries)
	require.NoError(t, svc.CompleteRefund(ctx, refund))
	assert.Len(t, env.ledger.entries, entryCount)
}

func TestCompleteRefundPartialMarksPartiallyRefunded(t *testing.T) {
	env := newTestEnv()
	svc := newRefundService(env)
	ctx := context.Background()

	order := refundableOrder(env, models.OrderCaptured, 10000)
	refund, err := svc.RequestRefund(ctx, order.ID, 4000, "partial")
	require.NoError(t, err)
	require.NoError(t, svc.ExecuteRefund(ctx, refund.ID))
	require.NoError(t, svc.CompleteRefund(ctx, refund))

	assert.Equal(t, models.OrderPartiallyRefunded, order.State)

	// The remainder is still refundable afterwards.
	second, err := svc.RequestRefund(ctx, order.ID, 0, "rest")
	require.NoError(t, err)
	assert.Equal(t, int64(6000), second.AmountCents)
}

func TestHandleChargeRefundedResolvesByProcessorID(t *testing.T) {
	env := newTestEnv()
	svc := newRefundService(env)
	ctx := context.Background()

	order := refundableOrder(env, models.OrderHeld, 10000)
	refund, err := svc.RequestRefund(ctx, order.ID, 0, "r")
	require.NoError(t, err)
	require.NoError(t, svc.ExecuteRefund(ctx, refund.ID))

	require.NoError(t, svc.HandleChargeRefunded(ctx, refund.ProcessorRefundID))
	assert.Equal(t, models.RefundCompleted, refund.State)
}
