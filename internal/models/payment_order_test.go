package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		from    OrderState
		to      OrderState
		allowed bool
	}{
		{"draft to pending", OrderDraft, OrderPending, true},
		{"draft to cancelled", OrderDraft, OrderCancelled, true},
		{"draft to captured", OrderDraft, OrderCaptured, false},
		{"pending to processing", OrderPending, OrderProcessing, true},
		{"pending to settled", OrderPending, OrderSettled, false},
		{"processing to captured", OrderProcessing, OrderCaptured, true},
		{"processing to held", OrderProcessing, OrderHeld, true},
		{"processing to released", OrderProcessing, OrderReleased, false},
		{"captured to settled", OrderCaptured, OrderSettled, true},
		{"held to released", OrderHeld, OrderReleased, true},
		{"held to settled", OrderHeld, OrderSettled, false},
		{"released to settled", OrderReleased, OrderSettled, true},
		{"settled to refunded", OrderSettled, OrderRefunded, true},
		{"partially refunded again", OrderPartiallyRefunded, OrderPartiallyRefunded, true},
		{"partially refunded to refunded", OrderPartiallyRefunded, OrderRefunded, true},
		{"failed back to pending", OrderFailed, OrderPending, true},
		{"refunded is terminal", OrderRefunded, OrderPending, false},
		{"cancelled is terminal", OrderCancelled, OrderPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := &PaymentOrder{State: tt.from}
			err := order.Transition(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, order.State)
			} else {
				var invalid *InvalidTransitionError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, tt.from, order.State)
			}
		})
	}
}

func TestOrderTransitionStampsTimestamps(t *testing.T) {
	order := &PaymentOrder{State: OrderProcessing}

	require.NoError(t, order.Transition(OrderHeld))
	require.NotNil(t, order.CapturedAt)

	require.NoError(t, order.Transition(OrderReleased))
	require.NotNil(t, order.ReleasedAt)

	require.NoError(t, order.Transition(OrderSettled))
	require.NotNil(t, order.SettledAt)
}

func TestOrderFailureAndCancelTimestamps(t *testing.T) {
	failed := &PaymentOrder{State: OrderPending}
	require.NoError(t, failed.Transition(OrderFailed))
	assert.NotNil(t, failed.FailedAt)

	cancelled := &PaymentOrder{State: OrderDraft}
	require.NoError(t, cancelled.Transition(OrderCancelled))
	assert.NotNil(t, cancelled.CancelledAt)
}

func TestOrderIsRefundable(t *testing.T) {
	refundable := []OrderState{OrderCaptured, OrderHeld, OrderReleased, OrderSettled, OrderPartiallyRefunded}
	for _, state := range refundable {
		order := &PaymentOrder{State: state}
		assert.True(t, order.IsRefundable(), "state %s", state)
	}

	notRefundable := []OrderState{OrderDraft, OrderPending, OrderProcessing, OrderRefunded, OrderFailed, OrderCancelled}
	for _, state := range notRefundable {
		order := &PaymentOrder{State: state}
		assert.False(t, order.IsRefundable(), "state %s", state)
	}
}

func TestInvalidTransitionErrorMessage(t *testing.T) {
	order := &PaymentOrder{State: OrderSettled}
	err := order.Transition(OrderPending)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SETTLED")
	assert.Contains(t, err.Error(), "PENDING")
}
