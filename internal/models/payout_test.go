package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayoutTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		from    PayoutState
		to      PayoutState
		allowed bool
	}{
		{"pending to processing", PayoutPending, PayoutProcessing, true},
		{"pending to scheduled", PayoutPending, PayoutScheduled, true},
		{"pending to cancelled", PayoutPending, PayoutCancelled, true},
		{"pending to paid", PayoutPending, PayoutPaid, false},
		{"scheduled to processing", PayoutScheduled, PayoutProcessing, true},
		{"scheduled to cancelled", PayoutScheduled, PayoutCancelled, true},
		{"scheduled to paid", PayoutScheduled, PayoutPaid, false},
		{"processing to scheduled", PayoutProcessing, PayoutScheduled, true},
		{"processing to paid", PayoutProcessing, PayoutPaid, true},
		{"processing to failed", PayoutProcessing, PayoutFailed, true},
		{"processing to cancelled", PayoutProcessing, PayoutCancelled, false},
		{"failed to pending", PayoutFailed, PayoutPending, true},
		{"failed to processing", PayoutFailed, PayoutProcessing, false},
		{"paid is terminal", PayoutPaid, PayoutPending, false},
		{"cancelled is terminal", PayoutCancelled, PayoutPending, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payout := &Payout{State: tt.from}
			err := payout.Transition(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, payout.State)
			} else {
				var invalid *InvalidTransitionError
				require.ErrorAs(t, err, &invalid)
				assert.Equal(t, tt.from, payout.State)
			}
		})
	}
}

func TestPayoutTransitionStampsTimestamps(t *testing.T) {
	paid := &Payout{State: PayoutProcessing}
	require.NoError(t, paid.Transition(PayoutPaid))
	assert.NotNil(t, paid.PaidAt)

	failed := &Payout{State: PayoutProcessing}
	require.NoError(t, failed.Transition(PayoutFailed))
	assert.NotNil(t, failed.FailedAt)

	cancelled := &Payout{State: PayoutPending}
	require.NoError(t, cancelled.Transition(PayoutCancelled))
	assert.NotNil(t, cancelled.CancelledAt)
}
