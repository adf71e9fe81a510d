package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefundTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		from    RefundState
		to      RefundState
		allowed bool
	}{
		{"pending to processing", RefundPending, RefundProcessing, true},
		{"pending to completed", RefundPending, RefundCompleted, false},
		{"processing again", RefundProcessing, RefundProcessing, true},
		{"processing to completed", RefundProcessing, RefundCompleted, true},
		{"processing to failed", RefundProcessing, RefundFailed, true},
		{"failed to processing", RefundFailed, RefundProcessing, true},
		{"completed is terminal", RefundCompleted, RefundProcessing, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refund := &Refund{State: tt.from}
			err := refund.Transition(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, refund.State)
			} else {
				var invalid *InvalidTransitionError
				require.ErrorAs(t, err, &invalid)
			}
		})
	}
}

func TestRefundTransitionStampsTimestamps(t *testing.T) {
	completed := &Refund{State: RefundProcessing}
	require.NoError(t, completed.Transition(RefundCompleted))
	assert.NotNil(t, completed.CompletedAt)

	failed := &Refund{State: RefundProcessing}
	require.NoError(t, failed.Transition(RefundFailed))
	assert.NotNil(t, failed.FailedAt)
}
