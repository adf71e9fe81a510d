package locks

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKeyBuilders(t *testing.T) {
	id := uuid.New()

	assert.Equal(t, "payout:execute:"+id.String(), PayoutExecuteKey(id))
	assert.Equal(t, "refund:execute:"+id.String(), RefundExecuteKey(id))
	assert.Equal(t, "escrow:release:"+id.String(), EscrowReleaseKey(id))
	assert.Equal(t, "reconciliation:run", ReconciliationRunKey())
	assert.Equal(t, "reconciliation:heal:payout:"+id.String(), HealKey("payout", id))
}

func TestAcquisitionErrorMessage(t *testing.T) {
	err := &AcquisitionError{Key: "payout:execute:x"}
	assert.Contains(t, err.Error(), "payout:execute:x")
}
