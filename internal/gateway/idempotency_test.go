package gateway

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyKeyFormat(t *testing.T) {
	id := uuid.New()
	key := IdempotencyKey("create_transfer", id, 2)

	parts := strings.Split(key, ":")
	require.Len(t, parts, 4)
	assert.Equal(t, "create_transfer", parts[0])
	assert.Equal(t, id.String(), parts[1])
	assert.Equal(t, "2", parts[2])
	assert.Len(t, parts[3], 8)
}

func TestIdempotencyKeyDeterministic(t *testing.T) {
	id := uuid.New()
	assert.Equal(t,
		IdempotencyKey("create_refund", id, 1),
		IdempotencyKey("create_refund", id, 1))
}

func TestIdempotencyKeyScopedByAttempt(t *testing.T) {
	id := uuid.New()
	keys := make(map[string]struct{})
	for attempt := 0; attempt < 5; attempt++ {
		keys[IdempotencyKey("create_transfer", id, attempt)] = struct{}{}
	}
	assert.Len(t, keys, 5, "each attempt must produce a distinct key")
}

func TestIdempotencyKeyScopedByOperation(t *testing.T) {
	id := uuid.New()
	assert.NotEqual(t,
		IdempotencyKey("create_transfer", id, 0),
		IdempotencyKey("create_refund", id, 0))
	assert.Contains(t, IdempotencyKey("create_transfer", id, 0), id.String())
}
