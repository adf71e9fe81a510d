package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// IdempotencyKey builds the processor idempotency key for an attempt of an
// operation on an entity: {operation}:{entity_id}:{attempt}:{hash8}.
//
// The attempt number scopes retries: a new attempt gets a new key, so a
// deliberate retry is a fresh processor request while accidental duplicate
// submission of the same attempt is collapsed by the processor.
func IdempotencyKey(operation string, entityID uuid.UUID, attempt int) string {
	base := fmt.Sprintf("%s:%s:%d", operation, entityID, attempt)
	sum := sha256.Sum256([]byte(base))
	return fmt.Sprintf("%s:%s", base, hex.EncodeToString(sum[:])[:8])
}
