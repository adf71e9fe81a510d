package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lock key layouts and durations for the operations that need mutual
// exclusion across instances.
const (
	PayoutExecuteTTL     = 120 * time.Second
	PayoutExecuteTimeout = 10 * time.Second
	RefundExecuteTTL     = 120 * time.Second
	RefundExecuteTimeout = 10 * time.Second
	EscrowReleaseTTL     = 60 * time.Second
	ReconciliationTTL    = 3600 * time.Second
	ReconciliationWait   = 5 * time.Second
	HealTTL              = 60 * time.Second

	acquirePollInterval = 50 * time.Millisecond
)

// Key builders
func PayoutExecuteKey(payoutID uuid.UUID) string {
	return fmt.Sprintf("payout:execute:%s", payoutID)
}

func RefundExecuteKey(refundID uuid.UUID) string {
	return fmt.Sprintf("refund:execute:%s", refundID)
}

func EscrowReleaseKey(orderID uuid.UUID) string {
	return fmt.Sprintf("escrow:release:%s", orderID)
}

func ReconciliationRunKey() string {
	return "reconciliation:run"
}

func HealKey(entityType string, entityID uuid.UUID) string {
	return fmt.Sprintf("reconciliation:heal:%s:%s", entityType, entityID)
}

// AcquisitionError is returned when a lock could not be acquired within
// the caller's timeout.
type AcquisitionError struct {
	Key string
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("could not acquire lock %s", e.Key)
}

// Release only deletes the key when the token still matches, so an expired
// lock re-acquired by another holder is never released by the first.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

var extendScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
else
	return 0
end
`)

// Manager provides distributed locks backed by Redis
type Manager struct {
	client *redis.Client
}

// NewManager creates a lock manager on an existing Redis client
func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

// Lock is a held lock. Release it when the guarded section completes.
type Lock struct {
	manager *Manager
	Key     string
	Token   string
	TTL     time.Duration
}

// Acquire takes the lock, polling until timeout elapses. A zero timeout
// means a single attempt.
func (m *Manager) Acquire(ctx context.Context, key string, ttl, timeout time.Duration) (*Lock, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(timeout)

	for {
		ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock acquire %s: %w", key, err)
		}
		if ok {
			return &Lock{manager: m, Key: key, Token: token, TTL: ttl}, nil
		}
		if time.Now().After(deadline) {
			return nil, &AcquisitionError{Key: key}
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(acquirePollInterval):
		}
	}
}

// Release frees the lock if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	_, err := releaseScript.Run(ctx, l.manager.client, []string{l.Key}, l.Token).Result()
	if err != nil {
		return fmt.Errorf("lock release %s: %w", l.Key, err)
	}
	return nil
}

// Extend pushes the expiry out for long-running guarded sections.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	res, err := extendScript.Run(ctx, l.manager.client, []string{l.Key}, l.Token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("lock extend %s: %w", l.Key, err)
	}
	if res == 0 {
		return &AcquisitionError{Key: l.Key}
	}
	return nil
}
