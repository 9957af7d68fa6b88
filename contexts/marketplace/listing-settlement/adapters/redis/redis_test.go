package redisadapter

import (
	"context"
	"testing"
	"time"

	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	"key2key/contexts/marketplace/listing-settlement/ports"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func setupRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestIdempotencyStoreFirstOutcomeWins(t *testing.T) {
	_, client := setupRedis(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore(client, fixedClock{now: now}, nil)
	ctx := context.Background()

	first := ports.IdempotencyRecord{
		Key:               "evt-1:captured",
		PayloadHash:       "hash-a",
		Outcome:           ports.EventOutcomeApplied,
		TransactionID:     "txn-1",
		TransactionStatus: entities.TransactionStatusCaptured,
		ExpiresAt:         now.Add(time.Hour),
	}
	require.NoError(t, store.Put(ctx, first))

	second := first
	second.Outcome = ports.EventOutcomeDuplicate
	second.PayloadHash = "hash-b"
	require.NoError(t, store.Put(ctx, second))

	record, found, err := store.Get(ctx, first.Key, now)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, ports.EventOutcomeApplied, record.Outcome)
	assert.Equal(t, "hash-a", record.PayloadHash)
	assert.Equal(t, entities.TransactionStatusCaptured, record.TransactionStatus)
}

func TestIdempotencyStoreExpiry(t *testing.T) {
	mr, client := setupRedis(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore(client, fixedClock{now: now}, nil)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, ports.IdempotencyRecord{
		Key:       "evt-2:authorized",
		Outcome:   ports.EventOutcomeApplied,
		ExpiresAt: now.Add(time.Minute),
	}))

	_, found, err := store.Get(ctx, "evt-2:authorized", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, found, "record past its expiry must not be returned")

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists(idempotencyPrefix+"evt-2:authorized"))
}

func TestIdempotencyStoreSkipsExpiredRecord(t *testing.T) {
	mr, client := setupRedis(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewIdempotencyStore(client, fixedClock{now: now}, nil)

	require.NoError(t, store.Put(context.Background(), ports.IdempotencyRecord{
		Key:       "evt-3:failed",
		ExpiresAt: now.Add(-time.Second),
	}))
	assert.False(t, mr.Exists(idempotencyPrefix+"evt-3:failed"))
}

func TestIdempotencyStoreMissingKey(t *testing.T) {
	_, client := setupRedis(t)
	store := NewIdempotencyStore(client, nil, nil)

	_, found, err := store.Get(context.Background(), "unknown", time.Now())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSweepLockSingleHolder(t *testing.T) {
	_, client := setupRedis(t)
	lock := NewSweepLock(client, nil)
	ctx := context.Background()

	release, acquired, err := lock.TryLock(ctx, "settlement:reservations", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	_, acquiredAgain, err := lock.TryLock(ctx, "settlement:reservations", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquiredAgain, "second replica must not run the same sweep")

	_, otherAcquired, err := lock.TryLock(ctx, "settlement:assignment-sla", time.Minute)
	require.NoError(t, err)
	assert.True(t, otherAcquired, "locks are per sweep")

	release()
	_, reacquired, err := lock.TryLock(ctx, "settlement:reservations", time.Minute)
	require.NoError(t, err)
	assert.True(t, reacquired)
}
