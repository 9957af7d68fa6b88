package redisadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	application "key2key/contexts/marketplace/listing-settlement/application"
	"key2key/contexts/marketplace/listing-settlement/domain/entities"
	"key2key/contexts/marketplace/listing-settlement/ports"

	"github.com/redis/go-redis/v9"
)

const idempotencyPrefix = "settlement:dedup:"

// IdempotencyStore keeps processed gateway events in Redis. Keys expire with
// the record's TTL, so eviction needs no sweep.
type IdempotencyStore struct {
	client redis.UniversalClient
	clock  ports.Clock
	logger *slog.Logger
}

func NewIdempotencyStore(client redis.UniversalClient, clock ports.Clock, logger *slog.Logger) *IdempotencyStore {
	return &IdempotencyStore{
		client: client,
		clock:  clock,
		logger: application.ResolveLogger(logger),
	}
}

type storedRecord struct {
	PayloadHash       string    `json:"payload_hash"`
	Outcome           string    `json:"outcome"`
	TransactionID     string    `json:"transaction_id,omitempty"`
	TransactionStatus string    `json:"transaction_status,omitempty"`
	ExpiresAt         time.Time `json:"expires_at"`
}

func (s *IdempotencyStore) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	raw, err := s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, fmt.Errorf("redis dedup get: %w", err)
	}

	var stored storedRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		s.logger.Warn("dropping unreadable dedup record",
			"event", "redis_dedup_record_corrupt",
			"module", "marketplace/listing-settlement",
			"layer", "adapter",
			"key", key,
			"error", err.Error(),
		)
		return ports.IdempotencyRecord{}, false, nil
	}
	if !stored.ExpiresAt.IsZero() && !now.UTC().Before(stored.ExpiresAt) {
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:               key,
		PayloadHash:       stored.PayloadHash,
		Outcome:           ports.EventOutcome(stored.Outcome),
		TransactionID:     stored.TransactionID,
		TransactionStatus: entities.TransactionStatus(stored.TransactionStatus),
		ExpiresAt:         stored.ExpiresAt,
	}, true, nil
}

// Put writes with SET NX so the first outcome recorded for a key wins.
func (s *IdempotencyStore) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	ttl := record.ExpiresAt.Sub(application.Now(s.clock))
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(storedRecord{
		PayloadHash:       record.PayloadHash,
		Outcome:           string(record.Outcome),
		TransactionID:     record.TransactionID,
		TransactionStatus: string(record.TransactionStatus),
		ExpiresAt:         record.ExpiresAt.UTC(),
	})
	if err != nil {
		return err
	}
	if err := s.client.SetNX(ctx, idempotencyPrefix+record.Key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis dedup put: %w", err)
	}
	return nil
}
