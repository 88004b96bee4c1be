package redisclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hackgods/banquet-slot-booking/internal/idempotency"
)

// IdempotencyStore keeps idempotency records as JSON strings. A claim is a
// SETNX with a short ttl; the completed response is stored with the long ttl.
type IdempotencyStore struct {
	client        *redis.Client
	ttl           time.Duration
	processingTTL time.Duration
}

func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}
	return &IdempotencyStore{
		client:        client,
		ttl:           ttl,
		processingTTL: idempotency.DefaultProcessingTTL,
	}
}

func idempotencyKey(key string) string {
	return keyPrefix + "idempotency:" + key
}

func (s *IdempotencyStore) Begin(ctx context.Context, key, requestHash string) (*idempotency.Record, bool, error) {
	rec := idempotency.Record{
		Key:         key,
		Status:      idempotency.StatusProcessing,
		RequestHash: requestHash,
		CreatedAt:   time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, false, err
	}

	ok, err := s.client.SetNX(ctx, idempotencyKey(key), data, s.processingTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return &rec, true, nil
	}

	existing, err := s.get(ctx, key)
	if errors.Is(err, idempotency.ErrNotFound) {
		// Expired between SETNX and GET. Let the caller retry.
		return &rec, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key string, code int, body []byte) error {
	rec, err := s.get(ctx, key)
	if err != nil {
		return err
	}
	rec.Status = idempotency.StatusCompleted
	rec.ResponseCode = code
	rec.ResponseBody = body

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, idempotencyKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store idempotency response: %w", err)
	}
	return nil
}

func (s *IdempotencyStore) Abort(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyKey(key)).Err()
}

func (s *IdempotencyStore) get(ctx context.Context, key string) (*idempotency.Record, error) {
	raw, err := s.client.Get(ctx, idempotencyKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, idempotency.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load idempotency record: %w", err)
	}

	var rec idempotency.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &rec, nil
}
