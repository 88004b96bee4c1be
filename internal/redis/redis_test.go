package redisclient

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/banquet-slot-booking/internal/idempotency"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping Redis integration test")
	}
	rdb, err := NewRedisClient(addr, os.Getenv("TEST_REDIS_USERNAME"), os.Getenv("TEST_REDIS_PASSWORD"))
	if err != nil {
		t.Skipf("skipping Redis integration test: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestLocker_Exclusive(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	locker := NewLocker(rdb, 5*time.Second)
	name := "test-" + uuid.NewString()

	ran := false
	err := locker.WithLock(ctx, name, func(ctx context.Context) error {
		ran = true
		err := locker.WithLock(ctx, name, func(context.Context) error {
			t.Fatal("nested holder must not run")
			return nil
		})
		assert.ErrorIs(t, err, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// Released on return.
	require.NoError(t, locker.WithLock(ctx, name, func(context.Context) error { return nil }))
}

func TestIdempotencyStore_Lifecycle(t *testing.T) {
	rdb := newTestClient(t)
	ctx := context.Background()
	store := NewIdempotencyStore(rdb, time.Minute)
	key := uuid.NewString()
	t.Cleanup(func() { _ = store.Abort(context.Background(), key) })

	_, claimed, err := store.Begin(ctx, key, "hash")
	require.NoError(t, err)
	require.True(t, claimed)

	rec, claimed, err := store.Begin(ctx, key, "hash")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, idempotency.StatusProcessing, rec.Status)

	require.NoError(t, store.Complete(ctx, key, http.StatusCreated, []byte(`{"id":"x"}`)))

	rec, claimed, err = store.Begin(ctx, key, "hash")
	require.NoError(t, err)
	assert.False(t, claimed)
	assert.Equal(t, idempotency.StatusCompleted, rec.Status)
	assert.Equal(t, http.StatusCreated, rec.ResponseCode)
	assert.JSONEq(t, `{"id":"x"}`, string(rec.ResponseBody))

	ttl, err := rdb.TTL(ctx, idempotencyKey(key)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 30*time.Second)
}
