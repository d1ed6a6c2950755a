package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ BlobStore = (*RedisStore)(nil)

// setupTestRedis creates a miniredis server and returns a RedisStore pointing to it
func setupTestRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis, func()) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	store := NewRedisStore(client)

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return store, mr, cleanup
}

func TestRedisStore_Get_Success(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, mr.Set("cart:abc", `[{"productId":"P1"}]`))

	data, err := store.Get(context.Background(), "cart:abc")
	require.NoError(t, err)
	assert.Equal(t, `[{"productId":"P1"}]`, string(data))
}

func TestRedisStore_Get_Miss(t *testing.T) {
	store, _, cleanup := setupTestRedis(t)
	defer cleanup()

	data, err := store.Get(context.Background(), "cart:nonexistent")
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.Nil(t, data)
}

func TestRedisStore_Set_WithTTL(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	err := store.Set(context.Background(), "cart:abc", []byte(`[]`))
	require.NoError(t, err)

	stored, err := mr.Get("cart:abc")
	require.NoError(t, err)
	assert.Equal(t, `[]`, stored)

	ttl := mr.TTL("cart:abc")
	assert.True(t, ttl >= DefaultRedisTTL, "TTL should be at least base TTL")
	assert.True(t, ttl < DefaultRedisTTL+24*time.Hour, "TTL should be base + max jitter")
}

func TestRedisStore_Delete(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	require.NoError(t, mr.Set("cart:abc", `[]`))
	assert.True(t, mr.Exists("cart:abc"))

	require.NoError(t, store.Delete(context.Background(), "cart:abc"))
	assert.False(t, mr.Exists("cart:abc"))

	// deleting a missing key should not error
	assert.NoError(t, store.Delete(context.Background(), "cart:nonexistent"))
}

func TestRedisStore_ServerDown(t *testing.T) {
	store, mr, cleanup := setupTestRedis(t)
	defer cleanup()

	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, store.Ping(ctx))
	_, err := store.Get(ctx, "cart:abc")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrBlobNotFound)
	assert.ErrorContains(t, store.Set(ctx, "cart:abc", []byte(`[]`)), "redis set failed")
}
