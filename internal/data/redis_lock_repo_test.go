package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/harvestd/internal/testutil"
)

func TestRedisLockRepo_AcquireRelease(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	client := testutil.SetupTestRedis(t)
	defer client.Close()

	repo := NewRedisLockRepo(client)
	ctx := context.Background()
	key := "test:harvest:pass-lock"
	t.Cleanup(func() { client.Del(context.Background(), key) })

	require.NoError(t, repo.Health(ctx))

	ok, err := repo.Acquire(ctx, key, "owner-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Acquire(ctx, key, "owner-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while the lock is held")

	released, err := repo.Release(ctx, key, "owner-b")
	require.NoError(t, err)
	assert.False(t, released, "a different token must not release the lock")

	released, err = repo.Release(ctx, key, "owner-a")
	require.NoError(t, err)
	assert.True(t, released)

	ok, err = repo.Acquire(ctx, key, "owner-b", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	ttl := client.TTL(ctx, key).Val()
	assert.True(t, ttl > 0 && ttl <= time.Second)
}

func TestRedisLockRepo_EmptyKey(t *testing.T) {
	repo := NewRedisLockRepo(nil)
	_, err := repo.Acquire(context.Background(), "", "x", time.Second)
	require.Error(t, err)
	_, err = repo.Release(context.Background(), "", "x")
	require.Error(t, err)
}
