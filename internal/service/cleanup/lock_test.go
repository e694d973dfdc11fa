package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return s, client
}

func TestRedisLocker_Exclusive(t *testing.T) {
	s, client := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisLocker(client, "assetpipe:cleanup:lock", time.Minute)
	b := NewRedisLocker(client, "assetpipe:cleanup:lock", time.Minute)

	unlockA, ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, s.Exists("assetpipe:cleanup:lock"))

	_, ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	unlockA()
	assert.False(t, s.Exists("assetpipe:cleanup:lock"))

	unlockB, ok, err := b.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	unlockB()
}

func TestRedisLocker_ExpiredLockIsNotStolenBack(t *testing.T) {
	s, client := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisLocker(client, "lock", time.Minute)
	b := NewRedisLocker(client, "lock", time.Minute)

	unlockA, ok, err := a.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	s.FastForward(2 * time.Minute)

	_, ok, err = b.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// a's late release must not delete b's lock
	unlockA()
	assert.True(t, s.Exists("lock"))
}

func TestLocalLocker(t *testing.T) {
	var l LocalLocker
	unlock, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = l.TryLock(context.Background())
	assert.False(t, ok)

	unlock()
	_, ok, _ = l.TryLock(context.Background())
	assert.True(t, ok)
}
