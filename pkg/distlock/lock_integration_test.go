//go:build integration

package distlock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailwave/internal/testinfra"
	"mailwave/pkg/distlock"
)

func TestRedisLocker_SingleHolderAcrossClients(t *testing.T) {
	client := testinfra.Redis(t)
	ctx := context.Background()

	lockers := []*distlock.RedisLocker{distlock.NewRedisLocker(client), distlock.NewRedisLocker(client)}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		holders []distlock.Lock
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(l *distlock.RedisLocker) {
			defer wg.Done()
			lock, err := l.Acquire(ctx, "scheduler:tick", 5*time.Second)
			assert.NoError(t, err)
			if lock != nil {
				mu.Lock()
				holders = append(holders, lock)
				mu.Unlock()
			}
		}(lockers[i%2])
	}
	wg.Wait()
	require.Len(t, holders, 1)

	require.NoError(t, holders[0].Release(ctx))

	lock, err := lockers[1].Acquire(ctx, "scheduler:tick", 5*time.Second)
	require.NoError(t, err)
	assert.NotNil(t, lock)
}

func TestRedisLocker_ExpiresAfterTTL(t *testing.T) {
	client := testinfra.Redis(t)
	ctx := context.Background()
	locker := distlock.NewRedisLocker(client)

	first, err := locker.Acquire(ctx, "short", 200*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, first)

	require.Eventually(t, func() bool {
		lock, err := locker.Acquire(ctx, "short", time.Second)
		return err == nil && lock != nil
	}, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, first.Release(ctx))
	exists, err := client.Exists(ctx, "lock:short").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}
