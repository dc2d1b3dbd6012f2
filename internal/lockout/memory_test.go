package lockout

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = Policy{Threshold: 5, Duration: 5 * time.Minute}

func TestMemoryStore_IdleEntriesAreForgotten(t *testing.T) {
	store := NewMemoryStore(10 * time.Minute)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.Increment(ctx, "a@x.com", testPolicy, now)
	require.NoError(t, err)

	state, err := store.Get(ctx, "a@x.com", now.Add(9*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, state.AttemptCount)

	state, err = store.Get(ctx, "a@x.com", now.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, state.AttemptCount)

	state, err = store.Increment(ctx, "a@x.com", testPolicy, now.Add(11*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, state.AttemptCount)
}

func TestMemoryStore_SweepKeepsActiveLocks(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	longLock := Policy{Threshold: 1, Duration: time.Hour}

	_, err := store.Increment(ctx, "locked@x.com", longLock, now)
	require.NoError(t, err)
	_, err = store.Increment(ctx, "idle@x.com", testPolicy, now)
	require.NoError(t, err)

	removed, err := store.Sweep(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, 1, store.Len())

	state, err := store.Get(ctx, "locked@x.com", now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, state.Locked(now.Add(2*time.Minute)))
}

func TestMemoryStore_SweepsWhenOverCapacity(t *testing.T) {
	store := NewMemoryStore(time.Minute, WithMaxEntries(3))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := store.Increment(ctx, fmt.Sprintf("user%d@x.com", i), testPolicy, now)
		require.NoError(t, err)
	}

	_, err := store.Increment(ctx, "late@x.com", testPolicy, now.Add(5*time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len())
}

func TestMemoryStore_CapEvictsOldestUnlocked(t *testing.T) {
	store := NewMemoryStore(time.Hour, WithMaxEntries(3))
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < testPolicy.Threshold; i++ {
		_, err := store.Increment(ctx, "locked@x.com", testPolicy, now)
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		_, err := store.Increment(ctx, fmt.Sprintf("flood%d@x.com", i), testPolicy, now.Add(time.Duration(i+1)*time.Second))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, store.Len())

	at := now.Add(time.Minute)
	locked, err := store.Get(ctx, "locked@x.com", at)
	require.NoError(t, err)
	assert.True(t, locked.Locked(at))

	newest, err := store.Get(ctx, "flood9@x.com", at)
	require.NoError(t, err)
	assert.Equal(t, 1, newest.AttemptCount)

	evicted, err := store.Get(ctx, "flood0@x.com", at)
	require.NoError(t, err)
	assert.Zero(t, evicted.AttemptCount)
}

func TestMemoryStore_Clear(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := store.Increment(ctx, "a@x.com", testPolicy, now)
	require.NoError(t, err)
	require.NoError(t, store.Clear(ctx, "a@x.com"))
	require.NoError(t, store.Clear(ctx, "missing@x.com"))

	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_JanitorStopsWithContext(t *testing.T) {
	store := NewMemoryStore(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := store.Increment(ctx, "a@x.com", testPolicy, time.Now().UTC().Add(-time.Second))
	require.NoError(t, err)

	store.StartJanitor(ctx, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
}
