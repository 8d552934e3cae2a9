package keypool

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocccco-max/nexusv2/pkg/kvstore"
)

func setupTestPool(t *testing.T) (*Pool, kvstore.Store) {
	store := kvstore.NewMemory()
	p, err := New(context.Background(), store, zerolog.Nop())
	require.NoError(t, err)
	return p, store
}

func TestPool_AddIsIdempotent(t *testing.T) {
	p, _ := setupTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, "key-a"))
	require.NoError(t, p.Add(ctx, "key-a"))

	keys := p.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, "key-a", keys[0].Secret)
	assert.True(t, keys[0].Active)
	assert.Equal(t, 0, keys[0].FailCount)
}

func TestPool_AddEmptySecret(t *testing.T) {
	p, _ := setupTestPool(t)

	err := p.Add(context.Background(), "")
	assert.Error(t, err)
}

func TestPool_RemoveMissingIsNoop(t *testing.T) {
	p, _ := setupTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, "key-a"))
	require.NoError(t, p.Remove(ctx, "key-b"))
	assert.Len(t, p.Keys(), 1)

	require.NoError(t, p.Remove(ctx, "key-a"))
	assert.Empty(t, p.Keys())
}

func TestPool_AcquireRotatesFairly(t *testing.T) {
	p, _ := setupTestPool(t)
	ctx := context.Background()

	secrets := []string{"key-a", "key-b", "key-c"}
	for _, s := range secrets {
		require.NoError(t, p.Add(ctx, s))
	}

	// Each key is returned exactly once per round, in insertion order.
	for round := 0; round < 3; round++ {
		for _, want := range secrets {
			got, err := p.Acquire()
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	}
}

func TestPool_AcquireEmptyPool(t *testing.T) {
	p, _ := setupTestPool(t)

	_, err := p.Acquire()
	assert.ErrorIs(t, err, ErrNoActiveKey)
}

func TestPool_AcquireAllInactive(t *testing.T) {
	p, _ := setupTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, "key-a"))
	for i := 0; i < 3; i++ {
		require.NoError(t, p.ReportFailure(ctx, "key-a"))
	}

	_, err := p.Acquire()
	assert.ErrorIs(t, err, ErrNoActiveKey)

	// The failed acquire must not have mutated anything.
	keys := p.Keys()
	require.Len(t, keys, 1)
	assert.False(t, keys[0].Active)
	assert.Equal(t, 3, keys[0].FailCount)
}

func TestPool_DeactivationAfterThreeFailures(t *testing.T) {
	p, _ := setupTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, "key-a"))
	require.NoError(t, p.Add(ctx, "key-b"))

	require.NoError(t, p.ReportFailure(ctx, "key-a"))
	require.NoError(t, p.ReportFailure(ctx, "key-a"))

	keys := p.Keys()
	assert.True(t, keys[0].Active, "two failures must not deactivate")

	require.NoError(t, p.ReportFailure(ctx, "key-a"))

	keys = p.Keys()
	assert.False(t, keys[0].Active)

	// Rotation now only ever returns the remaining active key.
	for i := 0; i < 5; i++ {
		got, err := p.Acquire()
		require.NoError(t, err)
		assert.Equal(t, "key-b", got)
	}
}

func TestPool_ReportSuccessRecovers(t *testing.T) {
	p, _ := setupTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, "key-a"))
	for i := 0; i < 3; i++ {
		require.NoError(t, p.ReportFailure(ctx, "key-a"))
	}
	require.False(t, p.Keys()[0].Active)

	require.NoError(t, p.ReportSuccess(ctx, "key-a"))

	keys := p.Keys()
	assert.True(t, keys[0].Active)
	assert.Equal(t, 0, keys[0].FailCount)
}

func TestPool_ReportOnUnknownSecretIsNoop(t *testing.T) {
	p, _ := setupTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, "key-a"))
	require.NoError(t, p.ReportFailure(ctx, "key-x"))
	require.NoError(t, p.ReportSuccess(ctx, "key-x"))

	keys := p.Keys()
	assert.Equal(t, 0, keys[0].FailCount)
}

func TestPool_CursorSkipsInactiveWithoutReset(t *testing.T) {
	p, _ := setupTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, "key-a"))
	require.NoError(t, p.Add(ctx, "key-b"))

	got, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "key-a", got)

	// Deactivating a key shrinks the active list but the cursor keeps
	// counting; selection stays modulo the current active set.
	for i := 0; i < 3; i++ {
		require.NoError(t, p.ReportFailure(ctx, "key-a"))
	}

	got, err = p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, "key-b", got)
}

func TestPool_PersistsAcrossReload(t *testing.T) {
	p, store := setupTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, "key-a"))
	require.NoError(t, p.Add(ctx, "key-b"))
	require.NoError(t, p.ReportFailure(ctx, "key-b"))

	reloaded, err := New(ctx, store, zerolog.Nop())
	require.NoError(t, err)

	keys := reloaded.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, "key-a", keys[0].Secret)
	assert.Equal(t, 0, keys[0].FailCount)
	assert.Equal(t, "key-b", keys[1].Secret)
	assert.Equal(t, 1, keys[1].FailCount)
	assert.True(t, keys[1].Active)
}

func TestPool_ActiveCount(t *testing.T) {
	p, _ := setupTestPool(t)
	ctx := context.Background()

	require.NoError(t, p.Add(ctx, "key-a"))
	require.NoError(t, p.Add(ctx, "key-b"))
	assert.Equal(t, 2, p.ActiveCount())

	for i := 0; i < 3; i++ {
		require.NoError(t, p.ReportFailure(ctx, "key-a"))
	}
	assert.Equal(t, 1, p.ActiveCount())
}

// brokenStore wraps a working store and fails every Put once armed.
type brokenStore struct {
	kvstore.Store
	failPuts bool
}

func (s *brokenStore) Put(ctx context.Context, key string, value []byte) error {
	if s.failPuts {
		return errors.New("disk full")
	}
	return s.Store.Put(ctx, key, value)
}

func TestPool_PersistFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	store := &brokenStore{Store: kvstore.NewMemory()}
	p, err := New(ctx, store, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, p.Add(ctx, "key-a"))
	for i := 0; i < 2; i++ {
		require.NoError(t, p.ReportFailure(ctx, "key-a"))
	}
	store.failPuts = true

	// A failed persist leaves the key exactly as it was, on every mutation.
	require.Error(t, p.ReportFailure(ctx, "key-a"))
	keys := p.Keys()
	require.Len(t, keys, 1)
	assert.Equal(t, 2, keys[0].FailCount)
	assert.True(t, keys[0].Active)

	require.Error(t, p.ReportSuccess(ctx, "key-a"))
	assert.Equal(t, 2, p.Keys()[0].FailCount)

	require.Error(t, p.Remove(ctx, "key-a"))
	require.Len(t, p.Keys(), 1)

	require.Error(t, p.Add(ctx, "key-b"))
	require.Len(t, p.Keys(), 1)

	store.failPuts = false
	require.NoError(t, p.ReportFailure(ctx, "key-a"))
	assert.False(t, p.Keys()[0].Active)
}
