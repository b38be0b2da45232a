package lease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncfleet/syncfleet/pkg/coordination"
)

func TestManager_AcquireThenRunRefreshesUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := coordination.NewMemory()
	m := New(store)
	require.NoError(t, m.Acquire(ctx))
	assert.NotZero(t, m.LeaseID())

	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	// The memory fake's lease does not auto-expire between KeepAliveOnce calls, so Run keeps
	// looping and refreshing until cancelled.
	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}

func TestManager_RunReturnsLeaseLostWhenStoreExpiresLease(t *testing.T) {
	ctx := context.Background()
	store := coordination.NewMemory()
	m := New(store).WithTTL(time.Second)
	require.NoError(t, m.Acquire(ctx))

	store.ExpireNow(m.LeaseID())

	err := m.Run(ctx)
	assert.ErrorIs(t, err, ErrLeaseLost)
}

func TestRefreshInterval_NormalTTLRefreshesAtTwoThirds(t *testing.T) {
	got := refreshInterval(30 * time.Second)
	assert.Equal(t, 20*time.Second, got)
}

func TestRefreshInterval_ShortTTLHalvesInterval(t *testing.T) {
	// ttl - preemption would go negative/small here, so half(ttl) dominates.
	got := refreshInterval(6 * time.Second)
	assert.Equal(t, 3*time.Second, got)
}

func TestManager_Revoke(t *testing.T) {
	ctx := context.Background()
	store := coordination.NewMemory()
	m := New(store)
	require.NoError(t, m.Acquire(ctx))
	require.NoError(t, store.Put(ctx, "/nodes/a", "replica", m.LeaseID()))

	require.NoError(t, m.Revoke(ctx))

	kvs, err := store.Range(ctx, "/nodes/")
	require.NoError(t, err)
	assert.Empty(t, kvs)
}
