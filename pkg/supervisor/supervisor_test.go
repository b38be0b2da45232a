package supervisor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncfleet/syncfleet/pkg/coordination"
	"github.com/syncfleet/syncfleet/pkg/membership"
)

// blockingPipeline runs until its context is cancelled, counting how many times it started.
type blockingPipeline struct {
	starts atomic.Int64
}

func (p *blockingPipeline) Run(ctx context.Context) error {
	p.starts.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestSupervisor_ShutdownRevokesLeaseAndReturns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := coordination.NewMemory()
	pipeline := &blockingPipeline{}

	s := New(store, "node-a", pipeline, nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// Wait for the pipeline to actually start before shutting down, so the race has settled
	// into the steady state the diagram describes.
	require.Eventually(t, func() bool { return pipeline.starts.Load() > 0 }, time.Second, time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not shut down promptly")
	}

	kvs, err := store.Range(context.Background(), membership.Prefix)
	require.NoError(t, err)
	assert.Empty(t, kvs, "membership key should be gone once the lease is revoked")
}

func TestSupervisor_RecoversFromLeaseLoss(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := coordination.NewMemory()
	pipeline := &blockingPipeline{}

	s := New(store, "node-a", pipeline, nil)
	s.backoff = time.Millisecond
	// A short TTL keeps the keep-alive refresh cadence well under the test's timeout; the
	// default 30s TTL refreshes only every 20s, far too slow to observe here.
	s.leaseMgr = s.leaseMgr.WithTTL(2 * time.Second)

	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return pipeline.starts.Load() >= 1 }, time.Second, time.Millisecond)

	store.ExpireNow(s.LeaseID())

	require.Eventually(t, func() bool { return pipeline.starts.Load() >= 2 }, 3*time.Second, 5*time.Millisecond,
		"supervisor should have reacquired a lease and restarted the pipeline")
}
