package syncpipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncfleet/syncfleet/pkg/coordination"
	"github.com/syncfleet/syncfleet/pkg/membership"
	"github.com/syncfleet/syncfleet/pkg/reconcile"
	"github.com/syncfleet/syncfleet/pkg/tasksstore"
)

type countingReconciler struct {
	count atomic.Int64
}

func (r *countingReconciler) Reconcile(ctx context.Context, job tasksstore.SyncRecord, creds reconcile.Credentials) error {
	r.count.Add(1)
	return nil
}

func joinNode(t *testing.T, ctx context.Context, store *coordination.Memory, nodeID string) int64 {
	t.Helper()
	grant, err := store.LeaseGrant(ctx, 30)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, membership.Prefix+nodeID, "replica", grant.ID))
	return grant.ID
}

func TestPipeline_TickSkipOnPartitionQueryFailure(t *testing.T) {
	ctx := context.Background()
	store := coordination.NewMemory()
	lease := joinNode(t, ctx, store, "a")

	tasks := tasksstore.NewMemory()
	tasks.PutSyncRecords(0, []tasksstore.SyncRecord{{UserID: "u1", Partition: 0}})
	tasks.PutSyncRecords(1, []tasksstore.SyncRecord{{UserID: "u1", Partition: 1}})
	tasks.Fail[2] = errors.New("injected failure")
	tasks.PutUser(tasksstore.UserRecord{UserID: "u1"})

	reconciler := &countingReconciler{}

	p := New(store, "a", 3, tasks, reconciler, func() int64 { return lease })
	p.workers.start()
	defer p.workers.stop()

	err := p.runTick(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 2, reconciler.count.Load(), "partitions 0 and 1 should have reconciled, partition 2 should have been skipped")
}

// TestPipeline_ReconcileOneClearsInFlightWhenPoolStopped guards against a prior bug: if the
// worker pool is stopped before a submitted job is picked up, the job closure (which owned
// clearing the in-flight handle) never runs, leaking the handle forever.
func TestPipeline_ReconcileOneClearsInFlightWhenPoolStopped(t *testing.T) {
	ctx := context.Background()
	store := coordination.NewMemory()
	lease := joinNode(t, ctx, store, "a")

	tasks := tasksstore.NewMemory()
	tasks.PutUser(tasksstore.UserRecord{UserID: "user-1"})

	p := New(store, "a", 1, tasks, &countingReconciler{}, func() int64 { return lease })
	p.workers.stop() // stopped without ever being started: jobCh has no reader

	var wg sync.WaitGroup
	wg.Add(1)
	p.reconcileOne(ctx, tasksstore.SyncRecord{UserID: "user-1", Partition: 0}, &wg)
	wg.Wait()

	assert.Equal(t, 0, p.InFlightCount(), "in-flight handle must be cleared even when the job never runs")
}

func TestPipeline_CancellationTimeliness(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := coordination.NewMemory()
	lease := joinNode(t, ctx, store, "a")

	tasks := tasksstore.NewMemory()

	p := New(store, "a", 1, tasks, &countingReconciler{}, func() int64 { return lease }, WithTickInterval(time.Hour))

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("pipeline did not stop promptly after cancellation")
	}
}
