package syncpipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_SubmitRunsJobAndReportsAccepted(t *testing.T) {
	pool := newWorkerPool(1)
	pool.start()
	defer pool.stop()

	done := make(chan struct{})
	accepted := pool.submit(func() { close(done) })

	assert.True(t, accepted)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
	assert.Equal(t, int64(1), pool.processedCount())
}

func TestWorkerPool_SubmitAfterStopReportsNotAccepted(t *testing.T) {
	pool := newWorkerPool(1)
	pool.start()
	pool.stop()

	ran := false
	accepted := pool.submit(func() { ran = true })

	assert.False(t, accepted)
	assert.False(t, ran, "job must not run once the pool has stopped")
}

// TestWorkerPool_SubmitDuringShutdownLetsCallerCleanUp exercises the race reconcileOne guards
// against: a job submitted just as stop() closes stopCh, before any worker accepts it, must
// report accepted=false so the caller can release any bookkeeping (e.g. the in-flight tracker
// handle) that would otherwise have been released inside the job closure itself.
func TestWorkerPool_SubmitDuringShutdownLetsCallerCleanUp(t *testing.T) {
	pool := newWorkerPool(0) // size floors to 1, but never started: jobCh has no reader
	close(pool.stopCh)

	cleanedUp := false
	accepted := pool.submit(func() {
		t.Fatal("job must not run when stopCh is already closed")
	})
	if !accepted {
		cleanedUp = true
	}

	require.False(t, accepted)
	assert.True(t, cleanedUp, "caller must perform the cleanup the job would have done")
}
