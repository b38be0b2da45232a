package syncpipeline

import (
	"sync"
	"time"
)

// inFlightJob records a reconciliation currently executing for one partition. Losing a
// partition mid-reconciliation self-corrects on the next tick once ownership is re-confirmed,
// so there is no fencing token or hand-off state to track here. This bookkeeping exists purely
// to answer "what is running right now" for graceful shutdown and introspection.
type inFlightJob struct {
	UserID    string
	Partition int
	StartedAt time.Time
}

// inFlightTracker tracks jobs currently executing, keyed by an opaque handle returned from
// start.
type inFlightTracker struct {
	mu    sync.Mutex
	seq   int64
	items map[int64]inFlightJob
}

func newInFlightTracker() *inFlightTracker {
	return &inFlightTracker{items: make(map[int64]inFlightJob)}
}

// start records a new in-flight job and returns a handle to pass to finish.
func (t *inFlightTracker) start(userID string, partition int, startedAt time.Time) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seq++
	handle := t.seq
	t.items[handle] = inFlightJob{UserID: userID, Partition: partition, StartedAt: startedAt}
	return handle
}

// finish removes a job from the in-flight set.
func (t *inFlightTracker) finish(handle int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.items, handle)
}

// snapshot returns every job currently in flight, for introspection and shutdown reporting.
func (t *inFlightTracker) snapshot() []inFlightJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]inFlightJob, 0, len(t.items))
	for _, job := range t.items {
		out = append(out, job)
	}
	return out
}

// count returns the number of jobs currently in flight.
func (t *inFlightTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}
