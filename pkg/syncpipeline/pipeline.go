// Package syncpipeline processes due sync jobs in this node's confirmed-owned partitions on
// a fixed tick, fanning out partition queries with a small stagger and a bounded retry, then
// reconciling each due job at most once.
package syncpipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/syncfleet/syncfleet/pkg/coordination"
	"github.com/syncfleet/syncfleet/pkg/metrics"
	"github.com/syncfleet/syncfleet/pkg/partition"
	"github.com/syncfleet/syncfleet/pkg/reconcile"
	"github.com/syncfleet/syncfleet/pkg/retry"
	"github.com/syncfleet/syncfleet/pkg/tasksstore"
)

const (
	// TickInterval is the design-default pause between pipeline ticks.
	TickInterval = 20 * time.Second

	// stagger is the pause between successive partition-query task spawns within one tick.
	stagger = 20 * time.Millisecond

	partitionQueryInitialBackoff = 5 * time.Millisecond
	partitionQueryMaxBackoff     = 10 * time.Second
	partitionQueryMaxAttempts    = 10
)

// Pipeline owns one tick loop: get confirmed owned partitions, query due jobs per partition,
// and reconcile each one.
type Pipeline struct {
	balancer   *partition.Balancer
	store      tasksstore.Store
	reconciler reconcile.Reconciler
	leaseID    func() int64
	logger     *slog.Logger

	tick      time.Duration
	staggerBy time.Duration

	credCache *credCache
	inFlight  *inFlightTracker
	workers   *workerPool
	metrics   *metrics.Manager
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTickInterval overrides the default 20s tick interval.
func WithTickInterval(d time.Duration) Option {
	return func(p *Pipeline) { p.tick = d }
}

// WithConcurrency sets the reconciliation worker pool size (APP_RECONCILE_CONCURRENCY).
// Size 1 reconciles jobs one at a time.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) { p.workers = newWorkerPool(n) }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics attaches a metrics.Manager to record tick duration, partition-query retry
// outcomes, and reconciliation results.
func WithMetrics(mgr *metrics.Manager) Option {
	return func(p *Pipeline) { p.metrics = mgr }
}

// New constructs a Pipeline. leaseID is called once per tick to fetch the lease id to bind
// new partition-lock claims to.
func New(client coordination.Client, nodeID string, partitionCount int, store tasksstore.Store, reconciler reconcile.Reconciler, leaseID func() int64, opts ...Option) *Pipeline {
	p := &Pipeline{
		balancer:   partition.New(client, nodeID, partitionCount),
		store:      store,
		reconciler: reconciler,
		leaseID:    leaseID,
		tick:       TickInterval,
		staggerBy:  stagger,
		credCache:  newCredCache(store),
		inFlight:   newInFlightTracker(),
		workers:    newWorkerPool(1),
		metrics:    metrics.NoOpManager(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.balancer.WithMetrics(p.metrics)
	return p
}

// Run loops until ctx is cancelled, executing one tick immediately and then every
// p.tick thereafter. It returns ctx.Err() on cancellation: every suspension point selects on
// ctx.Done() so shutdown is prompt.
func (p *Pipeline) Run(ctx context.Context) error {
	// A stopped pool cannot be restarted, and the Supervisor calls Run again after every lease
	// loss, so each Run gets a fresh pool of the configured size.
	p.workers = newWorkerPool(p.workers.size)
	p.workers.start()
	defer p.workers.stop()

	for {
		if err := p.runTick(ctx); err != nil {
			if p.logger != nil {
				p.logger.ErrorContext(ctx, "sync pipeline tick failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.tick):
		}
	}
}

// InFlightCount reports how many reconciliations are currently executing, for graceful
// shutdown and introspection.
func (p *Pipeline) InFlightCount() int { return p.inFlight.count() }

func (p *Pipeline) runTick(ctx context.Context) error {
	start := time.Now()
	defer func() { p.metrics.ObserveTickDuration(time.Since(start)) }()

	owned, err := p.balancer.Reconcile(ctx, p.leaseID())
	if err != nil {
		return err
	}

	records, err := p.fanOutPartitionQueries(ctx, owned)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, record := range records {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		p.reconcileOne(ctx, record, &wg)
	}
	wg.Wait()
	return nil
}

// fanOutPartitionQueries spawns one query per owned partition, staggered by p.staggerBy, each
// wrapped in a bounded exponential-backoff retry. A partition whose query exhausts its retry
// budget contributes no records to this tick and is logged, not fatal.
func (p *Pipeline) fanOutPartitionQueries(ctx context.Context, owned map[int]bool) ([]tasksstore.SyncRecord, error) {
	partitions := make([]int, 0, len(owned))
	for part := range owned {
		partitions = append(partitions, part)
	}

	results := make([][]tasksstore.SyncRecord, len(partitions))
	group, groupCtx := errgroup.WithContext(ctx)

	ticker := time.NewTicker(p.staggerBy)
	defer ticker.Stop()

	for i, part := range partitions {
		i, part := i, part
		if i > 0 {
			select {
			case <-ticker.C:
			case <-groupCtx.Done():
			}
		}

		group.Go(func() error {
			cfg := retry.Bounded(partitionQueryInitialBackoff, partitionQueryMaxBackoff, partitionQueryMaxAttempts)
			attempts := 0
			records, err := retry.DoValue(groupCtx, cfg, func(ctx context.Context) ([]tasksstore.SyncRecord, error) {
				attempts++
				return p.store.ListDueSyncRecords(ctx, part)
			})
			if err != nil {
				p.metrics.RecordPartitionQueryRetry("exhausted")
				if p.logger != nil {
					p.logger.WarnContext(ctx, "partition query exhausted retries, skipping for this tick",
						"partition", part, "error", err)
				}
				return nil
			}
			if attempts > 1 {
				p.metrics.RecordPartitionQueryRetry("retried")
			}
			results[i] = records
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	var flat []tasksstore.SyncRecord
	for _, records := range results {
		flat = append(flat, records...)
	}
	return flat, nil
}

// reconcileOne looks up the job's user credentials and submits the reconciliation to the
// worker pool, tracking it as in-flight until it completes. wg is released when the job
// finishes (or is abandoned because the pool was stopped), so runTick can wait for every
// submitted job in this tick without serializing them beyond the pool's own size.
func (p *Pipeline) reconcileOne(ctx context.Context, record tasksstore.SyncRecord, wg *sync.WaitGroup) {
	creds, err := p.credCache.get(ctx, record.UserID)
	if err != nil {
		wg.Done()
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "failed to load credentials for sync job", "user_id", record.UserID, "error", err)
		}
		return
	}

	handle := p.inFlight.start(record.UserID, record.Partition, time.Now())

	go func() {
		defer wg.Done()
		accepted := p.workers.submit(func() {
			defer p.inFlight.finish(handle)
			jobStart := time.Now()
			err := p.reconciler.Reconcile(ctx, record, creds)
			result := "ok"
			if err != nil {
				result = "error"
				if p.logger != nil {
					p.logger.ErrorContext(ctx, "reconciliation failed", "user_id", record.UserID, "error", err)
				}
			}
			p.metrics.RecordReconciliation(ctx, result, time.Since(jobStart))
		})
		if !accepted {
			// Pool is shutting down before a worker picked this job up: it never ran, so the
			// in-flight entry would otherwise never be cleared.
			p.inFlight.finish(handle)
		}
	}()
}
