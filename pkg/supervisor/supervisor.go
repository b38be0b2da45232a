// Package supervisor drives the top-level node lifecycle: acquire a lease, register
// membership, run the sync pipeline and lease keep-alive concurrently, and recover from
// lease loss or shut down cleanly on signal.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/syncfleet/syncfleet/pkg/coordination"
	"github.com/syncfleet/syncfleet/pkg/lease"
	"github.com/syncfleet/syncfleet/pkg/membership"
)

// outerBackoff is the constant backoff between AcquireLease/RegisterMembership retries.
const outerBackoff = 5 * time.Second

// Pipeline is the subset of syncpipeline.Pipeline the Supervisor drives.
type Pipeline interface {
	Run(ctx context.Context) error
}

// Supervisor owns one node's AcquireLease -> RegisterMembership -> run loop, recovering from
// lease loss and tearing down cleanly on shutdown.
type Supervisor struct {
	client    coordination.Client
	nodeID    string
	pipeline  Pipeline
	logger    *slog.Logger
	leaseMgr  *lease.Manager
	registrar *membership.Registrar
	backoff   time.Duration
}

// New constructs a Supervisor for nodeID.
func New(client coordination.Client, nodeID string, pipeline Pipeline, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		client:    client,
		nodeID:    nodeID,
		pipeline:  pipeline,
		logger:    logger,
		leaseMgr:  lease.New(client),
		registrar: membership.New(client, nodeID),
		backoff:   outerBackoff,
	}
}

// LeaseID returns the currently held lease id, for components (e.g. the Partition Balancer)
// that need to bind writes to it; cmd/syncfleet's pipeline reads it through a closure.
func (s *Supervisor) LeaseID() int64 {
	return s.leaseMgr.LeaseID()
}

// Run drives acquire-register-serve until ctx is cancelled, at which point it tears down
// cleanly and returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := s.acquireAndRegister(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logf(ctx, "acquire/register failed, backing off", err)
			if !s.sleep(ctx, s.backoff) {
				return nil
			}
			continue
		}

		lost, err := s.runAttempt(ctx)
		if err != nil && ctx.Err() == nil {
			s.logf(ctx, "pipeline attempt ended in error", err)
		}
		if ctx.Err() != nil {
			s.tearDown(context.Background())
			return nil
		}
		if lost {
			s.logf(ctx, "lease lost, returning to AcquireLease", nil)
			continue
		}
		// The pipeline returned on its own (normal exit) without a shutdown signal or lease
		// loss; nothing further to drive.
		return nil
	}
}

func (s *Supervisor) acquireAndRegister(ctx context.Context) error {
	if err := s.leaseMgr.Acquire(ctx); err != nil {
		return err
	}
	return s.registrar.Register(ctx, s.leaseMgr.LeaseID())
}

// runAttempt races the pipeline against the lease keep-alive loop and reports whether the
// lease was lost. It tracks each goroutine's own result rather than trusting errgroup.Wait's
// single stored error, since which of the two returns first (and so "wins" that slot) is a
// scheduling race, and a pipeline-side context.Canceled must never mask a genuine lease loss.
func (s *Supervisor) runAttempt(ctx context.Context) (leaseLost bool, err error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(attemptCtx)

	var pipelineErr, leaseErr error

	group.Go(func() error {
		pipelineErr = s.pipeline.Run(groupCtx)
		cancel()
		return pipelineErr
	})

	group.Go(func() error {
		leaseErr = s.leaseMgr.Run(groupCtx)
		cancel()
		return leaseErr
	})

	_ = group.Wait()

	if errors.Is(leaseErr, lease.ErrLeaseLost) {
		return true, nil
	}
	if errors.Is(pipelineErr, context.Canceled) || pipelineErr == nil {
		return false, nil
	}
	return false, pipelineErr
}

// tearDown cancels any remaining work and revokes the lease if still valid, accelerating
// partition handover from TTL expiry to milliseconds.
func (s *Supervisor) tearDown(ctx context.Context) {
	deadline, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.leaseMgr.Revoke(deadline); err != nil {
		s.logf(ctx, "lease revoke during teardown failed", err)
	}
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (s *Supervisor) logf(ctx context.Context, msg string, err error) {
	if s.logger == nil {
		return
	}
	if err != nil {
		s.logger.ErrorContext(ctx, msg, "node_id", s.nodeID, "error", err)
		return
	}
	s.logger.InfoContext(ctx, msg, "node_id", s.nodeID)
}
