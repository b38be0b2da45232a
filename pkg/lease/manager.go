// Package lease owns a single coordination-store lease for the lifetime of a healthy node:
// acquiring it, refreshing it on a cadence that stays ahead of expiry, and reporting loss.
package lease

import (
	"context"
	"errors"
	"time"

	"github.com/syncfleet/syncfleet/pkg/coordination"
	"github.com/syncfleet/syncfleet/pkg/metrics"
)

// preemption is the safety margin subtracted from the TTL when computing the refresh
// interval.
const preemption = 10 * time.Second

const defaultTTL = 30 * time.Second

// ErrLeaseLost is returned by Run when the lease is confirmed gone — either the store
// reported RemainingTTL == 0, the store returned ErrLeaseExpired, or the refresh call failed
// outright. It is distinct from ctx.Err() so the Supervisor can tell "lost" apart from
// "asked to shut down".
var ErrLeaseLost = errors.New("lease: lost")

// Manager owns exactly one lease for its lifetime.
type Manager struct {
	client  coordination.Client
	ttl     time.Duration
	nowFn   func() time.Time
	metrics *metrics.Manager

	leaseID int64
}

// New constructs a Manager with the default 30s TTL.
func New(client coordination.Client) *Manager {
	return &Manager{client: client, ttl: defaultTTL, nowFn: time.Now, metrics: metrics.NoOpManager()}
}

// WithMetrics attaches a metrics.Manager to record refresh outcomes and lease loss.
func (m *Manager) WithMetrics(mgr *metrics.Manager) *Manager {
	m.metrics = mgr
	return m
}

// WithTTL overrides the lease TTL (tests use this to exercise the short-TTL branch of the
// sleep formula).
func (m *Manager) WithTTL(ttl time.Duration) *Manager {
	m.ttl = ttl
	return m
}

// WithClock overrides the manager's clock.
func (m *Manager) WithClock(nowFn func() time.Time) *Manager {
	m.nowFn = nowFn
	return m
}

// LeaseID returns the currently held lease id. Only valid after Acquire has succeeded.
func (m *Manager) LeaseID() int64 { return m.leaseID }

// Acquire grants a new lease and remembers its id and TTL.
func (m *Manager) Acquire(ctx context.Context) error {
	grant, err := m.client.LeaseGrant(ctx, int64(m.ttl/time.Second))
	if err != nil {
		return err
	}
	m.leaseID = grant.ID
	m.ttl = time.Duration(grant.TTL) * time.Second
	return nil
}

// Run drives the refresh loop until ctx is cancelled or the lease is lost. It sends an
// initial refresh immediately (step 2), then on each successful response with a positive
// remaining TTL computes sleep = max(ttl/2, ttl-preemption), measured from just before the
// refresh was sent, and waits that long before sending the next one (step 3). It returns
// ErrLeaseLost the moment the store reports the lease gone (step 4), joined with the
// underlying error when the refresh call itself failed for a reason other than expiry; it
// returns ctx.Err() if ctx is cancelled first.
func (m *Manager) Run(ctx context.Context) error {
	for {
		sentAt := m.nowFn()

		resp, err := m.client.LeaseKeepAliveOnce(ctx, m.leaseID)
		if err != nil {
			if errors.Is(err, coordination.ErrLeaseExpired) {
				m.metrics.RecordLeaseRefresh("lost")
				m.metrics.RecordLeaseLost()
				return ErrLeaseLost
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.metrics.RecordLeaseRefresh("lost")
			m.metrics.RecordLeaseLost()
			return errors.Join(ErrLeaseLost, err)
		}
		if resp.RemainingTTL <= 0 {
			m.metrics.RecordLeaseRefresh("lost")
			m.metrics.RecordLeaseLost()
			return ErrLeaseLost
		}
		m.metrics.RecordLeaseRefresh("ok")

		sleep := refreshInterval(time.Duration(resp.RemainingTTL) * time.Second)
		wake := sentAt.Add(sleep)
		wait := wake.Sub(m.nowFn())
		if wait < 0 {
			wait = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// refreshInterval computes the sleep between keep-alives: refresh at TTL minus preemption in
// the normal case (two thirds of the default 30s TTL), falling back to half the TTL only once
// TTL is already dangerously short.
func refreshInterval(ttl time.Duration) time.Duration {
	half := ttl / 2
	withPreemption := ttl - preemption
	if half > withPreemption {
		return half
	}
	return withPreemption
}

// Revoke explicitly releases the lease, deleting every key bound to it immediately rather
// than waiting out the TTL. Used on clean shutdown.
func (m *Manager) Revoke(ctx context.Context) error {
	return m.client.Revoke(ctx, m.leaseID)
}
