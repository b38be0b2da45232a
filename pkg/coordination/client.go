// Package coordination wraps the etcd v3 API behind the narrow Put/Range/Txn/Lease surface
// the rest of syncfleet depends on, so every other component can be tested against an
// in-process fake instead of a live etcd cluster.
package coordination

import (
	"context"

	"go.etcd.io/etcd/api/v3/v3rpc/rpctypes"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc/metadata"
)

// KV is a single key/value pair as returned by Range.
type KV struct {
	Key     string
	Value   string
	Version int64
	Lease   int64
}

// Compare describes one side of a Txn's compare list: either a version check (used for
// first-claim CAS on an empty key) or a value check (used for owner-only release).
type Compare struct {
	Key string

	// CheckVersion, if true, compares Key's mod-version against Version (Version == 0 means
	// "key does not exist yet").
	CheckVersion bool
	Version      int64

	// CheckValue, if true, compares Key's current value against Value.
	CheckValue bool
	Value      string
}

// Op is one operation inside a Txn's success/failure branch.
type Op struct {
	Put    *PutOp
	Delete *DeleteOp
}

// PutOp writes Key = Value, optionally bound to a lease.
type PutOp struct {
	Key   string
	Value string
	Lease int64
}

// DeleteOp removes a single key (not a range).
type DeleteOp struct {
	Key string
}

// TxnResult reports whether the compare list succeeded.
type TxnResult struct {
	Succeeded bool
}

// LeaseGrant is the response to a LeaseGrant call.
type LeaseGrant struct {
	ID  int64
	TTL int64
}

// KeepAliveResponse reports the remaining TTL for a lease, or RemainingTTL == 0 if the store
// considers the lease expired.
type KeepAliveResponse struct {
	LeaseID      int64
	RemainingTTL int64
}

// Client is the Coordination Client contract: a typed wrapper over the coordination store
// exposing unconditional writes, prefix reads, compare-and-swap transactions, and lease
// grant/keep-alive. Implementations: EtcdClient (this file, backed by clientv3) and Memory
// (memory.go, an in-process linearizable fake used by tests).
type Client interface {
	// Put is an unconditional write, optionally bound to a lease.
	Put(ctx context.Context, key, value string, leaseID int64) error

	// Range enumerates every key under keyPrefix. The range end is derived via RangeEnd.
	Range(ctx context.Context, keyPrefix string) ([]KV, error)

	// Txn evaluates compares; if all hold, onSuccess runs, otherwise onFailure runs. Returns
	// whether the compare list held.
	Txn(ctx context.Context, compares []Compare, onSuccess, onFailure []Op) (TxnResult, error)

	// LeaseGrant requests a new lease with the given TTL in seconds.
	LeaseGrant(ctx context.Context, ttlSeconds int64) (LeaseGrant, error)

	// LeaseKeepAliveOnce sends a single keep-alive request for leaseID and returns the single
	// response, mirroring clientv3.Lease.KeepAliveOnce. The Lease Manager drives the refresh
	// cadence itself by calling this once per tick rather than consuming a free-running stream,
	// so the refresh interval is exactly the one it computes.
	LeaseKeepAliveOnce(ctx context.Context, leaseID int64) (KeepAliveResponse, error)

	// Revoke explicitly releases a lease, deleting every key bound to it. Used on clean
	// shutdown to accelerate partition handover from TTL expiry to milliseconds.
	Revoke(ctx context.Context, leaseID int64) error
}

// EtcdClient is the production Client, backed by go.etcd.io/etcd/client/v3.
type EtcdClient struct {
	cli        *clientv3.Client
	propagator propagation.TextMapPropagator
}

// NewEtcdClient wraps an already-dialed clientv3.Client.
func NewEtcdClient(cli *clientv3.Client) *EtcdClient {
	return &EtcdClient{cli: cli, propagator: otel.GetTextMapPropagator()}
}

// metadataCarrier carries the injected trace context into gRPC outgoing metadata.
type metadataCarrier map[string]string

func (m metadataCarrier) Get(key string) string { return m[key] }
func (m metadataCarrier) Set(key, value string) { m[key] = value }
func (m metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// inject propagates the active span context onto ctx as gRPC outgoing metadata, so every
// etcd call this client makes carries the caller's trace.
func (c *EtcdClient) inject(ctx context.Context) context.Context {
	carrier := metadataCarrier{}
	c.propagator.Inject(ctx, carrier)
	if len(carrier) == 0 {
		return ctx
	}
	return metadata.NewOutgoingContext(ctx, metadata.New(carrier))
}

func (c *EtcdClient) Put(ctx context.Context, key, value string, leaseID int64) error {
	ctx = c.inject(ctx)
	opts := []clientv3.OpOption{}
	if leaseID != 0 {
		opts = append(opts, clientv3.WithLease(clientv3.LeaseID(leaseID)))
	}
	_, err := c.cli.Put(ctx, key, value, opts...)
	if err != nil {
		return &TransportError{Op: "put", Err: err}
	}
	return nil
}

func (c *EtcdClient) Range(ctx context.Context, keyPrefix string) ([]KV, error) {
	ctx = c.inject(ctx)
	resp, err := c.cli.Get(ctx, keyPrefix, clientv3.WithRange(RangeEnd(keyPrefix)))
	if err != nil {
		return nil, &TransportError{Op: "range", Err: err}
	}
	out := make([]KV, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		out = append(out, KV{
			Key:     string(kv.Key),
			Value:   string(kv.Value),
			Version: kv.Version,
			Lease:   kv.Lease,
		})
	}
	return out, nil
}

func (c *EtcdClient) Txn(ctx context.Context, compares []Compare, onSuccess, onFailure []Op) (TxnResult, error) {
	ctx = c.inject(ctx)

	cmps := make([]clientv3.Cmp, 0, len(compares))
	for _, cmp := range compares {
		switch {
		case cmp.CheckVersion:
			cmps = append(cmps, clientv3.Compare(clientv3.Version(cmp.Key), "=", cmp.Version))
		case cmp.CheckValue:
			cmps = append(cmps, clientv3.Compare(clientv3.Value(cmp.Key), "=", cmp.Value))
		}
	}

	resp, err := c.cli.Txn(ctx).
		If(cmps...).
		Then(toEtcdOps(onSuccess)...).
		Else(toEtcdOps(onFailure)...).
		Commit()
	if err != nil {
		return TxnResult{}, &TransportError{Op: "txn", Err: err}
	}
	return TxnResult{Succeeded: resp.Succeeded}, nil
}

func toEtcdOps(ops []Op) []clientv3.Op {
	out := make([]clientv3.Op, 0, len(ops))
	for _, op := range ops {
		switch {
		case op.Put != nil:
			opts := []clientv3.OpOption{}
			if op.Put.Lease != 0 {
				opts = append(opts, clientv3.WithLease(clientv3.LeaseID(op.Put.Lease)))
			}
			out = append(out, clientv3.OpPut(op.Put.Key, op.Put.Value, opts...))
		case op.Delete != nil:
			out = append(out, clientv3.OpDelete(op.Delete.Key))
		}
	}
	return out
}

func (c *EtcdClient) LeaseGrant(ctx context.Context, ttlSeconds int64) (LeaseGrant, error) {
	ctx = c.inject(ctx)
	resp, err := c.cli.Lease.Grant(ctx, ttlSeconds)
	if err != nil {
		return LeaseGrant{}, &TransportError{Op: "lease-grant", Err: err}
	}
	return LeaseGrant{ID: int64(resp.ID), TTL: resp.TTL}, nil
}

func (c *EtcdClient) LeaseKeepAliveOnce(ctx context.Context, leaseID int64) (KeepAliveResponse, error) {
	ctx = c.inject(ctx)
	resp, err := c.cli.Lease.KeepAliveOnce(ctx, clientv3.LeaseID(leaseID))
	if err != nil {
		if err == rpctypes.ErrLeaseNotFound {
			return KeepAliveResponse{}, ErrLeaseExpired
		}
		return KeepAliveResponse{}, &TransportError{Op: "lease-keepalive", Err: err}
	}
	return KeepAliveResponse{LeaseID: int64(resp.ID), RemainingTTL: resp.TTL}, nil
}

func (c *EtcdClient) Revoke(ctx context.Context, leaseID int64) error {
	ctx = c.inject(ctx)
	_, err := c.cli.Lease.Revoke(ctx, clientv3.LeaseID(leaseID))
	if err != nil {
		return &TransportError{Op: "lease-revoke", Err: err}
	}
	return nil
}
