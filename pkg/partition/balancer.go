// Package partition computes a node's deterministic partition shard from the current
// membership snapshot and reconciles partition-lock keys in the coordination store to match.
package partition

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/syncfleet/syncfleet/pkg/coordination"
	"github.com/syncfleet/syncfleet/pkg/membership"
	"github.com/syncfleet/syncfleet/pkg/metrics"
)

// LockPrefix is the key prefix under which partition locks live.
const LockPrefix = "/sync_locks/"

// ShouldOwn is the pure sharding function: node i, out of a fleet of width W, owns every
// partition p in [0, partitionCount) where p mod W == i. Given the same (index, width,
// partitionCount), every node computes the same result.
func ShouldOwn(index, width, partitionCount int) map[int]bool {
	owned := make(map[int]bool)
	if width <= 0 {
		return owned
	}
	for p := 0; p < partitionCount; p++ {
		if p%width == index {
			owned[p] = true
		}
	}
	return owned
}

// Balancer reconciles this node's partition-lock ownership against the sharding rule.
type Balancer struct {
	client         coordination.Client
	nodeID         string
	partitionCount int
	metrics        *metrics.Manager
}

// New constructs a Balancer for nodeID with the configured total partition count.
func New(client coordination.Client, nodeID string, partitionCount int) *Balancer {
	return &Balancer{client: client, nodeID: nodeID, partitionCount: partitionCount, metrics: metrics.NoOpManager()}
}

// WithMetrics attaches a metrics.Manager to report confirmed partition ownership.
func (b *Balancer) WithMetrics(mgr *metrics.Manager) *Balancer {
	b.metrics = mgr
	return b
}

func lockKey(n int) string {
	return LockPrefix + strconv.Itoa(n)
}

// index returns this node's position in the lexicographically-ordered membership snapshot
// and the fleet width, or ok == false if this node is not present in the snapshot (edge case
// (1): the membership write lost the race to this read).
func index(nodeID string, nodes []coordination.KV) (i, width int, ok bool) {
	ids := make([]string, 0, len(nodes))
	for _, kv := range nodes {
		ids = append(ids, strings.TrimPrefix(kv.Key, membership.Prefix))
	}
	sort.Strings(ids)

	for pos, id := range ids {
		if id == nodeID {
			return pos, len(ids), true
		}
	}
	return 0, len(ids), false
}

// Reconcile reads the membership snapshot, computes this node's shard, issues the claim and
// release transactions, and returns the confirmed-owned set read back from the store. If this
// node is not present in the membership snapshot, it returns an empty set without issuing any
// writes; the next tick will retry.
func (b *Balancer) Reconcile(ctx context.Context, leaseID int64) (map[int]bool, error) {
	nodes, err := b.client.Range(ctx, membership.Prefix)
	if err != nil {
		return nil, err
	}

	i, width, ok := index(b.nodeID, nodes)
	if !ok {
		return map[int]bool{}, nil
	}

	shouldOwn := ShouldOwn(i, width, b.partitionCount)

	for n := 0; n < b.partitionCount; n++ {
		if shouldOwn[n] {
			continue
		}
		if _, err := b.client.Txn(ctx,
			[]coordination.Compare{{Key: lockKey(n), CheckValue: true, Value: b.nodeID}},
			[]coordination.Op{{Delete: &coordination.DeleteOp{Key: lockKey(n)}}},
			nil,
		); err != nil {
			return nil, err
		}
	}

	for n := range shouldOwn {
		if _, err := b.client.Txn(ctx,
			[]coordination.Compare{{Key: lockKey(n), CheckVersion: true, Version: 0}},
			[]coordination.Op{{Put: &coordination.PutOp{Key: lockKey(n), Value: b.nodeID, Lease: leaseID}}},
			nil,
		); err != nil {
			return nil, err
		}
	}

	owned, err := b.confirmedOwned(ctx)
	if err != nil {
		return nil, err
	}
	b.metrics.SetPartitionsOwned(len(owned))
	return owned, nil
}

// confirmedOwned reads every partition lock under the prefix and returns the subset whose
// value equals this node's id — the only set downstream work may trust.
func (b *Balancer) confirmedOwned(ctx context.Context) (map[int]bool, error) {
	kvs, err := b.client.Range(ctx, LockPrefix)
	if err != nil {
		return nil, err
	}

	owned := make(map[int]bool)
	for _, kv := range kvs {
		if kv.Value != b.nodeID {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(kv.Key, LockPrefix))
		if err != nil {
			continue
		}
		owned[n] = true
	}
	return owned, nil
}

// Transfer describes a partition ownership movement observed between two reconciliations,
// logged for operational visibility only — never consulted for correctness. The confirmed-owned
// read from Reconcile is always the actual source of truth.
type Transfer struct {
	Partition int
	FromNode  string
	ToNode    string
}

// Diff computes ownership movements between two partition->node snapshots: it walks the
// partitions of current in sorted order and reports each one whose owner in current is
// non-empty and differs from its owner in previous. Partitions present only in previous, or
// with an empty owner in current, are not reported.
func Diff(previous, current map[int]string) []Transfer {
	partitions := make([]int, 0, len(current))
	for p := range current {
		partitions = append(partitions, p)
	}
	sort.Ints(partitions)

	transfers := make([]Transfer, 0)
	for _, p := range partitions {
		from := previous[p]
		to := current[p]
		if from == to || to == "" {
			continue
		}
		transfers = append(transfers, Transfer{Partition: p, FromNode: from, ToNode: to})
	}
	return transfers
}
