// Package membership advertises this node's presence under "/nodes/<id>", bound to the
// current lease, so the Partition Balancer can read the live membership snapshot.
package membership

import (
	"context"

	"github.com/syncfleet/syncfleet/pkg/coordination"
)

// Prefix is the key prefix under which every node advertises itself.
const Prefix = "/nodes/"

// replicaValue is the fixed value every membership key carries: only the key's existence and
// lease binding matter, no per-node metadata is attached.
const replicaValue = "replica"

// Registrar performs the single Put that joins this node to the cluster. It has no
// background loop of its own — the Supervisor's outer retry loop re-invokes Register on
// failure, and the node is not considered "joined" until it succeeds.
type Registrar struct {
	client coordination.Client
	nodeID string
}

// New constructs a Registrar for nodeID.
func New(client coordination.Client, nodeID string) *Registrar {
	return &Registrar{client: client, nodeID: nodeID}
}

// Key returns this node's membership key.
func (r *Registrar) Key() string { return Prefix + r.nodeID }

// Register writes "/nodes/<id>" = "replica" bound to leaseID.
func (r *Registrar) Register(ctx context.Context, leaseID int64) error {
	return r.client.Put(ctx, r.Key(), replicaValue, leaseID)
}
