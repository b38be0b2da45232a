package coordination

import (
	"errors"
	"fmt"
)

// TransportError wraps a transient failure talking to the coordination store (dial failure,
// connection reset, deadline exceeded before a response was framed).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("coordination: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// StatusError reports a store-level rejection (e.g. an etcd gRPC status) that is not a
// transient transport failure.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("coordination: status %d: %s", e.Code, e.Message)
}

// ErrChannelClosed indicates the keep-alive channel to the store closed without a response —
// the Lease Manager, like for any failed keep-alive call, collapses this to LeaseLost.
var ErrChannelClosed = errors.New("coordination: keep-alive channel closed")

// ErrLeaseExpired indicates the store reports the lease no longer exists.
var ErrLeaseExpired = errors.New("coordination: lease expired")
