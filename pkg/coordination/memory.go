package coordination

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryEntry struct {
	value   string
	version int64
	lease   int64
}

type memoryLease struct {
	id        int64
	ttl       int64
	expiresAt time.Time
}

// Memory is an in-process, linearizable fake of Client, used by property tests to simulate
// any number of concurrent nodes against a single store without a live etcd, and by
// cmd/syncfleet for single-node operation. Same grant/revoke/expire/CAS semantics as the
// production client, expressed against the Put/Range/Txn/LeaseGrant surface.
type Memory struct {
	mu sync.Mutex

	nowFn func() time.Time

	kv     map[string]memoryEntry
	leases map[int64]*memoryLease
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		nowFn:  time.Now,
		kv:     make(map[string]memoryEntry),
		leases: make(map[int64]*memoryLease),
	}
}

// WithClock overrides the store's clock, for deterministic lease-expiry tests.
func (m *Memory) WithClock(nowFn func() time.Time) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFn = nowFn
	return m
}

func (m *Memory) now() time.Time { return m.nowFn() }

// expireLocked drops any key bound to an expired lease. Caller must hold m.mu.
func (m *Memory) expireLocked() {
	now := m.now()
	for id, lease := range m.leases {
		if now.Before(lease.expiresAt) {
			continue
		}
		for key, entry := range m.kv {
			if entry.lease == id {
				delete(m.kv, key)
			}
		}
		delete(m.leases, id)
	}
}

func (m *Memory) Put(ctx context.Context, key, value string, leaseID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()

	if leaseID != 0 {
		if _, ok := m.leases[leaseID]; !ok {
			return ErrLeaseExpired
		}
	}

	entry := m.kv[key]
	entry.value = value
	entry.version++
	entry.lease = leaseID
	m.kv[key] = entry
	return nil
}

func (m *Memory) Range(ctx context.Context, keyPrefix string) ([]KV, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()

	out := make([]KV, 0)
	for key, entry := range m.kv {
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		out = append(out, KV{Key: key, Value: entry.value, Version: entry.version, Lease: entry.lease})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) Txn(ctx context.Context, compares []Compare, onSuccess, onFailure []Op) (TxnResult, error) {
	if err := ctx.Err(); err != nil {
		return TxnResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()

	ok := true
	for _, cmp := range compares {
		entry, exists := m.kv[cmp.Key]
		switch {
		case cmp.CheckVersion:
			version := int64(0)
			if exists {
				version = entry.version
			}
			if version != cmp.Version {
				ok = false
			}
		case cmp.CheckValue:
			if !exists || entry.value != cmp.Value {
				ok = false
			}
		}
		if !ok {
			break
		}
	}

	ops := onFailure
	if ok {
		ops = onSuccess
	}
	for _, op := range ops {
		switch {
		case op.Put != nil:
			if op.Put.Lease != 0 {
				if _, leaseOK := m.leases[op.Put.Lease]; !leaseOK {
					continue
				}
			}
			entry := m.kv[op.Put.Key]
			entry.value = op.Put.Value
			entry.version++
			entry.lease = op.Put.Lease
			m.kv[op.Put.Key] = entry
		case op.Delete != nil:
			delete(m.kv, op.Delete.Key)
		}
	}

	return TxnResult{Succeeded: ok}, nil
}

func (m *Memory) LeaseGrant(ctx context.Context, ttlSeconds int64) (LeaseGrant, error) {
	if err := ctx.Err(); err != nil {
		return LeaseGrant{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()

	id := m.newLeaseID()
	m.leases[id] = &memoryLease{
		id:        id,
		ttl:       ttlSeconds,
		expiresAt: m.now().Add(time.Duration(ttlSeconds) * time.Second),
	}
	return LeaseGrant{ID: id, TTL: ttlSeconds}, nil
}

func (m *Memory) LeaseKeepAliveOnce(ctx context.Context, leaseID int64) (KeepAliveResponse, error) {
	if err := ctx.Err(); err != nil {
		return KeepAliveResponse{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireLocked()

	lease, ok := m.leases[leaseID]
	if !ok {
		return KeepAliveResponse{}, ErrLeaseExpired
	}
	lease.expiresAt = m.now().Add(time.Duration(lease.ttl) * time.Second)
	return KeepAliveResponse{LeaseID: leaseID, RemainingTTL: lease.ttl}, nil
}

// ExpireNow forces leaseID to expire immediately, for LeaseLost tests.
func (m *Memory) ExpireNow(leaseID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if lease, ok := m.leases[leaseID]; ok {
		lease.expiresAt = m.now().Add(-time.Second)
	}
	m.expireLocked()
}

func (m *Memory) Revoke(ctx context.Context, leaseID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.leases[leaseID]; !ok {
		return nil
	}
	for key, entry := range m.kv {
		if entry.lease == leaseID {
			delete(m.kv, key)
		}
	}
	delete(m.leases, leaseID)
	return nil
}

func (m *Memory) newLeaseID() int64 {
	id := uuid.New()
	// Fold the uuid down to a non-zero int64; zero is reserved to mean "no lease".
	var n int64
	for _, b := range id[:8] {
		n = n<<8 | int64(b)
	}
	if n == 0 {
		n = 1
	}
	if n < 0 {
		n = -n
	}
	return n
}
