package tasksstore

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Store used by tests for the Sync Pipeline.
type Memory struct {
	mu      sync.Mutex
	users   map[string]UserRecord
	records map[int][]SyncRecord

	// Fail, if set, is returned by ListDueSyncRecords for the given partition, simulating a
	// partition-query failure so tests can exercise the pipeline's tick-skip behavior.
	Fail map[int]error
}

// NewMemory constructs an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		users:   make(map[string]UserRecord),
		records: make(map[int][]SyncRecord),
		Fail:    make(map[int]error),
	}
}

// PutUser seeds a user record.
func (m *Memory) PutUser(u UserRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.UserID] = u
}

// PutSyncRecords seeds the due sync records for a partition.
func (m *Memory) PutSyncRecords(partition int, records []SyncRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[partition] = records
}

func (m *Memory) ListUsers(ctx context.Context) ([]UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UserRecord, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *Memory) GetUser(ctx context.Context, userID string) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return UserRecord{}, fmt.Errorf("tasksstore: user %q not found", userID)
	}
	return u, nil
}

func (m *Memory) ListDueSyncRecords(ctx context.Context, partition int) ([]SyncRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.Fail[partition]; err != nil {
		return nil, err
	}
	return m.records[partition], nil
}
