package queue

import (
	"context"
	"sync"
	"time"
)

// Memory is a volatile Store for tests and dependency injection.
// It follows the same semantics as SQLiteStore: duplicate ids are
// rejected, deletes are idempotent, and payloads are copied on the way in
// and out so callers cannot mutate queued data.
type Memory struct {
	mu      sync.Mutex
	records map[string]PendingRecord
	order   []string
	closed  bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]PendingRecord)}
}

func (m *Memory) Add(_ context.Context, rec PendingRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return storageError("add", errClosed)
	}
	if _, exists := m.records[rec.ID]; exists {
		return &Error{Code: CodeDuplicateID, Op: "add", RecordID: rec.ID}
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = time.UnixMilli(rec.CreatedAt.UnixMilli()).UTC()
	rec.Payload = clonePayload(rec.Payload)

	m.records[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *Memory) GetAll(_ context.Context) ([]PendingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, storageError("get all", errClosed)
	}

	out := make([]PendingRecord, 0, len(m.order))
	for _, id := range m.order {
		rec := m.records[id]
		rec.Payload = clonePayload(rec.Payload)
		out = append(out, rec)
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, id string) (PendingRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return PendingRecord{}, false, storageError("get", errClosed)
	}

	rec, ok := m.records[id]
	if !ok {
		return PendingRecord{}, false, nil
	}
	rec.Payload = clonePayload(rec.Payload)
	return rec, true, nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, storageError("count", errClosed)
	}
	return len(m.records), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return storageError("delete", errClosed)
	}
	if _, ok := m.records[id]; !ok {
		return nil
	}

	delete(m.records, id)
	for i, queued := range m.order {
		if queued == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Close marks the store closed; later calls fail with ErrStorageUnavailable.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func clonePayload(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	return out
}
