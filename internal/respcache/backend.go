package respcache

import (
	"context"
	"sync"
)

// Backend persists snapshots under (namespace, key). Implementations are
// safe for concurrent use; Put overwrites, last write wins.
type Backend interface {
	Get(ctx context.Context, namespace, key string) (Snapshot, bool, error)
	Put(ctx context.Context, namespace, key string, snap Snapshot) error

	// Count returns the number of entries in namespace.
	Count(ctx context.Context, namespace string) (int, error)

	// Prune deletes every entry outside the keep namespace and reports
	// how many were removed.
	Prune(ctx context.Context, keep string) (int, error)

	Close() error
}

// MemoryBackend is a volatile Backend for tests.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]map[string]Snapshot
}

var _ Backend = (*MemoryBackend)(nil)

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]map[string]Snapshot)}
}

func (m *MemoryBackend) Get(_ context.Context, namespace, key string) (Snapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.entries[namespace][key]
	if !ok {
		return Snapshot{}, false, nil
	}
	return snap.clone(), true, nil
}

func (m *MemoryBackend) Put(_ context.Context, namespace, key string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.entries[namespace]
	if !ok {
		ns = make(map[string]Snapshot)
		m.entries[namespace] = ns
	}
	ns[key] = snap.clone()
	return nil
}

func (m *MemoryBackend) Count(_ context.Context, namespace string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[namespace]), nil
}

func (m *MemoryBackend) Prune(_ context.Context, keep string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for ns, entries := range m.entries {
		if ns == keep {
			continue
		}
		removed += len(entries)
		delete(m.entries, ns)
	}
	return removed, nil
}

func (m *MemoryBackend) Close() error { return nil }
