package queue

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore opens a fresh SQLite store in a temp directory.
func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a record with a JSON payload derived from id.
func createTestRecord(id string) PendingRecord {
	return PendingRecord{
		ID:        id,
		Payload:   []byte(`{"ticket":"` + id + `"}`),
		CreatedAt: time.UnixMilli(1700000000000).UTC(),
	}
}

// storeFactories lets behavioral tests run against both implementations.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"sqlite": func(t *testing.T) Store { return createTestStore(t) },
		"memory": func(t *testing.T) Store {
			m := NewMemory()
			t.Cleanup(func() { m.Close() })
			return m
		},
	}
}

func recordIDs(records []PendingRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}
