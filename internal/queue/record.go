package queue

import (
	"context"
	"errors"
	"time"
)

// PendingRecord is a ticket submission awaiting delivery.
//
// Payload is opaque to the queue: it is stored and returned byte for byte
// and never parsed.
type PendingRecord struct {
	ID        string
	Payload   []byte
	CreatedAt time.Time
}

// Summary describes a pending record without its payload.
type Summary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Bytes     int       `json:"bytes"`
}

// Summaries lists records as summaries, keeping their order.
func Summaries(records []PendingRecord) []Summary {
	out := make([]Summary, len(records))
	for i, rec := range records {
		out[i] = Summary{ID: rec.ID, CreatedAt: rec.CreatedAt, Bytes: len(rec.Payload)}
	}
	return out
}

// Store is the durable queue contract shared by the SQLite store and the
// in-memory fake. Implementations are safe for concurrent use; callers
// never need their own locking.
type Store interface {
	// Add inserts rec. Returns ErrDuplicateID if rec.ID is already queued.
	Add(ctx context.Context, rec PendingRecord) error

	// GetAll returns every pending record in insertion order.
	GetAll(ctx context.Context) ([]PendingRecord, error)

	// Get returns the record with the given id, if queued.
	Get(ctx context.Context, id string) (PendingRecord, bool, error)

	// Count returns the number of pending records.
	Count(ctx context.Context) (int, error)

	// Delete removes the record with the given id. Unknown ids are not an error.
	Delete(ctx context.Context, id string) error

	Close() error
}

func validateRecord(rec PendingRecord) error {
	if rec.ID == "" {
		return &Error{Code: CodeInvalidRecord, Op: "add", Err: errEmptyID}
	}
	if len(rec.Payload) == 0 {
		return &Error{Code: CodeInvalidRecord, Op: "add", RecordID: rec.ID, Err: errEmptyPayload}
	}
	return nil
}

var (
	errEmptyID      = errors.New("record id is empty")
	errEmptyPayload = errors.New("record payload is empty")
	errClosed       = errors.New("store is closed")
)
