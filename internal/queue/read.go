package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetAll returns a snapshot of every pending record.
// Ordering is by insertion sequence: ORDER BY seq ASC.
//
// Returns an empty slice (not nil) when nothing is pending.
func (s *SQLiteStore) GetAll(ctx context.Context) ([]PendingRecord, error) {
	// A single SELECT is one implicit read transaction, so concurrent
	// Add/Delete calls are either fully visible or not at all.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, created_at
		FROM pending_records
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, storageError("get all", fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	records := []PendingRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storageError("get all", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, storageError("get all", fmt.Errorf("iterate: %w", err))
	}

	return records, nil
}

// Get returns the record with the given id. The bool is false when the id
// is not queued.
func (s *SQLiteStore) Get(ctx context.Context, id string) (PendingRecord, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, payload, created_at
		FROM pending_records
		WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PendingRecord{}, false, nil
	}
	if err != nil {
		return PendingRecord{}, false, &Error{Code: CodeStorageUnavailable, Op: "get", RecordID: id, Err: err}
	}
	return rec, true, nil
}

// Count returns the number of pending records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_records`).Scan(&n); err != nil {
		return 0, storageError("count", err)
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (PendingRecord, error) {
	var (
		rec       PendingRecord
		createdAt int64
	)
	if err := row.Scan(&rec.ID, &rec.Payload, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return PendingRecord{}, err
		}
		return PendingRecord{}, fmt.Errorf("scan record: %w", err)
	}
	rec.CreatedAt = time.UnixMilli(createdAt).UTC()
	return rec, nil
}
