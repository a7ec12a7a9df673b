package queue

import (
	"context"
	"fmt"
	"time"
)

// Add inserts a pending record.
//
// The insert uses ON CONFLICT(id) DO NOTHING and checks the affected row
// count, so the duplicate check and the write are one atomic statement.
// A zero CreatedAt is stamped with the current time.
func (s *SQLiteStore) Add(ctx context.Context, rec PendingRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_records (id, payload, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rec.ID,
		rec.Payload,
		createdAt.UnixMilli(),
	)
	if err != nil {
		return &Error{Code: CodeStorageUnavailable, Op: "add", RecordID: rec.ID, Err: err}
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return &Error{Code: CodeStorageUnavailable, Op: "add", RecordID: rec.ID, Err: fmt.Errorf("rows affected: %w", err)}
	}
	if rowsAffected == 0 {
		return &Error{Code: CodeDuplicateID, Op: "add", RecordID: rec.ID}
	}

	return nil
}

// Delete removes the record with the given id.
// Deleting an id that is not queued succeeds: a concurrent drain may
// already have delivered it.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_records WHERE id = ?`, id); err != nil {
		return &Error{Code: CodeStorageUnavailable, Op: "delete", RecordID: id, Err: err}
	}
	return nil
}
