package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_RoundTripsPayloadBytes(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			payload := []byte("{\"note\":\"caf\xc3\xa9 \\u0000\",\"raw\":[1,2,3]}\n")
			require.NoError(t, s.Add(ctx, PendingRecord{ID: "rt-1", Payload: payload}))

			records, err := s.GetAll(ctx)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "rt-1", records[0].ID)
			assert.Equal(t, payload, records[0].Payload)
			assert.False(t, records[0].CreatedAt.IsZero())
		})
	}
}

func TestAdd_DuplicateID(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Add(ctx, createTestRecord("dup")))

			second := PendingRecord{ID: "dup", Payload: []byte(`{"other":true}`)}
			err := s.Add(ctx, second)
			require.Error(t, err)
			assert.True(t, IsDuplicateID(err))
			assert.False(t, IsStorageUnavailable(err))

			var qerr *Error
			require.True(t, errors.As(err, &qerr))
			assert.Equal(t, CodeDuplicateID, qerr.Code)
			assert.Equal(t, "dup", qerr.RecordID)

			// The original record is untouched.
			rec, ok, err := s.Get(ctx, "dup")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, `{"ticket":"dup"}`, string(rec.Payload))
		})
	}
}

func TestAdd_InvalidRecord(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			err := s.Add(ctx, PendingRecord{Payload: []byte(`{}`)})
			assert.ErrorIs(t, err, ErrInvalidRecord)

			err = s.Add(ctx, PendingRecord{ID: "no-payload"})
			assert.ErrorIs(t, err, ErrInvalidRecord)

			n, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestDelete_Idempotent(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Add(ctx, createTestRecord("a")))
			require.NoError(t, s.Add(ctx, createTestRecord("b")))

			require.NoError(t, s.Delete(ctx, "a"))
			require.NoError(t, s.Delete(ctx, "a"), "second delete must be a no-op")

			records, err := s.GetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, recordIDs(records))
		})
	}
}

func TestDelete_UnknownID(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			assert.NoError(t, s.Delete(context.Background(), "never-queued"))
		})
	}
}

func TestAdd_AfterDeleteReusesID(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Add(ctx, createTestRecord("again")))
			require.NoError(t, s.Delete(ctx, "again"))
			require.NoError(t, s.Add(ctx, createTestRecord("again")))

			n, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}
