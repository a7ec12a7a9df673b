package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAll_EmptyReturnsEmptySlice(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			records, err := newStore(t).GetAll(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, records)
			assert.Empty(t, records)
		})
	}
}

func TestGetAll_InsertionOrder(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			for _, id := range []string{"zulu", "alpha", "mike"} {
				require.NoError(t, s.Add(ctx, createTestRecord(id)))
			}

			records, err := s.GetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"zulu", "alpha", "mike"}, recordIDs(records))
		})
	}
}

func TestGetAll_SnapshotIsDetached(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			require.NoError(t, s.Add(ctx, createTestRecord("snap")))

			first, err := s.GetAll(ctx)
			require.NoError(t, err)
			first[0].Payload[0] = 'X'

			second, err := s.GetAll(ctx)
			require.NoError(t, err)
			assert.Equal(t, `{"ticket":"snap"}`, string(second[0].Payload))
		})
	}
}

func TestGet_PreservesCreatedAt(t *testing.T) {
	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()

			rec := createTestRecord("ts")
			require.NoError(t, s.Add(ctx, rec))

			got, ok, err := s.Get(ctx, "ts")
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, got.CreatedAt.Equal(rec.CreatedAt))
			assert.Equal(t, time.UTC, got.CreatedAt.Location())

			_, ok, err = s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestSummaries(t *testing.T) {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	got := Summaries([]PendingRecord{
		{ID: "a", Payload: []byte(`{"x":1}`), CreatedAt: created},
		{ID: "b", Payload: []byte(`{}`), CreatedAt: created.Add(time.Minute)},
	})

	assert.Equal(t, []Summary{
		{ID: "a", CreatedAt: created, Bytes: 7},
		{ID: "b", CreatedAt: created.Add(time.Minute), Bytes: 2},
	}, got)
	assert.NotNil(t, Summaries(nil))
}
