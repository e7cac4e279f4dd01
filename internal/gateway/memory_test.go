package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCRUD(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.Insert(ctx, CollectionTracks, map[string]any{"title": "one", "likes": int64(0)})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	rec, err := m.Get(ctx, CollectionTracks, id)
	require.NoError(t, err)
	assert.Equal(t, "one", rec["title"])
	assert.NotZero(t, AsTime(rec["created_at"]), "created_at is stamped on insert")

	require.NoError(t, m.Update(ctx, CollectionTracks, id, map[string]any{"title": "renamed"}))
	rec, err = m.Get(ctx, CollectionTracks, id)
	require.NoError(t, err)
	assert.Equal(t, "renamed", rec["title"])

	require.NoError(t, m.Delete(ctx, CollectionTracks, id))
	_, err = m.Get(ctx, CollectionTracks, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, CollectionTracks, id), ErrNotFound)
}

func TestMemoryIncrementIsAtomicDelta(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, err := m.Insert(ctx, CollectionTracks, map[string]any{"likes": int64(3)})
	require.NoError(t, err)

	require.NoError(t, m.Update(ctx, CollectionTracks, id, map[string]any{"likes": Increment(2)}))
	require.NoError(t, m.Update(ctx, CollectionTracks, id, map[string]any{"likes": Increment(-1)}))

	rec, err := m.Get(ctx, CollectionTracks, id)
	require.NoError(t, err)
	assert.Equal(t, int64(4), AsInt(rec["likes"]))
}

func TestMemoryQueryFiltersOrderLimit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		_, err := m.Insert(ctx, CollectionComments, map[string]any{
			"track_id":   "t1",
			"text":       string(rune('a' + i)),
			"created_at": base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}
	_, err := m.Insert(ctx, CollectionComments, map[string]any{"track_id": "t2", "text": "other"})
	require.NoError(t, err)

	out, err := m.Query(ctx, CollectionComments, Query{
		Filters: []Filter{Eq("track_id", "t1")},
		OrderBy: "created_at",
		Desc:    true,
		Limit:   3,
	})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "e", out[0].Data["text"])
	assert.Equal(t, "c", out[2].Data["text"])
}

func TestMemorySubscribeDeliversSnapshotThenUpdates(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := m.Insert(ctx, CollectionMessages, map[string]any{"message": "before"})
	require.NoError(t, err)

	sub, err := m.Subscribe(ctx, CollectionMessages, Query{})
	require.NoError(t, err)
	require.Len(t, sub.Snapshot, 1)
	assert.Equal(t, first, sub.Snapshot[0].ID)

	second, err := m.Insert(ctx, CollectionMessages, map[string]any{"message": "after"})
	require.NoError(t, err)

	select {
	case ch := <-sub.Updates:
		assert.Equal(t, Added, ch.Kind)
		assert.Equal(t, second, ch.ID)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}

	// Filtered subscriptions never see non-matching records.
	subFiltered, err := m.Subscribe(ctx, CollectionNotifications, Query{
		Filters: []Filter{Eq("user_id", "alice")},
	})
	require.NoError(t, err)
	_, err = m.Insert(ctx, CollectionNotifications, map[string]any{"user_id": "bob"})
	require.NoError(t, err)
	mine, err := m.Insert(ctx, CollectionNotifications, map[string]any{"user_id": "alice"})
	require.NoError(t, err)

	select {
	case ch := <-subFiltered.Updates:
		assert.Equal(t, mine, ch.ID)
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestMemoryNotReadyRejectsEverything(t *testing.T) {
	m := NewMemoryNotReady()
	ctx := context.Background()

	_, err := m.Insert(ctx, CollectionTracks, map[string]any{})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	_, err = m.Subscribe(ctx, CollectionTracks, Query{})
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.False(t, m.Ready())

	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.Error(t, m.WaitReady(waitCtx))

	m.SetReady()
	assert.True(t, m.Ready())
	assert.NoError(t, m.WaitReady(ctx))
}

func TestWriteRejectedError(t *testing.T) {
	err := RejectWrite("bad %s", "input")
	assert.True(t, IsWriteRejected(err))
	assert.Contains(t, err.Error(), "bad input")
	assert.False(t, IsWriteRejected(ErrNotFound))
}
