package realtime

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/gateway"
)

// recordingRenderer captures the rendered list so tests can assert on final
// order and on the fresh flag.
type recordingRenderer struct {
	mu    sync.Mutex
	ids   []string
	fresh map[string]bool
	ops   []string
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{fresh: make(map[string]bool)}
}

func (r *recordingRenderer) Insert(rec Record, pos Placement, fresh bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pos == PrependTop {
		r.ids = append([]string{rec.ID}, r.ids...)
	} else {
		r.ids = append(r.ids, rec.ID)
	}
	r.fresh[rec.ID] = fresh
	r.ops = append(r.ops, "insert:"+rec.ID)
}

func (r *recordingRenderer) Update(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, "update:"+rec.ID)
}

func (r *recordingRenderer) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, got := range r.ids {
		if got == id {
			r.ids = append(r.ids[:i], r.ids[i+1:]...)
			break
		}
	}
	r.ops = append(r.ops, "remove:"+id)
}

func (r *recordingRenderer) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func (r *recordingRenderer) opCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

// seedMessages inserts n chat messages a millisecond apart and returns their
// ids in insertion order.
func seedMessages(t *testing.T, gw *gateway.Memory, n int) []string {
	t.Helper()
	base := time.Now().UTC()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := gw.Insert(context.Background(), gateway.CollectionMessages, map[string]any{
			"username":   "NICK",
			"message":    fmt.Sprintf("msg %d", i),
			"created_at": base.Add(time.Duration(i) * time.Millisecond),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func runSynchronizer(t *testing.T, s *Synchronizer) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	return func() {
		stop()
		<-done
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestChatSnapshotRendersChronologically(t *testing.T) {
	gw := gateway.NewMemory()
	ids := seedMessages(t, gw, 3)

	r := newRecordingRenderer()
	s := New(gw, r, Options{
		Collection:            gateway.CollectionMessages,
		Query:                 gateway.Query{OrderBy: "created_at", Desc: true, Limit: 50},
		LivePlacement:         AppendBottom,
		ChronologicalSnapshot: true,
	}, zap.NewNop())

	cancel := runSynchronizer(t, s)
	defer cancel()

	waitFor(t, func() bool { return len(r.list()) == 3 })
	// Snapshot arrives newest-first; the reader sees oldest at the top.
	assert.Equal(t, ids, r.list())

	// A live message lands at the bottom.
	liveID, err := gw.Insert(context.Background(), gateway.CollectionMessages, map[string]any{
		"username": "NICK", "message": "live",
	})
	require.NoError(t, err)
	waitFor(t, func() bool { return len(r.list()) == 4 })
	assert.Equal(t, liveID, r.list()[3])
}

func TestTrackFeedPrependsLiveWithFreshHighlight(t *testing.T) {
	gw := gateway.NewMemory()
	base := time.Now().UTC()
	var ids []string
	for i := 0; i < 2; i++ {
		id, err := gw.Insert(context.Background(), gateway.CollectionTracks, map[string]any{
			"title":      fmt.Sprintf("track %d", i),
			"created_at": base.Add(time.Duration(i) * time.Millisecond),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	r := newRecordingRenderer()
	s := New(gw, r, Options{
		Collection:    gateway.CollectionTracks,
		Query:         gateway.Query{OrderBy: "created_at", Desc: true, Limit: 50},
		LivePlacement: PrependTop,
	}, zap.NewNop())

	cancel := runSynchronizer(t, s)
	defer cancel()

	waitFor(t, func() bool { return len(r.list()) == 2 })
	// Feed keeps the backend's newest-first order.
	assert.Equal(t, []string{ids[1], ids[0]}, r.list())
	assert.False(t, r.fresh[ids[1]], "snapshot items are not fresh")

	liveID, err := gw.Insert(context.Background(), gateway.CollectionTracks, map[string]any{"title": "live"})
	require.NoError(t, err)
	waitFor(t, func() bool { return len(r.list()) == 3 })
	assert.Equal(t, liveID, r.list()[0], "live track goes on top")
	assert.True(t, r.fresh[liveID], "live track carries the fresh highlight")
}

func TestSnapshotReplayIsIdempotent(t *testing.T) {
	gw := gateway.NewMemory()
	seedMessages(t, gw, 3)

	r := newRecordingRenderer()
	s := New(gw, r, Options{
		Collection:            gateway.CollectionMessages,
		Query:                 gateway.Query{OrderBy: "created_at", Desc: true, Limit: 50},
		ChronologicalSnapshot: true,
	}, zap.NewNop())

	cancel := runSynchronizer(t, s)
	defer cancel()

	waitFor(t, func() bool { return len(r.list()) == 3 })
	before := r.opCount()

	// A reconnect re-delivers everything already rendered.
	gw.Redeliver(gateway.CollectionMessages)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, before, r.opCount(), "replayed changes must not re-render")
	assert.Len(t, r.list(), 3)
	assert.Equal(t, 3, s.Seen().Len())
}

func TestRemoveThenReAddCountsAsNew(t *testing.T) {
	gw := gateway.NewMemory()
	ctx := context.Background()

	r := newRecordingRenderer()
	s := New(gw, r, Options{
		Collection:    gateway.CollectionMessages,
		LivePlacement: AppendBottom,
	}, zap.NewNop())

	cancel := runSynchronizer(t, s)
	defer cancel()

	id, err := gw.Insert(ctx, gateway.CollectionMessages, map[string]any{"message": "hi"})
	require.NoError(t, err)
	waitFor(t, func() bool { return len(r.list()) == 1 })

	require.NoError(t, gw.Delete(ctx, gateway.CollectionMessages, id))
	waitFor(t, func() bool { return len(r.list()) == 0 })
	assert.Equal(t, 0, s.Seen().Len(), "removal forgets the id")

	// Same id coming back is new again.
	require.NoError(t, gw.Set(ctx, gateway.CollectionMessages, id, map[string]any{"message": "again"}))
	waitFor(t, func() bool { return len(r.list()) == 1 })
	assert.Equal(t, id, r.list()[0])
}

func TestRemovalOfUntrackedIDIsIgnored(t *testing.T) {
	r := newRecordingRenderer()
	s := New(gateway.NewMemory(), r, Options{Collection: gateway.CollectionMessages}, zap.NewNop())

	s.apply(gateway.Change{Kind: gateway.Removed, ID: "ghost"}, true)
	assert.Zero(t, r.opCount())
}

func TestWaitsForBackendBeforeSubscribing(t *testing.T) {
	gw := gateway.NewMemoryNotReady()

	r := newRecordingRenderer()
	s := New(gw, r, Options{
		Collection: gateway.CollectionMessages,
		ReadyPoll:  5 * time.Millisecond,
	}, zap.NewNop())

	cancel := runSynchronizer(t, s)
	defer cancel()

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateWaitingForBackend, s.State())

	gw.SetReady()
	waitFor(t, func() bool { return s.State() == StateSubscribed })
}

func TestSubscribeFailureIsReturnedNotRetried(t *testing.T) {
	gw := gateway.NewMemoryNotReady()

	s := New(gw, newRecordingRenderer(), Options{Collection: gateway.CollectionMessages}, zap.NewNop())
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	gw.SetReady()
	gw.FailSubscribes(gateway.ErrBackendUnavailable)

	err := s.Run(ctx)
	assert.ErrorIs(t, err, gateway.ErrBackendUnavailable)
}
