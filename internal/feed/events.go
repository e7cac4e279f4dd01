package feed

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/realtime"
)

// Stream names carried on every frame so the page can route them.
const (
	StreamChat          = "chat"
	StreamTracks        = "tracks"
	StreamNotifications = "notifications"
)

// FreshHighlight is how long the page keeps the new-track highlight before
// fading it.
const FreshHighlight = time.Second

// Event is one frame pushed to the page: a list mutation on one stream.
type Event struct {
	Stream    string `json:"stream"`
	Kind      string `json:"kind"` // insert, update, remove
	Placement string `json:"placement,omitempty"`
	FreshMS   int64  `json:"fresh_ms,omitempty"`
	ID        string `json:"id"`
	Record    any    `json:"record,omitempty"`
}

// StreamRenderer adapts the synchronizer's renderer contract onto a frame
// sink: the hub for public streams, one client's queue for notifications.
type StreamRenderer struct {
	stream string
	decode func(id string, data map[string]any) any
	sink   func(frame []byte)
	log    *zap.Logger
}

// NewStreamRenderer builds a renderer for one stream. decode turns a raw
// record into the payload shape the page renders.
func NewStreamRenderer(stream string, decode func(id string, data map[string]any) any, sink func([]byte), log *zap.Logger) *StreamRenderer {
	return &StreamRenderer{stream: stream, decode: decode, sink: sink, log: log.Named("feed." + stream)}
}

func (r *StreamRenderer) Insert(rec realtime.Record, pos realtime.Placement, fresh bool) {
	ev := Event{
		Stream:    r.stream,
		Kind:      "insert",
		Placement: "append",
		ID:        rec.ID,
		Record:    r.decode(rec.ID, rec.Data),
	}
	if pos == realtime.PrependTop {
		ev.Placement = "prepend"
	}
	if fresh {
		ev.FreshMS = FreshHighlight.Milliseconds()
	}
	r.emit(ev)
}

func (r *StreamRenderer) Update(rec realtime.Record) {
	r.emit(Event{
		Stream: r.stream,
		Kind:   "update",
		ID:     rec.ID,
		Record: r.decode(rec.ID, rec.Data),
	})
}

func (r *StreamRenderer) Remove(id string) {
	r.emit(Event{Stream: r.stream, Kind: "remove", ID: id})
}

func (r *StreamRenderer) emit(ev Event) {
	frame, err := json.Marshal(ev)
	if err != nil {
		r.log.Error("marshal event", zap.Error(err))
		return
	}
	r.sink(frame)
}
