package realtime

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/gateway"
)

// Placement says where a live insert lands in the rendered list. Chat
// appends new messages at the bottom; the track feed prepends at the top.
type Placement int

const (
	AppendBottom Placement = iota
	PrependTop
)

// Record is what the renderer receives for one domain object.
type Record struct {
	ID   string
	Data map[string]any
}

// Renderer turns records into live UI list mutations. Insert receives
// fresh=true only for items that arrived after the initial snapshot, which
// the UI marks with a transient highlight.
type Renderer interface {
	Insert(rec Record, pos Placement, fresh bool)
	Update(rec Record)
	Remove(id string)
}

// State of a synchronizer. There is no terminal state in normal operation;
// subscriptions live for the page session and end with the context.
type State int

const (
	StateWaitingForBackend State = iota
	StateSubscribed
)

// DefaultReadyPoll is the readiness check interval while waiting for the
// backend to come up.
const DefaultReadyPoll = 500 * time.Millisecond

// Options configures one collection synchronizer.
type Options struct {
	Collection string
	Query      gateway.Query

	// LivePlacement is where post-snapshot inserts go.
	LivePlacement Placement

	// ChronologicalSnapshot reverses a newest-first snapshot before
	// rendering, so the list reads oldest-first top to bottom. The track
	// feed keeps the native newest-first order instead.
	ChronologicalSnapshot bool

	// OnChangeApplied, when set, observes every change after the dedup
	// cache and renderer have processed it.
	OnChangeApplied func(kind gateway.ChangeKind, rec Record)

	// ReadyPoll overrides DefaultReadyPoll.
	ReadyPoll time.Duration
}

// Synchronizer keeps one rendered list in step with one backend collection:
// wait for the backend, subscribe, classify each change against the dedup
// cache, hand it to the renderer. All state that used to float around as
// globals (current subscription, seen-id set) lives here, scoped to one
// page session.
type Synchronizer struct {
	gw       gateway.Gateway
	renderer Renderer
	opts     Options
	seen     *Dedup
	state    State
	log      *zap.Logger
}

// New builds a synchronizer. Run starts it.
func New(gw gateway.Gateway, renderer Renderer, opts Options, log *zap.Logger) *Synchronizer {
	if opts.ReadyPoll <= 0 {
		opts.ReadyPoll = DefaultReadyPoll
	}
	return &Synchronizer{
		gw:       gw,
		renderer: renderer,
		opts:     opts,
		seen:     NewDedup(),
		state:    StateWaitingForBackend,
		log:      log.With(zap.String("collection", opts.Collection)),
	}
}

// State reports the current lifecycle state.
func (s *Synchronizer) State() State {
	return s.state
}

// Seen exposes the dedup cache to collaborators that need to ask whether an
// id is currently rendered.
func (s *Synchronizer) Seen() *Dedup {
	return s.seen
}

// Run drives the synchronizer until ctx is done. The waiting state retries
// on a fixed tick without bound; a failure while establishing the
// subscription itself is logged and returned, not retried.
func (s *Synchronizer) Run(ctx context.Context) error {
	if err := s.waitForBackend(ctx); err != nil {
		return err
	}

	sub, err := s.gw.Subscribe(ctx, s.opts.Collection, s.opts.Query)
	if err != nil {
		s.log.Error("subscribe failed", zap.Error(err))
		return err
	}
	s.state = StateSubscribed
	s.log.Info("subscribed", zap.Int("snapshot", len(sub.Snapshot)))

	s.renderSnapshot(sub.Snapshot)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch, ok := <-sub.Updates:
			if !ok {
				return nil
			}
			s.apply(ch, true)
		}
	}
}

func (s *Synchronizer) waitForBackend(ctx context.Context) error {
	if s.gw.Ready() {
		return nil
	}
	ticker := time.NewTicker(s.opts.ReadyPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if s.gw.Ready() {
				return nil
			}
			s.log.Debug("waiting for backend")
		}
	}
}

// renderSnapshot processes the initial matching set. Snapshot items always
// append in iteration order; the only transformation is the optional
// reversal from the backend's newest-first pagination order back to
// chronological for read-order lists like chat.
func (s *Synchronizer) renderSnapshot(snapshot []gateway.Change) {
	if s.opts.ChronologicalSnapshot {
		for i := len(snapshot) - 1; i >= 0; i-- {
			s.apply(snapshot[i], false)
		}
		return
	}
	for _, ch := range snapshot {
		s.apply(ch, false)
	}
}

func (s *Synchronizer) apply(ch gateway.Change, live bool) {
	rec := Record{ID: ch.ID, Data: ch.Data}

	switch ch.Kind {
	case gateway.Added:
		if s.seen.Has(ch.ID) {
			// Snapshot replay after a reconnect; already rendered.
			return
		}
		s.seen.MarkSeen(ch.ID)
		pos := AppendBottom
		if live {
			pos = s.opts.LivePlacement
		}
		s.renderer.Insert(rec, pos, live)

	case gateway.Modified:
		s.renderer.Update(rec)

	case gateway.Removed:
		if !s.seen.Has(ch.ID) {
			return
		}
		s.seen.Forget(ch.ID)
		s.renderer.Remove(ch.ID)
	}

	if s.opts.OnChangeApplied != nil {
		s.opts.OnChangeApplied(ch.Kind, rec)
	}
}
