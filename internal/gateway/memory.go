package gateway

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Gateway. It backs the test suites and the
// BACKEND=memory development mode, and doubles as the reference semantics
// the real adapters are held to: ordered delivery per subscription, atomic
// Increment patches, snapshot-then-updates on subscribe.
type Memory struct {
	mu       sync.Mutex
	ready    bool
	readyCh  chan struct{}
	data     map[string]map[string]map[string]any // collection -> id -> record
	order    map[string][]string                  // collection -> insertion order
	subs     []*memorySub
	writeErr error
	subErr   error
}

type memorySub struct {
	collection string
	query      Query
	ch         chan Change
	done       <-chan struct{}
}

// NewMemory returns a ready Memory gateway.
func NewMemory() *Memory {
	m := &Memory{
		ready:   true,
		readyCh: make(chan struct{}),
		data:    make(map[string]map[string]map[string]any),
		order:   make(map[string][]string),
	}
	close(m.readyCh)
	return m
}

// NewMemoryNotReady returns a Memory gateway that reports unavailable until
// SetReady is called, for exercising the waiting state.
func NewMemoryNotReady() *Memory {
	return &Memory{
		ready:   false,
		readyCh: make(chan struct{}),
		data:    make(map[string]map[string]map[string]any),
		order:   make(map[string][]string),
	}
}

func (m *Memory) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

// SetReady flips the readiness flag and releases WaitReady callers.
func (m *Memory) SetReady() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		m.ready = true
		close(m.readyCh)
	}
}

// FailWrites makes every subsequent write return err (nil restores writes).
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// FailSubscribes makes every subsequent Subscribe return err (nil restores
// subscriptions).
func (m *Memory) FailSubscribes(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subErr = err
}

func (m *Memory) WaitReady(ctx context.Context) error {
	m.mu.Lock()
	ch := m.readyCh
	m.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Memory) Subscribe(ctx context.Context, collection string, q Query) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil, ErrBackendUnavailable
	}
	if m.subErr != nil {
		return nil, m.subErr
	}

	snapshot := m.matchLocked(collection, q)
	ch := make(chan Change, 256)
	sub := &memorySub{collection: collection, query: q, ch: ch, done: ctx.Done()}
	m.subs = append(m.subs, sub)

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		for i, s := range m.subs {
			if s == sub {
				m.subs = append(m.subs[:i], m.subs[i+1:]...)
				close(ch)
				break
			}
		}
		m.mu.Unlock()
	}()

	return &Subscription{Snapshot: snapshot, Updates: ch}, nil
}

func (m *Memory) Insert(ctx context.Context, collection string, record map[string]any) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return "", ErrBackendUnavailable
	}
	if m.writeErr != nil {
		return "", m.writeErr
	}

	id := uuid.NewString()
	rec := cloneRecord(record)
	if _, ok := rec["created_at"]; !ok {
		rec["created_at"] = time.Now().UTC()
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]map[string]any)
	}
	m.data[collection][id] = rec
	m.order[collection] = append(m.order[collection], id)

	m.publishLocked(collection, Change{Kind: Added, ID: id, Data: cloneRecord(rec)})
	return id, nil
}

func (m *Memory) Set(ctx context.Context, collection string, id string, record map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrBackendUnavailable
	}
	if m.writeErr != nil {
		return m.writeErr
	}

	rec := cloneRecord(record)
	if _, ok := rec["created_at"]; !ok {
		rec["created_at"] = time.Now().UTC()
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]map[string]any)
	}
	_, existed := m.data[collection][id]
	m.data[collection][id] = rec
	if !existed {
		m.order[collection] = append(m.order[collection], id)
		m.publishLocked(collection, Change{Kind: Added, ID: id, Data: cloneRecord(rec)})
	} else {
		m.publishLocked(collection, Change{Kind: Modified, ID: id, Data: cloneRecord(rec)})
	}
	return nil
}

func (m *Memory) Get(ctx context.Context, collection string, id string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil, ErrBackendUnavailable
	}
	rec, ok := m.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *Memory) Update(ctx context.Context, collection string, id string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrBackendUnavailable
	}
	if m.writeErr != nil {
		return m.writeErr
	}

	rec, ok := m.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	for k, v := range patch {
		if inc, isInc := v.(Increment); isInc {
			rec[k] = AsInt(rec[k]) + int64(inc)
			continue
		}
		rec[k] = v
	}

	m.publishLocked(collection, Change{Kind: Modified, ID: id, Data: cloneRecord(rec)})
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return ErrBackendUnavailable
	}
	if m.writeErr != nil {
		return m.writeErr
	}

	rec, ok := m.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	delete(m.data[collection], id)
	for i, oid := range m.order[collection] {
		if oid == id {
			m.order[collection] = append(m.order[collection][:i], m.order[collection][i+1:]...)
			break
		}
	}

	m.publishLocked(collection, Change{Kind: Removed, ID: id, Data: rec})
	return nil
}

func (m *Memory) Query(ctx context.Context, collection string, q Query) ([]Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return nil, ErrBackendUnavailable
	}
	return m.matchLocked(collection, q), nil
}

// Redeliver re-emits the current matching set of a collection as Added
// events to every live subscriber, simulating a snapshot replay after a
// backend reconnect.
func (m *Memory) Redeliver(collection string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order[collection] {
		m.publishLocked(collection, Change{Kind: Added, ID: id, Data: cloneRecord(m.data[collection][id])})
	}
}

func (m *Memory) publishLocked(collection string, ch Change) {
	for _, sub := range m.subs {
		if sub.collection != collection {
			continue
		}
		if ch.Kind != Removed && !matches(ch.Data, sub.query.Filters) {
			continue
		}
		select {
		case sub.ch <- ch:
		case <-sub.done:
		}
	}
}

func (m *Memory) matchLocked(collection string, q Query) []Change {
	var out []Change
	for _, id := range m.order[collection] {
		rec := m.data[collection][id]
		if matches(rec, q.Filters) {
			out = append(out, Change{Kind: Added, ID: id, Data: cloneRecord(rec)})
		}
	}
	if q.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return lessField(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy]) != q.Desc
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func matches(rec map[string]any, filters []Filter) bool {
	for _, f := range filters {
		got := rec[f.Field]
		switch f.Op {
		case "", "==":
			if !equalField(got, f.Value) {
				return false
			}
		case "!=":
			if equalField(got, f.Value) {
				return false
			}
		case "<":
			if !lessField(got, f.Value) {
				return false
			}
		case ">":
			if !lessField(f.Value, got) {
				return false
			}
		case "<=":
			if lessField(f.Value, got) {
				return false
			}
		case ">=":
			if lessField(got, f.Value) {
				return false
			}
		}
	}
	return true
}

func equalField(a, b any) bool {
	if ta, ok := a.(time.Time); ok {
		return ta.Equal(AsTime(b))
	}
	switch b.(type) {
	case int, int32, int64, float32, float64:
		return AsInt(a) == AsInt(b)
	}
	return a == b
}

func lessField(a, b any) bool {
	switch av := a.(type) {
	case time.Time:
		return av.Before(AsTime(b))
	case string:
		return av < AsString(b)
	default:
		return AsInt(a) < AsInt(b)
	}
}

func cloneRecord(rec map[string]any) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
