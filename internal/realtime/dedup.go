package realtime

// Dedup is the session-local set of record ids already handed to the
// renderer. It lives exactly as long as its subscription: a snapshot replay
// after a backend reconnect re-delivers ids that are already here, and those
// are dropped instead of rendered twice.
type Dedup struct {
	seen map[string]struct{}
}

// NewDedup returns an empty cache.
func NewDedup() *Dedup {
	return &Dedup{seen: make(map[string]struct{})}
}

// Has reports whether id was already rendered this session.
func (d *Dedup) Has(id string) bool {
	_, ok := d.seen[id]
	return ok
}

// MarkSeen records id as rendered.
func (d *Dedup) MarkSeen(id string) {
	d.seen[id] = struct{}{}
}

// Forget drops id, so a later re-add of the same id counts as new again.
// Called exactly when a removed event for id is processed.
func (d *Dedup) Forget(id string) {
	delete(d.seen, id)
}

// Len reports how many ids are tracked.
func (d *Dedup) Len() int {
	return len(d.seen)
}
