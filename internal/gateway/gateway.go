package gateway

import (
	"context"
	"time"
)

// Collection names shared by every backend adapter.
const (
	CollectionUsers         = "users"
	CollectionTracks        = "tracks"
	CollectionMessages      = "messages"
	CollectionComments      = "comments"
	CollectionNotifications = "notifications"
	CollectionPushQueue     = "push_queue"
)

// ChangeKind classifies a change event within a subscription stream.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is a single change event for one record.
type Change struct {
	Kind ChangeKind
	ID   string
	Data map[string]any
}

// Filter is a single field predicate. Op is one of "==", "!=", "<", "<=", ">", ">=".
type Filter struct {
	Field string
	Op    string
	Value any
}

// Query describes what a subscription (or list) should match and in which
// order the backend delivers the initial snapshot.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Eq is shorthand for an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: "==", Value: value}
}

// Subscription is a live view over one collection: the current matching set
// delivered up front, then incremental changes in backend order. Updates is
// closed when the subscription ends (context cancelled or backend gone).
type Subscription struct {
	Snapshot []Change
	Updates  <-chan Change
}

// Increment marks a patch value as a server-side atomic counter delta, so
// concurrent writers never lose updates to a read-modify-write cycle.
type Increment int64

// Gateway is the backend contract the synchronizer and services are written
// against. Firestore, Postgres+Redis and Mongo adapters implement it.
type Gateway interface {
	// Ready reports whether the backend finished initializing. Callers may
	// poll it; WaitReady is the preferred primitive.
	Ready() bool

	// WaitReady blocks until the backend is usable or ctx is done.
	WaitReady(ctx context.Context) error

	// Subscribe opens a live view over collection. The snapshot holds the
	// current matching set as Added changes in the query's native order.
	Subscribe(ctx context.Context, collection string, q Query) (*Subscription, error)

	// Insert stores a new record and returns its assigned id.
	Insert(ctx context.Context, collection string, record map[string]any) (string, error)

	// Set stores a record under a caller-chosen id, overwriting any
	// existing record. User profiles are keyed by their auth uid this way.
	Set(ctx context.Context, collection string, id string, record map[string]any) error

	// Get fetches one record by id, or ErrNotFound.
	Get(ctx context.Context, collection string, id string) (map[string]any, error)

	// Update applies a partial patch to an existing record. Values of type
	// Increment are applied as atomic deltas.
	Update(ctx context.Context, collection string, id string, patch map[string]any) error

	// Delete removes a record. Deleting an already-deleted record returns
	// ErrNotFound, which callers treat as benign.
	Delete(ctx context.Context, collection string, id string) error

	// Query returns the current matching set without subscribing.
	Query(ctx context.Context, collection string, q Query) ([]Change, error)
}

// AsTime coerces a record field into a time.Time. Adapters store timestamps
// natively; the zero time is returned for missing or foreign values.
func AsTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case *time.Time:
		if t != nil {
			return *t
		}
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// AsInt coerces a numeric record field into an int64. JSON decoding and the
// various drivers disagree about integer width, so every shape is accepted.
func AsInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	case float32:
		return int64(n)
	}
	return 0
}

// AsString coerces a record field into a string.
func AsString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// AsBool coerces a record field into a bool.
func AsBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
