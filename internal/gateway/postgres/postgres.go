// Package postgres adapts Postgres onto the backend gateway contract the
// way the Supabase stack did: rows in plain tables, change events fanned
// out over a pub/sub channel per table (Redis standing in for Supabase's
// realtime channels).
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/narfbach/music-cave/backend/internal/gateway"
)

const channelPrefix = "cave:changes:"

// Adapter is a gateway.Gateway over gorm + go-redis. Construction is
// asynchronous; Ready flips once the schema is in place and Redis answers.
type Adapter struct {
	mu      sync.RWMutex
	db      *gorm.DB
	rdb     *redis.Client
	readyCh chan struct{}
	log     *zap.Logger
}

// New starts connecting. redisAddr is host:port.
func New(ctx context.Context, dsn, redisAddr string, log *zap.Logger) *Adapter {
	a := &Adapter{readyCh: make(chan struct{}), log: log.Named("postgres")}
	go a.connect(ctx, dsn, redisAddr)
	return a
}

// NewWithClients wires an adapter over already-open handles (tests use this
// with miniredis).
func NewWithClients(db *gorm.DB, rdb *redis.Client, log *zap.Logger) *Adapter {
	a := &Adapter{db: db, rdb: rdb, readyCh: make(chan struct{}), log: log.Named("postgres")}
	close(a.readyCh)
	return a
}

func (a *Adapter) connect(ctx context.Context, dsn, redisAddr string) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		a.log.Error("postgres connect failed", zap.Error(err))
		return
	}
	if err := db.WithContext(ctx).Exec(schemaDDL).Error; err != nil {
		a.log.Error("schema setup failed", zap.Error(err))
		return
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		a.log.Error("redis connect failed", zap.Error(err))
		return
	}

	a.mu.Lock()
	a.db = db
	a.rdb = rdb
	a.mu.Unlock()
	close(a.readyCh)
	a.log.Info("postgres ready")
}

func (a *Adapter) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.db != nil && a.rdb != nil
}

func (a *Adapter) WaitReady(ctx context.Context) error {
	select {
	case <-a.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) handles() (*gorm.DB, *redis.Client, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil || a.rdb == nil {
		return nil, nil, gateway.ErrBackendUnavailable
	}
	return a.db, a.rdb, nil
}

// wireChange is the pub/sub payload. Timestamps survive as RFC3339 strings.
type wireChange struct {
	Kind string         `json:"kind"`
	ID   string         `json:"id"`
	Data map[string]any `json:"data,omitempty"`
}

func (a *Adapter) publish(ctx context.Context, collection string, kind gateway.ChangeKind, id string, data map[string]any) {
	_, rdb, err := a.handles()
	if err != nil {
		return
	}
	payload, err := json.Marshal(wireChange{Kind: kind.String(), ID: id, Data: data})
	if err != nil {
		a.log.Error("marshal change", zap.Error(err))
		return
	}
	if err := rdb.Publish(ctx, channelPrefix+collection, payload).Err(); err != nil {
		a.log.Warn("publish change failed", zap.String("collection", collection), zap.Error(err))
	}
}

func (a *Adapter) Subscribe(ctx context.Context, collection string, q gateway.Query) (*gateway.Subscription, error) {
	_, rdb, err := a.handles()
	if err != nil {
		return nil, err
	}

	// Subscribe before the snapshot query so no change falls in the gap;
	// the dedup cache absorbs any overlap.
	sub := rdb.Subscribe(ctx, channelPrefix+collection)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}

	snapshot, err := a.Query(ctx, collection, q)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	updates := make(chan gateway.Change, 256)
	go func() {
		defer close(updates)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var wc wireChange
				if err := json.Unmarshal([]byte(msg.Payload), &wc); err != nil {
					a.log.Warn("bad change payload", zap.Error(err))
					continue
				}
				ch := gateway.Change{ID: wc.ID, Data: wc.Data}
				switch wc.Kind {
				case "added":
					ch.Kind = gateway.Added
				case "modified":
					ch.Kind = gateway.Modified
				case "removed":
					ch.Kind = gateway.Removed
				default:
					continue
				}
				if ch.Kind != gateway.Removed && !matchesFilters(ch.Data, q.Filters) {
					continue
				}
				select {
				case updates <- ch:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return &gateway.Subscription{Snapshot: snapshot, Updates: updates}, nil
}

func matchesFilters(data map[string]any, filters []gateway.Filter) bool {
	for _, f := range filters {
		if f.Op != "" && f.Op != "==" {
			continue
		}
		got := data[f.Field]
		if fmt.Sprint(got) != fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

func (a *Adapter) Insert(ctx context.Context, collection string, record map[string]any) (string, error) {
	db, _, err := a.handles()
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	row := normalizeRow(record)
	row["id"] = id
	if err := db.WithContext(ctx).Table(collection).Create(row).Error; err != nil {
		return "", mapError(err)
	}
	a.publish(ctx, collection, gateway.Added, id, row)
	return id, nil
}

func (a *Adapter) Set(ctx context.Context, collection string, id string, record map[string]any) error {
	db, _, err := a.handles()
	if err != nil {
		return err
	}
	row := normalizeRow(record)
	row["id"] = id

	_, err = a.Get(ctx, collection, id)
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		if err := db.WithContext(ctx).Table(collection).Create(row).Error; err != nil {
			return mapError(err)
		}
		a.publish(ctx, collection, gateway.Added, id, row)
		return nil
	case err != nil:
		return err
	default:
		if err := db.WithContext(ctx).Table(collection).Where("id = ?", id).Updates(row).Error; err != nil {
			return mapError(err)
		}
		a.publish(ctx, collection, gateway.Modified, id, row)
		return nil
	}
}

func (a *Adapter) Get(ctx context.Context, collection string, id string) (map[string]any, error) {
	db, _, err := a.handles()
	if err != nil {
		return nil, err
	}
	row := map[string]any{}
	err = db.WithContext(ctx).Table(collection).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, gateway.ErrNotFound
		}
		return nil, mapError(err)
	}
	delete(row, "id")
	return row, nil
}

func (a *Adapter) Update(ctx context.Context, collection string, id string, patch map[string]any) error {
	db, _, err := a.handles()
	if err != nil {
		return err
	}
	assign := make(map[string]any, len(patch))
	for k, v := range patch {
		if inc, ok := v.(gateway.Increment); ok {
			assign[k] = gorm.Expr(fmt.Sprintf("%s + ?", k), int64(inc))
			continue
		}
		assign[k] = normalizeValue(v)
	}
	res := db.WithContext(ctx).Table(collection).Where("id = ?", id).Updates(assign)
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return gateway.ErrNotFound
	}

	row, err := a.Get(ctx, collection, id)
	if err == nil {
		a.publish(ctx, collection, gateway.Modified, id, row)
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, collection string, id string) error {
	db, _, err := a.handles()
	if err != nil {
		return err
	}
	res := db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE id = ?", collection), id)
	if res.Error != nil {
		return mapError(res.Error)
	}
	if res.RowsAffected == 0 {
		return gateway.ErrNotFound
	}
	a.publish(ctx, collection, gateway.Removed, id, nil)
	return nil
}

func (a *Adapter) Query(ctx context.Context, collection string, q gateway.Query) ([]gateway.Change, error) {
	db, _, err := a.handles()
	if err != nil {
		return nil, err
	}
	tx := db.WithContext(ctx).Table(collection)
	for _, f := range q.Filters {
		op := f.Op
		if op == "" || op == "==" {
			op = "="
		}
		tx = tx.Where(fmt.Sprintf("%s %s ?", f.Field, op), f.Value)
	}
	if q.OrderBy != "" {
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		tx = tx.Order(fmt.Sprintf("%s %s", q.OrderBy, dir))
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []map[string]any
	if err := tx.Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	out := make([]gateway.Change, 0, len(rows))
	for _, row := range rows {
		id := gateway.AsString(row["id"])
		delete(row, "id")
		out = append(out, gateway.Change{Kind: gateway.Added, ID: id, Data: row})
	}
	return out, nil
}

// normalizeRow copies a record for storage, flattening values the drivers
// would otherwise choke on.
func normalizeRow(record map[string]any) map[string]any {
	row := make(map[string]any, len(record))
	for k, v := range record {
		row[k] = normalizeValue(v)
	}
	return row
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case []string:
		// Token lists ride along as JSON text.
		b, err := json.Marshal(t)
		if err != nil {
			return "[]"
		}
		return string(b)
	default:
		return v
	}
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return gateway.ErrNotFound
	}
	return err
}
