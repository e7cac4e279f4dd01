// Package mongo adapts MongoDB onto the backend gateway contract, using
// change streams for the realtime side.
package mongo

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/narfbach/music-cave/backend/internal/gateway"
)

// Adapter is a gateway.Gateway over mongo-driver. Like the other adapters
// it connects in the background and reports not-ready until then.
type Adapter struct {
	mu      sync.RWMutex
	db      *mongo.Database
	readyCh chan struct{}
	log     *zap.Logger
}

// New starts connecting to uri and uses database dbName.
func New(ctx context.Context, uri, dbName string, log *zap.Logger) *Adapter {
	a := &Adapter{readyCh: make(chan struct{}), log: log.Named("mongo")}
	go a.connect(ctx, uri, dbName)
	return a
}

func (a *Adapter) connect(ctx context.Context, uri, dbName string) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(dialCtx, options.Client().ApplyURI(uri))
	if err != nil {
		a.log.Error("mongo connect failed", zap.Error(err))
		return
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		a.log.Error("mongo ping failed", zap.Error(err))
		return
	}

	a.mu.Lock()
	a.db = client.Database(dbName)
	a.mu.Unlock()
	close(a.readyCh)
	a.log.Info("mongo ready", zap.String("database", dbName))
}

func (a *Adapter) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.db != nil
}

func (a *Adapter) WaitReady(ctx context.Context) error {
	select {
	case <-a.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) collection(name string) (*mongo.Collection, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, gateway.ErrBackendUnavailable
	}
	return a.db.Collection(name), nil
}

func docToRecord(doc bson.M) (string, map[string]any) {
	id := ""
	if oid, ok := doc["_id"].(primitive.ObjectID); ok {
		id = oid.Hex()
	} else if s, ok := doc["_id"].(string); ok {
		id = s
	}
	data := make(map[string]any, len(doc))
	for k, v := range doc {
		if k == "_id" {
			continue
		}
		if dt, ok := v.(primitive.DateTime); ok {
			v = dt.Time().UTC()
		}
		data[k] = v
	}
	return id, data
}

func docID(id string) any {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	// Profile documents are keyed by auth uid, not ObjectID.
	return id
}

func buildFilter(filters []gateway.Filter) bson.M {
	out := bson.M{}
	for _, f := range filters {
		switch f.Op {
		case "", "==":
			out[f.Field] = f.Value
		case "!=":
			out[f.Field] = bson.M{"$ne": f.Value}
		case "<":
			out[f.Field] = bson.M{"$lt": f.Value}
		case "<=":
			out[f.Field] = bson.M{"$lte": f.Value}
		case ">":
			out[f.Field] = bson.M{"$gt": f.Value}
		case ">=":
			out[f.Field] = bson.M{"$gte": f.Value}
		}
	}
	return out
}

func (a *Adapter) Subscribe(ctx context.Context, collection string, q gateway.Query) (*gateway.Subscription, error) {
	col, err := a.collection(collection)
	if err != nil {
		return nil, err
	}

	stream, err := col.Watch(ctx, mongo.Pipeline{}, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, err
	}

	snapshot, err := a.Query(ctx, collection, q)
	if err != nil {
		_ = stream.Close(ctx)
		return nil, err
	}

	updates := make(chan gateway.Change, 256)
	go func() {
		defer close(updates)
		defer stream.Close(context.Background())
		for stream.Next(ctx) {
			var ev struct {
				OperationType string `bson:"operationType"`
				DocumentKey   bson.M `bson:"documentKey"`
				FullDocument  bson.M `bson:"fullDocument"`
			}
			if err := stream.Decode(&ev); err != nil {
				a.log.Warn("decode change event", zap.Error(err))
				continue
			}

			ch := gateway.Change{}
			switch ev.OperationType {
			case "insert":
				ch.Kind = gateway.Added
			case "update", "replace":
				ch.Kind = gateway.Modified
			case "delete":
				ch.Kind = gateway.Removed
			default:
				continue
			}

			if ev.FullDocument != nil {
				ch.ID, ch.Data = docToRecord(ev.FullDocument)
			} else {
				ch.ID, _ = docToRecord(ev.DocumentKey)
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
	}()

	return &gateway.Subscription{Snapshot: snapshot, Updates: updates}, nil
}

func matchesFilters(data map[string]any, filters []gateway.Filter) bool {
	for _, f := range filters {
		if f.Op != "" && f.Op != "==" {
			continue
		}
		if data[f.Field] != f.Value {
			return false
		}
	}
	return true
}

func (a *Adapter) Insert(ctx context.Context, collection string, record map[string]any) (string, error) {
	col, err := a.collection(collection)
	if err != nil {
		return "", err
	}
	id := primitive.NewObjectID()
	doc := bson.M{"_id": id}
	for k, v := range record {
		doc[k] = v
	}
	if _, err := col.InsertOne(ctx, doc); err != nil {
		return "", err
	}
	return id.Hex(), nil
}

func (a *Adapter) Set(ctx context.Context, collection string, id string, record map[string]any) error {
	col, err := a.collection(collection)
	if err != nil {
		return err
	}
	doc := bson.M{}
	for k, v := range record {
		doc[k] = v
	}
	opts := options.Replace().SetUpsert(true)
	_, err = col.ReplaceOne(ctx, bson.M{"_id": docID(id)}, doc, opts)
	return err
}

func (a *Adapter) Get(ctx context.Context, collection string, id string) (map[string]any, error) {
	col, err := a.collection(collection)
	if err != nil {
		return nil, err
	}
	var doc bson.M
	if err := col.FindOne(ctx, bson.M{"_id": docID(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, gateway.ErrNotFound
		}
		return nil, err
	}
	_, data := docToRecord(doc)
	return data, nil
}

func (a *Adapter) Update(ctx context.Context, collection string, id string, patch map[string]any) error {
	col, err := a.collection(collection)
	if err != nil {
		return err
	}

	set := bson.M{}
	inc := bson.M{}
	for k, v := range patch {
		if delta, ok := v.(gateway.Increment); ok {
			inc[k] = int64(delta)
			continue
		}
		set[k] = v
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(inc) > 0 {
		update["$inc"] = inc
	}

	res, err := col.UpdateOne(ctx, bson.M{"_id": docID(id)}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return gateway.ErrNotFound
	}
	return nil
}

func (a *Adapter) Delete(ctx context.Context, collection string, id string) error {
	col, err := a.collection(collection)
	if err != nil {
		return err
	}
	res, err := col.DeleteOne(ctx, bson.M{"_id": docID(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return gateway.ErrNotFound
	}
	return nil
}

func (a *Adapter) Query(ctx context.Context, collection string, q gateway.Query) ([]gateway.Change, error) {
	col, err := a.collection(collection)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cursor, err := col.Find(ctx, buildFilter(q.Filters), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var out []gateway.Change
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		id, data := docToRecord(doc)
		out = append(out, gateway.Change{Kind: gateway.Added, ID: id, Data: data})
	}
	return out, cursor.Err()
}
