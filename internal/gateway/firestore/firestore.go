// Package firestore adapts Cloud Firestore onto the backend gateway
// contract. Snapshot listeners map 1:1 onto gateway change events, so the
// synchronizer never sees a Firestore type.
package firestore

import (
	"context"
	"sync"

	cf "cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/narfbach/music-cave/backend/internal/gateway"
)

// Adapter is a gateway.Gateway backed by Firestore. Construction is
// asynchronous: the client dials in the background and the adapter reports
// not-ready until it is done, which is exactly the window the synchronizer's
// waiting state covers.
type Adapter struct {
	mu      sync.RWMutex
	client  *cf.Client
	readyCh chan struct{}
	log     *zap.Logger
}

// New starts connecting to projectID. credentialsFile may be empty to use
// application-default credentials.
func New(ctx context.Context, projectID, credentialsFile string, log *zap.Logger) *Adapter {
	a := &Adapter{readyCh: make(chan struct{}), log: log.Named("firestore")}
	go a.connect(ctx, projectID, credentialsFile)
	return a
}

func (a *Adapter) connect(ctx context.Context, projectID, credentialsFile string) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := cf.NewClient(ctx, projectID, opts...)
	if err != nil {
		a.log.Error("firestore connect failed", zap.Error(err))
		return
	}
	a.mu.Lock()
	a.client = client
	a.mu.Unlock()
	close(a.readyCh)
	a.log.Info("firestore ready", zap.String("project", projectID))
}

func (a *Adapter) Ready() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client != nil
}

func (a *Adapter) WaitReady(ctx context.Context) error {
	select {
	case <-a.readyCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) db() (*cf.Client, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.client == nil {
		return nil, gateway.ErrBackendUnavailable
	}
	return a.client, nil
}

func buildQuery(col *cf.CollectionRef, q gateway.Query) cf.Query {
	query := col.Query
	for _, f := range q.Filters {
		op := f.Op
		if op == "" {
			op = "=="
		}
		query = query.Where(f.Field, op, f.Value)
	}
	if q.OrderBy != "" {
		dir := cf.Asc
		if q.Desc {
			dir = cf.Desc
		}
		query = query.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return query
}

func (a *Adapter) Subscribe(ctx context.Context, collection string, q gateway.Query) (*gateway.Subscription, error) {
	client, err := a.db()
	if err != nil {
		return nil, err
	}

	iter := buildQuery(client.Collection(collection), q).Snapshots(ctx)

	first, err := iter.Next()
	if err != nil {
		iter.Stop()
		return nil, mapError(err)
	}

	var snapshot []gateway.Change
	for _, dc := range first.Changes {
		if dc.Kind == cf.DocumentAdded {
			snapshot = append(snapshot, gateway.Change{
				Kind: gateway.Added,
				ID:   dc.Doc.Ref.ID,
				Data: dc.Doc.Data(),
			})
		}
	}

	updates := make(chan gateway.Change, 256)
	go func() {
		defer close(updates)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if ctx.Err() == nil {
					a.log.Warn("snapshot listener ended", zap.String("collection", collection), zap.Error(err))
				}
				return
			}
			for _, dc := range snap.Changes {
				ch := gateway.Change{ID: dc.Doc.Ref.ID, Data: dc.Doc.Data()}
				switch dc.Kind {
				case cf.DocumentAdded:
					ch.Kind = gateway.Added
				case cf.DocumentModified:
					ch.Kind = gateway.Modified
				case cf.DocumentRemoved:
					ch.Kind = gateway.Removed
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

func (a *Adapter) Insert(ctx context.Context, collection string, record map[string]any) (string, error) {
	client, err := a.db()
	if err != nil {
		return "", err
	}
	ref, _, err := client.Collection(collection).Add(ctx, record)
	if err != nil {
		return "", mapError(err)
	}
	return ref.ID, nil
}

func (a *Adapter) Set(ctx context.Context, collection string, id string, record map[string]any) error {
	client, err := a.db()
	if err != nil {
		return err
	}
	_, err = client.Collection(collection).Doc(id).Set(ctx, record)
	return mapError(err)
}

func (a *Adapter) Get(ctx context.Context, collection string, id string) (map[string]any, error) {
	client, err := a.db()
	if err != nil {
		return nil, err
	}
	doc, err := client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return doc.Data(), nil
}

func (a *Adapter) Update(ctx context.Context, collection string, id string, patch map[string]any) error {
	client, err := a.db()
	if err != nil {
		return err
	}
	updates := make([]cf.Update, 0, len(patch))
	for k, v := range patch {
		if inc, ok := v.(gateway.Increment); ok {
			v = cf.Increment(int64(inc))
		}
		updates = append(updates, cf.Update{Path: k, Value: v})
	}
	_, err = client.Collection(collection).Doc(id).Update(ctx, updates)
	return mapError(err)
}

func (a *Adapter) Delete(ctx context.Context, collection string, id string) error {
	client, err := a.db()
	if err != nil {
		return err
	}
	// Firestore deletes are idempotent; probe first so callers can tell an
	// already-deleted record apart.
	if _, err := client.Collection(collection).Doc(id).Get(ctx); err != nil {
		return mapError(err)
	}
	_, err = client.Collection(collection).Doc(id).Delete(ctx)
	return mapError(err)
}

func (a *Adapter) Query(ctx context.Context, collection string, q gateway.Query) ([]gateway.Change, error) {
	client, err := a.db()
	if err != nil {
		return nil, err
	}
	docs, err := buildQuery(client.Collection(collection), q).Documents(ctx).GetAll()
	if err != nil {
		return nil, mapError(err)
	}
	out := make([]gateway.Change, 0, len(docs))
	for _, doc := range docs {
		out = append(out, gateway.Change{Kind: gateway.Added, ID: doc.Ref.ID, Data: doc.Data()})
	}
	return out, nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return gateway.ErrNotFound
	case codes.PermissionDenied, codes.Unauthenticated, codes.InvalidArgument:
		return gateway.RejectWrite("%s", status.Convert(err).Message())
	case codes.Unavailable:
		return gateway.ErrBackendUnavailable
	}
	return err
}
