package etl

import (
	"context"
	"sync"

	"github.com/taicho/postgres-to-mongo/internal/source"
	sourcemocks "github.com/taicho/postgres-to-mongo/internal/source/mocks"
	"github.com/taicho/postgres-to-mongo/internal/store"
	storemocks "github.com/taicho/postgres-to-mongo/internal/store/mocks"
	"github.com/taicho/postgres-to-mongo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

func noopPersist(context.Context, *models.TableTranslation, []bson.M) error { return nil }

type insertCall struct {
	collection string
	docs       []bson.M
}

type updateCall struct {
	collection string
	filter     bson.M
	update     bson.M
}

type findCall struct {
	collection string
	filter     bson.M
	projection bson.M
}

type indexCall struct {
	collection string
	keys       bson.D
	opts       models.IndexOptions
}

// recorder captures every store call. Inserts succeed unless insertFn says otherwise.
type recorder struct {
	mu       sync.Mutex
	inserts  []insertCall
	updates  []updateCall
	finds    []findCall
	indexes  []indexCall
	results  map[string][]bson.M
	insertFn func(call int, docs []bson.M) (store.InsertResult, error)
	updateFn func(filter, update bson.M) error
}

func newRecorder() *recorder {
	return &recorder{results: map[string][]bson.M{}}
}

func (r *recorder) store() *storemocks.Store {
	return &storemocks.Store{
		InsertManyFn: func(_ context.Context, collection string, docs []bson.M) (store.InsertResult, error) {
			r.mu.Lock()
			r.inserts = append(r.inserts, insertCall{collection: collection, docs: append([]bson.M(nil), docs...)})
			call := len(r.inserts)
			r.mu.Unlock()
			if r.insertFn != nil {
				return r.insertFn(call, docs)
			}
			return store.InsertResult{InsertedCount: len(docs), FailedIndex: -1}, nil
		},
		UpdateManyFn: func(_ context.Context, collection string, filter, update bson.M) (int64, error) {
			r.mu.Lock()
			r.updates = append(r.updates, updateCall{collection: collection, filter: filter, update: update})
			r.mu.Unlock()
			if r.updateFn != nil {
				if err := r.updateFn(filter, update); err != nil {
					return 0, err
				}
			}
			return 1, nil
		},
		FindFn: func(_ context.Context, collection string, filter, projection bson.M) ([]bson.M, error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.finds = append(r.finds, findCall{collection: collection, filter: filter, projection: projection})
			return r.results[collection], nil
		},
		CreateIndexFn: func(_ context.Context, collection string, keys bson.D, opts models.IndexOptions) error {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.indexes = append(r.indexes, indexCall{collection: collection, keys: keys, opts: opts})
			return nil
		},
	}
}

func (r *recorder) insertedDocs() []bson.M {
	var out []bson.M
	for _, c := range r.inserts {
		out = append(out, c.docs...)
	}
	return out
}

// tableSource serves one table from memory and counts cursor calls.
type tableSource struct {
	columns  models.TableColumns
	rows     []source.Row
	nexts    int
	closes   int
	released int
}

func (ts *tableSource) source() *sourcemocks.Source {
	return &sourcemocks.Source{
		ColumnsFn: func(context.Context, string, string) (models.TableColumns, error) {
			return ts.columns, nil
		},
		CountFn: func(context.Context, string, string, string) (int, error) {
			return len(ts.rows), nil
		},
		OpenFn: func(context.Context, string, string, models.TableColumns, string) (source.Cursor, error) {
			inner := &sourcemocks.SliceCursor{Rows: ts.rows}
			return &sourcemocks.Cursor{
				NextFn: func(ctx context.Context, n int) ([]source.Row, error) {
					ts.nexts++
					return inner.Next(ctx, n)
				},
				CloseFn: func(ctx context.Context) error {
					ts.closes++
					return inner.Close(ctx)
				},
			}, nil
		},
		ReleaseFn: func(context.Context) error {
			ts.released++
			return nil
		},
	}
}

func newTestProcessor(src source.Source, st store.Store, batchSize int) *batchProcessor {
	return &batchProcessor{
		src:       src,
		store:     st,
		batchSize: batchSize,
		log:       zap.NewNop(),
	}
}
