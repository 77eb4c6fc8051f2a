package mocks

import (
	"context"
	"sync"

	"github.com/taicho/postgres-to-mongo/internal/store"
	"github.com/taicho/postgres-to-mongo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
)

type Store struct {
	InsertManyFn  func(ctx context.Context, collection string, docs []bson.M) (store.InsertResult, error)
	UpdateManyFn  func(ctx context.Context, collection string, filter, update bson.M) (int64, error)
	FindFn        func(ctx context.Context, collection string, filter, projection bson.M) ([]bson.M, error)
	CreateIndexFn func(ctx context.Context, collection string, keys bson.D, opts models.IndexOptions) error

	mu         sync.Mutex
	insertCall uint
}

func (m *Store) InsertMany(ctx context.Context, collection string, docs []bson.M) (store.InsertResult, error) {
	m.mu.Lock()
	m.insertCall++
	m.mu.Unlock()
	return m.InsertManyFn(ctx, collection, docs)
}

func (m *Store) UpdateMany(ctx context.Context, collection string, filter, update bson.M) (int64, error) {
	return m.UpdateManyFn(ctx, collection, filter, update)
}

func (m *Store) Find(ctx context.Context, collection string, filter, projection bson.M) ([]bson.M, error) {
	return m.FindFn(ctx, collection, filter, projection)
}

func (m *Store) CreateIndex(ctx context.Context, collection string, keys bson.D, opts models.IndexOptions) error {
	if m.CreateIndexFn == nil {
		return nil
	}
	return m.CreateIndexFn(ctx, collection, keys, opts)
}

func (m *Store) InsertCalls() uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertCall
}
