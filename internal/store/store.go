// Package store writes converted documents into the document database.
package store

import (
	"context"

	"github.com/taicho/postgres-to-mongo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
)

// InsertResult reports how far an ordered insert got. FailedIndex is -1 when
// every document was inserted or the failing document is unknown.
type InsertResult struct {
	InsertedCount int
	FailedIndex   int
}

// Failed reports whether a specific document was rejected.
func (r InsertResult) Failed() bool {
	return r.FailedIndex >= 0
}

type Store interface {
	// InsertMany inserts the documents in order, stopping at the first rejected one.
	InsertMany(ctx context.Context, collection string, docs []bson.M) (InsertResult, error)
	UpdateMany(ctx context.Context, collection string, filter, update bson.M) (int64, error)
	Find(ctx context.Context, collection string, filter, projection bson.M) ([]bson.M, error)
	// CreateIndex builds an index in the background. Existing identical indexes are left alone.
	CreateIndex(ctx context.Context, collection string, keys bson.D, opts models.IndexOptions) error
}
