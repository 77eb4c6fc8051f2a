package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/taicho/postgres-to-mongo/pkg/logger"
	"github.com/taicho/postgres-to-mongo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Mongo struct {
	db *mongo.Database
}

func NewMongo(client *mongo.Client, database string) *Mongo {
	return &Mongo{db: client.Database(database)}
}

func (m *Mongo) InsertMany(ctx context.Context, collection string, docs []bson.M) (InsertResult, error) {
	result := InsertResult{FailedIndex: -1}
	if len(docs) == 0 {
		return result, nil
	}
	writes := make([]interface{}, len(docs))
	for i, d := range docs {
		writes[i] = d
	}

	res, err := m.db.Collection(collection).InsertMany(ctx, writes, options.InsertMany().SetOrdered(true))
	if res != nil {
		result.InsertedCount = len(res.InsertedIDs)
	}
	if err == nil {
		return result, nil
	}

	var bulkErr mongo.BulkWriteException
	if errors.As(err, &bulkErr) && len(bulkErr.WriteErrors) > 0 {
		// ordered inserts stop at the first write error, so everything before it landed
		result.FailedIndex = bulkErr.WriteErrors[0].Index
		result.InsertedCount = result.FailedIndex
	}
	return result, fmt.Errorf("inserting into %s: %w", collection, err)
}

func (m *Mongo) UpdateMany(ctx context.Context, collection string, filter, update bson.M) (int64, error) {
	res, err := m.db.Collection(collection).UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("updating %s: %w", collection, err)
	}
	if res.MatchedCount == 0 {
		logger.Debugf("update on %s matched no documents for filter %v", collection, filter)
	}
	return res.ModifiedCount, nil
}

func (m *Mongo) Find(ctx context.Context, collection string, filter, projection bson.M) ([]bson.M, error) {
	opts := options.Find()
	if len(projection) > 0 {
		opts.SetProjection(projection)
	}
	cursor, err := m.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var results []bson.M
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding document from %s: %w", collection, err)
		}
		results = append(results, doc)
	}
	return results, cursor.Err()
}

func (m *Mongo) CreateIndex(ctx context.Context, collection string, keys bson.D, opts models.IndexOptions) error {
	idxOpts := options.Index().SetBackground(true)
	if opts.Name != "" {
		idxOpts.SetName(opts.Name)
	}
	if opts.Unique {
		idxOpts.SetUnique(true)
	}
	if opts.Sparse {
		idxOpts.SetSparse(true)
	}
	name, err := m.db.Collection(collection).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys, Options: idxOpts})
	if err != nil {
		return fmt.Errorf("creating index on %s: %w", collection, err)
	}
	logger.Debugf("index %s ready on %s", name, collection)
	return nil
}
