package etl

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

var errMissingEmbedKey = errors.New("document has no embed source id value")

func (p *batchProcessor) persist(ctx context.Context, u *unit, docs []bson.M) error {
	if u.OnPersist != nil {
		if !u.IgnoreDeletesOnPersist {
			processDeletes(u, docs)
		}
		return u.OnPersist(ctx, u.TableTranslation, docs)
	}
	if !u.hasEmbed {
		processDeletes(u, docs)
		return p.insertDocuments(ctx, u, docs)
	}
	return p.embedDocuments(ctx, u, docs)
}

// insertDocuments inserts docs in order. When the store names the failing
// document, everything up to and including it is dropped and the remainder
// retried; the batch shrinks on every attempt.
func (p *batchProcessor) insertDocuments(ctx context.Context, u *unit, docs []bson.M) error {
	for len(docs) > 0 {
		res, err := p.store.InsertMany(ctx, u.ToCollection, docs)
		if err == nil {
			return nil
		}
		if !res.Failed() {
			return &PersistenceError{Collection: u.ToCollection, Documents: docs, Cause: err}
		}
		p.log.Warn("error inserting document, retrying without it",
			zap.String("unit", u.label()),
			zap.Int("index", res.FailedIndex),
			zap.Int("inserted", res.InsertedCount),
			zap.Any("document", docs[min(res.FailedIndex, len(docs)-1)]),
			zap.Error(err))
		if res.FailedIndex+1 >= len(docs) {
			return nil
		}
		docs = docs[res.FailedIndex+1:]
	}
	return nil
}

type embedGroup struct {
	key    any
	values []any
}

// embedDocuments merges the batch into parent documents, one update per
// distinct parent key.
func (p *batchProcessor) embedDocuments(ctx context.Context, u *unit, docs []bson.M) error {
	var (
		order  []string
		groups = map[string]*embedGroup{}
	)
	for _, d := range docs {
		key, ok := d[u.embedKeyField]
		if !ok || key == nil {
			return &PersistenceError{Collection: u.ToCollection, Documents: docs, Cause: errMissingEmbedKey}
		}
		if !u.PreserveEmbedSourceID {
			delete(d, u.embedKeyField)
		}
		k := groupKey(key)
		g, ok := groups[k]
		if !ok {
			g = &embedGroup{key: key}
			groups[k] = g
			order = append(order, k)
		}
		if u.EmbedArrayField != "" {
			g.values = append(g.values, d[u.EmbedArrayField])
		} else {
			g.values = append(g.values, d)
		}
	}
	processDeletes(u, docs)

	for _, k := range order {
		g := groups[k]
		filter := bson.M{u.EmbedTargetIDColumn: normalizeEmbedKey(g.key)}
		update, err := embedUpdate(u, g.values)
		if err != nil {
			return &PersistenceError{Collection: u.ToCollection, Documents: docs, Cause: err}
		}
		if _, err := p.store.UpdateMany(ctx, u.ToCollection, filter, update); err != nil {
			return &PersistenceError{Collection: u.ToCollection, Documents: docs, Cause: err}
		}
	}
	return nil
}

func embedUpdate(u *unit, values []any) (bson.M, error) {
	switch {
	case u.EmbedInRoot:
		doc, ok := values[0].(bson.M)
		if !ok {
			return nil, errors.New("root embeds require documents, not field values")
		}
		set := make(bson.M, len(doc))
		for k, v := range doc {
			if k != "_id" {
				set[k] = v
			}
		}
		return bson.M{"$set": set}, nil
	case u.EmbedSingle:
		return bson.M{"$set": bson.M{u.EmbedIn: values[0]}}, nil
	default:
		return bson.M{"$push": bson.M{u.EmbedIn: bson.M{"$each": values}}}, nil
	}
}

// normalizeEmbedKey turns 24 character hex strings into ObjectIDs.
func normalizeEmbedKey(v any) any {
	s, ok := v.(string)
	if !ok || len(s) != 24 {
		return v
	}
	oid, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return v
	}
	return oid
}
