package etl

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/taicho/postgres-to-mongo/internal/source"
	"github.com/taicho/postgres-to-mongo/internal/store"
	"github.com/taicho/postgres-to-mongo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Transformer turns source rows of one unit into target documents.
type Transformer struct {
	unit    *unit
	columns map[string]models.ColumnInfo
	indexes *columnIndexer
	now     func() time.Time
}

func newTransformer(u *unit, cols models.TableColumns, indexes *columnIndexer) *Transformer {
	return &Transformer{
		unit:    u,
		columns: cols.ByName(),
		indexes: indexes,
		now:     time.Now,
	}
}

func (t *Transformer) TransformBatch(ctx context.Context, rows []source.Row) ([]bson.M, error) {
	docs := make([]bson.M, 0, len(rows))
	for _, row := range rows {
		doc, err := t.TransformRow(ctx, row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (t *Transformer) TransformRow(ctx context.Context, row source.Row) (bson.M, error) {
	u := t.unit
	doc := bson.M{}

	for _, name := range u.columnNames() {
		col := u.Columns[name]
		if col.Index != nil {
			if err := t.indexes.ensure(ctx, col.To, *col.Index); err != nil {
				return nil, err
			}
		}
		if col.IsVirtual() {
			continue
		}
		meta := t.columns[name]
		res, err := col.Converter(&models.ConversionContext{
			Value:      row[name],
			SourceType: meta.DataType,
			Row:        row,
			Document:   doc,
			SourceName: name,
			TargetName: col.To,
			UDTName:    meta.UDTName,
		})
		if err != nil {
			return nil, fmt.Errorf("%s: converting column %q: %w", u.label(), name, err)
		}
		if !res.DocumentModified {
			doc[col.To] = res.Value
		}
	}

	for _, name := range slices.Sorted(maps.Keys(u.DynamicColumns)) {
		if dc := u.DynamicColumns[name]; dc.Value != nil {
			doc[name] = dc.Value(u.TableTranslation, doc)
		}
	}

	if u.includeID {
		if doc["_id"] == nil {
			doc["_id"] = primitive.NewObjectID()
		}
		if u.hasEmbed && !u.EmbedInRoot {
			if err := t.indexes.ensure(ctx, "_id", models.IndexOptions{Unique: true}); err != nil {
				return nil, err
			}
		}
	}
	if u.includeTimestamps {
		now := t.now()
		if doc["createdAt"] == nil {
			doc["createdAt"] = now
		}
		if doc["updatedAt"] == nil {
			doc["updatedAt"] = now
		}
	}
	if u.includeVersion && doc["__v"] == nil {
		doc["__v"] = 0
	}
	return doc, nil
}

// purgeNulls removes top level fields holding nil.
func purgeNulls(docs []bson.M) {
	for _, doc := range docs {
		for k, v := range doc {
			if v == nil {
				delete(doc, k)
			}
		}
	}
}

func processDeletes(u *unit, docs []bson.M) {
	if len(u.DeleteFields) == 0 {
		return
	}
	for _, doc := range docs {
		for _, f := range u.DeleteFields {
			delete(doc, f)
		}
	}
}

// columnIndexer creates column indexes lazily, at most once per unit and field.
type columnIndexer struct {
	store store.Store
	unit  *unit
	skip  bool
}

func (ci *columnIndexer) ensure(ctx context.Context, field string, opts models.IndexOptions) error {
	if ci.skip {
		return nil
	}
	u := ci.unit
	key := field
	if u.hasEmbed && !u.EmbedInRoot {
		opts.Sparse = true
		key = strings.ReplaceAll(u.EmbedIn, ".$", "") + "." + field
	}
	if u.indexed[key] {
		return nil
	}
	if err := ci.store.CreateIndex(ctx, u.ToCollection, bson.D{{Key: key, Value: 1}}, opts); err != nil {
		return fmt.Errorf("%s: %w", u.label(), err)
	}
	u.indexed[key] = true
	return nil
}
