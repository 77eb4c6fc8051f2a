package etl

import (
	"context"
	"fmt"

	"github.com/taicho/postgres-to-mongo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// applyTranslators resolves every translated column of the batch with one
// lookup per column into the translator's source collection.
func (p *batchProcessor) applyTranslators(ctx context.Context, u *unit, docs []bson.M) error {
	for _, name := range u.columnNames() {
		col := u.Columns[name]
		if col.Kind != models.ColumnTranslated {
			continue
		}
		tr := col.Translator
		if err := validateColumn(u, name, col); err != nil {
			return err
		}

		groups, keys := groupDocuments(docs, col.To)
		if len(keys) == 0 {
			continue
		}

		query := bson.M{tr.SourceIDField: bson.M{"$in": keys}}
		if tr.Query != nil {
			query = tr.Query(u.TableTranslation, docs, keys)
		}
		projection := bson.M{tr.Desired(): 1}
		if tr.SourceIDField != "" {
			projection[tr.SourceIDField] = 1
		}
		if tr.Projection != nil {
			projection = tr.Projection(u.TableTranslation, docs, keys)
		}

		results, err := p.store.Find(ctx, tr.SourceCollection, query, projection)
		if err != nil {
			return fmt.Errorf("%s: translating column %q: %w", u.label(), name, err)
		}
		if tr.Processor != nil {
			if err := tr.Processor(u.TableTranslation, groups, results); err != nil {
				return fmt.Errorf("%s: translator processor of column %q: %w", u.label(), name, err)
			}
			continue
		}
		desired := tr.Desired()
		for _, r := range results {
			g, ok := groups[groupKey(r[tr.SourceIDField])]
			if !ok {
				continue
			}
			for _, d := range g.Docs {
				d[col.To] = r[desired]
			}
		}
	}
	return nil
}

// groupDocuments groups docs by the value of field, returning the distinct
// keys in order of first appearance. Documents without a value are skipped.
func groupDocuments(docs []bson.M, field string) (models.DocumentGroups, []any) {
	groups := models.DocumentGroups{}
	var keys []any
	for _, d := range docs {
		v := d[field]
		if v == nil {
			continue
		}
		k := groupKey(v)
		g, ok := groups[k]
		if !ok {
			g = &models.DocumentGroup{Key: v}
			groups[k] = g
			keys = append(keys, v)
		}
		g.Docs = append(g.Docs, d)
	}
	return groups, keys
}

func groupKey(v any) string {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case string:
		return t
	default:
		return fmt.Sprint(v)
	}
}
