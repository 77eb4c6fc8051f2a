package etl

import (
	"context"
	"time"

	"github.com/taicho/postgres-to-mongo/internal/source"
	"github.com/taicho/postgres-to-mongo/internal/store"
	"github.com/taicho/postgres-to-mongo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// ProgressFunc is called after every batch with the rows read so far.
type ProgressFunc func(unit string, processed, total int)

// batchProcessor drives one unit's rows through transformation and persistence.
type batchProcessor struct {
	src          source.Source
	store        store.Store
	batchSize    int
	includeNulls bool
	dryRun       bool
	log          *zap.Logger
	progress     ProgressFunc
}

func (p *batchProcessor) run(ctx context.Context, u *unit, cols models.TableColumns) (err error) {
	total, err := p.src.Count(ctx, u.FromSchema, u.FromTable, u.CustomWhere)
	if err != nil {
		return err
	}
	if err := u.finalize(cols); err != nil {
		return err
	}
	if err := u.resolveConverters(cols); err != nil {
		return err
	}
	if err := p.applyIndexes(ctx, u); err != nil {
		return err
	}
	if total == 0 {
		p.log.Info("no records found", zap.String("unit", u.label()))
		return nil
	}

	cursor, err := p.src.Open(ctx, u.FromSchema, u.FromTable, cols, u.CustomWhere)
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if closed {
			return
		}
		if cerr := cursor.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	transformer := newTransformer(u, cols, &columnIndexer{store: p.store, unit: u, skip: p.dryRun})
	count := 0
	start := time.Now()
	for count < total {
		rows, err := cursor.Next(ctx, p.batchSize)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			p.log.Debug("cursor exhausted before expected row count", zap.String("unit", u.label()), zap.Int("count", count), zap.Int("total", total))
			break
		}
		if err := p.processBatch(ctx, u, transformer, rows); err != nil {
			return err
		}
		count += len(rows)

		rate := 0.0
		if elapsed := time.Since(start).Seconds(); elapsed > 0 {
			rate = float64(count) / elapsed
		}
		p.log.Info("processed rows",
			zap.String("unit", u.label()),
			zap.Int("count", count),
			zap.Int("total", total),
			zap.Float64("rows_per_sec", rate))
		if p.progress != nil {
			p.progress(u.label(), count, total)
		}
	}

	closed = true
	return cursor.Close(ctx)
}

func (p *batchProcessor) processBatch(ctx context.Context, u *unit, t *Transformer, rows []source.Row) error {
	docs, err := t.TransformBatch(ctx, rows)
	if err != nil {
		return err
	}
	if u.PostProcess != nil {
		p.log.Debug("executing post process", zap.String("unit", u.label()))
		if err := u.PostProcess(ctx, u.TableTranslation, docs); err != nil {
			return err
		}
	}
	if err := p.applyTranslators(ctx, u, docs); err != nil {
		return err
	}
	if u.Filter != nil {
		before := len(docs)
		docs = filterDocuments(docs, u.Filter)
		p.log.Info("filtered documents", zap.String("unit", u.label()), zap.Int("removed", before-len(docs)), zap.Int("of", before))
	}
	if len(docs) == 0 {
		return nil
	}
	if !p.includeNulls && !u.IncludeNulls {
		purgeNulls(docs)
	}
	if p.dryRun {
		p.log.Info("dry run, skipping persistence", zap.String("unit", u.label()), zap.Int("documents", len(docs)))
		return nil
	}
	return p.persist(ctx, u, docs)
}

// applyIndexes creates the unit's declared indexes.
func (p *batchProcessor) applyIndexes(ctx context.Context, u *unit) error {
	if p.dryRun {
		return nil
	}
	for _, idx := range u.Indexes {
		if err := p.store.CreateIndex(ctx, u.ToCollection, idx.Keys(), idx.Options); err != nil {
			return err
		}
	}
	if len(u.Indexes) > 0 {
		p.log.Debug("applied indexes", zap.String("unit", u.label()), zap.Int("count", len(u.Indexes)))
	}
	return nil
}

func filterDocuments(docs []bson.M, keep func(bson.M) bool) []bson.M {
	out := make([]bson.M, 0, len(docs))
	for _, d := range docs {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}
