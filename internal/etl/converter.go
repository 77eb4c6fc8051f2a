// Package etl converts relational tables into document collections: it orders
// conversion units by dependency, streams rows in batches and derives the
// resulting collection schemas.
package etl

import (
	"context"
	"errors"
	"fmt"

	"github.com/taicho/postgres-to-mongo/internal/source"
	"github.com/taicho/postgres-to-mongo/internal/store"
	"github.com/taicho/postgres-to-mongo/pkg/cache"
	"github.com/taicho/postgres-to-mongo/pkg/logger"
	"github.com/taicho/postgres-to-mongo/pkg/models"
	"github.com/taicho/postgres-to-mongo/pkg/utils"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize      = 5000
	DefaultCacheDirectory = "./ptmTemp"
)

type Options struct {
	BatchSize int
	// IncludeNulls keeps nil valued fields for every unit.
	IncludeNulls        bool
	CacheDirectory      string
	UseMetadataCache    bool
	CreateMetadataCache bool
	DryRun              bool

	SchemaDefaultValueConverter utils.DefaultValueFunc
	// BaseCollectionSchema seeds the generated schemas.
	BaseCollectionSchema map[string]map[string]any
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.CacheDirectory == "" {
		o.CacheDirectory = DefaultCacheDirectory
	}
	if o.SchemaDefaultValueConverter == nil {
		o.SchemaDefaultValueConverter = utils.DefaultValueConverter
	}
	return o
}

// TableConverter runs conversion units one at a time in dependency order.
// It holds one relational connection, replaced for every unit, and one
// document store handle kept for the whole run.
type TableConverter struct {
	opts     Options
	provider ConnectionProvider
	src      source.Source
	store    store.Store
	cache    *cache.Metadata
	schemas  *SchemaRegistry
	log      *zap.Logger
	progress ProgressFunc
}

type Option func(*TableConverter)

func WithLogger(l *zap.Logger) Option {
	return func(c *TableConverter) {
		c.log = l.With(zap.String(logger.ModuleField, "etl"))
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(c *TableConverter) {
		c.progress = fn
	}
}

func NewTableConverter(opts Options, provider ConnectionProvider, options ...Option) *TableConverter {
	opts = opts.withDefaults()
	c := &TableConverter{
		opts:     opts,
		provider: provider,
		cache:    cache.NewMetadata(opts.CacheDirectory),
		schemas:  NewSchemaRegistry(opts.BaseCollectionSchema),
		log:      logger.With(zap.String(logger.ModuleField, "etl")),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Schemas returns a copy of every schema generated so far.
func (c *TableConverter) Schemas() map[string]map[string]any {
	return c.schemas.All()
}

// ConvertTables converts the units in dependency order. Configuration errors
// that affect the whole set, such as a dependency cycle, are returned before
// anything runs. A failing unit is logged and skipped.
func (c *TableConverter) ConvertTables(ctx context.Context, translations ...*models.TableTranslation) error {
	return c.each(ctx, translations, func(ctx context.Context, u *unit, cols models.TableColumns) error {
		c.log.Info("processing records", zap.String("unit", u.label()))
		p := &batchProcessor{
			src:          c.src,
			store:        c.store,
			batchSize:    c.opts.BatchSize,
			includeNulls: c.opts.IncludeNulls,
			dryRun:       c.opts.DryRun,
			log:          c.log,
			progress:     c.progress,
		}
		return p.run(ctx, u, cols)
	})
}

// GenerateSchemas derives the collection schemas of the units into the
// registry returned by Schemas.
func (c *TableConverter) GenerateSchemas(ctx context.Context, translations ...*models.TableTranslation) error {
	g := &schemaGenerator{registry: c.schemas, defaults: c.opts.SchemaDefaultValueConverter, log: c.log}
	err := c.each(ctx, translations, func(_ context.Context, u *unit, cols models.TableColumns) error {
		return g.generate(u, cols)
	})
	if err != nil {
		return err
	}
	c.log.Info("generated schemas", zap.Strings("collections", c.schemas.Names()))
	return nil
}

// CreateTranslatorDefinitions reports, per unit, which source column feeds each target field.
func (c *TableConverter) CreateTranslatorDefinitions(ctx context.Context, translations ...*models.TableTranslation) ([]models.TranslatorDefinition, error) {
	var defs []models.TranslatorDefinition
	err := c.each(ctx, translations, func(_ context.Context, u *unit, cols models.TableColumns) error {
		if err := u.finalize(cols); err != nil {
			return err
		}
		defs = append(defs, translatorDefinition(u))
		return nil
	})
	return defs, err
}

// Close releases the relational connection if one is held.
func (c *TableConverter) Close(ctx context.Context) error {
	return c.releaseSource(ctx)
}

func (c *TableConverter) each(ctx context.Context, translations []*models.TableTranslation, fn func(context.Context, *unit, models.TableColumns) error) error {
	units, err := c.resolve(translations)
	if err != nil {
		return err
	}
	for _, u := range units {
		if err := ctx.Err(); err != nil {
			c.releaseSource(ctx)
			return err
		}
		if err := c.runUnit(ctx, u, fn); err != nil {
			c.logUnitError(u, err)
			c.dropSource(ctx)
		}
	}
	return c.releaseSource(ctx)
}

func (c *TableConverter) runUnit(ctx context.Context, u *unit, fn func(context.Context, *unit, models.TableColumns) error) error {
	if err := c.connect(ctx); err != nil {
		return err
	}
	cols, err := c.columns(ctx, u.FromSchema, u.FromTable)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return newConfigError(u.label(), "no columns found for %s.%s", u.FromSchema, u.FromTable)
	}
	c.log.Debug("metadata fetched", zap.String("unit", u.label()), zap.Int("columns", len(cols)))
	return fn(ctx, u, cols)
}

func (c *TableConverter) resolve(translations []*models.TableTranslation) ([]*unit, error) {
	units := make([]*unit, 0, len(translations))
	for _, t := range translations {
		u, err := prepare(t)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	return orderUnits(units)
}

// connect acquires a fresh relational connection, releasing the previous
// one, and opens the document store on first use.
func (c *TableConverter) connect(ctx context.Context) error {
	if err := c.releaseSource(ctx); err != nil {
		c.log.Warn("releasing relational connection", zap.Error(err))
	}
	src, err := c.provider.Source(ctx)
	if err != nil {
		return fmt.Errorf("connecting to relational source: %w", err)
	}
	c.src = src
	if c.store == nil {
		st, err := c.provider.Store(ctx)
		if err != nil {
			return fmt.Errorf("connecting to document store: %w", err)
		}
		c.store = st
		c.log.Info("connections established")
	}
	return nil
}

func (c *TableConverter) columns(ctx context.Context, schema, table string) (models.TableColumns, error) {
	if c.opts.UseMetadataCache && c.cache.Exists(schema, table) {
		cols, ok, err := c.cache.Load(schema, table)
		if err != nil {
			return nil, err
		}
		if ok {
			c.log.Info("found cached metadata", zap.String("schema", schema), zap.String("table", table))
			return cols, nil
		}
	}
	cols, err := c.src.Columns(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if c.opts.CreateMetadataCache {
		if err := c.cache.Save(schema, table, cols); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

func (c *TableConverter) releaseSource(ctx context.Context) error {
	if c.src == nil {
		return nil
	}
	err := c.src.Release(ctx)
	c.src = nil
	return err
}

// dropSource discards the relational connection after a failed unit.
func (c *TableConverter) dropSource(ctx context.Context) {
	if err := c.releaseSource(ctx); err != nil {
		c.log.Warn("releasing relational connection after failure", zap.Error(err))
	}
}

func (c *TableConverter) logUnitError(u *unit, err error) {
	fields := []zap.Field{zap.String("unit", u.label()), zap.Error(err)}
	var perr *PersistenceError
	if errors.As(err, &perr) {
		fields = append(fields, zap.Any("documents", perr.Documents))
	}
	c.log.Error("conversion unit failed", fields...)
}

func translatorDefinition(u *unit) models.TranslatorDefinition {
	mappings := make(map[string]string, len(u.Columns))
	for _, name := range u.columnNames() {
		mappings[u.Columns[name].To] = name
	}
	return models.TranslatorDefinition{
		Collection:     u.ToCollection,
		Table:          u.FromTable,
		Schema:         u.FromSchema,
		ColumnMappings: mappings,
	}
}
