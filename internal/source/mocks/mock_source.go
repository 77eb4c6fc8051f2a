package mocks

import (
	"context"

	"github.com/taicho/postgres-to-mongo/internal/source"
	"github.com/taicho/postgres-to-mongo/pkg/models"
)

type Source struct {
	ColumnsFn func(ctx context.Context, schema, table string) (models.TableColumns, error)
	CountFn   func(ctx context.Context, schema, table, where string) (int, error)
	OpenFn    func(ctx context.Context, schema, table string, columns models.TableColumns, where string) (source.Cursor, error)
	ReleaseFn func(ctx context.Context) error
}

func (m *Source) Columns(ctx context.Context, schema, table string) (models.TableColumns, error) {
	return m.ColumnsFn(ctx, schema, table)
}

func (m *Source) Count(ctx context.Context, schema, table, where string) (int, error) {
	return m.CountFn(ctx, schema, table, where)
}

func (m *Source) Open(ctx context.Context, schema, table string, columns models.TableColumns, where string) (source.Cursor, error) {
	return m.OpenFn(ctx, schema, table, columns, where)
}

func (m *Source) Release(ctx context.Context) error {
	if m.ReleaseFn == nil {
		return nil
	}
	return m.ReleaseFn(ctx)
}

type Cursor struct {
	NextFn  func(ctx context.Context, n int) ([]source.Row, error)
	CloseFn func(ctx context.Context) error
}

func (m *Cursor) Next(ctx context.Context, n int) ([]source.Row, error) {
	return m.NextFn(ctx, n)
}

func (m *Cursor) Close(ctx context.Context) error {
	if m.CloseFn == nil {
		return nil
	}
	return m.CloseFn(ctx)
}

// SliceCursor serves rows from memory in slices of the requested size.
type SliceCursor struct {
	Rows   []source.Row
	Closed bool
	pos    int
}

func (c *SliceCursor) Next(_ context.Context, n int) ([]source.Row, error) {
	if c.pos >= len(c.Rows) {
		return nil, nil
	}
	end := min(c.pos+n, len(c.Rows))
	batch := c.Rows[c.pos:end]
	c.pos = end
	return batch, nil
}

func (c *SliceCursor) Close(_ context.Context) error {
	c.Closed = true
	return nil
}
