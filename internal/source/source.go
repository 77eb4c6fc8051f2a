// Package source reads table metadata and rows from the relational database
// being converted.
package source

import (
	"context"

	"github.com/taicho/postgres-to-mongo/pkg/models"
)

// Row is one source row keyed by column name.
type Row map[string]any

// Source is a relational connection owned by one conversion unit at a time.
type Source interface {
	// Columns returns the ordinal ordered column metadata of a table.
	Columns(ctx context.Context, schema, table string) (models.TableColumns, error)
	// Count returns the number of rows matching the optional predicate.
	Count(ctx context.Context, schema, table, where string) (int, error)
	// Open starts a forward only cursor selecting the given columns.
	Open(ctx context.Context, schema, table string, columns models.TableColumns, where string) (Cursor, error)
	// Release hands the connection back to its pool.
	Release(ctx context.Context) error
}

// Cursor streams rows in batches.
type Cursor interface {
	// Next returns up to n rows. An empty result means the cursor is exhausted.
	Next(ctx context.Context, n int) ([]Row, error)
	Close(ctx context.Context) error
}
