package etl

import (
	"context"

	"github.com/taicho/postgres-to-mongo/internal/source"
	"github.com/taicho/postgres-to-mongo/internal/store"
)

// ConnectionProvider hands out the connections a conversion run needs. Every
// call to Source returns a fresh relational connection; Store may return a
// shared handle.
type ConnectionProvider interface {
	Source(ctx context.Context) (source.Source, error)
	Store(ctx context.Context) (store.Store, error)
}
