package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/taicho/postgres-to-mongo/internal/config"
	"github.com/taicho/postgres-to-mongo/internal/source"
	"github.com/taicho/postgres-to-mongo/internal/store"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// Provider hands out connections for a conversion run from the configuration.
// Source connections are taken from a shared pool; the document store is
// opened once.
type Provider struct {
	cfg   *config.Config
	sqlDB *sql.DB
	store *store.Mongo
}

func NewProvider(cfg *config.Config) *Provider {
	return &Provider{cfg: cfg}
}

func (p *Provider) Source(ctx context.Context) (source.Source, error) {
	switch p.cfg.SourceDriver {
	case config.DriverPostgres:
		pool, err := ConnectPostgres(ctx, p.cfg.SourceConnString(), p.cfg.PostgresSSL)
		if err != nil {
			return nil, err
		}
		src, err := source.NewPostgres(ctx, pool)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.DriverSQLServer:
		if p.sqlDB == nil {
			db, err := ConnectSQL(ctx, p.cfg.SourceConnString())
			if err != nil {
				return nil, err
			}
			p.sqlDB = db
		}
		src, err := source.NewSQLServer(ctx, p.sqlDB)
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported source driver %q", p.cfg.SourceDriver)
	}
}

func (p *Provider) Store(ctx context.Context) (store.Store, error) {
	if p.store != nil {
		return p.store, nil
	}
	database, err := MongoDatabase(p.cfg.MongoConnString, p.cfg.MongoDatabase)
	if err != nil {
		return nil, err
	}
	client, err := ConnectMongo(ctx, p.cfg.MongoConnString)
	if err != nil {
		return nil, err
	}
	p.store = store.NewMongo(client, database)
	return p.store, nil
}

// Close releases every connection opened through the provider.
func (p *Provider) Close(ctx context.Context) error {
	var errs []error
	if p.cfg.SourceDriver == config.DriverPostgres {
		ClosePostgres(p.cfg.SourceConnString(), p.cfg.PostgresSSL)
	}
	if p.sqlDB != nil {
		errs = append(errs, p.sqlDB.Close())
		p.sqlDB = nil
	}
	if p.store != nil {
		errs = append(errs, DisconnectMongo(ctx, p.cfg.MongoConnString))
		p.store = nil
	}
	return errors.Join(errs...)
}

// MongoDatabase returns the explicit database name or the one in the
// connection string path.
func MongoDatabase(connString, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	cs, err := connstring.ParseAndValidate(connString)
	if err != nil {
		return "", fmt.Errorf("parsing mongo connection string: %w", err)
	}
	if cs.Database == "" {
		return "", errors.New("no mongo database configured: set MONGO_DATABASE or add it to the connection string")
	}
	return cs.Database, nil
}
