// Package database opens the relational and document store connections.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/taicho/postgres-to-mongo/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

var (
	mu      sync.Mutex
	pools   = map[string]*pgxpool.Pool{}
	clients = map[string]*mongo.Client{}
)

// ConnectPostgres returns the pool for connString, creating it on first use.
// With ssl set, sslmode=require is added unless the string names a mode.
func ConnectPostgres(ctx context.Context, connString string, ssl bool) (*pgxpool.Pool, error) {
	connString = PostgresConnString(connString, ssl)

	mu.Lock()
	defer mu.Unlock()
	if pool, ok := pools[connString]; ok {
		return pool, nil
	}

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("error creating postgres pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error connecting to postgres (ping failed): %w", err)
	}

	pools[connString] = pool
	logger.Info("Successfully connected to PostgreSQL.")
	return pool, nil
}

// ClosePostgres closes and forgets the pool of connString.
func ClosePostgres(connString string, ssl bool) {
	connString = PostgresConnString(connString, ssl)
	mu.Lock()
	defer mu.Unlock()
	if pool, ok := pools[connString]; ok {
		pool.Close()
		delete(pools, connString)
	}
}

// PostgresConnString applies the ssl flag to a URL or keyword/value
// connection string.
func PostgresConnString(connString string, ssl bool) string {
	if !ssl || strings.Contains(connString, "sslmode=") {
		return connString
	}
	if strings.Contains(connString, "://") {
		u, err := url.Parse(connString)
		if err == nil {
			q := u.Query()
			q.Set("sslmode", "require")
			u.RawQuery = q.Encode()
			return u.String()
		}
	}
	return strings.TrimSpace(connString + " sslmode=require")
}

func ConnectSQL(ctx context.Context, connString string) (*sql.DB, error) {
	db, err := sql.Open("sqlserver", connString)
	if err != nil {
		return nil, fmt.Errorf("error opening SQL database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to SQL database (ping failed): %w", err)
	}

	logger.Info("Successfully connected to MS SQL Server.")
	return db, nil
}

// ConnectMongo returns the client for connString, reusing a connected one.
func ConnectMongo(ctx context.Context, connString string) (*mongo.Client, error) {
	mu.Lock()
	defer mu.Unlock()
	if client, ok := clients[connString]; ok {
		return client, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(connString))
	if err != nil {
		return nil, fmt.Errorf("error creating MongoDB client: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer disconnectCancel()
		_ = client.Disconnect(disconnectCtx)

		return nil, fmt.Errorf("error connecting to MongoDB (ping failed): %w", err)
	}

	clients[connString] = client
	logger.Info("Successfully connected to MongoDB.")
	return client, nil
}

// DisconnectMongo disconnects and forgets the client of connString.
func DisconnectMongo(ctx context.Context, connString string) error {
	mu.Lock()
	client, ok := clients[connString]
	delete(clients, connString)
	mu.Unlock()
	if !ok {
		return nil
	}
	return client.Disconnect(ctx)
}
