// Package testcontainers starts the databases used by integration tests.
package testcontainers

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type cleanup func() error

const postgresImage = "postgres:16-alpine"

// IntegrationEnv enables integration tests when set.
const IntegrationEnv = "PTM_INTEGRATION_TESTS"

func SetupPostgresContainer(ctx context.Context, url *string) (cleanup, error) {
	waitForLogs := wait.
		ForLog("database system is ready to accept connections").
		WithOccurrence(2).
		WithStartupTimeout(30 * time.Second)

	ctr, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase("ptm"),
		testcontainers.WithWaitStrategy(waitForLogs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	*url, err = ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("retrieving connection string for postgres container: %w", err)
	}

	return func() error {
		return ctr.Terminate(ctx)
	}, nil
}
