package testcontainers

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const mongoImage = "mongo:7"

func SetupMongoContainer(ctx context.Context, url *string) (cleanup, error) {
	req := testcontainers.ContainerRequest{
		Image:        mongoImage,
		ExposedPorts: []string{"27017/tcp"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(30 * time.Second),
	}

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start mongo container: %w", err)
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("retrieving host for mongo container: %w", err)
	}

	mappedPort, err := ctr.MappedPort(ctx, "27017/tcp")
	if err != nil {
		return nil, fmt.Errorf("retrieving mapped port for mongo container: %w", err)
	}

	*url = fmt.Sprintf("mongodb://%s:%s", host, mappedPort.Port())

	return func() error {
		return ctr.Terminate(ctx)
	}, nil
}
