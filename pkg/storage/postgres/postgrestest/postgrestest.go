// Package postgrestest starts a throwaway PostgreSQL container for tests of
// packages that need the real engine.
package postgrestest

import (
	"context"
	"fmt"
	"hello/pkg/storage/postgres"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	User     = "postgres"
	Password = "postgres"
	Database = "testdb"
)

// Container is a running PostgreSQL container.
type Container struct {
	Container testcontainers.Container
	Host      string
	Port      int
}

// Start runs a postgres:17 container and waits until it accepts connections.
func Start(ctx context.Context) (*Container, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:17",
		ExposedPorts: []string{"5432"},
		Env: map[string]string{
			"POSTGRES_USER":     User,
			"POSTGRES_PASSWORD": Password,
			"POSTGRES_DB":       Database,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get container host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("could not get mapped port: %w", err)
	}

	return &Container{
		Container: container,
		Host:      host,
		Port:      mappedPort.Int(),
	}, nil
}

// New starts a container and connects to its empty database. The test is
// skipped in short mode since it needs docker. Both are torn down with t.
func New(t *testing.T) *postgres.PgSQL {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres tests need docker")
	}
	ctx := context.Background()

	c, err := Start(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Container.Terminate(ctx) })

	pg, err := postgres.New(ctx, postgres.Options{
		Username:           User,
		Password:           Password,
		Host:               c.Host,
		Port:               c.Port,
		Database:           Database,
		SslMode:            "disable",
		ConnMaxLifetime:    time.Minute,
		ConnMaxIdleTime:    time.Minute,
		MaxOpenConnections: 8,
		MaxIdleConnections: 2,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Close() })

	return pg
}
