// Package testutil provides shared test helpers, including a PostgreSQL
// container for integration tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lmercier/crucible/internal/config"
	"github.com/lmercier/crucible/internal/storage/postgres"
)

// accountsSchema mirrors migrations/000001_create_accounts.up.sql so tests do
// not need the migrate binary.
const accountsSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id            BIGSERIAL    PRIMARY KEY,
	username      VARCHAR(64)  NOT NULL UNIQUE,
	password_hash TEXT         NOT NULL,
	created_at    TIMESTAMPTZ  NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_accounts_username ON accounts (username);
`

// PostgresContainer is a disposable PostgreSQL instance with a connected pool.
type PostgresContainer struct {
	Pool   *pgxpool.Pool
	Config config.DatabaseConfig
}

// NewPostgresContainer starts a PostgreSQL test container, connects a pool,
// and registers cleanup with the test.
//
// Precondition: Docker must be available.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()
	began := time.Now()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("resolving container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("resolving mapped port: %v", err)
	}

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            "test",
		Password:        "test",
		Name:            "test",
		SSLMode:         "disable",
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}

	pool, err := postgres.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("connecting to test postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	t.Logf("postgres container ready [%s]", time.Since(began))
	return &PostgresContainer{Pool: pool, Config: cfg}
}

// ApplyMigrations creates the accounts schema.
//
// Postcondition: The accounts table exists in the test database.
func (pc *PostgresContainer) ApplyMigrations(t *testing.T) {
	t.Helper()
	if _, err := pc.Pool.Exec(context.Background(), accountsSchema); err != nil {
		t.Fatalf("applying schema: %v", err)
	}
}
