// Package postgres provides PostgreSQL persistence using pgx v5. It backs
// the credential collaborator; saved games live on disk, not here.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lmercier/crucible/internal/config"
)

// connectTimeout bounds the initial reachability check.
const connectTimeout = 10 * time.Second

// Connect opens a pgx pool with the configured sizing and verifies the
// database is reachable before returning.
//
// Precondition: cfg must contain valid connection parameters.
// Postcondition: Returns a pool ready for queries, or a non-nil error.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return pool, nil
}
