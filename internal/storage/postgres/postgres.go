package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/common"
)

// Store is the Postgres-backed implementation of the storage interfaces
type Store struct {
	pool   *pgxpool.Pool
	logger arbor.ILogger
}

// New connects to Postgres and optionally applies pending migrations
func New(ctx context.Context, config *common.DatabaseConfig) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid database url: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	store := &Store{
		pool:   pool,
		logger: common.GetLogger(),
	}

	if err := store.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}

	if config.Migrate {
		if err := store.Migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	store.logger.Info().Msg("Postgres storage initialized")
	return store, nil
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool
func (s *Store) Close() {
	s.pool.Close()
}

// TryAcquire takes a session advisory lock on a dedicated connection. The
// connection is pinned until release is called so the lock survives pool
// reuse; release is a no-op when the lock was not acquired.
func (s *Store) TryAcquire(ctx context.Context, lockID int64) (func(), bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("pg_try_advisory_lock(%d): %w", lockID, err)
	}
	if !acquired {
		conn.Release()
		return func() {}, false, nil
	}

	release := func() {
		// Unlock on the same session; a dropped connection releases the
		// lock server-side anyway
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", lockID); err != nil {
			s.logger.Warn().Err(err).Int64("lock_id", lockID).Msg("Advisory unlock failed")
		}
		conn.Release()
	}
	return release, true, nil
}
