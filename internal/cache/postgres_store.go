package cache

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresCache is an additive Store backend for deployments that want a
// shared, server-backed cache instead of per-process files on disk.
type PostgresCache struct {
	pool *pgxpool.Pool
}

// NewPostgresCache connects to connStr and ensures the cache_entries table
// exists.
func NewPostgresCache(ctx context.Context, connStr string) (*PostgresCache, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("cache: unable to connect to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cache: ping failed: %w", err)
	}

	c := &PostgresCache{pool: pool}
	if err := c.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Println("[cache] connected to postgres cache backend")
	return c, nil
}

func (c *PostgresCache) initSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			data BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := c.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("cache: init schema: %w", err)
	}
	return nil
}

// Load returns the bytes stored for key, or ErrNotFound.
func (c *PostgresCache) Load(key string) ([]byte, error) {
	ctx := context.Background()
	var data []byte
	err := c.pool.QueryRow(ctx, `SELECT data FROM cache_entries WHERE key = $1`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cache: load %s: %w", key, err)
	}
	return data, nil
}

// Save upserts data under key.
func (c *PostgresCache) Save(key string, data []byte) error {
	ctx := context.Background()
	sql := `
		INSERT INTO cache_entries (key, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at;
	`
	_, err := c.pool.Exec(ctx, sql, key, data)
	if err != nil {
		return fmt.Errorf("cache: save %s: %w", key, err)
	}
	return nil
}

// Close releases the connection pool.
func (c *PostgresCache) Close() error {
	c.pool.Close()
	return nil
}
