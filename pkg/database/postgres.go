// Package database connects to the PostgreSQL report store and applies its
// migrations.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-assess/pkg/retry"
)

// applicationName tags report store sessions in pg_stat_activity.
const applicationName = "ekaya-assess"

// DB is the report store pool.
type DB struct {
	*pgxpool.Pool
}

// Config holds report store connection settings. Zero values fall back to
// defaults sized for an insert-only store with occasional listing.
type Config struct {
	URL             string
	MaxConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// ConnectRetry bounds the initial ping. nil uses retry.DefaultConfig.
	ConnectRetry *retry.Config
}

func (c *Config) poolConfig() (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report store URL: %w", err)
	}

	pc.MaxConns = c.MaxConnections
	if pc.MaxConns <= 0 {
		pc.MaxConns = 4
	}
	pc.MaxConnLifetime = c.MaxConnLifetime
	if pc.MaxConnLifetime <= 0 {
		pc.MaxConnLifetime = time.Hour
	}
	pc.MaxConnIdleTime = c.MaxConnIdleTime
	if pc.MaxConnIdleTime <= 0 {
		pc.MaxConnIdleTime = 10 * time.Minute
	}
	if _, ok := pc.ConnConfig.RuntimeParams["application_name"]; !ok {
		pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
	return pc, nil
}

// NewConnection opens the report store pool. The first ping is retried on
// transient failures so a store that is still starting does not fail startup.
func NewConnection(ctx context.Context, cfg *Config) (*DB, error) {
	pc, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create report store pool: %w", err)
	}

	retryCfg := cfg.ConnectRetry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	if err := retry.DoIfRetryable(ctx, retryCfg, func() error { return pool.Ping(ctx) }); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach report store: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the pool.
func (db *DB) Close() {
	db.Pool.Close()
}
