package lakehouse

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolConnector abstracts connection pool operations across engines.
type PoolConnector interface {
	Ping(ctx context.Context) error
	Close() error
	GetType() string
}

// PostgresPoolWrapper wraps *pgxpool.Pool to implement PoolConnector
type PostgresPoolWrapper struct {
	pool *pgxpool.Pool
}

// NewPostgresPoolWrapper creates a new PostgreSQL pool wrapper
func NewPostgresPoolWrapper(pool *pgxpool.Pool) *PostgresPoolWrapper {
	return &PostgresPoolWrapper{pool: pool}
}

func (w *PostgresPoolWrapper) Ping(ctx context.Context) error {
	return w.pool.Ping(ctx)
}

func (w *PostgresPoolWrapper) Close() error {
	w.pool.Close()
	return nil
}

func (w *PostgresPoolWrapper) GetType() string {
	return "postgres"
}

// GetPool returns the underlying *pgxpool.Pool
func (w *PostgresPoolWrapper) GetPool() *pgxpool.Pool {
	return w.pool
}

// SQLDBWrapper wraps a database/sql handle (SQL Server, DuckDB).
type SQLDBWrapper struct {
	db     *sql.DB
	dbType string
}

// NewSQLDBWrapper creates a wrapper for a database/sql handle.
func NewSQLDBWrapper(db *sql.DB, dbType string) *SQLDBWrapper {
	return &SQLDBWrapper{db: db, dbType: dbType}
}

func (w *SQLDBWrapper) Ping(ctx context.Context) error {
	return w.db.PingContext(ctx)
}

func (w *SQLDBWrapper) Close() error {
	return w.db.Close()
}

func (w *SQLDBWrapper) GetType() string {
	return w.dbType
}

// GetDB returns the underlying *sql.DB
func (w *SQLDBWrapper) GetDB() *sql.DB {
	return w.db
}

// GetPostgresPool extracts the underlying *pgxpool.Pool from a PoolConnector.
func GetPostgresPool(connector PoolConnector) (*pgxpool.Pool, error) {
	wrapper, ok := connector.(*PostgresPoolWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a PostgreSQL pool wrapper")
	}
	return wrapper.GetPool(), nil
}

// GetSQLDB extracts the underlying *sql.DB from a PoolConnector.
func GetSQLDB(connector PoolConnector) (*sql.DB, error) {
	wrapper, ok := connector.(*SQLDBWrapper)
	if !ok {
		return nil, fmt.Errorf("connector is not a database/sql wrapper")
	}
	return wrapper.GetDB(), nil
}
