// Package mssql reads lakehouse snapshots served by SQL Server, one database
// per ref on a single server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
)

const (
	adapterType      = "mssql"
	defaultNamespace = "dbo"

	// All refs share one server connection; tables use three-part names.
	serverPoolRef lakehouse.Ref = "_server"
)

// Adapter provides read-only SQL Server access to every configured ref.
type Adapter struct {
	*lakehouse.SQLStatsQuerier

	cfg     *config.LakehouseConfig
	dialect lakehouse.MSSQLDialect
	guarded *lakehouse.GuardedRunner
	open    func(ctx context.Context) (*sql.DB, error)
	logger  *zap.Logger
}

func buildConnectionString(cfg *config.LakehouseConfig) string {
	query := url.Values{}
	query.Add("ApplicationIntent", "ReadOnly")
	if cfg.SSLMode == "" || cfg.SSLMode == "disable" {
		query.Add("encrypt", "false")
	} else {
		query.Add("encrypt", "true")
	}

	return fmt.Sprintf("sqlserver://%s:%s@%s:%d?%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		config.ResolveHostForDocker(cfg.Host),
		cfg.Port,
		query.Encode(),
	)
}

// NewAdapter creates a SQL Server adapter whose connection is held by pools.
func NewAdapter(cfg *config.LakehouseConfig, pools *lakehouse.PoolManager, logger *zap.Logger) *Adapter {
	open := func(ctx context.Context) (*sql.DB, error) {
		connector, err := pools.GetOrCreate(ctx, adapterType, serverPoolRef, func(ctx context.Context) (lakehouse.PoolConnector, error) {
			db, err := sql.Open("sqlserver", buildConnectionString(cfg))
			if err != nil {
				return nil, fmt.Errorf("open SQL Server connection: %w", err)
			}
			db.SetMaxOpenConns(int(pools.PoolMaxConns()))
			db.SetMaxIdleConns(int(pools.PoolMaxConns()))
			db.SetConnMaxIdleTime(pools.TTL())
			return lakehouse.NewSQLDBWrapper(db, adapterType), nil
		})
		if err != nil {
			return nil, err
		}
		return lakehouse.GetSQLDB(connector)
	}
	return newAdapter(cfg, open, logger)
}

// NewAdapterWithDB creates an adapter over an existing handle. The caller owns db.
func NewAdapterWithDB(cfg *config.LakehouseConfig, db *sql.DB, logger *zap.Logger) *Adapter {
	return newAdapter(cfg, func(context.Context) (*sql.DB, error) { return db, nil }, logger)
}

func newAdapter(cfg *config.LakehouseConfig, open func(ctx context.Context) (*sql.DB, error), logger *zap.Logger) *Adapter {
	logger = logger.Named("lakehouse-mssql")
	a := &Adapter{
		cfg:     cfg,
		dialect: lakehouse.MSSQLDialect{Databases: cfg.Refs},
		open:    open,
		logger:  logger,
	}
	a.guarded = lakehouse.Guard(a, logger)
	a.SQLStatsQuerier = lakehouse.NewSQLStatsQuerier(a.guarded, a.dialect, logger)
	return a
}

// Type returns the adapter type.
func (a *Adapter) Type() string { return adapterType }

// Close releases the adapter. The connection is owned by the PoolManager.
func (a *Adapter) Close() error { return nil }

// Runner returns the guarded query runner for this adapter.
func (a *Adapter) Runner() lakehouse.QueryRunner { return a.guarded }

func (a *Adapter) database(ref lakehouse.Ref) (string, error) {
	if ref.IsZero() {
		return "", apperrors.ErrRefRequired
	}
	db, ok := a.cfg.Refs[ref.String()]
	if !ok {
		return "", fmt.Errorf("%w: %s", apperrors.ErrRefNotFound, ref)
	}
	return db, nil
}

// HasRef reports whether the ref is configured and its database exists on the server.
func (a *Adapter) HasRef(ctx context.Context, ref lakehouse.Ref) (bool, error) {
	if ref.IsZero() {
		return false, apperrors.ErrRefRequired
	}
	database, ok := a.cfg.Refs[ref.String()]
	if !ok {
		return false, nil
	}

	db, err := a.open(ctx)
	if err != nil {
		return false, err
	}

	var n int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sys.databases WHERE name = @p1", database).Scan(&n); err != nil {
		return false, fmt.Errorf("check database %s: %w", database, err)
	}
	return n > 0, nil
}

// RunQuery executes a bounded query. Callers go through the guarded runner.
func (a *Adapter) RunQuery(ctx context.Context, ref lakehouse.Ref, sqlQuery string, maxRows int) (*lakehouse.QueryResult, error) {
	if _, err := a.database(ref); err != nil {
		return nil, err
	}

	db, err := a.open(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, a.dialect.Bound(sqlQuery, maxRows))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	return lakehouse.ScanSQLRows(rows, maxRows)
}

var _ lakehouse.Source = (*Adapter)(nil)
