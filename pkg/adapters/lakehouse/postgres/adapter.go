// Package postgres reads lakehouse snapshots served by PostgreSQL, one
// database per ref.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
)

const (
	adapterType      = "postgres"
	defaultNamespace = "public"

	// SQLSTATE 3D000: database does not exist.
	invalidCatalogName = "3D000"
)

// Adapter provides read-only PostgreSQL access to every configured ref.
type Adapter struct {
	*lakehouse.SQLStatsQuerier

	cfg     *config.LakehouseConfig
	pools   *lakehouse.PoolManager
	dialect lakehouse.PostgresDialect
	guarded *lakehouse.GuardedRunner
	logger  *zap.Logger
}

// buildConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are URL-escaped so special characters in
// passwords do not break parsing.
func buildConnectionString(cfg *config.LakehouseConfig, database string) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	host := config.ResolveHostForDocker(cfg.Host)

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.User),
		url.QueryEscape(cfg.Password),
		host,
		cfg.Port,
		url.QueryEscape(database),
		sslMode,
	)
}

// NewAdapter creates a PostgreSQL adapter. Pools are created lazily per ref.
func NewAdapter(cfg *config.LakehouseConfig, pools *lakehouse.PoolManager, logger *zap.Logger) *Adapter {
	logger = logger.Named("lakehouse-postgres")
	a := &Adapter{
		cfg:     cfg,
		pools:   pools,
		dialect: lakehouse.PostgresDialect{},
		logger:  logger,
	}
	a.guarded = lakehouse.Guard(a, logger)
	a.SQLStatsQuerier = lakehouse.NewSQLStatsQuerier(a.guarded, a.dialect, logger)
	return a
}

// Type returns the adapter type.
func (a *Adapter) Type() string { return adapterType }

// Close releases the adapter. Pools are owned by the PoolManager.
func (a *Adapter) Close() error { return nil }

// Dialect returns the SQL dialect used by this adapter.
func (a *Adapter) Dialect() lakehouse.Dialect { return a.dialect }

// Runner returns the guarded query runner for this adapter.
func (a *Adapter) Runner() lakehouse.QueryRunner { return a.guarded }

func (a *Adapter) pool(ctx context.Context, ref lakehouse.Ref) (*pgxpool.Pool, error) {
	database, ok := a.cfg.Refs[ref.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRefNotFound, ref)
	}

	connector, err := a.pools.GetOrCreate(ctx, adapterType, ref, func(ctx context.Context) (lakehouse.PoolConnector, error) {
		poolCfg, err := pgxpool.ParseConfig(buildConnectionString(a.cfg, database))
		if err != nil {
			return nil, fmt.Errorf("parse connection string: %w", err)
		}
		poolCfg.MaxConns = a.pools.PoolMaxConns()
		// Every session is read-only at the server as well.
		poolCfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return lakehouse.NewPostgresPoolWrapper(pool), nil
	})
	if err != nil {
		return nil, err
	}
	return lakehouse.GetPostgresPool(connector)
}

// HasRef reports whether the ref is configured and its database exists.
func (a *Adapter) HasRef(ctx context.Context, ref lakehouse.Ref) (bool, error) {
	if ref.IsZero() {
		return false, apperrors.ErrRefRequired
	}
	if _, ok := a.cfg.Refs[ref.String()]; !ok {
		return false, nil
	}

	pool, err := a.pool(ctx, ref)
	if err != nil {
		if isMissingDatabase(err) {
			return false, nil
		}
		return false, err
	}
	if err := pool.Ping(ctx); err != nil {
		if isMissingDatabase(err) {
			return false, nil
		}
		return false, fmt.Errorf("ping ref %s: %w", ref, err)
	}
	return true, nil
}

func isMissingDatabase(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == invalidCatalogName
}

// RunQuery executes a bounded query. Callers go through the guarded runner.
func (a *Adapter) RunQuery(ctx context.Context, ref lakehouse.Ref, sqlQuery string, maxRows int) (*lakehouse.QueryResult, error) {
	pool, err := a.pool(ctx, ref)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, a.dialect.Bound(sqlQuery, maxRows))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	typeMap := pgtype.NewMap()
	fieldDescs := rows.FieldDescriptions()
	columns := make([]lakehouse.ColumnInfo, len(fieldDescs))
	for i, fd := range fieldDescs {
		typeName := "unknown"
		if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			typeName = t.Name
		}
		columns[i] = lakehouse.ColumnInfo{Name: fd.Name, Type: typeName}
	}

	result := &lakehouse.QueryResult{Columns: columns, Rows: make([]map[string]any, 0)}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col.Name] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	result.RowCount = len(result.Rows)
	return result, nil
}

var _ lakehouse.Source = (*Adapter)(nil)
