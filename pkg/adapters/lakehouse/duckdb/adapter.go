// Package duckdb reads lakehouse snapshots stored as DuckDB files, one file
// per ref, opened read-only.
package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"
	_ "github.com/marcboeker/go-duckdb" // duckdb driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
	sqlguard "github.com/ekaya-inc/ekaya-assess/pkg/sql"
)

const (
	adapterType      = "duckdb"
	defaultNamespace = "main"
	fileExtension    = ".duckdb"
)

// Adapter provides read-only access to per-ref DuckDB files.
type Adapter struct {
	*lakehouse.SQLStatsQuerier

	cfg     *config.LakehouseConfig
	pools   *lakehouse.PoolManager
	dialect lakehouse.DuckDBDialect
	guarded *lakehouse.GuardedRunner
	logger  *zap.Logger
}

// NewAdapter creates a DuckDB adapter rooted at cfg.DuckDBRefsDir.
func NewAdapter(cfg *config.LakehouseConfig, pools *lakehouse.PoolManager, logger *zap.Logger) *Adapter {
	logger = logger.Named("lakehouse-duckdb")
	a := &Adapter{
		cfg:     cfg,
		pools:   pools,
		dialect: lakehouse.DuckDBDialect{},
		logger:  logger,
	}
	a.guarded = lakehouse.Guard(a, logger)
	a.SQLStatsQuerier = lakehouse.NewSQLStatsQuerier(a.guarded, a.dialect, logger)
	return a
}

// Type returns the adapter type.
func (a *Adapter) Type() string { return adapterType }

// Close releases the adapter. Handles are owned by the PoolManager.
func (a *Adapter) Close() error { return nil }

// Runner returns the guarded query runner for this adapter.
func (a *Adapter) Runner() lakehouse.QueryRunner { return a.guarded }

// RefPath resolves the database file for a ref inside the refs directory.
// A ref listed in the refs mapping uses the mapped file name; any other ref
// uses its own name. The result never escapes the refs directory.
func (a *Adapter) RefPath(ref lakehouse.Ref) (string, error) {
	if ref.IsZero() {
		return "", apperrors.ErrRefRequired
	}
	name := ref.String()
	if mapped, ok := a.cfg.Refs[name]; ok && mapped != "" {
		name = mapped
	}
	if err := sqlguard.ValidateName("ref", name); err != nil {
		return "", err
	}
	return securejoin.SecureJoin(a.cfg.DuckDBRefsDir, name+fileExtension)
}

// HasRef reports whether the ref's database file exists.
func (a *Adapter) HasRef(_ context.Context, ref lakehouse.Ref) (bool, error) {
	path, err := a.RefPath(ref)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat ref %s: %w", ref, err)
	}
	return info.Mode().IsRegular(), nil
}

func (a *Adapter) db(ctx context.Context, ref lakehouse.Ref) (*sql.DB, error) {
	ok, err := a.HasRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrRefNotFound, ref)
	}
	path, err := a.RefPath(ref)
	if err != nil {
		return nil, err
	}

	connector, err := a.pools.GetOrCreate(ctx, adapterType, ref, func(ctx context.Context) (lakehouse.PoolConnector, error) {
		db, err := sql.Open("duckdb", path+"?access_mode=READ_ONLY")
		if err != nil {
			return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to ping duckdb: %w", err)
		}
		db.SetMaxOpenConns(int(a.pools.PoolMaxConns()))
		return lakehouse.NewSQLDBWrapper(db, adapterType), nil
	})
	if err != nil {
		return nil, err
	}
	return lakehouse.GetSQLDB(connector)
}

// RunQuery executes a bounded query. Callers go through the guarded runner.
func (a *Adapter) RunQuery(ctx context.Context, ref lakehouse.Ref, sqlQuery string, maxRows int) (*lakehouse.QueryResult, error) {
	db, err := a.db(ctx, ref)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, a.dialect.Bound(sqlQuery, maxRows))
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return lakehouse.ScanSQLRows(rows, maxRows)
}

var _ lakehouse.Source = (*Adapter)(nil)
