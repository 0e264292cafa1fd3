package duckdb

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
)

func init() {
	lakehouse.Register(lakehouse.AdapterRegistration{
		Info: lakehouse.AdapterInfo{
			Type:        adapterType,
			DisplayName: "DuckDB",
			Description: "One read-only DuckDB file per ref under the refs directory",
		},
		Factory: func(_ context.Context, cfg *config.LakehouseConfig, pools *lakehouse.PoolManager, logger *zap.Logger) (lakehouse.Source, error) {
			return NewAdapter(cfg, pools, logger), nil
		},
	})
}
