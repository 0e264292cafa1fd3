package postgres

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
			DisplayName: "PostgreSQL",
			Description: "One PostgreSQL database per ref (branch-per-database lakehouse snapshots)",
		},
		Factory: func(_ context.Context, cfg *config.LakehouseConfig, pools *lakehouse.PoolManager, logger *zap.Logger) (lakehouse.Source, error) {
			return NewAdapter(cfg, pools, logger), nil
		},
	})
}
