package mssql

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
			DisplayName: "Microsoft SQL Server",
			Description: "One SQL Server database per ref, read with ApplicationIntent=ReadOnly",
		},
		Factory: func(_ context.Context, cfg *config.LakehouseConfig, pools *lakehouse.PoolManager, logger *zap.Logger) (lakehouse.Source, error) {
			return NewAdapter(cfg, pools, logger), nil
		},
	})
}
