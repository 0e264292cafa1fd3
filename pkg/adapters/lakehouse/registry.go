package lakehouse

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/config"
)

// AdapterInfo describes a registered lakehouse adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "mssql", "duckdb", "memory"
	DisplayName string `json:"display_name"` // "PostgreSQL", "DuckDB"
	Description string `json:"description"`
}

// Factory creates a Source from configuration.
type Factory func(ctx context.Context, cfg *config.LakehouseConfig, pools *PoolManager, logger *zap.Logger) (Source, error)

// AdapterRegistration contains info + factory for creating adapters.
type AdapterRegistration struct {
	Info    AdapterInfo
	Factory Factory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]AdapterRegistration)
)

// Register is called by each adapter's init() function.
func Register(reg AdapterRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters, sorted by type.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result
}

// IsRegistered checks if an adapter type is available.
func IsRegistered(adapterType string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[adapterType]
	return ok
}

// Open creates a Source for the configured adapter type.
func Open(ctx context.Context, cfg *config.LakehouseConfig, pools *PoolManager, logger *zap.Logger) (Source, error) {
	registryMu.RLock()
	reg, ok := registry[cfg.Type]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported lakehouse type: %s (not compiled in)", cfg.Type)
	}
	return reg.Factory(ctx, cfg, pools, logger)
}
