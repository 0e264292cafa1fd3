package lakehouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/logging"
	"github.com/ekaya-inc/ekaya-assess/pkg/retry"
)

const (
	DefaultPoolTTLMinutes  = 5
	DefaultCleanupInterval = 1 * time.Minute
	DefaultPoolMaxConns    = 5
)

// PoolManagerConfig holds configuration for the pool manager.
type PoolManagerConfig struct {
	TTLMinutes   int
	PoolMaxConns int32
}

// PoolManager keeps one connection pool per adapter and ref, closing pools
// that sit idle longer than the TTL.
type PoolManager struct {
	mu           sync.RWMutex
	pools        map[string]*managedPool // key: "{adapterType}:{ref}"
	ttl          time.Duration
	poolMaxConns int32
	stopped      bool
	stopChan     chan struct{}
	logger       *zap.Logger
}

type managedPool struct {
	conn     PoolConnector
	lastUsed time.Time
	mu       sync.Mutex
}

// NewPoolManager creates a pool manager and starts its cleanup goroutine,
// which runs until Close() is called.
func NewPoolManager(cfg PoolManagerConfig, logger *zap.Logger) *PoolManager {
	if cfg.TTLMinutes <= 0 {
		cfg.TTLMinutes = DefaultPoolTTLMinutes
	}
	if cfg.PoolMaxConns <= 0 {
		cfg.PoolMaxConns = DefaultPoolMaxConns
	}

	m := &PoolManager{
		pools:        make(map[string]*managedPool),
		ttl:          time.Duration(cfg.TTLMinutes) * time.Minute,
		poolMaxConns: cfg.PoolMaxConns,
		stopChan:     make(chan struct{}),
		logger:       logger.Named("pool-manager"),
	}

	go m.cleanupExpired()
	return m
}

// PoolMaxConns returns the configured per-pool connection limit.
func (m *PoolManager) PoolMaxConns() int32 {
	return m.poolMaxConns
}

// TTL returns the idle time after which pools are closed.
func (m *PoolManager) TTL() time.Duration {
	return m.ttl
}

// GetOrCreate returns the pool for adapterType and ref, creating it with
// create if it does not exist or fails its health check.
func (m *PoolManager) GetOrCreate(
	ctx context.Context,
	adapterType string,
	ref Ref,
	create func(ctx context.Context) (PoolConnector, error),
) (PoolConnector, error) {
	key := fmt.Sprintf("%s:%s", adapterType, ref)

	m.mu.RLock()
	managed, exists := m.pools[key]
	m.mu.RUnlock()

	if exists {
		managed.mu.Lock()

		healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		err := retry.Do(healthCtx, retry.DefaultConfig(), func() error {
			return managed.conn.Ping(healthCtx)
		})
		if err != nil {
			m.logger.Warn("pool unhealthy, recreating",
				zap.String("key", key),
				zap.String("error", logging.SanitizeError(err)),
			)
			managed.mu.Unlock()
			m.remove(key)
			return m.createNew(ctx, key, create)
		}

		managed.lastUsed = time.Now()
		managed.mu.Unlock()
		return managed.conn, nil
	}

	return m.createNew(ctx, key, create)
}

// createNew creates a pool with retry logic. Caller must NOT hold any locks.
func (m *PoolManager) createNew(
	ctx context.Context,
	key string,
	create func(ctx context.Context) (PoolConnector, error),
) (PoolConnector, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, fmt.Errorf("pool manager is closed")
	}

	// Another goroutine may have created it while we waited for the lock.
	if managed, exists := m.pools[key]; exists && managed != nil {
		managed.mu.Lock()
		defer managed.mu.Unlock()
		managed.lastUsed = time.Now()
		return managed.conn, nil
	}

	conn, err := retry.DoWithResultIfRetryable(ctx, retry.DefaultConfig(), func() (PoolConnector, error) {
		return create(ctx)
	})
	if err != nil {
		m.logger.Error("failed to create pool",
			zap.String("key", key),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, fmt.Errorf("failed to create pool for %s: %w", key, err)
	}

	m.pools[key] = &managedPool{
		conn:     conn,
		lastUsed: time.Now(),
	}

	m.logger.Info("created new connection pool",
		zap.String("key", key),
		zap.String("type", conn.GetType()),
		zap.Int("total_pools", len(m.pools)),
	)

	return conn, nil
}

// remove closes and forgets a pool. Caller must NOT hold m.mu.
func (m *PoolManager) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if managed, exists := m.pools[key]; exists && managed != nil {
		if err := managed.conn.Close(); err != nil {
			m.logger.Debug("error closing pool", zap.String("key", key), zap.Error(err))
		}
		delete(m.pools, key)
	}
}

func (m *PoolManager) cleanupExpired() {
	ticker := time.NewTicker(DefaultCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.performCleanup(time.Now())
		case <-m.stopChan:
			return
		}
	}
}

// performCleanup closes pools idle for longer than the TTL.
// Lock ordering: manager lock, then pool lock.
func (m *PoolManager) performCleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return
	}

	var expired []string
	for key, managed := range m.pools {
		managed.mu.Lock()
		idle := now.Sub(managed.lastUsed)
		managed.mu.Unlock()

		if idle > m.ttl {
			expired = append(expired, key)
		}
	}

	for _, key := range expired {
		if managed := m.pools[key]; managed != nil {
			_ = managed.conn.Close()
		}
		delete(m.pools, key)
	}

	if len(expired) > 0 {
		m.logger.Info("cleaned up idle pools",
			zap.Int("count", len(expired)),
			zap.Int("remaining", len(m.pools)),
		)
	}
}

// Close closes all pools and stops the cleanup goroutine. Idempotent.
func (m *PoolManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil
	}

	m.stopped = true
	close(m.stopChan)

	for _, managed := range m.pools {
		if managed != nil {
			_ = managed.conn.Close()
		}
	}
	m.pools = make(map[string]*managedPool)
	m.logger.Info("pool manager closed")
	return nil
}

// Stats returns the number of open pools.
func (m *PoolManager) Stats() PoolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := PoolStats{
		TotalPools: len(m.pools),
		TTLMinutes: int(m.ttl.Minutes()),
		ByType:     make(map[string]int),
	}
	for _, managed := range m.pools {
		stats.ByType[managed.conn.GetType()]++
	}
	return stats
}

// PoolStats contains statistics about the pool manager state.
type PoolStats struct {
	TotalPools int            `json:"total_pools"`
	TTLMinutes int            `json:"ttl_minutes"`
	ByType     map[string]int `json:"by_type"`
}
