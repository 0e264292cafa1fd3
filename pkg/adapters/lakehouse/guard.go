package lakehouse

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-assess/pkg/logging"
	"github.com/ekaya-inc/ekaya-assess/pkg/retry"
	sqlguard "github.com/ekaya-inc/ekaya-assess/pkg/sql"
)

// GuardedRunner enforces the query contract in front of an adapter:
// explicit ref, explicit row bound (capped at MaxQueryLimit), a single
// read-only statement, and retry of transient driver errors only.
type GuardedRunner struct {
	inner    QueryRunner
	retryCfg *retry.Config
	logger   *zap.Logger
}

// Guard wraps a QueryRunner with the read-only query contract.
func Guard(inner QueryRunner, logger *zap.Logger) *GuardedRunner {
	return &GuardedRunner{
		inner:    inner,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.Named("query-guard"),
	}
}

// WithRetryConfig overrides the retry policy (tests use a fast one).
func (g *GuardedRunner) WithRetryConfig(cfg *retry.Config) *GuardedRunner {
	g.retryCfg = cfg
	return g
}

// RunQuery validates the request and forwards it to the adapter.
func (g *GuardedRunner) RunQuery(ctx context.Context, ref Ref, sqlQuery string, maxRows int) (*QueryResult, error) {
	if ref.IsZero() {
		return nil, apperrors.ErrRefRequired
	}
	if maxRows <= 0 {
		return nil, fmt.Errorf("%w: max_rows=%d", apperrors.ErrUnboundedQuery, maxRows)
	}
	if maxRows > MaxQueryLimit {
		maxRows = MaxQueryLimit
	}

	validated := sqlguard.ValidateReadOnly(sqlQuery)
	if validated.Error != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrReadOnlyViolation, validated.Error)
	}

	start := time.Now()
	result, err := retry.DoWithResultIfRetryable(ctx, g.retryCfg, func() (*QueryResult, error) {
		return g.inner.RunQuery(ctx, ref, validated.NormalizedSQL, maxRows)
	})
	if err != nil {
		g.logger.Warn("lakehouse query failed",
			zap.String("ref", ref.String()),
			zap.String("query", logging.SanitizeQuery(validated.NormalizedSQL)),
			zap.String("error", logging.SanitizeError(err)),
		)
		return nil, err
	}

	if len(result.Rows) > maxRows {
		result.Rows = result.Rows[:maxRows]
		result.RowCount = maxRows
	}

	g.logger.Debug("lakehouse query",
		zap.String("ref", ref.String()),
		zap.String("query", logging.SanitizeQuery(validated.NormalizedSQL)),
		zap.Int("max_rows", maxRows),
		zap.Int("rows", result.RowCount),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

var _ QueryRunner = (*GuardedRunner)(nil)
