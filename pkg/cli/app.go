package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
	"github.com/ekaya-inc/ekaya-assess/pkg/database"
	"github.com/ekaya-inc/ekaya-assess/pkg/lexicon"
	"github.com/ekaya-inc/ekaya-assess/pkg/llm"
	"github.com/ekaya-inc/ekaya-assess/pkg/mcp/tools"
	"github.com/ekaya-inc/ekaya-assess/pkg/repositories"
	"github.com/ekaya-inc/ekaya-assess/pkg/services"

	// Lakehouse adapters register themselves with the lakehouse registry.
	_ "github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse/duckdb"
	_ "github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse/memory"
	_ "github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse/mssql"
	_ "github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse/postgres"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	service services.AssessmentService
	reports repositories.ReportRepository
	pools   *lakehouse.PoolManager
	llmOn   bool

	closers []func()
}

// newReportApp wires only the report store, for commands that never touch
// the lakehouse.
func newReportApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	reports, err := a.openReportStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.reports = reports
	return a, nil
}

// newApp wires the lakehouse, lexicon, report store and optional LLM
// suggester into an assessment service.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a, err := newReportApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	lex := lexicon.Default()
	if cfg.LexiconPath != "" {
		lex, err = lexicon.Load(cfg.LexiconPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to load lexicon: %w", err)
		}
	}

	pools := lakehouse.NewPoolManager(lakehouse.PoolManagerConfig{
		TTLMinutes:   cfg.Lakehouse.PoolTTLMinutes,
		PoolMaxConns: cfg.Lakehouse.PoolMaxConns,
	}, logger)
	a.pools = pools
	a.closers = append(a.closers, func() {
		if err := pools.Close(); err != nil {
			logger.Warn("Failed to close lakehouse pools", zap.Error(err))
		}
	})

	source, err := lakehouse.Open(ctx, &cfg.Lakehouse, pools, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open %s lakehouse: %w", cfg.Lakehouse.Type, err)
	}
	a.closers = append(a.closers, func() {
		if err := source.Close(); err != nil {
			logger.Warn("Failed to close lakehouse source", zap.Error(err))
		}
	})

	var suggester services.ClarificationSuggester
	if cfg.LLM.IsAvailable() {
		client, err := llm.NewClient(cfg.LLM, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to create LLM client: %w", err)
		}
		suggester = llm.NewSuggester(client, logger)
		a.llmOn = true
		logger.Info("Clarification suggestions enabled",
			zap.String("endpoint", client.Endpoint()),
			zap.String("model", client.Model()))
	}

	a.service = services.NewAssessmentService(source, lex, cfg, a.reports, suggester, nil, logger)
	return a, nil
}

func (a *app) openReportStore(ctx context.Context) (repositories.ReportRepository, error) {
	if a.cfg.Reports.Store == "file" {
		return repositories.NewFileReportRepository(a.cfg.Reports.Dir, a.logger)
	}

	dbCfg := a.cfg.Reports.Database
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            dbCfg.ConnectionString(),
		MaxConnections: dbCfg.MaxConnections,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to report database: %w", err)
	}
	a.closers = append(a.closers, db.Close)

	stdDB := stdlib.OpenDBFromPool(db.Pool)
	defer func() { _ = stdDB.Close() }()
	if err := database.RunMigrations(stdDB, a.logger); err != nil {
		return nil, err
	}
	return repositories.NewPostgresReportRepository(db), nil
}

func (a *app) healthInfo() tools.HealthInfo {
	return tools.HealthInfo{
		Lakehouse:   a.cfg.Lakehouse.Type,
		ReportStore: a.cfg.Reports.Store,
		LLM:         a.llmOn,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
