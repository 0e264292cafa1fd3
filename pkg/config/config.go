package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// MaxRowsCap is the hard upper bound on rows any lakehouse query may return.
const MaxRowsCap = 1000

// Config holds all configuration for ekaya-assess.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	Env       string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel  string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `yaml:"log_format" env:"LOG_FORMAT" env-default:"console"` // console | json
	Version   string `yaml:"-"`                                                 // Set at load time, not from config

	// LexiconPath optionally points to a YAML concept lexicon that replaces the embedded one.
	LexiconPath string `yaml:"lexicon_path" env:"LEXICON_PATH" env-default:""`

	Lakehouse LakehouseConfig `yaml:"lakehouse"`
	Quality   QualityConfig   `yaml:"quality"`
	Semantic  SemanticConfig  `yaml:"semantic"`
	Reports   ReportsConfig   `yaml:"reports"`
	LLM       LLMConfig       `yaml:"llm"`
	MCP       MCPConfig       `yaml:"mcp"`
}

// LakehouseConfig describes how to reach the data being assessed.
type LakehouseConfig struct {
	// Type selects the adapter: postgres, mssql, duckdb or memory.
	Type     string `yaml:"type" env:"LAKEHOUSE_TYPE" env-default:"duckdb"`
	Host     string `yaml:"host" env:"LAKEHOUSE_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"LAKEHOUSE_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"LAKEHOUSE_USER" env-default:""`
	Password string `yaml:"-" env:"LAKEHOUSE_PASSWORD"` // Secret - not in YAML
	SSLMode  string `yaml:"ssl_mode" env:"LAKEHOUSE_SSL_MODE" env-default:"disable"`

	// RefsStr maps refs to physical databases for server adapters.
	// Format: "main=analytics,dev=analytics_dev"
	RefsStr string `yaml:"refs" env:"LAKEHOUSE_REFS" env-default:""`
	// Refs is the parsed map from RefsStr (not from config file).
	Refs map[string]string `yaml:"-"`

	// DuckDBRefsDir holds one <ref>.duckdb file per ref.
	DuckDBRefsDir string `yaml:"duckdb_refs_dir" env:"LAKEHOUSE_DUCKDB_REFS_DIR" env-default:"./refs"`

	// FixturePath is a YAML file of refs, tables and rows served by the memory adapter.
	FixturePath string `yaml:"fixture_path" env:"LAKEHOUSE_FIXTURE_PATH" env-default:""`

	PoolTTLMinutes int   `yaml:"pool_ttl_minutes" env:"LAKEHOUSE_POOL_TTL_MINUTES" env-default:"5"`
	PoolMaxConns   int32 `yaml:"pool_max_conns" env:"LAKEHOUSE_POOL_MAX_CONNS" env-default:"5"`

	// MaxRows bounds every sample query. Values above MaxRowsCap are clamped.
	MaxRows int `yaml:"max_rows" env:"LAKEHOUSE_MAX_ROWS" env-default:"100"`
}

// QualityConfig holds the grading thresholds of the quality profiler.
// The defaults are configuration constants chosen for the tool, not claims about any domain.
type QualityConfig struct {
	// CaveatNullRate: a null rate above this value (and at or below NotUsableNullRate) is a caveat.
	CaveatNullRate float64 `yaml:"caveat_null_rate" env:"QUALITY_CAVEAT_NULL_RATE" env-default:"0.05"`
	// NotUsableNullRate: a null rate strictly greater than this value is not usable.
	NotUsableNullRate float64 `yaml:"not_usable_null_rate" env:"QUALITY_NOT_USABLE_NULL_RATE" env-default:"0.5"`
	// MinRowCount: fewer rows than this fails the volume check.
	MinRowCount int64 `yaml:"min_row_count" env:"QUALITY_MIN_ROW_COUNT" env-default:"1"`
	// FullCoverage: covered fraction of the requested period at or above this is usable.
	FullCoverage float64 `yaml:"full_coverage" env:"QUALITY_FULL_COVERAGE" env-default:"1.0"`
	// NotUsableCoverage: covered fraction strictly below this is not usable.
	NotUsableCoverage float64 `yaml:"not_usable_coverage" env:"QUALITY_NOT_USABLE_COVERAGE" env-default:"0.5"`
	// MaxStalenessHours: data older than this is a caveat. 0 disables the check.
	MaxStalenessHours int `yaml:"max_staleness_hours" env:"QUALITY_MAX_STALENESS_HOURS" env-default:"0"`
}

// SemanticConfig holds the thresholds of the semantic validator.
type SemanticConfig struct {
	TopN                  int     `yaml:"top_n" env:"SEMANTIC_TOP_N" env-default:"10"`
	JoinOverlapConfirmed  float64 `yaml:"join_overlap_confirmed" env:"SEMANTIC_JOIN_OVERLAP_CONFIRMED" env-default:"0.95"`
	JoinOverlapMisaligned float64 `yaml:"join_overlap_misaligned" env:"SEMANTIC_JOIN_OVERLAP_MISALIGNED" env-default:"0.10"`
}

// ReportsConfig selects where feasibility reports are written.
type ReportsConfig struct {
	Store    string         `yaml:"store" env:"REPORTS_STORE" env-default:"file"` // file | postgres
	Dir      string         `yaml:"dir" env:"REPORTS_DIR" env-default:"./reports"`
	Database DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds PostgreSQL database configuration for the report store.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_assess"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
}

// LLMConfig configures the optional OpenAI-compatible endpoint used for
// clarification suggestions.
type LLMConfig struct {
	BaseURL string `yaml:"base_url" env:"LLM_BASE_URL" env-default:""`
	Model   string `yaml:"model" env:"LLM_MODEL" env-default:""`
	APIKey  string `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
}

// IsAvailable returns true if an LLM endpoint is configured.
func (c *LLMConfig) IsAvailable() bool {
	return c.BaseURL != "" && c.Model != ""
}

// MCPConfig configures the MCP server.
type MCPConfig struct {
	Transport string `yaml:"transport" env:"MCP_TRANSPORT" env-default:"stdio"` // stdio | http
	BindAddr  string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port      string `yaml:"port" env:"PORT" env-default:"3443"`
}

// Load reads configuration from config.yaml with environment variable overrides.
func Load(version string) (*Config, error) {
	return LoadFrom("config.yaml", version)
}

// LoadFrom reads configuration from the given YAML file with environment
// variable overrides. A missing file is not an error: defaults and
// environment variables are used instead.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	c.Lakehouse.Refs = parseRefs(c.Lakehouse.RefsStr)
	if c.Lakehouse.MaxRows > MaxRowsCap {
		c.Lakehouse.MaxRows = MaxRowsCap
	}
	return nil
}

// Validate checks threshold ordering and enum-like fields.
func (c *Config) Validate() error {
	switch c.Lakehouse.Type {
	case "postgres", "mssql", "duckdb", "memory":
	default:
		return fmt.Errorf("unsupported lakehouse type %q", c.Lakehouse.Type)
	}
	if c.Lakehouse.Type == "memory" && c.Lakehouse.FixturePath == "" {
		return fmt.Errorf("lakehouse.fixture_path is required for the memory adapter")
	}
	if c.Lakehouse.MaxRows <= 0 {
		return fmt.Errorf("lakehouse.max_rows must be positive")
	}

	q := c.Quality
	if q.CaveatNullRate < 0 || q.NotUsableNullRate > 1 || q.CaveatNullRate > q.NotUsableNullRate {
		return fmt.Errorf("quality null rate thresholds must satisfy 0 <= caveat <= not_usable <= 1")
	}
	if q.NotUsableCoverage < 0 || q.FullCoverage > 1 || q.NotUsableCoverage > q.FullCoverage {
		return fmt.Errorf("quality coverage thresholds must satisfy 0 <= not_usable <= full <= 1")
	}
	if q.MaxStalenessHours < 0 {
		return fmt.Errorf("quality.max_staleness_hours must not be negative")
	}

	s := c.Semantic
	if s.TopN <= 0 {
		return fmt.Errorf("semantic.top_n must be positive")
	}
	if s.JoinOverlapMisaligned > s.JoinOverlapConfirmed {
		return fmt.Errorf("semantic.join_overlap_misaligned must not exceed join_overlap_confirmed")
	}

	switch c.Reports.Store {
	case "file", "postgres":
	default:
		return fmt.Errorf("unsupported report store %q", c.Reports.Store)
	}

	switch c.MCP.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("unsupported mcp transport %q", c.MCP.Transport)
	}
	return nil
}

// parseRefs parses the refs string into a map.
// Format: "ref1=db1,ref2=db2"
func parseRefs(value string) map[string]string {
	refs := make(map[string]string)
	if value == "" {
		return refs
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			refs[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return refs
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		ResolveHostForDocker(c.Host), c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
