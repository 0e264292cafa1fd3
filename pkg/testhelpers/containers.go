package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/database"
)

// PostgresImage is the image used for integration tests.
const PostgresImage = "postgres:17-alpine"

const (
	testUser     = "ekaya"
	testPassword = "test_password"
	testDatabase = "test_data"
)

// TestDB holds a shared test database container and connection pool.
type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

// URLFor returns a connection URL for another database on the same container.
func (t *TestDB) URLFor(ctx context.Context, user, password, dbName string) (string, error) {
	host, err := t.Container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := t.Container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("failed to get container port: %w", err)
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port.Port(), dbName), nil
}

// SuperuserURLFor returns a superuser connection URL for dbName.
func (t *TestDB) SuperuserURLFor(ctx context.Context, dbName string) (string, error) {
	return t.URLFor(ctx, testUser, testPassword, dbName)
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a shared PostgreSQL container for integration tests.
// The container is created once and reused across all tests in the run.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})

	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}

	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDatabase,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		// Postgres logs readiness twice: once for the init server, once for the real one.
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start test container: %w", err)
	}

	testDB := &TestDB{Container: container}
	connStr, err := testDB.SuperuserURLFor(ctx, testDatabase)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection with retry
	for i := 0; i < 10; i++ {
		if err := pool.Ping(ctx); err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}

	testDB.Pool = pool
	testDB.ConnStr = connStr
	return testDB, nil
}

// ReportDB holds the report store connection with migrations applied.
type ReportDB struct {
	DB      *database.DB
	ConnStr string
}

var (
	sharedReportDB     *ReportDB
	sharedReportDBOnce sync.Once
	sharedReportDBErr  error
)

// GetReportDB returns a shared report store database for integration tests.
// The database has migrations applied and is reused across all tests.
func GetReportDB(t *testing.T) *ReportDB {
	t.Helper()

	testDB := GetTestDB(t)

	sharedReportDBOnce.Do(func() {
		sharedReportDB, sharedReportDBErr = setupReportDB(testDB)
	})

	if sharedReportDBErr != nil {
		t.Fatalf("Failed to setup report database: %v", sharedReportDBErr)
	}

	return sharedReportDB
}

func setupReportDB(testDB *TestDB) (*ReportDB, error) {
	ctx := context.Background()

	if _, err := testDB.Pool.Exec(ctx, "CREATE DATABASE ekaya_assess_test"); err != nil {
		return nil, fmt.Errorf("failed to create report database: %w", err)
	}
	connStr, err := testDB.SuperuserURLFor(ctx, "ekaya_assess_test")
	if err != nil {
		return nil, err
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            connStr,
		MaxConnections: 5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to report database: %w", err)
	}

	// Run migrations using database/sql (required by golang-migrate)
	sqlDB, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open sql connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &ReportDB{
		DB:      db,
		ConnStr: connStr,
	}, nil
}
