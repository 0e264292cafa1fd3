package testhelpers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-assess/pkg/config"
)

// LakehouseMainDB is the database that backs the "main" ref in integration tests.
const LakehouseMainDB = "lakehouse_main"

// SeedOrderCount is the number of rows seeded into sales.orders.
const SeedOrderCount = 24

// LakehouseDB is a seeded lakehouse database on the shared test container.
type LakehouseDB struct {
	Host string
	Port int
}

// LakehouseConfig returns a postgres lakehouse config whose refs map to
// databases on the test container.
func (l *LakehouseDB) LakehouseConfig(refs map[string]string) *config.LakehouseConfig {
	return &config.LakehouseConfig{
		Type:     "postgres",
		Host:     l.Host,
		Port:     l.Port,
		User:     testUser,
		Password: testPassword,
		SSLMode:  "disable",
		Refs:     refs,
		MaxRows:  100,
	}
}

var (
	sharedLakehouseDB     *LakehouseDB
	sharedLakehouseDBOnce sync.Once
	sharedLakehouseDBErr  error
)

// GetLakehouseDB returns the shared lakehouse database, seeded once with a
// small sales namespace: customers, orders and web_sessions.
func GetLakehouseDB(t *testing.T) *LakehouseDB {
	t.Helper()

	testDB := GetTestDB(t)

	sharedLakehouseDBOnce.Do(func() {
		sharedLakehouseDB, sharedLakehouseDBErr = setupLakehouseDB(testDB)
	})

	if sharedLakehouseDBErr != nil {
		t.Fatalf("Failed to setup lakehouse database: %v", sharedLakehouseDBErr)
	}

	return sharedLakehouseDB
}

const seedSalesSQL = `
CREATE SCHEMA sales;

CREATE TABLE sales.customers (
	id     integer PRIMARY KEY,
	name   text NOT NULL,
	region text
);

CREATE TABLE sales.orders (
	id          integer PRIMARY KEY,
	customer_id integer NOT NULL REFERENCES sales.customers(id),
	order_total numeric(12,2) NOT NULL,
	created_at  timestamptz NOT NULL
);

CREATE TABLE sales.web_sessions (
	id         bigint PRIMARY KEY,
	page       text,
	started_at timestamptz
);

INSERT INTO sales.customers (id, name, region)
SELECT g, 'Customer ' || g, (ARRAY['EMEA', 'AMER', 'APAC'])[1 + mod(g, 3)]
FROM generate_series(1, 6) AS g;

INSERT INTO sales.orders (id, customer_id, order_total, created_at)
SELECT g, 1 + mod(g, 6), 100 + g * 10, timestamptz '2024-01-05' + (g - 1) * interval '15 days'
FROM generate_series(1, %d) AS g;

INSERT INTO sales.web_sessions (id, page, started_at)
VALUES (1, '/', timestamptz '2025-01-02'), (2, '/pricing', NULL);
`

func setupLakehouseDB(testDB *TestDB) (*LakehouseDB, error) {
	ctx := context.Background()

	if _, err := testDB.Pool.Exec(ctx, "CREATE DATABASE "+LakehouseMainDB); err != nil {
		return nil, fmt.Errorf("failed to create lakehouse database: %w", err)
	}
	connStr, err := testDB.SuperuserURLFor(ctx, LakehouseMainDB)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to lakehouse database: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, fmt.Sprintf(seedSalesSQL, SeedOrderCount)); err != nil {
		return nil, fmt.Errorf("failed to seed lakehouse database: %w", err)
	}

	host, err := testDB.Container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}
	mapped, err := testDB.Container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, fmt.Errorf("failed to get container port: %w", err)
	}
	port, err := strconv.Atoi(mapped.Port())
	if err != nil {
		return nil, fmt.Errorf("invalid container port %q: %w", mapped.Port(), err)
	}

	return &LakehouseDB{Host: host, Port: port}, nil
}
