package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-assess/pkg/adapters/lakehouse"
	"github.com/ekaya-inc/ekaya-assess/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Version:   "test-version",
		Env:       "test",
		Lakehouse: config.LakehouseConfig{Type: "duckdb"},
		Reports:   config.ReportsConfig{Store: "file"},
	}
}

func TestHealthHandler_Health_WithoutPools(t *testing.T) {
	handler := NewHealthHandler(testConfig(), nil, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}
	if response.Lakehouse != "duckdb" || response.ReportStore != "file" {
		t.Errorf("unexpected backends: %+v", response)
	}
	if response.Pools != nil {
		t.Error("expected no pool stats without a pool manager")
	}
}

func TestHealthHandler_Health_WithPools(t *testing.T) {
	pools := lakehouse.NewPoolManager(lakehouse.PoolManagerConfig{TTLMinutes: 5, PoolMaxConns: 2}, zap.NewNop())
	defer func() { _ = pools.Close() }()

	handler := NewHealthHandler(testConfig(), pools, zap.NewNop())
	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Pools == nil {
		t.Fatal("expected pool stats")
	}
	if response.Pools.TotalPools != 0 {
		t.Errorf("expected 0 pools, got %d", response.Pools.TotalPools)
	}
	if response.Pools.TTLMinutes != 5 {
		t.Errorf("expected ttl 5, got %d", response.Pools.TTLMinutes)
	}
}

func TestHealthHandler_Routes(t *testing.T) {
	r := chi.NewRouter()
	NewHealthHandler(testConfig(), nil, zap.NewNop()).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response PingResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Service != "ekaya-assess" {
		t.Errorf("expected service 'ekaya-assess', got '%s'", response.Service)
	}
	if response.Version != "test-version" {
		t.Errorf("expected version 'test-version', got '%s'", response.Version)
	}
	if response.Environment != "test" {
		t.Errorf("expected environment 'test', got '%s'", response.Environment)
	}
}
