package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tick-archive/internal/checkpoint"
	"github.com/tick-archive/internal/symbols"
	"github.com/tick-archive/pkg/config"
	"github.com/tick-archive/pkg/models"
)

type stubCheckpoints struct {
	cp  *models.Checkpoint
	err error
}

func (s stubCheckpoints) Load(ctx context.Context) (*models.Checkpoint, error) {
	return s.cp, s.err
}

type stubProgress struct {
	progress *models.Progress
	err      error
}

func (s stubProgress) Progress(ctx context.Context) (*models.Progress, error) {
	return s.progress, s.err
}

type stubHealth struct{ err error }

func (s stubHealth) Health(ctx context.Context) error { return s.err }

func testServer(t *testing.T, deps Dependencies, mutate ...func(*config.Config)) http.Handler {
	t.Helper()

	cfg := &config.Config{}
	cfg.Logging.Dir = t.TempDir()
	cfg.Security.CORSEnabled = true
	cfg.Security.CORSOrigins = []string{"*"}
	cfg.Security.CORSMethods = []string{"GET", "OPTIONS"}
	cfg.Security.CORSHeaders = []string{"Content-Type"}
	for _, m := range mutate {
		m(cfg)
	}

	if deps.Catalog == nil {
		catalog, err := symbols.NewCatalog([]string{"eurusd", "gbpusd"})
		require.NoError(t, err)
		deps.Catalog = catalog
	}
	if deps.Checkpoints == nil {
		deps.Checkpoints = stubCheckpoints{err: checkpoint.ErrNotFound}
	}
	if deps.Progress == nil {
		deps.Progress = stubProgress{progress: &models.Progress{}}
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewServer(cfg, logger, deps).Handler()
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCheckpointEndpoint(t *testing.T) {
	cp := &models.Checkpoint{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), LastSymbol: "gbpusd"}
	h := testServer(t, Dependencies{Checkpoints: stubCheckpoints{cp: cp}})

	rec := get(t, h, "/api/checkpoint")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"date":"2024-01-01T00:00:00Z","lastSymbol":"gbpusd"}`, rec.Body.String())
}

func TestCheckpointEndpointMissing(t *testing.T) {
	rec := get(t, testServer(t, Dependencies{}), "/api/checkpoint")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCheckpointEndpointCorrupt(t *testing.T) {
	h := testServer(t, Dependencies{Checkpoints: stubCheckpoints{err: checkpoint.ErrCorrupt}})
	rec := get(t, h, "/api/checkpoint")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSymbolsEndpoint(t *testing.T) {
	rec := get(t, testServer(t, Dependencies{}), "/api/symbols")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Symbols []models.SymbolInfo `json:"symbols"`
		Count   int                 `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "eurusd", body.Symbols[0].Symbol)
	assert.Equal(t, 1, body.Symbols[1].Index)
}

func TestProgressEndpoint(t *testing.T) {
	progress := &models.Progress{TotalUnits: 4, CompletedUnits: 2, CompletionPercent: 50}
	rec := get(t, testServer(t, Dependencies{Progress: stubProgress{progress: progress}}), "/api/progress")
	require.Equal(t, http.StatusOK, rec.Code)

	var body models.Progress
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4, body.TotalUnits)
	assert.Equal(t, 50.0, body.CompletionPercent)
}

func TestProgressEndpointError(t *testing.T) {
	rec := get(t, testServer(t, Dependencies{Progress: stubProgress{err: errors.New("boom")}}), "/api/progress")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLogsEndpoint(t *testing.T) {
	var dir string
	h := testServer(t, Dependencies{}, func(cfg *config.Config) { dir = cfg.Logging.Dir })

	rec := get(t, h, "/api/logs")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	content := strings.Repeat("{\"message\":\"x\"}\n", 5)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ingest-20240101-000000.log"), []byte(content), 0o644))

	rec = get(t, h, "/api/logs?lines=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		File  string   `json:"file"`
		Lines []string `json:"lines"`
		Count int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ingest-20240101-000000.log", body.File)
	assert.Equal(t, 2, body.Count)

	rec = get(t, h, "/api/logs?lines=abc")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	h := testServer(t, Dependencies{Health: map[string]HealthChecker{
		"mysql": stubHealth{},
		"redis": nil,
	}})

	rec := get(t, h, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status   string            `json:"status"`
		Services map[string]string `json:"services"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "disabled", body.Services["redis"])
}

func TestHealthEndpointUnhealthy(t *testing.T) {
	h := testServer(t, Dependencies{Health: map[string]HealthChecker{
		"mysql": stubHealth{err: errors.New("connection refused")},
	}})

	rec := get(t, h, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestStaticDir(t *testing.T) {
	static := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(static, "index.html"), []byte("<h1>ticks</h1>"), 0o644))

	h := testServer(t, Dependencies{}, func(cfg *config.Config) { cfg.Server.StaticDir = static })

	rec := get(t, h, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ticks")

	// API routes still win over the file server
	rec = get(t, h, "/api/symbols")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := testServer(t, Dependencies{})

	req := httptest.NewRequest(http.MethodOptions, "/api/progress", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLogsEndpointServesIngestRun(t *testing.T) {
	var dir string
	h := testServer(t, Dependencies{}, func(cfg *config.Config) { dir = cfg.Logging.Dir })

	ingestLog := filepath.Join(dir, "ingest-20240101-000000.log")
	require.NoError(t, os.WriteFile(ingestLog, []byte("{\"message\":\"Unit complete\"}\n"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(ingestLog, old, old))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dashboard-20240101-010000.log"),
		[]byte("{\"message\":\"Starting dashboard server\"}\n"), 0o644))

	rec := get(t, h, "/api/logs")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		File  string   `json:"file"`
		Lines []string `json:"lines"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ingest-20240101-000000.log", body.File)
	require.Len(t, body.Lines, 1)
	assert.Contains(t, body.Lines[0], "Unit complete")
}
