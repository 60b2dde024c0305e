package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"MYSQL_HOST":        "db.local",
		"MYSQL_USER":        "ingest",
		"MYSQL_DATABASE":    "ticks",
		"INGEST_START_DATE": "2024-01-01",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(baseEnv()))
	require.NoError(t, err)

	assert.Equal(t, 3306, cfg.MySQL.Port)
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
	assert.Equal(t, "data/checkpoint.json", cfg.Ingest.CheckpointPath)
	assert.Equal(t, "eurusd", cfg.Ingest.Symbols[0])
	assert.Equal(t, "https://datafeed.dukascopy.com/datafeed", cfg.Provider.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Redis.ProgressTTL)
	assert.Empty(t, cfg.Redis.Host)
	assert.Empty(t, cfg.NATS.URL)
}

func TestLoadWithoutMySQLSettings(t *testing.T) {
	env := baseEnv()
	delete(env, "MYSQL_HOST")
	delete(env, "MYSQL_USER")

	// commands that never open MySQL still load
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)

	err = cfg.MySQL.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MYSQL_HOST")
	assert.Contains(t, err.Error(), "MYSQL_USER")
	assert.NotContains(t, err.Error(), "MYSQL_DATABASE")
}

func TestLoadWithNormalizesSymbols(t *testing.T) {
	env := baseEnv()
	env["INGEST_SYMBOLS"] = " EURUSD, gbpusd ,,XAUUSD"

	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)
	assert.Equal(t, []string{"eurusd", "gbpusd", "xauusd"}, cfg.Ingest.Symbols)
}

func TestLoadWithRejectsBadDates(t *testing.T) {
	env := baseEnv()
	env["INGEST_END_DATE"] = "01/02/2024"

	_, err := LoadWith(context.Background(), envconfig.MapLookuper(env))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "end date")
}

func TestIngestBounds(t *testing.T) {
	ic := IngestConfig{StartDate: "2024-01-01"}

	start, err := ic.Start()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)

	_, err = (&IngestConfig{}).Start()
	assert.Error(t, err)
}

func TestIngestEndStopsAtLastCompleteDay(t *testing.T) {
	now := time.Date(2024, 3, 5, 17, 30, 0, 0, time.UTC)
	yesterday := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		endDate string
		want    time.Time
	}{
		{name: "unset", endDate: "", want: yesterday},
		{name: "today", endDate: "2024-03-05", want: yesterday},
		{name: "future", endDate: "2024-12-31", want: yesterday},
		{name: "yesterday", endDate: "2024-03-04", want: yesterday},
		{name: "past", endDate: "2024-02-01", want: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ic := IngestConfig{StartDate: "2024-01-01", EndDate: tt.endDate}
			end, err := ic.End(now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, end)
		})
	}

	assert.Equal(t, yesterday, LastCompleteDay(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
}

func TestMySQLDSN(t *testing.T) {
	m := MySQLConfig{Host: "h", Port: 3307, User: "u", Password: "p", Database: "d", Timeout: 5 * time.Second}
	assert.Equal(t, "u:p@tcp(h:3307)/d?parseTime=true&timeout=5s", m.DSN())
}

func TestLoadDotEnvExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TICK_ARCHIVE_DOTENV_PROBE=loaded\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TICK_ARCHIVE_DOTENV_PROBE") })

	loaded, err := LoadDotEnv(path)
	require.NoError(t, err)
	assert.Equal(t, path, loaded)
	assert.Equal(t, "loaded", os.Getenv("TICK_ARCHIVE_DOTENV_PROBE"))
}
