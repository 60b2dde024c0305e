package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// DateLayout is the calendar-day format used for ingestion bounds
const DateLayout = "2006-01-02"

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `env:", prefix=SERVER_"`
	MySQL    MySQLConfig    `env:", prefix=MYSQL_"`
	InfluxDB InfluxConfig   `env:", prefix=INFLUXDB_"`
	Redis    RedisConfig    `env:", prefix=REDIS_"`
	NATS     NATSConfig     `env:", prefix=NATS_"`
	Provider ProviderConfig `env:", prefix=PROVIDER_"`
	Ingest   IngestConfig   `env:", prefix=INGEST_"`
	Security SecurityConfig `env:", prefix=SECURITY_"`
	Logging  LoggingConfig  `env:", prefix=LOG_"`
}

// ServerConfig holds dashboard server configuration
type ServerConfig struct {
	Host         string        `env:"HOST, default=0.0.0.0"`
	Port         int           `env:"PORT, default=8080"`
	StaticDir    string        `env:"STATIC_DIR"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT, default=120s"`
}

// MySQLConfig holds MySQL configuration. Host, user and database have no
// defaults: a missing value is a configuration error.
type MySQLConfig struct {
	Host            string        `env:"HOST"`
	Port            int           `env:"PORT, default=3306"`
	Database        string        `env:"DATABASE"`
	User            string        `env:"USER"`
	Password        string        `env:"PASSWORD"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS, default=5"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS, default=2"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME, default=5m"`
	Timeout         time.Duration `env:"TIMEOUT, default=10s"`
}

// InfluxConfig holds InfluxDB configuration. An empty URL disables unit metrics.
type InfluxConfig struct {
	URL     string        `env:"URL"`
	Token   string        `env:"TOKEN"`
	Org     string        `env:"ORG, default=tick-archive"`
	Bucket  string        `env:"BUCKET, default=ingest"`
	Timeout time.Duration `env:"TIMEOUT, default=10s"`
}

// RedisConfig holds Redis configuration. An empty host disables the progress cache.
type RedisConfig struct {
	Host         string        `env:"HOST"`
	Port         int           `env:"PORT, default=6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB, default=0"`
	PoolSize     int           `env:"POOL_SIZE, default=10"`
	MinIdleConns int           `env:"MIN_IDLE_CONNS, default=2"`
	DialTimeout  time.Duration `env:"DIAL_TIMEOUT, default=5s"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT, default=3s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT, default=3s"`
	ProgressTTL  time.Duration `env:"PROGRESS_TTL, default=30s"`
}

// NATSConfig holds NATS configuration. An empty URL disables unit events.
type NATSConfig struct {
	URL           string        `env:"URL"`
	Subject       string        `env:"SUBJECT, default=ingest.units"`
	MaxReconnect  int           `env:"MAX_RECONNECT, default=10"`
	ReconnectWait time.Duration `env:"RECONNECT_WAIT, default=2s"`
	DrainTimeout  time.Duration `env:"DRAIN_TIMEOUT, default=30s"`
}

// ProviderConfig holds the historical tick datafeed configuration
type ProviderConfig struct {
	BaseURL    string        `env:"BASE_URL, default=https://datafeed.dukascopy.com/datafeed"`
	Timeout    time.Duration `env:"TIMEOUT, default=30s"`
	BatchSize  int           `env:"BATCH_SIZE, default=6"`
	BatchPause time.Duration `env:"BATCH_PAUSE, default=500ms"`
	RetryCount int           `env:"RETRY_COUNT, default=3"`
	RetryPause time.Duration `env:"RETRY_PAUSE, default=1s"`
	UserAgent  string        `env:"USER_AGENT, default=tick-archive/1.0"`
}

// IngestConfig holds the ingestion driver configuration
type IngestConfig struct {
	Symbols        []string      `env:"SYMBOLS, default=eurusd,gbpusd,usdjpy,usdchf,audusd,usdcad,nzdusd,xauusd,xagusd,btcusd,ethusd"`
	StartDate      string        `env:"START_DATE"`
	EndDate        string        `env:"END_DATE"`
	ChunkSize      int           `env:"CHUNK_SIZE, default=1000"`
	UnitPause      time.Duration `env:"UNIT_PAUSE, default=0s"`
	CheckpointPath string        `env:"CHECKPOINT_PATH, default=data/checkpoint.json"`
}

// SecurityConfig holds CORS configuration for the dashboard
type SecurityConfig struct {
	CORSEnabled bool     `env:"CORS_ENABLED, default=true"`
	CORSOrigins []string `env:"CORS_ORIGINS, default=*"`
	CORSMethods []string `env:"CORS_METHODS, default=GET,OPTIONS"`
	CORSHeaders []string `env:"CORS_HEADERS, default=Content-Type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `env:"LEVEL, default=info"`
	Format   string `env:"FORMAT, default=text"`
	Output   string `env:"OUTPUT, default=stdout"`
	Dir      string `env:"DIR, default=logs"`
	MaxFiles int    `env:"MAX_FILES, default=30"`
}

// Load loads configuration from environment variables using go-envconfig
func Load() (*Config, error) {
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith loads configuration from the given lookuper
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	cfg.Ingest.Symbols = NormalizeSymbols(cfg.Ingest.Symbols)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration shared by every command. MySQL
// settings are checked by MySQLConfig.Validate when a connection is opened.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if len(c.Ingest.Symbols) == 0 {
		return fmt.Errorf("at least one ingest symbol is required")
	}

	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("invalid ingest chunk size: %d", c.Ingest.ChunkSize)
	}

	if c.Ingest.StartDate != "" {
		if _, err := ParseDate(c.Ingest.StartDate); err != nil {
			return fmt.Errorf("invalid ingest start date: %w", err)
		}
	}

	if c.Ingest.EndDate != "" {
		if _, err := ParseDate(c.Ingest.EndDate); err != nil {
			return fmt.Errorf("invalid ingest end date: %w", err)
		}
	}

	if c.Provider.BatchSize <= 0 {
		return fmt.Errorf("invalid provider batch size: %d", c.Provider.BatchSize)
	}

	return nil
}

// Validate checks the required MySQL connection parameters
func (m *MySQLConfig) Validate() error {
	var missing []string
	if m.Host == "" {
		missing = append(missing, "MYSQL_HOST")
	}
	if m.User == "" {
		missing = append(missing, "MYSQL_USER")
	}
	if m.Database == "" {
		missing = append(missing, "MYSQL_DATABASE")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required MySQL settings: %s", strings.Join(missing, ", "))
	}

	return nil
}

// DSN returns the MySQL DSN string
func (m *MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&timeout=%s",
		m.User,
		m.Password,
		m.Host,
		m.Port,
		m.Database,
		m.Timeout,
	)
}

// Start returns the configured first ingestion day
func (i *IngestConfig) Start() (time.Time, error) {
	if i.StartDate == "" {
		return time.Time{}, fmt.Errorf("INGEST_START_DATE is required")
	}
	return ParseDate(i.StartDate)
}

// End returns the last ingestion day. A day is only ingested once it has
// ended, so an empty end date, or one on or after today, means yesterday (UTC).
func (i *IngestConfig) End(now time.Time) (time.Time, error) {
	last := LastCompleteDay(now)
	if i.EndDate == "" {
		return last, nil
	}

	end, err := ParseDate(i.EndDate)
	if err != nil {
		return time.Time{}, err
	}
	if end.After(last) {
		return last, nil
	}
	return end, nil
}

// LastCompleteDay returns the most recent UTC day that has fully ended
func LastCompleteDay(now time.Time) time.Time {
	return Day(now).AddDate(0, 0, -1)
}

// ParseDate parses a YYYY-MM-DD calendar day as UTC midnight
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

// Day truncates t to UTC midnight
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GetServerAddr returns server address
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// NormalizeSymbols lowercases and trims symbol names, dropping empty entries
func NormalizeSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}
