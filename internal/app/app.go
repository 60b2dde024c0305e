package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tick-archive/internal/api"
	"github.com/tick-archive/internal/cache"
	"github.com/tick-archive/internal/checkpoint"
	"github.com/tick-archive/internal/database"
	"github.com/tick-archive/internal/exchange"
	"github.com/tick-archive/internal/ingest"
	"github.com/tick-archive/internal/messaging"
	"github.com/tick-archive/internal/services"
	"github.com/tick-archive/internal/symbols"
	"github.com/tick-archive/pkg/config"
)

// App holds the process-wide components. Each is built once and passed
// explicitly to the parts that need it.
type App struct {
	cfg    *config.Config
	logger *logrus.Logger

	catalog *symbols.Catalog
	store   *checkpoint.FileStore

	mysqlDB    *database.MySQLClient
	tables     *database.TableProvisioner
	writer     *database.TickWriter
	redisCache *cache.RedisClient
	natsClient *messaging.NATSClient
	influxDB   *database.InfluxClient
}

// New builds the catalog and checkpoint store. No connections are opened.
func New(cfg *config.Config, logger *logrus.Logger) (*App, error) {
	catalog, err := symbols.NewCatalog(cfg.Ingest.Symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to build catalog: %w", err)
	}

	return &App{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog,
		store:   checkpoint.NewFileStore(cfg.Ingest.CheckpointPath, logger),
	}, nil
}

// Initialize connects MySQL (required) and the optional services
func (a *App) Initialize() error {
	if err := a.initializeDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	a.initializeCache()
	a.initializeMessaging()
	a.initializeMetrics()

	return nil
}

// Catalog returns the symbol catalog
func (a *App) Catalog() *symbols.Catalog {
	return a.catalog
}

// Checkpoints returns the checkpoint store
func (a *App) Checkpoints() *checkpoint.FileStore {
	return a.store
}

// Tables returns the table provisioner
func (a *App) Tables() *database.TableProvisioner {
	return a.tables
}

// MySQL returns the MySQL client
func (a *App) MySQL() *database.MySQLClient {
	return a.mysqlDB
}

// NewDriver builds an ingestion driver over [start, end]
func (a *App) NewDriver(start, end time.Time) (*ingest.Driver, error) {
	if a.mysqlDB == nil {
		return nil, fmt.Errorf("%w: storage not initialized", ingest.ErrInvalidOptions)
	}

	fetcher := exchange.NewDukascopyClient(&a.cfg.Provider, a.catalog, a.logger)

	var observers []ingest.Observer
	if a.natsClient != nil {
		observers = append(observers, a.natsClient)
	}
	if a.influxDB != nil {
		observers = append(observers, a.influxDB)
	}
	if a.redisCache != nil {
		observers = append(observers, a.redisCache)
	}

	return ingest.NewDriver(ingest.Options{
		Start:     start,
		End:       end,
		Catalog:   a.catalog,
		UnitPause: a.cfg.Ingest.UnitPause,
	}, a.store, a.tables, fetcher, a.writer, a.logger, observers...)
}

// NewDashboard builds the read-only dashboard server
func (a *App) NewDashboard() *api.Server {
	var progressCache services.ProgressCache
	if a.redisCache != nil {
		progressCache = a.redisCache
	}

	progress := services.NewProgressService(a.catalog, &a.cfg.Ingest, a.mysqlDB, a.store, progressCache, a.logger)

	health := map[string]api.HealthChecker{"mysql": a.mysqlDB}
	health["redis"] = nil
	if a.redisCache != nil {
		health["redis"] = a.redisCache
	}
	health["nats"] = nil
	if a.natsClient != nil {
		health["nats"] = a.natsClient
	}
	health["influxdb"] = nil
	if a.influxDB != nil {
		health["influxdb"] = a.influxDB
	}

	return api.NewServer(a.cfg, a.logger, api.Dependencies{
		Catalog:     a.catalog,
		Checkpoints: a.store,
		Progress:    progress,
		Health:      health,
	})
}

// Close closes every open connection
func (a *App) Close() error {
	var errs []error

	if a.natsClient != nil {
		if err := a.natsClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("nats: %w", err))
		}
	}
	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if a.influxDB != nil {
		a.influxDB.Close()
	}
	if a.mysqlDB != nil {
		if err := a.mysqlDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mysql: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing connections: %v", errs)
	}
	return nil
}

func (a *App) initializeDatabase() error {
	mysqlDB, err := database.NewMySQLClient(&a.cfg.MySQL, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	a.mysqlDB = mysqlDB
	a.tables = database.NewTableProvisioner(mysqlDB.DB(), a.logger)
	a.writer = database.NewTickWriter(mysqlDB.DB(), a.tables, a.cfg.Ingest.ChunkSize, a.logger)
	return nil
}

func (a *App) initializeCache() {
	if a.cfg.Redis.Host == "" {
		a.logger.Debug("Redis not configured, progress is computed on every request")
		return
	}

	redisCache, err := cache.NewRedisClient(&a.cfg.Redis, a.logger)
	if err != nil {
		a.logger.WithError(err).Warn("Redis unavailable, continuing without progress cache")
		return
	}
	a.redisCache = redisCache
}

func (a *App) initializeMessaging() {
	if a.cfg.NATS.URL == "" {
		a.logger.Debug("NATS not configured, unit events are not published")
		return
	}

	natsClient, err := messaging.NewNATSClient(&a.cfg.NATS, a.logger)
	if err != nil {
		a.logger.WithError(err).Warn("NATS unavailable, continuing without unit events")
		return
	}
	a.natsClient = natsClient
}

func (a *App) initializeMetrics() {
	if a.cfg.InfluxDB.URL == "" {
		a.logger.Debug("InfluxDB not configured, unit metrics are not recorded")
		return
	}

	influxDB := database.NewInfluxClient(&a.cfg.InfluxDB, a.logger)
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.InfluxDB.Timeout)
	defer cancel()
	if err := influxDB.Health(ctx); err != nil {
		a.logger.WithError(err).Warn("InfluxDB unavailable, continuing without unit metrics")
		influxDB.Close()
		return
	}
	a.influxDB = influxDB
}
