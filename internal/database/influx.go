package database

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
	"github.com/tick-archive/pkg/config"
	"github.com/tick-archive/pkg/models"
)

// unitMeasurement holds one point per finished unit of work
const unitMeasurement = "ingest_units"

// InfluxClient records ingestion unit metrics in InfluxDB
type InfluxClient struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *logrus.Entry
	cfg      *config.InfluxConfig
}

// NewInfluxClient creates a new InfluxDB client
func NewInfluxClient(cfg *config.InfluxConfig, logger *logrus.Logger) *InfluxClient {
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetHTTPRequestTimeout(uint(cfg.Timeout.Seconds())).
			SetLogLevel(0),
	)

	return &InfluxClient{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger:   logger.WithField("component", "influxdb"),
		cfg:      cfg,
	}
}

// Close closes the InfluxDB client
func (ic *InfluxClient) Close() {
	ic.client.Close()
}

// Health checks InfluxDB health
func (ic *InfluxClient) Health(ctx context.Context) error {
	health, err := ic.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influxdb health check failed: %s", msg)
	}

	return nil
}

// UnitCompleted writes a unit-of-work point. Failures are logged only.
func (ic *InfluxClient) UnitCompleted(ctx context.Context, event models.UnitEvent) {
	if err := ic.writeAPI.WritePoint(ctx, UnitPoint(event)); err != nil {
		ic.logger.WithError(err).WithField("symbol", event.Symbol).Warn("Failed to write unit metrics")
	}
}

// UnitPoint converts a unit event into an InfluxDB point
func UnitPoint(event models.UnitEvent) *write.Point {
	fields := map[string]interface{}{
		"records":     event.Records,
		"duration_ms": event.Duration.Milliseconds(),
		"date":        event.Date.Format(config.DateLayout),
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}

	return influxdb2.NewPoint(
		unitMeasurement,
		map[string]string{
			"symbol":  event.Symbol,
			"outcome": string(event.Outcome),
		},
		fields,
		event.FinishedAt,
	)
}
