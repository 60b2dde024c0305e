package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/tick-archive/pkg/config"
	"github.com/tick-archive/pkg/models"
)

// StreamName is the JetStream stream holding unit-of-work events
const StreamName = "INGEST"

// NATSClient publishes ingestion events to NATS
type NATSClient struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	logger  *logrus.Entry
	cfg     *config.NATSConfig
	subject string
}

// NewNATSClient creates a new NATS client
func NewNATSClient(cfg *config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name("tick-archive"),
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	nc := &NATSClient{
		conn:    conn,
		js:      js,
		logger:  logger.WithField("component", "nats"),
		cfg:     cfg,
		subject: strings.TrimSuffix(cfg.Subject, "."),
	}

	if err := nc.initializeStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize stream: %w", err)
	}

	return nc, nil
}

// Close drains and closes the NATS connection
func (nc *NATSClient) Close() error {
	if nc.conn.IsClosed() {
		return nil
	}

	done := make(chan struct{})
	nc.conn.SetClosedHandler(func(*nats.Conn) { close(done) })
	if err := nc.conn.Drain(); err != nil {
		nc.conn.Close()
		return err
	}

	select {
	case <-done:
	case <-time.After(nc.cfg.DrainTimeout):
		nc.conn.Close()
	}
	return nil
}

// IsConnected checks if NATS is connected
func (nc *NATSClient) IsConnected() bool {
	return nc.conn.IsConnected()
}

// Health reports an error when the connection is down
func (nc *NATSClient) Health(ctx context.Context) error {
	if !nc.IsConnected() {
		return fmt.Errorf("nats not connected: %s", nc.conn.Status())
	}
	return nil
}

// initializeStream creates the JetStream stream for unit events
func (nc *NATSClient) initializeStream() error {
	root := nc.subject
	if i := strings.Index(root, "."); i > 0 {
		root = root[:i]
	}

	_, err := nc.js.AddStream(&nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{root + ".>"},
		Storage:  nats.FileStorage,
		MaxAge:   30 * 24 * time.Hour,
		MaxMsgs:  1000000,
		Replicas: 1,
	})
	if err != nil && err != nats.ErrStreamNameAlreadyInUse {
		return fmt.Errorf("failed to create %s stream: %w", StreamName, err)
	}

	return nil
}

// PublishUnit publishes a finished unit of work on <subject>.<symbol>
func (nc *NATSClient) PublishUnit(ctx context.Context, event models.UnitEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal unit event: %w", err)
	}

	if _, err := nc.js.Publish(UnitSubject(nc.subject, event.Symbol), data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish unit event: %w", err)
	}

	return nil
}

// UnitCompleted publishes the event. Failures are logged only.
func (nc *NATSClient) UnitCompleted(ctx context.Context, event models.UnitEvent) {
	if err := nc.PublishUnit(ctx, event); err != nil {
		nc.logger.WithError(err).WithField("symbol", event.Symbol).Warn("Failed to publish unit event")
	}
}

// UnitSubject returns the subject a unit event for symbol is published on
func UnitSubject(base, symbol string) string {
	return fmt.Sprintf("%s.%s", strings.TrimSuffix(base, "."), symbol)
}
