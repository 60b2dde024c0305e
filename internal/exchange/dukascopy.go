package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/tick-archive/internal/symbols"
	"github.com/tick-archive/pkg/config"
	"github.com/tick-archive/pkg/models"
	"golang.org/x/sync/errgroup"
)

// errNoData marks an hour the datafeed has no file for
var errNoData = errors.New("no data for hour")

// DukascopyClient fetches historical ticks from the Dukascopy datafeed.
// One bi5 file covers one instrument-hour.
type DukascopyClient struct {
	client     *http.Client
	baseURL    string
	userAgent  string
	batchSize  int
	batchPause time.Duration
	retryCount int
	retryPause time.Duration
	catalog    *symbols.Catalog
	logger     *logrus.Entry
}

// NewDukascopyClient creates a new datafeed client. The catalog supplies
// price scales; symbols outside it are classified on the fly.
func NewDukascopyClient(cfg *config.ProviderConfig, catalog *symbols.Catalog, logger *logrus.Logger) *DukascopyClient {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	return &DukascopyClient{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		batchSize:  batchSize,
		batchPause: cfg.BatchPause,
		retryCount: cfg.RetryCount,
		retryPause: cfg.RetryPause,
		catalog:    catalog,
		logger:     logger.WithField("component", "dukascopy"),
	}
}

// Fetch returns the ticks of symbol in [from, to), ordered by timestamp.
// Zero records is not an error.
func (d *DukascopyClient) Fetch(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error) {
	if !to.After(from) {
		return nil, nil
	}

	pointValue := d.pointValue(symbol)
	hours := hourRange(from, to)
	results := make([][]models.Tick, len(hours))

	for start := 0; start < len(hours); start += d.batchSize {
		end := start + d.batchSize
		if end > len(hours) {
			end = len(hours)
		}

		if start > 0 && d.batchPause > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(d.batchPause):
			}
		}

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				ticks, err := d.fetchHourWithRetry(gctx, symbol, hours[i], pointValue)
				if err != nil {
					return fmt.Errorf("%s %s: %w", symbol, hours[i].Format("2006-01-02T15h"), err)
				}
				results[i] = ticks
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	fromMs, toMs := from.UnixMilli(), to.UnixMilli()
	var ticks []models.Tick
	for _, hour := range results {
		for _, t := range hour {
			if t.Timestamp >= fromMs && t.Timestamp < toMs {
				ticks = append(ticks, t)
			}
		}
	}

	d.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"from":   from.Format(time.RFC3339),
		"to":     to.Format(time.RFC3339),
		"hours":  len(hours),
		"ticks":  len(ticks),
	}).Debug("Fetched ticks")

	return ticks, nil
}

// HourURL returns the bi5 location of one instrument-hour. Months are zero-based.
func (d *DukascopyClient) HourURL(symbol string, hour time.Time) string {
	hour = hour.UTC()
	return fmt.Sprintf("%s/%s/%04d/%02d/%02d/%02dh_ticks.bi5",
		d.baseURL,
		strings.ToUpper(symbol),
		hour.Year(),
		int(hour.Month())-1,
		hour.Day(),
		hour.Hour(),
	)
}

func (d *DukascopyClient) fetchHourWithRetry(ctx context.Context, symbol string, hour time.Time, pointValue float64) ([]models.Tick, error) {
	var ticks []models.Tick

	operation := func() error {
		payload, err := d.fetchHour(ctx, symbol, hour)
		if errors.Is(err, errNoData) {
			ticks = nil
			return nil
		}
		if err != nil {
			return err
		}

		decoded, err := DecodeBi5(payload, hour, pointValue)
		if err != nil {
			return backoff.Permanent(err)
		}
		ticks = decoded
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(d.retryPause), uint64(max(d.retryCount, 0))),
		ctx,
	)

	notify := func(err error, wait time.Duration) {
		d.logger.WithError(err).WithFields(logrus.Fields{
			"symbol": symbol,
			"hour":   hour.Format(time.RFC3339),
			"wait":   wait,
		}).Debug("Retrying hour fetch")
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}

	return ticks, nil
}

func (d *DukascopyClient) fetchHour(ctx context.Context, symbol string, hour time.Time) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.HourURL(symbol, hour), nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	if d.userAgent != "" {
		req.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNoData
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("datafeed error: status=%d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("datafeed error: status=%d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	if len(body) == 0 {
		return nil, errNoData
	}

	return body, nil
}

func (d *DukascopyClient) pointValue(symbol string) float64 {
	if d.catalog != nil {
		if info, ok := d.catalog.Get(symbol); ok {
			return info.PointValue
		}
	}
	return symbols.PointValue(symbol, symbols.Classify(symbol))
}

// hourRange lists the hour starts overlapping [from, to)
func hourRange(from, to time.Time) []time.Time {
	var hours []time.Time
	for h := from.UTC().Truncate(time.Hour); h.Before(to); h = h.Add(time.Hour) {
		hours = append(hours, h)
	}
	return hours
}
