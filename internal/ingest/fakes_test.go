package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tick-archive/internal/checkpoint"
	"github.com/tick-archive/pkg/models"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func mustDay(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

type memStore struct {
	mu        sync.Mutex
	cp        *models.Checkpoint
	loadErr   error
	failSaves int
	saves     []models.Checkpoint
}

func (s *memStore) Load(ctx context.Context) (*models.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if s.cp == nil {
		return nil, checkpoint.ErrNotFound
	}
	cp := *s.cp
	return &cp, nil
}

func (s *memStore) Save(ctx context.Context, d time.Time, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSaves > 0 {
		s.failSaves--
		return errors.New("disk full")
	}
	cp := models.Checkpoint{Date: d, LastSymbol: symbol}
	s.cp = &cp
	s.saves = append(s.saves, cp)
	return nil
}

type memTables struct {
	mu     sync.Mutex
	rows   map[string]map[int64]models.Tick
	ensure map[string]error
}

func newMemTables() *memTables {
	return &memTables{rows: map[string]map[int64]models.Tick{}, ensure: map[string]error{}}
}

func (m *memTables) Ensure(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensure[symbol]; err != nil {
		return err
	}
	if _, ok := m.rows[symbol]; !ok {
		m.rows[symbol] = map[int64]models.Tick{}
	}
	return nil
}

func (m *memTables) exists(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rows[symbol]
	return ok
}

func (m *memTables) count(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows[symbol])
}

// memWriter upserts into memTables; fail selects units whose write errors
type memWriter struct {
	tables *memTables
	fail   func(symbol string, ticks []models.Tick) bool
	calls  int
}

func (w *memWriter) Write(ctx context.Context, symbol string, ticks []models.Tick) error {
	w.calls++
	if len(ticks) == 0 {
		return nil
	}
	if w.fail != nil && w.fail(symbol, ticks) {
		return errors.New("deadlock found")
	}
	if err := w.tables.Ensure(ctx, symbol); err != nil {
		return err
	}
	w.tables.mu.Lock()
	defer w.tables.mu.Unlock()
	for _, t := range ticks {
		w.tables.rows[symbol][t.Timestamp] = t
	}
	return nil
}

type fetchFunc func(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error)

func (f fetchFunc) Fetch(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error) {
	return f(ctx, symbol, from, to)
}

// ticksPer returns n ticks per (symbol, day) spaced one second apart
func ticksPer(n map[string]int) fetchFunc {
	return func(ctx context.Context, symbol string, from, to time.Time) ([]models.Tick, error) {
		ticks := make([]models.Tick, 0, n[symbol])
		for i := 0; i < n[symbol]; i++ {
			ts := from.Add(time.Duration(i) * time.Second).UnixMilli()
			ticks = append(ticks, models.Tick{Timestamp: ts, BidPrice: 1.1, AskPrice: 1.2, BidVolume: 1, AskVolume: 1})
		}
		return ticks, nil
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	events []models.UnitEvent
}

func (o *recordingObserver) UnitCompleted(ctx context.Context, event models.UnitEvent) {
	o.mu.Lock()
	o.events = append(o.events, event)
	o.mu.Unlock()
}
