package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tick-archive/pkg/models"
)

var (
	// ErrNotFound means no checkpoint has been persisted yet
	ErrNotFound = errors.New("checkpoint not found")
	// ErrCorrupt means a checkpoint file exists but cannot be used
	ErrCorrupt = errors.New("checkpoint corrupt")
)

// FileStore persists the checkpoint as a single JSON document.
// Every save overwrites the previous one atomically (temp file + rename).
type FileStore struct {
	path   string
	logger *logrus.Entry
	mu     sync.Mutex
}

// NewFileStore creates a checkpoint store backed by path
func NewFileStore(path string, logger *logrus.Logger) *FileStore {
	return &FileStore{
		path:   path,
		logger: logger.WithField("component", "checkpoint"),
	}
}

// Path returns the checkpoint file location
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the persisted checkpoint. It returns ErrNotFound when no file
// exists and an error wrapping ErrCorrupt when the file cannot be used.
func (s *FileStore) Load(ctx context.Context) (*models.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrCorrupt, s.path, err)
	}

	return Decode(data)
}

// Decode parses a persisted checkpoint document
func Decode(data []byte) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if cp.Date.IsZero() {
		return nil, fmt.Errorf("%w: missing date", ErrCorrupt)
	}

	cp.Date = cp.Date.UTC()
	return &cp, nil
}

// Save overwrites the checkpoint with (date, symbol)
func (s *FileStore) Save(ctx context.Context, date time.Time, symbol string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	cp := models.Checkpoint{
		Date:       date.UTC(),
		LastSymbol: symbol,
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"date":   cp.Date.Format("2006-01-02"),
		"symbol": symbol,
	}).Debug("Checkpoint saved")

	return nil
}
