package logger

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const runFileSuffix = ".log"

// FileHook is a logrus hook appending every entry as a JSON line to one file per run
type FileHook struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	formatter logrus.Formatter
}

// NewFileHook creates <dir>/<run>-YYYYMMDD-HHMMSS.log
func NewFileHook(dir, run string, started time.Time) (*FileHook, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := fmt.Sprintf("%s-%s%s", run, started.UTC().Format("20060102-150405"), runFileSuffix)
	path := filepath.Join(dir, name)

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	return &FileHook{
		file: file,
		path: path,
		formatter: &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		},
	}, nil
}

// Path returns the file the hook writes to
func (h *FileHook) Path() string {
	return h.path
}

// Levels implements logrus.Hook
func (h *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook
func (h *FileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	_, err = h.file.Write(line)
	return err
}

// Close closes the log file. Later entries are dropped.
func (h *FileHook) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	return err
}

// runFiles lists run log files in dir, oldest first. A non-empty run keeps
// only the files that run created.
func runFiles(dir, run string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	type runFile struct {
		path    string
		modTime time.Time
	}
	var files []runFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), runFileSuffix) {
			continue
		}
		if run != "" && !strings.HasPrefix(e.Name(), run+"-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, runFile{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime.Equal(files[j].modTime) {
			return files[i].path < files[j].path
		}
		return files[i].modTime.Before(files[j].modTime)
	})

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// PruneRuns deletes the oldest run files so that at most keep remain
func PruneRuns(dir string, keep int) error {
	if keep < 0 {
		keep = 0
	}

	files, err := runFiles(dir, "")
	if err != nil {
		return err
	}

	var errs []error
	for len(files) > keep {
		if err := os.Remove(files[0]); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
		files = files[1:]
	}
	return errors.Join(errs...)
}

// LatestFile returns the most recently written file of run in dir.
// It returns fs.ErrNotExist when there is none.
func LatestFile(dir, run string) (string, error) {
	files, err := runFiles(dir, run)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fs.ErrNotExist
	}
	return files[len(files)-1], nil
}

// Tail returns the last n lines of the file at path
func Tail(path string, n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	start := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) < n {
			ring = append(ring, scanner.Text())
			continue
		}
		ring[start] = scanner.Text()
		start = (start + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return append(ring[start:], ring[:start]...), nil
}
