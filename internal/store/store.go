// Package store persists the metric time series as an append-only
// newline-delimited JSON file and supports tolerance-based nearest-time
// lookup plus age-based pruning.
package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/vigil-agent/vigil/internal/metrics"
)

// Store is a minimal append-only time series backed by one NDJSON file.
//
// The store itself does no locking: the scheduler's singleflight discipline
// guarantees a single writer and no reader/writer overlap.
type Store struct {
	path   string
	logger *zap.Logger
}

// New creates a store over the given file path. The file is created lazily
// on first write; a missing file reads as an empty store.
func New(path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("store path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}, nil
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Append writes each reading in the batch as one JSON line. An empty batch
// is a no-op. The parent directory is created on first write.
func (s *Store) Append(batch []metrics.MetricValue) error {
	if len(batch) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening metrics file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, v := range batch {
		line, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encoding metric %q: %w", v.Name, err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("writing metric %q: %w", v.Name, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing metrics file: %w", err)
	}
	return nil
}

// All loads every record in write order. A missing file is an empty store.
// Lines that fail to parse are skipped with a warning so that partial
// corruption degrades the history instead of disabling it.
func (s *Store) All() ([]metrics.MetricValue, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening metrics file: %w", err)
	}
	defer f.Close()

	var records []metrics.MetricValue
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var v metrics.MetricValue
		if err := json.Unmarshal(line, &v); err != nil {
			s.logger.Warn("skipping corrupt metrics record",
				zap.Int("line", lineNo),
				zap.Error(err))
			continue
		}
		records = append(records, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading metrics file: %w", err)
	}
	return records, nil
}

// FindNearest returns the record named name whose timestamp is closest to
// target, provided the distance is within tolerance. Ties are broken toward
// the most recently written candidate. A miss is a normal outcome (no
// history yet), reported via the bool, not an error.
func (s *Store) FindNearest(name string, target time.Time, tolerance time.Duration) (*metrics.MetricValue, bool, error) {
	records, err := s.All()
	if err != nil {
		return nil, false, err
	}

	var best *metrics.MetricValue
	var bestDist time.Duration
	for i := range records {
		v := records[i]
		if v.Name != name {
			continue
		}
		dist := v.Timestamp.Sub(target)
		if dist < 0 {
			dist = -dist
		}
		if best == nil || dist <= bestDist {
			best = &records[i]
			bestDist = dist
		}
	}

	if best == nil || bestDist > tolerance {
		return nil, false, nil
	}
	return best, true, nil
}

// Prune keeps only records with timestamp >= cutoff. When nothing would be
// removed the file is left untouched, so a repeated call with the same
// cutoff is a no-op. The rewrite goes through a temp file and rename.
func (s *Store) Prune(cutoff time.Time) error {
	records, err := s.All()
	if err != nil {
		return err
	}

	kept := records[:0:0]
	for _, v := range records {
		if !v.Timestamp.Before(cutoff) {
			kept = append(kept, v)
		}
	}
	if len(kept) == len(records) {
		return nil
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("opening temp metrics file: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, v := range kept {
		line, err := json.Marshal(v)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("encoding metric %q: %w", v.Name, err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("rewriting metrics file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flushing temp metrics file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp metrics file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing metrics file: %w", err)
	}

	s.logger.Info("pruned metrics history",
		zap.Int("kept", len(kept)),
		zap.Int("removed", len(records)-len(kept)),
		zap.Time("cutoff", cutoff))
	return nil
}
