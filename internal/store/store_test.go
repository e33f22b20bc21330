package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vigil-agent/vigil/internal/metrics"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "metrics.ndjson"), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New("", zap.NewNop())
	assert.Error(t, err)
}

func TestAppendFindNearestRoundTrip(t *testing.T) {
	s := newTestStore(t)

	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	v := metrics.MetricValue{Name: "cpu_usage_percent", Value: 75, Unit: "%", Timestamp: ts}
	require.NoError(t, s.Append([]metrics.MetricValue{v}))

	got, ok, err := s.FindNearest("cpu_usage_percent", ts, 0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, v.Name, got.Name)
	assert.Equal(t, v.Value, got.Value)
	assert.True(t, got.Timestamp.Equal(ts))
}

func TestAppendEmptyBatchDoesNotCreateFile(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Append(nil))

	_, err := os.Stat(s.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestAllMissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)
	records, err := s.All()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestAllSkipsCorruptLines(t *testing.T) {
	s := newTestStore(t)
	ts := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, s.Append([]metrics.MetricValue{
		{Name: "mem_used_percent", Value: 40, Unit: "%", Timestamp: ts},
	}))

	// Inject a corrupt line between two valid ones.
	f, err := os.OpenFile(s.Path(), os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, s.Append([]metrics.MetricValue{
		{Name: "mem_used_percent", Value: 41, Unit: "%", Timestamp: ts.Add(time.Minute)},
	}))

	records, err := s.All()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestFindNearestToleranceAndTies(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Append([]metrics.MetricValue{
		{Name: "load_1min", Value: 1.0, Timestamp: base.Add(-time.Minute)},
		{Name: "load_1min", Value: 2.0, Timestamp: base.Add(time.Minute)},
		{Name: "load_5min", Value: 9.0, Timestamp: base},
	}))

	// Equidistant candidates: the most recently written one wins.
	got, ok, err := s.FindNearest("load_1min", base, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2.0, got.Value)

	// Outside tolerance is a miss, not an error.
	_, ok, err = s.FindNearest("load_1min", base, 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	// Name filter applies before distance.
	got, ok, err = s.FindNearest("load_5min", base, time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 9.0, got.Value)

	// Unknown name is a miss.
	_, ok, err = s.FindNearest("disk_used_percent", base, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPruneKeepsRecentAndIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.Append([]metrics.MetricValue{
		{Name: "old", Value: 1, Timestamp: now.Add(-48 * time.Hour)},
		{Name: "recent", Value: 2, Timestamp: now},
	}))

	cutoff := now.Add(-24 * time.Hour)
	require.NoError(t, s.Prune(cutoff))

	records, err := s.All()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "recent", records[0].Name)

	// Backdate the file's mtime; a second prune with the same cutoff must
	// not rewrite it.
	past := now.Add(-time.Hour)
	require.NoError(t, os.Chtimes(s.Path(), past, past))
	require.NoError(t, s.Prune(cutoff))

	info, err := os.Stat(s.Path())
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(past), "second prune should not rewrite the file")
}

func TestPruneMissingFileIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Prune(time.Now()))
}
