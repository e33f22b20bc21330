package analyze

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vigil-agent/vigil/internal/metrics"
	"github.com/vigil-agent/vigil/internal/store"
)

func floatPtr(f float64) *float64 { return &f }

func TestPercentageDiff(t *testing.T) {
	tests := []struct {
		name       string
		current    float64
		historical float64
		want       *float64
	}{
		{name: "increase", current: 75, historical: 50, want: floatPtr(50)},
		{name: "decrease", current: 25, historical: 50, want: floatPtr(-50)},
		{name: "unchanged", current: 50, historical: 50, want: floatPtr(0)},
		{name: "zero historical is undefined", current: 10, historical: 0, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PercentageDiff(tt.current, tt.historical)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, *tt.want, *got, 1e-9)
		})
	}
}

func TestFilterSignificant(t *testing.T) {
	changes := []metrics.MetricChange{
		{Name: "a", Diff: floatPtr(5)},
		{Name: "b", Diff: floatPtr(25)},
		{Name: "c", Diff: floatPtr(-15)},
		{Name: "d", Diff: nil},
	}

	kept := FilterSignificant(changes, 10)
	require.Len(t, kept, 2)
	assert.Equal(t, "b", kept[0].Name)
	assert.Equal(t, "c", kept[1].Name)
}

func TestFormatDiff(t *testing.T) {
	assert.Equal(t, "+50.00%", FormatDiff(floatPtr(50)))
	assert.Equal(t, "-25.00%", FormatDiff(floatPtr(-25)))
	assert.Equal(t, "+0.00%", FormatDiff(floatPtr(0)))
	assert.Equal(t, "+∞%", FormatDiff(floatPtr(math.Inf(1))))
	assert.Equal(t, "-∞%", FormatDiff(floatPtr(math.Inf(-1))))
	assert.Equal(t, "", FormatDiff(nil))
}

func newAnalyzerWithStore(t *testing.T, cfg Config) (*Analyzer, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "metrics.ndjson"), zap.NewNop())
	require.NoError(t, err)
	a, err := New(st, cfg, zap.NewNop())
	require.NoError(t, err)
	return a, st
}

func TestAnalyzeNarrativeWithSignificantChange(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	a, st := newAnalyzerWithStore(t, Config{
		Windows:          []time.Duration{5 * time.Minute, 30 * time.Minute},
		ThresholdPercent: 25,
	})

	// Baseline five minutes back, plus the current reading already stored.
	require.NoError(t, st.Append([]metrics.MetricValue{
		{Name: "cpu_usage_percent", Value: 50, Unit: "%", Timestamp: now.Add(-5 * time.Minute)},
		{Name: "cpu_usage_percent", Value: 75, Unit: "%", Timestamp: now},
	}))

	snapshot := metrics.Snapshot{
		{Name: "cpu_usage_percent", Value: 75, Unit: "%", Timestamp: now},
	}

	report, err := a.Analyze(snapshot, now)
	require.NoError(t, err)
	require.Len(t, report.Changes, 1)
	assert.Contains(t, report.Narrative, "cpu_usage_percent: 75% (+50.00% from 5 min ago)")
}

func TestAnalyzeNoHistoryProducesPlainNarrative(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	a, st := newAnalyzerWithStore(t, Config{
		Windows:          []time.Duration{5 * time.Minute},
		ThresholdPercent: 25,
	})

	require.NoError(t, st.Append([]metrics.MetricValue{
		{Name: "mem_used_percent", Value: 40.5, Unit: "%", Timestamp: now},
	}))

	report, err := a.Analyze(metrics.Snapshot{
		{Name: "mem_used_percent", Value: 40.5, Unit: "%", Timestamp: now},
	}, now)
	require.NoError(t, err)
	assert.Empty(t, report.Changes)
	assert.Equal(t, "mem_used_percent: 40.5%\n", report.Narrative)
}

func TestAnalyzeInsignificantChangeIsUnannotated(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	a, st := newAnalyzerWithStore(t, Config{
		Windows:          []time.Duration{5 * time.Minute},
		ThresholdPercent: 25,
	})

	require.NoError(t, st.Append([]metrics.MetricValue{
		{Name: "load_1min", Value: 1.0, Timestamp: now.Add(-5 * time.Minute)},
		{Name: "load_1min", Value: 1.1, Timestamp: now},
	}))

	report, err := a.Analyze(metrics.Snapshot{
		{Name: "load_1min", Value: 1.1, Timestamp: now},
	}, now)
	require.NoError(t, err)
	assert.Empty(t, report.Changes)
	assert.Equal(t, "load_1min: 1.1\n", report.Narrative)
}

func TestAnalyzeMultipleWindowsAscendingOrder(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	// Windows deliberately passed out of order; New sorts ascending.
	a, st := newAnalyzerWithStore(t, Config{
		Windows:          []time.Duration{30 * time.Minute, 5 * time.Minute},
		ThresholdPercent: 10,
	})

	require.NoError(t, st.Append([]metrics.MetricValue{
		{Name: "cpu_usage_percent", Value: 60, Unit: "%", Timestamp: now.Add(-30 * time.Minute)},
		{Name: "cpu_usage_percent", Value: 50, Unit: "%", Timestamp: now.Add(-5 * time.Minute)},
		{Name: "cpu_usage_percent", Value: 75, Unit: "%", Timestamp: now},
	}))

	report, err := a.Analyze(metrics.Snapshot{
		{Name: "cpu_usage_percent", Value: 75, Unit: "%", Timestamp: now},
	}, now)
	require.NoError(t, err)
	require.Len(t, report.Changes, 2)
	assert.Contains(t, report.Narrative,
		"cpu_usage_percent: 75% (+50.00% from 5 min ago, +25.00% from 30 min ago)")
}

func TestAnalyzeZeroBaselineYieldsNoChange(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	a, st := newAnalyzerWithStore(t, Config{
		Windows:          []time.Duration{5 * time.Minute},
		ThresholdPercent: 10,
	})

	require.NoError(t, st.Append([]metrics.MetricValue{
		{Name: "swap_used_percent", Value: 0, Unit: "%", Timestamp: now.Add(-5 * time.Minute)},
		{Name: "swap_used_percent", Value: 3, Unit: "%", Timestamp: now},
	}))

	report, err := a.Analyze(metrics.Snapshot{
		{Name: "swap_used_percent", Value: 3, Unit: "%", Timestamp: now},
	}, now)
	require.NoError(t, err)
	assert.Empty(t, report.Changes)
}
