// Package analyze compares a fresh snapshot against stored history over
// configured lookback windows, filters to significant changes, and renders
// a compact narrative for the audit classifier.
package analyze

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/vigil-agent/vigil/internal/metrics"
	"github.com/vigil-agent/vigil/internal/store"
)

// DefaultTolerance bounds how far a historical sample may sit from the
// lookback target and still count as a baseline.
const DefaultTolerance = 5 * time.Minute

// Config holds analyzer configuration.
type Config struct {
	// Windows are the lookback durations to compare against (e.g. 5m, 30m).
	Windows []time.Duration

	// ThresholdPercent is the minimum |percentage diff| considered
	// significant.
	ThresholdPercent float64

	// Tolerance for nearest-sample lookup. Zero means DefaultTolerance.
	Tolerance time.Duration
}

// Analyzer derives significance-filtered changes from {snapshot, history}.
type Analyzer struct {
	store     *store.Store
	windows   []time.Duration
	threshold float64
	tolerance time.Duration
	logger    *zap.Logger
}

// Report is the analyzer's output for one cycle.
type Report struct {
	// Changes are the significant changes across all lookback windows.
	Changes []metrics.MetricChange

	// Narrative is the compact human/LLM-readable rendering of the
	// snapshot with change annotations.
	Narrative string
}

// New creates an analyzer reading history from st.
func New(st *store.Store, cfg Config, logger *zap.Logger) (*Analyzer, error) {
	if st == nil {
		return nil, errors.New("store is required")
	}
	if len(cfg.Windows) == 0 {
		return nil, errors.New("at least one lookback window is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	windows := append([]time.Duration(nil), cfg.Windows...)
	sort.Slice(windows, func(i, j int) bool { return windows[i] < windows[j] })

	tolerance := cfg.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	return &Analyzer{
		store:     st,
		windows:   windows,
		threshold: cfg.ThresholdPercent,
		tolerance: tolerance,
		logger:    logger,
	}, nil
}

// PercentageDiff returns the percentage change from historical to current,
// or nil when historical is zero (the ratio is undefined).
func PercentageDiff(current, historical float64) *float64 {
	if historical == 0 {
		return nil
	}
	d := (current - historical) / historical * 100
	return &d
}

// FilterSignificant keeps changes whose diff is defined and at least
// thresholdPercent in magnitude.
func FilterSignificant(changes []metrics.MetricChange, thresholdPercent float64) []metrics.MetricChange {
	var kept []metrics.MetricChange
	for _, c := range changes {
		if c.Diff == nil {
			continue
		}
		if math.Abs(*c.Diff) >= thresholdPercent {
			kept = append(kept, c)
		}
	}
	return kept
}

// Analyze compares the snapshot against stored history as of now and
// renders the narrative. The snapshot is expected to already be persisted,
// so current readings resolve against a consistent store.
func (a *Analyzer) Analyze(snapshot metrics.Snapshot, now time.Time) (*Report, error) {
	var changes []metrics.MetricChange

	for _, v := range snapshot {
		for _, window := range a.windows {
			hist, ok, err := a.store.FindNearest(v.Name, now.Add(-window), a.tolerance)
			if err != nil {
				return nil, fmt.Errorf("looking up history for %q: %w", v.Name, err)
			}
			if !ok {
				continue
			}
			diff := PercentageDiff(v.Value, hist.Value)
			if diff == nil {
				continue
			}
			changes = append(changes, metrics.MetricChange{
				Name:         v.Name,
				Diff:         diff,
				Current:      v.Value,
				Historical:   hist.Value,
				HistoricalTS: hist.Timestamp,
			})
		}
	}

	significant := FilterSignificant(changes, a.threshold)
	a.logger.Debug("analyzed snapshot",
		zap.Int("metrics", len(snapshot)),
		zap.Int("changes", len(changes)),
		zap.Int("significant", len(significant)))

	return &Report{
		Changes:   significant,
		Narrative: renderNarrative(snapshot, significant, now),
	}, nil
}

// renderNarrative emits one line per current reading, annotated with the
// metric's significant changes in ascending window order. Changes arrive
// ordered that way because Analyze walks windows ascending per metric.
func renderNarrative(snapshot metrics.Snapshot, significant []metrics.MetricChange, now time.Time) string {
	byName := make(map[string][]metrics.MetricChange, len(significant))
	for _, c := range significant {
		byName[c.Name] = append(byName[c.Name], c)
	}

	var b strings.Builder
	for _, v := range snapshot {
		b.WriteString(v.Name)
		b.WriteString(": ")
		b.WriteString(formatValue(v.Value))
		b.WriteString(v.Unit)

		if matched := byName[v.Name]; len(matched) > 0 {
			var clauses []string
			for _, c := range matched {
				minutes := int(math.Round(now.Sub(c.HistoricalTS).Minutes()))
				clauses = append(clauses, fmt.Sprintf("%s from %d min ago", FormatDiff(c.Diff), minutes))
			}
			b.WriteString(" (")
			b.WriteString(strings.Join(clauses, ", "))
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatDiff renders a percentage diff with explicit sign and two decimals.
// Non-finite diffs render as signed infinity; nil renders empty.
func FormatDiff(diff *float64) string {
	if diff == nil {
		return ""
	}
	if math.IsInf(*diff, 1) {
		return "+∞%"
	}
	if math.IsInf(*diff, -1) {
		return "-∞%"
	}
	return fmt.Sprintf("%+.2f%%", *diff)
}

// formatValue renders a reading without trailing zeros (75 not 75.000000).
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
