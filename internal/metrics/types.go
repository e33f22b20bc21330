// Package metrics defines the core data model for the monitoring pipeline:
// timestamped readings, derived changes, and per-cycle snapshots.
package metrics

import "time"

// MetricValue is a single timestamped reading from a collector.
// Values are immutable once created; the store only ever appends them.
type MetricValue struct {
	// Name is a free-form identifier, e.g. "cpu_usage_percent".
	// The same name recurs across time.
	Name string `json:"name"`

	// Value is the numeric reading.
	Value float64 `json:"value"`

	// Unit is a display suffix, e.g. "%", "MB", "". Not interpreted.
	Unit string `json:"unit"`

	// Timestamp is when the reading was taken.
	Timestamp time.Time `json:"ts"`
}

// MetricChange describes how a metric moved relative to a historical sample
// of the same name. Derived during analysis, never persisted.
type MetricChange struct {
	Name string

	// Diff is the percentage change from Historical to Current.
	// Nil exactly when Historical == 0 (ratio undefined).
	Diff *float64

	Current    float64
	Historical float64

	// HistoricalTS is the timestamp of the historical sample used.
	HistoricalTS time.Time
}

// Snapshot is the ordered list of readings produced by one collection cycle.
type Snapshot []MetricValue

// Timestamp returns the snapshot's implicit cycle timestamp: the timestamp
// of its first reading, or now for an empty snapshot.
func (s Snapshot) Timestamp() time.Time {
	if len(s) == 0 {
		return time.Now()
	}
	return s[0].Timestamp
}

// Names returns the distinct metric names in snapshot order.
func (s Snapshot) Names() []string {
	seen := make(map[string]bool, len(s))
	var names []string
	for _, v := range s {
		if !seen[v.Name] {
			seen[v.Name] = true
			names = append(names, v.Name)
		}
	}
	return names
}
