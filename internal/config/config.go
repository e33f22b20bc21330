// Package config loads the monitor's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface of the monitor.
type Config struct {
	// IntervalHours is the base spacing between health cycles.
	IntervalHours float64 `yaml:"interval_hours"`

	// JitterMinutes spreads cycles by ±uniform(jitter) so the monitor
	// does not tick in lockstep with cron jobs on the same box.
	JitterMinutes int `yaml:"jitter_minutes"`

	// HistoryHours is the retention horizon for the metric time series.
	HistoryHours int `yaml:"history_hours"`

	// ChangeThresholdPercent is the minimum |percentage change| treated
	// as significant by the analyzer.
	ChangeThresholdPercent float64 `yaml:"change_threshold_percent"`

	// ComparisonMinutes are the lookback windows, in minutes.
	ComparisonMinutes []int `yaml:"comparison_minutes"`

	// SensitiveCollectionDelay is the settle time before each sensitive
	// collector runs (duration string, e.g. "2s").
	SensitiveCollectionDelay string `yaml:"sensitive_collection_delay"`

	// ToleranceMinutes bounds nearest-sample lookup distance.
	ToleranceMinutes int `yaml:"tolerance_minutes"`

	// StageTimeout bounds each pipeline stage (collect, audit, diagnose,
	// notify) so a stuck external call cannot stall the scheduler.
	StageTimeout string `yaml:"stage_timeout"`

	// CollectorTimeout bounds one collector invocation.
	CollectorTimeout string `yaml:"collector_timeout"`

	// DataDir is where the metrics file and history database live unless
	// overridden by absolute paths below.
	DataDir     string `yaml:"data_dir"`
	MetricsFile string `yaml:"metrics_file"`
	HistoryDB   string `yaml:"history_db"`

	// DiskMounts lists the mount points the disk collector samples.
	DiskMounts []string `yaml:"disk_mounts"`

	Notify NotifyConfig `yaml:"notify"`
	AI     AIConfig     `yaml:"ai"`

	// Probes are read-only diagnostic commands run before the diagnose
	// pass. Empty means the stock roster.
	Probes []ProbeConfig `yaml:"probes"`

	// CommandProbes are extra shell metric collectors (regular phase).
	CommandProbes []CommandProbeConfig `yaml:"command_probes"`
}

// NotifyConfig configures alert delivery.
type NotifyConfig struct {
	// Command is the delivery command; empty means print to stdout.
	Command     string `yaml:"command"`
	Destination string `yaml:"destination"`

	// MaxPerHour caps deliveries; 0 disables the limiter.
	MaxPerHour int `yaml:"max_per_hour"`
}

// AIConfig configures the two classification stages.
type AIConfig struct {
	AuditModel    string `yaml:"audit_model"`
	DiagnoseModel string `yaml:"diagnose_model"`
	MaxTokens     int    `yaml:"max_tokens"`
}

// ProbeConfig is one read-only diagnostic command.
type ProbeConfig struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
}

// CommandProbeConfig is one shell metric collector.
type CommandProbeConfig struct {
	Name    string `yaml:"name"`
	Unit    string `yaml:"unit"`
	Command string `yaml:"command"`
}

// Default returns the stock configuration for a single home server.
func Default() *Config {
	return &Config{
		IntervalHours:            6,
		JitterMinutes:            20,
		HistoryHours:             48,
		ChangeThresholdPercent:   25,
		ComparisonMinutes:        []int{5, 30},
		SensitiveCollectionDelay: "2s",
		ToleranceMinutes:         5,
		StageTimeout:             "2m",
		CollectorTimeout:         "30s",
		DataDir:                  defaultDataDir(),
		MetricsFile:              "metrics.ndjson",
		HistoryDB:                "history.db",
		DiskMounts:               []string{"/"},
		Notify: NotifyConfig{
			Destination: "operator",
			MaxPerHour:  4,
		},
		AI: AIConfig{MaxTokens: 2048},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vigil"
	}
	return filepath.Join(home, ".vigil")
}

// Load reads the YAML file at path over the defaults. A missing file yields
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.IntervalHours <= 0 {
		return fmt.Errorf("interval_hours must be positive, got %v", c.IntervalHours)
	}
	if c.HistoryHours <= 0 {
		return fmt.Errorf("history_hours must be positive, got %d", c.HistoryHours)
	}
	if len(c.ComparisonMinutes) == 0 {
		return fmt.Errorf("comparison_minutes must list at least one window")
	}
	for _, m := range c.ComparisonMinutes {
		if m <= 0 {
			return fmt.Errorf("comparison_minutes entries must be positive, got %d", m)
		}
	}
	for _, field := range []struct{ name, value string }{
		{"sensitive_collection_delay", c.SensitiveCollectionDelay},
		{"stage_timeout", c.StageTimeout},
		{"collector_timeout", c.CollectorTimeout},
	} {
		if field.value == "" {
			continue
		}
		if _, err := parseDuration(field.value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", field.name, field.value, err)
		}
	}
	return nil
}

// Interval is the base spacing between cycles.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalHours * float64(time.Hour))
}

// Jitter is the maximum deviation applied to the interval.
func (c *Config) Jitter() time.Duration {
	return time.Duration(c.JitterMinutes) * time.Minute
}

// Retention is how long metric history is kept.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.HistoryHours) * time.Hour
}

// Windows returns the lookback windows as durations.
func (c *Config) Windows() []time.Duration {
	windows := make([]time.Duration, len(c.ComparisonMinutes))
	for i, m := range c.ComparisonMinutes {
		windows[i] = time.Duration(m) * time.Minute
	}
	return windows
}

// Tolerance is the nearest-sample lookup tolerance.
func (c *Config) Tolerance() time.Duration {
	return time.Duration(c.ToleranceMinutes) * time.Minute
}

// SensitiveDelay returns the parsed sensitive-collector settle delay.
func (c *Config) SensitiveDelay() time.Duration {
	return durationOr(c.SensitiveCollectionDelay, 2*time.Second)
}

// StageDeadline returns the parsed per-stage timeout.
func (c *Config) StageDeadline() time.Duration {
	return durationOr(c.StageTimeout, 2*time.Minute)
}

// CollectorDeadline returns the parsed per-collector timeout.
func (c *Config) CollectorDeadline() time.Duration {
	return durationOr(c.CollectorTimeout, 30*time.Second)
}

// MetricsPath resolves the metrics file location under DataDir.
func (c *Config) MetricsPath() string { return c.resolve(c.MetricsFile) }

// HistoryPath resolves the history database location under DataDir.
func (c *Config) HistoryPath() string { return c.resolve(c.HistoryDB) }

func (c *Config) resolve(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := parseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// parseDuration extends time.ParseDuration with day and week suffixes. The
// suffix forms accept a whole number and nothing else, so "1d2h" is rejected
// rather than silently read as one day.
func parseDuration(s string) (time.Duration, error) {
	if num, ok := strings.CutSuffix(s, "d"); ok {
		if days, err := strconv.Atoi(num); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	if num, ok := strings.CutSuffix(s, "w"); ok {
		if weeks, err := strconv.Atoi(num); err == nil {
			return time.Duration(weeks) * 7 * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

// Save writes the configuration to path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
