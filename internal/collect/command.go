package collect

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vigil-agent/vigil/internal/metrics"
)

var firstNumberRegex = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// commandWaitDelay bounds how long Run waits for inherited output pipes
// after the context ends or the shell exits; without it a backgrounded
// grandchild holds the collector open for its whole lifetime.
const commandWaitDelay = 2 * time.Second

// CommandCollector runs a shell probe and parses the first number from its
// stdout into a single reading. This is the escape hatch for anything the
// built-in roster does not cover (UPS charge, ZFS pool health, etc.).
type CommandCollector struct {
	// MetricName is the name emitted for the parsed reading.
	MetricName string

	// Unit is the display unit for the reading.
	Unit string

	// Command is the shell command to run (via sh -c).
	Command string
}

func (c CommandCollector) Name() string {
	if c.MetricName != "" {
		return c.MetricName
	}
	return "command"
}

func (c CommandCollector) Collect(ctx context.Context) ([]metrics.MetricValue, error) {
	if c.Command == "" {
		return nil, fmt.Errorf("command probe %s: no command configured", c.Name())
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", c.Command)
	cmd.WaitDelay = commandWaitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("command probe %s: %w (stderr: %s)",
			c.Name(), err, strings.TrimSpace(stderr.String()))
	}

	match := firstNumberRegex.FindString(stdout.String())
	if match == "" {
		return nil, fmt.Errorf("command probe %s: no number in output %q",
			c.Name(), strings.TrimSpace(stdout.String()))
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil, fmt.Errorf("command probe %s: parsing %q: %w", c.Name(), match, err)
	}

	return []metrics.MetricValue{
		{Name: c.MetricName, Value: value, Unit: c.Unit, Timestamp: time.Now()},
	}, nil
}

// SystemdCollector counts failed systemd units. A healthy box reads 0, so
// any jump is a strong escalation signal.
type SystemdCollector struct{}

func (SystemdCollector) Name() string { return "systemd" }

func (SystemdCollector) Collect(ctx context.Context) ([]metrics.MetricValue, error) {
	cmd := exec.CommandContext(ctx, "systemctl", "--failed", "--no-legend", "--plain")
	cmd.WaitDelay = commandWaitDelay
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("listing failed units: %w", err)
	}

	count := 0
	for _, line := range strings.Split(stdout.String(), "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}
	return []metrics.MetricValue{
		{Name: "systemd_failed_units", Value: float64(count), Timestamp: time.Now()},
	}, nil
}
