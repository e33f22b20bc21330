// Package probe runs read-only diagnostic commands whose output primes the
// diagnose classifier. Probes are configured up front; nothing here mutates
// host state.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single probe command.
const DefaultTimeout = 15 * time.Second

// maxOutputBytes caps how much of a probe's output is kept. Diagnostics are
// prompt input; a runaway journal dump would drown the signal.
const maxOutputBytes = 4 * 1024

// Spec describes one configured diagnostic probe.
type Spec struct {
	// Name labels the probe's section in the combined output.
	Name string

	// Command is the shell command to run (via sh -c).
	Command string
}

// Runner executes the configured probes.
type Runner struct {
	specs   []Spec
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunner creates a runner over the given probe specs.
func NewRunner(specs []Spec, timeout time.Duration, logger *zap.Logger) *Runner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{specs: specs, timeout: timeout, logger: logger}
}

// Run executes a single probe and returns its trimmed, capped output.
func (r *Runner) Run(ctx context.Context, spec Spec) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", spec.Command)
	// Without WaitDelay, a grandchild holding the inherited stdout pipe
	// keeps Run blocked long after sh is killed.
	cmd.WaitDelay = r.timeout
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("probe %s: %w", spec.Name, err)
	}

	text := strings.TrimSpace(out.String())
	if len(text) > maxOutputBytes {
		text = text[:maxOutputBytes] + "\n... (truncated)"
	}
	return text, nil
}

// RunAll executes every configured probe and renders one labeled section per
// probe. A failing probe contributes an error note instead of aborting the
// batch; an empty roster yields an empty string.
func (r *Runner) RunAll(ctx context.Context) string {
	if len(r.specs) == 0 {
		return ""
	}

	var b strings.Builder
	for _, spec := range r.specs {
		out, err := r.Run(ctx, spec)
		if err != nil {
			r.logger.Warn("diagnostic probe failed",
				zap.String("probe", spec.Name),
				zap.Error(err))
			fmt.Fprintf(&b, "## %s\n(probe failed: %v)\n\n", spec.Name, err)
			continue
		}
		fmt.Fprintf(&b, "## %s\n%s\n\n", spec.Name, out)
	}
	return strings.TrimSpace(b.String())
}

// DefaultSpecs is the stock roster of read-only diagnostics for a Linux
// home server.
func DefaultSpecs() []Spec {
	return []Spec{
		{Name: "uptime", Command: "uptime"},
		{Name: "disk", Command: "df -h"},
		{Name: "memory", Command: "free -m"},
		{Name: "top-cpu", Command: "ps aux --sort=-%cpu | head -n 8"},
		{Name: "top-mem", Command: "ps aux --sort=-%mem | head -n 8"},
	}
}
