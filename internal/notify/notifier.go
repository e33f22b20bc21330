// Package notify delivers confirmed escalations to the operator. Delivery
// is fire-and-forget: failures are reported to the caller for logging and
// never abort a monitoring cycle.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultSendTimeout bounds a single delivery attempt.
const DefaultSendTimeout = 30 * time.Second

// Notifier sends a text message to a destination (a chat id, a channel name;
// the transport decides what it means).
type Notifier interface {
	Send(ctx context.Context, destination, text string) error
}

// ExecNotifier shells out to a configured command (telegram-send, ntfy, a
// custom script) with the message on stdin and the destination available as
// $1. This is how a home server typically reaches its owner.
type ExecNotifier struct {
	// Command is the delivery command, run as `sh -c command notify
	// <destination>`, so the command script sees the destination as "$1"
	// and reads the message from stdin.
	Command string

	// Timeout bounds one delivery attempt. Zero means DefaultSendTimeout.
	Timeout time.Duration
}

// Send runs the configured command with the message on stdin.
func (n *ExecNotifier) Send(ctx context.Context, destination, text string) error {
	if n.Command == "" {
		return errors.New("notify command not configured")
	}

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", n.Command, "notify", destination)
	// Without WaitDelay, a grandchild holding the inherited stderr pipe
	// keeps Run blocked long after sh is killed.
	cmd.WaitDelay = timeout
	cmd.Stdin = strings.NewReader(text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("notify command failed: %w (stderr: %s)",
			err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// StdoutNotifier prints the message. Used by `vigil check --dry-run` and in
// tests.
type StdoutNotifier struct{}

func (StdoutNotifier) Send(_ context.Context, destination, text string) error {
	fmt.Printf("[notify → %s]\n%s\n", destination, text)
	return nil
}

// RateLimited wraps a notifier with a token bucket so a flapping host
// cannot spam the operator. Sends beyond the limit are dropped, not queued;
// the next cycle will re-escalate if the anomaly persists.
type RateLimited struct {
	inner   Notifier
	limiter *rate.Limiter
	logger  *zap.Logger
}

// ErrRateLimited is returned for sends dropped by the limiter.
var ErrRateLimited = errors.New("notification dropped: rate limit exceeded")

// NewRateLimited allows maxPerHour deliveries with a burst of one.
func NewRateLimited(inner Notifier, maxPerHour int, logger *zap.Logger) *RateLimited {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(float64(maxPerHour)/3600.0), 1),
		logger:  logger,
	}
}

func (r *RateLimited) Send(ctx context.Context, destination, text string) error {
	if !r.limiter.Allow() {
		r.logger.Warn("notification rate limit hit",
			zap.String("destination", destination))
		return ErrRateLimited
	}
	return r.inner.Send(ctx, destination, text)
}
