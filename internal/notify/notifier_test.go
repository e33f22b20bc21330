package notify

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExecNotifierDeliversMessageAndDestination(t *testing.T) {
	out := filepath.Join(t.TempDir(), "sent.txt")

	// The destination arrives as "$1"; the message arrives on stdin.
	n := &ExecNotifier{Command: `{ echo "dest=$1"; cat; } > ` + out}
	err := n.Send(context.Background(), "ops-channel", "disk filling up")
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "dest=ops-channel")
	assert.Contains(t, string(data), "disk filling up")
}

func TestExecNotifierFailurePropagates(t *testing.T) {
	n := &ExecNotifier{Command: "echo broken >&2; exit 2"}
	err := n.Send(context.Background(), "ops", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestExecNotifierTimeoutBoundsStuckCommand(t *testing.T) {
	n := &ExecNotifier{Command: "sleep 5", Timeout: 100 * time.Millisecond}
	start := time.Now()
	err := n.Send(context.Background(), "ops", "msg")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecNotifierBackgroundChildDoesNotStall(t *testing.T) {
	// The delivery script exits at once but leaves a child holding the
	// stderr pipe; Send must still return within the timeout budget.
	n := &ExecNotifier{Command: "sleep 5 &", Timeout: 100 * time.Millisecond}
	start := time.Now()
	_ = n.Send(context.Background(), "ops", "msg")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestExecNotifierRequiresCommand(t *testing.T) {
	n := &ExecNotifier{}
	assert.Error(t, n.Send(context.Background(), "ops", "msg"))
}

func TestRateLimitedDropsBeyondBurst(t *testing.T) {
	n := NewRateLimited(StdoutNotifier{}, 1, zap.NewNop())

	// One send fits the burst; the second within the same hour is dropped.
	require.NoError(t, n.Send(context.Background(), "ops", "first"))
	err := n.Send(context.Background(), "ops", "second")
	assert.ErrorIs(t, err, ErrRateLimited)
}
