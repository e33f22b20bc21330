package probe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRunCapturesOutput(t *testing.T) {
	r := NewRunner(nil, 0, zap.NewNop())
	out, err := r.Run(context.Background(), Spec{Name: "echo", Command: "echo hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestRunFailingCommand(t *testing.T) {
	r := NewRunner(nil, 0, zap.NewNop())
	_, err := r.Run(context.Background(), Spec{Name: "fail", Command: "exit 7"})
	assert.Error(t, err)
}

func TestRunTimesOut(t *testing.T) {
	r := NewRunner(nil, 50*time.Millisecond, zap.NewNop())
	start := time.Now()
	_, err := r.Run(context.Background(), Spec{Name: "sleep", Command: "sleep 5"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunBackgroundChildDoesNotStall(t *testing.T) {
	// sh exits immediately; the backgrounded child inherits the stdout
	// pipe and must not keep Run blocked for its whole lifetime.
	r := NewRunner(nil, 200*time.Millisecond, zap.NewNop())
	start := time.Now()
	_, _ = r.Run(context.Background(), Spec{Name: "bg", Command: "sleep 5 & echo started"})
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunCapsOutput(t *testing.T) {
	r := NewRunner(nil, 0, zap.NewNop())
	out, err := r.Run(context.Background(), Spec{Name: "big", Command: "yes x | head -n 10000"})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(out), maxOutputBytes+64)
	assert.Contains(t, out, "(truncated)")
}

func TestRunAllIsolatesFailures(t *testing.T) {
	r := NewRunner([]Spec{
		{Name: "ok", Command: "echo fine"},
		{Name: "broken", Command: "exit 1"},
		{Name: "also-ok", Command: "echo still fine"},
	}, 0, zap.NewNop())

	out := r.RunAll(context.Background())
	assert.Contains(t, out, "## ok\nfine")
	assert.Contains(t, out, "probe failed")
	assert.Contains(t, out, "still fine")
}

func TestRunAllEmptyRoster(t *testing.T) {
	r := NewRunner(nil, 0, zap.NewNop())
	assert.Equal(t, "", r.RunAll(context.Background()))
}

func TestDefaultSpecsAreReadOnly(t *testing.T) {
	for _, spec := range DefaultSpecs() {
		assert.NotEmpty(t, spec.Name)
		assert.NotEmpty(t, spec.Command)
		// Nothing in the stock roster should write anywhere.
		for _, verb := range []string{"rm ", "kill", ">", "tee"} {
			assert.False(t, strings.Contains(spec.Command, verb),
				"probe %s must be read-only", spec.Name)
		}
	}
}
