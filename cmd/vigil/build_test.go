package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vigil-agent/vigil/internal/ai"
	"github.com/vigil-agent/vigil/internal/config"
	"github.com/vigil-agent/vigil/internal/notify"
)

func TestBuildSchedulerDryRunWithoutAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	sched, hist, err := buildScheduler(cfg, true, zap.NewNop())
	require.NoError(t, err, "dry run must not require an API key")
	defer hist.Close()
	require.NotNil(t, sched)
}

func TestBuildSchedulerWithoutAPIKeyErrors(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	_, _, err := buildScheduler(cfg, false, zap.NewNop())
	assert.Error(t, err, "a real run still needs the key")
}

func TestOfflineClassifierNeverEscalates(t *testing.T) {
	audit, err := offlineClassifier{}.AuditMetrics(context.Background(), ai.AuditRequest{Narrative: "cpu_usage_percent: 75%"})
	require.NoError(t, err)
	assert.False(t, audit.EscalationNeeded)
	assert.Contains(t, audit.Reason, "skipped")
	assert.Equal(t, "cpu_usage_percent: 75%", audit.Narrative)

	diag, err := offlineClassifier{}.Diagnose(context.Background(), ai.DiagnoseRequest{})
	require.NoError(t, err)
	assert.False(t, diag.EscalationNeeded)
}

func TestBuildNotifierDryRunPrints(t *testing.T) {
	cfg := config.Default()
	cfg.Notify.Command = "some-delivery-script"

	n := buildNotifier(cfg, true, zap.NewNop())
	_, ok := n.(notify.StdoutNotifier)
	assert.True(t, ok, "dry run must print instead of shelling out")
}
