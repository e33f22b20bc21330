package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vigil-agent/vigil/internal/ai"
	"github.com/vigil-agent/vigil/internal/analyze"
	"github.com/vigil-agent/vigil/internal/collect"
	"github.com/vigil-agent/vigil/internal/config"
	"github.com/vigil-agent/vigil/internal/history"
	"github.com/vigil-agent/vigil/internal/notify"
	"github.com/vigil-agent/vigil/internal/probe"
	"github.com/vigil-agent/vigil/internal/scheduler"
	"github.com/vigil-agent/vigil/internal/store"
)

// buildRoster assembles the statically registered collector lists from
// config. Sensitive collectors measure things that concurrent load would
// distort, so they run sequentially before everything else.
func buildRoster(cfg *config.Config) (sensitive, regular []collect.Collector) {
	sensitive = []collect.Collector{
		collect.LoadCollector{},
		collect.CPUCollector{SampleWindow: time.Second},
	}
	regular = []collect.Collector{
		collect.MemoryCollector{},
		collect.DiskCollector{Mounts: cfg.DiskMounts},
		collect.DiskIOCollector{},
		collect.NetworkCollector{},
		collect.HostCollector{},
		collect.SystemdCollector{},
	}
	for _, p := range cfg.CommandProbes {
		regular = append(regular, collect.CommandCollector{
			MetricName: p.Name,
			Unit:       p.Unit,
			Command:    p.Command,
		})
	}
	return sensitive, regular
}

// buildNotifier wires delivery per config. dryRun (and an unconfigured
// command) print to stdout instead of shelling out.
func buildNotifier(cfg *config.Config, dryRun bool, logger *zap.Logger) notify.Notifier {
	if dryRun || cfg.Notify.Command == "" {
		return notify.StdoutNotifier{}
	}
	var n notify.Notifier = &notify.ExecNotifier{Command: cfg.Notify.Command}
	if cfg.Notify.MaxPerHour > 0 {
		n = notify.NewRateLimited(n, cfg.Notify.MaxPerHour, logger)
	}
	return n
}

// offlineClassifier stands in for the LLM stages when `check --dry-run`
// runs without an API key. It never escalates, so the cycle still collects,
// persists, and prints the narrative.
type offlineClassifier struct{}

func (offlineClassifier) AuditMetrics(_ context.Context, req ai.AuditRequest) (*ai.AuditSummary, error) {
	return &ai.AuditSummary{
		Reason:    "classification skipped: ANTHROPIC_API_KEY not set",
		Narrative: req.Narrative,
	}, nil
}

func (offlineClassifier) Diagnose(context.Context, ai.DiagnoseRequest) (*ai.DiagnoseSummary, error) {
	return &ai.DiagnoseSummary{}, nil
}

// buildScheduler constructs the full pipeline. The returned history store
// must be closed by the caller.
func buildScheduler(cfg *config.Config, dryRun bool, logger *zap.Logger) (*scheduler.Scheduler, *history.Store, error) {
	st, err := store.New(cfg.MetricsPath(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating metrics store: %w", err)
	}

	analyzer, err := analyze.New(st, analyze.Config{
		Windows:          cfg.Windows(),
		ThresholdPercent: cfg.ChangeThresholdPercent,
		Tolerance:        cfg.Tolerance(),
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("creating analyzer: %w", err)
	}

	var auditor scheduler.Auditor
	var diagnoser scheduler.Diagnoser
	if dryRun && os.Getenv("ANTHROPIC_API_KEY") == "" {
		logger.Warn("ANTHROPIC_API_KEY not set; dry run skips classification")
		auditor = offlineClassifier{}
		diagnoser = offlineClassifier{}
	} else {
		client, err := ai.NewClient(&ai.Config{
			AuditModel:    cfg.AI.AuditModel,
			DiagnoseModel: cfg.AI.DiagnoseModel,
			MaxTokens:     cfg.AI.MaxTokens,
			Logger:        logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("creating AI client: %w", err)
		}
		auditor = client
		diagnoser = client
	}

	hist, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, nil, fmt.Errorf("opening history store: %w", err)
	}

	probeSpecs := probe.DefaultSpecs()
	if len(cfg.Probes) > 0 {
		probeSpecs = probeSpecs[:0]
		for _, p := range cfg.Probes {
			probeSpecs = append(probeSpecs, probe.Spec{Name: p.Name, Command: p.Command})
		}
	}

	sensitive, regular := buildRoster(cfg)
	sched, err := scheduler.New(scheduler.Deps{
		Config:       cfg,
		Store:        st,
		Analyzer:     analyzer,
		Orchestrator: collect.NewOrchestrator(cfg.CollectorDeadline(), logger),
		Sensitive:    sensitive,
		Regular:      regular,
		Auditor:      auditor,
		Diagnoser:    diagnoser,
		Probes:       probe.NewRunner(probeSpecs, 0, logger),
		Notifier:     buildNotifier(cfg, dryRun, logger),
		History:      hist,
		Logger:       logger,
	})
	if err != nil {
		hist.Close()
		return nil, nil, fmt.Errorf("creating scheduler: %w", err)
	}
	return sched, hist, nil
}
