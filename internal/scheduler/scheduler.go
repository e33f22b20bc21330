// Package scheduler drives the health-monitoring pipeline: one
// singleflight-guarded cycle of collect → store → analyze → audit →
// diagnose → notify → prune, re-armed with jitter after every cycle.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vigil-agent/vigil/internal/ai"
	"github.com/vigil-agent/vigil/internal/analyze"
	"github.com/vigil-agent/vigil/internal/collect"
	"github.com/vigil-agent/vigil/internal/config"
	"github.com/vigil-agent/vigil/internal/metrics"
	"github.com/vigil-agent/vigil/internal/notify"
	"github.com/vigil-agent/vigil/internal/store"
)

// Auditor is the first-stage classifier deciding whether the narrative
// warrants a diagnostic pass.
type Auditor interface {
	AuditMetrics(ctx context.Context, req ai.AuditRequest) (*ai.AuditSummary, error)
}

// Diagnoser is the second-stage classifier confirming the escalation and
// producing a root-cause hypothesis.
type Diagnoser interface {
	Diagnose(ctx context.Context, req ai.DiagnoseRequest) (*ai.DiagnoseSummary, error)
}

// ProbeRunner gathers read-only diagnostics to prime the diagnose pass.
type ProbeRunner interface {
	RunAll(ctx context.Context) string
}

// HistorySink records delivered hypotheses in the shared conversation log
// and keeps small persistent facts about past escalations.
type HistorySink interface {
	AppendMessage(ctx context.Context, role, text string) error
	SetFact(ctx context.Context, key, value string) error
}

// Deps holds everything a Scheduler needs. The scheduler is an explicit
// handle constructed once at startup and passed where needed; there is no
// package-level instance, so tests can run several side by side.
type Deps struct {
	Config       *config.Config
	Store        *store.Store
	Analyzer     *analyze.Analyzer
	Orchestrator *collect.Orchestrator
	Sensitive    []collect.Collector
	Regular      []collect.Collector
	Auditor      Auditor
	Diagnoser    Diagnoser
	Probes       ProbeRunner // optional
	Notifier     notify.Notifier
	History      HistorySink // optional
	Logger       *zap.Logger
}

// Scheduler owns the singleflight guard and the timer loop.
type Scheduler struct {
	deps Deps

	// phase is the singleflight guard: phaseIdle or phaseRunning,
	// switched with compare-and-swap so concurrent triggers cannot both
	// start a cycle.
	phase int32

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger *zap.Logger
}

const (
	phaseIdle int32 = iota
	phaseRunning
)

// CycleResult summarizes one completed (or truncated) cycle.
type CycleResult struct {
	CorrelationID string
	Snapshot      metrics.Snapshot
	Successes     int
	Failures      int
	Narrative     string
	Audit         *ai.AuditSummary
	Diagnose      *ai.DiagnoseSummary
	Notified      bool

	// Err is set when the cycle was truncated (store write failure or a
	// classifier error). The re-arm is unaffected either way.
	Err error
}

// New validates deps and returns a scheduler in the Idle phase.
func New(deps Deps) (*Scheduler, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	if deps.Orchestrator == nil {
		return nil, errors.New("orchestrator is required")
	}
	if deps.Auditor == nil {
		return nil, errors.New("auditor is required")
	}
	if deps.Diagnoser == nil {
		return nil, errors.New("diagnoser is required")
	}
	if deps.Notifier == nil {
		return nil, errors.New("notifier is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{deps: deps, logger: logger}, nil
}

// Start launches the timer loop. The first cycle fires after one jittered
// interval, not immediately, so a crash-looping process doesn't hammer the
// classifiers.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.loop(loopCtx)

	s.logger.Info("scheduler started",
		zap.Duration("interval", s.deps.Config.Interval()),
		zap.Duration("jitter", s.deps.Config.Jitter()))
	return nil
}

// Stop cancels the loop and waits for any in-flight cycle to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// loop re-arms unconditionally after every cycle, however the cycle ended.
// That guarantee is what keeps the pipeline self-healing.
func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.nextInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.Trigger(ctx)
			timer.Reset(s.nextInterval())
		}
	}
}

// nextInterval is interval ± uniform(jitter), floored so misconfiguration
// can never produce a busy loop.
func (s *Scheduler) nextInterval() time.Duration {
	interval := s.deps.Config.Interval()
	if jitter := s.deps.Config.Jitter(); jitter > 0 {
		interval += time.Duration((rand.Float64()*2 - 1) * float64(jitter))
	}
	if interval < time.Minute {
		interval = time.Minute
	}
	return interval
}

// Trigger runs one cycle if the scheduler is Idle. A trigger arriving while
// a cycle is Running is dropped, not queued: at most one cycle is ever in
// flight, which also makes the store effectively single-writer.
func (s *Scheduler) Trigger(ctx context.Context) (*CycleResult, bool) {
	if !atomic.CompareAndSwapInt32(&s.phase, phaseIdle, phaseRunning) {
		s.logger.Debug("trigger dropped: cycle already running")
		return nil, false
	}
	defer atomic.StoreInt32(&s.phase, phaseIdle)

	result := s.runCycle(ctx)
	return result, true
}

// runCycle executes the full pipeline. Every stage that leaves the process
// gets its own deadline so one stuck collaborator cannot stall the
// scheduler past the next re-arm.
func (s *Scheduler) runCycle(ctx context.Context) (result *CycleResult) {
	result = &CycleResult{CorrelationID: uuid.NewString()}
	logger := s.logger.With(zap.String("correlation_id", result.CorrelationID))
	stage := s.deps.Config.StageDeadline()
	started := time.Now()

	// A panicking collaborator truncates the cycle; it must never kill the
	// loop goroutine and with it every future re-arm.
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("cycle panicked: %v", r)
			logger.Error("cycle truncated", zap.Error(result.Err))
		}
	}()

	logger.Info("health cycle started")

	// 1. Collect. Collector failures are already isolated and counted
	// inside the orchestrator; an empty snapshot is still a valid cycle.
	collectCtx, cancel := context.WithTimeout(ctx, stage)
	snapshot, successes, failures := s.deps.Orchestrator.Run(
		collectCtx, s.deps.Sensitive, s.deps.Regular, s.deps.Config.SensitiveDelay())
	cancel()
	result.Snapshot = snapshot
	result.Successes = successes
	result.Failures = failures

	// 2. Persist before analysis, so the analyzer always sees a store
	// that already contains this cycle's readings.
	if err := s.deps.Store.Append(snapshot); err != nil {
		result.Err = fmt.Errorf("persisting snapshot: %w", err)
		logger.Error("cycle truncated", zap.Error(result.Err))
		return result
	}

	// 3. Analyze.
	report, err := s.deps.Analyzer.Analyze(snapshot, time.Now())
	if err != nil {
		result.Err = fmt.Errorf("analyzing snapshot: %w", err)
		logger.Error("cycle truncated", zap.Error(result.Err))
		return result
	}
	result.Narrative = report.Narrative

	// 4. Audit.
	auditCtx, cancel := context.WithTimeout(ctx, stage)
	audit, err := s.deps.Auditor.AuditMetrics(auditCtx, ai.AuditRequest{
		Narrative:     report.Narrative,
		CorrelationID: result.CorrelationID,
	})
	cancel()
	if err != nil {
		result.Err = fmt.Errorf("audit: %w", err)
		logger.Error("cycle truncated", zap.Error(result.Err))
		return result
	}
	result.Audit = audit

	if audit.EscalationNeeded {
		s.escalate(ctx, logger, result, audit)
		if result.Err != nil {
			return result
		}
	} else {
		logger.Info("audit found nothing to escalate")
	}

	// 7. Prune. A failure here is logged but the cycle still counts.
	if err := s.deps.Store.Prune(time.Now().Add(-s.deps.Config.Retention())); err != nil {
		logger.Error("pruning metrics history failed", zap.Error(err))
	}

	logger.Info("health cycle complete",
		zap.Int("readings", len(snapshot)),
		zap.Int("collector_failures", failures),
		zap.Bool("escalated", result.Notified),
		zap.Duration("duration", time.Since(started)))
	return result
}

// escalate runs the confirmation sub-pipeline: diagnose, then notify.
func (s *Scheduler) escalate(ctx context.Context, logger *zap.Logger, result *CycleResult, audit *ai.AuditSummary) {
	stage := s.deps.Config.StageDeadline()

	// 5. Diagnose, primed with the audit verdict and live diagnostics.
	probeOutput := ""
	if s.deps.Probes != nil {
		probeCtx, cancel := context.WithTimeout(ctx, stage)
		probeOutput = s.deps.Probes.RunAll(probeCtx)
		cancel()
	}

	diagCtx, cancel := context.WithTimeout(ctx, stage)
	diagnosis, err := s.deps.Diagnoser.Diagnose(diagCtx, ai.DiagnoseRequest{
		Narrative:     audit.Narrative,
		Reason:        audit.Reason,
		Evidence:      audit.Evidence,
		ProbeOutput:   probeOutput,
		CorrelationID: result.CorrelationID,
	})
	cancel()
	if err != nil {
		result.Err = fmt.Errorf("diagnose: %w", err)
		logger.Error("cycle truncated", zap.Error(result.Err))
		return
	}
	result.Diagnose = diagnosis

	if !diagnosis.EscalationNeeded {
		logger.Info("diagnose did not confirm escalation",
			zap.String("audit_reason", audit.Reason))
		return
	}

	// 6. Notify. Both stages agree, so interrupt the operator. Delivery
	// failures are logged and swallowed: a flaky channel must never
	// disable future monitoring.
	notifyCtx, cancel := context.WithTimeout(ctx, stage)
	defer cancel()
	if err := s.deps.Notifier.Send(notifyCtx, s.deps.Config.Notify.Destination, diagnosis.MostLikelyHypothesis); err != nil {
		logger.Error("notification failed", zap.Error(err))
	} else {
		result.Notified = true
	}

	if s.deps.History != nil {
		if err := s.deps.History.AppendMessage(notifyCtx, "assistant", diagnosis.MostLikelyHypothesis); err != nil {
			logger.Error("recording hypothesis in history failed", zap.Error(err))
		}
		if err := s.deps.History.SetFact(notifyCtx, "last_escalation_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
			logger.Error("recording escalation fact failed", zap.Error(err))
		}
	}
}
