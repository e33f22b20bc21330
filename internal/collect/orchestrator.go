// Package collect defines the collector contract and the orchestration that
// produces one best-effort snapshot per cycle without letting collectors
// perturb each other.
package collect

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vigil-agent/vigil/internal/metrics"
)

// Collector is the contract any metric source must satisfy. A collector may
// emit zero, one, or several readings per call (a load-average probe emits
// three at once); the orchestrator treats the output as an opaque list.
type Collector interface {
	// Name identifies the collector in logs and error counts.
	Name() string

	// Collect fetches the collector's readings. Failures are trapped at
	// the orchestrator boundary and never abort the cycle.
	Collect(ctx context.Context) ([]metrics.MetricValue, error)
}

// Orchestrator runs the full collector roster once per cycle.
//
// Sensitive collectors (load, CPU queue probes) are run strictly one at a
// time with a settle delay, because their measurement technique is perturbed
// by concurrent load. Regular collectors fan out in parallel afterwards.
type Orchestrator struct {
	// CollectorTimeout bounds each individual Collect call. Zero means
	// no per-collector deadline beyond the caller's context.
	CollectorTimeout time.Duration

	logger *zap.Logger
}

// NewOrchestrator creates an orchestrator with the given per-collector
// timeout.
func NewOrchestrator(collectorTimeout time.Duration, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{CollectorTimeout: collectorTimeout, logger: logger}
}

// Run executes the roster and returns the concatenated snapshot plus
// success/error counts. It never returns an error: a total failure of every
// collector yields an empty snapshot and a full error count.
func (o *Orchestrator) Run(ctx context.Context, sensitive, regular []Collector, interCollectorDelay time.Duration) (metrics.Snapshot, int, int) {
	var snapshot metrics.Snapshot
	successes, failures := 0, 0

	// Sequential phase: never overlap sensitive collectors with each other
	// or with the parallel fan-out below.
	for _, c := range sensitive {
		if !sleepCtx(ctx, interCollectorDelay) {
			failures++
			continue
		}
		values, err := o.collectOne(ctx, c)
		if err != nil {
			o.logger.Warn("collector failed",
				zap.String("collector", c.Name()),
				zap.Error(err))
			failures++
			continue
		}
		snapshot = append(snapshot, values...)
		successes++
	}

	// Parallel phase: regular collectors do not perturb each other, so fan
	// out and resolve each result independently.
	results := make([][]metrics.MetricValue, len(regular))
	errs := make([]error, len(regular))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range regular {
		g.Go(func() error {
			values, err := o.collectOne(gctx, c)
			if err != nil {
				// Recorded per slot; never propagated, so one
				// failure cannot cancel the group.
				errs[i] = err
				return nil
			}
			results[i] = values
			return nil
		})
	}
	g.Wait()

	for i, c := range regular {
		if errs[i] != nil {
			o.logger.Warn("collector failed",
				zap.String("collector", c.Name()),
				zap.Error(errs[i]))
			failures++
			continue
		}
		snapshot = append(snapshot, results[i]...)
		successes++
	}

	o.logger.Info("collection complete",
		zap.Int("readings", len(snapshot)),
		zap.Int("successes", successes),
		zap.Int("failures", failures))
	return snapshot, successes, failures
}

// collectOne invokes a single collector with its own deadline and a panic
// trap, so no collector failure escapes the orchestrator boundary.
func (o *Orchestrator) collectOne(ctx context.Context, c Collector) (values []metrics.MetricValue, err error) {
	if o.CollectorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.CollectorTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			values = nil
			err = fmt.Errorf("collector %s panicked: %v", c.Name(), r)
		}
	}()

	return c.Collect(ctx)
}

// sleepCtx waits for d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
