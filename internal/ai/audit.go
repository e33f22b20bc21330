package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Evidence is one metric the classifier cites in support of its verdict.
type Evidence struct {
	Metric string `json:"metric"`
	Value  string `json:"value"`
}

// UnmarshalJSON accepts the value as either a JSON string or a bare number;
// models use both forms interchangeably.
func (e *Evidence) UnmarshalJSON(data []byte) error {
	var raw struct {
		Metric string          `json:"metric"`
		Value  json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Metric = raw.Metric
	if len(raw.Value) == 0 {
		e.Value = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.Value, &s); err == nil {
		e.Value = s
		return nil
	}
	e.Value = strings.TrimSpace(string(raw.Value))
	return nil
}

// AuditRequest carries the analyzer narrative into the first-stage
// classifier.
type AuditRequest struct {
	Narrative     string
	CorrelationID string
}

// AuditSummary is the first-stage verdict. The scheduler routes it; it never
// constructs or reinterprets one.
type AuditSummary struct {
	EscalationNeeded bool       `json:"escalation_needed"`
	Reason           string     `json:"reason"`
	Evidence         []Evidence `json:"evidence"`

	// Narrative echoes the input so the diagnose stage can be primed
	// without re-reading the store.
	Narrative string `json:"-"`
}

const auditPromptTemplate = `You are the health auditor for an unattended home server. You receive a
snapshot of host metrics with percentage changes against recent history.

Decide whether anything here looks like a genuine anomaly that a second
diagnostic pass should investigate. Bear in mind:
- Single-metric threshold breaches are often transient noise.
- Cumulative counters (names ending in _total) always grow; judge their rate.
- Missing change annotations mean the metric had no usable history yet.
- Interrupting the operator is costly. Escalate only on real signal.

Current metrics:
%s

Respond with ONLY a JSON object:
{
  "escalation_needed": true/false,
  "reason": "one or two sentences explaining the decision",
  "evidence": [{"metric": "name", "value": "current reading"}]
}`

// AuditMetrics runs the first-stage classification over the narrative.
func (c *Client) AuditMetrics(ctx context.Context, req AuditRequest) (*AuditSummary, error) {
	prompt := fmt.Sprintf(auditPromptTemplate, req.Narrative)

	text, err := c.complete(ctx, "audit", c.auditModel, prompt)
	if err != nil {
		return nil, err
	}

	summary, err := Parse[AuditSummary](text)
	if err != nil {
		return nil, fmt.Errorf("audit response: %w", err)
	}
	summary.Narrative = req.Narrative

	c.logger.Info("audit verdict",
		zap.String("correlation_id", req.CorrelationID),
		zap.Bool("escalation_needed", summary.EscalationNeeded),
		zap.String("reason", summary.Reason))
	return &summary, nil
}
