package ai

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DiagnoseRequest primes the second-stage classifier with the audit verdict
// and, when available, live diagnostic probe output.
type DiagnoseRequest struct {
	Narrative     string
	Reason        string
	Evidence      []Evidence
	ProbeOutput   string // Read-only diagnostic command output, may be empty.
	CorrelationID string
}

// DiagnoseSummary is the second-stage verdict with a root-cause hypothesis.
type DiagnoseSummary struct {
	EscalationNeeded     bool     `json:"escalation_needed"`
	MostLikelyHypothesis string   `json:"most_likely_hypothesis"`
	Thoughts             []string `json:"thoughts"`
}

const diagnosePromptTemplate = `You are the second-opinion diagnostician for an unattended home server. A
first-pass audit flagged the metrics below as potentially anomalous. Your job
is to independently confirm or reject the escalation, and if you confirm, to
state the most likely root cause. A false alarm interrupts a person; a missed
real problem goes unnoticed on an unattended box. Confirm only when the
evidence holds up.

Audit reason: %s

Audit evidence:
%s

Current metrics:
%s
%s
Respond with ONLY a JSON object:
{
  "escalation_needed": true/false,
  "most_likely_hypothesis": "the single most likely root cause, phrased for the operator",
  "thoughts": ["short reasoning steps"]
}`

// Diagnose runs the confirmation pass and returns the hypothesis.
func (c *Client) Diagnose(ctx context.Context, req DiagnoseRequest) (*DiagnoseSummary, error) {
	var evidence strings.Builder
	for _, e := range req.Evidence {
		fmt.Fprintf(&evidence, "- %s: %s\n", e.Metric, e.Value)
	}
	if evidence.Len() == 0 {
		evidence.WriteString("(none cited)\n")
	}

	probeSection := ""
	if req.ProbeOutput != "" {
		probeSection = fmt.Sprintf("\nLive diagnostics:\n%s\n", req.ProbeOutput)
	}

	prompt := fmt.Sprintf(diagnosePromptTemplate,
		req.Reason, evidence.String(), req.Narrative, probeSection)

	text, err := c.complete(ctx, "diagnose", c.diagnoseModel, prompt)
	if err != nil {
		return nil, err
	}

	summary, err := Parse[DiagnoseSummary](text)
	if err != nil {
		return nil, fmt.Errorf("diagnose response: %w", err)
	}

	c.logger.Info("diagnose verdict",
		zap.String("correlation_id", req.CorrelationID),
		zap.Bool("escalation_needed", summary.EscalationNeeded),
		zap.String("hypothesis", summary.MostLikelyHypothesis))
	return &summary, nil
}
