// Package ai implements the two LLM-backed classification stages of the
// escalation pipeline: the audit pass that decides whether a metrics
// narrative looks abnormal, and the diagnose pass that confirms and
// hypothesizes a root cause. Calls go through retry with exponential
// backoff, a circuit breaker, and a concurrency cap.
package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Model selection. The audit pass runs on every cycle, so it defaults to the
// cheap model; diagnose runs rarely and gets the stronger one.
const (
	ModelDefault = "claude-sonnet-4-5-20250929"
	ModelSimple  = "claude-3-5-haiku-20241022"
)

// GetAuditModel returns the audit model, honoring VIGIL_MODEL_AUDIT.
func GetAuditModel() string {
	if model := os.Getenv("VIGIL_MODEL_AUDIT"); model != "" {
		return model
	}
	return ModelSimple
}

// GetDiagnoseModel returns the diagnose model, honoring VIGIL_MODEL_DIAGNOSE.
func GetDiagnoseModel() string {
	if model := os.Getenv("VIGIL_MODEL_DIAGNOSE"); model != "" {
		return model
	}
	return ModelDefault
}

// Client wraps the Anthropic API for the audit and diagnose passes.
type Client struct {
	client         anthropic.Client
	auditModel     string
	diagnoseModel  string
	maxTokens      int
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	logger         *zap.Logger
}

// Config holds client configuration.
type Config struct {
	APIKey        string // If empty, read from ANTHROPIC_API_KEY.
	AuditModel    string // Default: GetAuditModel().
	DiagnoseModel string // Default: GetDiagnoseModel().
	MaxTokens     int    // Per-response token cap (default 2048).
	Retry         RetryConfig
	Logger        *zap.Logger
}

// NewClient creates the LLM client used by both classification stages.
func NewClient(cfg *Config) (*Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, errors.New("ANTHROPIC_API_KEY not set")
		}
	}

	auditModel := cfg.AuditModel
	if auditModel == "" {
		auditModel = GetAuditModel()
	}
	diagnoseModel := cfg.DiagnoseModel
	if diagnoseModel == "" {
		diagnoseModel = GetDiagnoseModel()
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		client:        anthropic.NewClient(option.WithAPIKey(apiKey)),
		auditModel:    auditModel,
		diagnoseModel: diagnoseModel,
		maxTokens:     maxTokens,
		retry:         retry,
		logger:        logger,
	}
	if retry.CircuitBreakerEnabled {
		c.circuitBreaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout, logger)
	}
	if retry.MaxConcurrentCalls > 0 {
		c.concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}
	return c, nil
}

// complete makes one prompt → text call with retry, returning the
// concatenated text blocks of the response.
func (c *Client) complete(ctx context.Context, operation, model, prompt string) (string, error) {
	startTime := time.Now()

	var response *anthropic.Message
	err := c.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		resp, apiErr := c.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(model),
			MaxTokens: int64(c.maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic %s call failed: %w", operation, err)
	}

	var text string
	for _, block := range response.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	c.logger.Info("llm call complete",
		zap.String("operation", operation),
		zap.String("model", model),
		zap.Int64("input_tokens", response.Usage.InputTokens),
		zap.Int64("output_tokens", response.Usage.OutputTokens),
		zap.Duration("duration", time.Since(startTime)))
	return text, nil
}
