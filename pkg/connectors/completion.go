package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/arionlabs/arion/pkg/protocol"
)

// completionResponse is the completion gateway's wire shape.
type completionResponse struct {
	Fields map[string]any `json:"fields"`
	Raw    string         `json:"raw"`
}

// HTTPCompletionService sends AI task prompts to the completion gateway,
// which owns model selection, credentials, and structured-output parsing.
type HTTPCompletionService struct {
	endpoint string
	client   *http.Client
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// NewHTTPCompletionService builds a completion client against the given
// gateway.
func NewHTTPCompletionService(cfg HTTPConfig, logger *slog.Logger) (*HTTPCompletionService, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}

	cfg = cfg.withDefaults()

	return &HTTPCompletionService{
		endpoint: cfg.BaseURL + "/complete",
		client:   &http.Client{Timeout: cfg.Timeout},
		attempts: cfg.RetryAttempts,
		delay:    cfg.RetryDelay,
		logger:   logger.With("module", "completion_connector"),
	}, nil
}

func (s *HTTPCompletionService) Complete(ctx context.Context, req protocol.CompletionRequest) (protocol.CompletionResponse, error) {
	body, err := json.Marshal(map[string]any{
		"prompt":        req.Prompt,
		"instructions":  req.Instructions,
		"confidence":    req.Confidence,
		"output_fields": req.OutputFields,
	})
	if err != nil {
		return protocol.CompletionResponse{}, fmt.Errorf("failed to encode completion request: %w", err)
	}

	s.logger.InfoContext(ctx, "Requesting completion", "output_fields", len(req.OutputFields))

	resp, err := doWithRetry(s.client, s.attempts, s.delay, func() (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		httpReq.Header.Set("Content-Type", "application/json")

		return httpReq, nil
	})
	if err != nil {
		return protocol.CompletionResponse{}, fmt.Errorf("completion request failed: %w", err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return protocol.CompletionResponse{}, fmt.Errorf("failed to read completion response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return protocol.CompletionResponse{}, fmt.Errorf("completion gateway returned status %d: %s", resp.StatusCode, string(raw))
	}

	var decoded completionResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return protocol.CompletionResponse{}, fmt.Errorf("invalid completion gateway response: %w", err)
	}

	return protocol.CompletionResponse{Fields: decoded.Fields, Raw: decoded.Raw}, nil
}

// UnconfiguredTools is the tool invoker wired when a deployment has no tool
// gateway: every invocation fails the node with a clear error.
type UnconfiguredTools struct{}

func (UnconfiguredTools) Invoke(_ context.Context, tool string, _ map[string]any) (protocol.ToolResult, error) {
	return protocol.ToolResult{}, fmt.Errorf("tool %q: %w", tool, ErrNotConfigured)
}

// UnconfiguredCompletion is the completion service wired when a deployment
// has no completion gateway.
type UnconfiguredCompletion struct{}

func (UnconfiguredCompletion) Complete(context.Context, protocol.CompletionRequest) (protocol.CompletionResponse, error) {
	return protocol.CompletionResponse{}, ErrNotConfigured
}
