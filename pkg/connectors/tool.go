package connectors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/arionlabs/arion/pkg/protocol"
)

// toolResponse is the gateway's wire shape for a tool invocation.
type toolResponse struct {
	Output      any    `json:"output"`
	Pending     bool   `json:"pending"`
	ResumeToken string `json:"resume_token,omitempty"`
}

// HTTPToolInvoker invokes tools through the tool gateway: one POST per
// invocation to {base}/tools/{name}. The gateway either answers with the
// final output or marks the invocation pending and later delivers the result
// through the resume intake queue.
type HTTPToolInvoker struct {
	baseURL  string
	client   *http.Client
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// NewHTTPToolInvoker builds a tool invoker against the given gateway.
func NewHTTPToolInvoker(cfg HTTPConfig, logger *slog.Logger) (*HTTPToolInvoker, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}

	cfg = cfg.withDefaults()

	return &HTTPToolInvoker{
		baseURL:  cfg.BaseURL,
		client:   &http.Client{Timeout: cfg.Timeout},
		attempts: cfg.RetryAttempts,
		delay:    cfg.RetryDelay,
		logger:   logger.With("module", "tool_connector"),
	}, nil
}

func (t *HTTPToolInvoker) Invoke(ctx context.Context, tool string, params map[string]any) (protocol.ToolResult, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return protocol.ToolResult{}, fmt.Errorf("failed to encode tool parameters: %w", err)
	}

	endpoint := t.baseURL + "/tools/" + url.PathEscape(tool)

	t.logger.InfoContext(ctx, "Invoking tool", "tool", tool)

	resp, err := doWithRetry(t.client, t.attempts, t.delay, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", "application/json")

		return req, nil
	})
	if err != nil {
		return protocol.ToolResult{}, fmt.Errorf("tool %q: %w", tool, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return protocol.ToolResult{}, fmt.Errorf("tool %q: failed to read response: %w", tool, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return protocol.ToolResult{}, fmt.Errorf("tool %q: gateway returned status %d: %s", tool, resp.StatusCode, string(raw))
	}

	var decoded toolResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return protocol.ToolResult{}, fmt.Errorf("tool %q: invalid gateway response: %w", tool, err)
	}

	return protocol.ToolResult{
		Output:      decoded.Output,
		Pending:     decoded.Pending,
		ResumeToken: decoded.ResumeToken,
	}, nil
}
