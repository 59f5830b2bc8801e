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

// WebhookNotifier delivers notifications by POSTing them to the notification
// gateway, which fans out to the actual transports (email, chat). Delivery is
// at-least-once; the gateway deduplicates.
type WebhookNotifier struct {
	endpoint string
	client   *http.Client
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

// NewWebhookNotifier builds a notifier against the given gateway endpoint.
func NewWebhookNotifier(cfg HTTPConfig, logger *slog.Logger) (*WebhookNotifier, error) {
	if cfg.BaseURL == "" {
		return nil, ErrBaseURLRequired
	}

	cfg = cfg.withDefaults()

	return &WebhookNotifier{
		endpoint: cfg.BaseURL + "/notifications",
		client:   &http.Client{Timeout: cfg.Timeout},
		attempts: cfg.RetryAttempts,
		delay:    cfg.RetryDelay,
		logger:   logger.With("module", "notifier_connector"),
	}, nil
}

func (n *WebhookNotifier) Send(ctx context.Context, notification protocol.Notification) error {
	body, err := json.Marshal(map[string]any{
		"recipients": notification.Recipients,
		"subject":    notification.Subject,
		"body":       notification.Body,
		"channel":    notification.Channel,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	resp, err := doWithRetry(n.client, n.attempts, n.delay, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		req.Header.Set("Content-Type", "application/json")

		return req, nil
	})
	if err != nil {
		return fmt.Errorf("notification delivery failed: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)

		if err := resp.Body.Close(); err != nil {
			n.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notification gateway returned status %d", resp.StatusCode)
	}

	n.logger.InfoContext(ctx, "Notification delivered",
		"recipients", len(notification.Recipients),
		"channel", notification.Channel,
	)

	return nil
}

// LogNotifier writes notifications to the log instead of delivering them.
// It is the fallback for deployments without a notification gateway, so
// notification nodes still complete instead of failing executions.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notifier_connector")}
}

func (n *LogNotifier) Send(ctx context.Context, notification protocol.Notification) error {
	n.logger.InfoContext(ctx, "Notification (log only)",
		"recipients", notification.Recipients,
		"subject", notification.Subject,
		"body", notification.Body,
		"channel", notification.Channel,
	)

	return nil
}
