// Package connectors provides the HTTP-backed implementations of the
// engine's external collaborators: tool invocation, notification delivery,
// and AI completion. Each connector talks to a gateway service owned by the
// platform; credentials and routing beyond the base URL live there.
package connectors

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeoutSeconds = 30
	defaultRetryAttempts  = 3
	defaultRetryDelay     = 2 * time.Second

	maxResponseBytes = 10 << 20
)

var (
	// ErrBaseURLRequired is returned when a connector is built without a
	// gateway base URL.
	ErrBaseURLRequired = errors.New("connector base URL is required")

	// ErrServerError is returned when the gateway answers with a 5xx status
	// on the last retry attempt.
	ErrServerError = errors.New("gateway server error")

	// ErrNotConfigured is returned by the unconfigured fallbacks wired when a
	// deployment has no gateway for the capability.
	ErrNotConfigured = errors.New("connector not configured")
)

// HTTPConfig is the shared knob set of the HTTP connectors.
type HTTPConfig struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeoutSeconds * time.Second
	}

	if c.RetryAttempts <= 0 {
		c.RetryAttempts = defaultRetryAttempts
	}

	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}

	return c
}

// doWithRetry performs the request-building closure up to attempts times,
// retrying on transport errors and 5xx responses. The caller owns the
// returned body.
func doWithRetry(client *http.Client, attempts int, delay time.Duration, build func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			time.Sleep(delay)
		}

		req, err := build()
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)

			continue
		}

		if resp.StatusCode >= http.StatusInternalServerError && attempt < attempts {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()

			lastErr = fmt.Errorf("status %d: %w", resp.StatusCode, ErrServerError)

			continue
		}

		return resp, nil
	}

	return nil, fmt.Errorf("all retry attempts failed, last error: %w", lastErr)
}
