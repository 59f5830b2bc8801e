package connectors_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arionlabs/arion/pkg/connectors"
	"github.com/arionlabs/arion/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fastConfig(baseURL string) connectors.HTTPConfig {
	return connectors.HTTPConfig{
		BaseURL:       baseURL,
		Timeout:       2 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}
}

func TestHTTPToolInvokerDecodesResult(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tools/fetch-invoice", r.URL.Path)

		var params map[string]any

		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		assert.Equal(t, "inv-9", params["invoice_id"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"output": map[string]any{"total": 120.5},
		})
	}))
	defer server.Close()

	invoker, err := connectors.NewHTTPToolInvoker(fastConfig(server.URL), testLogger())
	require.NoError(t, err)

	result, err := invoker.Invoke(context.Background(), "fetch-invoice", map[string]any{"invoice_id": "inv-9"})
	require.NoError(t, err)
	assert.False(t, result.Pending)
	assert.Equal(t, map[string]any{"total": 120.5}, result.Output)
}

func TestHTTPToolInvokerPendingResult(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"pending":      true,
			"resume_token": "tok-42",
		})
	}))
	defer server.Close()

	invoker, err := connectors.NewHTTPToolInvoker(fastConfig(server.URL), testLogger())
	require.NoError(t, err)

	result, err := invoker.Invoke(context.Background(), "long-job", nil)
	require.NoError(t, err)
	assert.True(t, result.Pending)
	assert.Equal(t, "tok-42", result.ResumeToken)
}

func TestHTTPToolInvokerRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"output": "ok"})
	}))
	defer server.Close()

	invoker, err := connectors.NewHTTPToolInvoker(fastConfig(server.URL), testLogger())
	require.NoError(t, err)

	result, err := invoker.Invoke(context.Background(), "flaky", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Output)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPToolInvokerClientErrorIsFinal(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown tool", http.StatusNotFound)
	}))
	defer server.Close()

	invoker, err := connectors.NewHTTPToolInvoker(fastConfig(server.URL), testLogger())
	require.NoError(t, err)

	_, err = invoker.Invoke(context.Background(), "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
	assert.Equal(t, int32(1), calls.Load(), "client errors must not be retried")
}

func TestNewHTTPToolInvokerRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := connectors.NewHTTPToolInvoker(connectors.HTTPConfig{}, testLogger())
	require.ErrorIs(t, err, connectors.ErrBaseURLRequired)
}

func TestWebhookNotifierPostsNotification(t *testing.T) {
	t.Parallel()

	var got map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notifications", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	notifier, err := connectors.NewWebhookNotifier(fastConfig(server.URL), testLogger())
	require.NoError(t, err)

	err = notifier.Send(context.Background(), protocol.Notification{
		Recipients: []string{"emp-1"},
		Subject:    "Approval needed",
		Body:       "Please review.",
		Channel:    "email",
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"emp-1"}, got["recipients"])
	assert.Equal(t, "email", got["channel"])
}

func TestLogNotifierNeverFails(t *testing.T) {
	t.Parallel()

	notifier := connectors.NewLogNotifier(testLogger())

	err := notifier.Send(context.Background(), protocol.Notification{Recipients: []string{"emp-1"}})
	require.NoError(t, err)
}

func TestHTTPCompletionServiceDecodesFields(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/complete", r.URL.Path)

		var req map[string]any

		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Summarize the request.", req["prompt"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"fields": map[string]any{"summary": "ok to approve"},
			"raw":    `{"summary": "ok to approve"}`,
		})
	}))
	defer server.Close()

	svc, err := connectors.NewHTTPCompletionService(fastConfig(server.URL), testLogger())
	require.NoError(t, err)

	resp, err := svc.Complete(context.Background(), protocol.CompletionRequest{
		Prompt:       "Summarize the request.",
		OutputFields: []protocol.OutputField{{Name: "summary"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok to approve", resp.Fields["summary"])
	assert.NotEmpty(t, resp.Raw)
}

func TestUnconfiguredFallbacks(t *testing.T) {
	t.Parallel()

	_, err := connectors.UnconfiguredTools{}.Invoke(context.Background(), "anything", nil)
	require.ErrorIs(t, err, connectors.ErrNotConfigured)

	_, err = connectors.UnconfiguredCompletion{}.Complete(context.Background(), protocol.CompletionRequest{})
	require.ErrorIs(t, err, connectors.ErrNotConfigured)
}
