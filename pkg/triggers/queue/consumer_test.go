package queue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arionlabs/arion/pkg/engine"
	"github.com/arionlabs/arion/pkg/log"
	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/triggers/queue"
)

type fakeDispatcher struct {
	decided   []string
	resumed   []string
	started   []string
	cancelled []string

	decideErr error
}

func (f *fakeDispatcher) StartExecution(_ context.Context, definitionID string, _ map[string]any, _ string) (*models.ExecutionInstance, error) {
	f.started = append(f.started, definitionID)

	return &models.ExecutionInstance{ID: "exec-1"}, nil
}

func (f *fakeDispatcher) DecideApproval(_ context.Context, approvalID, _ string, _ models.ApprovalDecision) error {
	f.decided = append(f.decided, approvalID)

	return f.decideErr
}

func (f *fakeDispatcher) ResumeTool(_ context.Context, executionID, _ string, _ any) error {
	f.resumed = append(f.resumed, executionID)

	return nil
}

func (f *fakeDispatcher) CancelExecution(_ context.Context, executionID, _ string) error {
	f.cancelled = append(f.cancelled, executionID)

	return nil
}

func newConsumer(t *testing.T, dispatcher *fakeDispatcher) *queue.Consumer {
	t.Helper()

	c, err := queue.NewConsumer(map[string]any{"queue": "arion.intake"}, dispatcher, log.WithModule("test"))
	require.NoError(t, err)

	return c
}

func TestNewConsumerRequiresQueueName(t *testing.T) {
	_, err := queue.NewConsumer(map[string]any{}, &fakeDispatcher{}, log.WithModule("test"))
	require.Error(t, err)
}

func TestDispatchApprovalDecision(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	c := newConsumer(t, dispatcher)

	err := c.Dispatch(context.Background(), queue.Message{
		Type:       queue.EventApprovalDecision,
		ApprovalID: "appr-1",
		UserID:     "mgr-1",
		Decision:   "approved",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"appr-1"}, dispatcher.decided)
}

func TestDispatchAbsorbsRedeliveredDecision(t *testing.T) {
	dispatcher := &fakeDispatcher{decideErr: engine.ErrAlreadyDecided}
	c := newConsumer(t, dispatcher)

	err := c.Dispatch(context.Background(), queue.Message{
		Type:       queue.EventApprovalDecision,
		ApprovalID: "appr-1",
		UserID:     "mgr-1",
		Decision:   "approved",
	})
	require.NoError(t, err)
}

func TestDispatchToolResult(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	c := newConsumer(t, dispatcher)

	err := c.Dispatch(context.Background(), queue.Message{
		Type:        queue.EventToolResult,
		ExecutionID: "exec-9",
		ResumeToken: "tok-1",
		Output:      map[string]any{"ok": true},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"exec-9"}, dispatcher.resumed)
}

func TestDispatchWebhookDefaultsCreator(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	c := newConsumer(t, dispatcher)

	err := c.Dispatch(context.Background(), queue.Message{
		Type:         queue.EventWebhookReceived,
		DefinitionID: "def-1",
		Input:        map[string]any{"amount": 10},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"def-1"}, dispatcher.started)
}

func TestDispatchUnknownTypeIgnored(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	c := newConsumer(t, dispatcher)

	err := c.Dispatch(context.Background(), queue.Message{Type: "something.else"})
	require.NoError(t, err)
	assert.Empty(t, dispatcher.decided)
	assert.Empty(t, dispatcher.started)
}
