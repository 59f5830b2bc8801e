package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/arionlabs/arion/pkg/events"
	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/persistence"
)

// DecideApproval finalizes a pending approval and advances the execution
// along the approve or reject edge. A record is decided exactly once: the
// second decision gets ErrAlreadyDecided regardless of content. Only
// assignees recorded at suspension time may decide.
func (e *Engine) DecideApproval(ctx context.Context, approvalID, userID string, decision models.ApprovalDecision) error {
	if decision != models.DecisionApproved && decision != models.DecisionRejected {
		return fmt.Errorf("invalid decision %q", decision)
	}

	record, err := e.persistence.Approvals().ByID(ctx, approvalID)
	if err != nil {
		return err
	}

	if !record.IsAssignee(userID) {
		return &ResumeError{ExecutionID: record.ExecutionID, Token: approvalID, Err: ErrNotAssignee}
	}

	mu := e.lockFor(record.ExecutionID)
	mu.Lock()

	err = e.decideApprovalLocked(ctx, record.ExecutionID, approvalID, userID, decision)
	mu.Unlock()

	if err != nil {
		return err
	}

	return e.drive(ctx, record.ExecutionID)
}

func (e *Engine) decideApprovalLocked(ctx context.Context, executionID, approvalID, userID string, decision models.ApprovalDecision) error {
	// Re-read under the lock: a concurrent decision may have won the race.
	record, err := e.persistence.Approvals().ByID(ctx, approvalID)
	if err != nil {
		return err
	}

	if record.Decided() {
		return &ResumeError{ExecutionID: executionID, Token: approvalID, Err: ErrAlreadyDecided}
	}

	inst, err := e.persistence.Executions().ByID(ctx, executionID)
	if err != nil {
		return err
	}

	if inst.Status.Terminal() {
		return &ResumeError{ExecutionID: executionID, Token: approvalID, Err: ErrNotResumable}
	}

	sn := inst.SuspendedNodes[record.NodeID]
	if sn == nil || sn.ResumeToken != approvalID {
		return &ResumeError{ExecutionID: executionID, Token: approvalID, Err: ErrNotResumable}
	}

	def, err := e.persistence.Definitions().ByID(ctx, inst.DefinitionID)
	if err != nil {
		return err
	}

	mark := len(inst.History)
	inputHash := inst.Scope.Hash()

	now := time.Now().UTC()
	record.Decision = decision
	record.DecidedBy = userID
	record.DecidedAt = &now

	if err := e.persistence.Approvals().Save(ctx, record); err != nil {
		return err
	}

	if record.TimeoutAt != nil {
		if err := e.persistence.Timers().Delete(ctx, approvalID); err != nil && !errors.Is(err, persistence.ErrTimerNotFound) {
			e.logger.Debug("timer cleanup failed", "token", approvalID, "error", err)
		}
	}

	label := models.EdgeReject
	if decision == models.DecisionApproved {
		label = models.EdgeApprove
	}

	edge := def.EdgeByLabel(record.NodeID, label)
	if edge == nil {
		return fmt.Errorf("approval node %s has no %q edge", record.NodeID, label)
	}

	delete(inst.SuspendedNodes, record.NodeID)
	delete(inst.PendingApprovals, record.NodeID)

	if inst.Status == models.ExecutionStatusSuspended {
		if err := e.transitionTo(inst, models.ExecutionStatusRunning); err != nil {
			return err
		}
	}

	e.arrive(inst, edge.To)
	inst.AppendHistory(models.HistoryEntry{
		NodeID:  record.NodeID,
		Event:   models.HistoryResumed,
		Detail:  string(decision),
		Outcome: edge.To,
	})

	stampInputHash(inst, mark, inputHash)

	if err := e.checkpoint(ctx, inst); err != nil {
		return err
	}

	e.publish(ctx, inst.ID, events.ApprovalDecided{
		BaseEvent:   e.baseEvent(events.ApprovalDecidedEvent, inst.DefinitionID),
		ExecutionID: inst.ID,
		ApprovalID:  approvalID,
		NodeID:      record.NodeID,
		Decision:    string(decision),
		DecidedBy:   userID,
	})
	e.publish(ctx, inst.ID, events.ExecutionResumed{
		BaseEvent:   e.baseEvent(events.ExecutionResumedEvent, inst.DefinitionID),
		ExecutionID: inst.ID,
		NodeID:      record.NodeID,
	})

	return nil
}

// ResumeTimer fires one due timer: a Delay wake-up, or an Approval timeout.
// Timers addressing terminal or already-resumed executions are deleted and
// otherwise ignored, so timer redelivery is safe.
func (e *Engine) ResumeTimer(ctx context.Context, timer *models.Timer) error {
	mu := e.lockFor(timer.ExecutionID)
	mu.Lock()

	resumed, err := e.resumeTimerLocked(ctx, timer)
	mu.Unlock()

	if err != nil {
		return err
	}

	if !resumed {
		return nil
	}

	return e.drive(ctx, timer.ExecutionID)
}

func (e *Engine) resumeTimerLocked(ctx context.Context, timer *models.Timer) (bool, error) {
	dropTimer := func() {
		if err := e.persistence.Timers().Delete(ctx, timer.Token); err != nil && !errors.Is(err, persistence.ErrTimerNotFound) {
			e.logger.Debug("timer cleanup failed", "token", timer.Token, "error", err)
		}
	}

	inst, err := e.persistence.Executions().ByID(ctx, timer.ExecutionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			dropTimer()

			return false, nil
		}

		return false, err
	}

	sn := inst.SuspendedByToken(timer.Token)
	if inst.Status.Terminal() || sn == nil {
		dropTimer()

		return false, nil
	}

	def, err := e.persistence.Definitions().ByID(ctx, inst.DefinitionID)
	if err != nil {
		return false, err
	}

	mark := len(inst.History)
	inputHash := inst.Scope.Hash()

	switch sn.Reason {
	case models.SuspendReasonTimer:
		edges := def.OutgoingEdges(sn.NodeID)
		if len(edges) != 1 {
			return false, fmt.Errorf("delay node %s: expected one outgoing edge, found %d", sn.NodeID, len(edges))
		}

		delete(inst.SuspendedNodes, sn.NodeID)

		if inst.Status == models.ExecutionStatusSuspended {
			if err := e.transitionTo(inst, models.ExecutionStatusRunning); err != nil {
				return false, err
			}
		}

		e.arrive(inst, edges[0].To)
		inst.AppendHistory(models.HistoryEntry{
			NodeID:  sn.NodeID,
			Event:   models.HistoryResumed,
			Detail:  "timer",
			Outcome: edges[0].To,
		})
	case models.SuspendReasonApproval:
		resumed, err := e.approvalTimeoutLocked(ctx, def, inst, sn)
		if err != nil {
			return false, err
		}

		dropTimer()
		stampInputHash(inst, mark, inputHash)

		if err := e.checkpoint(ctx, inst); err != nil {
			return false, err
		}

		if resumed {
			e.publish(ctx, inst.ID, events.ExecutionResumed{
				BaseEvent:   e.baseEvent(events.ExecutionResumedEvent, inst.DefinitionID),
				ExecutionID: inst.ID,
				NodeID:      sn.NodeID,
			})
		}

		return resumed, nil
	default:
		e.logger.Warn("timer addressed a non-timer suspension, ignoring",
			"execution_id", inst.ID, "node_id", sn.NodeID, "reason", sn.Reason)
		dropTimer()

		return false, nil
	}

	dropTimer()
	stampInputHash(inst, mark, inputHash)

	if err := e.checkpoint(ctx, inst); err != nil {
		return false, err
	}

	e.publish(ctx, inst.ID, events.ExecutionResumed{
		BaseEvent:   e.baseEvent(events.ExecutionResumedEvent, inst.DefinitionID),
		ExecutionID: inst.ID,
		NodeID:      sn.NodeID,
	})

	return true, nil
}

// approvalTimeoutLocked handles an approval whose timeout elapsed without a
// decision: take the timeout edge when the node declares one, fail the
// instance otherwise. The record stays undecided; it merely leaves the
// pending set.
func (e *Engine) approvalTimeoutLocked(ctx context.Context, def *models.ProcessDefinition, inst *models.ExecutionInstance, sn *models.SuspendedNode) (bool, error) {
	record, err := e.persistence.Approvals().ByID(ctx, sn.ResumeToken)
	if err == nil && record.Decided() {
		// Decision won the race against the timeout.
		return false, nil
	}

	delete(inst.SuspendedNodes, sn.NodeID)
	delete(inst.PendingApprovals, sn.NodeID)

	if inst.Status == models.ExecutionStatusSuspended {
		if err := e.transitionTo(inst, models.ExecutionStatusRunning); err != nil {
			return false, err
		}
	}

	inst.AppendHistory(models.HistoryEntry{
		NodeID: sn.NodeID,
		Event:  models.HistoryApprovalTimeout,
	})

	if edge := def.EdgeByLabel(sn.NodeID, models.EdgeTimeout); edge != nil {
		e.arrive(inst, edge.To)
		inst.AppendHistory(models.HistoryEntry{
			NodeID:  sn.NodeID,
			Event:   models.HistoryResumed,
			Detail:  "timeout",
			Outcome: edge.To,
		})

		return true, nil
	}

	failure := fmt.Errorf("approval %s timed out without a decision", sn.ResumeToken)
	if err := e.applyFail(ctx, inst, &models.Node{ID: sn.NodeID}, failure); err != nil {
		return false, err
	}

	e.publish(ctx, inst.ID, events.ExecutionFailed{
		BaseEvent:   e.baseEvent(events.ExecutionFailedEvent, inst.DefinitionID),
		ExecutionID: inst.ID,
		NodeID:      sn.NodeID,
		Error:       failure.Error(),
	})

	return false, nil
}

// ResumeTool delivers the output of a long-running tool invocation.
func (e *Engine) ResumeTool(ctx context.Context, executionID, token string, output any) error {
	mu := e.lockFor(executionID)
	mu.Lock()

	err := e.resumeToolLocked(ctx, executionID, token, output)
	mu.Unlock()

	if err != nil {
		return err
	}

	return e.drive(ctx, executionID)
}

func (e *Engine) resumeToolLocked(ctx context.Context, executionID, token string, output any) error {
	inst, err := e.persistence.Executions().ByID(ctx, executionID)
	if err != nil {
		return err
	}

	if inst.Status.Terminal() {
		return &ResumeError{ExecutionID: executionID, Token: token, Err: ErrNotResumable}
	}

	sn := inst.SuspendedByToken(token)
	if sn == nil || sn.Reason != models.SuspendReasonTool {
		return &ResumeError{ExecutionID: executionID, Token: token, Err: ErrNotResumable}
	}

	def, err := e.persistence.Definitions().ByID(ctx, inst.DefinitionID)
	if err != nil {
		return err
	}

	node := def.NodeByID(sn.NodeID)
	if node == nil {
		return fmt.Errorf("node %s not found in definition %s", sn.NodeID, def.ID)
	}

	edges := def.OutgoingEdges(node.ID)
	if len(edges) != 1 {
		return fmt.Errorf("tool node %s: expected one outgoing edge, found %d", node.ID, len(edges))
	}

	mark := len(inst.History)
	inputHash := inst.Scope.Hash()

	if node.OutputVariable != "" {
		inst.Scope.Variables[node.OutputVariable] = output
	}

	delete(inst.SuspendedNodes, node.ID)

	if inst.Status == models.ExecutionStatusSuspended {
		if err := e.transitionTo(inst, models.ExecutionStatusRunning); err != nil {
			return err
		}
	}

	e.arrive(inst, edges[0].To)
	inst.AppendHistory(models.HistoryEntry{
		NodeID:  node.ID,
		Event:   models.HistoryResumed,
		Detail:  "tool",
		Outcome: edges[0].To,
	})

	stampInputHash(inst, mark, inputHash)

	if err := e.checkpoint(ctx, inst); err != nil {
		return err
	}

	e.publish(ctx, inst.ID, events.ExecutionResumed{
		BaseEvent:   e.baseEvent(events.ExecutionResumedEvent, inst.DefinitionID),
		ExecutionID: inst.ID,
		NodeID:      node.ID,
	})

	return nil
}

// DueTimers returns the durable timers whose wake time has passed, oldest
// first. The timer poller feeds each one back through ResumeTimer.
func (e *Engine) DueTimers(ctx context.Context, now time.Time) ([]*models.Timer, error) {
	return e.persistence.Timers().Due(ctx, now)
}

// CancelExecution terminates a running or suspended execution. Terminal
// executions cannot be cancelled again.
func (e *Engine) CancelExecution(ctx context.Context, executionID, cancelledBy string) error {
	mu := e.lockFor(executionID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := e.persistence.Executions().ByID(ctx, executionID)
	if err != nil {
		return err
	}

	if inst.Status.Terminal() {
		return fmt.Errorf("%w: execution %s is %s", ErrNotCancellable, executionID, inst.Status)
	}

	if err := e.transitionTo(inst, models.ExecutionStatusCancelled); err != nil {
		return err
	}

	inst.AppendHistory(models.HistoryEntry{
		Event:     models.HistoryCancelled,
		Detail:    "cancelled by " + cancelledBy,
		InputHash: inst.Scope.Hash(),
	})
	e.finalize(ctx, inst)

	if err := e.checkpoint(ctx, inst); err != nil {
		return err
	}

	e.publish(ctx, inst.ID, events.ExecutionCancelled{
		BaseEvent:   e.baseEvent(events.ExecutionCancelledEvent, inst.DefinitionID),
		ExecutionID: inst.ID,
		CancelledBy: cancelledBy,
	})

	e.logger.Info("execution cancelled", "execution_id", executionID, "cancelled_by", cancelledBy)

	return nil
}

// resumeParent delivers a child execution's terminal state to the waiting
// CallProcess node. A parent that is itself terminal absorbs the event.
func (e *Engine) resumeParent(ctx context.Context, parentID string, child *models.ExecutionInstance) error {
	mu := e.lockFor(parentID)
	mu.Lock()

	resumed, err := e.resumeParentLocked(ctx, parentID, child)
	mu.Unlock()

	if err != nil {
		return err
	}

	if !resumed {
		return nil
	}

	return e.drive(ctx, parentID)
}

func (e *Engine) resumeParentLocked(ctx context.Context, parentID string, child *models.ExecutionInstance) (bool, error) {
	inst, err := e.persistence.Executions().ByID(ctx, parentID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			return false, nil
		}

		return false, err
	}

	if inst.Status.Terminal() {
		return false, nil
	}

	sn := inst.SuspendedByToken(child.ID)
	if sn == nil || sn.Reason != models.SuspendReasonChild {
		return false, nil
	}

	def, err := e.persistence.Definitions().ByID(ctx, inst.DefinitionID)
	if err != nil {
		return false, err
	}

	node := def.NodeByID(sn.NodeID)
	if node == nil {
		return false, fmt.Errorf("node %s not found in definition %s", sn.NodeID, def.ID)
	}

	continueOnFailure := sn.Meta["continue_on_failure"] == "true"

	mark := len(inst.History)
	inputHash := inst.Scope.Hash()

	delete(inst.SuspendedNodes, sn.NodeID)

	if inst.Status == models.ExecutionStatusSuspended {
		if err := e.transitionTo(inst, models.ExecutionStatusRunning); err != nil {
			return false, err
		}
	}

	if child.Status != models.ExecutionStatusCompleted && !continueOnFailure {
		detail := fmt.Sprintf("child execution %s %s", child.ID, child.Status)
		if child.Error != nil {
			detail += ": " + child.Error.Message
		}

		if err := e.applyFail(ctx, inst, node, errors.New(detail)); err != nil {
			return false, err
		}

		stampInputHash(inst, mark, inputHash)

		if err := e.checkpoint(ctx, inst); err != nil {
			return false, err
		}

		e.publish(ctx, inst.ID, events.ExecutionFailed{
			BaseEvent:   e.baseEvent(events.ExecutionFailedEvent, inst.DefinitionID),
			ExecutionID: inst.ID,
			NodeID:      node.ID,
			Error:       detail,
		})

		return false, nil
	}

	if node.OutputVariable != "" {
		switch {
		case child.Status == models.ExecutionStatusCompleted:
			inst.Scope.Variables[node.OutputVariable] = child.Output
		case child.Error != nil:
			inst.Scope.Variables[node.OutputVariable] = map[string]any{
				"error":   child.Error.Message,
				"kind":    child.Error.Kind,
				"node_id": child.Error.NodeID,
				"status":  string(child.Status),
			}
		default:
			inst.Scope.Variables[node.OutputVariable] = map[string]any{
				"error":  "child execution " + string(child.Status),
				"status": string(child.Status),
			}
		}
	}

	edges := def.OutgoingEdges(node.ID)
	if len(edges) != 1 {
		return false, fmt.Errorf("call_process node %s: expected one outgoing edge, found %d", node.ID, len(edges))
	}

	e.arrive(inst, edges[0].To)
	inst.AppendHistory(models.HistoryEntry{
		NodeID:  node.ID,
		Event:   models.HistoryResumed,
		Detail:  "child " + string(child.Status),
		Outcome: edges[0].To,
	})

	stampInputHash(inst, mark, inputHash)

	if err := e.checkpoint(ctx, inst); err != nil {
		return false, err
	}

	e.publish(ctx, inst.ID, events.ExecutionResumed{
		BaseEvent:   e.baseEvent(events.ExecutionResumedEvent, inst.DefinitionID),
		ExecutionID: inst.ID,
		NodeID:      node.ID,
	})

	return true, nil
}
