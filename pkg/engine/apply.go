package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arionlabs/arion/pkg/events"
	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/nodes"
)

// postAction is work that must happen after the instance lock is released:
// starting a child execution, or resuming a parent whose child just reached
// a terminal state.
type postAction struct {
	child  *childStart
	parent *parentResume
}

type childStart struct {
	ExecutionID  string
	DefinitionID string
	Input        map[string]any
	CreatedBy    string
	ParentID     string
	ParentNodeID string
}

type parentResume struct {
	ParentID string
	Child    *models.ExecutionInstance
}

// apply takes one executor outcome and folds it into the instance under the
// instance lock, checkpointing before the lock is released. An outcome for
// an instance that left the running state in the meantime is dropped:
// terminal states absorb late events.
func (e *Engine) apply(ctx context.Context, def *models.ProcessDefinition, executionID string, node *models.Node, out nodes.Outcome, inputHash string) (*postAction, error) {
	mu := e.lockFor(executionID)
	mu.Lock()
	defer mu.Unlock()

	inst, err := e.persistence.Executions().ByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if inst.Status != models.ExecutionStatusRunning {
		return nil, nil
	}

	post := &postAction{}
	mark := len(inst.History)

	inst.DeactivateNode(node.ID)

	switch out.Kind {
	case nodes.OutcomeAdvance:
		err = e.applyAdvance(inst, node, out)
	case nodes.OutcomeSuspend:
		err = e.applySuspend(ctx, inst, node, out, post)
	case nodes.OutcomeFail:
		err = e.applyFail(ctx, inst, node, out.Err)
	case nodes.OutcomeComplete:
		err = e.applyComplete(ctx, inst, node, out)
	}

	if err != nil {
		return nil, err
	}

	stampInputHash(inst, mark, inputHash)

	if inst.Status.Terminal() && inst.ParentID != "" {
		post.parent = &parentResume{ParentID: inst.ParentID, Child: inst}
	}

	if err := e.checkpoint(ctx, inst); err != nil {
		return nil, err
	}

	e.publishTransition(ctx, def, inst, node, out)

	return post, nil
}

// stampInputHash backfills the scope snapshot hash onto history entries
// appended since mark. Entries that already carry one are left alone.
func stampInputHash(inst *models.ExecutionInstance, mark int, hash string) {
	if hash == "" {
		return
	}

	for i := mark; i < len(inst.History); i++ {
		if inst.History[i].InputHash == "" {
			inst.History[i].InputHash = hash
		}
	}
}

func (e *Engine) applyAdvance(inst *models.ExecutionInstance, node *models.Node, out nodes.Outcome) error {
	if out.HasOutput && node.OutputVariable != "" {
		inst.Scope.Variables[node.OutputVariable] = out.Output
	}

	if out.Frame != nil {
		inst.Scope.ReplaceFrame(out.Frame)
	}

	if out.PopFrame {
		inst.Scope.PopFrame(node.ID)
	}

	if out.HistoryEvent != "" {
		inst.AppendHistory(models.HistoryEntry{NodeID: node.ID, Event: out.HistoryEvent})
	}

	inst.AppendHistory(models.HistoryEntry{
		NodeID:  node.ID,
		Event:   models.HistoryAdvanced,
		Outcome: strings.Join(out.Next, ","),
	})

	// A parallel fork arms the join barrier with its branch count before any
	// branch can arrive.
	if node.Kind == models.KindParallel {
		if joinID, ok := node.Config["join"].(string); ok && joinID != "" {
			inst.JoinWaits[joinID] = len(out.Next)
		}
	}

	for _, next := range out.Next {
		e.arrive(inst, next)
	}

	if len(inst.ActiveNodes) == 0 && len(inst.SuspendedNodes) > 0 {
		return e.transitionTo(inst, models.ExecutionStatusSuspended)
	}

	return nil
}

// arrive activates a node, honoring the join barrier: arriving at an armed
// join consumes one arrival, and only the last arrival activates it.
func (e *Engine) arrive(inst *models.ExecutionInstance, nodeID string) {
	remaining, isJoin := inst.JoinWaits[nodeID]
	if !isJoin {
		inst.ActivateNode(nodeID)

		return
	}

	remaining--
	if remaining > 0 {
		inst.JoinWaits[nodeID] = remaining

		return
	}

	delete(inst.JoinWaits, nodeID)
	inst.ActivateNode(nodeID)
}

func (e *Engine) applySuspend(ctx context.Context, inst *models.ExecutionInstance, node *models.Node, out nodes.Outcome, post *postAction) error {
	now := time.Now().UTC()
	sn := &models.SuspendedNode{
		NodeID:      node.ID,
		Reason:      out.Reason,
		ResumeToken: out.ResumeToken,
		WakeAt:      out.WakeAt,
		SuspendedAt: now,
		Meta:        out.SuspendMeta,
	}

	if out.Approval != nil {
		out.Approval.ExecutionID = inst.ID
		if err := e.persistence.Approvals().Save(ctx, out.Approval); err != nil {
			return err
		}

		inst.PendingApprovals[node.ID] = out.Approval.ID
	}

	if out.Child != nil {
		childID := "exec-" + uuid.NewString()
		sn.ResumeToken = childID
		sn.Meta = map[string]string{
			"child_execution_id":  childID,
			"continue_on_failure": strconv.FormatBool(out.Child.ContinueOnFailure),
		}

		post.child = &childStart{
			ExecutionID:  childID,
			DefinitionID: out.Child.DefinitionID,
			Input:        out.Child.Input,
			CreatedBy:    inst.CreatedBy,
			ParentID:     inst.ID,
			ParentNodeID: node.ID,
		}
	}

	if out.WakeAt != nil {
		timer := &models.Timer{
			Token:       sn.ResumeToken,
			ExecutionID: inst.ID,
			NodeID:      node.ID,
			WakeAt:      *out.WakeAt,
			CreatedAt:   now,
		}
		if err := e.persistence.Timers().Save(ctx, timer); err != nil {
			return err
		}
	}

	inst.SuspendedNodes[node.ID] = sn
	inst.AppendHistory(models.HistoryEntry{
		NodeID: node.ID,
		Event:  models.HistorySuspended,
		Detail: string(out.Reason),
	})

	if len(inst.ActiveNodes) == 0 {
		return e.transitionTo(inst, models.ExecutionStatusSuspended)
	}

	return nil
}

func (e *Engine) applyFail(ctx context.Context, inst *models.ExecutionInstance, node *models.Node, failure error) error {
	if err := e.transitionTo(inst, models.ExecutionStatusFailed); err != nil {
		return err
	}

	message := "node execution failed"
	if failure != nil {
		message = failure.Error()
	}

	inst.Error = &models.InstanceError{
		NodeID:  node.ID,
		Kind:    "node_failure",
		Message: message,
	}
	inst.AppendHistory(models.HistoryEntry{
		NodeID: node.ID,
		Event:  models.HistoryFailed,
		Detail: message,
	})

	e.finalize(ctx, inst)

	return nil
}

func (e *Engine) applyComplete(ctx context.Context, inst *models.ExecutionInstance, node *models.Node, out nodes.Outcome) error {
	if err := e.transitionTo(inst, models.ExecutionStatusCompleted); err != nil {
		return err
	}

	if out.HasOutput {
		inst.Output = out.Output
	}

	inst.AppendHistory(models.HistoryEntry{NodeID: node.ID, Event: models.HistoryCompleted})
	e.finalize(ctx, inst)

	return nil
}

// finalize clears in-flight state once a terminal status is set. Durable
// timers of suspended branches are best-effort deleted; a leftover timer is
// harmless because terminal instances absorb resume events.
func (e *Engine) finalize(ctx context.Context, inst *models.ExecutionInstance) {
	for _, sn := range inst.SuspendedNodes {
		if sn.WakeAt != nil {
			if err := e.persistence.Timers().Delete(ctx, sn.ResumeToken); err != nil {
				e.logger.Debug("timer cleanup failed", "token", sn.ResumeToken, "error", err)
			}
		}
	}

	inst.ActiveNodes = []string{}
	now := time.Now().UTC()
	inst.CompletedAt = &now
}

// transitionTo moves the instance through the closed status transition
// table. An invalid transition is a programming error, surfaced loudly.
func (e *Engine) transitionTo(inst *models.ExecutionInstance, next models.ExecutionStatus) error {
	if !models.CanTransition(inst.Status, next) {
		return fmt.Errorf("invalid status transition %s -> %s for execution %s", inst.Status, next, inst.ID)
	}

	inst.Status = next

	return nil
}

func (e *Engine) checkpoint(ctx context.Context, inst *models.ExecutionInstance) error {
	inst.UpdatedAt = time.Now().UTC()

	return e.persistence.Executions().Save(ctx, inst)
}

func (e *Engine) publishTransition(ctx context.Context, def *models.ProcessDefinition, inst *models.ExecutionInstance, node *models.Node, out nodes.Outcome) {
	switch out.Kind {
	case nodes.OutcomeSuspend:
		e.publish(ctx, inst.ID, events.ExecutionSuspended{
			BaseEvent:   e.baseEvent(events.ExecutionSuspendedEvent, def.ID),
			ExecutionID: inst.ID,
			NodeID:      node.ID,
			Reason:      string(out.Reason),
			ResumeToken: out.ResumeToken,
		})

		if out.Approval != nil {
			e.publish(ctx, inst.ID, events.ApprovalRequested{
				BaseEvent:   e.baseEvent(events.ApprovalRequestedEvent, def.ID),
				ExecutionID: inst.ID,
				ApprovalID:  out.Approval.ID,
				NodeID:      node.ID,
				AssigneeIDs: out.Approval.AssigneeIDs,
			})
		}
	case nodes.OutcomeFail:
		message := ""
		if out.Err != nil {
			message = out.Err.Error()
		}

		e.publish(ctx, inst.ID, events.ExecutionFailed{
			BaseEvent:   e.baseEvent(events.ExecutionFailedEvent, def.ID),
			ExecutionID: inst.ID,
			NodeID:      node.ID,
			Error:       message,
		})
	case nodes.OutcomeComplete:
		e.publish(ctx, inst.ID, events.ExecutionCompleted{
			BaseEvent:   e.baseEvent(events.ExecutionCompletedEvent, def.ID),
			ExecutionID: inst.ID,
			Output:      inst.Output,
			Duration:    time.Since(inst.CreatedAt),
		})
	case nodes.OutcomeAdvance:
		// Node-to-node advances are recorded in history, not published.
	}
}

// runPostActions executes deferred work after the instance lock released.
func (e *Engine) runPostActions(ctx context.Context, post *postAction) {
	if post == nil {
		return
	}

	if post.child != nil {
		e.startChild(ctx, post.child)
	}

	if post.parent != nil {
		if err := e.resumeParent(ctx, post.parent.ParentID, post.parent.Child); err != nil {
			e.logger.Error("parent resume failed",
				"parent_execution_id", post.parent.ParentID,
				"child_execution_id", post.parent.Child.ID,
				"error", err)
		}
	}
}

// startChild launches a nested execution. A definition that cannot be
// started surfaces to the parent as a failed child.
func (e *Engine) startChild(ctx context.Context, action *childStart) {
	fail := func(reason string) {
		child := &models.ExecutionInstance{
			ID:     action.ExecutionID,
			Status: models.ExecutionStatusFailed,
			Error:  &models.InstanceError{NodeID: action.ParentNodeID, Kind: "child_start_failure", Message: reason},
		}

		if err := e.resumeParent(ctx, action.ParentID, child); err != nil {
			e.logger.Error("parent resume failed after child start failure",
				"parent_execution_id", action.ParentID, "error", err)
		}
	}

	def, err := e.persistence.Definitions().ByID(ctx, action.DefinitionID)
	if err != nil {
		fail(fmt.Sprintf("child definition %s not found", action.DefinitionID))

		return
	}

	if def.Status != models.DefinitionStatusPublished {
		fail(fmt.Sprintf("child definition %s is %s, not published", def.ID, def.Status))

		return
	}

	inst, err := e.start(ctx, def, action.Input, action.CreatedBy, action.ExecutionID, action.ParentID, action.ParentNodeID)
	if err != nil {
		fail(err.Error())

		return
	}

	if err := e.drive(ctx, inst.ID); err != nil {
		e.logger.Error("child dispatch failed", "execution_id", inst.ID, "error", err)
	}
}
