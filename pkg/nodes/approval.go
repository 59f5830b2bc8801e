package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arionlabs/arion/pkg/identity"
	"github.com/arionlabs/arion/pkg/models"
)

// ApprovalExecutor resolves the assignee descriptor, creates a pending
// approval record and suspends the instance. Assignees are resolved once,
// here: a later org-chart change never redirects an in-flight approval.
type ApprovalExecutor struct{}

func (*ApprovalExecutor) Kind() models.NodeKind { return models.KindApproval }

func (*ApprovalExecutor) Execute(ctx context.Context, ec *ExecContext) Outcome {
	assigneeConfig, ok := ec.Node.Config["assignee"].(map[string]any)
	if !ok {
		return Fail(fmt.Errorf("approval %s: missing assignee descriptor", ec.Node.ID))
	}

	descriptor, err := identity.DescriptorFromConfig(assigneeConfig)
	if err != nil {
		return Fail(fmt.Errorf("approval %s: %w", ec.Node.ID, err))
	}

	assignees, err := ec.Identity.Resolve(ctx, descriptor, ec.Requester(), ec.Scope)

	if err != nil && identity.IsChainExhausted(err) {
		fallback, _ := ec.Node.Config["chain_fallback"].(map[string]any)
		if fallback == nil {
			return Fail(fmt.Errorf("approval %s: %w", ec.Node.ID, err))
		}

		ec.Logger.Warn("management chain exhausted, using fallback descriptor",
			"node_id", ec.Node.ID, "requester", ec.Requester())

		descriptor, err = identity.DescriptorFromConfig(fallback)
		if err != nil {
			return Fail(fmt.Errorf("approval %s: invalid chain_fallback: %w", ec.Node.ID, err))
		}

		assignees, err = ec.Identity.Resolve(ctx, descriptor, ec.Requester(), ec.Scope)
	}

	if err != nil {
		return Fail(fmt.Errorf("approval %s: %w", ec.Node.ID, err))
	}

	record := &models.ApprovalRecord{
		ID:          "appr-" + uuid.NewString(),
		NodeID:      ec.Node.ID,
		AssigneeIDs: assignees,
		Decision:    models.DecisionPending,
		CreatedAt:   time.Now().UTC(),
	}

	if timeout, ok := ec.Node.Config["timeout"].(map[string]any); ok {
		d, err := durationFromConfig(timeout)
		if err != nil {
			return Fail(fmt.Errorf("approval %s: %w", ec.Node.ID, err))
		}

		at := record.CreatedAt.Add(d)
		record.TimeoutAt = &at
	}

	return SuspendApproval(record)
}
