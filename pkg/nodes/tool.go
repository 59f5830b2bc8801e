package nodes

import (
	"context"
	"fmt"

	"github.com/arionlabs/arion/pkg/models"
)

// ToolExecutor resolves the configured params against the scope and hands
// them to the tool invoker. A pending result suspends the node until the
// invoker delivers the output through the resume intake.
type ToolExecutor struct{}

func (*ToolExecutor) Kind() models.NodeKind { return models.KindTool }

func (*ToolExecutor) Execute(ctx context.Context, ec *ExecContext) Outcome {
	next, err := ec.SingleNext()
	if err != nil {
		return Fail(err)
	}

	tool, _ := ec.Node.Config["tool"].(string)

	rawParams, _ := ec.Node.Config["params"].(map[string]any)
	params := make(map[string]any, len(rawParams))

	for key, value := range rawParams {
		if s, ok := value.(string); ok {
			resolved, err := ec.Expr.Resolve(s, ec.Scope)
			if err != nil {
				return Fail(fmt.Errorf("tool %s: param %s: %w", ec.Node.ID, key, err))
			}

			params[key] = resolved

			continue
		}

		params[key] = value
	}

	result, err := ec.Tools.Invoke(ctx, tool, params)
	if err != nil {
		// The invoker owns retries; an error here is final for the node.
		return Fail(fmt.Errorf("tool %s: %s: %w", ec.Node.ID, tool, err))
	}

	if result.Pending {
		return Outcome{
			Kind:        OutcomeSuspend,
			Reason:      models.SuspendReasonTool,
			ResumeToken: result.ResumeToken,
			SuspendMeta: map[string]string{"tool": tool},
		}
	}

	return AdvanceWithOutput(result.Output, next)
}
