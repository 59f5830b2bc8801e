package nodes

import (
	"context"
	"fmt"

	"github.com/arionlabs/arion/pkg/models"
)

// CallProcessExecutor starts a nested execution of another published
// definition and suspends the parent until the child reaches a terminal
// state. Input values are resolved against the parent scope before handoff;
// the child never sees the parent scope itself.
type CallProcessExecutor struct{}

func (*CallProcessExecutor) Kind() models.NodeKind { return models.KindCallProcess }

func (*CallProcessExecutor) Execute(_ context.Context, ec *ExecContext) Outcome {
	definitionID, _ := ec.Node.Config["definition_id"].(string)
	if definitionID == "" {
		return Fail(fmt.Errorf("call_process %s: missing definition_id", ec.Node.ID))
	}

	rawInput, _ := ec.Node.Config["input"].(map[string]any)
	input := make(map[string]any, len(rawInput))

	for key, value := range rawInput {
		if s, ok := value.(string); ok {
			resolved, err := ec.Expr.Resolve(s, ec.Scope)
			if err != nil {
				return Fail(fmt.Errorf("call_process %s: input %s: %w", ec.Node.ID, key, err))
			}

			input[key] = resolved

			continue
		}

		input[key] = value
	}

	continueOnFailure, _ := ec.Node.Config["continue_on_failure"].(bool)

	return Outcome{
		Kind:   OutcomeSuspend,
		Reason: models.SuspendReasonChild,
		Child: &ChildRequest{
			DefinitionID:      definitionID,
			Input:             input,
			ContinueOnFailure: continueOnFailure,
		},
	}
}
