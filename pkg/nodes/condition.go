package nodes

import (
	"context"
	"fmt"

	"github.com/arionlabs/arion/pkg/models"
)

// ConditionExecutor evaluates a boolean expression over the scope and
// advances along the yes or no edge. A non-boolean result fails the node:
// there is no truthiness coercion.
type ConditionExecutor struct{}

func (*ConditionExecutor) Kind() models.NodeKind { return models.KindCondition }

func (*ConditionExecutor) Execute(_ context.Context, ec *ExecContext) Outcome {
	expression, _ := ec.Node.Config["expression"].(string)

	result, err := ec.Expr.EvaluateBool(expression, ec.Scope)
	if err != nil {
		return Fail(fmt.Errorf("condition %s: %w", ec.Node.ID, err))
	}

	label := models.EdgeNo
	if result {
		label = models.EdgeYes
	}

	next, ok := ec.EdgeTo(label)
	if !ok {
		return Fail(fmt.Errorf("condition %s: no %q edge", ec.Node.ID, label))
	}

	return AdvanceTo(next)
}
