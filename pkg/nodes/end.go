package nodes

import (
	"context"

	"github.com/arionlabs/arion/pkg/models"
)

// EndExecutor terminates the instance. If the definition declares an output
// variable the End node snapshots its current value as the instance result.
type EndExecutor struct{}

func (*EndExecutor) Kind() models.NodeKind { return models.KindEnd }

func (*EndExecutor) Execute(_ context.Context, ec *ExecContext) Outcome {
	out := Outcome{Kind: OutcomeComplete}

	if name := ec.Definition.OutputVariable; name != "" {
		out.Output = ec.Scope.Variables[name]
		out.HasOutput = true
	}

	return out
}
