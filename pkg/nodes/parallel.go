package nodes

import (
	"context"
	"fmt"

	"github.com/arionlabs/arion/pkg/models"
)

// ParallelExecutor activates every outgoing branch at once. The matching
// join barrier is armed by the engine from the branch count; the executor
// itself only fans out.
type ParallelExecutor struct{}

func (*ParallelExecutor) Kind() models.NodeKind { return models.KindParallel }

func (*ParallelExecutor) Execute(_ context.Context, ec *ExecContext) Outcome {
	if len(ec.Edges) < 2 {
		return Fail(fmt.Errorf("parallel %s: needs at least two branches, found %d", ec.Node.ID, len(ec.Edges)))
	}

	next := make([]string, 0, len(ec.Edges))
	for _, e := range ec.Edges {
		next = append(next, e.To)
	}

	return AdvanceTo(next...)
}
