package nodes

import (
	"context"
	"fmt"

	"github.com/arionlabs/arion/pkg/models"
)

const defaultMaxIterations = 1000

// LoopExecutor iterates a collection expression over the body subgraph. Each
// visit of the loop node either (re)binds the next item and takes the body
// edge, or pops the frame and takes the exit edge when the collection is
// exhausted or the iteration cap is reached.
type LoopExecutor struct{}

func (*LoopExecutor) Kind() models.NodeKind { return models.KindLoop }

func (*LoopExecutor) Execute(_ context.Context, ec *ExecContext) Outcome {
	bodyNext, ok := ec.EdgeTo(models.EdgeLoopBody)
	if !ok {
		return Fail(fmt.Errorf("loop %s: no %q edge", ec.Node.ID, models.EdgeLoopBody))
	}

	exitNext, ok := ec.EdgeTo(models.EdgeLoopExit)
	if !ok {
		return Fail(fmt.Errorf("loop %s: no %q edge", ec.Node.ID, models.EdgeLoopExit))
	}

	maxIterations := defaultMaxIterations
	if raw, ok := ec.Node.Config["max_iterations"]; ok {
		switch v := raw.(type) {
		case int:
			maxIterations = v
		case float64:
			maxIterations = int(v)
		}
	}

	frame := ec.Scope.FrameFor(ec.Node.ID)
	if frame == nil {
		// First visit: evaluate the collection once. Later iterations reuse
		// the snapshot in the frame so body mutations cannot shift the list.
		collectionExpr, _ := ec.Node.Config["collection"].(string)

		items, err := ec.Expr.EvaluateList(collectionExpr, ec.Scope)
		if err != nil {
			return Fail(fmt.Errorf("loop %s: %w", ec.Node.ID, err))
		}

		if len(items) == 0 {
			return AdvanceTo(exitNext)
		}

		out := AdvanceTo(bodyNext)
		out.Frame = &models.LoopFrame{
			NodeID: ec.Node.ID,
			Items:  items,
			Index:  0,
			Item:   items[0],
		}

		return out
	}

	next := frame.Index + 1
	if next >= len(frame.Items) || next >= maxIterations {
		out := AdvanceTo(exitNext)
		out.PopFrame = true

		if next < len(frame.Items) {
			out.HistoryEvent = models.HistoryMaxIterationsReached
		}

		return out
	}

	out := AdvanceTo(bodyNext)
	out.Frame = &models.LoopFrame{
		NodeID: ec.Node.ID,
		Items:  frame.Items,
		Index:  next,
		Item:   frame.Items[next],
	}

	return out
}
