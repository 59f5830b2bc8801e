package nodes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/arionlabs/arion/pkg/expr"
	"github.com/arionlabs/arion/pkg/identity"
	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/protocol"
)

// ExecContext is everything an executor may consult: the node and its
// outgoing edges, a scope snapshot, and the injected collaborators. The
// scope is a clone; executors communicate mutations only through Outcome.
type ExecContext struct {
	Definition *models.ProcessDefinition
	Node       *models.Node
	Edges      []*models.Edge
	Scope      *models.Scope
	Expr       *expr.Resolver
	Identity   *identity.Resolver
	Tools      protocol.ToolInvoker
	Completion protocol.CompletionService
	Notifier   protocol.Notifier
	Logger     *slog.Logger
}

// Requester returns the caller identity recorded in the execution context.
func (ec *ExecContext) Requester() string {
	if ec.Scope == nil || ec.Scope.Context == nil {
		return ""
	}

	id, _ := ec.Scope.Context["user_id"].(string)

	return id
}

// EdgeTo returns the target of the outgoing edge with the given label.
func (ec *ExecContext) EdgeTo(label string) (string, bool) {
	for _, e := range ec.Edges {
		if e.Label == label {
			return e.To, true
		}
	}

	return "", false
}

// SingleNext returns the target of the node's single outgoing edge.
// Validation guarantees it exists for every single-exit kind.
func (ec *ExecContext) SingleNext() (string, error) {
	if len(ec.Edges) != 1 {
		return "", fmt.Errorf("node %s: expected one outgoing edge, found %d", ec.Node.ID, len(ec.Edges))
	}

	return ec.Edges[0].To, nil
}

// Executor runs one node kind.
type Executor interface {
	Kind() models.NodeKind
	Execute(ctx context.Context, ec *ExecContext) Outcome
}

var errUnknownKind = errors.New("no executor registered for node kind")

// Registry maps every node kind to its executor. The set is closed: NewRegistry
// registers all twelve kinds, and validation rejects definitions using any
// other kind before an instance exists.
type Registry struct {
	executors map[models.NodeKind]Executor
}

// NewRegistry builds the full executor set.
func NewRegistry() *Registry {
	r := &Registry{executors: make(map[models.NodeKind]Executor)}

	for _, e := range []Executor{
		&StartExecutor{},
		&FormExecutor{},
		&ConditionExecutor{},
		&LoopExecutor{},
		&ParallelExecutor{},
		&DelayExecutor{},
		&ApprovalExecutor{},
		&NotificationExecutor{},
		&AITaskExecutor{},
		&ToolExecutor{},
		&CallProcessExecutor{},
		&EndExecutor{},
	} {
		r.executors[e.Kind()] = e
	}

	return r
}

// ExecutorFor returns the executor for a node kind.
func (r *Registry) ExecutorFor(kind models.NodeKind) (Executor, error) {
	e, ok := r.executors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownKind, kind)
	}

	return e, nil
}
