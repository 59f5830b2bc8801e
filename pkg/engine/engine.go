// Package engine drives execution instances through their definition graphs:
// sequential node dispatch, durable checkpoints after every transition, and
// resume entry points for approvals, timers, tool results and child
// executions.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/arionlabs/arion/pkg/eventbus"
	"github.com/arionlabs/arion/pkg/events"
	"github.com/arionlabs/arion/pkg/expr"
	"github.com/arionlabs/arion/pkg/identity"
	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/nodes"
	"github.com/arionlabs/arion/pkg/otelhelper"
	"github.com/arionlabs/arion/pkg/persistence"
	"github.com/arionlabs/arion/pkg/protocol"
)

// Config carries the engine's collaborators. Persistence and Identity are
// required; the rest default to no-op implementations.
type Config struct {
	Persistence persistence.Persistence
	Identity    *identity.Resolver
	Tools       protocol.ToolInvoker
	Completion  protocol.CompletionService
	Notifier    protocol.Notifier
	Publisher   eventbus.EventPublisher
	Tracer      trace.Tracer
	Logger      *slog.Logger
}

// Engine owns all execution state transitions. Every mutation of an instance
// happens under that instance's lock and is checkpointed before the lock is
// released; node executors run outside the lock against a scope clone.
type Engine struct {
	persistence persistence.Persistence
	registry    *nodes.Registry
	exprs       *expr.Resolver
	identity    *identity.Resolver
	tools       protocol.ToolInvoker
	completion  protocol.CompletionService
	notifier    protocol.Notifier
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger

	locks   sync.Map // execution id -> *sync.Mutex
	driving sync.Map // execution id -> struct{}, guards the dispatch loop
}

// NewEngine builds an engine from the given configuration.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("engine")
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = nopPublisher{}
	}

	return &Engine{
		persistence: cfg.Persistence,
		registry:    nodes.NewRegistry(),
		exprs:       expr.NewResolver(),
		identity:    cfg.Identity,
		tools:       cfg.Tools,
		completion:  cfg.Completion,
		notifier:    cfg.Notifier,
		publisher:   publisher,
		tracer:      tracer,
		logger:      logger.With("module", "engine"),
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, eventbus.Event) error { return nil }

// StartExecution creates and drives a new instance of a published
// definition. The returned instance reflects the state after the dispatch
// loop settled: completed, failed, or suspended on a wait point.
func (e *Engine) StartExecution(ctx context.Context, definitionID string, input map[string]any, createdBy string) (*models.ExecutionInstance, error) {
	def, err := e.persistence.Definitions().ByID(ctx, definitionID)
	if err != nil {
		return nil, err
	}

	if def.Status != models.DefinitionStatusPublished {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotExecutable, def.ID, def.Status)
	}

	inst, err := e.start(ctx, def, input, createdBy, "", "", "")
	if err != nil {
		return nil, err
	}

	if err := e.drive(ctx, inst.ID); err != nil {
		return nil, err
	}

	return e.persistence.Executions().ByID(ctx, inst.ID)
}

// start creates the instance with the entry node active and checkpoints it.
// executionID may be preassigned (child executions); empty means generate.
func (e *Engine) start(ctx context.Context, def *models.ProcessDefinition, input map[string]any, createdBy, executionID, parentID, parentNodeID string) (*models.ExecutionInstance, error) {
	startNode := def.StartNode()
	if startNode == nil {
		return nil, fmt.Errorf("definition %s has no entry node", def.ID)
	}

	if executionID == "" {
		executionID = "exec-" + uuid.NewString()
	}

	now := time.Now().UTC()
	inst := &models.ExecutionInstance{
		ID:                executionID,
		DefinitionID:      def.ID,
		DefinitionVersion: def.Version,
		Status:            models.ExecutionStatusRunning,
		ActiveNodes:       []string{startNode.ID},
		SuspendedNodes:    map[string]*models.SuspendedNode{},
		JoinWaits:         map[string]int{},
		PendingApprovals:  map[string]string{},
		Scope: models.NewScope(input, map[string]any{
			"user_id":       createdBy,
			"execution_id":  executionID,
			"definition_id": def.ID,
			"started_at":    now.Format(time.RFC3339),
		}),
		CreatedBy:    createdBy,
		ParentID:     parentID,
		ParentNodeID: parentNodeID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := e.persistence.Executions().Save(ctx, inst); err != nil {
		return nil, err
	}

	e.publish(ctx, inst.ID, events.ExecutionStarted{
		BaseEvent:    e.baseEvent(events.ExecutionStartedEvent, def.ID),
		ExecutionID:  inst.ID,
		CreatedBy:    createdBy,
		TriggerInput: input,
	})

	e.logger.Info("execution started",
		"execution_id", inst.ID, "definition_id", def.ID, "created_by", createdBy)

	return inst, nil
}

// drive runs the dispatch loop until the instance leaves the running state
// or the active set empties. Only one loop per instance runs at a time.
func (e *Engine) drive(ctx context.Context, executionID string) error {
	if _, busy := e.driving.LoadOrStore(executionID, struct{}{}); busy {
		return nil
	}

	for {
		mu := e.lockFor(executionID)
		mu.Lock()

		inst, err := e.persistence.Executions().ByID(ctx, executionID)
		if err != nil {
			e.driving.Delete(executionID)
			mu.Unlock()

			return err
		}

		// The slot must be released while the lock is still held: a
		// resume that activates a node under this lock either ran
		// before the read above (the loop sees the work) or runs after
		// the unlock, by which point its own drive call can claim the
		// slot. Releasing after the unlock loses that wakeup.
		if inst.Status != models.ExecutionStatusRunning || len(inst.ActiveNodes) == 0 {
			e.driving.Delete(executionID)
			mu.Unlock()

			return nil
		}

		def, err := e.persistence.Definitions().ByID(ctx, inst.DefinitionID)
		if err != nil {
			e.driving.Delete(executionID)
			mu.Unlock()

			return err
		}

		nodeID := inst.ActiveNodes[0]
		node := def.NodeByID(nodeID)
		scope := inst.Scope.Clone()
		inputHash := scope.Hash()
		mu.Unlock()

		var outcome nodes.Outcome
		if node == nil {
			outcome = nodes.Fail(fmt.Errorf("node %s not found in definition %s", nodeID, def.ID))
			node = &models.Node{ID: nodeID}
		} else {
			outcome = e.executeNode(ctx, def, node, scope)
		}

		post, err := e.apply(ctx, def, executionID, node, outcome, inputHash)
		if err != nil {
			e.driving.Delete(executionID)

			return err
		}

		e.runPostActions(ctx, post)
	}
}

// executeNode runs one node executor against a scope snapshot, inside a
// span. The executor never sees instance state.
func (e *Engine) executeNode(ctx context.Context, def *models.ProcessDefinition, node *models.Node, scope *models.Scope) nodes.Outcome {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.execute_node",
		attribute.String(otelhelper.DefinitionIDKey, def.ID),
		attribute.String(otelhelper.NodeIDKey, node.ID),
		attribute.String(otelhelper.NodeKindKey, string(node.Kind)),
	)
	defer span.End()

	executor, err := e.registry.ExecutorFor(node.Kind)
	if err != nil {
		otelhelper.SetError(span, err)

		return nodes.Fail(err)
	}

	outcome := executor.Execute(ctx, &nodes.ExecContext{
		Definition: def,
		Node:       node,
		Edges:      def.OutgoingEdges(node.ID),
		Scope:      scope,
		Expr:       e.exprs,
		Identity:   e.identity,
		Tools:      e.tools,
		Completion: e.completion,
		Notifier:   e.notifier,
		Logger:     e.logger,
	})

	if outcome.Kind == nodes.OutcomeFail && outcome.Err != nil {
		otelhelper.SetError(span, outcome.Err)
	}

	return outcome
}

func (e *Engine) lockFor(executionID string) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(executionID, &sync.Mutex{})

	return mu.(*sync.Mutex)
}

func (e *Engine) baseEvent(eventType events.EventType, definitionID string) events.BaseEvent {
	return events.BaseEvent{
		ID:           uuid.NewString(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		DefinitionID: definitionID,
	}
}

func (e *Engine) publish(ctx context.Context, key string, event eventbus.Event) {
	if err := e.publisher.Publish(ctx, key, event); err != nil {
		e.logger.Warn("event publish failed", "event_type", event.GetType(), "error", err)
	}
}

// Recover re-drives instances checkpointed as running. Called at worker
// startup so a crash mid-dispatch picks up from the last checkpoint.
func (e *Engine) Recover(ctx context.Context) error {
	running, err := e.persistence.Executions().ByStatus(ctx, models.ExecutionStatusRunning)
	if err != nil {
		return err
	}

	for _, inst := range running {
		e.logger.Info("recovering execution", "execution_id", inst.ID)

		if err := e.drive(ctx, inst.ID); err != nil {
			e.logger.Error("recovery failed", "execution_id", inst.ID, "error", err)
		}
	}

	return nil
}
