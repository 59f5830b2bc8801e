// Package queue consumes external events from a redis intake queue and
// dispatches them to the matching engine entry point. Delivery is
// at-least-once: the engine's status checks and decided-once approvals make
// redelivery safe.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/arionlabs/arion/pkg/engine"
	"github.com/arionlabs/arion/pkg/models"
)

// Event types accepted on the intake queue.
const (
	EventApprovalDecision = "approval.decision"
	EventToolResult       = "tool.result"
	EventWebhookReceived  = "webhook.received"
	EventExecutionCancel  = "execution.cancel"
)

// Message is one intake event. Only the fields matching its Type are read.
type Message struct {
	Type string `json:"type"`

	// approval.decision
	ApprovalID string `json:"approval_id,omitempty"`
	UserID     string `json:"user_id,omitempty"`
	Decision   string `json:"decision,omitempty"`

	// tool.result
	ExecutionID string `json:"execution_id,omitempty"`
	ResumeToken string `json:"resume_token,omitempty"`
	Output      any    `json:"output,omitempty"`

	// webhook.received
	DefinitionID string         `json:"definition_id,omitempty"`
	Input        map[string]any `json:"input,omitempty"`
}

// Dispatcher is the subset of the engine the consumer drives.
type Dispatcher interface {
	StartExecution(ctx context.Context, definitionID string, input map[string]any, createdBy string) (*models.ExecutionInstance, error)
	DecideApproval(ctx context.Context, approvalID, userID string, decision models.ApprovalDecision) error
	ResumeTool(ctx context.Context, executionID, token string, output any) error
	CancelExecution(ctx context.Context, executionID, cancelledBy string) error
}

type Consumer struct {
	Queue      string
	Connection map[string]string

	client     redis.UniversalClient
	dispatcher Dispatcher
	logger     *slog.Logger
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

func NewConsumer(config map[string]any, dispatcher Dispatcher, logger *slog.Logger) (*Consumer, error) {
	queue, _ := config["queue"].(string)
	if queue == "" {
		return nil, errors.New("intake queue name is required")
	}

	connectionConfig, _ := config["connection"].(map[string]any)

	connection := make(map[string]string)
	for k, v := range connectionConfig {
		if str, ok := v.(string); ok {
			connection[k] = str
		}
	}

	return &Consumer{
		Queue:      queue,
		Connection: connection,
		dispatcher: dispatcher,
		stopCh:     make(chan struct{}),
		logger:     logger.With("module", "queue_consumer", "queue", queue),
	}, nil
}

func (c *Consumer) Start(ctx context.Context) error {
	if err := c.initializeClient(ctx); err != nil {
		return fmt.Errorf("failed to initialize queue client: %w", err)
	}

	c.wg.Add(1)

	go c.consume(ctx)

	return nil
}

func (c *Consumer) initializeClient(ctx context.Context) error {
	addr := c.Connection["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}

	db := 0
	if dbStr := c.Connection["db"]; dbStr != "" {
		parsed, err := strconv.Atoi(dbStr)
		if err != nil {
			return fmt.Errorf("invalid db value: %w", err)
		}

		db = parsed
	}

	c.client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: c.Connection["password"],
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	c.logger.Info("connected to redis", "addr", addr, "db", db)

	return nil
}

func (c *Consumer) consume(ctx context.Context) {
	defer c.wg.Done()

	c.logger.Info("starting intake consumer")

	for {
		select {
		case <-c.stopCh:
			c.logger.Info("intake consumer stopped")

			return
		case <-ctx.Done():
			return
		default:
			if err := c.processMessage(ctx); err != nil {
				c.logger.Error("error processing intake message", "error", err)
				time.Sleep(time.Second)
			}
		}
	}
}

func (c *Consumer) processMessage(ctx context.Context) error {
	result, err := c.client.BLPop(ctx, time.Second, c.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	var msg Message
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		c.logger.Warn("dropping malformed intake message", "error", err)

		return nil
	}

	if err := c.Dispatch(ctx, msg); err != nil {
		c.logger.Error("intake dispatch failed", "event_type", msg.Type, "error", err)
	}

	return nil
}

// Dispatch routes one intake event. Events addressing already-settled state
// (a decided approval, a terminal execution) are treated as redelivery and
// absorbed.
func (c *Consumer) Dispatch(ctx context.Context, msg Message) error {
	switch msg.Type {
	case EventApprovalDecision:
		err := c.dispatcher.DecideApproval(ctx, msg.ApprovalID, msg.UserID, models.ApprovalDecision(msg.Decision))
		if engine.IsAlreadyDecided(err) || engine.IsNotResumable(err) {
			c.logger.Debug("absorbing redelivered decision", "approval_id", msg.ApprovalID)

			return nil
		}

		return err
	case EventToolResult:
		err := c.dispatcher.ResumeTool(ctx, msg.ExecutionID, msg.ResumeToken, msg.Output)
		if engine.IsNotResumable(err) {
			c.logger.Debug("absorbing redelivered tool result", "execution_id", msg.ExecutionID)

			return nil
		}

		return err
	case EventWebhookReceived:
		createdBy := msg.UserID
		if createdBy == "" {
			createdBy = "webhook"
		}

		_, err := c.dispatcher.StartExecution(ctx, msg.DefinitionID, msg.Input, createdBy)

		return err
	case EventExecutionCancel:
		err := c.dispatcher.CancelExecution(ctx, msg.ExecutionID, msg.UserID)
		if errors.Is(err, engine.ErrNotCancellable) {
			return nil
		}

		return err
	default:
		c.logger.Warn("unknown intake event type", "event_type", msg.Type)

		return nil
	}
}

func (c *Consumer) Stop(ctx context.Context) error {
	close(c.stopCh)
	c.wg.Wait()

	if c.client != nil {
		if err := c.client.Close(); err != nil {
			c.logger.ErrorContext(ctx, "error closing redis client", "error", err)
		}
	}

	return nil
}
