package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/arionlabs/arion/pkg/identity"
	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/protocol"
)

// NotificationExecutor renders and delivers a message, then advances. A
// delivery failure is recorded in history but does not fail the instance
// unless fail_on_error is set.
type NotificationExecutor struct{}

func (*NotificationExecutor) Kind() models.NodeKind { return models.KindNotification }

func (*NotificationExecutor) Execute(ctx context.Context, ec *ExecContext) Outcome {
	next, err := ec.SingleNext()
	if err != nil {
		return Fail(err)
	}

	recipients, err := resolveRecipients(ctx, ec)
	if err != nil {
		return Fail(fmt.Errorf("notification %s: %w", ec.Node.ID, err))
	}

	message, _ := ec.Node.Config["message"].(string)

	body, err := ec.Expr.Interpolate(message, ec.Scope)
	if err != nil {
		return Fail(fmt.Errorf("notification %s: %w", ec.Node.ID, err))
	}

	subject, _ := ec.Node.Config["subject"].(string)
	if subject != "" {
		if subject, err = ec.Expr.Interpolate(subject, ec.Scope); err != nil {
			return Fail(fmt.Errorf("notification %s: %w", ec.Node.ID, err))
		}
	}

	channel, _ := ec.Node.Config["channel"].(string)

	sendErr := ec.Notifier.Send(ctx, protocol.Notification{
		Recipients: recipients,
		Subject:    subject,
		Body:       body,
		Channel:    channel,
	})
	if sendErr != nil {
		if failOnError, _ := ec.Node.Config["fail_on_error"].(bool); failOnError {
			return Fail(fmt.Errorf("notification %s: delivery failed: %w", ec.Node.ID, sendErr))
		}

		ec.Logger.Warn("notification delivery failed, continuing",
			"node_id", ec.Node.ID, "error", sendErr)

		out := AdvanceTo(next)
		out.HistoryEvent = models.HistoryNotificationFailed

		return out
	}

	return AdvanceTo(next)
}

// resolveRecipients maps each configured recipient entry to user ids or
// literal addresses. "requester" and "manager" are resolved against the
// instance context; anything containing "@" passes through as an address.
func resolveRecipients(ctx context.Context, ec *ExecContext) ([]string, error) {
	raw, _ := ec.Node.Config["recipients"].([]any)
	if len(raw) == 0 {
		return nil, fmt.Errorf("no recipients configured")
	}

	resolved := make([]string, 0, len(raw))

	for _, entry := range raw {
		recipient, ok := entry.(string)
		if !ok || recipient == "" {
			return nil, fmt.Errorf("recipient entries must be non-empty strings")
		}

		switch {
		case recipient == "requester":
			requester := ec.Requester()
			if requester == "" {
				return nil, fmt.Errorf("no requester in execution context")
			}

			resolved = append(resolved, requester)
		case recipient == "manager":
			ids, err := ec.Identity.Resolve(ctx, identity.Descriptor{Type: identity.TypeDynamicManager}, ec.Requester(), ec.Scope)
			if err != nil {
				return nil, fmt.Errorf("resolving requester's manager: %w", err)
			}

			resolved = append(resolved, ids...)
		case strings.Contains(recipient, "{{"):
			value, err := ec.Expr.Interpolate(recipient, ec.Scope)
			if err != nil {
				return nil, err
			}

			resolved = append(resolved, value)
		default:
			resolved = append(resolved, recipient)
		}
	}

	return resolved, nil
}
