package protocol

import "context"

// Notification is one rendered message ready for delivery.
type Notification struct {
	Recipients []string
	Subject    string
	Body       string
	Channel    string // transport hint: "email", "chat", ...
}

// Notifier hands notifications to the external delivery transport. Delivery
// is fire-and-forget from the engine's point of view: at-least-once, with
// idempotency left to the transport.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
