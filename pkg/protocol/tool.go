// Package protocol defines the interfaces and contracts for the engine's
// external collaborators. All of them are injected at construction; the
// engine never reaches for ambient global registries.
package protocol

import "context"

// ToolResult is the outcome of one tool invocation. A long-running tool may
// return Pending with a resume token; the engine suspends the node and the
// tool collaborator later delivers the result through the resume intake.
type ToolResult struct {
	Output      any
	Pending     bool
	ResumeToken string
}

// ToolInvoker executes external tool/API calls. Retry policy is the
// invoker's own: it must exhaust its retries before returning an error, and
// the engine treats any returned error as final for the node.
type ToolInvoker interface {
	Invoke(ctx context.Context, tool string, params map[string]any) (ToolResult, error)
}
