package protocol

import "context"

// OutputField declares one structured field an AI task must produce.
type OutputField struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CompletionRequest is the opaque completion-service input: a rendered
// prompt plus the instruction/confidence directives injected from the node
// config.
type CompletionRequest struct {
	Prompt       string
	Instructions string
	Confidence   string
	OutputFields []OutputField
}

// CompletionResponse carries the structured fields parsed by the service and
// the raw completion text for auditing.
type CompletionResponse struct {
	Fields map[string]any
	Raw    string
}

// CompletionService is the external LLM collaborator. The completion call
// itself, credentials, and model selection are all outside the engine.
type CompletionService interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
