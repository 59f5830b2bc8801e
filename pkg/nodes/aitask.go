package nodes

import (
	"context"
	"errors"
	"fmt"

	"github.com/arionlabs/arion/pkg/models"
	"github.com/arionlabs/arion/pkg/protocol"
)

// ErrOutputParse marks an AI task whose response lacked a declared output
// field while strict_output was set.
var ErrOutputParse = errors.New("ai task output missing declared fields")

// AITaskExecutor renders the prompt, calls the completion service and stores
// the structured fields as node output. Under strict_output a response
// missing any declared field fails the node; otherwise missing fields are
// stored as nil.
type AITaskExecutor struct{}

func (*AITaskExecutor) Kind() models.NodeKind { return models.KindAITask }

func (*AITaskExecutor) Execute(ctx context.Context, ec *ExecContext) Outcome {
	next, err := ec.SingleNext()
	if err != nil {
		return Fail(err)
	}

	promptTemplate, _ := ec.Node.Config["prompt"].(string)

	prompt, err := ec.Expr.Interpolate(promptTemplate, ec.Scope)
	if err != nil {
		return Fail(fmt.Errorf("ai_task %s: %w", ec.Node.ID, err))
	}

	instructions, _ := ec.Node.Config["instructions"].(string)
	confidence, _ := ec.Node.Config["confidence"].(string)
	fields := outputFieldsFromConfig(ec.Node.Config["output_fields"])

	resp, err := ec.Completion.Complete(ctx, protocol.CompletionRequest{
		Prompt:       prompt,
		Instructions: instructions,
		Confidence:   confidence,
		OutputFields: fields,
	})
	if err != nil {
		return Fail(fmt.Errorf("ai_task %s: %w", ec.Node.ID, err))
	}

	strict, _ := ec.Node.Config["strict_output"].(bool)

	output := make(map[string]any, len(fields))

	for _, f := range fields {
		value, ok := resp.Fields[f.Name]
		if !ok {
			if strict {
				return Fail(fmt.Errorf("ai_task %s: %w: %s", ec.Node.ID, ErrOutputParse, f.Name))
			}

			value = nil
		}

		output[f.Name] = value
	}

	if len(fields) == 0 {
		return AdvanceWithOutput(resp.Raw, next)
	}

	return AdvanceWithOutput(output, next)
}

func outputFieldsFromConfig(raw any) []protocol.OutputField {
	entries, _ := raw.([]any)

	fields := make([]protocol.OutputField, 0, len(entries))

	for _, entry := range entries {
		switch v := entry.(type) {
		case string:
			fields = append(fields, protocol.OutputField{Name: v})
		case map[string]any:
			name, _ := v["name"].(string)
			desc, _ := v["description"].(string)

			if name != "" {
				fields = append(fields, protocol.OutputField{Name: name, Description: desc})
			}
		}
	}

	return fields
}
