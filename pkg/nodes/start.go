package nodes

import (
	"context"
	"fmt"

	"github.com/arionlabs/arion/pkg/models"
)

// StartExecutor is the bare entry point: it advances to its single
// successor. Trigger input validation belongs to the Form variant.
type StartExecutor struct{}

func (*StartExecutor) Kind() models.NodeKind { return models.KindStart }

func (*StartExecutor) Execute(_ context.Context, ec *ExecContext) Outcome {
	next, err := ec.SingleNext()
	if err != nil {
		return Fail(err)
	}

	return AdvanceTo(next)
}

// FormExecutor is the entry point for definitions triggered with a declared
// intake form: it validates the trigger input against the declared fields
// before advancing.
type FormExecutor struct{}

func (*FormExecutor) Kind() models.NodeKind { return models.KindForm }

func (*FormExecutor) Execute(_ context.Context, ec *ExecContext) Outcome {
	fields, _ := ec.Node.Config["fields"].([]any)

	for _, raw := range fields {
		field, ok := raw.(map[string]any)
		if !ok {
			continue
		}

		required, _ := field["required"].(bool)
		if !required {
			continue
		}

		name, _ := field["name"].(string)
		if name == "" {
			continue
		}

		if _, present := ec.Scope.TriggerInput[name]; !present {
			return Fail(fmt.Errorf("required trigger input field %q missing", name))
		}
	}

	next, err := ec.SingleNext()
	if err != nil {
		return Fail(err)
	}

	return AdvanceTo(next)
}
