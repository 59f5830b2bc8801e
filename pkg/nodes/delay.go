package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arionlabs/arion/pkg/models"
)

// DelayExecutor suspends the instance until a wall-clock wake time. The
// engine persists the timer; no goroutine sleeps while the instance waits.
type DelayExecutor struct{}

func (*DelayExecutor) Kind() models.NodeKind { return models.KindDelay }

func (*DelayExecutor) Execute(_ context.Context, ec *ExecContext) Outcome {
	d, err := durationFromConfig(ec.Node.Config)
	if err != nil {
		return Fail(fmt.Errorf("delay %s: %w", ec.Node.ID, err))
	}

	wakeAt := time.Now().UTC().Add(d)

	return SuspendTimer("tmr-"+uuid.NewString(), wakeAt)
}

// durationFromConfig reads a {duration, unit} pair as used by Delay configs
// and Approval timeouts.
func durationFromConfig(config map[string]any) (time.Duration, error) {
	amount, ok := numericConfig(config["duration"])
	if !ok || amount <= 0 {
		return 0, fmt.Errorf("duration must be a positive number")
	}

	var per time.Duration

	switch unit, _ := config["unit"].(string); unit {
	case "seconds":
		per = time.Second
	case "minutes":
		per = time.Minute
	case "hours":
		per = time.Hour
	case "days":
		per = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown duration unit %q", unit)
	}

	return time.Duration(amount) * per, nil
}

func numericConfig(raw any) (int, bool) {
	switch v := raw.(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
