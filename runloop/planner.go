package runloop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const plannerInstructions = `Break the task below into an ordered list of subtasks.
Each subtask needs a short unique snake_case name, a self-contained input
instruction, and optionally an expected output description. When a subtask
needs the output of earlier subtasks, list their names under dependencies;
leave dependencies empty to receive all prior outputs.

Respond with a JSON object matching the requested schema.`

// makePlan asks the model to decompose the task. When the response cannot be
// decoded as a plan, the task degrades to a single-step plan executing the
// task verbatim; planning failures never abort a run.
func makePlan(ctx context.Context, s *runState, task string) (Plan, error) {
	prompt := plannerPrompt(s, task)
	plan, _, err := generateObject[Plan](ctx, s, prompt)
	if err != nil {
		var schemaErr *SchemaError
		if errors.As(err, &schemaErr) {
			s.logger.Warn("plan response did not decode, using single-step plan",
				zap.Error(schemaErr.Cause))
			return singleStepPlan(task), nil
		}
		return Plan{}, err
	}
	if err := plan.Validate(nil); err != nil {
		s.logger.Warn("model produced an invalid plan, using single-step plan", zap.Error(err))
		return singleStepPlan(task), nil
	}
	if len(plan.SubTasks) == 0 {
		return singleStepPlan(task), nil
	}
	return *plan, nil
}

func plannerPrompt(s *runState, task string) string {
	var b strings.Builder
	b.WriteString(plannerInstructions)
	if s.req.Memory != "" {
		fmt.Fprintf(&b, "\n\nContext:\n%s", s.req.Memory)
	}
	if s.env.Tools != nil {
		if catalog := CatalogText(s.env.Tools.Catalog()); catalog != "" {
			fmt.Fprintf(&b, "\n\nAvailable commands:\n%s", catalog)
		}
	}
	fmt.Fprintf(&b, "\n\nTask:\n%s", task)
	return b.String()
}

func singleStepPlan(task string) Plan {
	return Plan{SubTasks: []SubTask{{Name: "default", Input: task}}}
}
