package runloop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const refinerInstructions = `You are reviewing an in-progress task after a completed step.
Decide whether the overall task is already done. If it is, set done to true
and explain why in reason. If it is not, return the remaining subtasks as a
replacement for the not-yet-executed part of the plan; keep them unchanged
when the current plan is still right. Never re-list subtasks that already
completed.

Respond with a JSON object matching the requested schema.`

// refinePlan asks the model to review progress after a completed step. An
// undecodable response is treated as "keep going with the current plan";
// refinement failures never abort a run.
func refinePlan(ctx context.Context, s *runState, task string, plan Plan, next int, history History) (*PlanRefinement, error) {
	prompt := refinerPrompt(task, plan, next, history)
	refinement, _, err := generateObject[PlanRefinement](ctx, s, prompt)
	if err != nil {
		var schemaErr *SchemaError
		if errors.As(err, &schemaErr) {
			s.logger.Warn("refinement response did not decode, keeping current plan",
				zap.Error(schemaErr.Cause))
			return &PlanRefinement{SubTasks: plan.SubTasks[next:]}, nil
		}
		return nil, err
	}
	return refinement, nil
}

func refinerPrompt(task string, plan Plan, next int, history History) string {
	var b strings.Builder
	b.WriteString(refinerInstructions)
	fmt.Fprintf(&b, "\n\nTask:\n%s", task)
	fmt.Fprintf(&b, "\n\nCurrent plan:\n%s", plan.Render())
	if len(history) > 0 {
		b.WriteString("\n\nCompleted steps:")
		for _, step := range history {
			fmt.Fprintf(&b, "\n### %s\n%s", step.Name, step.Output)
		}
	}
	if next < len(plan.SubTasks) {
		remaining := Plan{SubTasks: plan.SubTasks[next:]}
		fmt.Fprintf(&b, "\n\nRemaining subtasks:\n%s", remaining.Render())
	} else {
		b.WriteString("\n\nNo subtasks remain.")
	}
	return b.String()
}
