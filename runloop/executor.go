package runloop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/halverde/agentbridge/llmkit"
)

// executeSubtask performs one plan step: it assembles the step prompt from
// the subtask and its dependency-scoped history, calls the model with tools
// enabled, and records the outcome. Provider failures become the step's
// output text so the refiner can react to them.
func executeSubtask(ctx context.Context, s *runState, task string, st SubTask, history History, budget int) (CompletedStep, error) {
	prompt := subtaskPrompt(s, task, st, history, budget)

	messages := make([]llmkit.Message, 0, len(s.req.Messages)+2)
	if s.req.Memory != "" {
		messages = append(messages, llmkit.SystemMessage(s.req.Memory))
	}
	messages = append(messages, s.req.Messages...)
	messages = append(messages, llmkit.UserMessage(prompt))

	output, err := s.callModel(ctx, messages, true)
	if err != nil {
		if errors.Is(err, errStopped) {
			return CompletedStep{}, err
		}
		output = s.failureText(st.Name, err)
	}
	return CompletedStep{Name: st.Name, Input: st.Input, Output: output}, nil
}

func subtaskPrompt(s *runState, task string, st SubTask, history History, budget int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall task:\n%s", task)
	if scoped := history.ScopedContext(st.Dependencies, budget); scoped != "" {
		fmt.Fprintf(&b, "\n\nResults from earlier steps:\n%s", scoped)
	}
	fmt.Fprintf(&b, "\n\nCurrent step (%s):\n%s", st.Name, st.Input)
	if st.ExpectedOutput != "" {
		fmt.Fprintf(&b, "\n\nExpected output:\n%s", st.ExpectedOutput)
	}
	return b.String()
}
