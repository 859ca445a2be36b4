package runloop

import (
	"fmt"
	"strings"
)

// SubTask is one step of a plan. Dependencies name prior steps whose outputs
// the step needs; an empty list means the step sees every completed output.
type SubTask struct {
	Name           string   `json:"name"`
	Input          string   `json:"input"`
	ExpectedOutput string   `json:"expected_output,omitempty"`
	Dependencies   []string `json:"dependencies,omitempty"`
}

// Plan is an ordered sequence of subtasks.
type Plan struct {
	SubTasks []SubTask `json:"subtasks"`
}

// Validate checks that subtask names are unique and that dependencies only
// reference earlier subtasks or the already-completed names in done.
func (p Plan) Validate(done []string) error {
	known := make(map[string]bool, len(done)+len(p.SubTasks))
	for _, name := range done {
		known[name] = true
	}
	for i, st := range p.SubTasks {
		if st.Name == "" {
			return fmt.Errorf("subtask %d has no name", i)
		}
		if known[st.Name] {
			return fmt.Errorf("duplicate subtask name %q", st.Name)
		}
		for _, dep := range st.Dependencies {
			if !known[dep] {
				return fmt.Errorf("subtask %q depends on unknown step %q", st.Name, dep)
			}
		}
		known[st.Name] = true
	}
	return nil
}

// Render produces the numbered plan listing used in prompts.
func (p Plan) Render() string {
	var b strings.Builder
	for i, st := range p.SubTasks {
		fmt.Fprintf(&b, "%d. %s: %s", i+1, st.Name, st.Input)
		if st.ExpectedOutput != "" {
			fmt.Fprintf(&b, " (expected: %s)", st.ExpectedOutput)
		}
		if len(st.Dependencies) > 0 {
			fmt.Fprintf(&b, " [depends on: %s]", strings.Join(st.Dependencies, ", "))
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// CompletedStep records the outcome of one executed subtask.
type CompletedStep struct {
	Name   string `json:"name"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// History is the append-only record of completed steps.
type History []CompletedStep

// Names returns the completed step names in execution order.
func (h History) Names() []string {
	names := make([]string, len(h))
	for i, step := range h {
		names[i] = step.Name
	}
	return names
}

// truncationMarker replaces outputs dropped to stay inside the context
// budget. Oldest steps go first; recent outputs are the most load-bearing.
const truncationMarker = "[earlier step outputs omitted]"

// ScopedContext renders completed-step outputs for a subtask prompt. When
// deps is non-empty only those named steps are included; otherwise every
// completed step is. budget caps the rendered size in bytes (0 means
// unlimited); when exceeded, whole steps are dropped oldest-first and the
// marker is prepended.
func (h History) ScopedContext(deps []string, budget int) string {
	steps := h
	if len(deps) > 0 {
		wanted := make(map[string]bool, len(deps))
		for _, d := range deps {
			wanted[d] = true
		}
		steps = nil
		for _, step := range h {
			if wanted[step.Name] {
				steps = append(steps, step)
			}
		}
	}
	if len(steps) == 0 {
		return ""
	}

	rendered := make([]string, len(steps))
	total := 0
	for i, step := range steps {
		rendered[i] = fmt.Sprintf("### %s\n%s", step.Name, step.Output)
		total += len(rendered[i]) + 2
	}
	start := 0
	if budget > 0 {
		for start < len(rendered)-1 && total > budget {
			total -= len(rendered[start]) + 2
			start++
		}
	}
	var b strings.Builder
	if start > 0 {
		b.WriteString(truncationMarker)
		b.WriteString("\n\n")
	}
	b.WriteString(strings.Join(rendered[start:], "\n\n"))
	return b.String()
}

// PlanRefinement is the refiner's verdict after a completed step: either the
// task is done, or the remaining plan tail is replaced.
type PlanRefinement struct {
	Done     bool      `json:"done"`
	Reason   string    `json:"reason,omitempty"`
	SubTasks []SubTask `json:"subtasks,omitempty"`
}

// spliceTail replaces the unexecuted tail of plan (everything at or after
// index next) with the refinement's subtasks, dropping any proposed subtask
// whose name already completed. Returns the updated plan and whether it
// actually changed; an identical tail is a no-op so callers can skip the
// plan-update event.
func spliceTail(plan Plan, next int, done []string, tail []SubTask) (Plan, bool) {
	completed := make(map[string]bool, len(done))
	for _, name := range done {
		completed[name] = true
	}
	filtered := make([]SubTask, 0, len(tail))
	for _, st := range tail {
		if completed[st.Name] {
			continue
		}
		filtered = append(filtered, st)
	}

	if next > len(plan.SubTasks) {
		next = len(plan.SubTasks)
	}
	old := plan.SubTasks[next:]
	if sameTail(old, filtered) {
		return plan, false
	}
	updated := Plan{SubTasks: append(append([]SubTask{}, plan.SubTasks[:next]...), filtered...)}
	return updated, true
}

func sameTail(a, b []SubTask) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name || a[i].Input != b[i].Input {
			return false
		}
	}
	return true
}
