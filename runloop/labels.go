package runloop

import "fmt"

// LabelFormatter produces the human-readable labels attached to step events
// and terminal outputs. Hosts with a localization layer inject their own
// implementation; the core never touches UI-level globals.
type LabelFormatter interface {
	Label(key string, args ...interface{}) string
}

// Default label texts, keyed by label name.
var defaultLabels = map[string]string{
	"plan.making":        "Planning",
	"plan.created":       "Plan with %d steps",
	"plan.updated":       "Plan updated: %s",
	"subtask.running":    "Step %d of %d: %s",
	"execute.phase":      "Executing plan",
	"refine.checking":    "Reviewing progress",
	"refine.done":        "Task complete: %s",
	"supervisor.round":   "Supervisor round %d of %d",
	"worker.dispatch":    "Worker",
	"codeact.turn":       "Turn %d",
	"evolve.generation":  "Generation %d",
	"evolve.parent":      "Candidate %d of %d",
	"evolve.choosing":    "Choosing best candidate",
	"evolve.evaluating":  "Evaluating candidate",
	"run.stopped":        "Run stopped by request",
	"run.maxrounds":      "Exceeded maximum rounds (%d)",
	"run.maxgenerations": "Exhausted %d generations; best answer so far follows",
	"run.failed":         "%s failed: %v",
}

// PlainLabels formats labels with the built-in English texts.
type PlainLabels struct{}

// Label formats the label for key, falling back to the key itself when no
// text is registered.
func (PlainLabels) Label(key string, args ...interface{}) string {
	format, ok := defaultLabels[key]
	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
