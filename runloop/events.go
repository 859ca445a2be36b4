package runloop

// Step names emitted by the built-in strategies. StepEvents exist for
// observability only; no strategy bases control flow on them.
const (
	StepMakePlan   = "make_plan"
	StepExecute    = "execute"
	StepSubtask    = "subtask"
	StepRefinePlan = "refine_plan"
	StepPlanUpdate = "plan_update"
	StepSupervisor = "supervisor"
	StepWorker     = "worker"
	StepTurn       = "turn"
	StepGeneration = "generation"
	StepChoose     = "choose"
	StepEvaluate   = "evaluate"
)

// StepEvent describes one phase boundary of a run.
type StepEvent struct {
	// Name is one of the Step* constants.
	Name string `json:"name"`

	// Index and Total position this step within its phase (1-based Index).
	// Both are zero when the step is not part of a counted sequence.
	Index int `json:"index,omitempty"`
	Total int `json:"total,omitempty"`

	// Label is a human-readable description produced by the run's
	// LabelFormatter.
	Label string `json:"label,omitempty"`

	// Meta carries free-form metadata.
	Meta map[string]string `json:"meta,omitempty"`
}

// Segment is the persisted checkpoint shape. The caller, not the core, is
// responsible for storage.
type Segment struct {
	Input      string `json:"input_text"`
	Output     string `json:"output_text"`
	ResponseID string `json:"response_id,omitempty"`
	Finished   bool   `json:"finished"`
	Streamed   bool   `json:"streamed"`
}
