package runloop

import "github.com/google/uuid"

// RunContext is the unit of conversational state handed back to the caller
// at every checkpoint boundary. The caller creates it before a run, the core
// mutates it at each boundary, and the caller persists it between boundaries
// when partial checkpointing is enabled.
type RunContext struct {
	// ID identifies the run context across checkpoints.
	ID string `json:"id"`

	// AgentName is the label of the agent currently producing output.
	AgentName string `json:"agent_name"`

	// StreamText accumulates the text streamed during the current open
	// segment. Reset when the segment is finalized.
	StreamText string `json:"stream_text"`

	// ResponseID identifies the provider session used to resume a model
	// conversation without resending full history.
	ResponseID string `json:"response_id,omitempty"`
}

// NewRunContext creates a RunContext for the given agent label.
func NewRunContext(agentName string) *RunContext {
	return &RunContext{
		ID:        uuid.New().String(),
		AgentName: agentName,
	}
}
