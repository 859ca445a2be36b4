package runloop

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/halverde/agentbridge/llmkit"
)

// ModelCaller is the model transport a strategy calls through. *llmkit.Client
// satisfies it; tests substitute scripted fakes.
type ModelCaller interface {
	Complete(ctx context.Context, req llmkit.Request) (*llmkit.Response, error)
	Stream(ctx context.Context, req llmkit.Request) (<-chan llmkit.StreamEvent, error)
}

// CodeRunner executes a code block extracted from model output and returns
// its observation text. Execution errors are returned for inline reporting
// to the model, not for aborting the run.
type CodeRunner interface {
	RunCode(ctx context.Context, lang, source string) (string, error)
}

// Environment bundles the host-provided collaborators a strategy runs
// against. Only Client is mandatory; the rest default to inert
// implementations.
type Environment struct {
	Client ModelCaller
	Tools  ToolInvoker
	Runner CodeRunner
	Labels LabelFormatter
	Logger *zap.Logger
}

func (e Environment) normalized() Environment {
	if e.Labels == nil {
		e.Labels = PlainLabels{}
	}
	if e.Logger == nil {
		e.Logger = zap.NewNop()
	}
	return e
}

// Params carries model routing and per-strategy option overrides.
type Params struct {
	Model    string
	Provider string
	Options  map[string]interface{}
}

// RunRequest is one invocation of a strategy.
type RunRequest struct {
	// Task is the user's goal for this run.
	Task string
	// Messages is prior conversation carried into the run.
	Messages []llmkit.Message
	// Memory is opaque context text prepended to system prompts.
	Memory string
	// PriorResponseID resumes provider-side conversation state.
	PriorResponseID string
	Params          Params
	// Run is the streaming context; a fresh one is created when nil.
	Run *RunContext
	// Stream requests incremental deltas through the bridge.
	Stream bool
	Bridge Bridge
	// StopWhen is polled between suspension points in addition to the
	// bridge's own stop signal.
	StopWhen func() bool
}

// RunResult is the terminal state of a strategy run. Output is always
// non-empty: failure paths produce readable text instead of empty results.
type RunResult struct {
	Run        *RunContext
	Output     string
	ResponseID string
}

// Strategy is one orchestration loop. Run drives the model to completion and
// returns a terminal result; only infrastructure-level faults (nil client,
// unresolvable options) surface as errors.
type Strategy interface {
	Name() string
	Options() OptionSchema
	Run(ctx context.Context, env Environment, req RunRequest) (RunResult, error)
}

// Registry maps strategy names to implementations.
type Registry struct {
	mu         sync.RWMutex
	strategies map[string]Strategy
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds or replaces a strategy under its own name.
func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
}

// Get returns the named strategy.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy: %s", name)
	}
	return s, nil
}

// Names returns the registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.strategies))
	for name := range r.strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry returns a registry with the built-in strategies.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(&PlanExecuteRefine{})
	r.Register(&SupervisorWorker{})
	r.Register(&CodeAct{})
	r.Register(&Evolve{})
	return r
}
