package runloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ToolDescriptor describes an invocable command for the model (serializable
// metadata only; execution lives behind ToolInvoker).
type ToolDescriptor struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// ToolInvoker executes named commands on behalf of a strategy. Invoke returns
// the observation text fed back to the model; errors are reported inline to
// the model rather than aborting the run.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, params map[string]interface{}) (string, error)
	Catalog() []ToolDescriptor
}

// CommandFunc is the function signature for a registered command.
type CommandFunc func(ctx context.Context, params map[string]interface{}) (string, error)

// Command pairs a descriptor with its implementation.
type Command struct {
	Descriptor ToolDescriptor
	Run        CommandFunc
}

// CommandRegistry is a thread-safe ToolInvoker backed by a name-indexed map.
type CommandRegistry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewCommandRegistry creates an empty CommandRegistry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{commands: make(map[string]*Command)}
}

// Register adds or replaces a command.
func (r *CommandRegistry) Register(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.Descriptor.Name] = &cmd
}

// Unregister removes a command by name.
func (r *CommandRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.commands, name)
}

// Invoke runs the named command. Unknown names return an error so callers can
// surface the failure to the model as an observation.
func (r *CommandRegistry) Invoke(ctx context.Context, name string, params map[string]interface{}) (string, error) {
	r.mu.RLock()
	cmd := r.commands[name]
	r.mu.RUnlock()
	if cmd == nil {
		return "", fmt.Errorf("unknown command: %s", name)
	}
	return cmd.Run(ctx, params)
}

// Catalog returns the descriptors of all registered commands, sorted by name
// for deterministic prompt rendering.
func (r *CommandRegistry) Catalog() []ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	descs := make([]ToolDescriptor, 0, len(r.commands))
	for _, cmd := range r.commands {
		descs = append(descs, cmd.Descriptor)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs
}

// CatalogText renders descriptors as a prompt fragment listing each command
// with its description and parameter schema.
func CatalogText(descs []ToolDescriptor) string {
	if len(descs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, d := range descs {
		fmt.Fprintf(&b, "- %s: %s", d.Name, d.Description)
		if len(d.Parameters) > 0 {
			if raw, err := json.Marshal(d.Parameters); err == nil {
				fmt.Fprintf(&b, " (parameters: %s)", raw)
			}
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
