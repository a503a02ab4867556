package agent

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/memberscope/internal/model"
)

// Agent is one polymorphic unit of pipeline work. Implementations return
// ordinary failures inside the TaskResult; returned errors and panics are
// converted to failure results by the spawner.
type Agent interface {
	// Type is the task-type identifier the agent is registered under.
	Type() string

	// Execute runs one task. The context carries the per-task timeout.
	Execute(ctx context.Context, task model.Task) (*model.TaskResult, error)
}

// Registry maps task-type identifiers to agent implementations. It is built
// once at startup and injected into the spawner; an unknown type at spawn
// time is a configuration error, not a per-call failure.
type Registry struct {
	agents map[string]Agent
}

// NewRegistry creates a registry from the given agents.
func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: make(map[string]Agent, len(agents))}
	for _, a := range agents {
		r.agents[a.Type()] = a
	}
	return r
}

// Register adds or replaces an agent.
func (r *Registry) Register(a Agent) {
	r.agents[a.Type()] = a
}

// Get resolves a task-type identifier.
func (r *Registry) Get(taskType string) (Agent, error) {
	a, ok := r.agents[taskType]
	if !ok {
		return nil, eris.Errorf("agent: unknown task type %q", taskType)
	}
	return a, nil
}

// Types returns the registered task types, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.agents))
	for t := range r.agents {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
