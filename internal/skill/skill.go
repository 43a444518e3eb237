// Package skill defines reusable units of agent behavior and the registry
// that holds them. A skill pairs a definition (what to do, which executor
// interprets it) with an executor-specific content body, typically a prompt
// template or a script.
package skill

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrDuplicateSkill is returned when registering a skill ID twice.
	ErrDuplicateSkill = errors.New("skill already registered")
	// ErrSkillNotFound is returned when a skill ID is not in the registry.
	ErrSkillNotFound = errors.New("skill not found")
)

// Definition describes a single skill. Content is interpreted by the
// executor named in ExecutorType.
type Definition struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	ExecutorType string `json:"executor_type"`
	Content      string `json:"content"`
}

// Executor runs skills of one executor type.
type Executor interface {
	// Type names the executor, matched against Definition.ExecutorType.
	Type() string
	// Execute runs the skill with the given parameters and returns its
	// output.
	Execute(ctx context.Context, def Definition, params map[string]any) (any, error)
}

// Registry is a thread-safe collection of skill definitions.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Definition
}

// NewRegistry creates an empty skill registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Definition)}
}

// Register adds a skill definition. Registering an ID twice fails so a
// misconfigured catalog is caught at startup rather than silently
// overwritten.
func (r *Registry) Register(def Definition) error {
	if def.ID == "" {
		return errors.New("skill ID is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.skills[def.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateSkill, def.ID)
	}
	r.skills[def.ID] = def
	return nil
}

// Get returns the definition for the given skill ID.
func (r *Registry) Get(id string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, exists := r.skills[id]
	if !exists {
		return Definition{}, fmt.Errorf("%w: %s", ErrSkillNotFound, id)
	}
	return def, nil
}

// List returns all registered definitions sorted by ID.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.skills))
	for _, def := range r.skills {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
