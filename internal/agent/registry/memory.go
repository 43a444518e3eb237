package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cortexhq/cortex/internal/agent"
)

// MemoryRegistry keeps registrations in process memory.
type MemoryRegistry struct {
	mu     sync.RWMutex
	agents map[string]Registration
}

// Ensure MemoryRegistry implements Registry interface
var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{agents: make(map[string]Registration)}
}

// Upsert inserts or replaces the registration for its agent ID.
func (r *MemoryRegistry) Upsert(_ context.Context, reg Registration) error {
	reg.Capabilities = append([]agent.Capability(nil), reg.Capabilities...)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[reg.AgentID] = reg
	return nil
}

// Get returns the registration for an agent ID.
func (r *MemoryRegistry) Get(_ context.Context, agentID string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.agents[agentID]
	if !ok {
		return Registration{}, fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	return reg, nil
}

// FindByCapability returns available agents offering the capability, ordered
// by agent ID.
func (r *MemoryRegistry) FindByCapability(_ context.Context, capability string) ([]Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Registration
	for _, reg := range r.agents {
		if reg.IsAvailable && reg.HasCapability(capability) {
			out = append(out, reg)
		}
	}
	sortByAgentID(out)
	return out, nil
}

// All returns every registration ordered by agent ID.
func (r *MemoryRegistry) All(_ context.Context) ([]Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.agents))
	for _, reg := range r.agents {
		out = append(out, reg)
	}
	sortByAgentID(out)
	return out, nil
}

// SetAvailability flips the availability flag for an agent.
func (r *MemoryRegistry) SetAvailability(_ context.Context, agentID string, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, agentID)
	}
	reg.IsAvailable = available
	r.agents[agentID] = reg
	return nil
}

// Remove deletes the registration for an agent ID.
func (r *MemoryRegistry) Remove(_ context.Context, agentID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
	return nil
}

func sortByAgentID(regs []Registration) {
	sort.Slice(regs, func(i, j int) bool { return regs[i].AgentID < regs[j].AgentID })
}
