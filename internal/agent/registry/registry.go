// Package registry stores agent registrations and answers capability
// lookups for routing. The registry is durable relative to the harness:
// registrations survive harness restarts, and the SQLite and Postgres
// stores survive process restarts too.
package registry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cortexhq/cortex/internal/agent"
)

// ErrNotFound is returned when no registration exists for an agent ID.
var ErrNotFound = errors.New("agent not registered")

// Registration records one agent known to the runtime.
type Registration struct {
	AgentID      string             `json:"agent_id"`
	Name         string             `json:"name"`
	AgentType    string             `json:"agent_type"`
	Capabilities []agent.Capability `json:"capabilities,omitempty"`
	RegisteredAt time.Time          `json:"registered_at"`
	IsAvailable  bool               `json:"is_available"`
}

// HasCapability reports whether the registration offers the named
// capability, compared case-insensitively.
func (r Registration) HasCapability(name string) bool {
	for _, c := range r.Capabilities {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// Registry is the store of agent registrations.
type Registry interface {
	// Upsert inserts or replaces the registration for its agent ID.
	Upsert(ctx context.Context, reg Registration) error
	// Get returns the registration for an agent ID.
	Get(ctx context.Context, agentID string) (Registration, error)
	// FindByCapability returns available agents offering the capability,
	// matched case-insensitively, ordered by agent ID.
	FindByCapability(ctx context.Context, capability string) ([]Registration, error)
	// All returns every registration ordered by agent ID, available or not.
	All(ctx context.Context) ([]Registration, error)
	// SetAvailability flips the availability flag for an agent.
	SetAvailability(ctx context.Context, agentID string, available bool) error
	// Remove deletes the registration for an agent ID. Removing an unknown
	// agent is a no-op.
	Remove(ctx context.Context, agentID string) error
}
