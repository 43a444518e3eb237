// Package agent defines the contract every Cortex agent implements and the
// capability descriptor used for routing. Agents are addressable actors:
// each one consumes envelopes from its inbox queue (agent.<id>) and may
// return a reply envelope.
package agent

import (
	"context"

	"github.com/cortexhq/cortex/internal/message"
)

// Agent type names stored on registrations.
const (
	TypeAI      = "ai"
	TypeHuman   = "human"
	TypeUnknown = "unknown"
)

// Capability is a named skill an agent offers. Capability names are the
// routing keys decomposition matches on.
type Capability struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	SkillIDs    []string `json:"skill_ids,omitempty"`
}

// Agent is an addressable actor bound to an inbox queue by a harness.
type Agent interface {
	// AgentID is the stable identity; the inbox queue is agent.<AgentID>.
	AgentID() string
	// Name is the human-readable display name.
	Name() string
	// Capabilities lists what this agent can be routed.
	Capabilities() []Capability
	// Process handles one envelope. A non-nil reply is published to the
	// envelope's ReplyTo queue by the harness; nil means no reply.
	Process(ctx context.Context, env message.Envelope) (*message.Envelope, error)
}

// TypeProvider resolves the agent type recorded on registrations. Harnesses
// fall back to TypeUnknown when no provider is wired.
type TypeProvider interface {
	AgentType(agentID string) string
}

// TypeProviderFunc adapts a function to the TypeProvider interface.
type TypeProviderFunc func(agentID string) string

// AgentType calls the wrapped function.
func (f TypeProviderFunc) AgentType(agentID string) string { return f(agentID) }

// StaticType is a TypeProvider that answers the same type for every agent.
func StaticType(agentType string) TypeProvider {
	return TypeProviderFunc(func(string) string { return agentType })
}
