package agent

import (
	"context"

	"github.com/cortexhq/cortex/internal/message"
)

// Func adapts a plain function to the Agent interface. It backs human relay
// agents, simple specialists, and test doubles that have no skill pipeline.
type Func struct {
	ID        string
	AgentName string
	Caps      []Capability
	Handler   func(ctx context.Context, env message.Envelope) (*message.Envelope, error)
}

// Ensure Func implements Agent interface
var _ Agent = (*Func)(nil)

// NewFunc builds a function-backed agent. A nil handler consumes every
// envelope without replying.
func NewFunc(id, name string, caps []Capability, handler func(ctx context.Context, env message.Envelope) (*message.Envelope, error)) *Func {
	return &Func{ID: id, AgentName: name, Caps: caps, Handler: handler}
}

// AgentID returns the agent's stable identity.
func (f *Func) AgentID() string { return f.ID }

// Name returns the display name, falling back to the ID.
func (f *Func) Name() string {
	if f.AgentName == "" {
		return f.ID
	}
	return f.AgentName
}

// Capabilities returns the agent's capability list.
func (f *Func) Capabilities() []Capability {
	return append([]Capability(nil), f.Caps...)
}

// Process invokes the wrapped handler.
func (f *Func) Process(ctx context.Context, env message.Envelope) (*message.Envelope, error) {
	if f.Handler == nil {
		return nil, nil
	}
	return f.Handler(ctx, env)
}
