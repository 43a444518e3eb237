// Package harness binds one agent to its inbox queue. The harness owns the
// consumer lifecycle, keeps the agent's registry entry current, gates
// inbound envelopes on their authority claims, and stamps identity and
// correlation onto replies before routing them.
package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cortexhq/cortex/internal/agent"
	"github.com/cortexhq/cortex/internal/agent/registry"
	"github.com/cortexhq/cortex/internal/bus"
	"github.com/cortexhq/cortex/internal/common/logger"
	"github.com/cortexhq/cortex/internal/message"
)

var (
	// ErrAlreadyStarted is returned when starting a harness twice.
	ErrAlreadyStarted = errors.New("harness already started")
	// ErrNotStarted is returned when stopping a harness that never started.
	ErrNotStarted = errors.New("harness not started")
)

// EnvelopeValidator checks the authority claims an envelope carries against
// the receiving agent. The authority provider implements it.
type EnvelopeValidator interface {
	ValidateEnvelope(agentID string, env message.Envelope) error
}

// Config wires one harness. Agent, Bus, and Registry are required; the rest
// are optional collaborators.
type Config struct {
	Agent    agent.Agent
	Bus      bus.Bus
	Registry registry.Registry

	// Authority gates inbound envelopes. Nil disables the gate.
	Authority EnvelopeValidator
	// Types resolves the agent type recorded on the registration. Nil
	// records agent.TypeUnknown.
	Types agent.TypeProvider
	// Dedup skips redelivered message IDs. Nil disables dedup.
	Dedup DedupStore

	Logger *logger.Logger
}

// Harness binds one agent to the agent.<agentID> queue.
type Harness struct {
	agent     agent.Agent
	bus       bus.Bus
	registry  registry.Registry
	authority EnvelopeValidator
	types     agent.TypeProvider
	dedup     DedupStore
	logger    *logger.Logger

	mu     sync.Mutex
	handle bus.ConsumerHandle
}

// New creates a harness from its wiring.
func New(cfg Config) (*Harness, error) {
	if cfg.Agent == nil {
		return nil, errors.New("harness requires an agent")
	}
	if cfg.Bus == nil {
		return nil, errors.New("harness requires a bus")
	}
	if cfg.Registry == nil {
		return nil, errors.New("harness requires a registry")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}
	return &Harness{
		agent:     cfg.Agent,
		bus:       cfg.Bus,
		registry:  cfg.Registry,
		authority: cfg.Authority,
		types:     cfg.Types,
		dedup:     cfg.Dedup,
		logger:    log.WithAgentID(cfg.Agent.AgentID()),
	}, nil
}

// AgentID returns the bound agent's identity.
func (h *Harness) AgentID() string { return h.agent.AgentID() }

// Queue returns the inbox queue the harness consumes.
func (h *Harness) Queue() string { return bus.AgentQueue(h.agent.AgentID()) }

// Start registers the agent and opens its inbox consumer.
func (h *Harness) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.handle != nil {
		return fmt.Errorf("%w: %s", ErrAlreadyStarted, h.agent.AgentID())
	}

	agentType := agent.TypeUnknown
	if h.types != nil {
		if t := h.types.AgentType(h.agent.AgentID()); t != "" {
			agentType = t
		}
	}
	reg := registry.Registration{
		AgentID:      h.agent.AgentID(),
		Name:         h.agent.Name(),
		AgentType:    agentType,
		Capabilities: h.agent.Capabilities(),
		RegisteredAt: time.Now().UTC(),
		IsAvailable:  true,
	}
	if err := h.registry.Upsert(ctx, reg); err != nil {
		return fmt.Errorf("failed to register agent %s: %w", h.agent.AgentID(), err)
	}

	handle, err := h.bus.StartConsuming(h.Queue(), h.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", h.Queue(), err)
	}
	h.handle = handle

	h.logger.Info("Agent harness started",
		zap.String("queue", h.Queue()),
		zap.String("agent_type", agentType))
	return nil
}

// Stop stops this agent's consumer only and marks the registration
// unavailable. Other consumers on the bus are untouched.
func (h *Harness) Stop(ctx context.Context) error {
	h.mu.Lock()
	handle := h.handle
	h.handle = nil
	h.mu.Unlock()

	if handle == nil {
		return ErrNotStarted
	}
	if err := handle.Stop(); err != nil {
		return fmt.Errorf("failed to stop consumer %s: %w", h.Queue(), err)
	}
	if err := h.registry.SetAvailability(ctx, h.agent.AgentID(), false); err != nil {
		h.logger.Warn("Failed to mark agent unavailable", zap.Error(err))
	}
	h.logger.Info("Agent harness stopped", zap.String("queue", h.Queue()))
	return nil
}

// IsRunning reports whether the harness has a live consumer.
func (h *Harness) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handle != nil && h.handle.IsActive()
}

// handleMessage is the bus handler: dedup, authority gate, dispatch to the
// agent, and reply routing. Agent and publish errors propagate to the bus,
// which logs them (memory) or dead-letters (NATS); the harness neither
// catches nor retries.
func (h *Harness) handleMessage(ctx context.Context, env message.Envelope) error {
	if h.dedup != nil && h.dedup.MarkSeen(env.Message.MessageID()) {
		h.logger.Debug("Skipping redelivered message",
			zap.String("message_id", env.Message.MessageID()))
		return nil
	}

	// Authority failures drop silently: no reply, no dead-letter, one
	// warning. A reply here would leak information to an adversarial sender.
	if h.authority != nil && len(env.AuthorityClaims) > 0 {
		if err := h.authority.ValidateEnvelope(h.agent.AgentID(), env); err != nil {
			h.logger.Warn("Dropping envelope that failed the authority gate",
				zap.String("message_id", env.Message.MessageID()),
				zap.String("reference_code", env.ReferenceCode.String()),
				zap.Error(err))
			return nil
		}
	}

	reply, err := h.agent.Process(ctx, env)
	if err != nil {
		return fmt.Errorf("agent %s failed to process message: %w", h.agent.AgentID(), err)
	}
	if reply == nil {
		return nil
	}

	if env.Context.ReplyTo == "" {
		h.logger.Warn("Dropping reply with no reply-to queue",
			zap.String("message_id", env.Message.MessageID()),
			zap.String("reference_code", env.ReferenceCode.String()))
		return nil
	}

	out := reply.WithReferenceCode(env.ReferenceCode)
	replyCtx := out.Context
	replyCtx.ParentMessageID = env.Message.MessageID()
	replyCtx.FromAgentID = h.agent.AgentID()
	out = out.WithContext(replyCtx)

	if err := h.bus.Publish(ctx, env.Context.ReplyTo, out); err != nil {
		return fmt.Errorf("failed to publish reply to %s: %w", env.Context.ReplyTo, err)
	}
	return nil
}
