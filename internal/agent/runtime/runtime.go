// Package runtime hosts a fleet of agents, one harness per agent, with
// optional team scoping so related agents can be started and stopped as a
// unit.
package runtime

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/cortexhq/cortex/internal/agent"
	"github.com/cortexhq/cortex/internal/agent/harness"
	"github.com/cortexhq/cortex/internal/agent/registry"
	"github.com/cortexhq/cortex/internal/bus"
	"github.com/cortexhq/cortex/internal/common/logger"
)

// ErrDuplicateAgent is returned when an agent with the same ID is already
// running in this runtime.
var ErrDuplicateAgent = errors.New("agent already running")

// Config carries the shared dependencies every hosted harness is built with.
type Config struct {
	Bus       bus.Bus
	Registry  registry.Registry
	Authority harness.EnvelopeValidator
	Types     agent.TypeProvider
	Logger    *logger.Logger

	// Agents started by Start and stopped by Stop. Dynamic agents join via
	// StartAgent.
	Agents []agent.Agent
}

// Runtime composes harnesses and tracks which agents belong to which team.
type Runtime struct {
	cfg    Config
	logger *logger.Logger

	mu        sync.RWMutex
	harnesses map[string]*harness.Harness
	teams     map[string][]string // teamID -> member agent IDs, insertion order
}

// New creates a runtime. Startup agents are not started until Start is
// called.
func New(cfg Config) (*Runtime, error) {
	if cfg.Bus == nil {
		return nil, errors.New("runtime: bus is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("runtime: registry is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("runtime: logger is required")
	}
	return &Runtime{
		cfg:       cfg,
		logger:    cfg.Logger.WithFields(zap.String("component", "agent-runtime")),
		harnesses: make(map[string]*harness.Harness),
		teams:     make(map[string][]string),
	}, nil
}

// Start brings up a harness for every startup agent. On failure the agents
// started so far are stopped again.
func (r *Runtime) Start(ctx context.Context) error {
	r.logger.Info("starting agent runtime", zap.Int("agents", len(r.cfg.Agents)))

	started := make([]string, 0, len(r.cfg.Agents))
	for _, a := range r.cfg.Agents {
		if err := r.StartAgent(ctx, a, ""); err != nil {
			for _, id := range started {
				if stopErr := r.StopAgent(ctx, id); stopErr != nil {
					r.logger.Warn("failed to roll back agent",
						zap.String("agent_id", id), zap.Error(stopErr))
				}
			}
			return err
		}
		started = append(started, a.AgentID())
	}
	return nil
}

// Stop shuts down every running harness sequentially, in agent ID order.
func (r *Runtime) Stop(ctx context.Context) error {
	ids := r.RunningAgentIDs()
	r.logger.Info("stopping agent runtime", zap.Int("agents", len(ids)))

	var errs []error
	for _, id := range ids {
		if err := r.StopAgent(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StartAgent hosts an agent in a new harness. An empty teamID leaves the
// agent outside any team.
func (r *Runtime) StartAgent(ctx context.Context, a agent.Agent, teamID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agentID := a.AgentID()
	if _, exists := r.harnesses[agentID]; exists {
		return ErrDuplicateAgent
	}

	h, err := harness.New(harness.Config{
		Agent:     a,
		Bus:       r.cfg.Bus,
		Registry:  r.cfg.Registry,
		Authority: r.cfg.Authority,
		Types:     r.cfg.Types,
		Dedup:     harness.NewMemoryDedup(harness.DefaultDedupCapacity),
		Logger:    r.cfg.Logger,
	})
	if err != nil {
		return err
	}
	if err := h.Start(ctx); err != nil {
		return err
	}

	r.harnesses[agentID] = h
	if teamID != "" {
		r.teams[teamID] = append(r.teams[teamID], agentID)
	}

	r.logger.Info("agent started",
		zap.String("agent_id", agentID),
		zap.String("team_id", teamID))
	return nil
}

// StopAgent stops the agent's harness and removes it from every team it
// belongs to. Stopping an agent that is not running is a no-op.
func (r *Runtime) StopAgent(ctx context.Context, agentID string) error {
	r.mu.Lock()
	h, ok := r.harnesses[agentID]
	if !ok {
		r.mu.Unlock()
		r.logger.Warn("stop requested for unknown agent, ignoring",
			zap.String("agent_id", agentID))
		return nil
	}
	delete(r.harnesses, agentID)
	for teamID, members := range r.teams {
		r.teams[teamID] = removeMember(members, agentID)
	}
	r.mu.Unlock()

	if err := h.Stop(ctx); err != nil {
		return err
	}
	r.logger.Info("agent stopped", zap.String("agent_id", agentID))
	return nil
}

// StopTeam stops every member of the team and forgets the team itself.
func (r *Runtime) StopTeam(ctx context.Context, teamID string) error {
	r.mu.Lock()
	members := append([]string(nil), r.teams[teamID]...)
	delete(r.teams, teamID)
	r.mu.Unlock()

	var errs []error
	for _, agentID := range members {
		if err := r.StopAgent(ctx, agentID); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		r.logger.Info("team stopped",
			zap.String("team_id", teamID),
			zap.Int("members", len(members)))
	}
	return errors.Join(errs...)
}

// TeamAgentIDs returns a snapshot of the team's members in join order.
func (r *Runtime) TeamAgentIDs(teamID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.teams[teamID]...)
}

// RunningAgentIDs returns a sorted snapshot of all hosted agent IDs.
func (r *Runtime) RunningAgentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.harnesses))
	for id := range r.harnesses {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsAgentRunning reports whether the runtime currently hosts the agent.
func (r *Runtime) IsAgentRunning(agentID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.harnesses[agentID]
	return ok
}

func removeMember(members []string, agentID string) []string {
	out := members[:0]
	for _, id := range members {
		if id != agentID {
			out = append(out, id)
		}
	}
	return out
}
