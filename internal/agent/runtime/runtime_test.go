package runtime

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/internal/agent"
	"github.com/cortexhq/cortex/internal/agent/registry"
	"github.com/cortexhq/cortex/internal/bus"
	"github.com/cortexhq/cortex/internal/common/logger"
	"github.com/cortexhq/cortex/internal/message"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "error",
		Format:     "console",
		OutputPath: "stdout",
	})
	require.NoError(t, err)
	return log
}

func sinkAgent(id string) *agent.Func {
	return agent.NewFunc(id, id, nil,
		func(ctx context.Context, env message.Envelope) (*message.Envelope, error) {
			return nil, nil
		})
}

func newTestRuntime(t *testing.T, startup ...agent.Agent) (*Runtime, *registry.MemoryRegistry) {
	t.Helper()
	log := testLogger(t)
	memBus := bus.NewMemoryBus(log)
	t.Cleanup(memBus.Close)
	reg := registry.NewMemoryRegistry()

	rt, err := New(Config{
		Bus:      memBus,
		Registry: reg,
		Logger:   log,
		Agents:   startup,
	})
	require.NoError(t, err)
	return rt, reg
}

func TestRuntimeHostedLifecycle(t *testing.T) {
	ctx := context.Background()
	rt, reg := newTestRuntime(t, sinkAgent("alpha"), sinkAgent("beta"))

	require.NoError(t, rt.Start(ctx))
	assert.Equal(t, []string{"alpha", "beta"}, rt.RunningAgentIDs())
	assert.True(t, rt.IsAgentRunning("alpha"))

	for _, id := range []string{"alpha", "beta"} {
		got, err := reg.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.IsAvailable)
	}

	require.NoError(t, rt.Stop(ctx))
	assert.Empty(t, rt.RunningAgentIDs())
	assert.False(t, rt.IsAgentRunning("alpha"))

	for _, id := range []string{"alpha", "beta"} {
		got, err := reg.Get(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.IsAvailable, "stopped agents must be marked unavailable")
	}
}

func TestRuntimeStartRollsBackOnDuplicate(t *testing.T) {
	ctx := context.Background()
	rt, _ := newTestRuntime(t, sinkAgent("alpha"), sinkAgent("alpha"))

	require.ErrorIs(t, rt.Start(ctx), ErrDuplicateAgent)
	assert.Empty(t, rt.RunningAgentIDs(), "partial start must be rolled back")
}

func TestRuntimeDynamicAgents(t *testing.T) {
	ctx := context.Background()
	rt, _ := newTestRuntime(t)

	require.NoError(t, rt.StartAgent(ctx, sinkAgent("solo"), ""))
	require.NoError(t, rt.StartAgent(ctx, sinkAgent("res-1"), "research"))
	require.NoError(t, rt.StartAgent(ctx, sinkAgent("res-2"), "research"))

	t.Run("duplicate id rejected", func(t *testing.T) {
		require.ErrorIs(t, rt.StartAgent(ctx, sinkAgent("solo"), "other"), ErrDuplicateAgent)
	})

	t.Run("team membership tracked in join order", func(t *testing.T) {
		assert.Equal(t, []string{"res-1", "res-2"}, rt.TeamAgentIDs("research"))
		assert.Empty(t, rt.TeamAgentIDs("no-such-team"))
	})

	t.Run("stop removes from team", func(t *testing.T) {
		require.NoError(t, rt.StopAgent(ctx, "res-1"))
		assert.Equal(t, []string{"res-2"}, rt.TeamAgentIDs("research"))
		assert.False(t, rt.IsAgentRunning("res-1"))
	})

	t.Run("stopping unknown agent is a no-op", func(t *testing.T) {
		require.NoError(t, rt.StopAgent(ctx, "ghost"))
	})

	t.Run("stop team stops all members", func(t *testing.T) {
		require.NoError(t, rt.StopTeam(ctx, "research"))
		assert.False(t, rt.IsAgentRunning("res-2"))
		assert.Empty(t, rt.TeamAgentIDs("research"))
		assert.Equal(t, []string{"solo"}, rt.RunningAgentIDs(), "agents outside the team keep running")
	})
}

func TestRuntimeRequiresDependencies(t *testing.T) {
	log := testLogger(t)
	memBus := bus.NewMemoryBus(log)
	defer memBus.Close()

	_, err := New(Config{Registry: registry.NewMemoryRegistry(), Logger: log})
	require.Error(t, err)

	_, err = New(Config{Bus: memBus, Logger: log})
	require.Error(t, err)

	_, err = New(Config{Bus: memBus, Registry: registry.NewMemoryRegistry()})
	require.Error(t, err)
}
