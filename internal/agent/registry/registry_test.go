package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/internal/agent"
)

func newRegistration(agentID string, available bool, capabilities ...string) Registration {
	caps := make([]agent.Capability, len(capabilities))
	for i, name := range capabilities {
		caps[i] = agent.Capability{Name: name}
	}
	return Registration{
		AgentID:      agentID,
		Name:         agentID,
		AgentType:    agent.TypeAI,
		Capabilities: caps,
		RegisteredAt: time.Now().UTC(),
		IsAvailable:  available,
	}
}

func TestMemoryRegistryUpsertGet(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	t.Run("get after upsert", func(t *testing.T) {
		require.NoError(t, reg.Upsert(ctx, newRegistration("email-agent", true, "email-drafting")))

		got, err := reg.Get(ctx, "email-agent")
		require.NoError(t, err)
		assert.Equal(t, "email-agent", got.AgentID)
		assert.True(t, got.IsAvailable)
		assert.Len(t, got.Capabilities, 1)
	})

	t.Run("unknown agent", func(t *testing.T) {
		_, err := reg.Get(ctx, "ghost")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("upsert replaces", func(t *testing.T) {
		updated := newRegistration("email-agent", true, "email-drafting", "scheduling")
		updated.Name = "Email Agent v2"
		require.NoError(t, reg.Upsert(ctx, updated))

		got, err := reg.Get(ctx, "email-agent")
		require.NoError(t, err)
		assert.Equal(t, "Email Agent v2", got.Name)
		assert.Len(t, got.Capabilities, 2)
	})
}

func TestMemoryRegistryFindByCapability(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, newRegistration("analyst", true, "data-analysis")))
	require.NoError(t, reg.Upsert(ctx, newRegistration("writer", true, "drafting")))
	require.NoError(t, reg.Upsert(ctx, newRegistration("backup-analyst", true, "data-analysis")))
	require.NoError(t, reg.Upsert(ctx, newRegistration("retired-analyst", false, "data-analysis")))

	t.Run("returns only available agents", func(t *testing.T) {
		got, err := reg.FindByCapability(ctx, "data-analysis")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "analyst", got[0].AgentID)
		assert.Equal(t, "backup-analyst", got[1].AgentID)
	})

	t.Run("matching is case-insensitive", func(t *testing.T) {
		got, err := reg.FindByCapability(ctx, "Data-Analysis")
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("no match", func(t *testing.T) {
		got, err := reg.FindByCapability(ctx, "juggling")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestMemoryRegistrySetAvailability(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, newRegistration("analyst", true, "data-analysis")))

	require.NoError(t, reg.SetAvailability(ctx, "analyst", false))
	got, err := reg.FindByCapability(ctx, "data-analysis")
	require.NoError(t, err)
	assert.Empty(t, got, "unavailable agents must not be routable")

	require.NoError(t, reg.SetAvailability(ctx, "analyst", true))
	got, err = reg.FindByCapability(ctx, "data-analysis")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.ErrorIs(t, reg.SetAvailability(ctx, "ghost", false), ErrNotFound)
}

func TestMemoryRegistryAll(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, newRegistration("writer", true, "drafting")))
	require.NoError(t, reg.Upsert(ctx, newRegistration("analyst", false, "data-analysis")))

	all, err := reg.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "analyst", all[0].AgentID, "All is ordered by agent ID")
	assert.Equal(t, "writer", all[1].AgentID)
}

func TestMemoryRegistryRemove(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	require.NoError(t, reg.Upsert(ctx, newRegistration("analyst", true, "data-analysis")))
	require.NoError(t, reg.Remove(ctx, "analyst"))

	_, err := reg.Get(ctx, "analyst")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, reg.Remove(ctx, "analyst"), "removing an unknown agent is a no-op")
}

func TestMemoryRegistryCallerMutationDoesNotLeak(t *testing.T) {
	reg := NewMemoryRegistry()
	ctx := context.Background()

	in := newRegistration("analyst", true, "data-analysis")
	require.NoError(t, reg.Upsert(ctx, in))
	in.Capabilities[0].Name = "mutated"

	got, err := reg.Get(ctx, "analyst")
	require.NoError(t, err)
	assert.Equal(t, "data-analysis", got.Capabilities[0].Name)
}
