package harness

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortexhq/cortex/internal/agent"
	"github.com/cortexhq/cortex/internal/agent/registry"
	"github.com/cortexhq/cortex/internal/authority"
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

// captureBus records publishes so tests can assert reply routing
// synchronously.
type captureBus struct {
	mu        sync.Mutex
	published []capturedPublish
}

type capturedPublish struct {
	queue string
	env   message.Envelope
}

func (b *captureBus) Publish(_ context.Context, queueName string, env message.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, capturedPublish{queue: queueName, env: env})
	return nil
}

func (b *captureBus) StartConsuming(string, bus.Handler) (bus.ConsumerHandle, error) {
	return &captureHandle{}, nil
}

func (b *captureBus) StopAll()                    {}
func (b *captureBus) Topology() []bus.QueueBinding { return nil }
func (b *captureBus) IsConnected() bool            { return true }
func (b *captureBus) Close()                       {}

func (b *captureBus) all() []capturedPublish {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]capturedPublish(nil), b.published...)
}

type captureHandle struct{ stopped bool }

func (h *captureHandle) Stop() error    { h.stopped = true; return nil }
func (h *captureHandle) IsActive() bool { return !h.stopped }

func echoAgent(id string, calls *int) *agent.Func {
	return agent.NewFunc(id, id, []agent.Capability{{Name: "echo"}},
		func(ctx context.Context, env message.Envelope) (*message.Envelope, error) {
			*calls++
			reply := message.New(message.NewTextMessage("echo: " + message.PayloadText(env.Message)))
			return &reply, nil
		})
}

func newHarness(t *testing.T, cfg Config) *Harness {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testLogger(t)
	}
	h, err := New(cfg)
	require.NoError(t, err)
	return h
}

func TestHarnessReplyStamping(t *testing.T) {
	b := &captureBus{}
	var calls int
	h := newHarness(t, Config{
		Agent:    echoAgent("email-agent", &calls),
		Bus:      b,
		Registry: registry.NewMemoryRegistry(),
	})

	inbound := message.New(message.NewTextMessage("Draft reply to John")).
		WithReferenceCode(message.MustReferenceCode("CTX-2026-0115-001")).
		WithContext(message.Context{ReplyTo: "human", FromAgentID: "cos"})

	require.NoError(t, h.handleMessage(context.Background(), inbound))
	require.Equal(t, 1, calls)

	published := b.all()
	require.Len(t, published, 1)
	assert.Equal(t, "human", published[0].queue)

	out := published[0].env
	assert.Equal(t, "CTX-2026-0115-001", out.ReferenceCode.String(), "reference code carries over from the inbound envelope")
	assert.Equal(t, "email-agent", out.Context.FromAgentID, "harness stamps its own agent ID")
	assert.Equal(t, inbound.Message.MessageID(), out.Context.ParentMessageID)
}

func TestHarnessReplyWithoutReplyTo(t *testing.T) {
	b := &captureBus{}
	var calls int
	h := newHarness(t, Config{
		Agent:    echoAgent("email-agent", &calls),
		Bus:      b,
		Registry: registry.NewMemoryRegistry(),
	})

	inbound := message.New(message.NewTextMessage("no reply path"))
	require.NoError(t, h.handleMessage(context.Background(), inbound))

	assert.Equal(t, 1, calls, "agent still processes the envelope")
	assert.Empty(t, b.all(), "reply with nowhere to go is dropped")
}

func TestHarnessAuthorityGate(t *testing.T) {
	expired := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	t.Run("expired claim drops silently", func(t *testing.T) {
		b := &captureBus{}
		var calls int
		h := newHarness(t, Config{
			Agent:     echoAgent("email-agent", &calls),
			Bus:       b,
			Registry:  registry.NewMemoryRegistry(),
			Authority: authority.NewProvider(testLogger(t)),
		})

		env := message.New(message.NewTextMessage("stale")).
			WithContext(message.Context{ReplyTo: "human"}).
			WithClaims(message.AuthorityClaim{
				GrantedBy: "cos",
				GrantedTo: "email-agent",
				Tier:      message.TierDoItAndShowMe,
				GrantedAt: time.Now().Add(-2 * time.Hour),
				ExpiresAt: &expired,
			})

		require.NoError(t, h.handleMessage(context.Background(), env), "the drop is an ack, not a failure")
		assert.Zero(t, calls, "agent must not see gated envelopes")
		assert.Empty(t, b.all(), "the gate produces no reply")
	})

	t.Run("claim for another agent drops silently", func(t *testing.T) {
		b := &captureBus{}
		var calls int
		h := newHarness(t, Config{
			Agent:     echoAgent("email-agent", &calls),
			Bus:       b,
			Registry:  registry.NewMemoryRegistry(),
			Authority: authority.NewProvider(testLogger(t)),
		})

		env := message.New(message.NewTextMessage("missent")).
			WithClaims(message.AuthorityClaim{
				GrantedBy: "cos",
				GrantedTo: "someone-else",
				Tier:      message.TierJustDoIt,
				GrantedAt: time.Now(),
			})

		require.NoError(t, h.handleMessage(context.Background(), env))
		assert.Zero(t, calls)
	})

	t.Run("empty claims bypass the gate", func(t *testing.T) {
		b := &captureBus{}
		var calls int
		h := newHarness(t, Config{
			Agent:     echoAgent("email-agent", &calls),
			Bus:       b,
			Registry:  registry.NewMemoryRegistry(),
			Authority: authority.NewProvider(testLogger(t)),
		})

		env := message.New(message.NewTextMessage("open")).
			WithContext(message.Context{ReplyTo: "human"})

		require.NoError(t, h.handleMessage(context.Background(), env))
		assert.Equal(t, 1, calls)
	})

	t.Run("valid claim passes the gate", func(t *testing.T) {
		b := &captureBus{}
		var calls int
		h := newHarness(t, Config{
			Agent:     echoAgent("email-agent", &calls),
			Bus:       b,
			Registry:  registry.NewMemoryRegistry(),
			Authority: authority.NewProvider(testLogger(t)),
		})

		env := message.New(message.NewTextMessage("good")).
			WithContext(message.Context{ReplyTo: "human"}).
			WithClaims(message.AuthorityClaim{
				GrantedBy: "cos",
				GrantedTo: "email-agent",
				Tier:      message.TierDoItAndShowMe,
				GrantedAt: time.Now(),
				ExpiresAt: &future,
			})

		require.NoError(t, h.handleMessage(context.Background(), env))
		assert.Equal(t, 1, calls)
		assert.Len(t, b.all(), 1)
	})
}

func TestHarnessNoGateWithoutProvider(t *testing.T) {
	b := &captureBus{}
	var calls int
	h := newHarness(t, Config{
		Agent:    echoAgent("email-agent", &calls),
		Bus:      b,
		Registry: registry.NewMemoryRegistry(),
	})

	expired := time.Now().Add(-time.Hour)
	env := message.New(message.NewTextMessage("ungated")).
		WithClaims(message.AuthorityClaim{
			GrantedTo: "someone-else",
			ExpiresAt: &expired,
		})

	require.NoError(t, h.handleMessage(context.Background(), env))
	assert.Equal(t, 1, calls, "no provider means no gate")
}

func TestHarnessAgentErrorPropagates(t *testing.T) {
	b := &captureBus{}
	boom := errors.New("boom")
	failing := agent.NewFunc("flaky", "Flaky", nil,
		func(ctx context.Context, env message.Envelope) (*message.Envelope, error) {
			return nil, boom
		})
	h := newHarness(t, Config{Agent: failing, Bus: b, Registry: registry.NewMemoryRegistry()})

	err := h.handleMessage(context.Background(), message.New(message.NewTextMessage("x")))
	require.ErrorIs(t, err, boom, "harness must not swallow agent failures")
	assert.Empty(t, b.all())
}

func TestHarnessDedup(t *testing.T) {
	b := &captureBus{}
	var calls int
	h := newHarness(t, Config{
		Agent:    echoAgent("email-agent", &calls),
		Bus:      b,
		Registry: registry.NewMemoryRegistry(),
		Dedup:    NewMemoryDedup(16),
	})

	env := message.New(message.NewTextMessage("once")).
		WithContext(message.Context{ReplyTo: "human"})

	require.NoError(t, h.handleMessage(context.Background(), env))
	require.NoError(t, h.handleMessage(context.Background(), env), "redelivery is skipped, not failed")

	assert.Equal(t, 1, calls, "agent processes a redelivered message once")
	assert.Len(t, b.all(), 1)
}

func TestHarnessStartStopLifecycle(t *testing.T) {
	memBus := bus.NewMemoryBus(testLogger(t))
	defer memBus.Close()
	reg := registry.NewMemoryRegistry()
	ctx := context.Background()

	processed := make(chan string, 1)
	worker := agent.NewFunc("worker", "Worker", []agent.Capability{{Name: "work"}},
		func(ctx context.Context, env message.Envelope) (*message.Envelope, error) {
			processed <- message.PayloadText(env.Message)
			return nil, nil
		})

	h := newHarness(t, Config{
		Agent:    worker,
		Bus:      memBus,
		Registry: reg,
		Types:    agent.StaticType(agent.TypeAI),
	})

	require.NoError(t, h.Start(ctx))
	require.True(t, h.IsRunning())

	t.Run("start registers the agent", func(t *testing.T) {
		got, err := reg.Get(ctx, "worker")
		require.NoError(t, err)
		assert.Equal(t, agent.TypeAI, got.AgentType)
		assert.True(t, got.IsAvailable)
	})

	t.Run("double start fails", func(t *testing.T) {
		require.ErrorIs(t, h.Start(ctx), ErrAlreadyStarted)
	})

	t.Run("bound queue receives messages", func(t *testing.T) {
		require.NoError(t, memBus.Publish(ctx, bus.AgentQueue("worker"), message.New(message.NewTextMessage("job"))))
		select {
		case got := <-processed:
			assert.Equal(t, "job", got)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for dispatch")
		}
	})

	t.Run("stop marks the agent unavailable", func(t *testing.T) {
		require.NoError(t, h.Stop(ctx))
		assert.False(t, h.IsRunning())

		got, err := reg.Get(ctx, "worker")
		require.NoError(t, err)
		assert.False(t, got.IsAvailable)
	})

	t.Run("second stop reports not started", func(t *testing.T) {
		require.ErrorIs(t, h.Stop(ctx), ErrNotStarted)
	})
}

func TestMemoryDedup(t *testing.T) {
	t.Run("marking twice reports seen", func(t *testing.T) {
		d := NewMemoryDedup(4)
		assert.False(t, d.MarkSeen("a"))
		assert.True(t, d.MarkSeen("a"))
		assert.True(t, d.MarkSeen("a"), "repeated marks stay idempotent")
	})

	t.Run("capacity evicts oldest", func(t *testing.T) {
		d := NewMemoryDedup(2)
		assert.False(t, d.MarkSeen("a"))
		assert.False(t, d.MarkSeen("b"))
		assert.False(t, d.MarkSeen("c"), "c evicts a")
		assert.False(t, d.MarkSeen("a"), "a was forgotten")
	})
}
