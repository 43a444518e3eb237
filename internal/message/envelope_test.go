package message

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	msg := NewTextMessage("hello")
	env := New(msg)

	assert.Equal(t, msg, env.Message)
	assert.Equal(t, PriorityNormal, env.Priority)
	assert.True(t, env.ReferenceCode.IsZero())
	assert.Empty(t, env.AuthorityClaims)
}

func TestEnvelopeCopyOnWrite(t *testing.T) {
	base := New(NewTextMessage("goal"))

	t.Run("WithReferenceCode leaves the original unchanged", func(t *testing.T) {
		code := MustReferenceCode("CTX-2026-0824-001")
		derived := base.WithReferenceCode(code)
		assert.Equal(t, code, derived.ReferenceCode)
		assert.True(t, base.ReferenceCode.IsZero())
	})

	t.Run("WithClaims does not share the claim slice", func(t *testing.T) {
		claim := AuthorityClaim{GrantedBy: "founder", GrantedTo: "cos", Tier: TierAskMeFirst}
		derived := base.WithClaims(claim)
		require.Len(t, derived.AuthorityClaims, 1)

		derived.AuthorityClaims[0].GrantedTo = "mutated"
		again := base.WithClaims(claim)
		assert.Equal(t, "cos", again.AuthorityClaims[0].GrantedTo)
		assert.Empty(t, base.AuthorityClaims)
	})

	t.Run("WithContext replaces the whole context", func(t *testing.T) {
		derived := base.WithContext(Context{ReplyTo: "human", FromAgentID: "cos"})
		assert.Equal(t, "human", derived.Context.ReplyTo)
		assert.Empty(t, base.Context.ReplyTo)
	})

	t.Run("WithSLA copies the deadline", func(t *testing.T) {
		deadline := time.Now().Add(time.Hour)
		derived := base.WithSLA(deadline)
		require.NotNil(t, derived.SLA)
		assert.True(t, derived.SLA.Equal(deadline))
		assert.Nil(t, base.SLA)
	})
}

func TestEnvelopeMaxClaimTier(t *testing.T) {
	t.Run("defaults to JustDoIt without claims", func(t *testing.T) {
		env := New(NewTextMessage("x"))
		assert.Equal(t, TierJustDoIt, env.MaxClaimTier())
	})

	t.Run("returns the highest tier", func(t *testing.T) {
		env := New(NewTextMessage("x")).WithClaims(
			AuthorityClaim{GrantedTo: "a", Tier: TierJustDoIt},
			AuthorityClaim{GrantedTo: "a", Tier: TierAskMeFirst},
			AuthorityClaim{GrantedTo: "a", Tier: TierDoItAndShowMe},
		)
		assert.Equal(t, TierAskMeFirst, env.MaxClaimTier())
	})
}

func TestMessageMeta(t *testing.T) {
	first := NewTextMessage("one")
	second := NewTextMessage("two")

	assert.NotEmpty(t, first.MessageID())
	assert.NotEqual(t, first.MessageID(), second.MessageID())
	assert.WithinDuration(t, time.Now().UTC(), first.Timestamp(), time.Minute)
}

func TestPayloadText(t *testing.T) {
	t.Run("prefers ContentCarrier", func(t *testing.T) {
		assert.Equal(t, "report ready", PayloadText(NewTextMessage("report ready")))
	})

	t.Run("falls back to a fmt rendering", func(t *testing.T) {
		resp := NewPlanApprovalResponse(MustReferenceCode("CTX-2026-0824-001"), true, "")
		assert.NotEmpty(t, PayloadText(resp))
	})
}
