package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTierOrdering(t *testing.T) {
	assert.True(t, TierJustDoIt < TierDoItAndShowMe)
	assert.True(t, TierDoItAndShowMe < TierAskMeFirst)

	assert.Equal(t, TierJustDoIt, MinTier(TierAskMeFirst, TierJustDoIt))
	assert.Equal(t, TierAskMeFirst, MaxTier(TierAskMeFirst, TierDoItAndShowMe))
}

func TestParseTier(t *testing.T) {
	t.Run("resolves canonical names", func(t *testing.T) {
		for name, want := range map[string]Tier{
			"JustDoIt":      TierJustDoIt,
			"DoItAndShowMe": TierDoItAndShowMe,
			"AskMeFirst":    TierAskMeFirst,
		} {
			got, err := ParseTier(name)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
	})

	t.Run("is case-insensitive", func(t *testing.T) {
		got, err := ParseTier("askmefirst")
		require.NoError(t, err)
		assert.Equal(t, TierAskMeFirst, got)
	})

	t.Run("rejects unknown names", func(t *testing.T) {
		_, err := ParseTier("WheneverYouFeelLikeIt")
		assert.Error(t, err)
	})
}

func TestTierJSON(t *testing.T) {
	data, err := json.Marshal(TierDoItAndShowMe)
	require.NoError(t, err)
	assert.Equal(t, `"DoItAndShowMe"`, string(data))

	var tier Tier
	require.NoError(t, json.Unmarshal([]byte(`"AskMeFirst"`), &tier))
	assert.Equal(t, TierAskMeFirst, tier)

	assert.Error(t, json.Unmarshal([]byte(`"bogus"`), &tier))
}

func TestAuthorityClaimExpiry(t *testing.T) {
	t.Run("no expiry never expires", func(t *testing.T) {
		claim := AuthorityClaim{GrantedTo: "a", GrantedAt: time.Now()}
		assert.False(t, claim.IsExpired())
	})

	t.Run("past expiry is expired", func(t *testing.T) {
		past := time.Now().Add(-time.Hour)
		claim := AuthorityClaim{GrantedTo: "a", ExpiresAt: &past}
		assert.True(t, claim.IsExpired())
	})

	t.Run("future expiry is not expired", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		claim := AuthorityClaim{GrantedTo: "a", ExpiresAt: &future}
		assert.False(t, claim.IsExpired())
	})
}

func TestAuthorityClaimPermits(t *testing.T) {
	t.Run("empty permitted set covers every action", func(t *testing.T) {
		claim := AuthorityClaim{GrantedTo: "a"}
		assert.True(t, claim.Permits("send-email"))
	})

	t.Run("wildcard covers every action", func(t *testing.T) {
		claim := AuthorityClaim{GrantedTo: "a", PermittedActions: []string{ActionWildcard}}
		assert.True(t, claim.Permits("anything"))
	})

	t.Run("explicit actions are matched exactly", func(t *testing.T) {
		claim := AuthorityClaim{GrantedTo: "a", PermittedActions: []string{"send-email", "draft"}}
		assert.True(t, claim.Permits("draft"))
		assert.False(t, claim.Permits("delete-account"))
	})
}

func TestAuthorityClaimAppliesTo(t *testing.T) {
	future := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Hour)

	claim := AuthorityClaim{
		GrantedBy:        "founder",
		GrantedTo:        "cos",
		Tier:             TierDoItAndShowMe,
		PermittedActions: []string{"plan"},
		GrantedAt:        time.Now(),
		ExpiresAt:        &future,
	}

	assert.True(t, claim.AppliesTo("cos", "plan"))
	assert.False(t, claim.AppliesTo("other-agent", "plan"))
	assert.False(t, claim.AppliesTo("cos", "deploy"))

	expired := claim
	expired.ExpiresAt = &past
	assert.False(t, expired.AppliesTo("cos", "plan"))
}
