package message

import (
	"fmt"
	"strings"
	"time"
)

// Tier is an authority level granted to an agent. Tiers are totally ordered:
// the higher the tier, the more oversight the grantor demands.
type Tier int

const (
	// TierJustDoIt lets the agent act without reporting back.
	TierJustDoIt Tier = iota
	// TierDoItAndShowMe lets the agent act but requires showing the result.
	TierDoItAndShowMe
	// TierAskMeFirst requires approval before the agent acts.
	TierAskMeFirst
)

var tierNames = map[Tier]string{
	TierJustDoIt:      "JustDoIt",
	TierDoItAndShowMe: "DoItAndShowMe",
	TierAskMeFirst:    "AskMeFirst",
}

// String returns the canonical tier name.
func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Tier(%d)", int(t))
}

// ParseTier resolves a tier from its name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	for tier, name := range tierNames {
		if strings.EqualFold(s, name) {
			return tier, nil
		}
	}
	return TierJustDoIt, fmt.Errorf("unknown authority tier %q", s)
}

// MarshalJSON encodes the tier as its name.
func (t Tier) MarshalJSON() ([]byte, error) {
	name, ok := tierNames[t]
	if !ok {
		return nil, fmt.Errorf("cannot encode authority tier %d", int(t))
	}
	return []byte(`"` + name + `"`), nil
}

// UnmarshalJSON decodes a tier from its name.
func (t *Tier) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("authority tier must be a JSON string, got %s", s)
	}
	tier, err := ParseTier(s[1 : len(s)-1])
	if err != nil {
		return err
	}
	*t = tier
	return nil
}

// MinTier returns the lower of two tiers.
func MinTier(a, b Tier) Tier {
	if a < b {
		return a
	}
	return b
}

// MaxTier returns the higher of two tiers.
func MaxTier(a, b Tier) Tier {
	if a > b {
		return a
	}
	return b
}

// ActionWildcard matches any action when present in a claim's permitted set.
// A claim with an empty permitted set behaves as if it carried the wildcard.
const ActionWildcard = "*"

// AuthorityClaim records an authority grant carried on an envelope or held
// by the authority provider. Claims are immutable values.
type AuthorityClaim struct {
	GrantedBy        string     `json:"granted_by"`
	GrantedTo        string     `json:"granted_to"`
	Tier             Tier       `json:"tier"`
	PermittedActions []string   `json:"permitted_actions,omitempty"`
	GrantedAt        time.Time  `json:"granted_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// IsExpired reports whether the claim has an expiry in the past.
func (c AuthorityClaim) IsExpired() bool {
	return c.ExpiresAt != nil && c.ExpiresAt.Before(time.Now())
}

// Permits reports whether the claim covers the given action. An empty
// permitted set and the wildcard sentinel both cover every action.
func (c AuthorityClaim) Permits(action string) bool {
	if len(c.PermittedActions) == 0 {
		return true
	}
	for _, a := range c.PermittedActions {
		if a == ActionWildcard || a == action {
			return true
		}
	}
	return false
}

// AppliesTo reports whether the claim grants agentID the given action right
// now: the claim targets the agent, covers the action, and is not expired.
func (c AuthorityClaim) AppliesTo(agentID, action string) bool {
	return c.GrantedTo == agentID && c.Permits(action) && !c.IsExpired()
}
