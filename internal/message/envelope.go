package message

import (
	"fmt"
	"time"
)

// Priority is an informational urgency level carried on an envelope.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

var priorityNames = map[Priority]string{
	PriorityLow:      "low",
	PriorityNormal:   "normal",
	PriorityHigh:     "high",
	PriorityCritical: "critical",
}

// String returns the lowercase priority name.
func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// MarshalJSON encodes the priority as its name.
func (p Priority) MarshalJSON() ([]byte, error) {
	name, ok := priorityNames[p]
	if !ok {
		return nil, fmt.Errorf("cannot encode priority %d", int(p))
	}
	return []byte(`"` + name + `"`), nil
}

// UnmarshalJSON decodes a priority from its name.
func (p *Priority) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return fmt.Errorf("priority must be a JSON string, got %s", s)
	}
	for prio, name := range priorityNames {
		if name == s[1:len(s)-1] {
			*p = prio
			return nil
		}
	}
	return fmt.Errorf("unknown priority %s", s)
}

// Context carries the correlation and routing metadata of an envelope.
// All fields are optional.
type Context struct {
	ParentMessageID string `json:"parent_message_id,omitempty"`
	OriginalGoal    string `json:"original_goal,omitempty"`
	TeamID          string `json:"team_id,omitempty"`
	ChannelID       string `json:"channel_id,omitempty"`
	ReplyTo         string `json:"reply_to,omitempty"`
	FromAgentID     string `json:"from_agent_id,omitempty"`
}

// Envelope is the unit published on the bus. Envelopes are immutable: the
// With helpers return copies, and claim slices are never shared between
// values.
type Envelope struct {
	Message         Message
	ReferenceCode   ReferenceCode
	AuthorityClaims []AuthorityClaim
	Context         Context
	Priority        Priority
	SLA             *time.Time
}

// New wraps a payload in an envelope with Normal priority.
func New(msg Message) Envelope {
	return Envelope{Message: msg, Priority: PriorityNormal}
}

// WithReferenceCode returns a copy carrying the given reference code.
func (e Envelope) WithReferenceCode(code ReferenceCode) Envelope {
	e.ReferenceCode = code
	return e
}

// WithClaims returns a copy carrying exactly the given claims.
func (e Envelope) WithClaims(claims ...AuthorityClaim) Envelope {
	e.AuthorityClaims = append([]AuthorityClaim(nil), claims...)
	return e
}

// WithContext returns a copy carrying the given context.
func (e Envelope) WithContext(c Context) Envelope {
	e.Context = c
	return e
}

// WithPriority returns a copy carrying the given priority.
func (e Envelope) WithPriority(p Priority) Envelope {
	e.Priority = p
	return e
}

// WithSLA returns a copy carrying the given deadline.
func (e Envelope) WithSLA(deadline time.Time) Envelope {
	d := deadline
	e.SLA = &d
	return e
}

// MaxClaimTier returns the highest tier among the envelope's claims, or
// JustDoIt when the envelope carries none.
func (e Envelope) MaxClaimTier() Tier {
	max := TierJustDoIt
	for _, c := range e.AuthorityClaims {
		max = MaxTier(max, c.Tier)
	}
	return max
}
