// Package authority stores capability grants between agents and validates
// the claims carried on message envelopes.
package authority

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cortexhq/cortex/internal/common/logger"
	"github.com/cortexhq/cortex/internal/message"
)

var (
	// ErrClaimExpired marks an envelope claim whose expiry is in the past.
	ErrClaimExpired = errors.New("authority claim expired")
	// ErrClaimNotGranted marks an envelope claim granted to a different agent.
	ErrClaimNotGranted = errors.New("authority claim granted to another agent")
)

// grantKey indexes grants by receiving agent and permitted action.
type grantKey struct {
	agentID string
	action  string
}

// Provider is an in-memory grant store. Grants are indexed per (agent,
// action) pair; a claim with no permitted actions is stored under the
// wildcard action and matches everything.
type Provider struct {
	log    *logger.Logger
	mu     sync.RWMutex
	grants map[grantKey]message.AuthorityClaim
	now    func() time.Time
}

// NewProvider creates an empty authority provider.
func NewProvider(log *logger.Logger) *Provider {
	if log == nil {
		log = logger.Default()
	}
	return &Provider{
		log:    log,
		grants: make(map[grantKey]message.AuthorityClaim),
		now:    time.Now,
	}
}

// Grant indexes the claim under every permitted action, or under the
// wildcard when the claim names none. Re-granting an identical claim is
// idempotent.
func (p *Provider) Grant(claim message.AuthorityClaim) {
	actions := claim.PermittedActions
	if len(actions) == 0 {
		actions = []string{message.ActionWildcard}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, action := range actions {
		p.grants[grantKey{agentID: claim.GrantedTo, action: action}] = claim
	}
	p.log.Debug("Authority granted",
		zap.String("granted_to", claim.GrantedTo),
		zap.String("granted_by", claim.GrantedBy),
		zap.String("tier", claim.Tier.String()),
		zap.Int("actions", len(actions)))
}

// GetClaim returns the claim covering the given agent and action, preferring
// an exact action grant over a wildcard grant. Expired grants are purged and
// reported as absent.
func (p *Provider) GetClaim(agentID, action string) *message.AuthorityClaim {
	if claim := p.lookup(grantKey{agentID: agentID, action: action}); claim != nil {
		return claim
	}
	if action == message.ActionWildcard {
		return nil
	}
	return p.lookup(grantKey{agentID: agentID, action: message.ActionWildcard})
}

func (p *Provider) lookup(key grantKey) *message.AuthorityClaim {
	p.mu.RLock()
	claim, ok := p.grants[key]
	p.mu.RUnlock()
	if !ok {
		return nil
	}
	if p.expired(claim) {
		p.purge(key)
		return nil
	}
	return &claim
}

// HasAuthority reports whether the agent holds an unexpired claim for the
// action at or above the given tier.
func (p *Provider) HasAuthority(agentID, action string, minTier message.Tier) bool {
	claim := p.GetClaim(agentID, action)
	return claim != nil && claim.Tier >= minTier
}

// Revoke removes the exact (agent, action) grant. Wildcard grants are left
// untouched unless revoked by the wildcard action itself.
func (p *Provider) Revoke(agentID, action string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.grants, grantKey{agentID: agentID, action: action})
}

// ValidateEnvelope checks the claims carried on an envelope against the
// receiving agent. An envelope without claims passes. Every carried claim
// must be unexpired and granted to the receiving agent.
func (p *Provider) ValidateEnvelope(agentID string, env message.Envelope) error {
	for i, claim := range env.AuthorityClaims {
		if p.expired(claim) {
			return fmt.Errorf("claim %d granted by %s: %w", i, claim.GrantedBy, ErrClaimExpired)
		}
		if claim.GrantedTo != agentID {
			return fmt.Errorf("claim %d granted to %s, not %s: %w", i, claim.GrantedTo, agentID, ErrClaimNotGranted)
		}
	}
	return nil
}

func (p *Provider) expired(claim message.AuthorityClaim) bool {
	return claim.ExpiresAt != nil && claim.ExpiresAt.Before(p.now())
}

func (p *Provider) purge(key grantKey) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// Re-check under the write lock; another goroutine may have re-granted.
	if claim, ok := p.grants[key]; ok && p.expired(claim) {
		delete(p.grants, key)
	}
}
