package skilled

import (
	"sync"
	"time"

	"github.com/cortexhq/cortex/internal/message"
)

// PendingPlan is a decomposition parked behind the approval gate: the plan
// waits here until a PlanApprovalResponse arrives for its workflow code.
type PendingPlan struct {
	WorkflowReferenceCode message.ReferenceCode
	OriginalEnvelope      message.Envelope
	Decomposition         DecompositionResult
	StoredAt              time.Time
}

// PendingPlanStore holds plans awaiting approval, keyed by workflow
// reference code.
type PendingPlanStore interface {
	// Put parks a plan under its workflow reference code.
	Put(plan PendingPlan)
	// Get peeks at a parked plan without removing it.
	Get(code message.ReferenceCode) (PendingPlan, bool)
	// Take removes and returns the plan for a code. The second return is
	// false when no plan is parked under it.
	Take(code message.ReferenceCode) (PendingPlan, bool)
}

// MemoryPendingPlans keeps pending plans in process memory.
type MemoryPendingPlans struct {
	mu    sync.Mutex
	plans map[string]PendingPlan
}

// NewMemoryPendingPlans creates an empty pending-plan store.
func NewMemoryPendingPlans() *MemoryPendingPlans {
	return &MemoryPendingPlans{plans: make(map[string]PendingPlan)}
}

// Put parks a plan, replacing any previous plan under the same code.
func (s *MemoryPendingPlans) Put(plan PendingPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans[plan.WorkflowReferenceCode.String()] = plan
}

// Get peeks at a parked plan.
func (s *MemoryPendingPlans) Get(code message.ReferenceCode) (PendingPlan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[code.String()]
	return plan, ok
}

// Take removes and returns the plan for a code.
func (s *MemoryPendingPlans) Take(code message.ReferenceCode) (PendingPlan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[code.String()]
	if ok {
		delete(s.plans, code.String())
	}
	return plan, ok
}
