// Package delegation tracks units of work handed from one agent to another,
// and counts supervision retries per reference code.
package delegation

import (
	"time"

	"github.com/cortexhq/cortex/internal/message"
)

// Status describes where a delegated task sits in its lifecycle.
type Status string

const (
	StatusAssigned       Status = "assigned"
	StatusInProgress     Status = "in_progress"
	StatusAwaitingReview Status = "awaiting_review"
	StatusComplete       Status = "complete"
	// StatusOverdue exists for callers that persist the computed overdue
	// view; the tracker itself derives overdue from DueAt at query time.
	StatusOverdue Status = "overdue"
)

// Record describes one delegated unit of work. Records are immutable;
// UpdateStatus stores a replacement rather than mutating in place.
type Record struct {
	ReferenceCode message.ReferenceCode `json:"reference_code"`
	DelegatedBy   string                `json:"delegated_by"`
	DelegatedTo   string                `json:"delegated_to"`
	Description   string                `json:"description"`
	Status        Status                `json:"status"`
	AssignedAt    time.Time             `json:"assigned_at"`
	DueAt         *time.Time            `json:"due_at,omitempty"`
	CompletedAt   *time.Time            `json:"completed_at,omitempty"`
}
