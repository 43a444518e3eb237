// Package workflow correlates fan-out workflows with their sub-task results.
// A workflow is created when an agent decomposes a goal into several
// delegated tasks; the tracker remembers which sub-task codes belong to it
// and collects the result envelopes as they come back.
package workflow

import (
	"time"

	"github.com/cortexhq/cortex/internal/message"
)

// Status describes where a workflow sits in its lifecycle.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Record describes one fan-out workflow. Records are immutable; status
// transitions replace the stored copy.
type Record struct {
	ReferenceCode         message.ReferenceCode   `json:"reference_code"`
	OriginalEnvelope      message.Envelope        `json:"original_envelope"`
	SubtaskReferenceCodes []message.ReferenceCode `json:"subtask_reference_codes"`
	Summary               string                  `json:"summary"`
	Status                Status                  `json:"status"`
	CreatedAt             time.Time               `json:"created_at"`
	CompletedAt           *time.Time              `json:"completed_at,omitempty"`
}

// Result pairs a sub-task reference with the envelope its assignee returned.
type Result struct {
	SubtaskReferenceCode message.ReferenceCode
	Envelope             message.Envelope
}
