// Package message defines the value types that flow through the Cortex bus:
// reference codes, authority claims, message payloads, and the envelope that
// carries them. Everything in this package is an immutable value; mutation
// helpers return copies.
package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Message is the minimal capability set every payload carries.
type Message interface {
	MessageID() string
	Timestamp() time.Time
	CorrelationID() string
}

// ContentCarrier is implemented by payloads with human-readable content.
// Aggregation and logging prefer it over rendering the raw value.
type ContentCarrier interface {
	Text() string
}

// PayloadText extracts displayable content from a message, falling back to a
// fmt rendering for payload types that carry no content of their own.
func PayloadText(m Message) string {
	if c, ok := m.(ContentCarrier); ok {
		return c.Text()
	}
	return fmt.Sprintf("%v", m)
}

// Meta carries the common message fields. Payload types embed it.
type Meta struct {
	ID          string    `json:"message_id"`
	CreatedAt   time.Time `json:"timestamp"`
	Correlation string    `json:"correlation_id,omitempty"`
}

// NewMeta returns a Meta with a fresh unique ID and the current UTC time.
func NewMeta() Meta {
	return Meta{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	}
}

// MessageID returns the unique per-instance message ID.
func (m Meta) MessageID() string { return m.ID }

// Timestamp returns the construction time of the message.
func (m Meta) Timestamp() time.Time { return m.CreatedAt }

// CorrelationID returns the optional correlation ID linking related messages.
func (m Meta) CorrelationID() string { return m.Correlation }

// TextMessage is a free-form text payload.
type TextMessage struct {
	Meta
	Content string `json:"content"`
}

// NewTextMessage builds a text payload with fresh metadata.
func NewTextMessage(content string) *TextMessage {
	return &TextMessage{Meta: NewMeta(), Content: content}
}

// Text returns the message content.
func (m *TextMessage) Text() string { return m.Content }

// PlanProposal asks an approver to accept or reject a decomposition before
// any sub-task is dispatched.
type PlanProposal struct {
	Meta
	Summary               string        `json:"summary"`
	TaskDescriptions      []string      `json:"task_descriptions"`
	OriginalGoal          string        `json:"original_goal,omitempty"`
	WorkflowReferenceCode ReferenceCode `json:"workflow_reference_code"`
}

// NewPlanProposal builds a plan proposal with fresh metadata.
func NewPlanProposal(summary string, taskDescriptions []string, originalGoal string, workflowRef ReferenceCode) *PlanProposal {
	return &PlanProposal{
		Meta:                  NewMeta(),
		Summary:               summary,
		TaskDescriptions:      append([]string(nil), taskDescriptions...),
		OriginalGoal:          originalGoal,
		WorkflowReferenceCode: workflowRef,
	}
}

// Text returns the proposal summary.
func (m *PlanProposal) Text() string { return m.Summary }

// PlanApprovalResponse answers a PlanProposal.
type PlanApprovalResponse struct {
	Meta
	WorkflowReferenceCode ReferenceCode `json:"workflow_reference_code"`
	IsApproved            bool          `json:"is_approved"`
	RejectionReason       string        `json:"rejection_reason,omitempty"`
}

// NewPlanApprovalResponse builds an approval response with fresh metadata.
func NewPlanApprovalResponse(workflowRef ReferenceCode, approved bool, rejectionReason string) *PlanApprovalResponse {
	return &PlanApprovalResponse{
		Meta:                  NewMeta(),
		WorkflowReferenceCode: workflowRef,
		IsApproved:            approved,
		RejectionReason:       rejectionReason,
	}
}

// SupervisionAlert reports an overdue delegation that is still within its
// retry budget.
type SupervisionAlert struct {
	Meta
	ReferenceCode  ReferenceCode `json:"reference_code"`
	DelegatedTo    string        `json:"delegated_to"`
	Description    string        `json:"description"`
	RetryCount     int           `json:"retry_count"`
	DueAt          *time.Time    `json:"due_at,omitempty"`
	IsAgentRunning bool          `json:"is_agent_running"`
}

// NewSupervisionAlert builds a supervision alert with fresh metadata.
func NewSupervisionAlert(ref ReferenceCode, delegatedTo, description string, retryCount int, dueAt *time.Time, running bool) *SupervisionAlert {
	return &SupervisionAlert{
		Meta:           NewMeta(),
		ReferenceCode:  ref,
		DelegatedTo:    delegatedTo,
		Description:    description,
		RetryCount:     retryCount,
		DueAt:          dueAt,
		IsAgentRunning: running,
	}
}

// Text returns the delegation description.
func (m *SupervisionAlert) Text() string { return m.Description }

// EscalationAlert reports a delegation whose retry budget is exhausted.
type EscalationAlert struct {
	Meta
	ReferenceCode ReferenceCode `json:"reference_code"`
	DelegatedTo   string        `json:"delegated_to"`
	Description   string        `json:"description"`
	Reason        string        `json:"reason"`
	RetryCount    int           `json:"retry_count"`
}

// NewEscalationAlert builds an escalation alert with fresh metadata.
func NewEscalationAlert(ref ReferenceCode, delegatedTo, description, reason string, retryCount int) *EscalationAlert {
	return &EscalationAlert{
		Meta:          NewMeta(),
		ReferenceCode: ref,
		DelegatedTo:   delegatedTo,
		Description:   description,
		Reason:        reason,
		RetryCount:    retryCount,
	}
}

// Text returns the escalation reason.
func (m *EscalationAlert) Text() string { return m.Reason }
