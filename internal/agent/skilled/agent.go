// Package skilled implements the skill-driven agent: one agent type whose
// behavior comes entirely from a persona and its skill pipeline. The agent
// decomposes incoming goals, routes tasks to capable agents, gates risky
// plans behind human approval, aggregates fan-out results, and escalates
// what it cannot handle.
package skilled

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cortexhq/cortex/internal/agent"
	"github.com/cortexhq/cortex/internal/agent/registry"
	"github.com/cortexhq/cortex/internal/bus"
	"github.com/cortexhq/cortex/internal/common/logger"
	"github.com/cortexhq/cortex/internal/delegation"
	"github.com/cortexhq/cortex/internal/message"
	"github.com/cortexhq/cortex/internal/persona"
	"github.com/cortexhq/cortex/internal/refcode"
	"github.com/cortexhq/cortex/internal/skill"
	"github.com/cortexhq/cortex/internal/workflow"
)

// Config carries the collaborators a skilled agent is built from.
type Config struct {
	Persona     *persona.Definition
	Runner      *skill.Runner
	Registry    registry.Registry
	Delegations delegation.Tracker
	RefCodes    *refcode.Generator
	Bus         bus.Bus
	Logger      *logger.Logger

	// Workflows may be nil; fan-out aggregation is then disabled and every
	// envelope reads as a new goal.
	Workflows workflow.Tracker
	// Pending may be nil; an in-memory store is used.
	Pending PendingPlanStore
}

// Agent is a persona-configured, pipeline-driven agent.
type Agent struct {
	persona     *persona.Definition
	runner      *skill.Runner
	registry    registry.Registry
	workflows   workflow.Tracker
	delegations delegation.Tracker
	pending     PendingPlanStore
	refcodes    *refcode.Generator
	bus         bus.Bus
	logger      *logger.Logger
	now         func() time.Time
}

var _ agent.Agent = (*Agent)(nil)

// New builds a skilled agent from its persona and collaborators.
func New(cfg Config) (*Agent, error) {
	switch {
	case cfg.Persona == nil:
		return nil, errors.New("skilled: persona is required")
	case cfg.Persona.EscalationTarget == "":
		return nil, errors.New("skilled: persona needs an escalation target")
	case cfg.Runner == nil:
		return nil, errors.New("skilled: skill runner is required")
	case cfg.Registry == nil:
		return nil, errors.New("skilled: agent registry is required")
	case cfg.Delegations == nil:
		return nil, errors.New("skilled: delegation tracker is required")
	case cfg.RefCodes == nil:
		return nil, errors.New("skilled: reference code generator is required")
	case cfg.Bus == nil:
		return nil, errors.New("skilled: bus is required")
	case cfg.Logger == nil:
		return nil, errors.New("skilled: logger is required")
	}

	workflows := cfg.Workflows
	if workflows == nil {
		workflows = workflow.NewNoopTracker()
	}
	pending := cfg.Pending
	if pending == nil {
		pending = NewMemoryPendingPlans()
	}

	return &Agent{
		persona:     cfg.Persona,
		runner:      cfg.Runner,
		registry:    cfg.Registry,
		workflows:   workflows,
		delegations: cfg.Delegations,
		pending:     pending,
		refcodes:    cfg.RefCodes,
		bus:         cfg.Bus,
		logger:      cfg.Logger.WithAgentID(cfg.Persona.AgentID),
		now:         time.Now,
	}, nil
}

// AgentID returns the persona's agent ID.
func (a *Agent) AgentID() string { return a.persona.AgentID }

// Name returns the persona's display name.
func (a *Agent) Name() string { return a.persona.Name }

// Capabilities returns the persona's capabilities.
func (a *Agent) Capabilities() []agent.Capability {
	out := make([]agent.Capability, 0, len(a.persona.Capabilities))
	for _, c := range a.persona.Capabilities {
		out = append(out, agent.Capability{
			Name:        c.Name,
			Description: c.Description,
			SkillIDs:    append([]string(nil), c.SkillIDs...),
		})
	}
	return out
}

// Process handles one envelope. Exactly one of three branches runs: a
// sub-task reply is folded into its workflow, a plan approval resumes or
// rejects a parked plan, and anything else is a new goal to decompose.
//
// The workflow lookup runs before the payload type check on purpose: a
// reply's payload is whatever the specialist returned, so the reference
// code is the only reliable correlator.
func (a *Agent) Process(ctx context.Context, env message.Envelope) (*message.Envelope, error) {
	wf, err := a.workflows.FindBySubtask(ctx, env.ReferenceCode)
	if err != nil {
		return nil, err
	}
	if wf != nil {
		return nil, a.handleSubtaskReply(ctx, *wf, env)
	}

	if approval, ok := env.Message.(*message.PlanApprovalResponse); ok {
		return nil, a.handlePlanApproval(ctx, approval)
	}

	return nil, a.handleNewGoal(ctx, env)
}

// handleSubtaskReply folds a child result into its workflow and, once the
// last result lands, publishes the aggregate to the original requester.
func (a *Agent) handleSubtaskReply(ctx context.Context, wf workflow.Record, env message.Envelope) error {
	log := a.logger.WithReferenceCode(env.ReferenceCode.String())

	if err := a.workflows.StoreResult(ctx, env.ReferenceCode, env); err != nil {
		return err
	}
	if err := a.delegations.UpdateStatus(ctx, env.ReferenceCode, delegation.StatusComplete); err != nil {
		log.Warn("no delegation found for completed subtask", zap.Error(err))
	}

	done, err := a.workflows.AllSubtasksComplete(ctx, wf.ReferenceCode)
	if err != nil {
		return err
	}
	if !done {
		log.Debug("workflow awaiting more results",
			zap.String("workflow", wf.ReferenceCode.String()))
		return nil
	}

	results, err := a.workflows.Results(ctx, wf.ReferenceCode)
	if err != nil {
		return err
	}

	replyTo := wf.OriginalEnvelope.Context.ReplyTo
	if replyTo == "" {
		log.Warn("workflow has no reply target, dropping aggregate",
			zap.String("workflow", wf.ReferenceCode.String()))
	} else {
		out := message.New(message.NewTextMessage(assembleResults(wf, results))).
			WithReferenceCode(wf.ReferenceCode).
			WithContext(message.Context{
				ParentMessageID: wf.OriginalEnvelope.Message.MessageID(),
				OriginalGoal:    wf.OriginalEnvelope.Context.OriginalGoal,
				FromAgentID:     a.persona.AgentID,
			})
		if err := a.bus.Publish(ctx, replyTo, out); err != nil {
			return err
		}
	}

	if err := a.workflows.MarkCompleted(ctx, wf.ReferenceCode); err != nil {
		return err
	}
	log.Info("workflow completed",
		zap.String("workflow", wf.ReferenceCode.String()),
		zap.Int("subtasks", len(wf.SubtaskReferenceCodes)))
	return nil
}

// assembleResults renders the workflow summary followed by one section per
// sub-task, in sub-task declaration order.
func assembleResults(wf workflow.Record, results []workflow.Result) string {
	var sb strings.Builder
	sb.WriteString(wf.Summary)
	for _, res := range results {
		sb.WriteString("\n\n## ")
		sb.WriteString(res.SubtaskReferenceCode.String())
		sb.WriteString("\n")
		sb.WriteString(message.PayloadText(res.Envelope.Message))
	}
	return sb.String()
}

// handlePlanApproval resumes or rejects a plan parked behind the approval
// gate.
func (a *Agent) handlePlanApproval(ctx context.Context, approval *message.PlanApprovalResponse) error {
	log := a.logger.WithReferenceCode(approval.WorkflowReferenceCode.String())

	plan, ok := a.pending.Take(approval.WorkflowReferenceCode)
	if !ok {
		log.Warn("approval response for unknown plan, dropping")
		return nil
	}

	if !approval.IsApproved {
		log.Info("plan rejected", zap.String("reason", approval.RejectionReason))
		replyTo := plan.OriginalEnvelope.Context.ReplyTo
		if replyTo == "" {
			log.Warn("rejected plan has no reply target")
			return nil
		}
		reason := approval.RejectionReason
		if reason == "" {
			reason = "no reason given"
		}
		out := message.New(message.NewTextMessage(fmt.Sprintf(
			"Plan %s was rejected: %s", approval.WorkflowReferenceCode, reason))).
			WithReferenceCode(approval.WorkflowReferenceCode).
			WithContext(message.Context{
				ParentMessageID: plan.OriginalEnvelope.Message.MessageID(),
				FromAgentID:     a.persona.AgentID,
			})
		return a.bus.Publish(ctx, replyTo, out)
	}

	log.Info("plan approved, dispatching")
	return a.dispatch(ctx, plan.OriginalEnvelope, plan.Decomposition)
}

// handleNewGoal runs the pipeline over a fresh goal and routes the result.
func (a *Agent) handleNewGoal(ctx context.Context, env message.Envelope) error {
	capabilities, err := a.availableCapabilities(ctx)
	if err != nil {
		a.logger.Warn("could not enumerate fleet capabilities", zap.Error(err))
	}

	run := a.runner.Run(ctx, a.persona.Pipeline, env, map[string]any{
		"messageContent":        message.PayloadText(env.Message),
		"availableCapabilities": capabilities,
	})

	decomp := extractDecomposition(run)
	if decomp == nil {
		return a.escalate(ctx, env, "No decomposition result")
	}
	if decomp.Confidence < a.persona.ConfidenceThreshold {
		return a.escalate(ctx, env, fmt.Sprintf("Low confidence (%.2f)", decomp.Confidence))
	}
	if len(decomp.Tasks) == 0 {
		return a.escalate(ctx, env, "Empty task list")
	}

	if env.MaxClaimTier() >= message.TierAskMeFirst {
		return a.proposePlan(ctx, env, *decomp)
	}
	return a.dispatch(ctx, env, *decomp)
}

// proposePlan parks the decomposition and asks the escalation target for
// approval. Nothing downstream is dispatched until the approval arrives.
func (a *Agent) proposePlan(ctx context.Context, env message.Envelope, decomp DecompositionResult) error {
	parent, err := a.refcodes.Generate(ctx)
	if err != nil {
		return err
	}

	a.pending.Put(PendingPlan{
		WorkflowReferenceCode: parent,
		OriginalEnvelope:      env,
		Decomposition:         decomp,
		StoredAt:              a.now().UTC(),
	})

	descriptions := make([]string, 0, len(decomp.Tasks))
	for _, task := range decomp.Tasks {
		descriptions = append(descriptions, task.Description)
	}
	proposal := message.NewPlanProposal(decomp.Summary, descriptions, message.PayloadText(env.Message), parent)
	out := message.New(proposal).
		WithReferenceCode(parent).
		WithContext(message.Context{
			ParentMessageID: env.Message.MessageID(),
			FromAgentID:     a.persona.AgentID,
			ReplyTo:         bus.AgentQueue(a.persona.AgentID),
		})

	if err := a.bus.Publish(ctx, a.persona.EscalationTarget, out); err != nil {
		return err
	}
	a.logger.WithReferenceCode(parent.String()).Info("plan awaiting approval",
		zap.String("target", a.persona.EscalationTarget),
		zap.Int("tasks", len(decomp.Tasks)))
	return nil
}

// dispatch routes an approved or ungated decomposition: one task goes
// straight to a capable agent, several fan out under a workflow.
func (a *Agent) dispatch(ctx context.Context, env message.Envelope, decomp DecompositionResult) error {
	if len(decomp.Tasks) == 1 {
		return a.routeSingle(ctx, env, decomp.Tasks[0])
	}
	return a.fanOut(ctx, env, decomp)
}

// routeSingle hands the only task of a decomposition to the first capable
// agent, preserving the requester's reply target.
func (a *Agent) routeSingle(ctx context.Context, env message.Envelope, task TaskSpec) error {
	target, err := a.firstCandidate(ctx, task.Capability)
	if err != nil {
		return err
	}
	if target == "" {
		return a.escalate(ctx, env, "Cannot decompose: no agent with capability "+task.Capability)
	}

	child, err := a.refcodes.Generate(ctx)
	if err != nil {
		return err
	}

	out, err := a.delegateTask(ctx, env, task, child, target, env.Context.ReplyTo, "")
	if err != nil {
		return err
	}
	if err := a.bus.Publish(ctx, bus.AgentQueue(target), out); err != nil {
		return err
	}

	a.logger.WithReferenceCode(child.String()).Info("task routed",
		zap.String("capability", task.Capability),
		zap.String("target", target))
	return nil
}

// fanOut dispatches a multi-task decomposition. Every capability is
// validated before anything is published: either the whole plan dispatches
// or none of it does.
func (a *Agent) fanOut(ctx context.Context, env message.Envelope, decomp DecompositionResult) error {
	targets := make([]string, len(decomp.Tasks))
	for i, task := range decomp.Tasks {
		target, err := a.firstCandidate(ctx, task.Capability)
		if err != nil {
			return err
		}
		if target == "" {
			return a.escalate(ctx, env, "Cannot decompose: no agent with capability "+task.Capability)
		}
		targets[i] = target
	}

	parent, err := a.refcodes.Generate(ctx)
	if err != nil {
		return err
	}

	// Children reply to this agent, not to the original requester; the
	// aggregate goes back out when the last child reports in.
	replyTo := bus.AgentQueue(a.persona.AgentID)
	children := make([]message.ReferenceCode, 0, len(decomp.Tasks))
	for i, task := range decomp.Tasks {
		child, err := a.refcodes.Generate(ctx)
		if err != nil {
			return err
		}
		out, err := a.delegateTask(ctx, env, task, child, targets[i], replyTo, decomp.Summary)
		if err != nil {
			return err
		}
		if err := a.bus.Publish(ctx, bus.AgentQueue(targets[i]), out); err != nil {
			return err
		}
		children = append(children, child)
	}

	if err := a.workflows.Create(ctx, workflow.Record{
		ReferenceCode:         parent,
		OriginalEnvelope:      env,
		SubtaskReferenceCodes: children,
		Summary:               decomp.Summary,
		Status:                workflow.StatusInProgress,
		CreatedAt:             a.now().UTC(),
	}); err != nil {
		return err
	}

	a.logger.WithReferenceCode(parent.String()).Info("workflow fanned out",
		zap.Int("subtasks", len(children)))
	return nil
}

// delegateTask records the delegation and builds the child envelope. The
// claim granted to the target never exceeds what the inbound envelope
// carried.
func (a *Agent) delegateTask(ctx context.Context, env message.Envelope, task TaskSpec,
	child message.ReferenceCode, target, replyTo, originalGoal string) (message.Envelope, error) {

	now := a.now().UTC()
	record := delegation.Record{
		ReferenceCode: child,
		DelegatedBy:   a.persona.AgentID,
		DelegatedTo:   target,
		Description:   task.Description,
		Status:        delegation.StatusAssigned,
		AssignedAt:    now,
	}
	if env.SLA != nil {
		due := *env.SLA
		record.DueAt = &due
	}
	if err := a.delegations.Create(ctx, record); err != nil {
		return message.Envelope{}, err
	}

	effectiveTier := message.MinTier(
		parseTierOr(task.AuthorityTier, message.TierJustDoIt),
		env.MaxClaimTier(),
	)

	childCtx := env.Context
	childCtx.ParentMessageID = env.Message.MessageID()
	childCtx.FromAgentID = a.persona.AgentID
	childCtx.ReplyTo = replyTo
	if originalGoal != "" {
		childCtx.OriginalGoal = originalGoal
	}

	out := message.New(message.NewTextMessage(task.Description)).
		WithReferenceCode(child).
		WithClaims(message.AuthorityClaim{
			GrantedBy: a.persona.AgentID,
			GrantedTo: target,
			Tier:      effectiveTier,
			GrantedAt: now,
		}).
		WithContext(childCtx).
		WithPriority(env.Priority)
	if env.SLA != nil {
		out = out.WithSLA(*env.SLA)
	}
	return out, nil
}

// escalate hands the original envelope to the escalation target under a new
// reference code. No authority claims are added.
func (a *Agent) escalate(ctx context.Context, env message.Envelope, reason string) error {
	ref, err := a.refcodes.Generate(ctx)
	if err != nil {
		return err
	}

	if err := a.delegations.Create(ctx, delegation.Record{
		ReferenceCode: ref,
		DelegatedBy:   a.persona.AgentID,
		DelegatedTo:   a.persona.EscalationTarget,
		Description:   "Escalated: " + reason,
		Status:        delegation.StatusAssigned,
		AssignedAt:    a.now().UTC(),
	}); err != nil {
		return err
	}

	escCtx := env.Context
	escCtx.ParentMessageID = env.Message.MessageID()
	escCtx.FromAgentID = a.persona.AgentID

	out := env.WithReferenceCode(ref).WithContext(escCtx)
	if err := a.bus.Publish(ctx, a.persona.EscalationTarget, out); err != nil {
		return err
	}

	a.logger.WithReferenceCode(ref.String()).Warn("goal escalated",
		zap.String("reason", reason),
		zap.String("target", a.persona.EscalationTarget))
	return nil
}

// firstCandidate returns the first available non-self agent offering the
// capability, or empty when none does. Candidates come back ordered by
// agent ID, so the pick is stable.
func (a *Agent) firstCandidate(ctx context.Context, capability string) (string, error) {
	regs, err := a.registry.FindByCapability(ctx, capability)
	if err != nil {
		return "", err
	}
	for _, reg := range regs {
		if reg.AgentID != a.persona.AgentID {
			return reg.AgentID, nil
		}
	}
	return "", nil
}

// availableCapabilities enumerates the distinct capability names offered by
// available agents across the whole fleet, for the planning prompt.
func (a *Agent) availableCapabilities(ctx context.Context) ([]string, error) {
	regs, err := a.registry.All(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	for _, reg := range regs {
		if !reg.IsAvailable {
			continue
		}
		for _, c := range reg.Capabilities {
			key := strings.ToLower(c.Name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			names = append(names, c.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}
