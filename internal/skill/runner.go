package skill

import (
	"context"
	"maps"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cortexhq/cortex/internal/common/logger"
	"github.com/cortexhq/cortex/internal/common/tracing"
	"github.com/cortexhq/cortex/internal/message"
)

// SkillResult pairs a skill ID with the output its executor produced.
type SkillResult struct {
	SkillID string
	Output  any
}

// RunContext carries one pipeline run: the envelope that triggered it, the
// caller-supplied parameters, and the outputs collected so far in execution
// order.
type RunContext struct {
	Envelope   message.Envelope
	Parameters map[string]any

	mu      sync.RWMutex
	order   []string
	results map[string]any
}

func newRunContext(env message.Envelope, params map[string]any) *RunContext {
	merged := make(map[string]any, len(params))
	maps.Copy(merged, params)
	return &RunContext{
		Envelope:   env,
		Parameters: merged,
		results:    make(map[string]any),
	}
}

func (rc *RunContext) storeResult(skillID string, output any) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, exists := rc.results[skillID]; !exists {
		rc.order = append(rc.order, skillID)
	}
	rc.results[skillID] = output
}

// Result returns the output stored for a skill ID.
func (rc *RunContext) Result(skillID string) (any, bool) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out, ok := rc.results[skillID]
	return out, ok
}

// ResultsInOrder returns every stored output in execution order.
func (rc *RunContext) ResultsInOrder() []SkillResult {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	out := make([]SkillResult, 0, len(rc.order))
	for _, id := range rc.order {
		out = append(out, SkillResult{SkillID: id, Output: rc.results[id]})
	}
	return out
}

// executionParams builds the parameter map handed to an executor: the
// caller's parameters plus the triggering envelope and the results collected
// so far. The reserved keys win on collision.
func (rc *RunContext) executionParams() map[string]any {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	params := make(map[string]any, len(rc.Parameters)+2)
	maps.Copy(params, rc.Parameters)

	resultsSoFar := make(map[string]any, len(rc.results))
	maps.Copy(resultsSoFar, rc.results)

	params["envelope"] = rc.Envelope
	params["results"] = resultsSoFar
	return params
}

// Runner executes skill pipelines. A pipeline is a list of skill IDs run
// strictly in order; a broken step (unknown skill, missing executor,
// execution error) is logged and skipped so later steps still run. The
// runner itself never fails a run.
type Runner struct {
	registry *Registry
	logger   *logger.Logger
	tracer   trace.Tracer

	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRunner creates a runner over the given skill registry.
func NewRunner(registry *Registry, log *logger.Logger) *Runner {
	return &Runner{
		registry:  registry,
		logger:    log.WithFields(zap.String("component", "skill-runner")),
		tracer:    tracing.Tracer("cortex.skill"),
		executors: make(map[string]Executor),
	}
}

// RegisterExecutor makes an executor available, keyed by its Type. A later
// registration for the same type replaces the earlier one.
func (r *Runner) RegisterExecutor(exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[exec.Type()] = exec
}

func (r *Runner) executor(executorType string) (Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exec, ok := r.executors[executorType]
	return exec, ok
}

// Run executes the pipeline against the envelope and returns the collected
// outputs.
func (r *Runner) Run(ctx context.Context, skillIDs []string, env message.Envelope, additional map[string]any) *RunContext {
	run := newRunContext(env, additional)

	for _, skillID := range skillIDs {
		def, err := r.registry.Get(skillID)
		if err != nil {
			r.logger.Warn("skipping unknown skill", zap.String("skill_id", skillID))
			continue
		}
		exec, ok := r.executor(def.ExecutorType)
		if !ok {
			r.logger.Warn("no executor for skill",
				zap.String("skill_id", skillID),
				zap.String("executor_type", def.ExecutorType))
			continue
		}

		stepCtx, span := r.tracer.Start(ctx, "skill.execute", trace.WithAttributes(
			attribute.String("skill_id", skillID),
			attribute.String("executor_type", def.ExecutorType),
		))
		output, err := exec.Execute(stepCtx, def, run.executionParams())
		span.End()
		if err != nil {
			r.logger.Warn("skill execution failed",
				zap.String("skill_id", skillID),
				zap.Error(err))
			continue
		}
		run.storeResult(skillID, output)
	}
	return run
}
