// Package main is the entry point for the Cortex runtime node. A single
// binary hosts the bus (or connects to a broker), the configured skill-driven
// agents, and the delegation supervision loop.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cortexhq/cortex/internal/agent"
	"github.com/cortexhq/cortex/internal/agent/registry"
	"github.com/cortexhq/cortex/internal/agent/runtime"
	"github.com/cortexhq/cortex/internal/agent/skilled"
	"github.com/cortexhq/cortex/internal/authority"
	"github.com/cortexhq/cortex/internal/bus"
	"github.com/cortexhq/cortex/internal/common/config"
	"github.com/cortexhq/cortex/internal/common/logger"
	"github.com/cortexhq/cortex/internal/common/tracing"
	"github.com/cortexhq/cortex/internal/delegation"
	"github.com/cortexhq/cortex/internal/llm"
	"github.com/cortexhq/cortex/internal/persona"
	"github.com/cortexhq/cortex/internal/refcode"
	"github.com/cortexhq/cortex/internal/skill"
	"github.com/cortexhq/cortex/internal/storage"
	"github.com/cortexhq/cortex/internal/supervision"
	"github.com/cortexhq/cortex/internal/workflow"
)

// decompositionPrompt is the default content for pipeline skills that have no
// definition of their own. It asks the model for the structured shape the
// decomposition extractor understands.
const decompositionPrompt = `You are a chief-of-staff agent that breaks a goal into delegable tasks.
Respond with a single JSON object and nothing else:
{"tasks": [{"capability": "<capability name>", "description": "<what to do>", "authorityTier": "JustDoIt|DoItAndShowMe|AskMeFirst"}], "summary": "<one-line plan summary>", "confidence": <0.0-1.0>}
Only use capabilities from the available list. If the goal cannot be decomposed, return {"tasks": [], "summary": "cannot decompose", "confidence": 0.0}.`

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	log.Info("Starting Cortex...")

	// 3. Create context cancelled by SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 4. Initialize the message bus (NATS if configured, in-memory otherwise)
	provided, busCleanup, err := bus.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize bus", zap.Error(err))
	}
	defer busCleanup()
	messageBus := provided.Bus
	if provided.NATS != nil {
		log.Info("Connected to NATS bus", zap.String("url", cfg.NATS.URL))
	} else {
		log.Info("Using in-memory bus")
	}

	// 5. Open storage and pick the registry / sequence store implementations
	pool, storageCleanup, err := storage.Provide(cfg.Storage, cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storageCleanup()

	var agentRegistry registry.Registry
	var seqStore refcode.SequenceStore
	if pool != nil {
		sqlRegistry, err := registry.NewSQLRegistry(pool.Writer(), pool.Reader())
		if err != nil {
			log.Fatal("Failed to initialize agent registry", zap.Error(err))
		}
		sqlSeq, err := refcode.NewSQLStore(pool.Writer())
		if err != nil {
			log.Fatal("Failed to initialize reference sequence store", zap.Error(err))
		}
		agentRegistry = sqlRegistry
		seqStore = sqlSeq
	} else {
		agentRegistry = registry.NewMemoryRegistry()
		seqStore = refcode.NewMemoryStore()
	}
	refCodes := refcode.NewGenerator(seqStore)

	// 6. Shared trackers and the authority provider
	delegations := delegation.NewMemoryTracker()
	workflows := workflow.NewMemoryTracker()
	retries := delegation.NewRetryCounter()
	authorityProvider := authority.NewProvider(log)

	// 7. Skill registry with the LLM executor
	skills := skill.NewRegistry()
	runner := skill.NewRunner(skills, log)

	llmClient, err := buildLLMClient(cfg.LLM, log)
	if err != nil {
		log.Fatal("Failed to initialize LLM client", zap.Error(err))
	}
	runner.RegisterExecutor(llm.NewExecutor(llmClient, log))

	// 8. Load personas and build the skilled agents
	var agents []agent.Agent
	agentTypes := map[string]string{}
	if cfg.Personas.Dir != "" {
		personas, err := persona.LoadDir(cfg.Personas.Dir)
		if err != nil {
			log.Fatal("Failed to load personas", zap.Error(err), zap.String("dir", cfg.Personas.Dir))
		}
		for _, def := range personas {
			registerPipelineSkills(skills, def, log)
			skilledAgent, err := skilled.New(skilled.Config{
				Persona:     def,
				Runner:      runner,
				Registry:    agentRegistry,
				Workflows:   workflows,
				Delegations: delegations,
				RefCodes:    refCodes,
				Bus:         messageBus,
				Logger:      log,
			})
			if err != nil {
				log.Fatal("Failed to build agent", zap.Error(err), zap.String("agent_id", def.AgentID))
			}
			agents = append(agents, skilledAgent)
			agentTypes[def.AgentID] = def.AgentType
		}
		log.Info("Personas loaded", zap.Int("count", len(personas)), zap.String("dir", cfg.Personas.Dir))
	} else {
		log.Info("No persona directory configured, hosting no agents")
	}

	// 9. Runtime hosting the agents
	rt, err := runtime.New(runtime.Config{
		Bus:       messageBus,
		Registry:  agentRegistry,
		Authority: authorityProvider,
		Types: agent.TypeProviderFunc(func(agentID string) string {
			if t, ok := agentTypes[agentID]; ok {
				return t
			}
			return agent.TypeUnknown
		}),
		Logger: log,
		Agents: agents,
	})
	if err != nil {
		log.Fatal("Failed to build runtime", zap.Error(err))
	}

	// 10. Delegation supervision
	supervisor := supervision.NewService(delegations, retries, messageBus, rt, log, supervision.Config{
		CheckInterval:    cfg.Supervision.CheckIntervalDuration(),
		MaxRetries:       cfg.Supervision.MaxRetries,
		AlertTarget:      cfg.Supervision.AlertTarget,
		EscalationTarget: cfg.Supervision.EscalationTarget,
	})

	// 11. Run both services until a signal or the first failure
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := rt.Start(gctx); err != nil {
			return fmt.Errorf("runtime start: %w", err)
		}
		log.Info("Runtime started", zap.Int("agents", len(agents)))
		<-gctx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := rt.Stop(stopCtx); err != nil {
			return fmt.Errorf("runtime stop: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := supervisor.Start(gctx); err != nil {
			return fmt.Errorf("supervision start: %w", err)
		}
		<-gctx.Done()
		if err := supervisor.Stop(); err != nil {
			return fmt.Errorf("supervision stop: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("Service error", zap.Error(err))
	}

	stats := supervisor.Stats()
	log.Info("Supervision totals",
		zap.Int64("ticks", stats.Ticks),
		zap.Int64("alerts", stats.Alerts),
		zap.Int64("escalations", stats.Escalations))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Error("Tracing shutdown error", zap.Error(err))
	}

	log.Info("Cortex stopped")
}

// buildLLMClient picks the configured LLM provider.
func buildLLMClient(cfg config.LLMConfig, log *logger.Logger) (llm.Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return llm.NewAnthropicFromAPIKey(cfg.APIKey, cfg.Model, int64(cfg.MaxTokens))
	default:
		command := append([]string{cfg.Command}, cfg.Args...)
		return llm.NewCLIClient(command, cfg.TimeoutDuration(), log)
	}
}

// registerPipelineSkills makes sure every skill named in a persona's pipeline
// has a definition. Unknown skills default to LLM-executed decomposition.
func registerPipelineSkills(skills *skill.Registry, def *persona.Definition, log *logger.Logger) {
	for _, skillID := range def.Pipeline {
		if _, err := skills.Get(skillID); err == nil {
			continue
		}
		if err := skills.Register(skill.Definition{
			ID:           skillID,
			Name:         skillID,
			Description:  "Goal decomposition",
			Category:     "planning",
			ExecutorType: llm.ExecutorType,
			Content:      decompositionPrompt,
		}); err != nil {
			log.Warn("Failed to register pipeline skill",
				zap.String("skill_id", skillID),
				zap.String("agent_id", def.AgentID),
				zap.Error(err))
		}
	}
}
