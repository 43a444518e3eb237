// Package main implements a standalone specialist agent binary. It joins the
// configured broker, registers one capability, and acknowledges every task it
// receives. Useful for exercising routing, delegation, and supervision
// against a live node without a real specialist implementation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/cortexhq/cortex/internal/agent"
	"github.com/cortexhq/cortex/internal/agent/registry"
	"github.com/cortexhq/cortex/internal/agent/runtime"
	"github.com/cortexhq/cortex/internal/bus"
	"github.com/cortexhq/cortex/internal/common/config"
	"github.com/cortexhq/cortex/internal/common/logger"
	"github.com/cortexhq/cortex/internal/message"
	"github.com/cortexhq/cortex/internal/storage"
)

func main() {
	agentID := flag.String("id", "demo-agent", "agent identity and inbox queue suffix")
	name := flag.String("name", "", "display name (defaults to the id)")
	capabilities := flag.String("capabilities", "general", "comma-separated capability names")
	reply := flag.String("reply", "Done: %s", "reply template; %s is replaced with the task text")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

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

	if cfg.NATS.URL == "" {
		log.Fatal("A broker is required: set CORTEX_NATS_URL so the agent can reach the node")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provided, busCleanup, err := bus.Provide(cfg, log)
	if err != nil {
		log.Fatal("Failed to connect to bus", zap.Error(err))
	}
	defer busCleanup()

	// Register in the shared store so coordinators on other processes can
	// route to this agent. A memory registry is process-local; capability
	// lookups from the node will not see it.
	pool, storageCleanup, err := storage.Provide(cfg.Storage, cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storageCleanup()

	var agentRegistry registry.Registry
	if pool != nil {
		agentRegistry, err = registry.NewSQLRegistry(pool.Writer(), pool.Reader())
		if err != nil {
			log.Fatal("Failed to initialize agent registry", zap.Error(err))
		}
	} else {
		log.Warn("Using a process-local registry; remote coordinators cannot discover this agent")
		agentRegistry = registry.NewMemoryRegistry()
	}

	caps := parseCapabilities(*capabilities)
	specialist := agent.NewFunc(*agentID, *name, caps,
		func(_ context.Context, env message.Envelope) (*message.Envelope, error) {
			task := message.PayloadText(env.Message)
			log.Info("task received",
				zap.String("reference_code", env.ReferenceCode.String()),
				zap.String("from", env.Context.FromAgentID),
				zap.String("task", task))
			out := message.New(message.NewTextMessage(fmt.Sprintf(*reply, task)))
			return &out, nil
		})

	rt, err := runtime.New(runtime.Config{
		Bus:      provided.Bus,
		Registry: agentRegistry,
		Types:    agent.TypeProviderFunc(func(string) string { return agent.TypeAI }),
		Logger:   log,
		Agents:   []agent.Agent{specialist},
	})
	if err != nil {
		log.Fatal("Failed to build runtime", zap.Error(err))
	}

	if err := rt.Start(ctx); err != nil {
		log.Fatal("Failed to start agent", zap.Error(err))
	}
	log.Info("Agent online",
		zap.String("agent_id", *agentID),
		zap.String("queue", bus.AgentQueue(*agentID)),
		zap.String("capabilities", *capabilities))

	<-ctx.Done()

	if err := rt.Stop(context.Background()); err != nil {
		log.Error("Stop error", zap.Error(err))
	}
	log.Info("Agent stopped")
}

func parseCapabilities(list string) []agent.Capability {
	var caps []agent.Capability
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		caps = append(caps, agent.Capability{Name: name})
	}
	return caps
}
