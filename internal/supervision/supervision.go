// Package supervision watches delegated work for missed deadlines. A periodic
// scan alerts the delegating side while a record is within its retry budget
// and escalates once the budget is exhausted.
package supervision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cortexhq/cortex/internal/bus"
	"github.com/cortexhq/cortex/internal/common/logger"
	"github.com/cortexhq/cortex/internal/delegation"
	"github.com/cortexhq/cortex/internal/message"
)

// Common errors
var (
	ErrAlreadyRunning = errors.New("supervision service is already running")
	ErrNotRunning     = errors.New("supervision service is not running")
)

// Config holds supervision service configuration.
type Config struct {
	CheckInterval    time.Duration // How often to scan for overdue delegations
	MaxRetries       int           // Alerts sent before a record escalates
	AlertTarget      string        // Queue receiving SupervisionAlert messages
	EscalationTarget string        // Queue receiving EscalationAlert messages
}

// DefaultConfig returns the default supervision configuration.
func DefaultConfig() Config {
	return Config{
		CheckInterval:    60 * time.Second,
		MaxRetries:       3,
		AlertTarget:      "agent.cos",
		EscalationTarget: "agent.founder",
	}
}

// RuntimeReporter answers whether an agent is currently hosted. The alert
// consumer uses it to tell a slow agent from a dead one.
type RuntimeReporter interface {
	IsAgentRunning(agentID string) bool
}

// Stats is a snapshot of the service counters.
type Stats struct {
	Ticks       int64
	Alerts      int64
	Escalations int64
}

// Service scans the delegation tracker on an interval and publishes alerts
// for overdue records.
type Service struct {
	delegations delegation.Tracker
	retries     *delegation.RetryCounter
	bus         bus.Bus
	runtime     RuntimeReporter // optional
	logger      *logger.Logger
	config      Config

	// Statistics
	totalTicks       int64
	totalAlerts      int64
	totalEscalations int64

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewService creates a supervision service. The runtime reporter may be nil;
// alerts then report the assignee as running.
func NewService(
	delegations delegation.Tracker,
	retries *delegation.RetryCounter,
	b bus.Bus,
	runtime RuntimeReporter,
	log *logger.Logger,
	config Config,
) *Service {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultConfig().CheckInterval
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultConfig().MaxRetries
	}
	return &Service{
		delegations: delegations,
		retries:     retries,
		bus:         b,
		runtime:     runtime,
		logger:      log.WithFields(zap.String("component", "supervision")),
		config:      config,
	}
}

// Start begins the periodic overdue scan.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("supervision starting",
		zap.Duration("check_interval", s.config.CheckInterval),
		zap.Int("max_retries", s.config.MaxRetries))

	s.wg.Add(1)
	go s.scanLoop(ctx)

	return nil
}

// Stop halts the scan loop and waits for an in-flight tick to finish.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("supervision stopped")
	return nil
}

// IsRunning returns true if the scan loop is active.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats returns a snapshot of the service counters.
func (s *Service) Stats() Stats {
	return Stats{
		Ticks:       atomic.LoadInt64(&s.totalTicks),
		Alerts:      atomic.LoadInt64(&s.totalAlerts),
		Escalations: atomic.LoadInt64(&s.totalEscalations),
	}
}

func (s *Service) scanLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("supervision stopping due to context cancellation")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.CheckOverdue(ctx)
		}
	}
}

// CheckOverdue runs one supervision pass: every overdue delegation gets an
// alert while within the retry budget and an escalation once past it. A
// panic in one pass is logged and never kills the loop.
func (s *Service) CheckOverdue(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("supervision tick panicked", zap.Any("panic", r))
		}
	}()
	atomic.AddInt64(&s.totalTicks, 1)

	overdue, err := s.delegations.GetOverdue(ctx)
	if err != nil {
		s.logger.Error("failed to fetch overdue delegations", zap.Error(err))
		return
	}

	for _, record := range overdue {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		if err := s.handleOverdue(ctx, record); err != nil {
			s.logger.Error("failed to handle overdue delegation",
				zap.String("reference_code", record.ReferenceCode.String()),
				zap.Error(err))
		}
	}
}

func (s *Service) handleOverdue(ctx context.Context, record delegation.Record) error {
	count := s.retries.Increment(record.ReferenceCode)
	log := s.logger.WithReferenceCode(record.ReferenceCode.String())

	if count > s.config.MaxRetries {
		reason := fmt.Sprintf("Max retries exceeded (%d)", s.config.MaxRetries)
		alert := message.NewEscalationAlert(
			record.ReferenceCode, record.DelegatedTo, record.Description, reason, count)
		env := message.New(alert).WithReferenceCode(record.ReferenceCode)
		if err := s.bus.Publish(ctx, s.config.EscalationTarget, env); err != nil {
			return err
		}
		atomic.AddInt64(&s.totalEscalations, 1)
		log.Warn("delegation escalated",
			zap.String("delegated_to", record.DelegatedTo),
			zap.Int("retry_count", count))
		return nil
	}

	running := true
	if s.runtime != nil {
		running = s.runtime.IsAgentRunning(record.DelegatedTo)
	}
	alert := message.NewSupervisionAlert(
		record.ReferenceCode, record.DelegatedTo, record.Description, count, record.DueAt, running)
	env := message.New(alert).WithReferenceCode(record.ReferenceCode)
	if err := s.bus.Publish(ctx, s.config.AlertTarget, env); err != nil {
		return err
	}
	atomic.AddInt64(&s.totalAlerts, 1)
	log.Info("overdue delegation alerted",
		zap.String("delegated_to", record.DelegatedTo),
		zap.Int("retry_count", count),
		zap.Bool("agent_running", running))
	return nil
}
