package bus

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cortexhq/cortex/internal/common/logger"
	"github.com/cortexhq/cortex/internal/common/tracing"
	"github.com/cortexhq/cortex/internal/message"
)

// MemoryBus delivers envelopes in process memory. Every consumer owns an
// unbounded FIFO mailbox; Publish appends to the mailbox of each consumer
// bound to the queue, so with several consumers on one queue each of them
// sees every message. One goroutine per consumer drains the mailbox, which
// keeps handler concurrency at one per handle and makes delivery order equal
// publish order for a single consumer.
//
// Handler errors are logged and the loop continues: the in-memory bus acks
// implicitly and has no dead-letter. Deployments that need redelivery
// semantics use the NATS bus.
type MemoryBus struct {
	logger *logger.Logger
	tracer trace.Tracer

	mu        sync.RWMutex
	consumers map[string][]*memoryConsumer
	closed    bool
}

// Ensure MemoryBus implements Bus interface
var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates an empty in-memory bus.
func NewMemoryBus(log *logger.Logger) *MemoryBus {
	if log == nil {
		log = logger.Default()
	}
	return &MemoryBus{
		logger:    log,
		tracer:    tracing.Tracer("cortex.bus"),
		consumers: make(map[string][]*memoryConsumer),
	}
}

// Publish appends the envelope to the mailbox of every consumer bound to the
// queue. Publishing to a queue nobody consumes is not an error; the envelope
// is dropped with a debug log.
func (b *MemoryBus) Publish(ctx context.Context, queueName string, env message.Envelope) error {
	if env.Message == nil {
		return ErrNoMessage
	}

	_, span := b.tracer.Start(ctx, "bus.publish", trace.WithAttributes(
		attribute.String("queue", queueName),
	))
	defer span.End()

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	targets := append([]*memoryConsumer(nil), b.consumers[queueName]...)
	b.mu.RUnlock()

	for _, c := range targets {
		c.deliver(env)
	}

	b.logger.Debug("Published envelope",
		zap.String("queue", queueName),
		zap.String("message_id", env.Message.MessageID()),
		zap.String("reference_code", env.ReferenceCode.String()),
		zap.Int("consumers", len(targets)))
	return nil
}

// StartConsuming binds a handler to the queue and starts its reader loop.
func (b *MemoryBus) StartConsuming(queueName string, handler Handler) (ConsumerHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &memoryConsumer{
		bus:       b,
		queueName: queueName,
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	c.cond = sync.NewCond(&c.mu)
	b.consumers[queueName] = append(b.consumers[queueName], c)

	go c.run()

	b.logger.Info("Consumer started", zap.String("queue", queueName))
	return c, nil
}

// StopAll stops every consumer started through this bus.
func (b *MemoryBus) StopAll() {
	b.mu.RLock()
	var all []*memoryConsumer
	for _, consumers := range b.consumers {
		all = append(all, consumers...)
	}
	b.mu.RUnlock()

	for _, c := range all {
		_ = c.Stop()
	}
}

// Topology returns one binding per live consumer, ordered by queue name.
func (b *MemoryBus) Topology() []QueueBinding {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []QueueBinding
	for queueName, consumers := range b.consumers {
		for range consumers {
			out = append(out, bindingFor(queueName))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueueName < out[j].QueueName })
	return out
}

// IsConnected reports whether the bus accepts publishes.
func (b *MemoryBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// Close stops every consumer and rejects further publishes.
func (b *MemoryBus) Close() {
	b.StopAll()

	b.mu.Lock()
	b.closed = true
	b.consumers = make(map[string][]*memoryConsumer)
	b.mu.Unlock()

	b.logger.Info("Memory bus closed")
}

// removeConsumer unlinks a stopped consumer from the queue's consumer list.
func (b *MemoryBus) removeConsumer(c *memoryConsumer) {
	b.mu.Lock()
	defer b.mu.Unlock()

	consumers := b.consumers[c.queueName]
	for i, candidate := range consumers {
		if candidate == c {
			b.consumers[c.queueName] = append(consumers[:i], consumers[i+1:]...)
			break
		}
	}
	if len(b.consumers[c.queueName]) == 0 {
		delete(b.consumers, c.queueName)
	}
}

// memoryConsumer is one mailbox plus the goroutine draining it.
type memoryConsumer struct {
	bus       *MemoryBus
	queueName string
	handler   Handler

	mu      sync.Mutex
	cond    *sync.Cond
	backlog []message.Envelope

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopping atomic.Bool
}

// deliver appends the envelope to the mailbox and wakes the reader.
func (c *memoryConsumer) deliver(env message.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping.Load() {
		return
	}
	c.backlog = append(c.backlog, env)
	c.cond.Signal()
}

// run drains the mailbox until the consumer stops. Handler errors are logged
// and the loop continues.
func (c *memoryConsumer) run() {
	defer close(c.done)

	for {
		c.mu.Lock()
		for len(c.backlog) == 0 && !c.stopping.Load() {
			c.cond.Wait()
		}
		if c.stopping.Load() {
			c.mu.Unlock()
			return
		}
		env := c.backlog[0]
		c.backlog = c.backlog[1:]
		c.mu.Unlock()

		c.dispatch(env)
	}
}

func (c *memoryConsumer) dispatch(env message.Envelope) {
	ctx, span := c.bus.tracer.Start(c.ctx, "bus.dispatch", trace.WithAttributes(
		attribute.String("queue", c.queueName),
	))
	defer span.End()

	if err := c.handler(ctx, env); err != nil {
		c.bus.logger.Error("Message handler failed",
			zap.String("queue", c.queueName),
			zap.String("message_id", env.Message.MessageID()),
			zap.Error(err))
	}
}

// Stop cancels the consumer, wakes the reader, and waits for it to exit.
// The in-flight handler invocation, if any, completes first.
func (c *memoryConsumer) Stop() error {
	if !c.stopping.CompareAndSwap(false, true) {
		return nil
	}

	c.cancel()
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
	<-c.done

	c.bus.removeConsumer(c)
	c.bus.logger.Info("Consumer stopped", zap.String("queue", c.queueName))
	return nil
}

// IsActive reports whether the consumer still receives deliveries.
func (c *memoryConsumer) IsActive() bool {
	return !c.stopping.Load()
}
