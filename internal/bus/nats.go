package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/cortexhq/cortex/internal/common/config"
	"github.com/cortexhq/cortex/internal/common/logger"
	"github.com/cortexhq/cortex/internal/common/tracing"
	"github.com/cortexhq/cortex/internal/message"
)

// Transport headers on broker messages.
const (
	// HeaderMessageType carries the registered payload type name so the
	// consumer can decode the body into the concrete type.
	HeaderMessageType = "cortex-message-type"
	// HeaderContentType is always application/json.
	HeaderContentType = "content-type"
	// HeaderFailure is set on dead-lettered messages and describes why the
	// delivery failed.
	HeaderFailure = "cortex-failure"

	contentTypeJSON = "application/json"
)

// NATSBus routes envelopes through a NATS broker. Messages travel on
// cortex.messages.queue.<queueName> with the payload type in the
// cortex-message-type header; consumers on the same queue name join one
// queue group, so the broker load-balances deliveries between them.
//
// Failed deliveries (unknown payload type, decode failure, handler error)
// are forwarded to cortex.deadletter with a cortex-failure header. The bus
// never retries; retry policy belongs to the supervision layer. Reconnects
// are delegated to the NATS client.
type NATSBus struct {
	conn   *nats.Conn
	logger *logger.Logger
	config config.NATSConfig
	tracer trace.Tracer

	mu        sync.Mutex
	consumers []*natsConsumer
}

// Ensure NATSBus implements Bus interface
var _ Bus = (*NATSBus)(nil)

// NewNATSBus connects to the broker with reconnection handling.
func NewNATSBus(cfg config.NATSConfig, log *logger.Logger) (*NATSBus, error) {
	if log == nil {
		log = logger.Default()
	}

	opts := []nats.Option{
		nats.Name(cfg.ClientName),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWaitDuration()),
		nats.ReconnectBufSize(5 * 1024 * 1024), // 5MB buffer during reconnect

		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			} else {
				log.Info("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if err := nc.LastError(); err != nil {
				log.Error("NATS connection closed", zap.Error(err))
			} else {
				log.Info("NATS connection closed")
			}
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			fields := []zap.Field{zap.Error(err)}
			if sub != nil {
				fields = append(fields, zap.String("subject", sub.Subject))
			}
			log.Error("NATS error", fields...)
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	log.Info("Connected to NATS", zap.String("url", cfg.URL))

	return &NATSBus{
		conn:   conn,
		logger: log,
		config: cfg,
		tracer: tracing.Tracer("cortex.bus"),
	}, nil
}

// Publish encodes the envelope and sends it on the queue's subject. Publish
// failures surface to the caller.
func (b *NATSBus) Publish(ctx context.Context, queueName string, env message.Envelope) error {
	body, typeName, err := message.EncodeEnvelope(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	_, span := b.tracer.Start(ctx, "bus.publish", trace.WithAttributes(
		attribute.String("queue", queueName),
		attribute.String("message_type", typeName),
	))
	defer span.End()

	msg := nats.NewMsg(Subject(queueName))
	msg.Data = body
	msg.Header.Set(HeaderMessageType, typeName)
	msg.Header.Set(HeaderContentType, contentTypeJSON)

	if err := b.conn.PublishMsg(msg); err != nil {
		b.logger.Error("Failed to publish envelope",
			zap.String("queue", queueName),
			zap.String("message_type", typeName),
			zap.Error(err))
		return fmt.Errorf("failed to publish to %s: %w", queueName, err)
	}

	b.logger.Debug("Published envelope",
		zap.String("queue", queueName),
		zap.String("message_id", env.Message.MessageID()),
		zap.String("message_type", typeName))
	return nil
}

// StartConsuming joins the queue's group on the broker. Consumers with the
// same queue name load-balance; stopping the handle unsubscribes only this
// consumer.
func (b *NATSBus) StartConsuming(queueName string, handler Handler) (ConsumerHandle, error) {
	sub, err := b.conn.QueueSubscribe(Subject(queueName), queueName, b.msgHandler(queueName, handler))
	if err != nil {
		return nil, fmt.Errorf("failed to consume %s: %w", queueName, err)
	}

	c := &natsConsumer{bus: b, queueName: queueName, sub: sub}
	b.mu.Lock()
	b.consumers = append(b.consumers, c)
	b.mu.Unlock()

	b.logger.Info("Consumer started",
		zap.String("queue", queueName),
		zap.String("subject", Subject(queueName)))
	return c, nil
}

// msgHandler adapts a Handler to the raw NATS delivery: decode by the type
// header, invoke, dead-letter on failure.
func (b *NATSBus) msgHandler(queueName string, handler Handler) nats.MsgHandler {
	return func(msg *nats.Msg) {
		typeName := msg.Header.Get(HeaderMessageType)
		env, err := message.DecodeEnvelope(msg.Data, typeName)
		if err != nil {
			if errors.Is(err, message.ErrUnknownMessageType) {
				b.logger.Warn("Unknown message type, dead-lettering",
					zap.String("queue", queueName),
					zap.String("message_type", typeName))
			} else {
				b.logger.Error("Failed to decode envelope, dead-lettering",
					zap.String("queue", queueName),
					zap.Error(err))
			}
			b.deadLetter(msg, err.Error())
			return
		}

		ctx, span := b.tracer.Start(context.Background(), "bus.dispatch", trace.WithAttributes(
			attribute.String("queue", queueName),
			attribute.String("message_type", typeName),
		))
		err = handler(ctx, env)
		span.End()

		if err != nil {
			b.logger.Error("Message handler failed, dead-lettering",
				zap.String("queue", queueName),
				zap.String("message_id", env.Message.MessageID()),
				zap.Error(err))
			b.deadLetter(msg, err.Error())
		}
	}
}

// deadLetter forwards the raw delivery to the dead-letter subject with the
// failure reason attached. Dead-letter publish failures only log: the
// original delivery is already lost to this consumer either way.
func (b *NATSBus) deadLetter(msg *nats.Msg, reason string) {
	dl := nats.NewMsg(DeadLetterSubject)
	dl.Data = msg.Data
	for key, values := range msg.Header {
		for _, v := range values {
			dl.Header.Add(key, v)
		}
	}
	dl.Header.Set(HeaderFailure, reason)

	if err := b.conn.PublishMsg(dl); err != nil {
		b.logger.Error("Failed to publish to dead-letter",
			zap.String("subject", msg.Subject),
			zap.Error(err))
	}
}

// StopAll stops every consumer started through this bus.
func (b *NATSBus) StopAll() {
	b.mu.Lock()
	consumers := append([]*natsConsumer(nil), b.consumers...)
	b.mu.Unlock()

	for _, c := range consumers {
		_ = c.Stop()
	}
}

// Topology returns one binding per live consumer, ordered by queue name.
func (b *NATSBus) Topology() []QueueBinding {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]QueueBinding, 0, len(b.consumers))
	for _, c := range b.consumers {
		out = append(out, bindingFor(c.queueName))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QueueName < out[j].QueueName })
	return out
}

// IsConnected reports whether the broker connection is up.
func (b *NATSBus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Close stops all consumers and drains the connection so in-flight messages
// finish processing.
func (b *NATSBus) Close() {
	b.StopAll()

	if b.conn != nil {
		if err := b.conn.Drain(); err != nil {
			b.logger.Warn("Error draining NATS connection", zap.Error(err))
			b.conn.Close()
		}
		b.logger.Info("NATS bus closed")
	}
}

// removeConsumer unlinks a stopped consumer.
func (b *NATSBus) removeConsumer(c *natsConsumer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, candidate := range b.consumers {
		if candidate == c {
			b.consumers = append(b.consumers[:i], b.consumers[i+1:]...)
			return
		}
	}
}

// natsConsumer wraps one queue subscription as a ConsumerHandle.
type natsConsumer struct {
	bus       *NATSBus
	queueName string
	sub       *nats.Subscription
	stopped   atomic.Bool
}

// Stop drains this subscription only. Safe to call more than once.
func (c *natsConsumer) Stop() error {
	if !c.stopped.CompareAndSwap(false, true) {
		return nil
	}
	c.bus.removeConsumer(c)

	// Drain lets the in-flight delivery complete before unsubscribing.
	if err := c.sub.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("failed to drain consumer on %s: %w", c.queueName, err)
	}
	c.bus.logger.Info("Consumer stopped", zap.String("queue", c.queueName))
	return nil
}

// IsActive reports whether the subscription still receives deliveries.
func (c *natsConsumer) IsActive() bool {
	return !c.stopped.Load() && c.sub.IsValid()
}
