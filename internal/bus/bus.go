// Package bus provides the message transport Cortex agents communicate over.
// It defines the Bus abstraction with per-consumer lifecycle handles, an
// in-memory implementation for single-process deployments and tests, and a
// NATS-backed implementation for broker deployments.
package bus

import (
	"context"
	"errors"
	"strings"

	"github.com/cortexhq/cortex/internal/message"
)

var (
	// ErrBusClosed is returned when publishing or consuming on a closed bus.
	ErrBusClosed = errors.New("message bus is closed")
	// ErrNoMessage is returned when publishing an envelope without a payload.
	ErrNoMessage = errors.New("envelope has no message")
)

// Queue naming conventions. Agent inboxes live on agent.<agentID>; channel
// queues live on channel.<channelID>.
const (
	AgentQueuePrefix   = "agent."
	ChannelQueuePrefix = "channel."
)

// Broker subject layout. Every routed message travels on
// cortex.messages.queue.<queueName>; failed deliveries sink to
// cortex.deadletter.
const (
	MessagesSubjectPrefix = "cortex.messages."
	DeadLetterSubject     = "cortex.deadletter"
)

// AgentQueue returns the inbox queue name for an agent ID.
func AgentQueue(agentID string) string {
	return AgentQueuePrefix + agentID
}

// RoutingKey returns the broker routing key for a queue.
func RoutingKey(queueName string) string {
	return "queue." + queueName
}

// Subject returns the full broker subject a queue's messages travel on.
func Subject(queueName string) string {
	return MessagesSubjectPrefix + RoutingKey(queueName)
}

// Handler processes one envelope delivered to a consumer. A returned error
// marks the delivery failed: the in-memory bus logs it and moves on, the
// NATS bus forwards the message to the dead-letter subject.
type Handler func(ctx context.Context, env message.Envelope) error

// ConsumerHandle is the scoped lifecycle of a single consumer. Stopping a
// handle stops only that consumer; other consumers on the same queue keep
// receiving.
type ConsumerHandle interface {
	// Stop cancels the consumer and waits for its in-flight delivery to
	// finish. Safe to call more than once.
	Stop() error
	// IsActive reports whether the consumer still receives deliveries.
	IsActive() bool
}

// QueueBinding describes one live consumer binding on the bus.
type QueueBinding struct {
	QueueName      string           `json:"queue_name"`
	RoutingPattern string           `json:"routing_pattern"`
	ChannelID      string           `json:"channel_id,omitempty"`
	AgentID        string           `json:"agent_id,omitempty"`
	Priority       message.Priority `json:"priority"`
}

// bindingFor derives the topology entry for a queue from its naming
// convention.
func bindingFor(queueName string) QueueBinding {
	b := QueueBinding{
		QueueName:      queueName,
		RoutingPattern: RoutingKey(queueName),
		Priority:       message.PriorityNormal,
	}
	switch {
	case strings.HasPrefix(queueName, AgentQueuePrefix):
		b.AgentID = strings.TrimPrefix(queueName, AgentQueuePrefix)
	case strings.HasPrefix(queueName, ChannelQueuePrefix):
		b.ChannelID = strings.TrimPrefix(queueName, ChannelQueuePrefix)
	}
	return b
}

// Bus is the transport every Cortex component publishes and consumes on.
type Bus interface {
	// Publish delivers the envelope to every consumer bound to the queue.
	Publish(ctx context.Context, queueName string, env message.Envelope) error

	// StartConsuming binds a handler to a queue and returns the consumer's
	// lifecycle handle. Multiple consumers may bind to the same queue.
	StartConsuming(queueName string, handler Handler) (ConsumerHandle, error)

	// StopAll stops every consumer started through this bus instance. It is
	// an administrative affordance; normal shutdown stops handles one by one.
	StopAll()

	// Topology returns a snapshot of the current consumer bindings.
	Topology() []QueueBinding

	// IsConnected reports whether the bus can deliver messages.
	IsConnected() bool

	// Close stops all consumers and releases the transport.
	Close()
}
