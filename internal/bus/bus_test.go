package bus

import "testing"

func TestQueueNaming(t *testing.T) {
	if got := AgentQueue("cos"); got != "agent.cos" {
		t.Errorf("AgentQueue: expected agent.cos, got %q", got)
	}
	if got := RoutingKey("agent.cos"); got != "queue.agent.cos" {
		t.Errorf("RoutingKey: expected queue.agent.cos, got %q", got)
	}
	if got := Subject("agent.cos"); got != "cortex.messages.queue.agent.cos" {
		t.Errorf("Subject: expected cortex.messages.queue.agent.cos, got %q", got)
	}
}

func TestBindingFor(t *testing.T) {
	tests := []struct {
		queue     string
		agentID   string
		channelID string
	}{
		{queue: "agent.email-agent", agentID: "email-agent"},
		{queue: "channel.general", channelID: "general"},
		{queue: "human"},
	}

	for _, tt := range tests {
		b := bindingFor(tt.queue)
		if b.QueueName != tt.queue {
			t.Errorf("%s: queue name %q", tt.queue, b.QueueName)
		}
		if b.RoutingPattern != "queue."+tt.queue {
			t.Errorf("%s: routing pattern %q", tt.queue, b.RoutingPattern)
		}
		if b.AgentID != tt.agentID {
			t.Errorf("%s: agent ID %q, expected %q", tt.queue, b.AgentID, tt.agentID)
		}
		if b.ChannelID != tt.channelID {
			t.Errorf("%s: channel ID %q, expected %q", tt.queue, b.ChannelID, tt.channelID)
		}
	}
}
