package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// Registered type names for the payload kinds the core ships. The name
// travels in the cortex-message-type transport header so consumers can
// decode the body into the concrete type.
const (
	TypeText                 = "cortex.text"
	TypePlanProposal         = "cortex.plan_proposal"
	TypePlanApprovalResponse = "cortex.plan_approval_response"
	TypeSupervisionAlert     = "cortex.supervision_alert"
	TypeEscalationAlert      = "cortex.escalation_alert"
)

// ErrUnknownMessageType is returned when decoding meets a type name no
// factory was registered for. Broker consumers dead-letter on it.
var ErrUnknownMessageType = errors.New("unknown message type")

var (
	typesMu   sync.RWMutex
	factories = make(map[string]func() Message)
	typeNames = make(map[reflect.Type]string)
)

// RegisterType makes a payload type decodable under the given name. The
// factory must return a pointer to a fresh zero value. Registering the same
// name twice panics, mirroring encoding registries in the standard library.
func RegisterType(name string, factory func() Message) {
	typesMu.Lock()
	defer typesMu.Unlock()
	if _, dup := factories[name]; dup {
		panic(fmt.Sprintf("message: RegisterType called twice for %q", name))
	}
	factories[name] = factory
	typeNames[reflect.TypeOf(factory())] = name
}

// TypeNameOf returns the registered name for the payload's concrete type.
func TypeNameOf(m Message) (string, bool) {
	typesMu.RLock()
	defer typesMu.RUnlock()
	name, ok := typeNames[reflect.TypeOf(m)]
	return name, ok
}

// NewOfType returns a fresh zero payload for the given registered name.
func NewOfType(name string) (Message, bool) {
	typesMu.RLock()
	defer typesMu.RUnlock()
	factory, ok := factories[name]
	if !ok {
		return nil, false
	}
	return factory(), true
}

func init() {
	RegisterType(TypeText, func() Message { return &TextMessage{} })
	RegisterType(TypePlanProposal, func() Message { return &PlanProposal{} })
	RegisterType(TypePlanApprovalResponse, func() Message { return &PlanApprovalResponse{} })
	RegisterType(TypeSupervisionAlert, func() Message { return &SupervisionAlert{} })
	RegisterType(TypeEscalationAlert, func() Message { return &EscalationAlert{} })
}

// wireEnvelope is the JSON body shape used on the broker.
type wireEnvelope struct {
	Message         json.RawMessage  `json:"message"`
	ReferenceCode   ReferenceCode    `json:"reference_code"`
	AuthorityClaims []AuthorityClaim `json:"authority_claims,omitempty"`
	Context         Context          `json:"context"`
	Priority        Priority         `json:"priority"`
	SLA             *time.Time       `json:"sla,omitempty"`
}

// EncodeEnvelope renders the envelope as a JSON body plus the payload type
// name for the transport header.
func EncodeEnvelope(env Envelope) ([]byte, string, error) {
	if env.Message == nil {
		return nil, "", errors.New("envelope has no message")
	}
	name, ok := TypeNameOf(env.Message)
	if !ok {
		return nil, "", fmt.Errorf("message type %T is not registered", env.Message)
	}
	raw, err := json.Marshal(env.Message)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode message: %w", err)
	}
	body, err := json.Marshal(wireEnvelope{
		Message:         raw,
		ReferenceCode:   env.ReferenceCode,
		AuthorityClaims: env.AuthorityClaims,
		Context:         env.Context,
		Priority:        env.Priority,
		SLA:             env.SLA,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode envelope: %w", err)
	}
	return body, name, nil
}

// DecodeEnvelope rebuilds an envelope from a JSON body and the payload type
// name read from the transport header.
func DecodeEnvelope(body []byte, typeName string) (Envelope, error) {
	msg, ok := NewOfType(typeName)
	if !ok {
		return Envelope{}, fmt.Errorf("%w: %q", ErrUnknownMessageType, typeName)
	}
	var w wireEnvelope
	if err := json.Unmarshal(body, &w); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if err := json.Unmarshal(w.Message, msg); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode %s message: %w", typeName, err)
	}
	return Envelope{
		Message:         msg,
		ReferenceCode:   w.ReferenceCode,
		AuthorityClaims: w.AuthorityClaims,
		Context:         w.Context,
		Priority:        w.Priority,
		SLA:             w.SLA,
	}, nil
}
