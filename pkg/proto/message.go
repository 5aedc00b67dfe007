package proto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MsgType classifies an inter-worker message.
type MsgType string

const (
	MsgTypeRequest      MsgType = "request"
	MsgTypeResponse     MsgType = "response"
	MsgTypeNotification MsgType = "notification"
	MsgTypeError        MsgType = "error"
)

// Priority bounds for messages.
const (
	MinPriority     = 0
	MaxPriority     = 10
	DefaultPriority = 5
)

// Message is the transient notification record between workers. Messages are
// not queued anywhere; they are realized as protocol document writes and
// persisted only through the event log.
type Message struct {
	ID               string         `json:"message_id"`
	SourceAgent      Worker         `json:"source_agent"`
	DestinationAgent Worker         `json:"destination_agent"`
	Type             MsgType        `json:"message_type"`
	Timestamp        time.Time      `json:"timestamp"`
	Priority         int            `json:"priority"`
	Payload          map[string]any `json:"payload"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// NewMessage creates a message with a fresh ID and default priority.
func NewMessage(msgType MsgType, from, to Worker) *Message {
	return &Message{
		ID:               uuid.New().String(),
		SourceAgent:      from,
		DestinationAgent: to,
		Type:             msgType,
		Timestamp:        time.Now().UTC(),
		Priority:         DefaultPriority,
		Payload:          make(map[string]any),
		Metadata:         make(map[string]any),
	}
}

// SetPriority clamps and sets the message priority.
func (m *Message) SetPriority(p int) {
	if p < MinPriority {
		p = MinPriority
	}
	if p > MaxPriority {
		p = MaxPriority
	}
	m.Priority = p
}

// SetPayload sets a payload value, initializing the map if needed.
func (m *Message) SetPayload(key string, value any) {
	if m.Payload == nil {
		m.Payload = make(map[string]any)
	}
	m.Payload[key] = value
}

// GetPayload retrieves a payload value.
func (m *Message) GetPayload(key string) (any, bool) {
	if m.Payload == nil {
		return nil, false
	}
	val, exists := m.Payload[key]
	return val, exists
}

// Validate checks message structural requirements.
func (m *Message) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("message ID is required")
	}
	if _, ok := ValidateWorker(string(m.SourceAgent)); !ok {
		return fmt.Errorf("invalid source_agent: %s", m.SourceAgent)
	}
	if _, ok := ValidateWorker(string(m.DestinationAgent)); !ok {
		return fmt.Errorf("invalid destination_agent: %s", m.DestinationAgent)
	}
	if _, ok := ValidateMsgType(string(m.Type)); !ok {
		return fmt.Errorf("invalid message type: %s", m.Type)
	}
	if m.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if m.Priority < MinPriority || m.Priority > MaxPriority {
		return fmt.Errorf("priority must be %d-%d, got %d", MinPriority, MaxPriority, m.Priority)
	}
	return nil
}

// ToJSON serializes the message.
func (m *Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// MessageFromJSON deserializes a message.
func MessageFromJSON(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}
	return &msg, nil
}

// ValidateMsgType validates a message type string.
func ValidateMsgType(msgType string) (MsgType, bool) {
	switch MsgType(msgType) {
	case MsgTypeRequest, MsgTypeResponse, MsgTypeNotification, MsgTypeError:
		return MsgType(msgType), true
	default:
		return "", false
	}
}
