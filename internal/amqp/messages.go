package amqp

import (
	"encoding/json"
	"time"
)

// EventMessage is the wire form of a forwarded domain event.
type EventMessage struct {
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEventMessage encodes payload as JSON.
func NewEventMessage(topic string, payload any, at time.Time) (*EventMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &EventMessage{Topic: topic, Payload: body, Timestamp: at}, nil
}

func (m *EventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func EventMessageFromJSON(data []byte) (*EventMessage, error) {
	var msg EventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
