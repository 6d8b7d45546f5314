package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names carried on the control namespace.
const (
	EventConnect           = "connect"
	EventMotorStatus       = "motor_status"
	EventTemperatureStatus = "temperature_status"
	EventTemperatureUpdate = "temperature_update"
)

// Frame is one named event as delivered by a channel transport, before decoding.
type Frame struct {
	Namespace  string          `json:"namespace"`
	Name       string          `json:"event"`
	Data       json.RawMessage `json:"data,omitempty"`
	ReceivedAt time.Time       `json:"received_at"`
}

// Envelope is the broker wire form of a frame. Kafka record values and
// Redis pub/sub payloads are JSON-encoded envelopes.
type Envelope struct {
	Namespace string          `json:"namespace"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a broker message into an Envelope.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: envelope without event name", ErrMalformedPayload)
	}
	return env, nil
}

// Frame converts the envelope into a Frame stamped with receivedAt.
func (e Envelope) Frame(receivedAt time.Time) Frame {
	return Frame{
		Namespace:  e.Namespace,
		Name:       e.Event,
		Data:       e.Data,
		ReceivedAt: receivedAt,
	}
}
