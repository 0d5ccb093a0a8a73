package contracts

import (
	"encoding/json"
	"fmt"
)

// Envelope wraps every message published on the bridge-to-peer channel
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewEnvelope serializes data into an envelope of the given kind
func NewEnvelope(messageType MessageType, data interface{}) (*Envelope, error) {
	if messageType == "" {
		return nil, ErrEmptyMessageType
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", messageType, err)
	}

	return &Envelope{Type: messageType, Data: raw}, nil
}

// Marshal returns the JSON frame of the envelope
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeRequest extracts a ProxiedRequest from a "req" envelope
func (e *Envelope) DecodeRequest() (*ProxiedRequest, error) {
	if e.Type != MessageTypeRequest {
		return nil, fmt.Errorf("%w: expected %q, got %q", ErrUnexpectedType, MessageTypeRequest, e.Type)
	}

	var req ProxiedRequest
	if err := json.Unmarshal(e.Data, &req); err != nil {
		return nil, &DecodeError{Field: "data", Err: err}
	}
	return &req, nil
}
