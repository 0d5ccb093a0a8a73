package contracts

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is returned when a required frame field is absent
	ErrMissingField = errors.New("contracts: missing required field")
	// ErrEmptyMessageType is returned when publishing without a kind
	ErrEmptyMessageType = errors.New("contracts: message type cannot be empty")
	// ErrUnexpectedType is returned when an envelope has the wrong kind
	ErrUnexpectedType = errors.New("contracts: unexpected message type")
	// ErrInvalidChannels is returned for an unusable channel prefix pair
	ErrInvalidChannels = errors.New("contracts: invalid channel configuration")
)

// DecodeError represents a malformed frame
type DecodeError struct {
	Field string // Field that failed to decode
	Err   error  // Underlying error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("contracts: failed to decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
