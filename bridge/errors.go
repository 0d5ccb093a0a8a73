package bridge

import (
	"errors"
	"fmt"

	"github.com/glimte/proxybridge/contracts"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start
	ErrAlreadyStarted = errors.New("bridge: already started")
	// ErrStopped is returned when the bridge was stopped
	ErrStopped = errors.New("bridge: stopped")
	// ErrDuplicateRequest is returned when a request id is already pending
	ErrDuplicateRequest = errors.New("bridge: request id already pending")
)

// BindError is the fatal startup error returned when the listener cannot be bound
type BindError struct {
	Addr      string // Listen address
	Attempts  int    // Number of listen attempts made
	AddrInUse bool   // Whether the last failure was "address already in use"
	Err       error  // Last listen error
}

func (e *BindError) Error() string {
	if e.AddrInUse {
		return fmt.Sprintf("bridge: could not bind %s after %d attempts: %v", e.Addr, e.Attempts, e.Err)
	}
	return fmt.Sprintf("bridge: could not bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// PublishError represents a failed publish on the outbound channel
type PublishError struct {
	Channel string                // Outbound channel
	Type    contracts.MessageType // Envelope kind
	Err     error                 // Underlying error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("bridge: failed to publish %s message to %s: %v", e.Type, e.Channel, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// RequestError represents a failure while forwarding one HTTP request
type RequestError struct {
	ReqID uint64 // Request id
	Op    string // Step that failed
	Err   error  // Underlying error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %d: %s: %v", e.ReqID, e.Op, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}
