// Package util provides logging and error utilities shared across fcpp-go.
package util

import (
	"errors"
	"fmt"
)

// Sentinel errors, one per error kind in the propagation policy:
// only ErrConfiguration and ErrInvariant ever escape the
// core; the rest are reported through structured callbacks and
// absorbed by the scheduler.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrRound         = errors.New("round error")
	ErrTransport     = errors.New("transport error")
	ErrProtocol      = errors.New("protocol error")
	ErrInvariant     = errors.New("invariant violation")
)

// ConfigError reports a fatal startup-time configuration problem: an
// unknown tag, an incompatible component composition, or an unreadable
// input file.
type ConfigError struct {
	Op      string
	Details string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Op, e.Details)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// NewConfigError creates a ConfigError.
func NewConfigError(op, details string) *ConfigError {
	return &ConfigError{Op: op, Details: details}
}

// RoundError reports a round that failed mid-execution: user code
// faulted, or a projected payload failed to decode. The failing round
// is aborted for that device only; the prior export is retained.
type RoundError struct {
	Device uint32
	Time   float64
	Cause  error
}

func (e *RoundError) Error() string {
	return fmt.Sprintf("round error on device %d at t=%g: %v", e.Device, e.Time, e.Cause)
}

func (e *RoundError) Unwrap() error { return ErrRound }

// NewRoundError creates a RoundError.
func NewRoundError(device uint32, t float64, cause error) *RoundError {
	return &RoundError{Device: device, Time: t, Cause: cause}
}

// TransportError reports a failed send attempt. The connector counts
// each attempt and retries with backoff until success, cancellation,
// or device retirement; the error a caller eventually sees is
// reportable context, never a reason to stop the device.
type TransportError struct {
	Device  uint32
	Attempt int
	Cause   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on device %d (attempt %d): %v", e.Device, e.Attempt, e.Cause)
}

func (e *TransportError) Unwrap() error { return ErrTransport }

// NewTransportError creates a TransportError.
func NewTransportError(device uint32, attempt int, cause error) *TransportError {
	return &TransportError{Device: device, Attempt: attempt, Cause: cause}
}

// ProtocolError reports a malformed envelope received over the wire.
// Dropped and counted; never fatal.
type ProtocolError struct {
	Sender  uint32
	Details string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error from sender %d: %s", e.Sender, e.Details)
}

func (e *ProtocolError) Unwrap() error { return ErrProtocol }

// NewProtocolError creates a ProtocolError.
func NewProtocolError(sender uint32, details string) *ProtocolError {
	return &ProtocolError{Sender: sender, Details: details}
}

// InvariantError reports a violation that aborts the whole net: two
// live devices sharing a uid, a trace stack popped while empty, and
// similar impossible states.
type InvariantError struct {
	Invariant string
	Details   string
}

func (e *InvariantError) Error() string {
	msg := fmt.Sprintf("invariant violated: %s", e.Invariant)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *InvariantError) Unwrap() error { return ErrInvariant }

// NewInvariantError creates an InvariantError.
func NewInvariantError(invariant, details string) *InvariantError {
	return &InvariantError{Invariant: invariant, Details: details}
}
