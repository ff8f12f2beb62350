// internal/meterbus/errors.go
package meterbus

import (
	"errors"
	"fmt"
)

// ProtocolKind tags transient bus failures so retry policy can match on
// the kind instead of sniffing error text.
type ProtocolKind uint8

const (
	KindOther        ProtocolKind = iota
	KindUnitMismatch              // response addressed a different unit/transaction: cross-talk
	KindTimeout                   // device did not answer in time (exception code 11 et al.)
	KindException                 // any other Modbus exception response
	KindShortResponse
)

func (k ProtocolKind) String() string {
	switch k {
	case KindUnitMismatch:
		return "unit-mismatch"
	case KindTimeout:
		return "timeout"
	case KindException:
		return "exception"
	case KindShortResponse:
		return "short-response"
	default:
		return "other"
	}
}

// ConnectionLostError is fatal: the transport is down or a socket-level
// error occurred. Never retried; the reconnect supervisor owns recovery.
type ConnectionLostError struct {
	Cause error
}

func (e *ConnectionLostError) Error() string {
	if e.Cause == nil {
		return "connection lost"
	}
	return fmt.Sprintf("connection lost: %v", e.Cause)
}

func (e *ConnectionLostError) Unwrap() error { return e.Cause }

// IsConnectionLost reports whether err carries a ConnectionLostError
// anywhere in its tree.
func IsConnectionLost(err error) bool {
	var cl *ConnectionLostError
	return errors.As(err, &cl)
}

// ProtocolError is transient: retried up to the attempt budget.
type ProtocolError struct {
	Kind  ProtocolKind
	Cause error
}

func (e *ProtocolError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("protocol error (%s)", e.Kind)
	}
	return fmt.Sprintf("protocol error (%s): %v", e.Kind, e.Cause)
}

func (e *ProtocolError) Unwrap() error { return e.Cause }

// DecodeError is a configuration-class failure: the register map and the
// device disagree. Never retried, never replaced with a default value.
type DecodeError struct {
	Spec   RegisterSpec
	Words  []uint16
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode 0x%04X as %s: %s (words=%04X)",
		e.Spec.Address, e.Spec.Type, e.Reason, e.Words)
}
