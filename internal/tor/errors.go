package tor

import (
	"errors"
	"fmt"
)

// Control session errors.
var (
	// ErrNotControlPort is returned when the peer does not answer like a Tor
	// control port.
	ErrNotControlPort = errors.New("peer is not a Tor control port")

	// ErrCannotConnect is returned when no control address accepts a
	// connection.
	ErrCannotConnect = errors.New("cannot connect to Tor control port")

	// ErrTimeout is returned when connecting to the control port times out.
	ErrTimeout = errors.New("timeout connecting to Tor control port")

	// ErrNoAuthMethod is returned when Tor offers no authentication method
	// that the given credentials can satisfy.
	ErrNoAuthMethod = errors.New("no usable control port authentication method")

	// ErrAuthFailed is returned when Tor rejects the credentials.
	ErrAuthFailed = errors.New("control port authentication failed")

	// ErrConnClosed is returned for commands issued after the session ended.
	ErrConnClosed = errors.New("control connection closed")

	// ErrMalformedReply is returned when a reply does not follow the control
	// protocol grammar.
	ErrMalformedReply = errors.New("malformed control reply")

	// ErrBuildTimeout is returned when a circuit is not built within the
	// session's build timeout.
	ErrBuildTimeout = errors.New("circuit build timed out")

	// ErrInvalidControlAddress is returned when an address is not "host:port".
	ErrInvalidControlAddress = errors.New("invalid control address format: expected host:port")

	// ErrDaemonNotRunning is returned by EmbeddedTor before Start succeeded
	// or after Stop.
	ErrDaemonNotRunning = errors.New("embedded Tor daemon is not running")
)

// ReplyError is a non-2xx reply to a control command.
type ReplyError struct {
	// Code is the three digit status code, e.g. 552.
	Code int

	// Text is the reply text.
	Text string
}

// Error implements the error interface.
func (e *ReplyError) Error() string {
	return fmt.Sprintf("%d %s", e.Code, e.Text)
}

// CircuitError reports a circuit that Tor marked FAILED or CLOSED while it
// was being built.
type CircuitError struct {
	// Status is FAILED or CLOSED.
	Status string

	// Reason is Tor's local reason, e.g. TIMEOUT or CHANNEL_CLOSED.
	Reason string

	// RemoteReason is the reason reported by a remote relay, if any.
	RemoteReason string
}

// Error implements the error interface.
func (e *CircuitError) Error() string {
	msg := "circuit " + e.Status
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.RemoteReason != "" {
		msg += " (remote: " + e.RemoteReason + ")"
	}
	return msg
}

// ControlStatus is the result of checking a control port.
type ControlStatus int

const (
	// ControlStatusOK indicates an authenticated Tor control port.
	ControlStatusOK ControlStatus = iota

	// ControlStatusWrongType indicates the peer is not a Tor control port.
	ControlStatusWrongType

	// ControlStatusCannotConnect indicates no TCP connection could be made.
	ControlStatusCannotConnect

	// ControlStatusTimeout indicates the connection attempt timed out.
	ControlStatusTimeout

	// ControlStatusAuthFailed indicates Tor rejected the credentials.
	ControlStatusAuthFailed
)

// String returns a human-readable description of the status.
func (s ControlStatus) String() string {
	switch s {
	case ControlStatusOK:
		return "OK"
	case ControlStatusWrongType:
		return "wrong type (not a Tor control port)"
	case ControlStatusCannotConnect:
		return "cannot connect"
	case ControlStatusTimeout:
		return "timeout"
	case ControlStatusAuthFailed:
		return "authentication failed"
	default:
		return "unknown"
	}
}

// Error returns the error for this status, or nil if OK.
func (s ControlStatus) Error() error {
	switch s {
	case ControlStatusOK:
		return nil
	case ControlStatusWrongType:
		return ErrNotControlPort
	case ControlStatusCannotConnect:
		return ErrCannotConnect
	case ControlStatusTimeout:
		return ErrTimeout
	case ControlStatusAuthFailed:
		return ErrAuthFailed
	default:
		return errors.New("unknown control status")
	}
}
