package signaling

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the signaling core.
type ErrorKind int

const (
	// KindProtocol: malformed payload, unknown type or missing fields.
	KindProtocol ErrorKind = iota + 1
	// KindConflict: role slot taken, or a duplicate join.
	KindConflict
	// KindRouting: the counterpart is absent. Never reported to the sender.
	KindRouting
	// KindTransport: socket failure, handled as a disconnect.
	KindTransport
)

func (k ErrorKind) String() string {
	switch k {
	case KindProtocol:
		return "ProtocolError"
	case KindConflict:
		return "ConflictError"
	case KindRouting:
		return "RoutingError"
	case KindTransport:
		return "TransportError"
	default:
		return "UnknownError"
	}
}

// Error is a classified signaling error. Message is what the client sees in
// the error envelope.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict)
// works regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrProtocol = &Error{Kind: KindProtocol}
	ErrConflict = &Error{Kind: KindConflict}
)

// Registry errors.
var (
	ErrSlotOccupied = errors.New("slot occupied")
	ErrInvalidRole  = errors.New("invalid role")
)

// ErrHubStopped is returned when the hub no longer accepts work.
var ErrHubStopped = errors.New("signaling hub stopped")

func protocolError(format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Message: fmt.Sprintf(format, args...)}
}

func conflictError(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}
