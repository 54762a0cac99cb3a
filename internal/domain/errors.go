package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidPayload marks inbound events that are dropped without a reply.
var ErrInvalidPayload = errors.New("invalid payload")

var (
	ErrMissingRoom   = fmt.Errorf("%w: room id is required", ErrInvalidPayload)
	ErrMissingSender = fmt.Errorf("%w: sender is required", ErrInvalidPayload)
	ErrEmptyMessage  = fmt.Errorf("%w: message body or attachment is required", ErrInvalidPayload)

	ErrIdentityMismatch = fmt.Errorf("%w: identity does not match the connection", ErrInvalidPayload)
	ErrRoomMismatch     = fmt.Errorf("%w: room is not the joined room", ErrInvalidPayload)
	ErrUnknownType      = fmt.Errorf("%w: unknown message type", ErrInvalidPayload)
)

var (
	ErrNotInRoom     = errors.New("session is not in a room")
	ErrSessionClosed = errors.New("session is closed")
)

// IsProtocolError reports errors caused by the client's input rather than
// by the server.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrNotInRoom) || errors.Is(err, ErrSessionClosed)
}
