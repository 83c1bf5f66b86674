package relay

import "errors"

var (
	// ErrInvalidMessage is returned for payloads that are not state messages.
	ErrInvalidMessage = errors.New("relay: invalid state message")

	// ErrNoFields is returned when a state message has no scalar values.
	ErrNoFields = errors.New("relay: state has no scalar values")

	// ErrClosed is returned by operations on a closed relay.
	ErrClosed = errors.New("relay: closed")
)
