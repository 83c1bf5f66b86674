package ilp

import (
	"errors"
	"fmt"
)

// Sentinel errors for line sender operations.
//
// Every error returned by this package wraps exactly one of these, so callers
// can branch on the kind with errors.Is():
//
//	if errors.Is(err, ilp.ErrSocket) {
//	    // The connection is dead, build a new Sender
//	}
var (
	// ErrCouldNotResolveAddr indicates the host, port or local interface
	// could not be resolved at connect time.
	ErrCouldNotResolveAddr = errors.New("ilp: could not resolve address")

	// ErrInvalidAPICall indicates a call-ordering violation, such as a symbol
	// after a column, a timestamp on an empty row, or use of a dead sender.
	ErrInvalidAPICall = errors.New("ilp: invalid api call")

	// ErrSocket indicates an I/O failure while connecting or sending.
	ErrSocket = errors.New("ilp: socket error")

	// ErrInvalidUTF8 indicates a name or value is not well-formed UTF-8.
	ErrInvalidUTF8 = errors.New("ilp: invalid utf-8")

	// ErrInvalidIdentifier indicates an empty or illegal table, symbol or
	// column name.
	ErrInvalidIdentifier = errors.New("ilp: invalid identifier")
)

// ErrorCode enumerates the error kinds reported by the sender.
type ErrorCode int

const (
	CodeNone ErrorCode = iota
	CodeCouldNotResolveAddr
	CodeInvalidAPICall
	CodeSocketError
	CodeInvalidUTF8
	CodeInvalidIdentifier
)

func (c ErrorCode) String() string {
	switch c {
	case CodeNone:
		return "none"
	case CodeCouldNotResolveAddr:
		return "could_not_resolve_addr"
	case CodeInvalidAPICall:
		return "invalid_api_call"
	case CodeSocketError:
		return "socket_error"
	case CodeInvalidUTF8:
		return "invalid_utf8"
	case CodeInvalidIdentifier:
		return "invalid_identifier"
	default:
		return fmt.Sprintf("unknown(%d)", int(c))
	}
}

// Code returns the kind of a sender error, or CodeNone if err does not wrap
// one of the package sentinels.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, ErrCouldNotResolveAddr):
		return CodeCouldNotResolveAddr
	case errors.Is(err, ErrInvalidAPICall):
		return CodeInvalidAPICall
	case errors.Is(err, ErrSocket):
		return CodeSocketError
	case errors.Is(err, ErrInvalidUTF8):
		return CodeInvalidUTF8
	case errors.Is(err, ErrInvalidIdentifier):
		return CodeInvalidIdentifier
	default:
		return CodeNone
	}
}

// apiErrorf builds an ErrInvalidAPICall with context.
func apiErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAPICall, fmt.Sprintf(format, args...))
}
