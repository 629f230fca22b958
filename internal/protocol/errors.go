package protocol

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeDecode          Code = "decode_error"
	CodeUnknownPacket   Code = "unknown_packet"
	CodeInvalidArgument Code = "invalid_argument"
	CodeGameNotFound    Code = "game_not_found"
	CodePlayerNotFound  Code = "player_not_found"
	CodeNotHandshaken   Code = "not_handshaken"
	CodeInternal        Code = "internal"
)

// Error is the structured failure reported back to a client. Expected errors
// are caused by the client and are logged at warn; the rest at error.
type Error struct {
	Code     Code
	Message  string
	Details  string
	Expected bool
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newExpected(code Code, msg string, err error) *Error {
	e := &Error{Code: code, Message: msg, Expected: true, Err: err}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

func DecodeError(err error) *Error { return newExpected(CodeDecode, "malformed packet", err) }

func UnknownPacket(packetType string) *Error {
	return newExpected(CodeUnknownPacket, fmt.Sprintf("unknown packet type %q", packetType), nil)
}

func InvalidArgument(msg string, err error) *Error {
	return newExpected(CodeInvalidArgument, msg, err)
}

func GameNotFound(gameID string, err error) *Error {
	return newExpected(CodeGameNotFound, fmt.Sprintf("game %q not found", gameID), err)
}

func PlayerNotFound(playerID string, err error) *Error {
	return newExpected(CodePlayerNotFound, fmt.Sprintf("player %q not found", playerID), err)
}

func NotHandshaken() *Error {
	return newExpected(CodeNotHandshaken, "connection is not bound to a game; send Handshake first", nil)
}

// Internal wraps an unexpected failure. Details stay empty so server internals
// are not echoed to clients.
func Internal(err error) *Error {
	return &Error{Code: CodeInternal, Message: "internal server error", Err: err}
}

// AsError returns err as a protocol error, treating anything unknown as
// internal.
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return Internal(err)
}
