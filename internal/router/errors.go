package router

import (
	"fmt"

	"slidecast/pkg/protocol"
)

// CommandError carries the protocol error code delivered to the offending
// connection. Handlers return it instead of writing error events themselves so
// Dispatch owns the single delivery point.
type CommandError struct {
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	return e.Code + ": " + e.Message
}

func errUnauthenticated() *CommandError {
	return &CommandError{
		Code:    protocol.CodeUnauthenticated,
		Message: "connection has not joined a game",
	}
}

func errUnauthorized(required protocol.Role) *CommandError {
	return &CommandError{
		Code:    protocol.CodeUnauthorized,
		Message: fmt.Sprintf("command requires role %q", required),
	}
}

func errWrongGame() *CommandError {
	return &CommandError{
		Code:    protocol.CodeUnauthorized,
		Message: "connection is not joined to this game",
	}
}

func errInvalidPayload(err error) *CommandError {
	return &CommandError{
		Code:    protocol.CodeInvalidPayload,
		Message: err.Error(),
	}
}
