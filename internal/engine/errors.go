package engine

import (
	"errors"
	"fmt"

	"volley/internal/ws"
)

// Compile-time errors.
var (
	ErrProcessorNotFound = errors.New("processor function not found")
	ErrPredicateNotFound = errors.New("whileTrue predicate not found")
	ErrUnboundedLoop     = errors.New("loop needs count, over or whileTrue")
	ErrInvalidGraphQL    = errors.New("invalid graphql query")
)

// ErrNoConnection is returned by a send step when the session is not
// connected.
var ErrNoConnection = errors.New("session has no connection")

// ConnectError is returned when the session could not connect. It is
// terminal for the session.
type ConnectError struct {
	Code string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed (%s): %v", e.Code, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// SendError is returned when a message could not be written.
type SendError struct {
	Err error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// errorCode extracts a connect error code from err, classifying it when
// the dialer did not.
func errorCode(err error) string {
	var coder interface{ Code() string }
	if errors.As(err, &coder) {
		if code := coder.Code(); code != "" {
			return code
		}
	}
	return ws.ErrorCode(err)
}
