package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
)

// Connect error codes.
const (
	CodeConnRefused = "ECONNREFUSED"
	CodeTimeout     = "ETIMEDOUT"
	CodeHandshake   = "EHANDSHAKE"
	CodeNotFound    = "ENOTFOUND"
	CodeConnReset   = "ECONNRESET"
	CodeCanceled    = "ECANCELED"
	CodeInvalidURL  = "EINVALIDURL"
	CodeUnknown     = "EUNKNOWN"
)

var ErrInvalidURL = errors.New("invalid websocket url")

// DialError is returned when a connection cannot be established.
type DialError struct {
	URL string
	// Status is the HTTP status of a rejected handshake, 0 otherwise.
	Status int
	Err    error
}

func (e *DialError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("dial %s: %v (status %d)", e.URL, e.Err, e.Status)
	}
	return fmt.Sprintf("dial %s: %v", e.URL, e.Err)
}

func (e *DialError) Unwrap() error {
	return e.Err
}

// Code returns the machine-readable error code.
func (e *DialError) Code() string {
	if e.Status != 0 {
		return CodeHandshake
	}
	return ErrorCode(e.Err)
}

// ErrorCode classifies a dial or transport error.
func ErrorCode(err error) string {
	var dnsErr *net.DNSError
	var netErr net.Error

	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidURL):
		return CodeInvalidURL
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeConnRefused
	case errors.Is(err, syscall.ECONNRESET):
		return CodeConnReset
	case errors.As(err, &dnsErr):
		if dnsErr.IsTimeout {
			return CodeTimeout
		}
		return CodeNotFound
	case errors.Is(err, websocket.ErrBadHandshake):
		return CodeHandshake
	case errors.As(err, &netErr) && netErr.Timeout():
		return CodeTimeout
	default:
		return CodeUnknown
	}
}
