// Package core defines the fundamental interfaces and types for volley.
package core

import (
	"context"
	"time"
)

// Event names published by sessions.
const (
	EventStarted   = "started"
	EventRequest   = "request"
	EventError     = "error"
	EventCompleted = "completed"
)

// Counter and rate names published by sessions.
const (
	CounterMessagesSent   = "engine.ws.messages_sent"
	CounterSessionsFailed = "engine.ws.sessions_failed"
	CounterConnectErrors  = "engine.ws.connect_errors"
	CounterSendErrors     = "engine.ws.send_errors"
	RateSend              = "engine.ws.send_rate"
	RateSessions          = "engine.ws.session_rate"
)

// Emitter is the sink sessions publish lifecycle and metric events to.
// Implementations must be safe for concurrent use by many sessions.
type Emitter interface {
	Event(name string, payload any)
	Counter(name string, delta int64)
	Rate(name string)
}

// Conn is one open duplex message connection to the target.
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// Scenario is the unit an actor executes once per iteration.
type Scenario interface {
	Run(ctx context.Context, s *Session) error
}

// Coordinator spawns and manages actors.
type Coordinator interface {
	Spawn(ctx context.Context, count int, scenario Scenario)
}

// SessionResult is the payload of the completed event.
type SessionResult struct {
	ID       int
	Duration time.Duration
	Sent     int
	Err      error
}

// Success reports whether the session finished without error.
func (r SessionResult) Success() bool {
	return r.Err == nil
}
