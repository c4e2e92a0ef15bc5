package core

import "time"

// Session is the state of one virtual session, threaded through every
// compiled step of a scenario run. It is discarded when the run ends.
type Session struct {
	ID     int
	Vars   *MapVariables
	Events Emitter

	// Conn is nil until the connect step succeeds.
	Conn Conn

	PendingRequests int
	SuccessCount    int
	StartedAt       time.Time
}

// NewSession creates an empty session publishing to events.
// A nil events discards everything.
func NewSession(id int, events Emitter) *Session {
	if events == nil {
		events = NullEmitter
	}
	return &Session{
		ID:     id,
		Vars:   NewVariables(),
		Events: events,
	}
}

// Reset drops every binding, counter and the connection handle.
// The caller owns closing Conn before calling Reset.
func (s *Session) Reset() {
	s.Vars = NewVariables()
	s.Conn = nil
	s.PendingRequests = 0
	s.SuccessCount = 0
}

// Empty reports whether the session carries no state.
func (s *Session) Empty() bool {
	return s.Conn == nil && s.Vars.Len() == 0 && s.PendingRequests == 0 && s.SuccessCount == 0
}
