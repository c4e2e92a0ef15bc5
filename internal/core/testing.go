package core

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockWriter is a thread-safe io.Writer for testing.
type MockWriter struct {
	mu   sync.Mutex
	data []byte
}

func (w *MockWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *MockWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.data)
}

// Emitted is one call recorded by RecordingEmitter.
type Emitted struct {
	Kind    string // "event", "counter" or "rate"
	Name    string
	Payload any
	Delta   int64
}

// RecordingEmitter keeps every call in order, for tests.
type RecordingEmitter struct {
	mu    sync.Mutex
	calls []Emitted
}

func (r *RecordingEmitter) Event(name string, payload any) {
	r.record(Emitted{Kind: "event", Name: name, Payload: payload})
}

func (r *RecordingEmitter) Counter(name string, delta int64) {
	r.record(Emitted{Kind: "counter", Name: name, Delta: delta})
}

func (r *RecordingEmitter) Rate(name string) {
	r.record(Emitted{Kind: "rate", Name: name})
}

func (r *RecordingEmitter) record(e Emitted) {
	r.mu.Lock()
	r.calls = append(r.calls, e)
	r.mu.Unlock()
}

// Calls returns a copy of the recorded calls.
func (r *RecordingEmitter) Calls() []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Emitted, len(r.calls))
	copy(out, r.calls)
	return out
}

// Count returns how many calls of kind carried name.
func (r *RecordingEmitter) Count(kind, name string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Kind == kind && c.Name == name {
			n++
		}
	}
	return n
}

// Events returns the payloads of every event called name.
func (r *RecordingEmitter) Events(name string) []any {
	var out []any
	for _, c := range r.Calls() {
		if c.Kind == "event" && c.Name == name {
			out = append(out, c.Payload)
		}
	}
	return out
}

// MockConn is an in-memory Conn for tests.
type MockConn struct {
	mu       sync.Mutex
	sent     [][]byte
	attempts int
	closes   atomic.Int32

	// SendErr, if set, is consulted on every send attempt; n counts attempts from 0.
	SendErr func(n int, payload []byte) error
}

func (c *MockConn) Send(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.attempts
	c.attempts++
	if c.SendErr != nil {
		if err := c.SendErr(n, payload); err != nil {
			return err
		}
	}
	c.sent = append(c.sent, append([]byte(nil), payload...))
	return nil
}

func (c *MockConn) Close() error {
	c.closes.Add(1)
	return nil
}

// Sent returns the payloads sent so far as strings.
func (c *MockConn) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.sent))
	for i, p := range c.sent {
		out[i] = string(p)
	}
	return out
}

// Closes returns how many times Close was called.
func (c *MockConn) Closes() int {
	return int(c.closes.Load())
}
