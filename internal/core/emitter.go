package core

import (
	"errors"
	"fmt"
)

// NullEmitter discards everything (used during warmup).
var NullEmitter Emitter = nullEmitter{}

type nullEmitter struct{}

func (nullEmitter) Event(string, any)     {}
func (nullEmitter) Counter(string, int64) {}
func (nullEmitter) Rate(string)           {}

// Fanout forwards every call to each emitter in order.
type Fanout []Emitter

func (f Fanout) Event(name string, payload any) {
	for _, e := range f {
		e.Event(name, payload)
	}
}

func (f Fanout) Counter(name string, delta int64) {
	for _, e := range f {
		e.Counter(name, delta)
	}
}

func (f Fanout) Rate(name string) {
	for _, e := range f {
		e.Rate(name)
	}
}

// ErrorKey groups error event payloads: connect failures by code, other
// errors by message.
func ErrorKey(payload any) string {
	switch v := payload.(type) {
	case string:
		return v
	case error:
		var coder interface{ Code() string }
		if errors.As(v, &coder) {
			return coder.Code()
		}
		return v.Error()
	case nil:
		return "unknown"
	default:
		return fmt.Sprint(v)
	}
}
