// Package flow describes scenario flows: ordered trees of send, think, loop
// and function-call nodes decoded from the script file.
package flow

import (
	"fmt"
	"time"
)

// Kind identifies the variant of a Node.
type Kind int

const (
	KindSend Kind = iota
	KindThink
	KindLoop
	KindCall
)

func (k Kind) String() string {
	switch k {
	case KindSend:
		return "send"
	case KindThink:
		return "think"
	case KindLoop:
		return "loop"
	case KindCall:
		return "function"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DefaultLoopValue is the variable a loop binds when none is named.
const DefaultLoopValue = "$loopCount"

// Node is one step of a flow. The set of implementations is closed:
// Send, Think, Loop and Call.
type Node interface {
	Kind() Kind
	node()
}

// Flow is an ordered sequence of nodes.
type Flow []Node

// Send transmits Payload, a template resolved against session variables.
type Send struct {
	Payload any
}

// Think pauses the session. Expr, when set, is a template resolved at run
// time to a number of seconds and Duration is ignored.
type Think struct {
	Duration time.Duration
	Expr     string
}

// Loop repeats Steps.
//
// Count > 0 repeats exactly Count times and Count == 0 never runs.
// Over (or the list held by variable OverVar) runs once per element.
// Without either the loop runs until WhileTrue returns false.
type Loop struct {
	Steps     Flow
	Count     *int
	Over      []any
	OverVar   string
	LoopValue string
	WhileTrue string
}

// Call invokes the named processor function.
type Call struct {
	Function string
}

func (Send) Kind() Kind  { return KindSend }
func (Think) Kind() Kind { return KindThink }
func (Loop) Kind() Kind  { return KindLoop }
func (Call) Kind() Kind  { return KindCall }

func (Send) node()  {}
func (Think) node() {}
func (Loop) node()  {}
func (Call) node()  {}

// Numeric reports whether the pause is a fixed delay.
func (t Think) Numeric() bool {
	return t.Expr == ""
}

// Bounded reports whether the loop has a count or a value list.
func (l Loop) Bounded() bool {
	return (l.Count != nil && *l.Count >= 0) || l.Over != nil || l.OverVar != ""
}

// Variable returns the name the loop binds for each iteration.
func (l Loop) Variable() string {
	if l.LoopValue == "" {
		return DefaultLoopValue
	}
	return l.LoopValue
}

// PendingRequests counts the nodes that are not fixed pauses.
func (f Flow) PendingRequests() int {
	n := 0
	for _, node := range f {
		if t, ok := node.(Think); ok && t.Numeric() {
			continue
		}
		n++
	}
	return n
}

// Walk calls fn for every node, depth first, loops before their steps.
func (f Flow) Walk(fn func(Node)) {
	for _, node := range f {
		fn(node)
		if l, ok := node.(Loop); ok {
			l.Steps.Walk(fn)
		}
	}
}

// Functions returns the processor names referenced by Call nodes and
// WhileTrue predicates, in first-seen order.
func (f Flow) Functions() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	f.Walk(func(n Node) {
		switch v := n.(type) {
		case Call:
			add(v.Function)
		case Loop:
			add(v.WhileTrue)
		}
	})
	return names
}

// IntPtr returns a pointer to n, for building loop counts.
func IntPtr(n int) *int {
	return &n
}
