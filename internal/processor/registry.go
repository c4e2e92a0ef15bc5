// Package processor holds the custom functions a scenario can call by name:
// Func steps and whileTrue loop predicates.
package processor

import (
	"context"
	"sort"
	"sync"

	"volley/internal/core"
)

// Func is a custom step. The step completes when Func returns; a non-nil
// error aborts the rest of the session.
type Func func(ctx context.Context, s *core.Session, events core.Emitter) error

// Predicate decides whether a whileTrue loop runs another iteration.
type Predicate func(ctx context.Context, s *core.Session) (bool, error)

// Resolution is the outcome of looking a function up by name.
type Resolution struct {
	Name string
	Func Func
}

// Found reports whether the name resolved to a function.
func (r Resolution) Found() bool {
	return r.Func != nil
}

// Registry maps names to functions and predicates. Registration is
// expected before compilation; lookups are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
	preds map[string]Predicate
}

func NewRegistry() *Registry {
	return &Registry{
		funcs: make(map[string]Func),
		preds: make(map[string]Predicate),
	}
}

// Register adds or replaces a function.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = fn
}

// RegisterPredicate adds or replaces a predicate.
func (r *Registry) RegisterPredicate(name string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.preds[name] = p
}

// Lookup resolves a function. A nil registry resolves nothing.
func (r *Registry) Lookup(name string) Resolution {
	if r == nil {
		return Resolution{Name: name}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Resolution{Name: name, Func: r.funcs[name]}
}

// Predicate resolves a predicate.
func (r *Registry) Predicate(name string) (Predicate, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.preds[name]
	return p, ok
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
