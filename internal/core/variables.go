package core

import (
	"context"
	"maps"
)

// Variables provides template bindings shared between the steps of one session.
type Variables interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapVariables is a simple map-based Variables implementation.
// It is owned by a single session and is not safe for concurrent use.
type MapVariables struct {
	data map[string]any
}

func NewVariables() *MapVariables {
	return &MapVariables{data: make(map[string]any)}
}

func (v *MapVariables) Get(key string) (any, bool) {
	val, ok := v.data[key]
	return val, ok
}

func (v *MapVariables) Set(key string, value any) {
	v.data[key] = value
}

func (v *MapVariables) Delete(key string) {
	delete(v.data, key)
}

func (v *MapVariables) Len() int {
	return len(v.data)
}

// Snapshot returns a copy of the bindings.
func (v *MapVariables) Snapshot() map[string]any {
	return maps.Clone(v.data)
}

// Replace swaps the bindings for m (copied).
func (v *MapVariables) Replace(m map[string]any) {
	v.data = make(map[string]any, len(m))
	maps.Copy(v.data, m)
}

// Context key for passing actor ID to steps.
type contextKey string

const actorIDContextKey contextKey = "actorID"

func ContextWithActorID(ctx context.Context, actorID int) context.Context {
	return context.WithValue(ctx, actorIDContextKey, actorID)
}

func ActorIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(actorIDContextKey).(int); ok {
		return id
	}
	return 0
}
