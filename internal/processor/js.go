package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/dop251/goja"

	"volley/internal/core"
)

// ErrDoneNotCalled is returned when a JavaScript function returns without
// calling its done callback.
var ErrDoneNotCalled = errors.New("done callback not called")

// jsRuntime serializes access to one goja runtime, which is not safe for
// concurrent use.
type jsRuntime struct {
	mu sync.Mutex
	vm *goja.Runtime
}

// LoadFile loads a JavaScript processor file into r.
func LoadFile(path string, r *Registry) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading processor file: %w", err)
	}
	return LoadScript(path, string(src), r)
}

// LoadScript evaluates src and registers every function it defines, either
// at top level or on module.exports, both as a Func and as a Predicate.
//
// As a Func the JavaScript function is called as fn(context, events, done)
// and must call done() (or done(err)) before returning. As a Predicate it is
// called as fn(context) and its result is coerced to a boolean.
// context.vars is a copy of the session variables; changes made through it
// are written back when the call returns.
func LoadScript(name, src string, r *Registry) error {
	vm := goja.New()
	module := vm.NewObject()
	exports := vm.NewObject()
	if err := module.Set("exports", exports); err != nil {
		return err
	}
	if err := vm.Set("module", module); err != nil {
		return err
	}

	if _, err := vm.RunScript(name, src); err != nil {
		return fmt.Errorf("evaluating %s: %w", name, err)
	}

	rt := &jsRuntime{vm: vm}
	register := func(obj *goja.Object) {
		for _, key := range obj.Keys() {
			fn, ok := goja.AssertFunction(obj.Get(key))
			if !ok {
				continue
			}
			r.Register(key, rt.fn(key, fn))
			r.RegisterPredicate(key, rt.predicate(key, fn))
		}
	}

	register(vm.GlobalObject())
	if obj := module.Get("exports").ToObject(vm); obj != nil {
		register(obj)
	}
	return nil
}

func (rt *jsRuntime) fn(name string, fn goja.Callable) Func {
	return func(ctx context.Context, s *core.Session, events core.Emitter) error {
		rt.mu.Lock()
		defer rt.mu.Unlock()

		var called bool
		var doneErr error
		done := func(call goja.FunctionCall) goja.Value {
			if called {
				return goja.Undefined()
			}
			called = true
			if arg := call.Argument(0); !goja.IsUndefined(arg) && !goja.IsNull(arg) {
				doneErr = fmt.Errorf("%s: %v", name, arg.Export())
			}
			return goja.Undefined()
		}

		vars := s.Vars.Snapshot()
		if err := rt.call(ctx, name, fn, rt.context(s, vars), rt.emitter(events), rt.vm.ToValue(done)); err != nil {
			return err
		}
		s.Vars.Replace(vars)

		if !called {
			return fmt.Errorf("%s: %w", name, ErrDoneNotCalled)
		}
		return doneErr
	}
}

func (rt *jsRuntime) predicate(name string, fn goja.Callable) Predicate {
	return func(ctx context.Context, s *core.Session) (bool, error) {
		rt.mu.Lock()
		defer rt.mu.Unlock()

		vars := s.Vars.Snapshot()
		var result goja.Value
		err := rt.callInto(ctx, name, fn, &result, rt.context(s, vars))
		if err != nil {
			return false, err
		}
		s.Vars.Replace(vars)
		return result.ToBoolean(), nil
	}
}

func (rt *jsRuntime) call(ctx context.Context, name string, fn goja.Callable, args ...goja.Value) error {
	var discard goja.Value
	return rt.callInto(ctx, name, fn, &discard, args...)
}

// callInto runs fn, interrupting the runtime if ctx ends first.
func (rt *jsRuntime) callInto(ctx context.Context, name string, fn goja.Callable, out *goja.Value, args ...goja.Value) error {
	stop := context.AfterFunc(ctx, func() {
		rt.vm.Interrupt(ctx.Err())
	})
	defer func() {
		stop()
		rt.vm.ClearInterrupt()
	}()

	v, err := fn(goja.Undefined(), args...)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*out = v
	return nil
}

func (rt *jsRuntime) context(s *core.Session, vars map[string]any) goja.Value {
	return rt.vm.ToValue(map[string]any{
		"vars":      vars,
		"sessionId": s.ID,
	})
}

func (rt *jsRuntime) emitter(events core.Emitter) goja.Value {
	return rt.vm.ToValue(map[string]any{
		"emit": func(name string, payload any) {
			events.Event(name, payload)
		},
		"counter": func(name string, delta int64) {
			events.Counter(name, delta)
		},
		"rate": func(name string) {
			events.Rate(name)
		},
	})
}
