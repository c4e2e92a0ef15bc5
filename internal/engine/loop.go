package engine

import (
	"context"
	"fmt"
	"reflect"

	"volley/internal/core"
	"volley/internal/flow"
	"volley/internal/processor"
)

// Variables bound by over loops besides the loop value.
const (
	LoopElementVar = "$loopElement"
	LoopIndexVar   = "$loopIndex"
)

func (c *Compiler) compileLoop(n flow.Loop) (Step, error) {
	body, err := c.compileSequence(n.Steps)
	if err != nil {
		return nil, err
	}

	var pred processor.Predicate
	if n.WhileTrue != "" {
		p, ok := c.opts.Processors.Predicate(n.WhileTrue)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrPredicateNotFound, n.WhileTrue)
		}
		pred = p
	} else if !n.Bounded() {
		return nil, ErrUnboundedLoop
	}

	name := n.Variable()

	return func(ctx context.Context, s *core.Session) error {
		iter, err := newIterator(n, s)
		if err != nil {
			return err
		}

		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !iter.next() {
				return nil
			}
			if pred != nil {
				more, err := pred(ctx, s)
				if err != nil {
					return fmt.Errorf("whileTrue %s: %w", n.WhileTrue, err)
				}
				if !more {
					return nil
				}
			}

			iter.bind(s.Vars, name)
			if err := body(ctx, s); err != nil {
				return err
			}
		}
	}, nil
}

// iterator walks the iterations of one loop execution.
type iterator struct {
	i     int
	limit int // -1 when unbounded
	over  []any
}

func newIterator(n flow.Loop, s *core.Session) (*iterator, error) {
	switch {
	case n.Over != nil:
		return &iterator{limit: len(n.Over), over: n.Over}, nil
	case n.OverVar != "":
		v, ok := s.Vars.Get(n.OverVar)
		if !ok {
			return nil, fmt.Errorf("loop over %q: variable not found", n.OverVar)
		}
		values, err := toSlice(v)
		if err != nil {
			return nil, fmt.Errorf("loop over %q: %w", n.OverVar, err)
		}
		return &iterator{limit: len(values), over: values}, nil
	case n.Count != nil && *n.Count >= 0:
		return &iterator{limit: *n.Count}, nil
	default:
		return &iterator{limit: -1}, nil
	}
}

func (it *iterator) next() bool {
	if it.limit >= 0 && it.i >= it.limit {
		return false
	}
	it.i++
	return true
}

func (it *iterator) bind(vars core.Variables, name string) {
	if it.over == nil {
		vars.Set(name, it.i)
		return
	}
	idx := it.i - 1
	vars.Set(name, it.over[idx])
	vars.Set(LoopElementVar, it.over[idx])
	vars.Set(LoopIndexVar, idx)
}

func toSlice(v any) ([]any, error) {
	if s, ok := v.([]any); ok {
		return s, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%T is not a list", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}
