package flow

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// rawNode mirrors the script representation of a node; exactly one of
// send, think, loop and function must be present.
type rawNode struct {
	Send      *yaml.Node `yaml:"send"`
	Think     *yaml.Node `yaml:"think"`
	Loop      *Flow      `yaml:"loop"`
	Count     *int       `yaml:"count"`
	Over      *yaml.Node `yaml:"over"`
	LoopValue string     `yaml:"loopValue"`
	WhileTrue string     `yaml:"whileTrue"`
	Function  *string    `yaml:"function"`
}

// UnmarshalYAML decodes a sequence of node mappings.
func (f *Flow) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: flow must be a sequence", value.Line)
	}

	out := make(Flow, 0, len(value.Content))
	var errs []error
	for i, item := range value.Content {
		n, err := decodeNode(item)
		if err != nil {
			errs = append(errs, fmt.Errorf("step %d (line %d): %w", i, item.Line, err))
			continue
		}
		out = append(out, n)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	*f = out
	return nil
}

func decodeNode(item *yaml.Node) (Node, error) {
	if item.Kind != yaml.MappingNode {
		return nil, errors.New("step must be a mapping")
	}

	var raw rawNode
	if err := item.Decode(&raw); err != nil {
		return nil, err
	}

	var present []string
	if raw.Send != nil {
		present = append(present, "send")
	}
	if raw.Think != nil {
		present = append(present, "think")
	}
	if raw.Loop != nil {
		present = append(present, "loop")
	}
	if raw.Function != nil {
		present = append(present, "function")
	}
	switch len(present) {
	case 0:
		return nil, errors.New("step needs one of send, think, loop, function")
	case 1:
	default:
		return nil, fmt.Errorf("step has more than one action: %s", strings.Join(present, ", "))
	}

	switch present[0] {
	case "send":
		var payload any
		if err := raw.Send.Decode(&payload); err != nil {
			return nil, fmt.Errorf("send: %w", err)
		}
		return Send{Payload: payload}, nil
	case "think":
		return decodeThink(raw.Think)
	case "loop":
		return decodeLoop(raw)
	default:
		if *raw.Function == "" {
			return nil, errors.New("function: name is empty")
		}
		return Call{Function: *raw.Function}, nil
	}
}

func decodeThink(n *yaml.Node) (Node, error) {
	var seconds float64
	if err := n.Decode(&seconds); err == nil {
		if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
			return nil, fmt.Errorf("think: invalid duration %v", seconds)
		}
		return Think{Duration: time.Duration(seconds * float64(time.Second))}, nil
	}

	var expr string
	if err := n.Decode(&expr); err != nil || !strings.Contains(expr, "${") {
		return nil, fmt.Errorf("think: expected seconds or a template, got %q", n.Value)
	}
	return Think{Expr: expr}, nil
}

func decodeLoop(raw rawNode) (Node, error) {
	l := Loop{
		Steps:     *raw.Loop,
		Count:     raw.Count,
		LoopValue: raw.LoopValue,
		WhileTrue: raw.WhileTrue,
	}

	if raw.Over != nil {
		switch raw.Over.Kind {
		case yaml.SequenceNode:
			var values []any
			if err := raw.Over.Decode(&values); err != nil {
				return nil, fmt.Errorf("over: %w", err)
			}
			if values == nil {
				values = []any{}
			}
			l.Over = values
		case yaml.ScalarNode:
			l.OverVar = raw.Over.Value
		default:
			return nil, errors.New("over: expected a list or a variable name")
		}
	}

	if l.Count != nil && (l.Over != nil || l.OverVar != "") {
		return nil, errors.New("loop: count and over are mutually exclusive")
	}
	if !l.Bounded() && l.WhileTrue == "" {
		return nil, errors.New("loop: needs count, over or whileTrue")
	}
	return l, nil
}
