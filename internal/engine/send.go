package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"volley/internal/core"
	"volley/internal/flow"
	"volley/internal/template"
)

func (c *Compiler) compileSend(n flow.Send) (Step, error) {
	if err := checkGraphQL(n.Payload); err != nil {
		return nil, err
	}

	return func(ctx context.Context, s *core.Session) error {
		s.Events.Counter(core.CounterMessagesSent, 1)
		s.Events.Rate(core.RateSend)
		s.Events.Event(core.EventRequest, nil)

		if s.Conn == nil {
			return sendFailed(s, ErrNoConnection)
		}

		resolved, err := template.Resolve(n.Payload, s.Vars)
		if err != nil {
			return sendFailed(s, err)
		}
		data, err := encodePayload(resolved)
		if err != nil {
			return sendFailed(s, err)
		}

		sendCtx, cancel := context.WithTimeout(ctx, c.opts.SendTimeout)
		defer cancel()
		if err := s.Conn.Send(sendCtx, data); err != nil {
			return sendFailed(s, err)
		}

		s.SuccessCount++
		return nil
	}, nil
}

func sendFailed(s *core.Session, err error) error {
	s.Events.Event(core.EventError, err)
	s.Events.Counter(core.CounterSendErrors, 1)
	return &SendError{Err: err}
}

// encodePayload serializes maps and slices as JSON and everything else as
// its text form.
func encodePayload(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return []byte{}, nil
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	}

	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encoding payload: %w", err)
		}
		return data, nil
	default:
		return []byte(fmt.Sprint(v)), nil
	}
}

// checkGraphQL parses the query of a structured GraphQL message when it
// contains no placeholders.
func checkGraphQL(payload any) error {
	msg, ok := payload.(map[string]any)
	if !ok {
		return nil
	}

	query, ok := msg["query"].(string)
	if !ok {
		inner, _ := msg["payload"].(map[string]any)
		query, ok = inner["query"].(string)
	}
	if !ok || template.HasPlaceholders(query) {
		return nil
	}

	if _, err := parser.ParseQuery(&ast.Source{Name: "send", Input: query}); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidGraphQL, err)
	}
	return nil
}
