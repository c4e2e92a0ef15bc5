package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"volley/internal/core"
	"volley/internal/flow"
	"volley/internal/template"
	"volley/internal/ws"
)

// Scenario is a compiled flow: a connect step followed by one step per
// top-level node. It is immutable and shared by every session.
type Scenario struct {
	pipeline []Step
	pending  int
	logger   *slog.Logger
}

// Compile compiles every node of f once.
func (c *Compiler) Compile(f flow.Flow) (*Scenario, error) {
	steps, err := c.compileAll(f)
	if err != nil {
		return nil, err
	}

	pipeline := make([]Step, 0, len(steps)+1)
	pipeline = append(pipeline, c.connectStep())
	pipeline = append(pipeline, steps...)

	return &Scenario{
		pipeline: pipeline,
		pending:  f.PendingRequests(),
		logger:   c.logger,
	}, nil
}

// Len returns the number of pipeline steps, connect included.
func (sc *Scenario) Len() int {
	return len(sc.pipeline)
}

// PendingRequests returns the number of nodes that are not fixed pauses.
func (sc *Scenario) PendingRequests() int {
	return sc.pending
}

// Run executes the pipeline for s, stopping at the first error. The
// connection, if one was opened, is closed exactly once before Run
// returns.
func (sc *Scenario) Run(ctx context.Context, s *core.Session) (err error) {
	s.StartedAt = time.Now()
	s.PendingRequests = sc.pending
	s.SuccessCount = 0

	defer func() {
		if s.Conn != nil {
			if cerr := s.Conn.Close(); cerr != nil {
				sc.logger.Debug("closing connection", "session", s.ID, "error", cerr)
			}
		}
		if err != nil {
			s.Events.Counter(core.CounterSessionsFailed, 1)
		}
		s.Events.Event(core.EventCompleted, core.SessionResult{
			ID:       s.ID,
			Duration: time.Since(s.StartedAt),
			Sent:     s.SuccessCount,
			Err:      err,
		})
	}()

	for _, step := range sc.pipeline {
		if err = step(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) connectStep() Step {
	return func(ctx context.Context, s *core.Session) error {
		s.Events.Event(core.EventStarted, nil)

		conn, err := c.dial(ctx, s)
		if err != nil {
			code := errorCode(err)
			s.Events.Event(core.EventError, code)
			s.Events.Counter(core.CounterConnectErrors, 1)
			s.Reset()
			return &ConnectError{Code: code, Err: err}
		}

		c.sendInit(ctx, s, conn)
		s.Conn = conn
		return nil
	}
}

func (c *Compiler) dial(ctx context.Context, s *core.Session) (core.Conn, error) {
	target, err := template.Substitute(c.opts.Target, s.Vars)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ws.ErrInvalidURL, err)
	}
	headers, err := template.SubstituteMap(c.opts.Headers, s.Vars)
	if err != nil {
		return nil, fmt.Errorf("resolving headers: %w", err)
	}
	protocols, header := ws.Subprotocols(c.opts.Subprotocols, headers)

	return c.opts.Dialer.Dial(core.ContextWithActorID(ctx, s.ID), target, protocols, header)
}

// sendInit sends the connection_init message. Failures are logged only.
func (c *Compiler) sendInit(ctx context.Context, s *core.Session, conn core.Conn) {
	payload := c.opts.ConnectionInit
	if payload == nil {
		payload = map[string]any{}
	} else if resolved, err := template.Resolve(payload, s.Vars); err == nil {
		payload = resolved
	} else {
		c.logger.Warn("resolving connection_init payload", "session", s.ID, "error", err)
	}

	data, err := json.Marshal(map[string]any{"type": "connection_init", "payload": payload})
	if err != nil {
		c.logger.Warn("encoding connection_init", "session", s.ID, "error", err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.opts.SendTimeout)
	defer cancel()
	if err := conn.Send(sendCtx, data); err != nil {
		c.logger.Warn("sending connection_init", "session", s.ID, "error", err)
	}
}
