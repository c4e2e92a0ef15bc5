// Package engine compiles flows into executable steps and runs them as
// WebSocket sessions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"volley/internal/core"
	"volley/internal/flow"
	"volley/internal/processor"
	"volley/internal/ws"
)

// DefaultSendTimeout bounds a single message write.
const DefaultSendTimeout = 10 * time.Second

// Step is one compiled action. The session is shared by every step of a run.
type Step func(ctx context.Context, s *core.Session) error

// Dialer opens connections for the connect step.
type Dialer interface {
	Dial(ctx context.Context, target string, protocols []string, header http.Header) (core.Conn, error)
}

// Options configure a Compiler.
type Options struct {
	Target       string
	Subprotocols []string
	// Headers are templates resolved per session.
	Headers map[string]string
	// ConnectionInit is the payload of the connection_init message.
	ConnectionInit any

	SendTimeout time.Duration
	// ThinkJitter randomizes pauses by up to this percentage either way.
	ThinkJitter float64

	Processors       *processor.Registry
	StrictProcessors bool

	Dialer Dialer
	Logger *slog.Logger
}

// Compiler turns flow nodes into steps.
type Compiler struct {
	opts   Options
	logger *slog.Logger
}

func NewCompiler(opts Options) *Compiler {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Processors == nil {
		opts.Processors = processor.NewRegistry()
	}
	if opts.Dialer == nil {
		opts.Dialer = ws.NewDialer(ws.Options{})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{opts: opts, logger: logger}
}

// CompileStep compiles a single node. Loops are compiled recursively.
func (c *Compiler) CompileStep(node flow.Node) (Step, error) {
	switch n := node.(type) {
	case flow.Send:
		return c.compileSend(n)
	case flow.Think:
		return c.compileThink(n), nil
	case flow.Loop:
		return c.compileLoop(n)
	case flow.Call:
		return c.compileCall(n)
	default:
		return nil, fmt.Errorf("unsupported node %T", node)
	}
}

// compileSequence compiles nodes into one step running them in order and
// stopping at the first error.
func (c *Compiler) compileSequence(nodes flow.Flow) (Step, error) {
	steps, err := c.compileAll(nodes)
	if err != nil {
		return nil, err
	}
	return sequence(steps), nil
}

func (c *Compiler) compileAll(nodes flow.Flow) ([]Step, error) {
	steps := make([]Step, 0, len(nodes))
	var errs []error
	for i, node := range nodes {
		step, err := c.CompileStep(node)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s step %d: %w", node.Kind(), i, err))
			continue
		}
		steps = append(steps, step)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return steps, nil
}

func sequence(steps []Step) Step {
	return func(ctx context.Context, s *core.Session) error {
		for _, step := range steps {
			if err := step(ctx, s); err != nil {
				return err
			}
		}
		return nil
	}
}

func (c *Compiler) compileCall(n flow.Call) (Step, error) {
	res := c.opts.Processors.Lookup(n.Function)
	if !res.Found() {
		if c.opts.StrictProcessors {
			return nil, fmt.Errorf("%w: %q", ErrProcessorNotFound, n.Function)
		}
		c.logger.Warn("processor function not found, step will be skipped", "function", n.Function)
		return func(ctx context.Context, s *core.Session) error {
			return nil
		}, nil
	}

	return func(ctx context.Context, s *core.Session) error {
		if err := res.Func(ctx, s, s.Events); err != nil {
			return fmt.Errorf("function %s: %w", n.Function, err)
		}
		return nil
	}, nil
}
