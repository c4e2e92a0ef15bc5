package core

import (
	"context"
	"errors"
)

// ErrMaxIterationsReached indicates the runner hit its iteration limit.
var ErrMaxIterationsReached = errors.New("max iterations reached")

// Limiter paces iteration starts.
type Limiter interface {
	Wait(ctx context.Context) error
}

// RunnerConfig controls execution behavior.
type RunnerConfig struct {
	MaxIterations int // 0 = unlimited
	WarmupIters   int // iterations before metrics count (per-actor)

	// Limiter, if set, is waited on before every iteration.
	Limiter Limiter
	// Prepare, if set, seeds each fresh session before it runs.
	Prepare func(s *Session)
}

// Runner controls iteration-level scenario execution.
// A Runner is NOT safe for concurrent use; each actor goroutine must have its own Runner.
// Every iteration gets a fresh Session.
type Runner struct {
	scenario  Scenario
	emitter   Emitter
	actorID   int
	config    RunnerConfig
	iteration int
}

// NewRunner creates a Runner for a single actor.
func NewRunner(scenario Scenario, emitter Emitter, actorID int, config RunnerConfig) *Runner {
	if emitter == nil {
		emitter = NullEmitter
	}
	return &Runner{
		scenario: scenario,
		emitter:  emitter,
		actorID:  actorID,
		config:   config,
	}
}

// RunIteration executes one complete scenario run in a new session.
// Returns nil on success, ErrMaxIterationsReached when limit hit, the limiter's
// error if waiting was cancelled, or the scenario error.
func (r *Runner) RunIteration(ctx context.Context) error {
	if r.config.MaxIterations > 0 && r.iteration >= r.config.MaxIterations {
		return ErrMaxIterationsReached
	}

	if r.config.Limiter != nil {
		if err := r.config.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	em := r.emitter
	if r.iteration < r.config.WarmupIters {
		em = NullEmitter
	}

	s := NewSession(r.actorID, em)
	if r.config.Prepare != nil {
		r.config.Prepare(s)
	}

	err := r.scenario.Run(ContextWithActorID(ctx, r.actorID), s)
	r.iteration++
	return err
}

// Iteration returns current iteration count (1-indexed, after RunIteration completes).
func (r *Runner) Iteration() int {
	return r.iteration
}

// IsWarmup returns true if still in warmup phase.
func (r *Runner) IsWarmup() bool {
	return r.iteration < r.config.WarmupIters
}
