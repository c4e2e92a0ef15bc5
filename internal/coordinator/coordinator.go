// Package coordinator runs virtual sessions: actors that repeat a compiled
// scenario, either a fixed number at once or driven by a load profile.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"volley/internal/config"
	"volley/internal/core"
	"volley/internal/progress"
	"volley/internal/ratelimit"
)

// phaseTickInterval is how often a profile run re-evaluates the current
// phase, the actor target and the arrival rate.
const phaseTickInterval = 100 * time.Millisecond

// Coordinator runs actors. Each actor runs the scenario in a fresh session,
// one iteration after the other, until it is stopped, its context ends or
// it reaches the iteration limit. A failed session does not stop its actor.
type Coordinator struct {
	emitter core.Emitter
	logger  *slog.Logger

	wg     sync.WaitGroup
	lastID atomic.Int64
	active atomic.Int32

	// stoppable holds the stop channels of profile-managed actors, oldest
	// first.
	mu        sync.Mutex
	stoppable []chan struct{}
}

func NewCoordinator(emitter core.Emitter, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		emitter: emitter,
		logger:  logger,
	}
}

// Spawn starts count actors with no iteration limit.
func (c *Coordinator) Spawn(ctx context.Context, count int, scenario core.Scenario) {
	c.SpawnWithConfig(ctx, count, scenario, core.RunnerConfig{})
}

// SpawnWithConfig starts count actors, each driving its own core.Runner.
func (c *Coordinator) SpawnWithConfig(ctx context.Context, count int, scenario core.Scenario, cfg core.RunnerConfig) {
	for range count {
		c.launch(ctx, scenario, cfg, nil)
	}
}

// Wait blocks until every actor has returned.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// ActiveActors returns the number of actors still running.
func (c *Coordinator) ActiveActors() int {
	return int(c.active.Load())
}

func (c *Coordinator) launch(ctx context.Context, scenario core.Scenario, cfg core.RunnerConfig, stop <-chan struct{}) {
	id := int(c.lastID.Add(1))
	c.active.Add(1)
	c.wg.Add(1)

	go func() {
		defer func() {
			c.active.Add(-1)
			c.wg.Done()
		}()
		defer c.recoverPanic(id)

		c.loop(ctx, core.NewRunner(scenario, c.emitter, id, cfg), id, stop)
	}()
}

func (c *Coordinator) loop(ctx context.Context, runner *core.Runner, id int, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		default:
		}

		err := runner.RunIteration(ctx)
		if err == nil {
			continue
		}
		if errors.Is(err, core.ErrMaxIterationsReached) || ctx.Err() != nil {
			return
		}
		c.logger.Debug("session failed", "actor", id, "iteration", runner.Iteration(), "error", err)
	}
}

// recoverPanic turns an actor panic into an error event.
func (c *Coordinator) recoverPanic(id int) {
	r := recover()
	if r == nil {
		return
	}
	c.logger.Error("actor panicked", "actor", id, "panic", r)
	c.emitter.Event(core.EventError, fmt.Errorf("actor %d panic: %v", id, r))
}

func (c *Coordinator) launchStoppable(ctx context.Context, scenario core.Scenario, cfg core.RunnerConfig) {
	stop := make(chan struct{})
	c.mu.Lock()
	c.stoppable = append(c.stoppable, stop)
	c.mu.Unlock()
	c.launch(ctx, scenario, cfg, stop)
}

// stop signals the n oldest profile-managed actors. They finish their
// current session before returning.
func (c *Coordinator) stop(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n = min(n, len(c.stoppable))
	for _, ch := range c.stoppable[:n] {
		close(ch)
	}
	c.stoppable = c.stoppable[n:]
}

func (c *Coordinator) stopAll() {
	c.mu.Lock()
	n := len(c.stoppable)
	c.mu.Unlock()
	c.stop(n)
}

// scale starts or stops profile-managed actors until their count meets
// target. Stopped actors finishing their last session are not counted.
func (c *Coordinator) scale(ctx context.Context, target int, scenario core.Scenario, cfg core.RunnerConfig) {
	c.mu.Lock()
	current := len(c.stoppable)
	c.mu.Unlock()
	switch {
	case current < target:
		for range target - current {
			c.launchStoppable(ctx, scenario, cfg)
		}
	case current > target:
		c.stop(current - target)
	}
}

// RunWithProfile drives the actor count and arrival rate through the phases
// of profile. It returns when the profile completes or ctx ends; call Wait
// to wait for running sessions to finish.
func (c *Coordinator) RunWithProfile(ctx context.Context, profile *config.LoadProfile, scenario core.Scenario, limiter *ratelimit.RateLimiter, prog *progress.Progress, cfg core.RunnerConfig) {
	pm := ratelimit.NewPhaseManager(profile.Phases)
	if limiter != nil && cfg.Limiter == nil {
		cfg.Limiter = limiter
	}

	say := func(format string, args ...any) {
		if prog != nil {
			prog.Printf(format, args...)
			return
		}
		c.logger.Info(fmt.Sprintf(format, args...))
	}
	say("Starting load profile with %d phases, total duration: %v", len(profile.Phases), profile.TotalDuration())

	ticker := time.NewTicker(phaseTickInterval)
	defer ticker.Stop()

	phaseIdx := -1
	for {
		select {
		case <-ctx.Done():
			c.stopAll()
			return
		case <-ticker.C:
		}

		if pm.IsComplete() {
			c.stopAll()
			return
		}

		if idx := pm.CurrentPhaseIndex(); idx != phaseIdx {
			phaseIdx = idx
			announcePhase(say, pm)
		}
		c.scale(ctx, pm.TargetActors(), scenario, cfg)
		if limiter != nil {
			limiter.SetRate(pm.CurrentRate())
		}
	}
}

func announcePhase(say func(string, ...any), pm *ratelimit.PhaseManager) {
	phase := pm.CurrentPhase()
	if phase == nil {
		return
	}
	if phase.RPS > 0 {
		say("Phase: %s (duration: %v, target actors: %d, arrival rate: %g/s)",
			phase.Name, phase.Duration, pm.TargetActors(), pm.CurrentRate())
		return
	}
	say("Phase: %s (duration: %v, target actors: %d)", phase.Name, phase.Duration, pm.TargetActors())
}
