package ratelimit

import (
	"time"

	"volley/internal/config"
	"volley/internal/core"
)

// PhaseManager reports the target actor count and arrival rate of a load
// profile at the current time.
type PhaseManager struct {
	phases    []config.Phase
	startTime time.Time
	clock     core.Clock
}

// NewPhaseManager creates a PhaseManager with a real clock.
func NewPhaseManager(phases []config.Phase) *PhaseManager {
	return NewPhaseManagerWithClock(phases, core.RealClock{})
}

// NewPhaseManagerWithClock creates a PhaseManager with a custom clock (for testing).
func NewPhaseManagerWithClock(phases []config.Phase, clock core.Clock) *PhaseManager {
	return &PhaseManager{
		phases:    phases,
		startTime: clock.Now(),
		clock:     clock,
	}
}

func (pm *PhaseManager) Elapsed() time.Duration {
	return pm.clock.Since(pm.startTime)
}

func (pm *PhaseManager) CurrentPhaseIndex() int {
	idx, _ := pm.locate()
	return idx
}

// locate returns the current phase index and how far into it we are (0..1).
func (pm *PhaseManager) locate() (int, float64) {
	elapsed := pm.Elapsed()
	var start time.Duration
	for i, p := range pm.phases {
		if elapsed < start+p.Duration {
			return i, float64(elapsed-start) / float64(p.Duration)
		}
		start += p.Duration
	}
	return len(pm.phases), 1
}

func (pm *PhaseManager) CurrentPhase() *config.Phase {
	idx := pm.CurrentPhaseIndex()
	if idx >= len(pm.phases) {
		return nil
	}
	return &pm.phases[idx]
}

func (pm *PhaseManager) IsComplete() bool {
	return pm.CurrentPhaseIndex() >= len(pm.phases)
}

// TargetActors returns the actor count for now, interpolating linearly
// between StartActors and EndActors when the phase does not fix Actors.
func (pm *PhaseManager) TargetActors() int {
	idx, progress := pm.locate()
	if idx >= len(pm.phases) {
		return 0
	}
	phase := pm.phases[idx]
	if phase.Actors > 0 {
		return phase.Actors
	}
	return phase.StartActors + int(float64(phase.EndActors-phase.StartActors)*progress)
}

// CurrentRate returns the session arrival rate for now. With RampTo set the
// rate moves linearly from RPS to RampTo over the phase.
func (pm *PhaseManager) CurrentRate() float64 {
	idx, progress := pm.locate()
	if idx >= len(pm.phases) {
		return 0
	}
	phase := pm.phases[idx]
	if phase.RampTo == 0 {
		return phase.RPS
	}
	return phase.RPS + (phase.RampTo-phase.RPS)*progress
}
