package ratelimit

import (
	"time"

	"crossword-loadgen/internal/config"
	"crossword-loadgen/internal/core"
)

// PhaseManager tracks elapsed time against a wave-mode load profile's
// phases, resolving the currently-active phase and its target virtual
// user count without the caller polling wall-clock arithmetic itself.
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
	elapsed := pm.Elapsed()
	var cumulative time.Duration
	for i, p := range pm.phases {
		cumulative += p.Duration
		if elapsed < cumulative {
			return i
		}
	}
	return len(pm.phases)
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

// TargetVirtualUsers returns the number of virtual users the current
// phase implies at this instant, interpolating linearly across a ramp
// phase's start/end bounds.
func (pm *PhaseManager) TargetVirtualUsers() int {
	phase := pm.CurrentPhase()
	if phase == nil {
		return 0
	}
	if phase.VirtualUsers > 0 {
		return phase.VirtualUsers
	}
	if phase.StartVirtualUsers == phase.EndVirtualUsers {
		return phase.StartVirtualUsers
	}
	elapsed := pm.Elapsed()
	var phaseStart time.Duration
	for i := 0; i < pm.CurrentPhaseIndex(); i++ {
		phaseStart += pm.phases[i].Duration
	}
	phaseElapsed := elapsed - phaseStart
	progress := float64(phaseElapsed) / float64(phase.Duration)
	if progress > 1 {
		progress = 1
	}
	delta := float64(phase.EndVirtualUsers - phase.StartVirtualUsers)
	return phase.StartVirtualUsers + int(delta*progress)
}

func (pm *PhaseManager) CurrentRPS() int {
	phase := pm.CurrentPhase()
	if phase == nil {
		return 0
	}
	return phase.RPS
}
