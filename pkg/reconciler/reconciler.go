// Package reconciler is the Guards Coordinator: it evaluates a Watcher
// Proposal through six fixed-order guards, each able to narrow or clear it,
// and returns the GuardDecision the Delta Pipeline applies.
package reconciler

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/fenwick-quant/soakctl/pkg/log"
	"github.com/fenwick-quant/soakctl/pkg/metrics"
	"github.com/fenwick-quant/soakctl/pkg/types"
)

// Config carries every guard's tunable threshold.
type Config struct {
	WarmupWindowEnd       int // iterations 1..WarmupWindowEnd are non-blocking
	RampDownWindowEnd     int // carried in Config but read by no guard: iterations after WarmupWindowEnd use steady-state thresholds, with no interpolation
	CooldownIterations    int
	VelocityWindow        int
	VelocityCap           map[string]float64
	OscillationWindow     int
	FreezeConsecutivePass int
	MultiFailThreshold    int
	// FreezeHysteresisIterations, when non-zero, requires that many
	// consecutive failing iterations before a frozen state releases; zero
	// (the default) releases immediately on the first non-clean-pass
	// iteration.
	FreezeHysteresisIterations int
}

// DefaultConfig returns the production guard thresholds: cooldown_iterations
// =2, velocity_window=5, velocity_cap derived as (hi-lo)/4 per parameter
// unless overridden.
func DefaultConfig() Config {
	caps := make(map[string]float64, len(types.ParamBounds))
	for k, b := range types.ParamBounds {
		caps[k] = (b.Hi - b.Lo) / 4
	}
	return Config{
		WarmupWindowEnd:       4,
		RampDownWindowEnd:     6,
		CooldownIterations:    2,
		VelocityWindow:        5,
		VelocityCap:           caps,
		OscillationWindow:          4,
		FreezeConsecutivePass:      5,
		MultiFailThreshold:         3,
		FreezeHysteresisIterations: 0,
	}
}

// Coordinator evaluates guards in a fixed order: warm-up/ramp-down,
// cooldown, velocity, oscillation, freeze, multi-fail.
type Coordinator struct {
	cfg    Config
	logger zerolog.Logger
	mu     sync.Mutex
}

// New constructs a Coordinator.
func New(cfg Config) *Coordinator {
	return &Coordinator{cfg: cfg, logger: log.WithComponent("reconciler")}
}

// Evaluate runs proposal through every guard in order and returns the
// resulting GuardDecision. driverCategories is the distinct set of driver
// tags that fired this iteration (for the multi-fail guard); kpiVerdict is
// the Watcher's raw verdict before any warm-up softening.
func (c *Coordinator) Evaluate(iteration int, proposal types.Proposal, state *types.TuningState, driverCategories []types.DriverTag, kpiVerdict types.KPIVerdict) types.GuardDecision {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.GuardsDuration)

	c.mu.Lock()
	defer c.mu.Unlock()

	working := proposal.Clone()
	var tags []types.SkipReason
	warmupSoftened := false

	// 1. Warm-up / Ramp-down.
	if iteration <= c.cfg.WarmupWindowEnd {
		warmupSoftened = true
		tags = append(tags, types.SkipWarmupSoftened)
	}
	_ = kpiVerdict // verdict softening (FAIL->WARN) is applied by the caller using warmupSoftened

	// 2. Cooldown.
	for key := range working.Deltas {
		if until, ok := state.CooldownUntil[key]; ok && iteration < until {
			delete(working.Deltas, key)
			tags = append(tags, types.SkipCooldownActive)
		}
	}

	// 3. Velocity.
	for key, delta := range working.Deltas {
		cap := c.cfg.VelocityCap[key]
		used := trailingVelocity(state.VelocityWindow[key], iteration, c.cfg.VelocityWindow)
		remaining := cap - used
		if remaining <= 0 {
			delete(working.Deltas, key)
			tags = append(tags, types.SkipVelocityExceeded)
			continue
		}
		absDelta := delta
		if absDelta < 0 {
			absDelta = -absDelta
		}
		if absDelta > remaining {
			if delta < 0 {
				working.Deltas[key] = -remaining
			} else {
				working.Deltas[key] = remaining
			}
		}
	}

	// 4. Oscillation.
	for key := range working.Deltas {
		if frozenUntil, ok := state.OscillationFrozenTil[key]; ok && iteration < frozenUntil {
			delete(working.Deltas, key)
			tags = append(tags, types.SkipOscillation)
			continue
		}
		if isOscillating(state.History, key, c.cfg.OscillationWindow) {
			delete(working.Deltas, key)
			tags = append(tags, types.SkipOscillation)
			state.OscillationFrozenTil[key] = iteration + c.cfg.CooldownIterations
			metrics.GuardTripsTotal.WithLabelValues(string(types.SkipOscillation)).Inc()
		}
	}

	// 5. Freeze.
	freezeOn := state.Frozen
	if kpiVerdict == types.VerdictPass && len(driverCategories) == 0 {
		state.ConsecutivePasses++
		state.ConsecutiveFailures = 0
	} else {
		state.ConsecutivePasses = 0
		state.ConsecutiveFailures++
		if state.Frozen {
			hysteresis := c.cfg.FreezeHysteresisIterations
			if hysteresis == 0 || state.ConsecutiveFailures >= hysteresis {
				state.Frozen = false
				freezeOn = false
				state.ConsecutiveFailures = 0
			}
		}
	}
	if state.ConsecutivePasses >= c.cfg.FreezeConsecutivePass {
		state.Frozen = true
		freezeOn = true
	}
	if freezeOn {
		working.Deltas = map[string]float64{}
		tags = append(tags, types.SkipFreezeTriggered)
		metrics.GuardTripsTotal.WithLabelValues(string(types.SkipFreezeTriggered)).Inc()
	}

	// 6. Multi-fail.
	if len(driverCategories) >= c.cfg.MultiFailThreshold {
		working.Deltas = map[string]float64{}
		tags = append(tags, types.SkipMultiFailSuppress)
		metrics.GuardTripsTotal.WithLabelValues(string(types.SkipMultiFailSuppress)).Inc()
	}

	outcome := types.GuardApply
	switch {
	case len(working.Deltas) == 0:
		outcome = types.GuardSkip
	case len(working.Deltas) < len(proposal.Deltas):
		outcome = types.GuardPartial
	}

	return types.GuardDecision{
		Outcome:  outcome,
		Tags:     tags,
		Proposal: working,
		FreezeOn: freezeOn,
	}
}

// trailingVelocity sums |Δ| contributions within the trailing window
// ending at iteration (inclusive of iteration-window+1..iteration).
func trailingVelocity(samples []types.VelocitySample, iteration, window int) float64 {
	var sum float64
	cutoff := iteration - window + 1
	for _, s := range samples {
		if s.Iteration >= cutoff && s.Iteration <= iteration {
			sum += s.AbsDelta
		}
	}
	return sum
}

// isOscillating reports whether the trailing applied-delta signs for key
// form an A→B→A alternating pattern within the last window entries.
func isOscillating(history []types.AppliedDelta, key string, window int) bool {
	var signs []int
	for i := len(history) - 1; i >= 0 && len(signs) < window; i-- {
		if history[i].Param != key {
			continue
		}
		switch {
		case history[i].Delta > 0:
			signs = append(signs, 1)
		case history[i].Delta < 0:
			signs = append(signs, -1)
		}
	}
	if len(signs) < 3 {
		return false
	}
	// signs is newest-first; an A->B->A pattern is sign[0] != sign[1] and
	// sign[1] != sign[2] and sign[0] == sign[2].
	return signs[0] != signs[1] && signs[1] != signs[2] && signs[0] == signs[2]
}
