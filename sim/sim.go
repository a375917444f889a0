// Package sim implements the presence-simulation harness named in §6
// (`--presence-simulation`, `SetPresenceSimulation`) and supplemented from
// original_source/atsc/controller/simulation.py, which the distilled spec
// only gestures at. It synthesizes vehicle and pedestrian presence on a
// seeded pseudo-random schedule so the controller can be exercised and
// demonstrated without real detector hardware.
package sim

import (
	"math"
	"math/rand"
	"time"

	"github.com/instancegaming/atsc/signal"
)

// ApproachState is the simulated detector's own three-state cycle,
// independent of the signal's interval state.
type ApproachState int

const (
	Idle ApproachState = iota
	Presence
	Gap
)

// randomRangeBiased mirrors the original's random_range_biased: draws a
// value in [start,end) biased toward the high end as bias approaches 1.
func randomRangeBiased(rng *rand.Rand, start, end int, bias float64) int {
	f := rng.Float64()
	biased := math.Pow(f, 1-bias)
	return start + int(biased*float64(end-start))
}

// Approach simulates one signal's detector: it flips the signal's
// Presence flag through Idle/Presence/Gap dwell times biased by whether
// the movement is an arterial through movement, a left turn, or a
// pedestrian head.
type Approach struct {
	rng        *rand.Rand
	Signal     *signal.Signal
	Arterial   bool
	LeftTurn   bool
	Pedestrian bool

	state      ApproachState
	elapsed    time.Duration
	trigger    time.Duration
	turnOnRed  bool
}

// NewApproach constructs a simulated approach for sig, seeded from rng so
// that an entire intersection's simulators share one reproducible stream.
func NewApproach(rng *rand.Rand, sig *signal.Signal, arterial, leftTurn, pedestrian bool) *Approach {
	a := &Approach{rng: rng, Signal: sig, Arterial: arterial, LeftTurn: leftTurn, Pedestrian: pedestrian}
	a.trigger = a.idleTime(true)
	return a
}

func (a *Approach) idleTime(first bool) time.Duration {
	minIdle := 1
	if first {
		minIdle = 0
	}
	var bias float64
	var maxSeconds int
	switch {
	case a.Pedestrian:
		maxSeconds = 3600
		if a.Arterial {
			bias = 0.5
		} else {
			bias = 0.9
		}
	case a.Arterial:
		maxSeconds = 60
		if a.LeftTurn {
			bias = 0.9
		} else {
			bias = 0.1
		}
	default:
		maxSeconds = 300
		if a.LeftTurn {
			bias = 0.9
		} else {
			bias = 0.5
		}
	}
	return time.Duration(randomRangeBiased(a.rng, minIdle, maxSeconds, bias)) * time.Second
}

func (a *Approach) presenceTime(afterIdle bool) time.Duration {
	if a.Pedestrian {
		return 200 * time.Millisecond
	}
	if a.Signal.State() == signal.GO || a.Signal.State() == signal.EXTEND {
		return time.Duration(1+a.rng.Intn(2)) * time.Second
	}
	if afterIdle {
		return time.Duration(randomRangeBiased(a.rng, 2, 15, 0.1)) * time.Second
	}
	return time.Duration(randomRangeBiased(a.rng, 1, 5, 0.1)) * time.Second
}

func (a *Approach) change() {
	a.elapsed = 0
	switch a.state {
	case Idle:
		if !a.Pedestrian && !a.LeftTurn {
			a.turnOnRed = a.rng.Intn(2) == 1
		} else {
			a.turnOnRed = false
		}
		a.state = Presence
		a.trigger = a.presenceTime(true)
	case Presence:
		if a.Pedestrian {
			a.state = Idle
			a.trigger = a.idleTime(false)
		} else {
			a.state = Gap
			a.trigger = time.Duration(randomRangeBiased(a.rng, 1, 5, 0.5)) * time.Second
		}
	case Gap:
		if a.rng.Intn(2) == 1 {
			a.state = Presence
			a.trigger = a.presenceTime(false)
		} else {
			a.state = Idle
			a.trigger = a.idleTime(false)
		}
	}
}

// Tick advances the approach's own timer by delta, flipping state and
// driving the underlying signal's Presence flag. It ignores time_freeze by
// design — the simulation is driven off the network/inputs clocks, not the
// time clock, mirroring IntersectionSimulator.tick's explicit
// `timing=True` override in the original.
func (a *Approach) Tick(delta time.Duration) {
	if !a.Signal.Active() && a.state == Presence {
		if a.turnOnRed {
			a.trigger = time.Duration(randomRangeBiased(a.rng, 4, 15, 0.6)) * time.Second
		} else {
			a.elapsed = 0
		}
	} else if a.Pedestrian && a.Signal.Active() && a.state == Idle {
		a.elapsed = 0
	}
	a.elapsed += delta
	if a.elapsed >= a.trigger {
		a.change()
	}
	a.Signal.SetPresence(a.state == Presence)
}

// Intersection drives a set of Approach simulators together from one
// seeded source.
type Intersection struct {
	rng        *rand.Rand
	Approaches []*Approach
	Enabled    bool
}

// NewIntersection seeds one rng shared by every signal's Approach
// simulator, matching IntersectionSimulator's single shared
// random.Random.
func NewIntersection(seed int64, enabled bool) *Intersection {
	return &Intersection{rng: rand.New(rand.NewSource(seed)), Enabled: enabled}
}

// Add registers sig for simulation.
func (in *Intersection) Add(sig *signal.Signal, arterial, leftTurn, pedestrian bool) {
	in.Approaches = append(in.Approaches, NewApproach(in.rng, sig, arterial, leftTurn, pedestrian))
}

// Tick advances every registered approach if the intersection simulator is
// enabled.
func (in *Intersection) Tick(delta time.Duration) {
	if !in.Enabled {
		return
	}
	for _, a := range in.Approaches {
		a.Tick(delta)
	}
}
