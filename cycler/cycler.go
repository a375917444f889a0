// Package cycler implements the Ring/Barrier Cycler (§4.5): the scheduler
// that owns the current barrier, picks one phase per ring for concurrent
// service, waits for the selected phases to terminate, and advances to the
// next barrier.
//
// Reconcile is driven once per time-clock tick, after every Signal has
// already been advanced by that tick's Δ — this is what gives the ordering
// guarantee in §5 ("all signals observe the same Δ and are evaluated
// before the cycler re-runs phase selection") for free, and it paces
// barrier advancement to the time clock's rate instead of free-running, so
// an intersection with no demand anywhere does not busy-spin through
// barriers.
package cycler

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/instancegaming/atsc/barrier"
	"github.com/instancegaming/atsc/id"
	"github.com/instancegaming/atsc/phase"
	"github.com/instancegaming/atsc/ring"
)

// Mode is the cycler's current scheduling mode.
type Mode int

const (
	Pause Mode = iota
	Sequential
	Concurrent
)

func (m Mode) String() string {
	switch m {
	case Pause:
		return "PAUSE"
	case Sequential:
		return "SEQUENTIAL"
	case Concurrent:
		return "CONCURRENT"
	default:
		return "INVALID"
	}
}

// Cycler is the ring/barrier scheduler.
type Cycler struct {
	Rings    []*ring.Ring
	Barriers []*barrier.Barrier

	log zerolog.Logger

	mu              sync.Mutex
	mode            Mode
	barrierIdx      int // -1 until the first advance
	cyclePhases     map[*phase.Phase]bool
	barrierHistory  []*barrier.Barrier
	cycleCount      int
	servingRing     map[*ring.Ring]*phase.Phase
	ringOf          map[*phase.Phase]*ring.Ring
	allPhases       []*phase.Phase
	seqIdx          int
	lastServedPhase *phase.Phase
	faultHandler    func(error)
}

// New constructs a Cycler over rings and barriers, both fixed for the
// lifetime of the Cycler per §4.5.
func New(log zerolog.Logger, rings []*ring.Ring, barriers []*barrier.Barrier) *Cycler {
	c := &Cycler{
		Rings:       rings,
		Barriers:    barriers,
		log:         log.With().Str("component", "cycler").Logger(),
		barrierIdx:  -1,
		cyclePhases: make(map[*phase.Phase]bool),
		servingRing: make(map[*ring.Ring]*phase.Phase),
		ringOf:      make(map[*phase.Phase]*ring.Ring),
	}
	for _, r := range rings {
		for _, p := range r.Phases {
			c.ringOf[p] = r
			c.allPhases = append(c.allPhases, p)
		}
	}
	return c
}

// SetFaultHandler installs a callback invoked whenever a phase's Serve
// returns a non-nil error (an internal invariant violation per §7 — a
// context cancellation is never reported this way). This is the one place
// such faults surface (see the Errors paragraph of SPEC_FULL.md): the
// controller uses it to degrade to LS_FLASH.
func (c *Cycler) SetFaultHandler(fn func(error)) {
	c.mu.Lock()
	c.faultHandler = fn
	c.mu.Unlock()
}

// Mode reports the current scheduling mode.
func (c *Cycler) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// CycleCount reports how many full round-robins of the barrier list have
// completed.
func (c *Cycler) CycleCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycleCount
}

// CurrentBarrier returns the barrier currently occupied, or nil if none has
// been selected yet.
func (c *Cycler) CurrentBarrier() *barrier.Barrier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentBarrierLocked()
}

func (c *Cycler) currentBarrierLocked() *barrier.Barrier {
	if c.barrierIdx < 0 || len(c.Barriers) == 0 {
		return nil
	}
	return c.Barriers[c.barrierIdx]
}

// ActivePhaseIDs returns the IDs of every phase currently being served.
func (c *Cycler) ActivePhaseIDs() []id.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]id.ID, 0, len(c.servingRing))
	for _, p := range c.servingRing {
		ids = append(ids, p.ID)
	}
	return ids
}

// WaitingPhaseIDs returns the IDs of demanding phases not currently being
// served, restricted to the current barrier in Concurrent mode.
func (c *Cycler) WaitingPhaseIDs() []id.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []id.ID
	cb := c.currentBarrierLocked()
	for _, p := range c.allPhases {
		if !p.Demand() {
			continue
		}
		serving := false
		for _, sp := range c.servingRing {
			if sp == p {
				serving = true
				break
			}
		}
		if serving {
			continue
		}
		if c.mode == Concurrent && cb != nil && !cb.Contains(p) {
			continue
		}
		ids = append(ids, p.ID)
	}
	return ids
}

// SetMode changes the scheduling mode, returning whether it changed. A
// transition from Sequential into Concurrent follows §4.5's "Mode change
// semantics": the last phase served under Sequential is treated as already
// served for the remainder of the new cycle (so it is not immediately
// re-selected), and the next barrier to occupy is the one after that
// phase's home barrier.
func (c *Cycler) SetMode(m Mode) (changed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == m {
		return false
	}
	if c.mode == Sequential && m == Concurrent && c.lastServedPhase != nil {
		if home := c.homeBarrierLocked(c.lastServedPhase); home >= 0 {
			c.barrierIdx = home
			c.cyclePhases = map[*phase.Phase]bool{c.lastServedPhase: true}
		}
	}
	c.mode = m
	return true
}

func (c *Cycler) homeBarrierLocked(p *phase.Phase) int {
	for i, b := range c.Barriers {
		if b.Contains(p) {
			return i
		}
	}
	return -1
}

// Reconcile is the scheduler's single entry point, called once per
// time-clock tick after every Signal has already observed that tick's Δ.
func (c *Cycler) Reconcile(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.mode {
	case Pause:
		return
	case Sequential:
		c.reconcileSequentialLocked(ctx)
	case Concurrent:
		c.reconcileConcurrentLocked(ctx)
	}
}

func (c *Cycler) reconcileConcurrentLocked(ctx context.Context) {
	if c.barrierIdx < 0 {
		c.advanceBarrierLocked()
	}
	cb := c.currentBarrierLocked()
	for _, r := range c.Rings {
		if _, busy := c.servingRing[r]; busy {
			continue
		}
		p := c.choosePhaseLocked(r, cb)
		if p == nil {
			continue
		}
		c.servingRing[r] = p
		c.cyclePhases[p] = true
		c.lastServedPhase = p
		go c.runPhase(ctx, r, p)
	}
	if len(c.servingRing) == 0 {
		c.advanceBarrierLocked()
	}
}

func (c *Cycler) choosePhaseLocked(r *ring.Ring, cb *barrier.Barrier) *phase.Phase {
	for _, p := range r.Phases {
		if cb != nil && !cb.Contains(p) {
			continue
		}
		if c.cyclePhases[p] {
			continue
		}
		if !p.Demand() {
			continue
		}
		return p
	}
	return nil
}

func (c *Cycler) reconcileSequentialLocked(ctx context.Context) {
	if len(c.servingRing) > 0 || len(c.allPhases) == 0 {
		return
	}
	for i := 0; i < len(c.allPhases); i++ {
		idx := (c.seqIdx + i) % len(c.allPhases)
		p := c.allPhases[idx]
		if !p.Demand() {
			continue
		}
		c.seqIdx = (idx + 1) % len(c.allPhases)
		r := c.ringOf[p]
		c.servingRing[r] = p
		c.lastServedPhase = p
		go c.runPhase(ctx, r, p)
		return
	}
}

// runPhase serves p to completion and frees r for re-selection on a
// subsequent Reconcile call. It is the only place a phase.Serve goroutine
// is spawned, matching §4.4's guarantee that phase service is atomic with
// respect to the cycler.
func (c *Cycler) runPhase(ctx context.Context, r *ring.Ring, p *phase.Phase) {
	err := p.Serve(ctx)
	c.mu.Lock()
	delete(c.servingRing, r)
	handler := c.faultHandler
	c.mu.Unlock()
	if err != nil && ctx.Err() == nil {
		c.log.Error().Err(err).Str("phase", p.Tag).Msg("phase service ended with error")
		if handler != nil {
			handler(err)
		}
	}
}

func (c *Cycler) advanceBarrierLocked() {
	if len(c.Barriers) == 0 {
		return
	}
	if c.barrierIdx < 0 {
		c.barrierIdx = 0
	} else {
		c.barrierIdx = (c.barrierIdx + 1) % len(c.Barriers)
		if c.barrierIdx == 0 {
			c.cycleCount++
			c.cyclePhases = make(map[*phase.Phase]bool)
		}
	}
	next := c.Barriers[c.barrierIdx]
	c.barrierHistory = append(c.barrierHistory, next)
	if len(c.barrierHistory) > len(c.Barriers) {
		c.barrierHistory = c.barrierHistory[len(c.barrierHistory)-len(c.Barriers):]
	}
	c.log.Debug().Int("barrier", int(next.ID)).Msg("barrier advanced")
}
