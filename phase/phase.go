// Package phase implements Phase, the unit of scheduling: a set of signals
// that run together (§4.4), such as a through movement and its concurrent
// pedestrian head.
package phase

import (
	"context"
	"fmt"
	"sync"

	"github.com/instancegaming/atsc/id"
	"github.com/instancegaming/atsc/signal"
)

// Phase is a set of signals activated and monitored together.
type Phase struct {
	ID      id.ID
	Tag     string
	Signals []*signal.Signal

	mu     sync.Mutex
	demand bool // explicit phase-level demand, ORed with signal demand
}

// New constructs a Phase over signals, reserving ID in reg.
func New(reg *id.Registry, phaseID id.ID, tag string, signals []*signal.Signal) (*Phase, error) {
	if err := reg.Reserve(id.KindPhase, phaseID); err != nil {
		return nil, err
	}
	if len(signals) == 0 {
		return nil, fmt.Errorf("phase %d (%s): must contain at least one signal", phaseID, tag)
	}
	return &Phase{ID: phaseID, Tag: tag, Signals: signals}, nil
}

// Demand is the OR of every contained signal's demand and the phase-level
// demand flag set via SetDemand (§6 SetPhaseDemand).
func (p *Phase) Demand() bool {
	p.mu.Lock()
	explicit := p.demand
	p.mu.Unlock()
	if explicit {
		return true
	}
	for _, s := range p.Signals {
		if s.Demand() {
			return true
		}
	}
	return false
}

// SetDemand sets the phase-level demand flag (distinct from any contained
// signal's own demand), returning whether it changed. Per the Open
// Question resolution in SPEC_FULL.md, withdrawing demand (v == false)
// never cancels an in-flight Serve — it only affects whether this phase is
// selected again at the next barrier occupancy.
func (p *Phase) SetDemand(v bool) (changed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	changed = p.demand != v
	p.demand = v
	return changed
}

// Active reports true iff any contained signal is non-STOP.
func (p *Phase) Active() bool {
	for _, s := range p.Signals {
		if s.State() != signal.STOP {
			return true
		}
	}
	return false
}

// Serve concurrently starts every contained signal and returns once every
// one of them has returned to STOP (§4.4). It implements the recycle
// sub-protocol: when a contained signal terminates but the phase as a
// whole is still active, and that signal has both Recycle and Free set
// (the conjunctive reading decided in SPEC_FULL.md), it is re-served
// immediately rather than left idle for the remainder of the phase window.
//
// Phase service is atomic with respect to the cycler: the caller must not
// invoke Serve again for this phase until this call returns.
func (p *Phase) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make(chan error, len(p.Signals))
	for _, s := range p.Signals {
		wg.Add(1)
		go func(s *signal.Signal) {
			defer wg.Done()
			errs <- p.serveOne(ctx, s)
		}(s)
	}
	wg.Wait()
	close(errs)
	var first error
	for err := range errs {
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

// serveOne drives a single contained signal's recycle loop: it serves the
// signal, and if it terminates with the phase still active and the signal
// both Recycle- and Free-flagged, serves it again.
func (p *Phase) serveOne(ctx context.Context, s *signal.Signal) error {
	for {
		if err := s.Serve(ctx); err != nil {
			if err == signal.ErrNoDemand() {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if !(s.Recycle() && s.Free() && p.Active()) {
			return nil
		}
		if !s.Demand() {
			return nil
		}
	}
}
