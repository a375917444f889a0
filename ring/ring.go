// Package ring implements Ring (§4, §8 invariant 1): an ordered list of
// phases of which at most one may be active at any instant.
package ring

import (
	"fmt"

	"github.com/instancegaming/atsc/id"
	"github.com/instancegaming/atsc/phase"
)

// Ring is an ordered set of mutually exclusive phases.
type Ring struct {
	ID     id.ID
	Tag    string
	Phases []*phase.Phase
}

// New constructs a Ring over phases, reserving ID in reg.
func New(reg *id.Registry, ringID id.ID, tag string, phases []*phase.Phase) (*Ring, error) {
	if err := reg.Reserve(id.KindRing, ringID); err != nil {
		return nil, err
	}
	if len(phases) == 0 {
		return nil, fmt.Errorf("ring %d (%s): must contain at least one phase", ringID, tag)
	}
	return &Ring{ID: ringID, Tag: tag, Phases: phases}, nil
}

// ActivePhase returns the single active phase in this ring, or nil if none
// is active. Returns an error if more than one phase is active
// simultaneously — a violation of invariant 1 (§8) that the cycler must
// never be able to produce.
func (r *Ring) ActivePhase() (*phase.Phase, error) {
	var active *phase.Phase
	for _, p := range r.Phases {
		if p.Active() {
			if active != nil {
				return nil, fmt.Errorf("ring %d (%s): phases %d and %d active simultaneously", r.ID, r.Tag, active.ID, p.ID)
			}
			active = p
		}
	}
	return active, nil
}

// Idle reports whether no phase in this ring is currently active.
func (r *Ring) Idle() bool {
	for _, p := range r.Phases {
		if p.Active() {
			return false
		}
	}
	return true
}
