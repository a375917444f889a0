// Package barrier implements Barrier (§4, §8 invariant 2/3): a compatible
// group of phases across rings. Crossing a barrier requires every ring to
// finish its current phase first.
package barrier

import (
	"fmt"

	"github.com/instancegaming/atsc/id"
	"github.com/instancegaming/atsc/phase"
)

// Barrier is a compatibility group of phases drawn from across rings.
type Barrier struct {
	ID     id.ID
	Tag    string
	Phases []*phase.Phase
}

// New constructs a Barrier over phases, reserving ID in reg.
func New(reg *id.Registry, barrierID id.ID, tag string, phases []*phase.Phase) (*Barrier, error) {
	if err := reg.Reserve(id.KindBarrier, barrierID); err != nil {
		return nil, err
	}
	if len(phases) == 0 {
		return nil, fmt.Errorf("barrier %d (%s): must contain at least one phase", barrierID, tag)
	}
	return &Barrier{ID: barrierID, Tag: tag, Phases: phases}, nil
}

// Contains reports whether p belongs to this barrier's compatibility
// group.
func (b *Barrier) Contains(p *phase.Phase) bool {
	for _, bp := range b.Phases {
		if bp == p {
			return true
		}
	}
	return false
}
