// Package fieldoutput implements the lowest-level actuator abstraction: a
// tri-state output (OFF, ON, FLASHING) that owns a single boolean scalar
// driven onto the field bus or a GPIO pin.
package fieldoutput

import (
	"fmt"
	"sync"

	"github.com/instancegaming/atsc/id"
)

// State is the tri-state output value of a FieldOutput.
type State int

const (
	OFF State = iota
	ON
	FLASHING
)

func (s State) String() string {
	switch s {
	case OFF:
		return "OFF"
	case ON:
		return "ON"
	case FLASHING:
		return "FLASHING"
	default:
		return "INVALID"
	}
}

// FieldOutput is a single binary actuator. It is created at boot and
// mutated only by its owning signal (via Set) and by the flash clock (via
// TickFlash); no other code may write to it. Destroyed at shutdown by
// simply dropping the reference — there is no external resource to
// release at this layer (transport-specific sinks, e.g. a GPIO pin, own
// their own lifecycle).
type FieldOutput struct {
	ID   id.ID
	Name string

	mu     sync.Mutex
	state  State
	scalar bool
}

// New constructs a FieldOutput, reserving ID in reg. Starts OFF/false.
func New(reg *id.Registry, outputID id.ID, name string) (*FieldOutput, error) {
	if err := reg.Reserve(id.KindFieldOutput, outputID); err != nil {
		return nil, err
	}
	return &FieldOutput{ID: outputID, Name: name}, nil
}

// Set transitions the output to state, applying the edge rules from §4.2:
//   - OFF -> any: scalar becomes false immediately for OFF, true for ON.
//   - entering FLASHING from OFF: scalar starts false (dark); the next
//     flash tick illuminates it.
//   - entering FLASHING from ON: the current (true) scalar is preserved.
//   - FLASHING -> FLASHING: no-op, scalar untouched (TickFlash owns toggling).
func (f *FieldOutput) Set(state State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch state {
	case OFF:
		f.scalar = false
	case ON:
		f.scalar = true
	case FLASHING:
		if f.state == OFF {
			f.scalar = false
		}
		// from ON: scalar already true, preserved.
		// from FLASHING: no-op.
	default:
		panic(fmt.Sprintf("fieldoutput: invalid state %d", state))
	}
	f.state = state
}

// TickFlash is invoked by the flash clock on every flash tick. If the
// output is currently FLASHING, it inverts the scalar; otherwise it is a
// no-op. Flash ticks never change State, only the scalar.
func (f *FieldOutput) TickFlash() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == FLASHING {
		f.scalar = !f.scalar
	}
}

// State reports the current tri-state value.
func (f *FieldOutput) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Scalar reports the driven boolean value. Stable between flash ticks.
func (f *FieldOutput) Scalar() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.scalar
}
