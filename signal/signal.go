// Package signal implements the interval state machine described in §4.3:
// a single indication head cycling through STOP, CAUTION, EXTEND, GO, FYA
// and LS_FLASH, driving a set of field outputs per state and honoring a
// minimum/maximum/reduce timing contract on every tick.
package signal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/instancegaming/atsc/fieldoutput"
	"github.com/instancegaming/atsc/id"
)

// State is one of the six interval states a Signal can occupy.
type State int

const (
	STOP State = iota
	CAUTION
	EXTEND
	GO
	FYA
	LS_FLASH
)

func (s State) String() string {
	switch s {
	case STOP:
		return "STOP"
	case CAUTION:
		return "CAUTION"
	case EXTEND:
		return "EXTEND"
	case GO:
		return "GO"
	case FYA:
		return "FYA"
	case LS_FLASH:
		return "LS_FLASH"
	default:
		return "INVALID"
	}
}

// Kind describes the physical movement a Signal controls. It is reported
// in RPC metadata (§6 GetMetadata), and the controller uses it to select
// the vehicle signals for CET and LS_FLASH and the pedestrian heads for
// presence simulation.
type Kind int

const (
	Vehicle Kind = iota
	Pedestrian
)

// Timing is the per-state dwell contract: a floor, an optional ceiling, and
// an optional post-state revert offset (used only by FYA).
type Timing struct {
	Minimum time.Duration
	Maximum time.Duration // zero means unbounded
	Revert  time.Duration // zero means no extra delay
}

// Config is the per-state behavior contract.
type Config struct {
	Flashing bool // drive mapped outputs FLASHING instead of ON
	Rest     bool // may dwell past Minimum absent conflicting demand
	Reduce   bool // dwell timer biased toward expiry under demand pressure
}

// FYAPeer is the minimal view a Signal needs of its paired phase to decide
// whether to enter FYA instead of GO, and when to revert. A phase
// implements this directly (Active reports whether any contained signal is
// non-STOP).
type FYAPeer interface {
	Active() bool
}

// InvariantError reports a programming fault: an attempt to violate one of
// the Signal state machine's invariants. Per §7 these are not recovered
// locally — they propagate to the controller, which degrades to LS_FLASH.
type InvariantError struct {
	SignalID id.ID
	Tag      string
	Detail   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("signal %d (%s): %s", e.SignalID, e.Tag, e.Detail)
}

// Signal is one vehicle approach, pedestrian head, or protected-turn head.
type Signal struct {
	ID       id.ID
	Tag      string
	Kind     Kind
	Movement string // movement classification for RPC metadata, e.g. "through", "left-turn", "pedestrian"

	log zerolog.Logger

	mu           sync.Mutex
	state        State
	initialState State
	timer        time.Duration
	timing       map[State]Timing
	config       map[State]Config
	outputs      map[State][]*fieldoutput.FieldOutput

	demand    bool
	recall    bool
	recycle   bool
	free      bool
	presence  bool
	latch     bool
	fyaEnabled bool

	fyaPeer              FYAPeer
	fyaSincePeerInactive time.Duration

	active bool
	doneCh chan struct{}

	// held suppresses Tick's timing evaluation entirely while true. Set by
	// EnterCET so the control entrance transition's duration is governed
	// solely by the caller's external timer (cfg.CETDuration), not by the
	// dwelling state's own Minimum/Maximum contract.
	held bool

	// conflictingDemand is the Params.ConflictingDemand closure supplied at
	// construction (so Signal need not import phase or cycler), or a
	// closure that always reports false when none is supplied: it reports
	// whether some other phase is currently waiting to be served, biasing
	// rest/reduce behavior per §4.3 step 3.
	conflictingDemand func() bool
}

// Params bundles the construction-time configuration for a Signal.
type Params struct {
	ID                id.ID
	Tag               string
	Kind              Kind
	Movement          string
	Timing            map[State]Timing
	Config            map[State]Config
	InitialState      State
	ConflictingDemand func() bool
}

// New constructs a Signal, validating the timing map per §4.3 "Failure":
// min > max is rejected, and STOP, GO, CAUTION entries are mandatory.
func New(reg *id.Registry, log zerolog.Logger, p Params) (*Signal, error) {
	if err := reg.Reserve(id.KindSignal, p.ID); err != nil {
		return nil, err
	}
	for _, want := range []State{STOP, GO, CAUTION} {
		if _, ok := p.Timing[want]; !ok {
			return nil, fmt.Errorf("signal %d (%s): missing required timing for state %s", p.ID, p.Tag, want)
		}
	}
	for st, t := range p.Timing {
		if t.Maximum > 0 && t.Minimum > t.Maximum {
			return nil, fmt.Errorf("signal %d (%s): state %s minimum %s exceeds maximum %s", p.ID, p.Tag, st, t.Minimum, t.Maximum)
		}
	}
	cfg := p.Config
	if cfg == nil {
		cfg = make(map[State]Config)
	}
	conflict := p.ConflictingDemand
	if conflict == nil {
		conflict = func() bool { return false }
	}
	s := &Signal{
		ID:                p.ID,
		Tag:               p.Tag,
		Kind:              p.Kind,
		Movement:          p.Movement,
		log:               log.With().Str("signal", p.Tag).Logger(),
		state:             STOP,
		initialState:      p.InitialState,
		timing:            p.Timing,
		config:            cfg,
		outputs:           make(map[State][]*fieldoutput.FieldOutput),
		conflictingDemand: conflict,
	}
	return s, nil
}

// BindOutputs maps state to the field outputs that must be driven while the
// Signal occupies it.
func (s *Signal) BindOutputs(state State, outs ...*fieldoutput.FieldOutput) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[state] = outs
}

// SetFYAPeer wires the phase this Signal coordinates with for the FYA
// rule in §4.3: a phase is active iff any contained signal is non-STOP,
// which is exactly the FYAPeer contract.
func (s *Signal) SetFYAPeer(peer FYAPeer) {
	s.mu.Lock()
	s.fyaPeer = peer
	s.mu.Unlock()
}

// InitialState reports the state this signal returns to from LS_FLASH.
func (s *Signal) InitialState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialState
}

// OutputIDs reports the IDs of every field output bound to any state of
// this signal, in no particular order, for RPC metadata (§6 GetMetadata).
func (s *Signal) OutputIDs() []id.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[id.ID]bool)
	var ids []id.ID
	for _, outs := range s.outputs {
		for _, o := range outs {
			if !seen[o.ID] {
				seen[o.ID] = true
				ids = append(ids, o.ID)
			}
		}
	}
	return ids
}

// State reports the current interval state.
func (s *Signal) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the signal is mid-service (non-STOP, or STOP but
// not yet past its minimum dwell since being served).
func (s *Signal) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Demand reports the current demand flag.
func (s *Signal) Demand() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.demand
}

// SetDemand sets the demand flag, returning whether it changed.
func (s *Signal) SetDemand(v bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.demand != v
	s.demand = v
	return changed
}

// SetPresence sets the presence flag (detector occupancy), returning
// whether it changed.
func (s *Signal) SetPresence(v bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.presence != v
	s.presence = v
	return changed
}

// Presence reports the presence flag (detector occupancy).
func (s *Signal) Presence() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence
}

// SetRecall sets whether the signal auto-generates demand in the absence
// of real detection.
func (s *Signal) SetRecall(v bool) { s.mu.Lock(); s.recall = v; s.mu.Unlock() }

// SetRecycle sets whether the signal may re-serve within its phase window.
func (s *Signal) SetRecycle(v bool) { s.mu.Lock(); s.recycle = v; s.mu.Unlock() }

// SetFree sets the free flag (a precondition, along with Recycle, for
// in-phase re-service per SPEC_FULL.md's Open Question resolution).
func (s *Signal) SetFree(v bool) { s.mu.Lock(); s.free = v; s.mu.Unlock() }

// Free reports the free flag.
func (s *Signal) Free() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.free }

// Recycle reports the recycle flag.
func (s *Signal) Recycle() bool { s.mu.Lock(); defer s.mu.Unlock(); return s.recycle }

// SetFYAEnabled sets whether this signal may enter FYA instead of GO.
func (s *Signal) SetFYAEnabled(v bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.fyaEnabled != v
	s.fyaEnabled = v
	return changed
}

var errNoDemand = fmt.Errorf("signal: no demand")

// ErrNoDemand is returned by Serve when called without demand asserted.
func ErrNoDemand() error { return errNoDemand }

// Serve is the externally observable coroutine of §4.3: it precondition
// checks demand, transitions STOP to its next state, and blocks until the
// signal has returned to STOP (or ctx is cancelled, e.g. on shutdown).
func (s *Signal) Serve(ctx context.Context) error {
	s.mu.Lock()
	if !s.demand {
		s.mu.Unlock()
		return errNoDemand
	}
	if s.state != STOP {
		s.mu.Unlock()
		return &InvariantError{SignalID: s.ID, Tag: s.Tag, Detail: "serve() called while already active"}
	}
	next := s.nextFromStopLocked()
	s.changeLocked(next)
	s.active = true
	done := make(chan struct{})
	s.doneCh = done
	s.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// nextFromStopLocked decides GO vs FYA for the STOP->next transition. Must
// be called with s.mu held.
func (s *Signal) nextFromStopLocked() State {
	if s.fyaEnabled && s.fyaPeer != nil && s.fyaPeer.Active() {
		return FYA
	}
	return GO
}

// nextAfterLocked decides the default successor for every state but STOP
// and FYA (FYA's successor is decided by the revert rule in Tick). Must be
// called with s.mu held.
func (s *Signal) nextAfterLocked(state State) State {
	switch state {
	case GO:
		if s.timing[EXTEND].Minimum > 0 {
			return EXTEND
		}
		return CAUTION
	case EXTEND:
		return CAUTION
	case CAUTION:
		return STOP
	case LS_FLASH:
		return s.initialState
	default:
		return state
	}
}

// changeLocked resets the dwell timer and applies the new state, driving
// field outputs per §4.3 step 4. Must be called with s.mu held.
func (s *Signal) changeLocked(next State) {
	prev := s.state
	s.state = next
	s.timer = 0
	s.fyaSincePeerInactive = 0

	for _, o := range s.outputs[prev] {
		if !containsOutput(s.outputs[next], o) {
			o.Set(fieldoutput.OFF)
		}
	}
	cfg := s.config[next]
	want := fieldoutput.ON
	if cfg.Flashing {
		want = fieldoutput.FLASHING
	}
	for _, o := range s.outputs[next] {
		o.Set(want)
	}
}

func containsOutput(outs []*fieldoutput.FieldOutput, target *fieldoutput.FieldOutput) bool {
	for _, o := range outs {
		if o == target {
			return true
		}
	}
	return false
}

// Tick advances the state machine by delta, per the algorithm in §4.3.
func (s *Signal) Tick(delta time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.held {
		return
	}

	t := s.timer + delta
	timing := s.timing[s.state]
	cfg := s.config[s.state]

	switch s.state {
	case STOP:
		s.timer = t
		if t >= timing.Minimum {
			if s.active {
				if s.recall && !s.demand {
					s.demand = true
				}
				s.active = false
				if s.doneCh != nil {
					close(s.doneCh)
					s.doneCh = nil
				}
			}
		}
	case LS_FLASH:
		// Dwells until ExitFlash is called externally; no timer-driven
		// transition.
		s.timer = t
	case FYA:
		s.timer = t
		peerActive := s.fyaPeer != nil && s.fyaPeer.Active()
		if peerActive {
			s.fyaSincePeerInactive = 0
			return
		}
		s.fyaSincePeerInactive += delta
		if s.fyaSincePeerInactive >= timing.Revert && t >= timing.Minimum {
			s.changeLocked(CAUTION)
		}
	default:
		if t < timing.Minimum {
			s.timer = t
			return
		}
		if cfg.Rest && s.free && !s.conflictingDemand() {
			s.timer = t
			return
		}
		if timing.Maximum > 0 {
			reduceBias := time.Duration(0)
			if cfg.Reduce {
				reduceBias = s.timer
			}
			effectiveTrigger := timing.Maximum - reduceBias
			if t >= effectiveTrigger {
				s.changeLocked(s.nextAfterLocked(s.state))
				return
			}
			s.timer = t
			return
		}
		s.changeLocked(s.nextAfterLocked(s.state))
	}
}

// EnterFlash forces the signal directly into LS_FLASH, the safety
// fallback described in §7/§8 scenario 6. Any in-flight Serve() caller is
// released without error, mirroring "an in-flight fault must not freeze
// the intersection in an unsafe indication".
func (s *Signal) EnterFlash() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = false
	s.changeLocked(LS_FLASH)
	if s.active {
		s.active = false
		if s.doneCh != nil {
			close(s.doneCh)
			s.doneCh = nil
		}
	}
}

// ExitFlash transitions LS_FLASH back to the initial state (§4.3
// "LS_FLASH -> initial_state on exit from flash mode").
func (s *Signal) ExitFlash() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == LS_FLASH {
		s.changeLocked(s.initialState)
	}
}

// EnterCET forces the signal directly into CAUTION for the control
// entrance transition (§4.5 CET: "every vehicle signal enters CAUTION for
// a configured interval"), bypassing the demand precondition that gates
// Serve, and holds it there: CAUTION's own Minimum/Maximum contract must
// not auto-expire the indication before the caller's CETDuration elapses,
// so Tick is a no-op on this signal until ExitCET releases the hold. Any
// in-flight Serve caller is released without error, the same as
// EnterFlash.
func (s *Signal) EnterCET() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changeLocked(CAUTION)
	s.held = true
	if s.active {
		s.active = false
		if s.doneCh != nil {
			close(s.doneCh)
			s.doneCh = nil
		}
	}
}

// ExitCET completes the CET by releasing the hold set by EnterCET and
// transitioning from CAUTION to STOP (§4.5: "... then all enter STOP,
// then normal cycling begins").
func (s *Signal) ExitCET() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.held = false
	if s.state == CAUTION {
		s.changeLocked(STOP)
	}
}
