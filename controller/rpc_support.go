package controller

import (
	"github.com/instancegaming/atsc/cycler"
	"github.com/instancegaming/atsc/id"
	"github.com/instancegaming/atsc/phase"
	"github.com/instancegaming/atsc/signal"
)

// This file exposes the plain accessors package rpcsurface composes into
// the §6 RPC surface's request/response shapes. The core has no notion of
// an RPC wire format — only of the operations that surface needs.

// SetTimeFreeze gates the time clock's Δ propagation for every signal.
func (ctrl *Controller) SetTimeFreeze(v bool) (changed bool) { return ctrl.Bus.SetTimeFreeze(v) }

// TimeFrozen reports the current time-freeze state.
func (ctrl *Controller) TimeFrozen() bool { return ctrl.Bus.TimeFrozen() }

// SetCycleMode changes the cycler's scheduling mode.
func (ctrl *Controller) SetCycleMode(m cycler.Mode) (changed bool) { return ctrl.Cycler.SetMode(m) }

// CycleMode reports the cycler's current scheduling mode.
func (ctrl *Controller) CycleMode() cycler.Mode { return ctrl.Cycler.Mode() }

// CycleCount reports the cycler's completed round-robin count.
func (ctrl *Controller) CycleCount() int { return ctrl.Cycler.CycleCount() }

// ActivePhaseIDs reports the phases currently being served.
func (ctrl *Controller) ActivePhaseIDs() []id.ID { return ctrl.Cycler.ActivePhaseIDs() }

// WaitingPhaseIDs reports demanding phases not currently being served.
func (ctrl *Controller) WaitingPhaseIDs() []id.ID { return ctrl.Cycler.WaitingPhaseIDs() }

// SetPresenceSimulation enables or disables the presence simulator,
// returning whether it changed. A no-op (changed=false) if no simulator
// was constructed (cfg.PresenceSimulation was false at startup).
func (ctrl *Controller) SetPresenceSimulation(v bool) (changed bool) {
	if ctrl.Simulator == nil {
		return false
	}
	changed = ctrl.Simulator.Enabled != v
	ctrl.Simulator.Enabled = v
	return changed
}

// SetFyaEnabled applies the global FYA-enable flag to every signal,
// reporting whether any signal's flag actually changed.
func (ctrl *Controller) SetFyaEnabled(v bool) (changed bool) {
	for _, s := range ctrl.Signals {
		if s.SetFYAEnabled(v) {
			changed = true
		}
	}
	return changed
}

// SetSignalDemand sets a signal's demand flag by ID.
func (ctrl *Controller) SetSignalDemand(sid id.ID, v bool) (success, changed bool) {
	s, ok := ctrl.Signals[sid]
	if !ok {
		return false, false
	}
	return true, s.SetDemand(v)
}

// SetSignalPresence sets a signal's presence flag by ID.
func (ctrl *Controller) SetSignalPresence(sid id.ID, v bool) (success, changed bool) {
	s, ok := ctrl.Signals[sid]
	if !ok {
		return false, false
	}
	return true, s.SetPresence(v)
}

// SetPhaseDemand sets a phase's explicit demand flag by ID.
func (ctrl *Controller) SetPhaseDemand(pid id.ID, v bool) (success, changed bool) {
	p, ok := ctrl.Phases[pid]
	if !ok {
		return false, false
	}
	return true, p.SetDemand(v)
}

// Signal looks up a signal by ID.
func (ctrl *Controller) Signal(sid id.ID) (*signal.Signal, bool) {
	s, ok := ctrl.Signals[sid]
	return s, ok
}

// Phase looks up a phase by ID.
func (ctrl *Controller) Phase(pid id.ID) (*phase.Phase, bool) {
	p, ok := ctrl.Phases[pid]
	return p, ok
}
