// Package rpcsurface implements the externally observed RPC operations
// named in §6: the controller core's job is only to support them
// atomically, not to define a wire protocol. This package is the seam —
// it adapts the controller package's plain accessors into the documented
// request/response shapes, encoding the capability payload as CBOR per
// SPEC_FULL.md's DOMAIN STACK (replacing the ad-hoc JSON blob the
// original tooling used).
package rpcsurface

import (
	"context"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/instancegaming/atsc/controller"
	"github.com/instancegaming/atsc/cycler"
	"github.com/instancegaming/atsc/id"
	"github.com/instancegaming/atsc/signal"
)

// Surface adapts a *controller.Controller to the §6 RPC operations.
type Surface struct {
	ctrl    *controller.Controller
	version string
}

// New constructs a Surface over ctrl, reporting version in GetMetadata.
func New(ctrl *controller.Controller, version string) *Surface {
	return &Surface{ctrl: ctrl, version: version}
}

// FieldOutputMetadata describes one field output for GetMetadata.
type FieldOutputMetadata struct {
	ID int `cbor:"id"`
}

// SignalMetadata describes one signal for GetMetadata.
type SignalMetadata struct {
	ID           int    `cbor:"id"`
	Tag          string `cbor:"tag"`
	Type         string `cbor:"type"`     // "vehicle" | "pedestrian"
	Movement     string `cbor:"movement"` // e.g. "through", "left-turn", "pedestrian"
	InitialState string `cbor:"initial_state"`
	FieldOutputs []int  `cbor:"field_outputs"`
}

// Metadata is the CBOR-encoded payload returned by GetMetadata.
type Metadata struct {
	FirmwareVersion string                `cbor:"firmware_version"`
	StartEpoch      int64                 `cbor:"start_epoch"`
	CapabilityBits  uint32                `cbor:"capability_bits"`
	FieldOutputs    []FieldOutputMetadata `cbor:"field_outputs"`
	Signals         []SignalMetadata      `cbor:"signals"`
}

const (
	CapFieldBus          uint32 = 1 << 0
	CapPresenceSimulation uint32 = 1 << 1
	CapFYA               uint32 = 1 << 2
)

// GetMetadata returns the CBOR-encoded Metadata payload.
func (s *Surface) GetMetadata(startEpoch int64) ([]byte, error) {
	m := Metadata{FirmwareVersion: s.version, StartEpoch: startEpoch}
	if s.ctrl.Transport != nil {
		m.CapabilityBits |= CapFieldBus
	}
	if s.ctrl.Simulator != nil {
		m.CapabilityBits |= CapPresenceSimulation
	}
	m.CapabilityBits |= CapFYA
	for fid := range s.ctrl.FieldOutputs {
		m.FieldOutputs = append(m.FieldOutputs, FieldOutputMetadata{ID: int(fid)})
	}
	for sid, sig := range s.ctrl.Signals {
		typ := "vehicle"
		if sig.Kind == signal.Pedestrian {
			typ = "pedestrian"
		}
		var outIDs []int
		for _, oid := range sig.OutputIDs() {
			outIDs = append(outIDs, int(oid))
		}
		m.Signals = append(m.Signals, SignalMetadata{
			ID:           int(sid),
			Tag:          sig.Tag,
			Type:         typ,
			Movement:     sig.Movement,
			InitialState: sig.InitialState().String(),
			FieldOutputs: outIDs,
		})
	}
	return cbor.Marshal(m)
}

// RuntimeInfo is the GetRuntimeInfo response.
type RuntimeInfo struct {
	RunSeconds    float64 `cbor:"run_seconds"`
	TimeFreeze    bool    `cbor:"time_freeze"`
	ActivePhases  []int   `cbor:"active_phases"`
	WaitingPhases []int   `cbor:"waiting_phases"`
	CycleMode     string  `cbor:"cycle_mode"`
	CycleCount    int     `cbor:"cycle_count"`
}

// GetRuntimeInfo reports the controller's current scheduling state.
func (s *Surface) GetRuntimeInfo() RuntimeInfo {
	return RuntimeInfo{
		RunSeconds:    s.ctrl.RunSeconds(),
		TimeFreeze:    s.ctrl.TimeFrozen(),
		ActivePhases:  idsToInts(s.ctrl.ActivePhaseIDs()),
		WaitingPhases: idsToInts(s.ctrl.WaitingPhaseIDs()),
		CycleMode:     s.ctrl.CycleMode().String(),
		CycleCount:    s.ctrl.CycleCount(),
	}
}

// FieldOutputState is one entry of GetFieldOutputs.
type FieldOutputState struct {
	ID     int  `cbor:"id"`
	Scalar bool `cbor:"scalar"`
	State  string `cbor:"state"`
}

// GetFieldOutputs reports the current scalar/tri-state of every field
// output.
func (s *Surface) GetFieldOutputs() []FieldOutputState {
	var out []FieldOutputState
	for fid, fo := range s.ctrl.FieldOutputs {
		out = append(out, FieldOutputState{ID: int(fid), Scalar: fo.Scalar(), State: fo.State().String()})
	}
	return out
}

// SignalState is one entry of GetSignals.
type SignalState struct {
	ID     int    `cbor:"id"`
	State  string `cbor:"state"`
	Demand bool   `cbor:"demand"`
	Active bool   `cbor:"active"`
}

// GetSignals reports the current state of every signal.
func (s *Surface) GetSignals() []SignalState {
	var out []SignalState
	for sid, sig := range s.ctrl.Signals {
		out = append(out, SignalState{ID: int(sid), State: sig.State().String(), Demand: sig.Demand(), Active: sig.Active()})
	}
	return out
}

// PhaseState is one entry of GetPhases.
type PhaseState struct {
	ID     int  `cbor:"id"`
	Demand bool `cbor:"demand"`
	Active bool `cbor:"active"`
}

// GetPhases reports the current state of every phase.
func (s *Surface) GetPhases() []PhaseState {
	var out []PhaseState
	for pid, p := range s.ctrl.Phases {
		out = append(out, PhaseState{ID: int(pid), Demand: p.Demand(), Active: p.Active()})
	}
	return out
}

// SetTimeFreeze gates signal timer advancement. Idempotent per §8: calling
// it twice with the same value returns changed=false the second time.
func (s *Surface) SetTimeFreeze(v bool) (success, changed bool) {
	return true, s.ctrl.SetTimeFreeze(v)
}

// SetCycleMode changes the cycler's scheduling mode.
func (s *Surface) SetCycleMode(mode string) (success, changed bool) {
	m, ok := parseMode(mode)
	if !ok {
		return false, false
	}
	return true, s.ctrl.SetCycleMode(m)
}

// SetPresenceSimulation enables or disables the presence simulator.
func (s *Surface) SetPresenceSimulation(v bool) (success, changed bool) {
	return true, s.ctrl.SetPresenceSimulation(v)
}

// SetFyaEnabled applies the global FYA-enable flag to every signal.
func (s *Surface) SetFyaEnabled(v bool) (success, changed bool) {
	return true, s.ctrl.SetFyaEnabled(v)
}

// SetSignalDemand sets a signal's demand flag by ID.
func (s *Surface) SetSignalDemand(signalID int, v bool) (success, changed bool) {
	return s.ctrl.SetSignalDemand(id.ID(signalID), v)
}

// SetSignalPresence sets a signal's presence flag by ID.
func (s *Surface) SetSignalPresence(signalID int, v bool) (success, changed bool) {
	return s.ctrl.SetSignalPresence(id.ID(signalID), v)
}

// SetPhaseDemand sets a phase's explicit demand flag by ID.
func (s *Surface) SetPhaseDemand(phaseID int, v bool) (success, changed bool) {
	return s.ctrl.SetPhaseDemand(id.ID(phaseID), v)
}

// StateSnapshot is one message of the GetStateStream server push.
type StateSnapshot struct {
	Runtime RuntimeInfo        `cbor:"runtime"`
	Signals []SignalState      `cbor:"signals"`
	Outputs []FieldOutputState `cbor:"outputs"`
}

// GetStateStream emits a StateSnapshot on ch once per time-tick-interval
// (approximated here by a plain ticker at the supplied period) until ctx
// is cancelled, matching §6's "server-push stream that emits a snapshot
// every time-tick at the controller's tick rate while alive."
func (s *Surface) GetStateStream(ctx context.Context, period time.Duration, ch chan<- StateSnapshot) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			snap := StateSnapshot{
				Runtime: s.GetRuntimeInfo(),
				Signals: s.GetSignals(),
				Outputs: s.GetFieldOutputs(),
			}
			select {
			case ch <- snap:
			default:
				// A slow RPC client is isolated to its own stream (§7); drop
				// this snapshot rather than block the controller.
			}
		}
	}
}

func idsToInts(ids []id.ID) []int {
	out := make([]int, len(ids))
	for i, v := range ids {
		out[i] = int(v)
	}
	return out
}

func parseMode(s string) (cycler.Mode, bool) {
	switch s {
	case "PAUSE":
		return cycler.Pause, true
	case "SEQUENTIAL":
		return cycler.Sequential, true
	case "CONCURRENT":
		return cycler.Concurrent, true
	default:
		return 0, false
	}
}
