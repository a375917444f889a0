package controller

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/instancegaming/atsc/barrier"
	"github.com/instancegaming/atsc/clock"
	"github.com/instancegaming/atsc/cycler"
	"github.com/instancegaming/atsc/fieldoutput"
	"github.com/instancegaming/atsc/id"
	"github.com/instancegaming/atsc/phase"
	"github.com/instancegaming/atsc/ring"
	"github.com/instancegaming/atsc/signal"
)

// movement describes one standard NEMA phase for BuildStandardDualRing.
type movement struct {
	phaseID  id.ID
	signalID id.ID
	tag      string
	leftTurn bool // FYA-enabled left turn; peerID is the phase whose activity selects FYA over GO
	peerID   id.ID
}

// BuildStandardDualRing assembles the canonical 8-phase, 2-ring, 2-barrier
// NEMA topology used as this daemon's built-in intersection: phases
// 601-608 in ring order 601-604/605-608, barriers {601,602,605,606} and
// {603,604,607,608}. Standing up a topology from an operator-supplied
// configuration file is a Non-goal (§1); this is the one, fixed topology
// the control daemon ships with.
func BuildStandardDualRing(reg *id.Registry, log zerolog.Logger) (
	fieldOutputs map[id.ID]*fieldoutput.FieldOutput,
	signals map[id.ID]*signal.Signal,
	phases map[id.ID]*phase.Phase,
	rings []*ring.Ring,
	barriers []*barrier.Barrier,
	cyc *cycler.Cycler,
	bus *clock.Bus,
	err error,
) {
	fieldOutputs = make(map[id.ID]*fieldoutput.FieldOutput)
	signals = make(map[id.ID]*signal.Signal)
	phases = make(map[id.ID]*phase.Phase)

	movements := []movement{
		{601, 501, "1-WB-LT", true, 605},
		{602, 502, "2-EB-THRU", false, 0},
		{603, 503, "3-NB-LT", true, 607},
		{604, 504, "4-SB-THRU", false, 0},
		{605, 505, "5-EB-LT", true, 601},
		{606, 506, "6-WB-THRU", false, 0},
		{607, 507, "7-SB-LT", true, 603},
		{608, 508, "8-NB-THRU", false, 0},
	}

	outputID := id.ID(101)
	newOutput := func(tag string) (*fieldoutput.FieldOutput, error) {
		o, err := fieldoutput.New(reg, outputID, tag)
		outputID++
		return o, err
	}

	for _, m := range movements {
		red, err := newOutput(m.tag + "-RED")
		if err != nil {
			return nil, nil, nil, nil, nil, nil, nil, err
		}
		yellow, err := newOutput(m.tag + "-YEL")
		if err != nil {
			return nil, nil, nil, nil, nil, nil, nil, err
		}
		green, err := newOutput(m.tag + "-GRN")
		if err != nil {
			return nil, nil, nil, nil, nil, nil, nil, err
		}
		fieldOutputs[red.ID] = red
		fieldOutputs[yellow.ID] = yellow
		fieldOutputs[green.ID] = green

		timing := map[signal.State]signal.Timing{
			signal.STOP:    {Minimum: 500 * time.Millisecond},
			signal.GO:      {Minimum: 8 * time.Second, Maximum: 35 * time.Second},
			signal.CAUTION: {Minimum: 3 * time.Second, Maximum: 3 * time.Second},
		}
		cfgMap := map[signal.State]signal.Config{
			signal.GO:       {Rest: true},
			signal.CAUTION:  {},
			signal.LS_FLASH: {Flashing: true},
		}
		if m.leftTurn {
			timing[signal.FYA] = signal.Timing{Minimum: 8 * time.Second, Maximum: 35 * time.Second, Revert: 2 * time.Second}
			cfgMap[signal.FYA] = signal.Config{Flashing: true, Rest: true}
		}

		movementKind := "through"
		if m.leftTurn {
			movementKind = "left-turn"
		}

		sig, err := signal.New(reg, log, signal.Params{
			ID:           m.signalID,
			Tag:          m.tag,
			Kind:         signal.Vehicle,
			Movement:     movementKind,
			Timing:       timing,
			Config:       cfgMap,
			InitialState: signal.STOP,
		})
		if err != nil {
			return nil, nil, nil, nil, nil, nil, nil, err
		}
		sig.BindOutputs(signal.STOP, red)
		sig.BindOutputs(signal.CAUTION, yellow)
		sig.BindOutputs(signal.GO, green)
		if m.leftTurn {
			// FYA is a flashing *yellow* arrow, not a flashing green.
			sig.BindOutputs(signal.FYA, yellow)
			// LS_FLASH: left-turn heads flash yellow (caution); through
			// movements flash red (§7 "flashing yellow or red per its
			// configuration").
			sig.BindOutputs(signal.LS_FLASH, yellow)
		} else {
			sig.BindOutputs(signal.LS_FLASH, red)
		}
		sig.SetRecall(false)
		signals[sig.ID] = sig

		p, err := phase.New(reg, m.phaseID, m.tag, []*signal.Signal{sig})
		if err != nil {
			return nil, nil, nil, nil, nil, nil, nil, err
		}
		phases[p.ID] = p
	}

	for _, m := range movements {
		if !m.leftTurn {
			continue
		}
		sig := signals[m.signalID]
		sig.SetFYAEnabled(true)
		sig.SetFYAPeer(phases[m.peerID])
	}

	ring1, err := ring.New(reg, 701, "RING-1", []*phase.Phase{phases[601], phases[602], phases[603], phases[604]})
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, err
	}
	ring2, err := ring.New(reg, 702, "RING-2", []*phase.Phase{phases[605], phases[606], phases[607], phases[608]})
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, err
	}
	rings = []*ring.Ring{ring1, ring2}

	b1, err := barrier.New(reg, 801, "BARRIER-1", []*phase.Phase{phases[601], phases[602], phases[605], phases[606]})
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, err
	}
	b2, err := barrier.New(reg, 802, "BARRIER-2", []*phase.Phase{phases[603], phases[604], phases[607], phases[608]})
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, err
	}
	barriers = []*barrier.Barrier{b1, b2}

	cyc = cycler.New(log, rings, barriers)

	timeClock, err := clock.NewDefault(reg, 901, clock.Time)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, err
	}
	inputsClock, err := clock.NewDefault(reg, 902, clock.Inputs)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, err
	}
	fieldbusClock, err := clock.NewDefault(reg, 903, clock.Fieldbus)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, err
	}
	networkClock, err := clock.NewDefault(reg, 904, clock.Network)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, err
	}
	flashClock, err := clock.NewDefault(reg, 905, clock.Flash)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, err
	}
	bus, err = clock.NewBus(log, timeClock, inputsClock, fieldbusClock, networkClock, flashClock)
	if err != nil {
		return nil, nil, nil, nil, nil, nil, nil, err
	}

	return fieldOutputs, signals, phases, rings, barriers, cyc, bus, nil
}
