// Package controller wires the field-output, signal, phase, ring, barrier,
// cycler, and field-bus packages into a single supervisory process (the
// "Controller root" of §3's Ownership paragraph) and drives the clock bus
// that makes them tick.
package controller

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/instancegaming/atsc/barrier"
	"github.com/instancegaming/atsc/clock"
	"github.com/instancegaming/atsc/cycler"
	"github.com/instancegaming/atsc/fieldbus"
	"github.com/instancegaming/atsc/fieldoutput"
	"github.com/instancegaming/atsc/id"
	"github.com/instancegaming/atsc/phase"
	"github.com/instancegaming/atsc/ring"
	"github.com/instancegaming/atsc/signal"
	"github.com/instancegaming/atsc/sim"
)

// Controller is the root owner of every core entity (§3 Ownership): it
// does not itself implement scheduling or timing logic — that lives in
// cycler, signal, and clock — but it is the one place that owns their
// collections, runs the clock bus, and answers the external interfaces of
// §6.
type Controller struct {
	cfg Config
	log zerolog.Logger

	Registry     *id.Registry
	Bus          *clock.Bus
	FieldOutputs map[id.ID]*fieldoutput.FieldOutput
	Signals      map[id.ID]*signal.Signal
	Phases       map[id.ID]*phase.Phase
	Rings        []*ring.Ring
	Barriers     []*barrier.Barrier
	Cycler       *cycler.Cycler
	Transport    *fieldbus.SerialTransport
	Simulator    *sim.Intersection

	mu         sync.Mutex
	startedAt  time.Time
	inFlash    bool
	cancel     context.CancelFunc
	doneCh     chan struct{}
	shutdownOnce sync.Once
}

// New constructs a Controller over already-built entities. Standing up the
// concrete topology (how many rings, which signals belong to which phase)
// is deliberately left to the caller — persisted configuration formats are
// a Non-goal (§1). New validates cfg and requires at least one ring and
// one barrier; it does not check that the rings, barriers, phases and
// signals it is given reference one another consistently.
func New(cfg Config, log zerolog.Logger, reg *id.Registry, bus *clock.Bus, c *cycler.Cycler,
	fieldOutputs map[id.ID]*fieldoutput.FieldOutput, signals map[id.ID]*signal.Signal,
	phases map[id.ID]*phase.Phase, rings []*ring.Ring, barriers []*barrier.Barrier,
	transport *fieldbus.SerialTransport) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(rings) == 0 {
		return nil, fmt.Errorf("controller: at least one ring is required")
	}
	if len(barriers) == 0 {
		return nil, fmt.Errorf("controller: at least one barrier is required")
	}
	ctrl := &Controller{
		cfg:          cfg,
		log:          log.With().Str("component", "controller").Logger(),
		Registry:     reg,
		Bus:          bus,
		FieldOutputs: fieldOutputs,
		Signals:      signals,
		Phases:       phases,
		Rings:        rings,
		Barriers:     barriers,
		Cycler:       c,
		Transport:    transport,
	}
	if cfg.PresenceSimulation {
		ctrl.Simulator = sim.NewIntersection(cfg.SimulationSeed, true)
		for _, s := range signals {
			ctrl.Simulator.Add(s, false, false, s.Kind == signal.Pedestrian)
		}
	}
	c.SetFaultHandler(ctrl.onFault)
	return ctrl, nil
}

// Run starts the clock bus, performs the control entrance transition
// (§4.5 CET), then runs until ctx is cancelled. A fault that degrades the
// controller to LS_FLASH does not end Run. It returns once every clock
// goroutine has stopped.
func (ctrl *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	ctrl.mu.Lock()
	ctrl.cancel = cancel
	ctrl.startedAt = time.Now()
	ctrl.doneCh = make(chan struct{})
	ctrl.mu.Unlock()
	defer close(ctrl.doneCh)

	timeClock := ctrl.Bus.Clock(clock.Time)
	flashClock := ctrl.Bus.Clock(clock.Flash)
	fieldbusClock := ctrl.Bus.Clock(clock.Fieldbus)
	inputsClock := ctrl.Bus.Clock(clock.Inputs)

	timeClock.Subscribe(func(delta time.Duration) { ctrl.onTimeTick(ctx, delta) })
	flashClock.Subscribe(func(time.Duration) { ctrl.tickFlash() })
	if ctrl.Transport != nil {
		fieldbusClock.Subscribe(func(time.Duration) { ctrl.publishOutputs() })
		go ctrl.receiveLoop(ctx)
	}
	inputsClock.Subscribe(func(delta time.Duration) {
		if ctrl.Simulator != nil {
			ctrl.Simulator.Tick(delta)
		}
	})

	busDone := make(chan struct{})
	go func() { defer close(busDone); ctrl.Bus.Run(ctx) }()

	ctrl.runCET(ctx)
	ctrl.Cycler.SetMode(cycler.Concurrent)

	<-ctx.Done()
	<-busDone
	return nil
}

// runCET drives the one-shot control entrance transition: every vehicle
// signal enters CAUTION for cfg.CETDuration, then STOP, before normal
// cycling begins (§4.5).
func (ctrl *Controller) runCET(ctx context.Context) {
	ctrl.Cycler.SetMode(cycler.Pause)
	for _, s := range ctrl.Signals {
		if s.Kind != signal.Vehicle {
			continue
		}
		s.EnterCET()
	}
	select {
	case <-time.After(ctrl.cfg.CETDuration):
	case <-ctx.Done():
		return
	}
	for _, s := range ctrl.Signals {
		if s.Kind != signal.Vehicle {
			continue
		}
		s.ExitCET()
	}
}

// onTimeTick advances every signal by delta, then re-runs cycler
// selection — the ordering guarantee in §5 ("all signals observe the same
// Δ and are evaluated before the cycler re-runs phase selection") falls
// out of doing both synchronously from the same clock subscriber call.
func (ctrl *Controller) onTimeTick(ctx context.Context, delta time.Duration) {
	for _, s := range ctrl.Signals {
		s.Tick(delta)
	}
	ctrl.Cycler.Reconcile(ctx)
}

func (ctrl *Controller) tickFlash() {
	for _, fo := range ctrl.FieldOutputs {
		fo.TickFlash()
	}
}

// publishOutputs encodes the current field-output vector and transmits it
// as an OUTPUTS frame, best-effort per §4.6.
func (ctrl *Controller) publishOutputs() {
	ids := sortedOutputIDs(ctrl.FieldOutputs)
	states := make([]bool, len(ids))
	for i, fid := range ids {
		states[i] = ctrl.FieldOutputs[fid].Scalar()
	}
	f := fieldbus.Frame{
		Address: fieldbus.AddrTFIB1,
		Type:    fieldbus.Outputs,
		Payload: fieldbus.EncodeOutputStates(states, true),
	}
	if err := ctrl.Transport.Send(f); err != nil {
		ctrl.log.Error().Err(err).Msg("fieldbus send failed")
	}
}

// receiveLoop blocks on Transport.Receive on its own goroutine (the one
// thread boundary of §5). Received INPUTS frames are applied as detector
// presence directly from this goroutine, with no queue in between. Receive
// errors are logged; frames of any other type are discarded without
// logging.
func (ctrl *Controller) receiveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		f, err := ctrl.Transport.Receive()
		if err != nil {
			ctrl.log.Warn().Err(err).Bool("degraded", ctrl.Transport.Degraded()).Msg("fieldbus receive error")
			continue
		}
		if f.Type != fieldbus.Inputs {
			continue
		}
		ctrl.applyInputStates(f.Payload)
	}
}

func (ctrl *Controller) applyInputStates(payload []byte) {
	ids := sortedSignalIDs(ctrl.Signals)
	states := fieldbus.DecodeInputStates(payload, len(ids))
	for i, sid := range ids {
		ctrl.Signals[sid].SetPresence(states[i])
	}
}

// onFault is the cycler's fault handler: a phase's Serve returned an
// internal invariant violation (§7). The controller logs it structurally
// and degrades to LS_FLASH rather than letting any signal freeze in an
// unsafe indication.
func (ctrl *Controller) onFault(err error) {
	ctrl.log.Error().Err(err).Msg("internal invariant violation, degrading to LS_FLASH")
	ctrl.EnterFlash()
}

// EnterFlash transitions every vehicle signal to LS_FLASH and pauses the
// cycler, the terminal safety behavior of §7/§8 scenario 6.
func (ctrl *Controller) EnterFlash() {
	ctrl.mu.Lock()
	ctrl.inFlash = true
	ctrl.mu.Unlock()
	ctrl.Cycler.SetMode(cycler.Pause)
	for _, s := range ctrl.Signals {
		if s.Kind == signal.Vehicle {
			s.EnterFlash()
		}
	}
}

// InFlash reports whether the controller has degraded to LS_FLASH.
func (ctrl *Controller) InFlash() bool {
	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()
	return ctrl.inFlash
}

// Shutdown requests a graceful stop, waiting up to cfg.ShutdownTimeout for
// every clock goroutine to exit (§5 Cancellation).
func (ctrl *Controller) Shutdown() {
	ctrl.shutdownOnce.Do(func() {
		ctrl.mu.Lock()
		cancel := ctrl.cancel
		done := ctrl.doneCh
		ctrl.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		select {
		case <-done:
		case <-time.After(ctrl.cfg.ShutdownTimeout):
			ctrl.log.Error().Msg("shutdown timeout exceeded, forcing exit")
		}
	})
}

// RunSeconds reports wall-clock seconds since Run started.
func (ctrl *Controller) RunSeconds() float64 {
	ctrl.mu.Lock()
	started := ctrl.startedAt
	ctrl.mu.Unlock()
	if started.IsZero() {
		return 0
	}
	return time.Since(started).Seconds()
}

func sortedOutputIDs(m map[id.ID]*fieldoutput.FieldOutput) []id.ID {
	ids := make([]id.ID, 0, len(m))
	for k := range m {
		ids = append(ids, k)
	}
	sortIDs(ids)
	return ids
}

func sortedSignalIDs(m map[id.ID]*signal.Signal) []id.ID {
	ids := make([]id.ID, 0, len(m))
	for k := range m {
		ids = append(ids, k)
	}
	sortIDs(ids)
	return ids
}

func sortIDs(ids []id.ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
