// Package clock implements the controller's clock bus: five named,
// independently rated periodic tick sources (time, inputs, fieldbus,
// network, flash) that fan out ticks to registered subscribers.
//
// The teacher repo dispatches GPIO edge events through one goroutine per
// input with a select loop (input/input.go); this package generalises that
// shape to five rate-driven sources, each run by the Bus on its own
// goroutine. A clock's subscriber callbacks run synchronously on that
// clock's goroutine, in registration order; callbacks of different clocks
// may run concurrently with each other. A tick that arrives while the
// previous tick of the same clock is still being dispatched is coalesced
// rather than queued.
package clock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/instancegaming/atsc/id"
)

// Name identifies one of the five logical clocks.
type Name string

const (
	Time     Name = "time"
	Inputs   Name = "inputs"
	Fieldbus Name = "fieldbus"
	Network  Name = "network"
	Flash    Name = "flash"
)

// bound is the valid rate range for a Name, in the unit that Name is
// expressed in (Hz for everything but Flash, which is flashes-per-minute).
type bound struct{ min, max float64 }

var bounds = map[Name]bound{
	Time:     {0, 1000},
	Inputs:   {1, 40},
	Fieldbus: {1, 20},
	Network:  {1, 40},
	Flash:    {54, 66},
}

// defaultRate is the manufacturing default for each clock, per §4.1.
var defaultRate = map[Name]float64{
	Time:     1,
	Inputs:   20,
	Fieldbus: 20,
	Network:  20,
	Flash:    60,
}

// TickFunc is invoked once per tick, in subscriber-registration order, with
// the elapsed time since the previous tick. Flash-rate deltas are expressed
// as a period derived from flashes-per-minute.
type TickFunc func(delta time.Duration)

// Clock is one named, rate-configurable tick source.
type Clock struct {
	ID   id.ID
	name Name

	mu       sync.Mutex
	rate     float64 // Hz, or FPM if name == Flash
	scale    float64 // applied multiplicatively to Δ; only meaningful for Time
	subs     []TickFunc
	lastTick time.Time
	running  bool
	stop     chan struct{}
	done     chan struct{}

	pending   atomic.Bool // a tick is currently being dispatched
	coalesced atomic.Uint64
	ticks     atomic.Uint64
}

// New constructs a Clock, reserving clockID in reg and validating rate
// against the range for name. Malformed rates are rejected at construction,
// never at runtime, per §7.
func New(reg *id.Registry, clockID id.ID, name Name, rate float64) (*Clock, error) {
	if err := reg.Reserve(id.KindClock, clockID); err != nil {
		return nil, err
	}
	b, ok := bounds[name]
	if !ok {
		return nil, fmt.Errorf("clock: unknown clock name %q", name)
	}
	if rate < b.min || rate > b.max {
		return nil, fmt.Errorf("clock: %s rate %g out of range [%g, %g]", name, rate, b.min, b.max)
	}
	return &Clock{
		ID:    clockID,
		name:  name,
		rate:  rate,
		scale: 1,
	}, nil
}

// NewDefault constructs a Clock at its manufacturing-default rate.
func NewDefault(reg *id.Registry, clockID id.ID, name Name) (*Clock, error) {
	return New(reg, clockID, name, defaultRate[name])
}

// Name reports the clock's logical name.
func (c *Clock) Name() Name { return c.name }

// Rate returns the clock's live rate.
func (c *Clock) Rate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// SetRate validates and applies a new live rate. Subscribers observe the
// new period starting with the next tick.
func (c *Clock) SetRate(rate float64) error {
	b := bounds[c.name]
	if rate < b.min || rate > b.max {
		return fmt.Errorf("clock: %s rate %g out of range [%g, %g]", c.name, rate, b.min, b.max)
	}
	c.mu.Lock()
	c.rate = rate
	c.mu.Unlock()
	return nil
}

// SetScale sets the Δ multiplier used for simulation time acceleration.
// Only meaningful on the Time clock; applies uniformly to every subscriber.
func (c *Clock) SetScale(scale float64) {
	c.mu.Lock()
	c.scale = scale
	c.mu.Unlock()
}

// Subscribe registers fn to be invoked on every tick, in the order
// Subscribe was called across the lifetime of the Clock. Must be called
// before Run.
func (c *Clock) Subscribe(fn TickFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, fn)
}

// Coalesced reports how many ticks were dropped because the previous tick
// was still being dispatched to subscribers when the next one arrived.
func (c *Clock) Coalesced() uint64 { return c.coalesced.Load() }

// Ticks reports the total number of ticks dispatched.
func (c *Clock) Ticks() uint64 { return c.ticks.Load() }

func (c *Clock) period() time.Duration {
	c.mu.Lock()
	rate := c.rate
	c.mu.Unlock()
	if rate <= 0 {
		return 0
	}
	if c.name == Flash {
		// flashes-per-minute -> the clock ticks twice per flash cycle
		// (on/off), i.e. at 2x the flash frequency.
		hz := (rate / 60) * 2
		return time.Duration(float64(time.Second) / hz)
	}
	return time.Duration(float64(time.Second) / rate)
}

// dispatch invokes every subscriber in order with the given Δ, coalescing
// (dropping, and counting) a concurrent tick arrival instead of queuing it.
func (c *Clock) dispatch(delta time.Duration) {
	if !c.pending.CompareAndSwap(false, true) {
		c.coalesced.Add(1)
		return
	}
	defer c.pending.Store(false)

	c.mu.Lock()
	scale := c.scale
	subs := c.subs
	c.mu.Unlock()

	scaled := time.Duration(float64(delta) * scale)
	for _, fn := range subs {
		fn(scaled)
	}
	c.ticks.Add(1)
}

// run drives the tick loop for one clock until ctx is cancelled or Stop is
// called. It is meant to run on its own goroutine; dispatch is internally
// synchronized so that overlapping ticks coalesce rather than run
// concurrently, which is what keeps subscriber state changes single
// threaded per §5.
func (c *Clock) run(ctx context.Context) {
	defer close(c.done)
	period := c.period()
	if period <= 0 {
		<-ctx.Done()
		return
	}
	t := time.NewTicker(period)
	defer t.Stop()
	c.lastTick = time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case now := <-t.C:
			delta := now.Sub(c.lastTick)
			c.lastTick = now
			c.dispatch(delta)
			if np := c.period(); np != period && np > 0 {
				period = np
				t.Reset(period)
			}
		}
	}
}

// Bus owns the five named clocks and runs each on its own goroutine,
// exactly mirroring the teacher's one-goroutine-per-input-pin shape in
// input/input.go, generalised from edge events to rate-driven ticks.
type Bus struct {
	log        zerolog.Logger
	clocks     map[Name]*Clock
	timeFreeze atomic.Bool
	cancel     context.CancelFunc
}

// NewBus constructs a Bus from the supplied clocks, keyed by their Name.
func NewBus(log zerolog.Logger, clocks ...*Clock) (*Bus, error) {
	b := &Bus{log: log, clocks: make(map[Name]*Clock, len(clocks))}
	for _, c := range clocks {
		if _, exists := b.clocks[c.name]; exists {
			return nil, fmt.Errorf("clock: duplicate clock name %q", c.name)
		}
		b.clocks[c.name] = c
	}
	for _, want := range []Name{Time, Inputs, Fieldbus, Network, Flash} {
		if _, ok := b.clocks[want]; !ok {
			return nil, fmt.Errorf("clock: bus missing required clock %q", want)
		}
	}
	return b, nil
}

// Clock returns the named clock, or nil if unknown.
func (b *Bus) Clock(name Name) *Clock { return b.clocks[name] }

// SetTimeFreeze gates forward propagation of Δ on the Time clock. While
// frozen, the Time clock continues to tick (so Coalesced()/Ticks() keep
// advancing) but every subscriber observes a zero Δ — halting signal
// interval timers while I/O clocks (inputs, fieldbus, network, flash)
// continue unaffected.
func (b *Bus) SetTimeFreeze(frozen bool) (changed bool) {
	return b.timeFreeze.Swap(frozen) != frozen
}

// TimeFrozen reports the current freeze state.
func (b *Bus) TimeFrozen() bool { return b.timeFreeze.Load() }

// Run starts all five clocks and blocks until ctx is cancelled.
func (b *Bus) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	timeClock := b.clocks[Time]
	realSubs := timeClock.subs
	// Wrap the Time clock's subscriber list so a freeze collapses Δ to
	// zero without the Time clock itself needing to know about the
	// controller-level freeze flag.
	timeClock.subs = []TickFunc{func(delta time.Duration) {
		if b.timeFreeze.Load() {
			delta = 0
		}
		for _, fn := range realSubs {
			fn(delta)
		}
	}}

	var wg sync.WaitGroup
	for _, c := range b.clocks {
		c.stop = make(chan struct{})
		c.done = make(chan struct{})
		wg.Add(1)
		go func(c *Clock) {
			defer wg.Done()
			c.run(ctx)
		}(c)
	}
	<-ctx.Done()
	for _, c := range b.clocks {
		close(c.stop)
	}
	wg.Wait()
	b.log.Debug().Msg("clock bus stopped")
}

// Stop cancels the bus's Run context, if running.
func (b *Bus) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
}
