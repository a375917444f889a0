package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/instancegaming/atsc/id"
)

func TestNewRejectsOutOfRangeRate(t *testing.T) {
	reg := id.NewRegistry()
	if _, err := New(reg, 901, Inputs, 0.5); err == nil {
		t.Fatal("expected error for an Inputs rate below its bound")
	}
	if _, err := New(reg, 902, Flash, 200); err == nil {
		t.Fatal("expected error for a Flash rate above its bound")
	}
}

func TestNewRejectsUnknownName(t *testing.T) {
	reg := id.NewRegistry()
	if _, err := New(reg, 901, Name("bogus"), 1); err == nil {
		t.Fatal("expected error for an unknown clock name")
	}
}

func TestNewDefaultUsesManufacturingDefault(t *testing.T) {
	reg := id.NewRegistry()
	c, err := NewDefault(reg, 901, Fieldbus)
	if err != nil {
		t.Fatalf("NewDefault: %v", err)
	}
	if c.Rate() != 20 {
		t.Fatalf("Rate() = %g, want 20", c.Rate())
	}
}

func TestSetRateValidatesBounds(t *testing.T) {
	reg := id.NewRegistry()
	c, err := NewDefault(reg, 901, Network)
	if err != nil {
		t.Fatalf("NewDefault: %v", err)
	}
	if err := c.SetRate(500); err == nil {
		t.Fatal("expected error setting Network rate above its bound")
	}
	if err := c.SetRate(30); err != nil {
		t.Fatalf("SetRate(30) in range: %v", err)
	}
	if c.Rate() != 30 {
		t.Fatalf("Rate() = %g, want 30", c.Rate())
	}
}

func TestDispatchCoalescesOverlappingTicks(t *testing.T) {
	reg := id.NewRegistry()
	c, err := NewDefault(reg, 901, Inputs)
	if err != nil {
		t.Fatalf("NewDefault: %v", err)
	}
	var calls int32
	c.Subscribe(func(time.Duration) { atomic.AddInt32(&calls, 1) })

	// Simulate a tick already in flight by holding the pending flag, then
	// attempt a second dispatch: it must be dropped and counted, not
	// queued or run concurrently.
	c.pending.Store(true)
	c.dispatch(time.Millisecond)
	c.pending.Store(false)

	if got := c.Coalesced(); got != 1 {
		t.Fatalf("Coalesced() = %d, want 1", got)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatal("subscriber ran during a coalesced tick")
	}

	c.dispatch(time.Millisecond)
	if got := c.Ticks(); got != 1 {
		t.Fatalf("Ticks() = %d, want 1", got)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatal("subscriber did not run on the non-coalesced dispatch")
	}
}

func TestFlashPeriodIsTwiceFlashFrequency(t *testing.T) {
	reg := id.NewRegistry()
	c, err := New(reg, 901, Flash, 60) // 60 FPM == 1 Hz flash, 2 Hz toggle
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := c.period()
	want := 500 * time.Millisecond
	if got != want {
		t.Fatalf("period() = %v, want %v", got, want)
	}
}

func newTestBus(t *testing.T) (*Bus, map[Name]*Clock) {
	t.Helper()
	reg := id.NewRegistry()
	clocks := make(map[Name]*Clock)
	ids := map[Name]id.ID{Time: 901, Inputs: 902, Fieldbus: 903, Network: 904, Flash: 905}
	rates := map[Name]float64{Time: 1000, Inputs: 20, Fieldbus: 20, Network: 20, Flash: 60}
	var all []*Clock
	for _, name := range []Name{Time, Inputs, Fieldbus, Network, Flash} {
		c, err := New(reg, ids[name], name, rates[name])
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		clocks[name] = c
		all = append(all, c)
	}
	bus, err := NewBus(zerolog.Nop(), all...)
	if err != nil {
		t.Fatalf("NewBus: %v", err)
	}
	return bus, clocks
}

func TestNewBusRequiresAllFiveClocks(t *testing.T) {
	reg := id.NewRegistry()
	c, err := NewDefault(reg, 901, Time)
	if err != nil {
		t.Fatalf("NewDefault: %v", err)
	}
	if _, err := NewBus(zerolog.Nop(), c); err == nil {
		t.Fatal("expected error constructing a bus missing four of the five clocks")
	}
}

func TestBusDispatchesAndFreezeZeroesTimeDelta(t *testing.T) {
	bus, clocks := newTestBus(t)
	var totalDelta int64
	var ticks int32
	clocks[Time].Subscribe(func(d time.Duration) {
		atomic.AddInt64(&totalDelta, int64(d))
		atomic.AddInt32(&ticks, 1)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go bus.Run(ctx)

	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&ticks) == 0 {
		t.Fatal("no ticks observed on the Time clock after 20ms at 1000Hz")
	}

	bus.SetTimeFreeze(true)
	if !bus.TimeFrozen() {
		t.Fatal("TimeFrozen() false after SetTimeFreeze(true)")
	}
	atomic.StoreInt32(&ticks, 0)
	atomic.StoreInt64(&totalDelta, 0)
	time.Sleep(20 * time.Millisecond)

	if atomic.LoadInt32(&ticks) == 0 {
		t.Fatal("Time clock stopped ticking entirely while frozen; it must keep dispatching zero deltas")
	}
	if atomic.LoadInt64(&totalDelta) != 0 {
		t.Fatalf("totalDelta = %d while frozen, want 0", totalDelta)
	}

	cancel()
}
