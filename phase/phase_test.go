package phase

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/instancegaming/atsc/id"
	"github.com/instancegaming/atsc/signal"
)

func newTestSignal(t *testing.T, reg *id.Registry, sigID id.ID) *signal.Signal {
	t.Helper()
	s, err := signal.New(reg, zerolog.Nop(), signal.Params{
		ID:   sigID,
		Tag:  "S",
		Kind: signal.Vehicle,
		Timing: map[signal.State]signal.Timing{
			signal.STOP:    {Minimum: 0},
			signal.GO:      {Minimum: 1 * time.Millisecond, Maximum: 2 * time.Millisecond},
			signal.CAUTION: {Minimum: 1 * time.Millisecond},
		},
		InitialState: signal.STOP,
	})
	if err != nil {
		t.Fatalf("signal.New: %v", err)
	}
	return s
}

func driveUntilStop(t *testing.T, s *signal.Signal, deadline time.Duration) {
	t.Helper()
	step := 500 * time.Microsecond
	for elapsed := time.Duration(0); elapsed < deadline; elapsed += step {
		s.Tick(step)
		time.Sleep(step)
	}
}

func TestPhaseDemandIsOROfSignalsAndExplicit(t *testing.T) {
	reg := id.NewRegistry()
	s1 := newTestSignal(t, reg, 501)
	s2 := newTestSignal(t, reg, 502)
	p, err := New(reg, 601, "P1", []*signal.Signal{s1, s2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Demand() {
		t.Fatal("Demand() true with no signal demand and no explicit demand")
	}

	s2.SetDemand(true)
	if !p.Demand() {
		t.Fatal("Demand() false despite a contained signal asserting demand")
	}
	s2.SetDemand(false)

	p.SetDemand(true)
	if !p.Demand() {
		t.Fatal("Demand() false despite explicit phase-level demand")
	}
}

func TestServeReturnsOnceAllSignalsReachStop(t *testing.T) {
	reg := id.NewRegistry()
	s1 := newTestSignal(t, reg, 501)
	s2 := newTestSignal(t, reg, 502)
	p, err := New(reg, 601, "P1", []*signal.Signal{s1, s2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s1.SetDemand(true)
	s2.SetDemand(true)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- p.Serve(ctx) }()

	go driveUntilStop(t, s1, 20*time.Millisecond)
	go driveUntilStop(t, s2, 20*time.Millisecond)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return once all signals reached STOP")
	}
	if p.Active() {
		t.Fatal("phase reports Active after Serve returned")
	}
}

// TestRecycleRequiresBothFlags exercises the conjunctive Recycle && Free &&
// phase-Active reading: a signal with Recycle set but Free unset must not be
// re-served within the same phase window, even though the phase as a whole
// remains active (its sibling signal is still being served).
func TestRecycleRequiresBothFlags(t *testing.T) {
	reg := id.NewRegistry()
	s1 := newTestSignal(t, reg, 501) // recycles
	s2 := newTestSignal(t, reg, 502) // stays active to keep the phase Active
	p, err := New(reg, 601, "P1", []*signal.Signal{s1, s2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s1.SetRecycle(true)
	s1.SetFree(false) // Recycle without Free must not trigger re-service.
	s1.SetDemand(true)
	s2.SetDemand(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Serve(ctx)

	driveUntilStop(t, s1, 20*time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if s1.Active() {
		t.Fatal("signal with Recycle but not Free was re-served")
	}

	cancel()
}

func TestRecycleWithFreeReservesWithinPhaseWindow(t *testing.T) {
	reg := id.NewRegistry()
	s1 := newTestSignal(t, reg, 501)
	s2 := newTestSignal(t, reg, 502)
	p, err := New(reg, 601, "P1", []*signal.Signal{s1, s2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	s1.SetRecycle(true)
	s1.SetFree(true)
	s1.SetDemand(true)
	s2.SetDemand(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Serve(ctx)

	// Drive s1 through one full cycle back to STOP while re-asserting
	// demand so the recycle loop has something to pick back up; s2 stays
	// active throughout so the phase never goes idle.
	for i := 0; i < 3; i++ {
		driveUntilStop(t, s1, 20*time.Millisecond)
		s1.SetDemand(true)
		time.Sleep(2 * time.Millisecond)
		if !s1.Active() {
			t.Fatalf("iteration %d: signal with Recycle and Free was not re-served while phase active", i)
		}
	}

	cancel()
}
