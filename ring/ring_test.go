package ring

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/instancegaming/atsc/id"
	"github.com/instancegaming/atsc/phase"
	"github.com/instancegaming/atsc/signal"
)

func newTestPhase(t *testing.T, reg *id.Registry, sigID, phaseID id.ID) *phase.Phase {
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
	p, err := phase.New(reg, phaseID, "P", []*signal.Signal{s})
	if err != nil {
		t.Fatalf("phase.New: %v", err)
	}
	return p
}

func TestActivePhaseNilWhenIdle(t *testing.T) {
	reg := id.NewRegistry()
	p1 := newTestPhase(t, reg, 501, 601)
	p2 := newTestPhase(t, reg, 502, 602)
	r, err := New(reg, 701, "R1", []*phase.Phase{p1, p2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	active, err := r.ActivePhase()
	if err != nil {
		t.Fatalf("ActivePhase: %v", err)
	}
	if active != nil {
		t.Fatalf("ActivePhase on idle ring = %v, want nil", active)
	}
	if !r.Idle() {
		t.Fatal("Idle() = false on a ring with no active phase")
	}
}

func TestActivePhaseReportsTheRunningPhase(t *testing.T) {
	reg := id.NewRegistry()
	p1 := newTestPhase(t, reg, 501, 601)
	p2 := newTestPhase(t, reg, 502, 602)
	r, err := New(reg, 701, "R1", []*phase.Phase{p1, p2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p1.Signals[0].SetDemand(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p1.Serve(ctx) }()
	time.Sleep(5 * time.Millisecond)

	active, err := r.ActivePhase()
	if err != nil {
		t.Fatalf("ActivePhase: %v", err)
	}
	if active != p1 {
		t.Fatalf("ActivePhase = %v, want p1", active)
	}
	if r.Idle() {
		t.Fatal("Idle() = true while p1 is active")
	}

	cancel()
	<-done
}

func TestActivePhaseErrorsOnConcurrentActivation(t *testing.T) {
	reg := id.NewRegistry()
	p1 := newTestPhase(t, reg, 501, 601)
	p2 := newTestPhase(t, reg, 502, 602)
	r, err := New(reg, 701, "R1", []*phase.Phase{p1, p2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	p1.Signals[0].SetDemand(true)
	p2.Signals[0].SetDemand(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p1.Serve(ctx)
	go p2.Serve(ctx)
	time.Sleep(5 * time.Millisecond)

	if _, err := r.ActivePhase(); err == nil {
		t.Fatal("expected an error when two phases in the same ring are simultaneously active")
	}
}

func TestNewRejectsEmptyPhaseList(t *testing.T) {
	reg := id.NewRegistry()
	if _, err := New(reg, 701, "R1", nil); err == nil {
		t.Fatal("expected error constructing a ring with no phases")
	}
}
