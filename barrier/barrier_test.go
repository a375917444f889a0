package barrier

import (
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

func TestContains(t *testing.T) {
	reg := id.NewRegistry()
	p1 := newTestPhase(t, reg, 501, 601)
	p2 := newTestPhase(t, reg, 502, 602)
	p3 := newTestPhase(t, reg, 503, 603)

	b, err := New(reg, 801, "B1", []*phase.Phase{p1, p2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !b.Contains(p1) || !b.Contains(p2) {
		t.Fatal("Contains false for a phase in the barrier's group")
	}
	if b.Contains(p3) {
		t.Fatal("Contains true for a phase outside the barrier's group")
	}
}

func TestNewRejectsEmptyPhaseList(t *testing.T) {
	reg := id.NewRegistry()
	if _, err := New(reg, 801, "B1", nil); err == nil {
		t.Fatal("expected error constructing a barrier with no phases")
	}
}
