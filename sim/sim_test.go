package sim

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/instancegaming/atsc/id"
	"github.com/instancegaming/atsc/signal"
)

func TestRandomRangeBiasedStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		for _, bias := range []float64{0, 0.1, 0.5, 0.9, 0.99} {
			v := randomRangeBiased(rng, 2, 15, bias)
			if v < 2 || v >= 15 {
				t.Fatalf("randomRangeBiased(2,15,%g) = %d, out of [2,15)", bias, v)
			}
		}
	}
}

func newTestSignal(t *testing.T) *signal.Signal {
	t.Helper()
	reg := id.NewRegistry()
	s, err := signal.New(reg, zerolog.Nop(), signal.Params{
		ID:   501,
		Tag:  "S",
		Kind: signal.Vehicle,
		Timing: map[signal.State]signal.Timing{
			signal.STOP:    {Minimum: 0},
			signal.GO:      {Minimum: 1 * time.Second, Maximum: 10 * time.Second},
			signal.CAUTION: {Minimum: 1 * time.Second},
		},
		InitialState: signal.STOP,
	})
	if err != nil {
		t.Fatalf("signal.New: %v", err)
	}
	return s
}

func TestIntersectionTickNoopWhenDisabled(t *testing.T) {
	s := newTestSignal(t)
	in := NewIntersection(1, false)
	in.Add(s, true, false, false)
	in.Tick(time.Hour)
	if s.Presence() {
		t.Fatal("disabled Intersection.Tick must not affect the signal")
	}
}

func TestApproachEventuallyAssertsPresence(t *testing.T) {
	s := newTestSignal(t)
	in := NewIntersection(1, true)
	in.Add(s, false, false, false)

	sawPresence := false
	for i := 0; i < 100000 && !sawPresence; i++ {
		in.Tick(100 * time.Millisecond)
		if s.Presence() {
			sawPresence = true
		}
	}
	if !sawPresence {
		t.Fatal("simulated approach never asserted presence over a long run")
	}
}
