package fieldoutput

import (
	"testing"

	"github.com/instancegaming/atsc/id"
)

func newOutput(t *testing.T, outputID id.ID) *FieldOutput {
	t.Helper()
	reg := id.NewRegistry()
	o, err := New(reg, outputID, "test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestOffOnScalar(t *testing.T) {
	o := newOutput(t, 101)
	o.Set(ON)
	if !o.Scalar() {
		t.Fatal("ON did not drive scalar true")
	}
	o.Set(OFF)
	if o.Scalar() {
		t.Fatal("OFF did not drive scalar false")
	}
}

func TestFlashFromOffStartsDark(t *testing.T) {
	o := newOutput(t, 101)
	o.Set(FLASHING)
	if o.Scalar() {
		t.Fatal("OFF->FLASHING must start with scalar false")
	}
	o.TickFlash()
	if !o.Scalar() {
		t.Fatal("first flash tick after OFF->FLASHING must illuminate")
	}
}

func TestFlashFromOnPreservesScalar(t *testing.T) {
	o := newOutput(t, 101)
	o.Set(ON)
	o.Set(FLASHING)
	if !o.Scalar() {
		t.Fatal("ON->FLASHING must preserve the current (true) scalar")
	}
}

func TestTickFlashNoOpWhenNotFlashing(t *testing.T) {
	o := newOutput(t, 101)
	o.Set(ON)
	o.TickFlash()
	if !o.Scalar() {
		t.Fatal("TickFlash must not affect a non-FLASHING output")
	}
}

func TestFlashCoherence(t *testing.T) {
	o := newOutput(t, 101)
	o.Set(FLASHING)
	var onCount int
	for i := 0; i < 10; i++ {
		o.TickFlash()
		if o.Scalar() {
			onCount++
		}
	}
	if onCount != 5 {
		t.Fatalf("10 flash ticks from dark should alternate to 5 on-samples, got %d", onCount)
	}
}
