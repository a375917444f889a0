package id

import "testing"

func TestReserveRejectsOutOfRange(t *testing.T) {
	r := NewRegistry()
	if err := r.Reserve(KindSignal, 100); err == nil {
		t.Fatal("expected out-of-range signal id to be rejected")
	}
	if err := r.Reserve(KindSignal, 501); err != nil {
		t.Fatalf("Reserve(501) in range: %v", err)
	}
}

func TestReserveRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Reserve(KindPhase, 601); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if err := r.Reserve(KindPhase, 601); err == nil {
		t.Fatal("expected duplicate phase id to be rejected")
	}
}

func TestReserveIsPerKind(t *testing.T) {
	r := NewRegistry()
	// Reservations are tracked per kind: reserving 501 as a signal id must
	// not make Has report 501 as a reserved phase id.
	if err := r.Reserve(KindSignal, 501); err != nil {
		t.Fatalf("reserve signal 501: %v", err)
	}
	if err := r.Reserve(KindPhase, 601); err != nil {
		t.Fatalf("reserve phase 601: %v", err)
	}
	if r.Has(KindPhase, 501) {
		t.Fatal("Has reported a phase reservation for an id only reserved as a signal")
	}
}

func TestKindOf(t *testing.T) {
	cases := []struct {
		v    ID
		want Kind
	}{
		{150, KindFieldOutput},
		{550, KindSignal},
		{650, KindPhase},
		{702, KindRing},
		{802, KindBarrier},
		{8050, KindParameter},
		{903, KindClock},
		{1, KindUnknown},
	}
	for _, c := range cases {
		if got := KindOf(c.v); got != c.want {
			t.Errorf("KindOf(%d) = %v, want %v", c.v, got, c.want)
		}
	}
}
