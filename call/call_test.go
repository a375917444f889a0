package call

import (
	"testing"
	"time"
)

func TestAge(t *testing.T) {
	raised := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(602, Fieldbus, raised)
	now := raised.Add(5 * time.Second)
	if got := c.Age(now); got != 5*time.Second {
		t.Fatalf("Age() = %v, want 5s", got)
	}
}

func TestZeroValueAgeIsZero(t *testing.T) {
	var c Call
	if got := c.Age(time.Now()); got != 0 {
		t.Fatalf("zero-value Call Age() = %v, want 0", got)
	}
}

func TestSourceString(t *testing.T) {
	cases := map[Source]string{
		Unknown:  "unknown",
		System:   "system",
		Recall:   "recall",
		Fieldbus: "fieldbus",
		Network:  "network",
	}
	for src, want := range cases {
		if got := src.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", src, got, want)
		}
	}
}
