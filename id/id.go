// Package id defines the global identifier ranges shared by every core
// entity (field outputs, signals, phases, rings, barriers, parameters,
// clocks) and a small registry for resolving identifiers without cyclic
// object references.
//
// The source this controller is modelled on resolves cross-references
// (signal to phase for FYA pairing, phase to ring, phase to barrier)
// through a global lookup keyed by identifier. Here the Registry owned by
// the root controller only enforces the range and uniqueness of
// identifiers at construction; entities reference each other by pointer (a
// phase holds its signals, a ring or barrier holds its phases), and the
// Registry does not resolve an identifier to an entity.
package id

import "fmt"

// ID is a globally unique numeric identifier drawn from one of the ranges
// below.
type ID int

// Kind classifies which range an ID was drawn from.
type Kind int

const (
	KindUnknown Kind = iota
	KindFieldOutput
	KindSignal
	KindPhase
	KindRing
	KindBarrier
	KindParameter
	KindClock
)

func (k Kind) String() string {
	switch k {
	case KindFieldOutput:
		return "field-output"
	case KindSignal:
		return "signal"
	case KindPhase:
		return "phase"
	case KindRing:
		return "ring"
	case KindBarrier:
		return "barrier"
	case KindParameter:
		return "parameter"
	case KindClock:
		return "clock"
	default:
		return "unknown"
	}
}

// Range is the inclusive [Low, High] span of identifiers reserved for a
// Kind.
type Range struct {
	Low, High ID
}

// Ranges holds the fixed identifier spans from §3 of the specification.
var Ranges = map[Kind]Range{
	KindFieldOutput: {101, 196},
	KindSignal:      {501, 599},
	KindPhase:       {601, 699},
	KindRing:        {701, 704},
	KindBarrier:     {801, 804},
	KindParameter:   {8000, 8199},
	KindClock:       {901, 905},
}

// KindOf reports which Kind an ID falls within, or KindUnknown if it falls
// in none of the reserved ranges.
func KindOf(v ID) Kind {
	for k, r := range Ranges {
		if v >= r.Low && v <= r.High {
			return k
		}
	}
	return KindUnknown
}

// Validate returns an error if v does not fall within the range reserved
// for want.
func Validate(want Kind, v ID) error {
	r, ok := Ranges[want]
	if !ok {
		return fmt.Errorf("id: unknown kind %v", want)
	}
	if v < r.Low || v > r.High {
		return fmt.Errorf("id: %d is not a valid %v id (want %d-%d)", v, want, r.Low, r.High)
	}
	return nil
}

// Registry tracks which identifiers have been reserved for each Kind,
// rejecting out-of-range and duplicate reservations. It is owned by the
// root controller. It records reservations only; it holds no entities and
// does not map an ID back to the entity that reserved it.
type Registry struct {
	used map[Kind]map[ID]bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{used: make(map[Kind]map[ID]bool)}
}

// Reserve claims v for kind, rejecting duplicates and out-of-range values.
// Construction of any core entity must call Reserve before the entity is
// considered valid.
func (r *Registry) Reserve(kind Kind, v ID) error {
	if err := Validate(kind, v); err != nil {
		return err
	}
	m, ok := r.used[kind]
	if !ok {
		m = make(map[ID]bool)
		r.used[kind] = m
	}
	if m[v] {
		return fmt.Errorf("id: duplicate %v id %d", kind, v)
	}
	m[v] = true
	return nil
}

// Has reports whether v has been reserved for kind.
func (r *Registry) Has(kind Kind, v ID) bool {
	return r.used[kind][v]
}
