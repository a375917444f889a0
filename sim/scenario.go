package sim

import (
	"github.com/fxamacker/cbor/v2"
)

// Scenario is a reproducible simulation configuration: the seed and the
// per-signal role flags needed to reconstruct an Intersection
// deterministically, in place of the ad-hoc JSON blobs the original tooling
// used for replay fixtures (see SPEC_FULL.md DOMAIN STACK).
type Scenario struct {
	Seed     int64          `cbor:"seed"`
	Enabled  bool           `cbor:"enabled"`
	Approach []ApproachSpec `cbor:"approaches"`
}

// ApproachSpec names one signal's simulated role by signal ID. This package
// only encodes and decodes a Scenario; it does not build an Intersection
// from one.
type ApproachSpec struct {
	SignalID   int  `cbor:"signal_id"`
	Arterial   bool `cbor:"arterial"`
	LeftTurn   bool `cbor:"left_turn"`
	Pedestrian bool `cbor:"pedestrian"`
}

// EncodeScenario serializes s for storage as a replayable fixture.
func EncodeScenario(s Scenario) ([]byte, error) {
	return cbor.Marshal(s)
}

// DecodeScenario parses a fixture produced by EncodeScenario.
func DecodeScenario(data []byte) (Scenario, error) {
	var s Scenario
	err := cbor.Unmarshal(data, &s)
	return s, err
}
