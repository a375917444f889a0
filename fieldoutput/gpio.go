//go:build linux

// GPIOBank drives a set of FieldOutputs directly over host GPIO pins,
// mirroring the periph.io wiring in detector/detector.go (that package polls
// gpio.PinIn for detector edges; this one drives gpio.PinOut for load-switch
// control on controllers wired directly to the cabinet rather than through
// the serial field bus).
package fieldoutput

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/host/v3"
)

// GPIOBank polls a set of FieldOutputs and writes their scalar to the
// corresponding physical pin. It is driven externally (typically by the
// fieldbus clock) via Sync.
type GPIOBank struct {
	entries []gpioEntry
}

type gpioEntry struct {
	output *FieldOutput
	pin    gpio.PinOut
}

// NewGPIOBank initialises the host GPIO subsystem (periph.io/x/host/v3,
// the same call detector.Open makes) and returns an empty bank ready for Bind.
func NewGPIOBank() (*GPIOBank, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("fieldoutput: gpio init: %w", err)
	}
	return &GPIOBank{}, nil
}

// Bind associates a FieldOutput with a physical output pin.
func (b *GPIOBank) Bind(out *FieldOutput, pin gpio.PinOut) error {
	if err := pin.Out(gpio.Low); err != nil {
		return fmt.Errorf("fieldoutput: configure pin for output %d (%s): %w", out.ID, out.Name, err)
	}
	b.entries = append(b.entries, gpioEntry{output: out, pin: pin})
	return nil
}

// Sync writes every bound FieldOutput's current scalar to its pin. Each
// call is the GPIO analogue of encoding and transmitting one OutputState
// frame; package controller does not call it.
func (b *GPIOBank) Sync() error {
	for _, e := range b.entries {
		lvl := gpio.Low
		if e.output.Scalar() {
			lvl = gpio.High
		}
		if err := e.pin.Out(lvl); err != nil {
			return fmt.Errorf("fieldoutput: write output %d (%s): %w", e.output.ID, e.output.Name, err)
		}
	}
	return nil
}
