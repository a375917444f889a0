// Package detector polls presence-detector GPIO inputs (vehicle loops,
// pedestrian push buttons) and reports debounced state changes, the real
// counterpart to the simulation harness in package sim.
package detector

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/host/v3"

	"github.com/instancegaming/atsc/id"
)

// Event reports a debounced presence change on one detector.
type Event struct {
	SignalID id.ID
	Present  bool
}

// Binding associates a detector input pin with the signal it reports
// presence for.
type Binding struct {
	SignalID id.ID
	Pin      gpio.PinIn
}

const debounceTimeout = 25 * time.Millisecond

// Open initializes the host GPIO subsystem and starts one debounced
// polling goroutine per binding, sending Events to ch as presence changes.
// Grounded on the button-debounce loop in the teacher's input driver,
// generalized from momentary buttons to level-triggered detector inputs.
func Open(bindings []Binding, ch chan<- Event) error {
	if _, err := host.Init(); err != nil {
		return err
	}
	for _, b := range bindings {
		if err := b.Pin.In(gpio.PullUp, gpio.BothEdges); err != nil {
			return fmt.Errorf("detector: configure pin for signal %d: %w", b.SignalID, err)
		}
		b := b
		go func() {
			present := false
			newPresent := false
			for {
				timeout := debounceTimeout
				if newPresent == present {
					timeout = -1
				}
				if b.Pin.WaitForEdge(timeout) {
					newPresent = b.Pin.Read() == gpio.Low
				} else if newPresent != present {
					present = newPresent
					ch <- Event{SignalID: b.SignalID, Present: present}
				}
			}
		}()
	}
	return nil
}
