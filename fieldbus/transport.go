package fieldbus

import (
	"bufio"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/tarm/serial"
)

// degradedThreshold is the number of consecutive framing or CRC failures
// after which the bus is considered degraded (the SUPPLEMENTED feature
// recorded in SPEC_FULL.md: a bus-degraded signal derived from framing
// error runs, since the distilled spec only asked for CRC validation and
// never said what a controller should do about a chattering bus).
const degradedThreshold = 5

// SerialTransport carries HDLC frames over a serial field bus connection,
// grounded on the teacher's mjolnir.Open device-discovery pattern:
// try each candidate device path in turn and use the first that opens.
type SerialTransport struct {
	port io.ReadWriteCloser
	r    *bufio.Reader
	w    *bufio.Writer

	consecutiveErrors atomic.Int32
}

// OpenSerial opens a field bus serial connection. If dev is empty, a
// platform-appropriate default device path is tried.
func OpenSerial(dev string, baud int) (*SerialTransport, error) {
	var devices []string
	if dev != "" {
		devices = []string{dev}
	} else {
		devices = []string{"/dev/ttyUSB0", "/dev/ttyAMA0", "/dev/ttyS0"}
	}
	var firstErr error
	for _, d := range devices {
		p, err := serial.OpenPort(&serial.Config{Name: d, Baud: baud, ReadTimeout: time.Second})
		if err == nil {
			return &SerialTransport{port: p, r: bufio.NewReader(p), w: bufio.NewWriter(p)}, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("fieldbus: no candidate device path")
	}
	return nil, firstErr
}

// NewSerialTransport wraps an already-open connection, for testing against
// an in-memory io.ReadWriteCloser instead of a real port.
func NewSerialTransport(conn io.ReadWriteCloser) *SerialTransport {
	return &SerialTransport{port: conn, r: bufio.NewReader(conn), w: bufio.NewWriter(conn)}
}

// Send frames and writes f.
func (t *SerialTransport) Send(f Frame) error {
	_, err := t.w.Write(Encode(f))
	if err != nil {
		return err
	}
	return t.w.Flush()
}

// Receive reads the next flag-delimited frame off the wire and decodes it,
// tracking consecutive decode failures toward bus-degraded status.
func (t *SerialTransport) Receive() (Frame, error) {
	raw, err := t.r.ReadBytes(flagByte)
	if err != nil {
		return Frame{}, err
	}
	// ReadBytes up to the first flagByte only returns the delimiter
	// proper when it is found after at least one leading byte; skip
	// stray leading flag bytes between frames.
	for len(raw) == 1 && raw[0] == flagByte {
		raw, err = t.r.ReadBytes(flagByte)
		if err != nil {
			return Frame{}, err
		}
	}
	framed := append([]byte{flagByte}, raw...)
	f, err := Decode(framed)
	if err != nil {
		t.consecutiveErrors.Add(1)
		return Frame{}, err
	}
	t.consecutiveErrors.Store(0)
	return f, nil
}

// Degraded reports whether the bus has seen degradedThreshold consecutive
// framing failures without a clean frame in between.
func (t *SerialTransport) Degraded() bool {
	return t.consecutiveErrors.Load() >= degradedThreshold
}

// Close closes the underlying connection.
func (t *SerialTransport) Close() error {
	return t.port.Close()
}
