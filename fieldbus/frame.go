// Package fieldbus implements the HDLC-framed serial protocol between the
// controller and field bus interface boxes (FIBs): byte-stuffed,
// CRC-16-guarded frames carrying output-state and input-state payloads
// (§4.6).
package fieldbus

import (
	"encoding/binary"
	"fmt"
)

// ProtocolVersion is the wire version byte every frame carries, matching
// the original controller's GenericFrame.VERSION.
const ProtocolVersion byte = 11

// FrameType identifies the payload carried by a Frame.
type FrameType byte

const (
	Unknown FrameType = 0
	Awk     FrameType = 1
	Nak     FrameType = 2
	Ignore  FrameType = 3
	Beacon  FrameType = 4
	Outputs FrameType = 16
	Inputs  FrameType = 32
)

func (t FrameType) String() string {
	switch t {
	case Awk:
		return "AWK"
	case Nak:
		return "NAK"
	case Ignore:
		return "IGN"
	case Beacon:
		return "BEACON"
	case Outputs:
		return "OUTPUTS"
	case Inputs:
		return "INPUTS"
	default:
		return "UNKNOWN"
	}
}

// DeviceAddress identifies a participant on the field bus.
type DeviceAddress byte

const (
	AddrUnknown    DeviceAddress = 0x00
	AddrTFIB1      DeviceAddress = 0x08
	AddrController DeviceAddress = 0xFF
)

// Frame is one HDLC-delimited field bus message, before or after wire
// encoding. The wire layout (§4.6) is a single destination Address, a
// Version byte, a Type byte, the Payload, and a trailing CRC-16 — there is
// no separate source field on this bus, only a destination per frame.
type Frame struct {
	Address DeviceAddress
	Version byte
	Type    FrameType
	Payload []byte
}

// Encode serializes f into a flag-delimited, byte-stuffed, CRC-guarded
// wire frame ready to write to a SerialTransport.
func Encode(f Frame) []byte {
	version := f.Version
	if version == 0 {
		version = ProtocolVersion
	}
	body := make([]byte, 0, 3+len(f.Payload)+2)
	body = append(body, byte(f.Address), version, byte(f.Type))
	body = append(body, f.Payload...)
	crc := crc16(body)
	var crcBuf [2]byte
	binary.BigEndian.PutUint16(crcBuf[:], crc)
	body = append(body, crcBuf[:]...)
	return stuff(body)
}

// Decode parses a flag-delimited wire frame produced by Encode, verifying
// its CRC. decode(encode(f)) == f for every valid Frame (§8).
func Decode(framed []byte) (Frame, error) {
	body, err := unstuff(framed)
	if err != nil {
		return Frame{}, err
	}
	if len(body) < 5 {
		return Frame{}, fmt.Errorf("fieldbus: frame too short (%d bytes)", len(body))
	}
	header := body[:len(body)-2]
	gotCRC := binary.BigEndian.Uint16(body[len(body)-2:])
	wantCRC := crc16(header)
	if gotCRC != wantCRC {
		return Frame{}, fmt.Errorf("fieldbus: CRC mismatch: got %#04x want %#04x", gotCRC, wantCRC)
	}
	return Frame{
		Address: DeviceAddress(header[0]),
		Version: header[1],
		Type:    FrameType(header[2]),
		Payload: append([]byte(nil), header[3:]...),
	}, nil
}
