package protocol

import (
	"fmt"
	"sync/atomic"

	"github.com/sigurn/crc8"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// Appliance frame constants
const (
	// FrameStart is the first byte of every appliance frame
	FrameStart = 0xAA

	// FrameHeaderSize is the fixed header before the body
	FrameHeaderSize = 10

	// MaxFrameSize is the largest frame the one byte length field can describe
	MaxFrameSize = 0xFF + 1
)

// FrameType is header byte 9 of an appliance frame.
type FrameType byte

// Frame types
const (
	FrameTypeSet     FrameType = 0x02
	FrameTypeQuery   FrameType = 0x03
	FrameTypeNotify  FrameType = 0x04
	FrameTypeNotify2 FrameType = 0x05
)

// String returns a human-readable frame type name
func (t FrameType) String() string {
	switch t {
	case FrameTypeSet:
		return "set"
	case FrameTypeQuery:
		return "query"
	case FrameTypeNotify, FrameTypeNotify2:
		return "notify"
	default:
		return fmt.Sprintf("0x%02x", byte(t))
	}
}

var crcTable = crc8.MakeTable(crc8.CRC8_MAXIM)

// Global message ID counter (thread-safe)
var messageIDCounter uint32

// NextMessageID returns the next command message id. It wraps after 255 and
// never returns 0.
func NextMessageID() byte {
	for {
		id := byte(atomic.AddUint32(&messageIDCounter, 1))
		if id != 0 {
			return id
		}
	}
}

// Frame is a parsed appliance frame.
type Frame struct {
	DeviceType byte
	Type       FrameType
	Body       []byte // frame[10:len-1], including the trailing CRC-8 when present
	Raw        []byte
}

// BuildFrame assembles a command frame:
//
//	[0]     AA
//	[1]     length of everything after byte 0
//	[2]     device type
//	[3:9]   zero
//	[9]     frame type
//	[10:n]  body || message id || CRC-8/MAXIM(body || message id)
//	[n]     checksum: two's complement of sum(frame[1:n])
func BuildFrame(deviceType byte, typ FrameType, body []byte, msgID byte) ([]byte, error) {
	payload := make([]byte, 0, len(body)+1)
	payload = append(payload, body...)
	return buildFrame(deviceType, typ, append(payload, msgID))
}

// buildFrame wraps payload with the header, its CRC-8 and the frame checksum.
func buildFrame(deviceType byte, typ FrameType, payload []byte) ([]byte, error) {
	size := FrameHeaderSize + len(payload) + 2
	if size > MaxFrameSize {
		return nil, midea.NewValidationError(fmt.Sprintf("frame payload too large: %d bytes", len(payload)))
	}

	frame := make([]byte, FrameHeaderSize, size)
	frame[0] = FrameStart
	frame[1] = byte(size - 1)
	frame[2] = deviceType
	frame[9] = byte(typ)

	frame = append(frame, payload...)
	frame = append(frame, CRC8(payload))
	return append(frame, Checksum(frame[1:])), nil
}

// ParseFrame validates the start byte, length and checksum of an appliance
// frame. The body CRC is not checked here; see Frame.Payload.
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < FrameHeaderSize+2 {
		return nil, midea.NewDecodeError(fmt.Sprintf("appliance frame too short: %d bytes", len(data)), nil)
	}
	if data[0] != FrameStart {
		return nil, midea.NewDecodeError(fmt.Sprintf("bad frame start byte 0x%02x", data[0]), nil)
	}
	if int(data[1]) != len(data)-1 {
		return nil, midea.NewDecodeError(fmt.Sprintf("frame length byte %d does not match %d bytes", data[1], len(data)), nil)
	}
	if got, want := data[len(data)-1], Checksum(data[1:len(data)-1]); got != want {
		return nil, midea.NewIntegrityError(fmt.Sprintf("frame checksum 0x%02x, want 0x%02x", got, want))
	}

	return &Frame{
		DeviceType: data[2],
		Type:       FrameType(data[9]),
		Body:       data[FrameHeaderSize : len(data)-1],
		Raw:        data,
	}, nil
}

// Payload returns the body without its trailing check byte. Units use either
// a CRC-8 or a second additive checksum there, so both are accepted.
func (f *Frame) Payload() ([]byte, error) {
	if len(f.Body) < 2 {
		return nil, midea.NewDecodeError("appliance frame has no payload", nil)
	}
	payload, check := f.Body[:len(f.Body)-1], f.Body[len(f.Body)-1]
	if check != CRC8(payload) && check != Checksum(payload) {
		return nil, midea.NewIntegrityError(fmt.Sprintf("payload check byte 0x%02x matches neither CRC nor checksum", check))
	}
	return payload, nil
}

// Checksum is the two's complement of the byte sum.
func Checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum + 1
}

// CRC8 computes the CRC-8/MAXIM (Dallas 1-Wire) checksum used for frame bodies.
func CRC8(data []byte) byte {
	return crc8.Checksum(data, crcTable)
}

// String returns a human-readable frame summary
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{device=0x%02x, type=%s, body=%d bytes}", f.DeviceType, f.Type, len(f.Body))
}
