package codec

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// 5A5A packet layout
const (
	PacketHeaderSize   = 40
	PacketChecksumSize = 16
	minPacketSize      = PacketHeaderSize + 16 + PacketChecksumSize
)

var packetMagic = []byte{0x5A, 0x5A}

// Packet is a decoded 5A5A packet.
type Packet struct {
	DeviceID  uint64
	MessageID uint32
	Frame     []byte // decrypted appliance frame (starts with 0xAA)
}

// EncodePacket wraps an appliance frame in a 5A5A packet addressed to the
// given device. The timestamp only affects header bytes 12..19.
//
// Layout:
//
//	[0:2]   5A 5A
//	[2:4]   01 11
//	[4:6]   total length including checksum (little-endian)
//	[6:8]   20 00
//	[8:12]  message id
//	[12:20] timestamp, two decimal digits per byte, least significant first
//	[20:28] device id (little-endian)
//	[28:40] zero
//	[40:n]  AES-128-ECB(frame)
//	[n:n+16] MD5(packet || SignKey)
func EncodePacket(deviceID uint64, frame []byte, now time.Time) []byte {
	body := EncryptPacketBody(frame)

	packet := make([]byte, PacketHeaderSize, PacketHeaderSize+len(body)+PacketChecksumSize)
	copy(packet[0:], packetMagic)
	packet[2], packet[3] = 0x01, 0x11
	packet[6], packet[7] = 0x20, 0x00
	copy(packet[12:20], packetTime(now))
	binary.LittleEndian.PutUint64(packet[20:28], deviceID)

	packet = append(packet, body...)
	binary.LittleEndian.PutUint16(packet[4:6], uint16(len(packet)+PacketChecksumSize))
	return append(packet, packetChecksum(packet)...)
}

// DecodePacket verifies and decrypts a 5A5A packet. Bytes past the length
// recorded in the header are ignored.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < minPacketSize {
		return nil, midea.NewDecodeError(fmt.Sprintf("5A5A packet too short: %d bytes", len(data)), nil)
	}
	if !bytes.Equal(data[0:2], packetMagic) {
		return nil, midea.NewIntegrityError(fmt.Sprintf("bad 5A5A magic % x", data[0:2]))
	}

	size := int(binary.LittleEndian.Uint16(data[4:6]))
	if size < minPacketSize || size > len(data) {
		return nil, midea.NewIntegrityError(fmt.Sprintf("5A5A length field %d does not fit %d bytes", size, len(data)))
	}
	data = data[:size]

	sum := data[size-PacketChecksumSize:]
	if subtle.ConstantTimeCompare(sum, packetChecksum(data[:size-PacketChecksumSize])) != 1 {
		return nil, midea.NewIntegrityError("5A5A checksum mismatch")
	}

	frame, err := DecryptPacketBody(data[PacketHeaderSize : size-PacketChecksumSize])
	if err != nil {
		return nil, &midea.Error{Kind: midea.KindIntegrity, Op: "verify", Message: "5A5A body does not decrypt", Err: err}
	}

	return &Packet{
		DeviceID:  binary.LittleEndian.Uint64(data[20:28]),
		MessageID: binary.LittleEndian.Uint32(data[8:12]),
		Frame:     frame,
	}, nil
}

// IsPacket reports whether data starts with the 5A5A magic.
func IsPacket(data []byte) bool {
	return len(data) >= 2 && bytes.Equal(data[0:2], packetMagic)
}

// packetTime renders t as "YYYYMMDDhhmmssff" and stores each two digit
// group as one byte, in reverse order.
func packetTime(t time.Time) []byte {
	digits := fmt.Sprintf("%04d%02d%02d%02d%02d%02d%02d",
		t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/10_000_000)

	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		d := (digits[2*i]-'0')*10 + (digits[2*i+1] - '0')
		out[7-i] = d
	}
	return out
}
