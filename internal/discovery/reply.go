package discovery

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/codec"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// reply layout
const (
	v3PrefixSize  = 8
	v3SuffixSize  = 16
	minBodySize   = 41
	serialSize    = 32
	idOffset      = 20
	idSize        = 6
	ssidLenOffset = 40
)

// ParseReply decodes a discovery reply into an identity. from is the
// sender and is used when the reply carries no address of its own.
//
// Version 3 modules wrap the 5A5A packet in an 8370 header and a 16 byte
// trailer; version 2 modules send the packet bare. The packet body,
// encrypted with the sign key, is:
//
//	[0:4]   IPv4 address, reversed
//	[4:8]   control port, little endian
//	[8:40]  serial number, NUL padded
//	[40]    SSID length n
//	[41:41+n] SSID, e.g. "net_ac_1A2B"
func ParseReply(data []byte, from *net.UDPAddr) (midea.DeviceIdentity, error) {
	var identity midea.DeviceIdentity

	packet := data
	switch {
	case len(data) >= 2 && data[0] == 0x83 && data[1] == 0x70:
		if len(data) < v3PrefixSize+v3SuffixSize+codec.PacketHeaderSize {
			return identity, midea.NewDecodeError(fmt.Sprintf("discovery reply too short: %d bytes", len(data)), nil)
		}
		identity.Version = midea.ProtocolV3
		packet = data[v3PrefixSize : len(data)-v3SuffixSize]
	case codec.IsPacket(data):
		identity.Version = midea.ProtocolV2
	default:
		return identity, midea.NewDecodeError("discovery reply has no known magic", nil)
	}

	if !codec.IsPacket(packet) {
		return identity, midea.NewDecodeError("discovery reply does not carry a 5A5A packet", nil)
	}
	if len(packet) < codec.PacketHeaderSize+codec.PacketChecksumSize+16 {
		return identity, midea.NewDecodeError(fmt.Sprintf("discovery packet too short: %d bytes", len(packet)), nil)
	}

	var id [8]byte
	copy(id[:], packet[idOffset:idOffset+idSize])
	identity.ID = binary.LittleEndian.Uint64(id[:])

	body, err := codec.DecryptPacketBody(packet[codec.PacketHeaderSize : len(packet)-codec.PacketChecksumSize])
	if err != nil {
		return identity, midea.NewDecodeError("discovery body does not decrypt", err)
	}
	if len(body) < minBodySize {
		return identity, midea.NewDecodeError(fmt.Sprintf("discovery body too short: %d bytes", len(body)), nil)
	}

	ip := net.IPv4(body[3], body[2], body[1], body[0])
	if ip.IsUnspecified() && from != nil {
		ip = from.IP
	}
	identity.IP = ip.String()

	identity.Port = int(binary.LittleEndian.Uint32(body[4:8]))
	if identity.Port <= 0 || identity.Port > 65535 {
		identity.Port = midea.DefaultPort
	}

	identity.Serial = string(bytes.TrimRight(body[8:8+serialSize], "\x00"))

	if n := int(body[ssidLenOffset]); n > 0 && minBodySize+n <= len(body) {
		identity.SSID = string(body[minBodySize : minBodySize+n])
		if t, ok := midea.ParseDeviceType(identity.SSID); ok {
			identity.DeviceType = t
		}
	}

	return identity, nil
}
