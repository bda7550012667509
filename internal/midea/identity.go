package midea

import (
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Protocol versions spoken by the WiFi module.
const (
	// ProtocolV2 modules accept raw 5A5A packets with no handshake.
	ProtocolV2 = 2
	// ProtocolV3 modules wrap every packet in the authenticated 8370 envelope.
	ProtocolV3 = 3
)

// DefaultPort is the TCP control port used when discovery does not report one.
const DefaultPort = 6444

// DeviceTypeAirConditioner is the appliance type byte for air conditioners.
const DeviceTypeAirConditioner byte = 0xAC

// DeviceIdentity describes a unit well enough to open a session with it.
// It is a plain value and is copied, not shared.
type DeviceIdentity struct {
	IP         string `json:"ip"`
	Port       int    `json:"port"`
	ID         uint64 `json:"id"`
	Version    int    `json:"version"`
	MAC        string `json:"mac,omitempty"`
	Serial     string `json:"serial,omitempty"`
	SSID       string `json:"ssid,omitempty"`
	DeviceType byte   `json:"device_type"`
}

// Address returns the host:port of the control socket
func (d DeviceIdentity) Address() string {
	port := d.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(d.IP, strconv.Itoa(port))
}

// String returns a human-readable representation of the identity
func (d DeviceIdentity) String() string {
	if d.Serial != "" {
		return fmt.Sprintf("%d (%s) at %s v%d", d.ID, d.Serial, d.Address(), d.Version)
	}
	return fmt.Sprintf("%d at %s v%d", d.ID, d.Address(), d.Version)
}

// Validate checks that the identity can be used to open a session
func (d DeviceIdentity) Validate() error {
	if net.ParseIP(d.IP) == nil {
		return NewValidationError(fmt.Sprintf("invalid IP address %q", d.IP))
	}
	if d.Port < 0 || d.Port > 65535 {
		return NewValidationError(fmt.Sprintf("invalid port %d", d.Port))
	}
	if d.Version != ProtocolV2 && d.Version != ProtocolV3 {
		return NewValidationError(fmt.Sprintf("unsupported protocol version %d", d.Version))
	}
	return nil
}

// ParseDeviceType extracts the appliance type from a module SSID such as
// "net_ac_1A2B". ok is false when the SSID does not follow that pattern.
func ParseDeviceType(ssid string) (deviceType byte, ok bool) {
	parts := strings.Split(ssid, "_")
	if len(parts) < 3 || parts[0] != "net" {
		return 0, false
	}
	b, err := hex.DecodeString(parts[1])
	if err != nil || len(b) != 1 {
		return 0, false
	}
	return b[0], true
}
