package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// CurrentVersion is the registry file format version.
const CurrentVersion = 1

// Registry represents the entire user configuration file.
// It stores the known units and application preferences.
type Registry struct {
	Version     int                `yaml:"version"`
	Devices     map[string]*Device `yaml:"devices,omitempty"` // Keyed by user chosen name
	Preferences *Preferences       `yaml:"preferences,omitempty"`

	path string // file the registry was loaded from, if any
}

// Device is a known unit: where it is, which protocol it speaks and the
// credentials needed to open a session.
type Device struct {
	Nickname string    `yaml:"nickname,omitempty"`  // Display name
	IP       string    `yaml:"ip"`                  // Last known IP address
	Port     int       `yaml:"port,omitempty"`      // TCP control port, 6444 when empty
	ID       uint64    `yaml:"id"`                  // Appliance id from discovery
	Version  int       `yaml:"version"`             // Protocol version, 2 or 3
	Token    string    `yaml:"token,omitempty"`     // 128 hex characters
	Key      string    `yaml:"key,omitempty"`       // 64 hex characters
	Serial   string    `yaml:"serial,omitempty"`    // Module serial number
	SSID     string    `yaml:"ssid,omitempty"`      // Module access point name
	LastSeen time.Time `yaml:"last_seen,omitempty"` // Last discovery/connection time
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	TemperatureUnit string `yaml:"temperature_unit"` // "C" or "F"
	DiscoverTimeout int    `yaml:"discover_timeout"` // Discovery pass length in seconds
	RequestTimeout  int    `yaml:"request_timeout"`  // Per request timeout in seconds
	Beep            bool   `yaml:"beep"`             // Chirp when a command is accepted
}

// DefaultPreferences returns the preferences used when the file has none.
func DefaultPreferences() *Preferences {
	return &Preferences{
		TemperatureUnit: "C",
		DiscoverTimeout: 5,
		RequestTimeout:  8,
		Beep:            false,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Devices:     make(map[string]*Device),
		Preferences: DefaultPreferences(),
	}
}

// DiscoverTimeoutDuration returns DiscoverTimeout as a duration.
func (p *Preferences) DiscoverTimeoutDuration() time.Duration {
	return time.Duration(p.DiscoverTimeout) * time.Second
}

// RequestTimeoutDuration returns RequestTimeout as a duration.
func (p *Preferences) RequestTimeoutDuration() time.Duration {
	return time.Duration(p.RequestTimeout) * time.Second
}

// Identity returns the identity used to open a session with the unit.
func (d *Device) Identity() midea.DeviceIdentity {
	port := d.Port
	if port == 0 {
		port = midea.DefaultPort
	}
	version := d.Version
	if version == 0 {
		version = midea.ProtocolV3
	}
	return midea.DeviceIdentity{
		IP:         d.IP,
		Port:       port,
		ID:         d.ID,
		Version:    version,
		Serial:     d.Serial,
		SSID:       d.SSID,
		DeviceType: midea.DeviceTypeAirConditioner,
	}
}

// Credentials decodes the stored token and key. A unit with neither stored
// returns empty credentials, which protocol v2 units accept.
func (d *Device) Credentials() (midea.Credentials, error) {
	if d.Token == "" && d.Key == "" {
		return midea.Credentials{}, nil
	}
	return midea.ParseCredentials(d.Token, d.Key)
}

// Validate checks the entry can be used to connect.
func (d *Device) Validate() error {
	if err := d.Identity().Validate(); err != nil {
		return err
	}
	if d.Identity().Version == midea.ProtocolV3 {
		if d.Token == "" || d.Key == "" {
			return midea.NewValidationError("protocol v3 units need a token and a key")
		}
		if _, err := d.Credentials(); err != nil {
			return err
		}
	}
	return nil
}

// String returns a one line summary
func (d *Device) String() string {
	return fmt.Sprintf("%d at %s v%d", d.ID, d.IP, d.Identity().Version)
}

// DeviceFromIdentity creates an entry for a discovered unit.
func DeviceFromIdentity(identity midea.DeviceIdentity) *Device {
	return &Device{
		IP:       identity.IP,
		Port:     identity.Port,
		ID:       identity.ID,
		Version:  identity.Version,
		Serial:   identity.Serial,
		SSID:     identity.SSID,
		LastSeen: time.Now(),
	}
}

// GetDevice retrieves a unit by name.
// Returns nil if the device doesn't exist in the registry.
func (r *Registry) GetDevice(name string) *Device {
	return r.Devices[name]
}

// EnsureDevice ensures a device entry exists in the registry.
// If the device doesn't exist, creates a new entry with default values.
// Returns the device entry (existing or newly created).
func (r *Registry) EnsureDevice(name string) *Device {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}

	if device, exists := r.Devices[name]; exists {
		return device
	}

	device := &Device{Version: midea.ProtocolV3}
	r.Devices[name] = device
	return device
}

// SetDevice stores or replaces the entry for name.
func (r *Registry) SetDevice(name string, device *Device) {
	if r.Devices == nil {
		r.Devices = make(map[string]*Device)
	}
	r.Devices[name] = device
}

// RemoveDevice deletes the entry for name and reports whether it existed.
func (r *Registry) RemoveDevice(name string) bool {
	if _, ok := r.Devices[name]; !ok {
		return false
	}
	delete(r.Devices, name)
	return true
}

// FindByID returns the name and entry of the unit with the given id.
func (r *Registry) FindByID(id uint64) (string, *Device, bool) {
	for _, name := range r.Names() {
		if d := r.Devices[name]; d.ID == id {
			return name, d, true
		}
	}
	return "", nil, false
}

// Names returns the device names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.Devices))
	for name := range r.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UpdateDeviceLastSeen updates the last seen timestamp and IP for a device.
func (r *Registry) UpdateDeviceLastSeen(name, ip string) {
	device := r.EnsureDevice(name)
	device.LastSeen = time.Now()
	device.IP = ip
}
