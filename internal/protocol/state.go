package protocol

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// Setpoint limits in Celsius
const (
	MinSetpointC = 16.0
	MaxSetpointC = 31.0
)

// Mode is the operational mode of the unit.
type Mode byte

// Operational modes, as encoded in bits 5..7 of the mode byte
const (
	ModeAuto Mode = 1
	ModeCool Mode = 2
	ModeDry  Mode = 3
	ModeHeat Mode = 4
	ModeFan  Mode = 5
)

// Modes lists every supported mode in display order
var Modes = []Mode{ModeAuto, ModeCool, ModeDry, ModeHeat, ModeFan}

// String returns the lower-case mode name
func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeCool:
		return "cool"
	case ModeDry:
		return "dry"
	case ModeHeat:
		return "heat"
	case ModeFan:
		return "fan"
	default:
		return fmt.Sprintf("mode(%d)", byte(m))
	}
}

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m >= ModeAuto && m <= ModeFan
}

// ParseMode parses a mode name such as "cool" or "Fan".
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "fan_only" || s == "fan-only" {
		s = "fan"
	}
	for _, m := range Modes {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, midea.NewValidationError(fmt.Sprintf("unknown mode %q (want auto, cool, dry, heat or fan)", s))
}

// FanSpeed is the fan setting. Fixed speeds are percentages.
type FanSpeed byte

// Fan speeds
const (
	FanLow        FanSpeed = 20
	FanMediumLow  FanSpeed = 40
	FanMedium     FanSpeed = 60
	FanMediumHigh FanSpeed = 80
	FanHigh       FanSpeed = 100
	FanAuto       FanSpeed = 102
)

// FanSpeeds lists every supported fan speed in display order
var FanSpeeds = []FanSpeed{FanLow, FanMediumLow, FanMedium, FanMediumHigh, FanHigh, FanAuto}

var fanNames = map[FanSpeed]string{
	FanLow:        "Low",
	FanMediumLow:  "Med-Low",
	FanMedium:     "Medium",
	FanMediumHigh: "Med-High",
	FanHigh:       "High",
	FanAuto:       "Auto",
}

// String returns the display name of the fan speed
func (f FanSpeed) String() string {
	if name, ok := fanNames[f]; ok {
		return name
	}
	return fmt.Sprintf("fan(%d)", byte(f))
}

// Valid reports whether f is one of the supported speeds
func (f FanSpeed) Valid() bool {
	_, ok := fanNames[f]
	return ok
}

// ParseFanSpeed accepts a percentage ("60"), a display name ("med-high") or "auto".
func ParseFanSpeed(s string) (FanSpeed, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(strings.TrimSuffix(s, "%")); err == nil {
		if f := FanSpeed(n); f.Valid() {
			return f, nil
		}
		return 0, midea.NewValidationError(fmt.Sprintf("unsupported fan speed %d (want 20, 40, 60, 80, 100 or auto)", n))
	}
	s = strings.ReplaceAll(s, "_", "-")
	for f, name := range fanNames {
		if strings.ToLower(name) == s {
			return f, nil
		}
	}
	return 0, midea.NewValidationError(fmt.Sprintf("unknown fan speed %q", s))
}

// fanFromWire maps the raw fan byte to a supported speed. Units report
// 101..103 for auto and sometimes arbitrary percentages in between the
// buckets.
func fanFromWire(b byte) (FanSpeed, error) {
	switch {
	case b >= 101 && b <= 103:
		return FanAuto, nil
	case b <= 100:
		best := FanLow
		for _, f := range FanSpeeds[:5] {
			if absDiff(int(b), int(f)) < absDiff(int(b), int(best)) {
				best = f
			}
		}
		return best, nil
	default:
		return 0, midea.NewDecodeError(fmt.Sprintf("fan speed byte %d out of range", b), nil)
	}
}

// decodeFan reads a fan byte. raw is the byte itself when it is not one of
// the named speeds, so that it can be written back unchanged.
func decodeFan(b byte) (fan FanSpeed, raw byte, err error) {
	fan, err = fanFromWire(b)
	if err != nil {
		return 0, 0, err
	}
	if b != byte(fan) {
		raw = b
	}
	return fan, raw, nil
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// ApplianceState is the full controllable state of the unit, plus read-only
// sensor values.
type ApplianceState struct {
	Power           bool     `json:"power"`
	Mode            Mode     `json:"mode"`
	SetpointC       float64  `json:"setpoint_c"`
	Fan             FanSpeed `json:"fan_speed"`
	SwingVertical   bool     `json:"swing_vertical"`
	SwingHorizontal bool     `json:"swing_horizontal"`
	Eco             bool     `json:"eco"`
	Turbo           bool     `json:"turbo"`

	IndoorC  *float64 `json:"indoor_c,omitempty"`
	OutdoorC *float64 `json:"outdoor_c,omitempty"`

	// bits read from the unit that we do not model but must write back
	reserved reservedBits
}

// reservedBits holds status fields carried from a status read into the next
// set command so that a read-merge-write cycle does not reset them.
type reservedBits struct {
	timer            [3]byte
	sleep            bool
	followMe         bool
	fahrenheit       bool
	freezeProtection bool
	humidity         byte
	fanRaw           byte // fan byte between the named speeds, 0 if none
}

var defaultTimer = [3]byte{0x7F, 0x7F, 0x00}

// timerFromWire keeps the zero value for "no timers set" so that states
// built in code and states read from a unit compare equal.
func timerFromWire(b []byte) [3]byte {
	var t [3]byte
	copy(t[:], b)
	if t == defaultTimer {
		return [3]byte{}
	}
	return t
}

// DefaultState is the state assumed when nothing has been read from the unit.
func DefaultState() ApplianceState {
	return ApplianceState{
		Mode:      ModeAuto,
		SetpointC: 24,
		Fan:       FanAuto,
	}
}

// DisplayFahrenheit reports whether the unit's own display is set to Fahrenheit.
func (s ApplianceState) DisplayFahrenheit() bool {
	return s.reserved.fahrenheit
}

// FanPercent returns the fan speed the unit reported. It differs from Fan
// when the unit runs between two named speeds, e.g. 50% set from the remote.
func (s ApplianceState) FanPercent() int {
	if s.reserved.fanRaw != 0 && s.Fan != FanAuto {
		return int(s.reserved.fanRaw)
	}
	return int(s.Fan)
}

// fanByte is the fan byte to send for s. A speed read from the unit is
// sent back as read unless Fan has been changed since.
func (s ApplianceState) fanByte() byte {
	if raw := s.reserved.fanRaw; raw != 0 {
		if f, err := fanFromWire(raw); err == nil && f == s.Fan {
			return raw
		}
	}
	return byte(s.Fan)
}

// Sleep reports whether sleep mode is active.
func (s ApplianceState) Sleep() bool {
	return s.reserved.sleep
}

// Validate checks every field can be encoded
func (s ApplianceState) Validate() error {
	if !s.Mode.Valid() {
		return midea.NewValidationError(fmt.Sprintf("invalid mode %d", byte(s.Mode)))
	}
	if !s.Fan.Valid() {
		return midea.NewValidationError(fmt.Sprintf("invalid fan speed %d", byte(s.Fan)))
	}
	return ValidateSetpoint(s.SetpointC)
}

// String returns a one line summary
func (s ApplianceState) String() string {
	power := "off"
	if s.Power {
		power = "on"
	}
	return fmt.Sprintf("power=%s mode=%s setpoint=%.1fC fan=%s vswing=%t hswing=%t eco=%t turbo=%t",
		power, s.Mode, s.SetpointC, s.Fan, s.SwingVertical, s.SwingHorizontal, s.Eco, s.Turbo)
}

// QuantizeSetpoint rounds a Celsius value to the nearest half degree.
func QuantizeSetpoint(c float64) float64 {
	return math.Round(c*2) / 2
}

// ValidateSetpoint rejects values outside [16, 31] or not on a half degree.
func ValidateSetpoint(c float64) error {
	if math.IsNaN(c) || c < MinSetpointC || c > MaxSetpointC {
		return midea.NewValidationError(fmt.Sprintf("setpoint %.1f°C outside %.0f-%.0f°C", c, MinSetpointC, MaxSetpointC))
	}
	if QuantizeSetpoint(c) != c {
		return midea.NewValidationError(fmt.Sprintf("setpoint %v°C is not a multiple of 0.5", c))
	}
	return nil
}

// Partial is a field level update. Nil fields are left unchanged.
type Partial struct {
	Power           *bool
	Mode            *Mode
	SetpointC       *float64
	Fan             *FanSpeed
	SwingVertical   *bool
	SwingHorizontal *bool
	Eco             *bool
	Turbo           *bool
}

// Empty reports whether the update changes nothing
func (p Partial) Empty() bool {
	return p == Partial{}
}

// String lists the fields being changed
func (p Partial) String() string {
	var parts []string
	if p.Power != nil {
		parts = append(parts, fmt.Sprintf("power=%t", *p.Power))
	}
	if p.Mode != nil {
		parts = append(parts, "mode="+p.Mode.String())
	}
	if p.SetpointC != nil {
		parts = append(parts, fmt.Sprintf("setpoint=%.1fC", *p.SetpointC))
	}
	if p.Fan != nil {
		parts = append(parts, "fan="+p.Fan.String())
	}
	if p.SwingVertical != nil {
		parts = append(parts, fmt.Sprintf("vswing=%t", *p.SwingVertical))
	}
	if p.SwingHorizontal != nil {
		parts = append(parts, fmt.Sprintf("hswing=%t", *p.SwingHorizontal))
	}
	if p.Eco != nil {
		parts = append(parts, fmt.Sprintf("eco=%t", *p.Eco))
	}
	if p.Turbo != nil {
		parts = append(parts, fmt.Sprintf("turbo=%t", *p.Turbo))
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{" + strings.Join(parts, " ") + "}"
}

// Merge applies p on top of s. Setpoints are quantized to half degrees;
// range checking is left to Validate.
func Merge(s ApplianceState, p Partial) ApplianceState {
	if p.Power != nil {
		s.Power = *p.Power
	}
	if p.Mode != nil {
		s.Mode = *p.Mode
	}
	if p.SetpointC != nil {
		s.SetpointC = QuantizeSetpoint(*p.SetpointC)
	}
	if p.Fan != nil {
		s.Fan = *p.Fan
		s.reserved.fanRaw = 0
	}
	if p.SwingVertical != nil {
		s.SwingVertical = *p.SwingVertical
	}
	if p.SwingHorizontal != nil {
		s.SwingHorizontal = *p.SwingHorizontal
	}
	if p.Eco != nil {
		s.Eco = *p.Eco
	}
	if p.Turbo != nil {
		s.Turbo = *p.Turbo
	}
	return s
}

// Ptr returns a pointer to v, for building a Partial inline.
func Ptr[T any](v T) *T {
	return &v
}
