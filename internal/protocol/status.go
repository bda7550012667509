package protocol

import (
	"fmt"
	"math"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// status payload layout
const (
	statusMinLength = 15
	statusLength    = 24

	ecoStatusBit = 0x10
	noSensor     = 0xFF
)

// DecodeStatus parses a 0xC0 status response frame.
//
// Payload layout (offsets from the 0xC0 byte):
//
//	[1]  power 0x01
//	[2]  mode<<5 | half degree 0x10 | (setpoint-16)
//	[3]  fan speed (102 = auto)
//	[4:7] timers
//	[7]  swing: vertical 0x0C, horizontal 0x03
//	[8]  follow-me 0x80 | turbo 0x20
//	[9]  eco 0x10
//	[10] sleep 0x01 | turbo 0x02 | fahrenheit 0x04
//	[11] indoor temperature, (d-50)/2, 0xFF when absent
//	[12] outdoor temperature, same encoding
//	[13] (setpoint-12) when nonzero, overrides [2]
//	[15] tenths of a degree: indoor low nibble, outdoor high nibble
//	[19] humidity target
//	[21] freeze protection 0x80
func DecodeStatus(data []byte) (ApplianceState, error) {
	frame, err := ParseFrame(data)
	if err != nil {
		return ApplianceState{}, err
	}
	payload, err := frame.Payload()
	if err != nil {
		return ApplianceState{}, err
	}
	return decodeStatusPayload(payload)
}

func decodeStatusPayload(p []byte) (ApplianceState, error) {
	if len(p) < statusMinLength {
		return ApplianceState{}, midea.NewDecodeError(fmt.Sprintf("status payload too short: %d bytes", len(p)), nil)
	}
	if p[0] != ResponseState {
		return ApplianceState{}, midea.NewDecodeError(fmt.Sprintf("not a status response: id 0x%02x", p[0]), nil)
	}

	var s ApplianceState
	s.Power = p[1]&powerBit != 0

	s.Mode = Mode((p[2] >> 5) & 0x07)
	if !s.Mode.Valid() {
		return ApplianceState{}, midea.NewDecodeError(fmt.Sprintf("unknown mode %d", byte(s.Mode)), nil)
	}

	s.SetpointC = float64(p[2]&0x0F) + 16
	if alt := p[13] & 0x1F; alt != 0 {
		s.SetpointC = float64(alt) + 12
	}
	if p[2]&halfDegreeBit != 0 {
		s.SetpointC += 0.5
	}
	if s.SetpointC < MinSetpointC || s.SetpointC > MaxSetpointC {
		return ApplianceState{}, midea.NewDecodeError(fmt.Sprintf("setpoint %.1f°C out of range", s.SetpointC), nil)
	}

	fan, raw, err := decodeFan(p[3] & 0x7F)
	if err != nil {
		return ApplianceState{}, err
	}
	s.Fan, s.reserved.fanRaw = fan, raw

	s.SwingVertical = p[7]&swingVertical != 0
	s.SwingHorizontal = p[7]&swingHoriz != 0
	s.Turbo = p[8]&turboAltBit != 0 || p[10]&turboBit != 0
	s.Eco = p[9]&ecoStatusBit != 0

	s.reserved.timer = timerFromWire(p[4:7])
	s.reserved.followMe = p[8]&followMeBit != 0
	s.reserved.sleep = p[10]&sleepBit != 0
	s.reserved.fahrenheit = p[10]&fahrenheitBit != 0

	var indoorTenths, outdoorTenths byte
	hasTenths := len(p) > 15
	if hasTenths {
		indoorTenths, outdoorTenths = p[15]&0x0F, p[15]>>4
	}
	s.IndoorC = decodeTemperature(p[11], indoorTenths, hasTenths && !s.reserved.fahrenheit)
	s.OutdoorC = decodeTemperature(p[12], outdoorTenths, hasTenths && !s.reserved.fahrenheit)

	if len(p) > 19 {
		s.reserved.humidity = p[19] & 0x7F
	}
	if len(p) > 21 {
		s.reserved.freezeProtection = p[21]&freezeBit != 0
	}

	return s, nil
}

// decodeTemperature converts a sensor byte. When tenths are reported the
// half degree resolution of the byte is dropped in favour of them.
func decodeTemperature(d, tenths byte, useTenths bool) *float64 {
	if d == noSensor {
		return nil
	}
	t := (float64(d) - 50) / 2
	if useTenths {
		// the sign comes from the raw byte; (-1, 0) truncates to -0
		whole := math.Trunc(t)
		if d < 50 {
			t = whole - float64(tenths)/10
		} else {
			t = whole + float64(tenths)/10
		}
	}
	return &t
}

// encodeTemperature is the inverse of decodeTemperature for values with at
// most one decimal place.
func encodeTemperature(t *float64, useTenths bool) (d, tenths byte) {
	if t == nil {
		return noSensor, 0
	}
	if !useTenths {
		return byte(math.Round(*t*2) + 50), 0
	}
	whole := math.Trunc(*t)
	frac := math.Round(math.Abs(*t-whole) * 10)
	half := math.Floor(*t * 2)
	if *t < 0 {
		half = min(math.Ceil(*t*2), -1)
	}
	return byte(half + 50), byte(frac)
}

// EncodeStatus builds the 0xC0 status response a unit would send for state.
// It mirrors DecodeStatus and is used by simulators and tests.
func EncodeStatus(state ApplianceState, typ FrameType) ([]byte, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}

	p := make([]byte, statusLength)
	p[0] = ResponseState
	if state.Power {
		p[1] |= powerBit
	}

	integral, fractional := math.Modf(state.SetpointC)
	whole := int(integral)
	if whole >= 17 && whole <= 30 {
		p[2] = byte(whole-16) & 0x0F
	} else {
		p[13] = byte(whole-12) & 0x1F
	}
	if fractional > 0 {
		p[2] |= halfDegreeBit
	}
	p[2] |= byte(state.Mode&0x07) << 5

	p[3] = state.fanByte()

	timer := state.reserved.timer
	if timer == [3]byte{} {
		timer = defaultTimer
	}
	copy(p[4:7], timer[:])

	if state.SwingVertical {
		p[7] |= swingVertical
	}
	if state.SwingHorizontal {
		p[7] |= swingHoriz
	}
	if state.Turbo {
		p[8] |= turboAltBit
		p[10] |= turboBit
	}
	if state.reserved.followMe {
		p[8] |= followMeBit
	}
	if state.Eco {
		p[9] |= ecoStatusBit
	}
	if state.reserved.sleep {
		p[10] |= sleepBit
	}
	if state.reserved.fahrenheit {
		p[10] |= fahrenheitBit
	}

	useTenths := !state.reserved.fahrenheit
	var indoorTenths, outdoorTenths byte
	p[11], indoorTenths = encodeTemperature(state.IndoorC, useTenths)
	p[12], outdoorTenths = encodeTemperature(state.OutdoorC, useTenths)
	p[15] = outdoorTenths<<4 | indoorTenths&0x0F

	p[19] = state.reserved.humidity & 0x7F
	if state.reserved.freezeProtection {
		p[21] = freezeBit
	}

	return buildFrame(midea.DeviceTypeAirConditioner, typ, p)
}

// StateFromSetCommand applies a decoded set command to the state a unit
// holds, keeping its sensor readings. Simulators use it to answer a set
// command with the resulting status.
func StateFromSetCommand(current ApplianceState, command []byte) (ApplianceState, error) {
	next, _, err := DecodeSetCommand(command)
	if err != nil {
		return ApplianceState{}, err
	}
	next.IndoorC = current.IndoorC
	next.OutdoorC = current.OutdoorC
	return next, nil
}
