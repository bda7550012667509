package protocol

import (
	"fmt"
	"math"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// Body identifiers (first payload byte)
const (
	CommandSetState   = 0x40
	CommandQueryState = 0x41
	ResponseState     = 0xC0
)

// set command layout
const (
	setCommandSize = 24

	controlSource = 0x02
	beepBit       = 0x40
	powerBit      = 0x01
	halfDegreeBit = 0x10
	swingBase     = 0x30
	swingVertical = 0x0C
	swingHoriz    = 0x03
	followMeBit   = 0x80
	turboAltBit   = 0x20
	ecoSetBit     = 0x80
	sleepBit      = 0x01
	turboBit      = 0x02
	fahrenheitBit = 0x04
	freezeBit     = 0x80
)

// queryBody requests a full status report with the indoor temperature.
var queryBody = []byte{
	CommandQueryState,
	0x81, 0x00, 0xFF, 0x03, 0xFF, 0x00,
	0x02,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x03,
}

// SetOptions control how a set command is acknowledged by the unit.
type SetOptions struct {
	// Beep makes the indoor unit chirp when it accepts the command.
	Beep bool
}

// EncodeQuery builds the status query frame for an air conditioner.
func EncodeQuery(msgID byte) []byte {
	frame, _ := BuildFrame(midea.DeviceTypeAirConditioner, FrameTypeQuery, queryBody, msgID)
	return frame
}

// EncodeSetCommand builds the full-state set frame.
//
// The unit has no partial update: every field is transmitted, so the state
// must come from a status read merged with the caller's changes. Bits that
// were read but are not modelled (timers, sleep, follow-me, display unit,
// freeze protection, humidity target) are written back unchanged.
//
// Body layout:
//
//	[0]  40
//	[1]  02 | beep 0x40 | power 0x01
//	[2]  mode<<5 | half degree 0x10 | (setpoint-16) for 17..30
//	[3]  fan speed
//	[4:7] timers
//	[7]  30 | vertical swing 0x0C | horizontal swing 0x03
//	[8]  follow-me 0x80 | turbo 0x20
//	[9]  eco 0x80
//	[10] sleep 0x01 | turbo 0x02 | fahrenheit 0x04
//	[18] (setpoint-12) for setpoints outside 17..30
//	[19] humidity target
//	[21] freeze protection 0x80
func EncodeSetCommand(state ApplianceState, opts SetOptions, msgID byte) ([]byte, error) {
	if err := state.Validate(); err != nil {
		return nil, err
	}

	body := make([]byte, setCommandSize)
	body[0] = CommandSetState

	body[1] = controlSource
	if opts.Beep {
		body[1] |= beepBit
	}
	if state.Power {
		body[1] |= powerBit
	}

	integral, fractional := math.Modf(state.SetpointC)
	whole := int(integral)
	var temp, tempAlt byte
	if whole >= 17 && whole <= 30 {
		temp = byte(whole-16) & 0x0F
	} else {
		tempAlt = byte(whole-12) & 0x1F
	}
	if fractional > 0 {
		temp |= halfDegreeBit
	}
	body[2] = temp | byte(state.Mode&0x07)<<5

	body[3] = state.fanByte()

	timer := state.reserved.timer
	if timer == [3]byte{} {
		timer = defaultTimer
	}
	copy(body[4:7], timer[:])

	body[7] = swingBase
	if state.SwingVertical {
		body[7] |= swingVertical
	}
	if state.SwingHorizontal {
		body[7] |= swingHoriz
	}

	if state.reserved.followMe {
		body[8] |= followMeBit
	}
	if state.Turbo {
		body[8] |= turboAltBit
		body[10] |= turboBit
	}
	if state.Eco {
		body[9] = ecoSetBit
	}
	if state.reserved.sleep {
		body[10] |= sleepBit
	}
	if state.reserved.fahrenheit {
		body[10] |= fahrenheitBit
	}

	body[18] = tempAlt
	body[19] = state.reserved.humidity & 0x7F
	if state.reserved.freezeProtection {
		body[21] = freezeBit
	}

	return BuildFrame(midea.DeviceTypeAirConditioner, FrameTypeSet, body, msgID)
}

// DecodeSetCommand is the inverse of EncodeSetCommand. It is used to show
// what a command will do before it is sent.
func DecodeSetCommand(data []byte) (ApplianceState, SetOptions, error) {
	frame, err := ParseFrame(data)
	if err != nil {
		return ApplianceState{}, SetOptions{}, err
	}
	if frame.Type != FrameTypeSet {
		return ApplianceState{}, SetOptions{}, midea.NewDecodeError(fmt.Sprintf("not a set frame: type %s", frame.Type), nil)
	}
	payload, err := frame.Payload()
	if err != nil {
		return ApplianceState{}, SetOptions{}, err
	}
	// payload still carries the message id
	if len(payload) != setCommandSize+1 || payload[0] != CommandSetState {
		return ApplianceState{}, SetOptions{}, midea.NewDecodeError(fmt.Sprintf("malformed set command body (%d bytes)", len(payload)), nil)
	}
	b := payload[:setCommandSize]

	var s ApplianceState
	s.Power = b[1]&powerBit != 0
	s.Mode = Mode((b[2] >> 5) & 0x07)
	if alt := b[18] & 0x1F; alt != 0 {
		s.SetpointC = float64(alt) + 12
	} else {
		s.SetpointC = float64(b[2]&0x0F) + 16
	}
	if b[2]&halfDegreeBit != 0 {
		s.SetpointC += 0.5
	}
	s.Fan, s.reserved.fanRaw, err = decodeFan(b[3])
	if err != nil {
		return ApplianceState{}, SetOptions{}, err
	}
	s.SwingVertical = b[7]&swingVertical != 0
	s.SwingHorizontal = b[7]&swingHoriz != 0
	s.Turbo = b[8]&turboAltBit != 0 || b[10]&turboBit != 0
	s.Eco = b[9]&ecoSetBit != 0

	s.reserved.timer = timerFromWire(b[4:7])
	s.reserved.followMe = b[8]&followMeBit != 0
	s.reserved.sleep = b[10]&sleepBit != 0
	s.reserved.fahrenheit = b[10]&fahrenheitBit != 0
	s.reserved.humidity = b[19] & 0x7F
	s.reserved.freezeProtection = b[21]&freezeBit != 0

	if err := s.Validate(); err != nil {
		return ApplianceState{}, SetOptions{}, &midea.Error{Kind: midea.KindDecode, Op: "decode", Message: "set command carries invalid state", Err: err}
	}

	return s, SetOptions{Beep: b[1]&beepBit != 0}, nil
}
