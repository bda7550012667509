package protocol

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

func TestCRC8(t *testing.T) {
	// CRC-8/MAXIM check value
	if got := CRC8([]byte("123456789")); got != 0xA1 {
		t.Errorf("CRC8() = 0x%02x, want 0xa1", got)
	}
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		data []byte
		want byte
	}{
		{[]byte{}, 0x00},
		{[]byte{0x01}, 0xFF},
		{[]byte{0x80, 0x80}, 0x00},
		{[]byte{0x20, 0xAC, 0x03}, 0x31},
	}

	for _, tt := range tests {
		if got := Checksum(tt.data); got != tt.want {
			t.Errorf("Checksum(% x) = 0x%02x, want 0x%02x", tt.data, got, tt.want)
		}
	}
}

func TestEncodeQuery(t *testing.T) {
	frame := EncodeQuery(0x05)

	wantHeader := []byte{0xAA, 0x21, 0xAC, 0, 0, 0, 0, 0, 0, 0x03}
	if !bytes.Equal(frame[:FrameHeaderSize], wantHeader) {
		t.Errorf("header = % x, want % x", frame[:FrameHeaderSize], wantHeader)
	}
	if len(frame) != 34 {
		t.Errorf("len = %d, want 34", len(frame))
	}
	if !bytes.Equal(frame[10:31], queryBody) {
		t.Errorf("body = % x", frame[10:31])
	}
	if frame[31] != 0x05 {
		t.Errorf("message id = 0x%02x, want 0x05", frame[31])
	}
	if frame[32] != CRC8(frame[10:32]) {
		t.Error("bad body CRC")
	}
	if Checksum(frame[1:]) != 0 {
		t.Error("sum of frame[1:] including checksum should be zero")
	}
}

func TestParseFrame(t *testing.T) {
	good := EncodeQuery(1)

	tests := []struct {
		name     string
		data     []byte
		wantKind midea.Kind
	}{
		{"too short", good[:5], midea.KindDecode},
		{"bad start", append([]byte{0xAB}, good[1:]...), midea.KindDecode},
		{"length mismatch", good[:len(good)-1], midea.KindDecode},
		{"bad checksum", append(bytes.Clone(good[:len(good)-1]), good[len(good)-1]^0xFF), midea.KindIntegrity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame(tt.data)
			if got := midea.KindOf(err); got != tt.wantKind {
				t.Errorf("ParseFrame() kind = %v, want %v (err %v)", got, tt.wantKind, err)
			}
		})
	}

	f, err := ParseFrame(good)
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	if f.Type != FrameTypeQuery || f.DeviceType != midea.DeviceTypeAirConditioner {
		t.Errorf("ParseFrame() = %v", f)
	}
}

func TestFramePayload_BadCRC(t *testing.T) {
	frame := EncodeQuery(1)
	frame[12] ^= 0x01
	frame[len(frame)-1] = Checksum(frame[1 : len(frame)-1])

	f, err := ParseFrame(frame)
	if err != nil {
		t.Fatalf("ParseFrame() error = %v", err)
	}
	if _, err := f.Payload(); !midea.IsIntegrityError(err) {
		t.Errorf("Payload() err = %v, want integrity error", err)
	}
}

func TestNextMessageID(t *testing.T) {
	seen := make(map[byte]bool)
	for i := 0; i < 600; i++ {
		id := NextMessageID()
		if id == 0 {
			t.Fatal("NextMessageID() returned 0")
		}
		seen[id] = true
	}
	if len(seen) != 255 {
		t.Errorf("expected all 255 ids to be used, got %d", len(seen))
	}
}

func TestEncodeSetCommand_Layout(t *testing.T) {
	state := ApplianceState{
		Power:         true,
		Mode:          ModeCool,
		SetpointC:     24.5,
		Fan:           FanMedium,
		SwingVertical: true,
		Eco:           true,
	}

	frame, err := EncodeSetCommand(state, SetOptions{Beep: true}, 9)
	if err != nil {
		t.Fatalf("EncodeSetCommand() error = %v", err)
	}
	if FrameType(frame[9]) != FrameTypeSet {
		t.Errorf("frame type = 0x%02x", frame[9])
	}

	b := frame[FrameHeaderSize:]
	checks := []struct {
		name  string
		index int
		want  byte
	}{
		{"command", 0, 0x40},
		{"beep and power", 1, 0x43},
		{"mode and temperature", 2, 2<<5 | 0x10 | 8},
		{"fan", 3, 60},
		{"timer on", 4, 0x7F},
		{"timer off", 5, 0x7F},
		{"swing", 7, 0x3C},
		{"turbo alt", 8, 0x00},
		{"eco", 9, 0x80},
		{"alt temperature", 18, 0x00},
		{"message id", 24, 9},
	}
	for _, c := range checks {
		if b[c.index] != c.want {
			t.Errorf("%s: byte[%d] = 0x%02x, want 0x%02x", c.name, c.index, b[c.index], c.want)
		}
	}
}

func TestEncodeSetCommand_Setpoints(t *testing.T) {
	tests := []struct {
		setpoint   float64
		wantNibble byte
		wantHalf   bool
		wantAlt    byte
	}{
		{16, 0, false, 4},
		{16.5, 0, true, 4},
		{17, 1, false, 0},
		{22, 6, false, 0},
		{30.5, 14, true, 0},
		{31, 0, false, 19},
	}

	for _, tt := range tests {
		state := DefaultState()
		state.SetpointC = tt.setpoint
		frame, err := EncodeSetCommand(state, SetOptions{}, 1)
		if err != nil {
			t.Fatalf("EncodeSetCommand(%v) error = %v", tt.setpoint, err)
		}
		b := frame[FrameHeaderSize:]
		if got := b[2] & 0x0F; got != tt.wantNibble {
			t.Errorf("%v: nibble = %d, want %d", tt.setpoint, got, tt.wantNibble)
		}
		if got := b[2]&0x10 != 0; got != tt.wantHalf {
			t.Errorf("%v: half = %v, want %v", tt.setpoint, got, tt.wantHalf)
		}
		if b[18] != tt.wantAlt {
			t.Errorf("%v: alt = %d, want %d", tt.setpoint, b[18], tt.wantAlt)
		}

		decoded, _, err := DecodeSetCommand(frame)
		if err != nil {
			t.Fatalf("DecodeSetCommand(%v) error = %v", tt.setpoint, err)
		}
		if decoded.SetpointC != tt.setpoint {
			t.Errorf("decoded setpoint = %v, want %v", decoded.SetpointC, tt.setpoint)
		}
	}
}

func TestEncodeSetCommand_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		state ApplianceState
	}{
		{"too cold", ApplianceState{Mode: ModeCool, SetpointC: 15.5, Fan: FanAuto}},
		{"too hot", ApplianceState{Mode: ModeCool, SetpointC: 31.5, Fan: FanAuto}},
		{"not half degree", ApplianceState{Mode: ModeCool, SetpointC: 22.3, Fan: FanAuto}},
		{"bad mode", ApplianceState{Mode: 7, SetpointC: 22, Fan: FanAuto}},
		{"bad fan", ApplianceState{Mode: ModeCool, SetpointC: 22, Fan: 55}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeSetCommand(tt.state, SetOptions{}, 1); !midea.IsValidationError(err) {
				t.Errorf("EncodeSetCommand() err = %v, want validation error", err)
			}
		})
	}
}

func TestSetCommandRoundTrip(t *testing.T) {
	base := ApplianceState{Mode: ModeHeat, SetpointC: 21, Fan: FanLow}

	mutations := map[string]func(*ApplianceState){
		"power":       func(s *ApplianceState) { s.Power = true },
		"mode":        func(s *ApplianceState) { s.Mode = ModeDry },
		"setpoint":    func(s *ApplianceState) { s.SetpointC = 27.5 },
		"fan":         func(s *ApplianceState) { s.Fan = FanAuto },
		"vswing":      func(s *ApplianceState) { s.SwingVertical = true },
		"hswing":      func(s *ApplianceState) { s.SwingHorizontal = true },
		"eco":         func(s *ApplianceState) { s.Eco = true },
		"turbo":       func(s *ApplianceState) { s.Turbo = true },
		"sleep":       func(s *ApplianceState) { s.reserved.sleep = true },
		"follow me":   func(s *ApplianceState) { s.reserved.followMe = true },
		"fahrenheit":  func(s *ApplianceState) { s.reserved.fahrenheit = true },
		"freeze":      func(s *ApplianceState) { s.reserved.freezeProtection = true },
		"humidity":    func(s *ApplianceState) { s.reserved.humidity = 55 },
		"timer":       func(s *ApplianceState) { s.reserved.timer = [3]byte{0x86, 0x7F, 0x30} },
		"alt low":     func(s *ApplianceState) { s.SetpointC = 16 },
		"alt high":    func(s *ApplianceState) { s.SetpointC = 31 },
		"no mutation": func(s *ApplianceState) {},
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			want := base
			mutate(&want)

			frame, err := EncodeSetCommand(want, SetOptions{Beep: true}, 3)
			if err != nil {
				t.Fatalf("EncodeSetCommand() error = %v", err)
			}
			got, opts, err := DecodeSetCommand(frame)
			if err != nil {
				t.Fatalf("DecodeSetCommand() error = %v", err)
			}
			if !opts.Beep {
				t.Error("beep flag lost")
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip = %+v, want %+v", got, want)
			}
		})
	}
}

func TestApplyPowerKeepsFanAndMode(t *testing.T) {
	current := ApplianceState{Mode: ModeCool, SetpointC: 23, Fan: FanMedium}

	next := Merge(current, Partial{Power: Ptr(true)})
	frame, err := EncodeSetCommand(next, SetOptions{}, NextMessageID())
	if err != nil {
		t.Fatalf("EncodeSetCommand() error = %v", err)
	}

	got, _, err := DecodeSetCommand(frame)
	if err != nil {
		t.Fatalf("DecodeSetCommand() error = %v", err)
	}
	if !got.Power || got.Fan != FanMedium || got.Mode != ModeCool || got.SetpointC != 23 {
		t.Errorf("decoded = %v, want power on, fan 60, cool, 23C", got)
	}
}

func TestDecodeSetCommand_WrongType(t *testing.T) {
	if _, _, err := DecodeSetCommand(EncodeQuery(1)); !midea.IsDecodeError(err) {
		t.Errorf("err = %v, want decode error", err)
	}
}
