package device

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/devicetest"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/metrics"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/protocol"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/transport"
)

// fakeSession answers like a unit, in memory, and records every frame.
type fakeSession struct {
	mu     sync.Mutex
	state  protocol.ApplianceState
	frames [][]byte
	err    error
	closed bool
}

func (f *fakeSession) Request(_ context.Context, frame []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.frames = append(f.frames, frame)
	if f.err != nil {
		return nil, f.err
	}

	parsed, err := protocol.ParseFrame(frame)
	if err != nil {
		return nil, err
	}
	if parsed.Type == protocol.FrameTypeSet {
		f.state, err = protocol.StateFromSetCommand(f.state, frame)
		if err != nil {
			return nil, err
		}
	}
	return protocol.EncodeStatus(f.state, parsed.Type)
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) ID() string { return "fake" }

// setFrames returns the decoded set commands the session received.
func (f *fakeSession) setFrames(t *testing.T) []protocol.ApplianceState {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []protocol.ApplianceState
	for _, frame := range f.frames {
		parsed, err := protocol.ParseFrame(frame)
		if err != nil || parsed.Type != protocol.FrameTypeSet {
			continue
		}
		state, _, err := protocol.DecodeSetCommand(frame)
		if err != nil {
			t.Fatalf("DecodeSetCommand() error = %v", err)
		}
		out = append(out, state)
	}
	return out
}

func connectFake(t *testing.T, fake *fakeSession, opts Options) *Client {
	t.Helper()
	opts.Opener = func(context.Context, midea.DeviceIdentity, midea.Credentials, transport.Options) (Session, error) {
		return fake, nil
	}
	identity := midea.DeviceIdentity{IP: "192.0.2.10", Port: midea.DefaultPort, ID: 42, Version: midea.ProtocolV3}
	c, err := Connect(context.Background(), identity, midea.Credentials{}, opts)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return c
}

func TestApply_PowerKeepsFanAndMode(t *testing.T) {
	fake := &fakeSession{state: protocol.ApplianceState{
		Mode:      protocol.ModeCool,
		SetpointC: 22,
		Fan:       protocol.FanMedium,
	}}
	c := connectFake(t, fake, Options{})

	got, err := c.Apply(context.Background(), protocol.Partial{Power: protocol.Ptr(true)})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	sets := fake.setFrames(t)
	if len(sets) != 1 {
		t.Fatalf("sent %d set commands, want 1", len(sets))
	}
	sent := sets[0]
	if !sent.Power || sent.Fan != protocol.FanMedium || sent.Mode != protocol.ModeCool {
		t.Errorf("set command = %v, want power on, fan 60, cool", sent)
	}
	if !got.Power || got.Fan != protocol.FanMedium || got.Mode != protocol.ModeCool {
		t.Errorf("Apply() = %v, want power on, fan 60, cool", got)
	}
}

func TestApply_PreservesUntouchedFields(t *testing.T) {
	initial := protocol.ApplianceState{
		Power:           true,
		Mode:            protocol.ModeHeat,
		SetpointC:       26.5,
		Fan:             protocol.FanLow,
		SwingVertical:   true,
		SwingHorizontal: false,
		Eco:             true,
		Turbo:           false,
	}

	tests := []struct {
		name   string
		update protocol.Partial
		want   func(s protocol.ApplianceState) protocol.ApplianceState
	}{
		{"mode", protocol.Partial{Mode: protocol.Ptr(protocol.ModeDry)},
			func(s protocol.ApplianceState) protocol.ApplianceState { s.Mode = protocol.ModeDry; return s }},
		{"setpoint", protocol.Partial{SetpointC: protocol.Ptr(19.0)},
			func(s protocol.ApplianceState) protocol.ApplianceState { s.SetpointC = 19; return s }},
		{"fan", protocol.Partial{Fan: protocol.Ptr(protocol.FanAuto)},
			func(s protocol.ApplianceState) protocol.ApplianceState { s.Fan = protocol.FanAuto; return s }},
		{"horizontal swing", protocol.Partial{SwingHorizontal: protocol.Ptr(true)},
			func(s protocol.ApplianceState) protocol.ApplianceState { s.SwingHorizontal = true; return s }},
		{"turbo", protocol.Partial{Turbo: protocol.Ptr(true)},
			func(s protocol.ApplianceState) protocol.ApplianceState { s.Turbo = true; return s }},
		{"power off", protocol.Partial{Power: protocol.Ptr(false)},
			func(s protocol.ApplianceState) protocol.ApplianceState { s.Power = false; return s }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSession{state: initial}
			c := connectFake(t, fake, Options{})

			if _, err := c.Apply(context.Background(), tt.update); err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			sets := fake.setFrames(t)
			if len(sets) != 1 {
				t.Fatalf("sent %d set commands, want 1", len(sets))
			}
			if want := tt.want(initial); sets[0] != want {
				t.Errorf("set command = %v, want %v", sets[0], want)
			}
		})
	}
}

func TestApply_FahrenheitSetpoint(t *testing.T) {
	fake := &fakeSession{state: protocol.DefaultState()}
	c := connectFake(t, fake, Options{})

	if _, err := c.Apply(context.Background(), protocol.Partial{SetpointC: protocol.Ptr(FahrenheitToCelsius(72))}); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	sets := fake.setFrames(t)
	if len(sets) != 1 {
		t.Fatalf("sent %d set commands, want 1", len(sets))
	}
	if back := CelsiusToFahrenheit(sets[0].SetpointC); math.Abs(back-72) > 1 {
		t.Errorf("72°F round trip = %.1f°F, want within 1°F", back)
	}
}

func TestApply_ValidationSendsNothing(t *testing.T) {
	tests := []struct {
		name   string
		update protocol.Partial
	}{
		{"setpoint too high", protocol.Partial{SetpointC: protocol.Ptr(35.0)}},
		{"setpoint too low", protocol.Partial{SetpointC: protocol.Ptr(10.0)}},
		{"mode", protocol.Partial{Mode: protocol.Ptr(protocol.Mode(7))}},
		{"fan", protocol.Partial{Fan: protocol.Ptr(protocol.FanSpeed(55))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeSession{state: protocol.DefaultState()}
			c := connectFake(t, fake, Options{})

			_, err := c.Apply(context.Background(), tt.update)
			if !midea.IsValidationError(err) {
				t.Fatalf("Apply() err = %v, want validation error", err)
			}
			if len(fake.frames) != 0 {
				t.Errorf("sent %d frames, want none", len(fake.frames))
			}
		})
	}
}

func TestApply_EmptyPartialOnlyReads(t *testing.T) {
	fake := &fakeSession{state: protocol.DefaultState()}
	c := connectFake(t, fake, Options{})

	got, err := c.Apply(context.Background(), protocol.Partial{})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if got != protocol.DefaultState() {
		t.Errorf("Apply() = %v, want %v", got, protocol.DefaultState())
	}
	if len(fake.frames) != 1 || len(fake.setFrames(t)) != 0 {
		t.Errorf("sent %d frames, want a single query", len(fake.frames))
	}
}

func TestErrorsPassThrough(t *testing.T) {
	sentinel := midea.NewTimeoutError("request", nil)
	fake := &fakeSession{state: protocol.DefaultState(), err: sentinel}
	c := connectFake(t, fake, Options{})

	if _, err := c.Status(context.Background()); !errors.Is(err, sentinel) || err != error(sentinel) {
		t.Errorf("Status() err = %v, want the session error unchanged", err)
	}
	if _, err := c.Apply(context.Background(), protocol.Partial{Power: protocol.Ptr(true)}); err != error(sentinel) {
		t.Errorf("Apply() err = %v, want the session error unchanged", err)
	}
}

func TestConnect_OpenerError(t *testing.T) {
	want := midea.NewConnectError("192.0.2.10", errors.New("refused"))
	opts := Options{Opener: func(context.Context, midea.DeviceIdentity, midea.Credentials, transport.Options) (Session, error) {
		return nil, want
	}}
	_, err := Connect(context.Background(), midea.DeviceIdentity{IP: "192.0.2.10"}, midea.Credentials{}, opts)
	if err != error(want) {
		t.Errorf("Connect() err = %v, want %v", err, want)
	}
}

func TestClose(t *testing.T) {
	fake := &fakeSession{state: protocol.DefaultState()}
	c := connectFake(t, fake, Options{})
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !fake.closed {
		t.Error("Close() did not close the session")
	}
}

func TestMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.New()
	if err := collector.Register(reg); err != nil {
		t.Fatal(err)
	}

	fake := &fakeSession{state: protocol.DefaultState()}
	c := connectFake(t, fake, Options{Name: "den", Metrics: collector})
	if _, err := c.Status(context.Background()); err != nil {
		t.Fatalf("Status() error = %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var requests float64
	for _, f := range families {
		if f.GetName() != "senville_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			requests += m.GetCounter().GetValue()
		}
	}
	if requests != 2 {
		t.Errorf("requests counted = %v, want 2 (connect and status)", requests)
	}
}

func TestClientAgainstDevice(t *testing.T) {
	dev := devicetest.Start(t, devicetest.Config{State: protocol.ApplianceState{
		Mode:      protocol.ModeCool,
		SetpointC: 23,
		Fan:       protocol.FanMedium,
	}})

	c, err := Connect(context.Background(), dev.Identity(), dev.Credentials(), Options{Beep: true})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer func() { _ = c.Close() }()

	got, err := c.Apply(context.Background(), protocol.Partial{
		Power:     protocol.Ptr(true),
		SetpointC: protocol.Ptr(21.5),
	})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if !got.Power || got.SetpointC != 21.5 || got.Mode != protocol.ModeCool || got.Fan != protocol.FanMedium {
		t.Errorf("Apply() = %v", got)
	}
	if s := dev.State(); !s.Power || s.SetpointC != 21.5 {
		t.Errorf("device state = %v, want power on at 21.5", s)
	}

	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status != got {
		t.Errorf("Status() = %v, want %v", status, got)
	}
}
