// Package devicetest provides an in-process fake Midea air conditioner for
// tests. It listens on loopback TCP, speaks the real 8370/5A5A/0xAA wire
// format and keeps an ApplianceState that set commands modify.
package devicetest

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/codec"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/protocol"
)

// Behavior changes how the fake unit answers.
type Behavior struct {
	// Silent reads requests but never answers them.
	Silent bool
	// NotifyFirst sends an unsolicited status notification before each reply.
	NotifyFirst bool
	// CorruptReplies flips a ciphertext byte in every reply.
	CorruptReplies bool
}

// Config describes the fake unit.
type Config struct {
	ID       uint64
	Version  int // defaults to protocol v3
	State    protocol.ApplianceState
	Behavior Behavior
}

// Device is a running fake unit.
type Device struct {
	tb       testing.TB
	listener net.Listener
	id       uint64
	version  int
	creds    midea.Credentials
	plain    []byte // handshake plaintext, fixed so session keys are reproducible

	mu       sync.Mutex
	state    protocol.ApplianceState
	behavior Behavior
	received [][]byte
	accepted int
	conns    map[net.Conn]struct{}
	closed   chan struct{}
	wg       sync.WaitGroup
}

// Start launches a fake unit and registers its shutdown with tb.Cleanup.
func Start(tb testing.TB, cfg Config) *Device {
	tb.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tb.Fatalf("devicetest: listen: %v", err)
	}

	if cfg.Version == 0 {
		cfg.Version = midea.ProtocolV3
	}
	if cfg.ID == 0 {
		cfg.ID = 0x0000_1A2B_3C4D_5E6F
	}
	if cfg.State == (protocol.ApplianceState{}) {
		cfg.State = protocol.DefaultState()
	}

	d := &Device{
		tb:       tb,
		listener: ln,
		id:       cfg.ID,
		version:  cfg.Version,
		creds: midea.Credentials{
			Token: bytes.Repeat([]byte{0x7A}, midea.TokenSize),
			Key:   bytes.Repeat([]byte{0x3C}, midea.KeySize),
		},
		plain:    bytes.Repeat([]byte{0xA5}, 32),
		state:    cfg.State,
		behavior: cfg.Behavior,
		conns:    make(map[net.Conn]struct{}),
		closed:   make(chan struct{}, 16),
	}

	d.wg.Add(1)
	go d.serve()
	tb.Cleanup(d.Close)
	return d
}

// Identity returns the identity a client should open a session with.
func (d *Device) Identity() midea.DeviceIdentity {
	addr := d.listener.Addr().(*net.TCPAddr)
	return midea.DeviceIdentity{
		IP:         addr.IP.String(),
		Port:       addr.Port,
		ID:         d.id,
		Version:    d.version,
		DeviceType: midea.DeviceTypeAirConditioner,
	}
}

// Credentials returns the token and key the unit accepts.
func (d *Device) Credentials() midea.Credentials {
	return midea.Credentials{Token: bytes.Clone(d.creds.Token), Key: bytes.Clone(d.creds.Key)}
}

// Address returns host:port of the listener.
func (d *Device) Address() string {
	return d.listener.Addr().String()
}

// State returns the unit's current state.
func (d *Device) State() protocol.ApplianceState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// SetState replaces the unit's state.
func (d *Device) SetState(s protocol.ApplianceState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
}

// SetBehavior changes how subsequent requests are answered.
func (d *Device) SetBehavior(b Behavior) {
	d.mu.Lock()
	d.behavior = b
	d.mu.Unlock()
}

// Received returns every appliance frame the unit has received.
func (d *Device) Received() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.received))
	copy(out, d.received)
	return out
}

// Accepted returns the number of TCP connections accepted so far.
func (d *Device) Accepted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.accepted
}

// WaitClosed blocks until a client connection has been closed by the peer
// or the timeout elapses.
func (d *Device) WaitClosed(timeout time.Duration) bool {
	select {
	case <-d.closed:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Close stops the listener, drops open connections and waits for the
// handlers to exit.
func (d *Device) Close() {
	_ = d.listener.Close()
	d.mu.Lock()
	for c := range d.conns {
		_ = c.Close()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Device) serve() {
	defer d.wg.Done()
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			return
		}
		d.mu.Lock()
		d.accepted++
		d.conns[conn] = struct{}{}
		d.mu.Unlock()

		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handle(conn)
		}()
	}
}

func (d *Device) handle(conn net.Conn) {
	defer func() {
		_ = conn.Close()
		d.mu.Lock()
		delete(d.conns, conn)
		d.mu.Unlock()
	}()

	var sessionKey []byte
	if d.version == midea.ProtocolV3 {
		key, ok := d.handshake(conn)
		if !ok {
			d.drain(conn)
			return
		}
		sessionKey = key
	}

	var counter uint16
	for {
		packet, err := d.readPacket(conn, sessionKey)
		if err != nil {
			if isClosed(err) {
				d.signalClosed()
			}
			return
		}

		decoded, err := codec.DecodePacket(packet)
		if err != nil {
			d.tb.Errorf("devicetest: bad packet from client: %v", err)
			return
		}

		d.mu.Lock()
		d.received = append(d.received, bytes.Clone(decoded.Frame))
		behavior := d.behavior
		d.mu.Unlock()

		if behavior.Silent {
			continue
		}

		reply, err := d.apply(decoded.Frame)
		if err != nil {
			d.tb.Errorf("devicetest: cannot answer frame % x: %v", decoded.Frame, err)
			return
		}

		if behavior.NotifyFirst {
			notify, _ := protocol.EncodeStatus(d.State(), protocol.FrameTypeNotify2)
			if err := d.write(conn, sessionKey, &counter, notify, false); err != nil {
				return
			}
		}
		if err := d.write(conn, sessionKey, &counter, reply, behavior.CorruptReplies); err != nil {
			return
		}
	}
}

// handshake answers the token exchange. A wrong token gets the literal
// ERROR reply real units send.
func (d *Device) handshake(conn net.Conn) ([]byte, bool) {
	raw, err := codec.ReadFrame(conn)
	if err != nil {
		return nil, false
	}
	frame, err := codec.DecodeFrame(nil, raw)
	if err != nil || frame.Type != codec.HandshakeRequest {
		return nil, false
	}

	if !bytes.Equal(frame.Payload, d.creds.Token) {
		reply, _ := codec.EncodeFrame(nil, codec.HandshakeResponse, 0, []byte("ERROR"))
		_, _ = conn.Write(reply)
		return nil, false
	}

	resp, err := codec.NewHandshakeResponse(d.plain, d.creds.Key)
	if err != nil {
		d.tb.Errorf("devicetest: %v", err)
		return nil, false
	}
	reply, _ := codec.EncodeFrame(nil, codec.HandshakeResponse, 0, resp)
	if _, err := conn.Write(reply); err != nil {
		return nil, false
	}

	key := make([]byte, midea.KeySize)
	for i := range key {
		key[i] = d.plain[i] ^ d.creds.Key[i]
	}
	return key, true
}

// drain waits for the client to hang up after a rejected handshake.
func (d *Device) drain(conn net.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := io.Copy(io.Discard, conn)
	if err == nil || isClosed(err) {
		d.signalClosed()
	}
}

func (d *Device) signalClosed() {
	select {
	case d.closed <- struct{}{}:
	default:
	}
}

func (d *Device) readPacket(conn net.Conn, sessionKey []byte) ([]byte, error) {
	if sessionKey == nil {
		header := make([]byte, 6)
		if _, err := io.ReadFull(conn, header); err != nil {
			return nil, err
		}
		packet := make([]byte, binary.LittleEndian.Uint16(header[4:6]))
		copy(packet, header)
		if _, err := io.ReadFull(conn, packet[6:]); err != nil {
			return nil, err
		}
		return packet, nil
	}

	raw, err := codec.ReadFrame(conn)
	if err != nil {
		return nil, err
	}
	frame, err := codec.DecodeFrame(sessionKey, raw)
	if err != nil {
		return nil, err
	}
	return frame.Payload, nil
}

func (d *Device) write(conn net.Conn, sessionKey []byte, counter *uint16, appliance []byte, corrupt bool) error {
	packet := codec.EncodePacket(d.id, appliance, time.Now())
	out := packet
	if sessionKey != nil {
		var err error
		out, err = codec.EncodeFrame(sessionKey, codec.EncryptedResponse, *counter, packet)
		if err != nil {
			return err
		}
		*counter++
	}
	if corrupt {
		out[len(out)/2] ^= 0xFF
	}
	_, err := conn.Write(out)
	return err
}

// apply answers a query with the current state and a set command with the
// state it produces.
func (d *Device) apply(frame []byte) ([]byte, error) {
	parsed, err := protocol.ParseFrame(frame)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if parsed.Type == protocol.FrameTypeSet {
		next, err := protocol.StateFromSetCommand(d.state, frame)
		if err != nil {
			return nil, err
		}
		d.state = next
	}
	return protocol.EncodeStatus(d.state, parsed.Type)
}

func isClosed(err error) bool {
	return midea.IsClosedConnection(err)
}
