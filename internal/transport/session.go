package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/codec"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/logging"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// Default timeouts
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultRequestTimeout = 8 * time.Second
	DefaultKeepAlive      = 30 * time.Second
)

// State is the lifecycle state of a session.
type State int

// Session states
const (
	Disconnected State = iota
	Connecting
	Handshaking
	Ready
)

// String returns a human-readable state name
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options configures a session. Zero values select the defaults.
type Options struct {
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	KeepAlive      time.Duration

	// Now stamps outgoing packets. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.KeepAlive == 0 {
		o.KeepAlive = DefaultKeepAlive
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Session is one authenticated TCP connection to a unit. Requests are
// strictly sequential. Any transport error closes the session; open a new
// one to continue.
type Session struct {
	id       string
	identity midea.DeviceIdentity
	opts     Options
	env      envelope

	// reqMu serializes Request; it is never held by Close.
	reqMu sync.Mutex

	mu    sync.Mutex
	conn  net.Conn
	state State
}

// Open dials the unit, performs the handshake for its protocol version and
// returns a Ready session.
func Open(ctx context.Context, identity midea.DeviceIdentity, creds midea.Credentials, opts Options) (*Session, error) {
	if err := identity.Validate(); err != nil {
		return nil, err
	}
	if identity.Version == midea.ProtocolV3 {
		if err := creds.Validate(); err != nil {
			return nil, err
		}
	}

	s := &Session{
		id:       uuid.NewString(),
		identity: identity,
		opts:     opts.withDefaults(),
		env:      newEnvelope(identity.Version, creds),
		state:    Connecting,
	}

	addr := identity.Address()
	dialer := net.Dialer{Timeout: s.opts.ConnectTimeout, KeepAlive: s.opts.KeepAlive}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.setState(Disconnected)
		return nil, midea.NewConnectError(identity.IP, err)
	}
	logging.LogConnection(s.id, addr, "connected")

	s.mu.Lock()
	s.conn = conn
	s.state = Handshaking
	s.mu.Unlock()

	if err := s.handshake(ctx, conn); err != nil {
		s.invalidate("handshake failed")
		return nil, err
	}

	s.setState(Ready)
	logging.LogConnection(s.id, addr, "ready")
	return s, nil
}

// handshake is part of connection setup, so it runs under the connect
// timeout rather than the request timeout.
func (s *Session) handshake(ctx context.Context, conn net.Conn) error {
	if err := conn.SetDeadline(s.deadlineAfter(ctx, s.opts.ConnectTimeout)); err != nil {
		return midea.NewAuthError("cannot arm handshake deadline", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	err := s.env.handshake(ctx, conn, s.id)
	if err == nil {
		err = conn.SetDeadline(time.Time{})
	}
	return err
}

// Request sends one appliance frame and returns the appliance frame of the
// matching reply. Unsolicited notifications received while waiting are
// skipped. The wait ends at the earlier of the context deadline and the
// session request timeout.
func (s *Session) Request(ctx context.Context, frame []byte) ([]byte, error) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	conn := s.readyConn()
	if conn == nil {
		return nil, midea.NewConnectionLost("request", net.ErrClosed)
	}

	stop := context.AfterFunc(ctx, func() { s.invalidate("context done") })
	defer stop()

	if err := conn.SetDeadline(s.deadline(ctx)); err != nil {
		return nil, s.fail(ctx, err)
	}

	packet := codec.EncodePacket(s.identity.ID, frame, s.opts.Now())
	logging.LogFrame(s.id, "send", "appliance", frame)

	out, err := s.env.seal(packet)
	if err != nil {
		return nil, s.fail(ctx, err)
	}
	logging.LogFrame(s.id, "send", "wire", out)
	if _, err := conn.Write(out); err != nil {
		return nil, s.fail(ctx, err)
	}

	for {
		data, ok, err := s.env.open(conn, s.id)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		if !ok {
			logging.Debug("Skipping non-response frame", zap.String("session", s.id))
			continue
		}

		packet, err := codec.DecodePacket(data)
		if err != nil {
			return nil, s.fail(ctx, err)
		}
		logging.LogFrame(s.id, "recv", "appliance", packet.Frame)

		if !answers(frame, packet.Frame) {
			logging.Debug("Skipping unsolicited frame",
				zap.String("session", s.id),
				zap.Int("length", len(packet.Frame)),
			)
			continue
		}
		return packet.Frame, nil
	}
}

// answers reports whether reply carries the same device type and frame type
// as request. Notifications use their own frame types.
func answers(request, reply []byte) bool {
	const minFrame = 10
	if len(reply) < minFrame || len(request) < minFrame {
		return false
	}
	return reply[0] == request[0] && reply[2] == request[2] && reply[9] == request[9]
}

func (s *Session) deadline(ctx context.Context) time.Time {
	return s.deadlineAfter(ctx, s.opts.RequestTimeout)
}

func (s *Session) deadlineAfter(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		d = cd
	}
	return d
}

// fail classifies err, closes the session and returns the classified error.
func (s *Session) fail(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		err = midea.NewTimeoutError("request", err)
	case ctx.Err() != nil:
		err = midea.NewConnectionLost("request", ctx.Err())
	default:
		err = midea.ClassifyIOError("request", err)
	}
	s.invalidate("request failed")
	logging.Debug("Request failed", zap.String("session", s.id), zap.Error(err))
	return err
}

func (s *Session) readyConn() net.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Ready {
		return nil
	}
	return s.conn
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// invalidate closes the socket and moves to Disconnected. Safe to call
// repeatedly and from any goroutine.
func (s *Session) invalidate(reason string) {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.state = Disconnected
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		logging.LogConnection(s.id, s.identity.Address(), "closed: "+reason)
	}
}

// Close ends the session. A Request blocked in another goroutine returns
// ConnectionLost.
func (s *Session) Close() error {
	s.invalidate("closed by caller")
	return nil
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the session identifier used in logs
func (s *Session) ID() string {
	return s.id
}

// Identity returns the unit this session talks to
func (s *Session) Identity() midea.DeviceIdentity {
	return s.identity
}
