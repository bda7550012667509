package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/logging"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/metrics"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/protocol"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/transport"
)

// Session is the request/response channel the client drives. It is
// satisfied by *transport.Session.
type Session interface {
	Request(ctx context.Context, frame []byte) ([]byte, error)
	Close() error
	ID() string
}

// Opener opens a Session to a unit.
type Opener func(ctx context.Context, identity midea.DeviceIdentity, creds midea.Credentials, opts transport.Options) (Session, error)

// Options configures a Client. The zero value is usable.
type Options struct {
	// Transport holds the connect and request timeouts.
	Transport transport.Options

	// Beep makes the unit chirp when it accepts a set command.
	Beep bool

	// Name labels metrics. Defaults to the unit address.
	Name string

	// Metrics records request counts and the last read state. May be nil.
	Metrics *metrics.Collector

	// Opener replaces transport.Open, for tests.
	Opener Opener
}

func openTransport(ctx context.Context, identity midea.DeviceIdentity, creds midea.Credentials, opts transport.Options) (Session, error) {
	return transport.Open(ctx, identity, creds, opts)
}

// Client controls one air conditioner. Methods are safe for concurrent use
// and are serialized per Client.
type Client struct {
	identity midea.DeviceIdentity
	opts     Options

	mu      sync.Mutex
	session Session
}

// Connect opens an authenticated session to the unit.
func Connect(ctx context.Context, identity midea.DeviceIdentity, creds midea.Credentials, opts Options) (*Client, error) {
	if opts.Opener == nil {
		opts.Opener = openTransport
	}
	if opts.Name == "" {
		opts.Name = identity.Address()
	}

	start := time.Now()
	session, err := opts.Opener(ctx, identity, creds, opts.Transport)
	opts.Metrics.ObserveRequest(opts.Name, "connect", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	logging.Info("Connected to unit",
		zap.String("device", opts.Name),
		zap.Uint64("id", identity.ID),
		zap.String("session", session.ID()),
	)
	return &Client{identity: identity, opts: opts, session: session}, nil
}

// Identity returns the unit this client talks to.
func (c *Client) Identity() midea.DeviceIdentity {
	return c.identity
}

// Status queries the unit and returns its current state.
func (c *Client) Status(ctx context.Context) (protocol.ApplianceState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status(ctx)
}

func (c *Client) status(ctx context.Context) (protocol.ApplianceState, error) {
	reply, err := c.request(ctx, "status", protocol.EncodeQuery(protocol.NextMessageID()))
	if err != nil {
		return protocol.ApplianceState{}, err
	}
	state, err := protocol.DecodeStatus(reply)
	if err != nil {
		return protocol.ApplianceState{}, err
	}
	c.opts.Metrics.ObserveState(c.opts.Name, state)
	return state, nil
}

// Apply changes the fields set in p and leaves every other field as the
// unit reports it. The unit only accepts complete states, so Apply reads
// the current state, merges p into it and sends the result. It returns the
// state the unit reports after the change.
//
// An empty p sends nothing and returns the current state.
func (c *Client) Apply(ctx context.Context, p protocol.Partial) (protocol.ApplianceState, error) {
	if err := validatePartial(p); err != nil {
		return protocol.ApplianceState{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.status(ctx)
	if err != nil {
		return protocol.ApplianceState{}, err
	}
	if p.Empty() {
		return current, nil
	}

	next := protocol.Merge(current, p)
	frame, err := protocol.EncodeSetCommand(next, protocol.SetOptions{Beep: c.opts.Beep}, protocol.NextMessageID())
	if err != nil {
		return protocol.ApplianceState{}, err
	}

	logging.Debug("Applying update",
		zap.String("device", c.opts.Name),
		zap.Stringer("changes", p),
		zap.Stringer("state", next),
	)

	reply, err := c.request(ctx, "apply", frame)
	if err != nil {
		return protocol.ApplianceState{}, err
	}
	state, err := protocol.DecodeStatus(reply)
	if err != nil {
		return protocol.ApplianceState{}, err
	}
	c.opts.Metrics.ObserveState(c.opts.Name, state)
	return state, nil
}

func (c *Client) request(ctx context.Context, op string, frame []byte) ([]byte, error) {
	start := time.Now()
	reply, err := c.session.Request(ctx, frame)
	c.opts.Metrics.ObserveRequest(c.opts.Name, op, time.Since(start), err)
	return reply, err
}

// Close ends the session. A call blocked in another goroutine returns
// ConnectionLost. Close may be called more than once.
func (c *Client) Close() error {
	return c.session.Close()
}

// validatePartial rejects values that can never be encoded, before any
// traffic is sent.
func validatePartial(p protocol.Partial) error {
	if p.Mode != nil && !p.Mode.Valid() {
		return midea.NewValidationError(fmt.Sprintf("invalid mode %d", byte(*p.Mode)))
	}
	if p.Fan != nil && !p.Fan.Valid() {
		return midea.NewValidationError(fmt.Sprintf("invalid fan speed %d", byte(*p.Fan)))
	}
	if p.SetpointC != nil {
		return protocol.ValidateSetpoint(protocol.QuantizeSetpoint(*p.SetpointC))
	}
	return nil
}
