package discovery

import (
	"context"
	"fmt"
	"iter"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/logging"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

const (
	// DiscoveryPort is the UDP port current modules listen on for probes
	DiscoveryPort = 6445

	// LegacyDiscoveryPort is answered by older modules
	LegacyDiscoveryPort = 20086

	// DefaultScanTimeout is how long a pass collects replies
	DefaultScanTimeout = 5 * time.Second

	maxReplySize = 1500
)

// probe is the fixed discovery datagram every module answers.
var probe = []byte{
	0x5a, 0x5a, 0x01, 0x11, 0x48, 0x00, 0x92, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x75, 0xbd, 0x6b, 0x3e, 0x4f, 0x8b, 0x76, 0x2e,
	0x84, 0x9c, 0x6e, 0x57, 0x8d, 0x65, 0x90, 0x03,
	0x6e, 0x9d, 0x43, 0x42, 0xa5, 0x0f, 0x1f, 0x56,
	0x9e, 0xb8, 0xec, 0x91, 0x8e, 0x92, 0xe5, 0x7f,
}

// Scanner handles UDP device discovery
type Scanner struct {
	// Timeout is the maximum time a pass waits for replies
	Timeout time.Duration

	// Targets are the host:port addresses probed. Defaults to the broadcast
	// address on both discovery ports.
	Targets []string
}

// NewScanner creates a new scanner with default settings
func NewScanner() *Scanner {
	return &Scanner{
		Timeout: DefaultScanTimeout,
		Targets: BroadcastTargets(),
	}
}

// BroadcastTargets returns the limited broadcast address on both discovery ports.
func BroadcastTargets() []string {
	return TargetsFor("255.255.255.255")
}

// TargetsFor returns host on both discovery ports, for a unicast probe of a
// unit whose address is known.
func TargetsFor(host string) []string {
	return []string{
		net.JoinHostPort(host, strconv.Itoa(DiscoveryPort)),
		net.JoinHostPort(host, strconv.Itoa(LegacyDiscoveryPort)),
	}
}

// Discover returns a sequence of the units that answer a probe. Nothing is
// sent until the sequence is ranged over. Each range sends a fresh probe,
// collects replies until Timeout or ctx ends, and yields each unit once.
// Malformed replies are skipped. An error is yielded only when the probe
// cannot be sent at all.
func (s *Scanner) Discover(ctx context.Context) iter.Seq2[midea.DeviceIdentity, error] {
	return func(yield func(midea.DeviceIdentity, error) bool) {
		timeout := s.Timeout
		if timeout <= 0 {
			timeout = DefaultScanTimeout
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		conn, err := net.ListenUDP("udp4", nil)
		if err != nil {
			yield(midea.DeviceIdentity{}, &midea.Error{Kind: midea.KindConnect, Op: "discover", Message: "cannot open UDP socket", Err: err})
			return
		}
		defer func() { _ = conn.Close() }()

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()

		if err := s.sendProbes(conn); err != nil {
			yield(midea.DeviceIdentity{}, err)
			return
		}

		seen := make(map[uint64]bool)
		buf := make([]byte, maxReplySize)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				if ctx.Err() == nil {
					yield(midea.DeviceIdentity{}, midea.ClassifyIOError("discover", err))
				}
				return
			}

			identity, err := ParseReply(buf[:n], from)
			if err != nil {
				logging.Debug("Skipping malformed discovery reply",
					zap.Stringer("from", from),
					zap.Error(err),
				)
				logging.LogRawBytes("discovery reply", buf[:n])
				continue
			}
			if seen[identity.ID] {
				continue
			}
			seen[identity.ID] = true

			logging.Debug("Discovered unit",
				zap.Uint64("id", identity.ID),
				zap.String("ip", identity.IP),
				zap.Int("version", identity.Version),
			)
			if !yield(identity, nil) {
				return
			}
		}
	}
}

func (s *Scanner) sendProbes(conn *net.UDPConn) error {
	targets := s.Targets
	if len(targets) == 0 {
		targets = BroadcastTargets()
	}

	var lastErr error
	sent := 0
	for _, target := range targets {
		addr, err := net.ResolveUDPAddr("udp4", target)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := conn.WriteToUDP(probe, addr); err != nil {
			logging.Debug("Discovery probe failed", zap.String("target", target), zap.Error(err))
			lastErr = err
			continue
		}
		sent++
	}

	if sent == 0 {
		return &midea.Error{Kind: midea.KindConnect, Op: "discover", Message: "no discovery probe could be sent", Err: lastErr}
	}
	return nil
}

// All runs one pass and collects every unit found. No units is an empty
// slice and a nil error.
func (s *Scanner) All(ctx context.Context) ([]midea.DeviceIdentity, error) {
	devices := make([]midea.DeviceIdentity, 0)
	for identity, err := range s.Discover(ctx) {
		if err != nil {
			return devices, err
		}
		devices = append(devices, identity)
	}
	return devices, nil
}

// Find runs one pass and returns the unit with the given ID as soon as it
// answers. A pass that ends without it fails with a DiscoveryTimeout error.
func (s *Scanner) Find(ctx context.Context, id uint64) (midea.DeviceIdentity, error) {
	for identity, err := range s.Discover(ctx) {
		if err != nil {
			return midea.DeviceIdentity{}, err
		}
		if identity.ID == id {
			return identity, nil
		}
	}
	return midea.DeviceIdentity{}, midea.NewDiscoveryTimeout(fmt.Sprintf("unit %d did not answer", id))
}

// Identify probes the unit at ip and returns its identity, for units known
// only by address. Replies from other addresses are ignored. A pass that
// ends without an answer fails with a DiscoveryTimeout error.
func (s *Scanner) Identify(ctx context.Context, ip string) (midea.DeviceIdentity, error) {
	for identity, err := range s.Discover(ctx) {
		if err != nil {
			return midea.DeviceIdentity{}, err
		}
		if identity.IP == ip {
			return identity, nil
		}
		logging.Debug("Ignoring reply from another unit",
			zap.String("want", ip),
			zap.String("ip", identity.IP),
		)
	}
	return midea.DeviceIdentity{}, midea.NewDiscoveryTimeout(fmt.Sprintf("no unit answered at %s", ip))
}
