package devicetest

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/codec"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// Responder answers discovery probes on a loopback UDP socket.
type Responder struct {
	conn    *net.UDPConn
	replies [][]byte

	mu     sync.Mutex
	probes [][]byte
	wg     sync.WaitGroup
}

// StartResponder listens on 127.0.0.1 and answers every datagram it
// receives with each of replies, in order.
func StartResponder(tb testing.TB, replies ...[]byte) *Responder {
	tb.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		tb.Fatalf("devicetest: listen udp: %v", err)
	}

	r := &Responder{conn: conn, replies: replies}
	r.wg.Add(1)
	go r.serve()
	tb.Cleanup(r.Close)
	return r
}

// Address returns host:port of the responder.
func (r *Responder) Address() string {
	return r.conn.LocalAddr().String()
}

// Probes returns every datagram received so far.
func (r *Responder) Probes() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.probes...)
}

// Close stops the responder.
func (r *Responder) Close() {
	_ = r.conn.Close()
	r.wg.Wait()
}

func (r *Responder) serve() {
	defer r.wg.Done()
	buf := make([]byte, 2048)
	for {
		n, from, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		r.mu.Lock()
		r.probes = append(r.probes, append([]byte(nil), buf[:n]...))
		r.mu.Unlock()

		for _, reply := range r.replies {
			_, _ = r.conn.WriteToUDP(reply, from)
		}
	}
}

// DiscoveryReply builds the datagram a unit sends in answer to a discovery
// probe. Version 3 units wrap the 5A5A packet in an 8370 header.
func DiscoveryReply(identity midea.DeviceIdentity) []byte {
	body := make([]byte, 41, 64)
	ip := net.ParseIP(identity.IP).To4()
	for i := 0; i < 4; i++ {
		body[i] = ip[3-i]
	}
	binary.LittleEndian.PutUint32(body[4:8], uint32(identity.Port))
	copy(body[8:40], identity.Serial)
	ssid := identity.SSID
	if ssid == "" {
		ssid = "net_ac_5E6F"
	}
	body[40] = byte(len(ssid))
	body = append(body, ssid...)
	body = append(body, 0x00, 0x00, 0x00, 0x00)

	packet := codec.EncodePacket(identity.ID, body, time.Now())
	if identity.Version != midea.ProtocolV3 {
		return packet
	}

	out := make([]byte, 8, 8+len(packet)+16)
	out[0], out[1] = 0x83, 0x70
	binary.BigEndian.PutUint16(out[2:4], uint16(len(packet)+16))
	out[4], out[5] = 0x20, 0x00
	out = append(out, packet...)
	return append(out, make([]byte, 16)...)
}
