package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/codec"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/logging"
	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// envelope is the per protocol version framing around 5A5A packets.
type envelope interface {
	// handshake authenticates a freshly dialed connection.
	handshake(ctx context.Context, conn net.Conn, sessionID string) error
	// seal wraps an outgoing packet.
	seal(packet []byte) ([]byte, error)
	// open reads one frame and returns the packet inside it. ok is false
	// for frames that can never answer a request.
	open(r io.Reader, sessionID string) (packet []byte, ok bool, err error)
}

func newEnvelope(version int, creds midea.Credentials) envelope {
	if version == midea.ProtocolV2 {
		return &v2Envelope{}
	}
	return &v3Envelope{creds: creds}
}

// v3Envelope is the authenticated 8370 framing.
type v3Envelope struct {
	creds      midea.Credentials
	sessionKey []byte
	counter    uint16
}

func (e *v3Envelope) handshake(ctx context.Context, conn net.Conn, sessionID string) error {
	request, err := codec.EncodeHandshake(e.creds.Token)
	if err != nil {
		return midea.NewAuthError("cannot encode handshake", err)
	}

	logging.LogFrame(sessionID, "send", "handshake", request)
	if _, err := conn.Write(request); err != nil {
		return midea.NewAuthError("handshake write failed", err)
	}

	raw, err := codec.ReadFrame(conn)
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return midea.NewAuthError("no handshake reply", err)
	}
	logging.LogFrame(sessionID, "recv", "handshake", raw)

	frame, err := codec.DecodeFrame(nil, raw)
	if err != nil {
		return midea.NewAuthError("malformed handshake reply", err)
	}
	if frame.Type != codec.HandshakeResponse {
		return midea.NewAuthError(fmt.Sprintf("unexpected %s frame during handshake", frame.Type), nil)
	}

	key, err := codec.DeriveSessionKey(frame.Payload, e.creds.Key)
	if err != nil {
		return err
	}
	e.sessionKey = key
	e.counter = 0
	return nil
}

func (e *v3Envelope) seal(packet []byte) ([]byte, error) {
	frame, err := codec.EncodeFrame(e.sessionKey, codec.EncryptedRequest, e.counter, packet)
	if err != nil {
		return nil, err
	}
	e.counter++
	return frame, nil
}

func (e *v3Envelope) open(r io.Reader, sessionID string) ([]byte, bool, error) {
	raw, err := codec.ReadFrame(r)
	if err != nil {
		return nil, false, err
	}
	logging.LogFrame(sessionID, "recv", "8370", raw)

	frame, err := codec.DecodeFrame(e.sessionKey, raw)
	if err != nil {
		return nil, false, err
	}
	if frame.Type != codec.EncryptedResponse {
		return nil, false, nil
	}
	return frame.Payload, true, nil
}

// v2Envelope sends 5A5A packets on the socket as they are.
type v2Envelope struct{}

func (v2Envelope) handshake(context.Context, net.Conn, string) error { return nil }

func (v2Envelope) seal(packet []byte) ([]byte, error) { return packet, nil }

func (v2Envelope) open(r io.Reader, sessionID string) ([]byte, bool, error) {
	header := make([]byte, 6)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, false, err
	}
	if !codec.IsPacket(header) {
		return nil, false, midea.NewDecodeError(fmt.Sprintf("stream is not 5A5A framed (got % x)", header[0:2]), nil)
	}
	size := int(binary.LittleEndian.Uint16(header[4:6]))
	if size < len(header) {
		return nil, false, midea.NewDecodeError(fmt.Sprintf("5A5A length %d too small", size), nil)
	}

	packet := make([]byte, size)
	copy(packet, header)
	if _, err := io.ReadFull(r, packet[len(header):]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, false, err
	}
	logging.LogFrame(sessionID, "recv", "5a5a", packet)
	return packet, true, nil
}
