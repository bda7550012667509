package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// MessageType is the low nibble of the sixth 8370 header byte.
type MessageType byte

// 8370 message types
const (
	HandshakeRequest  MessageType = 0x0
	HandshakeResponse MessageType = 0x1
	EncryptedResponse MessageType = 0x3
	EncryptedRequest  MessageType = 0x6
)

// String returns a human-readable message type name
func (t MessageType) String() string {
	switch t {
	case HandshakeRequest:
		return "handshake_request"
	case HandshakeResponse:
		return "handshake_response"
	case EncryptedResponse:
		return "encrypted_response"
	case EncryptedRequest:
		return "encrypted_request"
	default:
		return fmt.Sprintf("unknown(0x%x)", byte(t))
	}
}

// Encrypted reports whether frames of this type carry a ciphertext and signature.
func (t MessageType) Encrypted() bool {
	return t == EncryptedRequest || t == EncryptedResponse
}

// 8370 envelope layout
const (
	EnvelopeHeaderSize = 6
	counterSize        = 2
	signatureSize      = sha256Size
	sha256Size         = 32
	envelopeMarker     = 0x20
)

var envelopeMagic = []byte{0x83, 0x70}

// Frame is a decoded 8370 envelope.
type Frame struct {
	Type    MessageType
	Counter uint16
	Payload []byte
}

// EncodeFrame builds an 8370 envelope around payload.
//
// Header:
//
//	[0:2] 83 70
//	[2:4] size (big-endian): payload length, plus padding and the 32 byte
//	      signature for encrypted types
//	[4]   20
//	[5]   padding<<4 | type
//
// The body is the big-endian counter followed by the payload. For encrypted
// types the body is zero padded to a multiple of 16 bytes, encrypted with
// AES-256-CBC (zero IV) under key, and followed by SHA-256(header || body).
// Encoding is deterministic for a given key, type, counter and payload.
func EncodeFrame(key []byte, typ MessageType, counter uint16, payload []byte) ([]byte, error) {
	size := len(payload)
	padding := 0
	if typ.Encrypted() {
		if len(key) != midea.KeySize {
			return nil, midea.NewValidationError(fmt.Sprintf("session key must be %d bytes, got %d", midea.KeySize, len(key)))
		}
		if rem := (size + counterSize) % aes.BlockSize; rem != 0 {
			padding = aes.BlockSize - rem
		}
		size += padding + signatureSize
	}
	if size > 0xFFFF {
		return nil, midea.NewValidationError(fmt.Sprintf("payload too large for 8370 envelope: %d bytes", len(payload)))
	}

	header := make([]byte, EnvelopeHeaderSize)
	copy(header, envelopeMagic)
	binary.BigEndian.PutUint16(header[2:4], uint16(size))
	header[4] = envelopeMarker
	header[5] = byte(padding)<<4 | byte(typ)

	body := make([]byte, counterSize, counterSize+len(payload)+padding)
	binary.BigEndian.PutUint16(body, counter)
	body = append(body, payload...)

	if !typ.Encrypted() {
		return append(header, body...), nil
	}

	body = append(body, make([]byte, padding)...)
	sign := sha256Bytes(header, body)
	encrypted, err := aesCBCEncrypt(body, key)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(header)+len(encrypted)+len(sign))
	out = append(out, header...)
	out = append(out, encrypted...)
	return append(out, sign...), nil
}

// DecodeFrame parses one complete 8370 envelope. When key is non-nil the frame
// must be an encrypted type and every structural or cryptographic failure is
// reported as an integrity error. With a nil key only plain frames decode.
func DecodeFrame(key []byte, data []byte) (*Frame, error) {
	fail := func(format string, args ...any) error {
		msg := fmt.Sprintf(format, args...)
		if key != nil {
			return midea.NewIntegrityError(msg)
		}
		return midea.NewDecodeError(msg, nil)
	}

	if len(data) < EnvelopeHeaderSize+counterSize {
		return nil, fail("8370 frame too short: %d bytes", len(data))
	}
	header := data[:EnvelopeHeaderSize]
	if !bytes.Equal(header[0:2], envelopeMagic) {
		return nil, fail("bad 8370 magic % x", header[0:2])
	}
	if header[4] != envelopeMarker {
		return nil, fail("bad 8370 marker 0x%02x", header[4])
	}
	if want := FrameLength(header); want != len(data) {
		return nil, fail("8370 size field says %d bytes, have %d", want, len(data))
	}

	typ := MessageType(header[5] & 0x0F)
	padding := int(header[5] >> 4)
	body := data[EnvelopeHeaderSize:]

	if key == nil {
		if typ.Encrypted() {
			return nil, midea.NewDecodeError("encrypted 8370 frame without a session key", nil)
		}
		return &Frame{
			Type:    typ,
			Counter: binary.BigEndian.Uint16(body[0:2]),
			Payload: bytes.Clone(body[counterSize:]),
		}, nil
	}

	if !typ.Encrypted() {
		return nil, fail("unexpected plain 8370 type %s", typ)
	}
	if len(key) != midea.KeySize {
		return nil, fail("session key must be %d bytes", midea.KeySize)
	}
	if len(body) < signatureSize+aes.BlockSize {
		return nil, fail("encrypted 8370 body too short: %d bytes", len(body))
	}

	sign := body[len(body)-signatureSize:]
	plain, err := aesCBCDecrypt(body[:len(body)-signatureSize], key)
	if err != nil {
		return nil, fail("%v", err)
	}
	if subtle.ConstantTimeCompare(sign, sha256Bytes(header, plain)) != 1 {
		return nil, fail("8370 signature mismatch")
	}
	if len(plain) < counterSize+padding {
		return nil, fail("8370 padding %d exceeds body", padding)
	}

	return &Frame{
		Type:    typ,
		Counter: binary.BigEndian.Uint16(plain[0:2]),
		Payload: plain[counterSize : len(plain)-padding],
	}, nil
}

// FrameLength returns the total length of the 8370 frame described by header.
func FrameLength(header []byte) int {
	return int(binary.BigEndian.Uint16(header[2:4])) + EnvelopeHeaderSize + counterSize
}

// ReadFrame reads exactly one 8370 frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, EnvelopeHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	if !bytes.Equal(header[0:2], envelopeMagic) {
		return nil, midea.NewDecodeError(fmt.Sprintf("stream is not 8370 framed (got % x)", header[0:2]), nil)
	}

	frame := make([]byte, FrameLength(header))
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[EnvelopeHeaderSize:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}
