package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"testing"
	"time"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

var (
	testKey  = bytes.Repeat([]byte{0x5c}, midea.KeySize)
	testTime = time.Date(2026, 3, 14, 15, 9, 26, 530_000_000, time.UTC)
)

func sampleFrame() []byte {
	return []byte{0xAA, 0x20, 0xAC, 0, 0, 0, 0, 0, 0, 0x03, 0x41, 0x81, 0x00, 0xFF, 0x03, 0xFF, 0x00, 0x02}
}

func TestEncodeFrame_Deterministic(t *testing.T) {
	payload := EncodePacket(0x123456789A, sampleFrame(), testTime)

	a, err := EncodeFrame(testKey, EncryptedRequest, 42, payload)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	b, err := EncodeFrame(testKey, EncryptedRequest, 42, payload)
	if err != nil {
		t.Fatalf("EncodeFrame() error = %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("EncodeFrame() is not deterministic")
	}

	c, _ := EncodeFrame(testKey, EncryptedRequest, 43, payload)
	if bytes.Equal(a, c) {
		t.Error("counter should change the encoded frame")
	}
}

func TestEncodeFrame_Header(t *testing.T) {
	tests := []struct {
		name        string
		typ         MessageType
		payloadLen  int
		wantSize    int
		wantPadding int
	}{
		{"plain handshake", HandshakeRequest, 64, 64, 0},
		{"encrypted needs padding", EncryptedRequest, 100, 100 + 10 + 32, 10},
		{"encrypted aligned", EncryptedRequest, 14, 14 + 32, 0},
		{"encrypted response", EncryptedResponse, 1, 1 + 13 + 32, 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := testKey
			if !tt.typ.Encrypted() {
				key = nil
			}
			frame, err := EncodeFrame(key, tt.typ, 1, make([]byte, tt.payloadLen))
			if err != nil {
				t.Fatalf("EncodeFrame() error = %v", err)
			}
			if frame[0] != 0x83 || frame[1] != 0x70 || frame[4] != 0x20 {
				t.Errorf("bad header % x", frame[:6])
			}
			if got := int(binary.BigEndian.Uint16(frame[2:4])); got != tt.wantSize {
				t.Errorf("size = %d, want %d", got, tt.wantSize)
			}
			if got := int(frame[5] >> 4); got != tt.wantPadding {
				t.Errorf("padding = %d, want %d", got, tt.wantPadding)
			}
			if got := MessageType(frame[5] & 0x0F); got != tt.typ {
				t.Errorf("type = %v, want %v", got, tt.typ)
			}
			if len(frame) != FrameLength(frame) {
				t.Errorf("len(frame) = %d, FrameLength = %d", len(frame), FrameLength(frame))
			}
		})
	}
}

func TestFrameRoundTrip(t *testing.T) {
	for _, n := range []int{0, 1, 13, 14, 15, 16, 30, 88, 200} {
		payload := bytes.Repeat([]byte{0xA5}, n)
		frame, err := EncodeFrame(testKey, EncryptedResponse, 0xFFFF, payload)
		if err != nil {
			t.Fatalf("EncodeFrame(%d) error = %v", n, err)
		}
		got, err := DecodeFrame(testKey, frame)
		if err != nil {
			t.Fatalf("DecodeFrame(%d) error = %v", n, err)
		}
		if got.Type != EncryptedResponse || got.Counter != 0xFFFF || !bytes.Equal(got.Payload, payload) {
			t.Errorf("round trip of %d bytes = %+v", n, got)
		}
	}
}

func TestDecodeFrame_TamperAnyByte(t *testing.T) {
	frame, err := EncodeFrame(testKey, EncryptedRequest, 7, EncodePacket(1, sampleFrame(), testTime))
	if err != nil {
		t.Fatal(err)
	}

	for i := range frame {
		tampered := bytes.Clone(frame)
		tampered[i] ^= 0x01
		if _, err := DecodeFrame(testKey, tampered); !midea.IsIntegrityError(err) {
			t.Errorf("tamper byte %d: err = %v, want integrity error", i, err)
		}
	}

	if _, err := DecodeFrame(testKey, frame[:len(frame)-1]); !midea.IsIntegrityError(err) {
		t.Errorf("truncated frame: err = %v, want integrity error", err)
	}
}

func TestDecodeFrame_WrongKey(t *testing.T) {
	frame, _ := EncodeFrame(testKey, EncryptedResponse, 1, []byte("hello"))
	other := bytes.Repeat([]byte{0x11}, midea.KeySize)
	if _, err := DecodeFrame(other, frame); !midea.IsIntegrityError(err) {
		t.Errorf("err = %v, want integrity error", err)
	}
}

func TestReadFrame(t *testing.T) {
	a, _ := EncodeFrame(testKey, EncryptedResponse, 1, []byte("first"))
	b, _ := EncodeFrame(nil, HandshakeResponse, 0, make([]byte, 64))
	r := bytes.NewReader(append(bytes.Clone(a), b...))

	got, err := ReadFrame(r)
	if err != nil || !bytes.Equal(got, a) {
		t.Fatalf("ReadFrame() = % x, %v", got, err)
	}
	got, err = ReadFrame(r)
	if err != nil || !bytes.Equal(got, b) {
		t.Fatalf("ReadFrame() = % x, %v", got, err)
	}

	if _, err := ReadFrame(bytes.NewReader(a[:10])); err == nil {
		t.Error("expected error for truncated stream")
	}
	if _, err := ReadFrame(bytes.NewReader([]byte{0x5a, 0x5a, 0, 0, 0, 0})); !midea.IsDecodeError(err) {
		t.Errorf("err = %v, want decode error", err)
	}
}

func TestPacketRoundTrip(t *testing.T) {
	frame := sampleFrame()
	packet := EncodePacket(0x0000A1B2C3D4E5F6, frame, testTime)

	if !IsPacket(packet) {
		t.Fatal("IsPacket() = false")
	}
	if got := int(binary.LittleEndian.Uint16(packet[4:6])); got != len(packet) {
		t.Errorf("length field = %d, want %d", got, len(packet))
	}

	decoded, err := DecodePacket(packet)
	if err != nil {
		t.Fatalf("DecodePacket() error = %v", err)
	}
	if decoded.DeviceID != 0x0000A1B2C3D4E5F6 {
		t.Errorf("DeviceID = %#x", decoded.DeviceID)
	}
	if !bytes.Equal(decoded.Frame, frame) {
		t.Errorf("Frame = % x, want % x", decoded.Frame, frame)
	}

	// trailing bytes past the recorded length are ignored
	if _, err := DecodePacket(append(bytes.Clone(packet), 0xFF, 0xFF)); err != nil {
		t.Errorf("DecodePacket() with trailing data error = %v", err)
	}
}

func TestDecodePacket_TamperAnyByte(t *testing.T) {
	packet := EncodePacket(99, sampleFrame(), testTime)
	for i := range packet {
		tampered := bytes.Clone(packet)
		tampered[i] ^= 0x80
		if _, err := DecodePacket(tampered); !midea.IsIntegrityError(err) {
			t.Errorf("tamper byte %d: err = %v, want integrity error", i, err)
		}
	}
}

func TestPacketTime(t *testing.T) {
	got := packetTime(testTime)
	// 2026 03 14 15 09 26 53 reversed, with the year split in two groups
	want := []byte{53, 26, 9, 15, 14, 3, 26, 20}
	if !bytes.Equal(got, want) {
		t.Errorf("packetTime() = %v, want %v", got, want)
	}
}

func TestDeriveSessionKey(t *testing.T) {
	key := bytes.Repeat([]byte{0x0F}, midea.KeySize)
	plain := bytes.Repeat([]byte{0xF0}, 32)

	resp, err := NewHandshakeResponse(plain, key)
	if err != nil {
		t.Fatal(err)
	}

	sessionKey, err := DeriveSessionKey(resp, key)
	if err != nil {
		t.Fatalf("DeriveSessionKey() error = %v", err)
	}
	if !bytes.Equal(sessionKey, bytes.Repeat([]byte{0xFF}, 32)) {
		t.Errorf("session key = % x", sessionKey)
	}

	tests := []struct {
		name string
		resp []byte
		key  []byte
	}{
		{"error literal", []byte("ERROR"), key},
		{"short", resp[:40], key},
		{"wrong key", resp, bytes.Repeat([]byte{0x01}, midea.KeySize)},
		{"bad signature", append(bytes.Clone(resp[:63]), resp[63]^1), key},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DeriveSessionKey(tt.resp, tt.key); !midea.IsAuthError(err) {
				t.Errorf("err = %v, want auth error", err)
			}
		})
	}
}

func TestEncodeHandshake(t *testing.T) {
	token := bytes.Repeat([]byte{0xAB}, midea.TokenSize)
	frame, err := EncodeHandshake(token)
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) != 72 {
		t.Errorf("len = %d, want 72", len(frame))
	}
	decoded, err := DecodeFrame(nil, frame)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}
	if decoded.Type != HandshakeRequest || !bytes.Equal(decoded.Payload, token) {
		t.Errorf("decoded = %+v", decoded)
	}

	if _, err := EncodeHandshake(token[:10]); !midea.IsValidationError(err) {
		t.Errorf("err = %v, want validation error", err)
	}
}

func TestSignatureCoversHeader(t *testing.T) {
	frame, _ := EncodeFrame(testKey, EncryptedRequest, 3, []byte("abc"))
	plain, err := aesCBCDecrypt(frame[EnvelopeHeaderSize:len(frame)-32], testKey)
	if err != nil {
		t.Fatal(err)
	}
	want := sha256.Sum256(append(bytes.Clone(frame[:EnvelopeHeaderSize]), plain...))
	if !bytes.Equal(frame[len(frame)-32:], want[:]) {
		t.Error("signature is not SHA-256 over header and plaintext")
	}
}

func TestMessageTypeString(t *testing.T) {
	if got := MessageType(0x9).String(); !strings.HasPrefix(got, "unknown") {
		t.Errorf("String() = %q", got)
	}
	if EncryptedRequest.String() != "encrypted_request" {
		t.Errorf("String() = %q", EncryptedRequest.String())
	}
}
