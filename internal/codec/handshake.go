package codec

import (
	"bytes"
	"crypto/subtle"
	"fmt"

	"github.com/beattie/Senville-Midea-reverse-engineering/internal/midea"
)

// HandshakeResponseSize is the payload length of a successful handshake reply.
const HandshakeResponseSize = 64

var handshakeRejected = []byte("ERROR")

// EncodeHandshake builds the unencrypted handshake request carrying the token.
func EncodeHandshake(token []byte) ([]byte, error) {
	if len(token) != midea.TokenSize {
		return nil, midea.NewValidationError(fmt.Sprintf("token must be %d bytes, got %d", midea.TokenSize, len(token)))
	}
	return EncodeFrame(nil, HandshakeRequest, 0, token)
}

// DeriveSessionKey turns the unit's handshake reply into the session key.
//
// The reply is 32 bytes of AES-256-CBC ciphertext (zero IV, keyed with the
// credentials key) followed by the SHA-256 of the plaintext. The session key
// is plaintext XOR key.
func DeriveSessionKey(response, key []byte) ([]byte, error) {
	if bytes.Equal(response, handshakeRejected) {
		return nil, midea.NewAuthError("unit rejected the token", nil)
	}
	if len(response) != HandshakeResponseSize {
		return nil, midea.NewAuthError(fmt.Sprintf("handshake reply is %d bytes, want %d", len(response), HandshakeResponseSize), nil)
	}
	if len(key) != midea.KeySize {
		return nil, midea.NewAuthError(fmt.Sprintf("key must be %d bytes, got %d", midea.KeySize, len(key)), nil)
	}

	plain, err := aesCBCDecrypt(response[:32], key)
	if err != nil {
		return nil, midea.NewAuthError("handshake reply does not decrypt", err)
	}
	if subtle.ConstantTimeCompare(sha256Bytes(plain), response[32:64]) != 1 {
		return nil, midea.NewAuthError("handshake signature mismatch (wrong key for this token?)", nil)
	}

	sessionKey := make([]byte, midea.KeySize)
	subtle.XORBytes(sessionKey, plain, key)
	return sessionKey, nil
}

// NewHandshakeResponse builds the reply a unit sends for a given session
// plaintext. It is the inverse of DeriveSessionKey and exists for test
// devices and simulators.
func NewHandshakeResponse(plain, key []byte) ([]byte, error) {
	if len(plain) != 32 || len(key) != midea.KeySize {
		return nil, midea.NewValidationError("handshake plaintext and key must be 32 bytes")
	}
	encrypted, err := aesCBCEncrypt(plain, key)
	if err != nil {
		return nil, err
	}
	return append(encrypted, sha256Bytes(plain)...), nil
}
