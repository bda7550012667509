package midea

import (
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// TokenSize is the length of the handshake token in bytes (128 hex chars).
	TokenSize = 64
	// KeySize is the length of the handshake key in bytes (64 hex chars).
	KeySize = 32
)

// Credentials are the per-unit token and key obtained out of band. They are
// supplied by the caller for each session.
type Credentials struct {
	Token []byte
	Key   []byte
}

// ParseCredentials decodes and validates hex encoded token and key strings
func ParseCredentials(tokenHex, keyHex string) (Credentials, error) {
	token, err := decodeHexField("token", tokenHex, TokenSize)
	if err != nil {
		return Credentials{}, err
	}
	key, err := decodeHexField("key", keyHex, KeySize)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{Token: token, Key: key}, nil
}

// Validate checks the decoded field lengths
func (c Credentials) Validate() error {
	if len(c.Token) != TokenSize {
		return NewValidationError(fmt.Sprintf("token must be %d bytes, got %d", TokenSize, len(c.Token)))
	}
	if len(c.Key) != KeySize {
		return NewValidationError(fmt.Sprintf("key must be %d bytes, got %d", KeySize, len(c.Key)))
	}
	return nil
}

// Empty reports whether no credentials were supplied. Protocol v2 units
// need none.
func (c Credentials) Empty() bool {
	return len(c.Token) == 0 && len(c.Key) == 0
}

// String redacts the secret material
func (c Credentials) String() string {
	if c.Empty() {
		return "Credentials{}"
	}
	return fmt.Sprintf("Credentials{token=%s…, key=%s…}", hexPrefix(c.Token), hexPrefix(c.Key))
}

func decodeHexField(name, value string, size int) ([]byte, error) {
	value = strings.TrimSpace(value)
	if len(value) != size*2 {
		return nil, NewValidationError(fmt.Sprintf("%s must be %d hex characters, got %d", name, size*2, len(value)))
	}
	b, err := hex.DecodeString(value)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Op: "validate", Message: name + " is not valid hex", Err: err}
	}
	return b, nil
}

func hexPrefix(b []byte) string {
	if len(b) > 4 {
		b = b[:4]
	}
	return hex.EncodeToString(b)
}
