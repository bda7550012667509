package midea

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// Kind represents the category of error that occurred while talking to a unit
type Kind int

const (
	// KindUnknown is reported by KindOf for errors outside this taxonomy
	KindUnknown Kind = iota
	// KindDiscoveryTimeout indicates no matching unit answered the broadcast probe
	KindDiscoveryTimeout
	// KindConnect indicates the TCP connection could not be established
	KindConnect
	// KindAuth indicates the handshake was rejected or could not be verified
	KindAuth
	// KindTimeout indicates the unit did not answer a request in time
	KindTimeout
	// KindConnectionLost indicates the socket closed or reset mid-session
	KindConnectionLost
	// KindDecode indicates a well-formed frame carried content we cannot interpret
	KindDecode
	// KindIntegrity indicates a checksum, CRC or signature mismatch
	KindIntegrity
	// KindValidation indicates a caller supplied value was rejected before encoding
	KindValidation
)

// String returns a human-readable name for the error kind
func (k Kind) String() string {
	switch k {
	case KindDiscoveryTimeout:
		return "Discovery Timeout"
	case KindConnect:
		return "Connect Error"
	case KindAuth:
		return "Authentication Error"
	case KindTimeout:
		return "Timeout"
	case KindConnectionLost:
		return "Connection Lost"
	case KindDecode:
		return "Decode Error"
	case KindIntegrity:
		return "Integrity Error"
	case KindValidation:
		return "Validation Error"
	case KindUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is the error type returned by every layer of the client
type Error struct {
	Kind     Kind   // Category of error
	Op       string // Operation that failed ("discover", "handshake", "request", ...)
	Message  string // Human-readable error message
	DeviceIP string // Unit address, when known
	Err      error  // Underlying error (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" during ")
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so callers can
// write errors.Is(err, &midea.Error{Kind: midea.KindAuth}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == ""
}

func newError(kind Kind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// NewDiscoveryTimeout creates a discovery timeout error
func NewDiscoveryTimeout(message string) *Error {
	return newError(KindDiscoveryTimeout, "discover", message, nil)
}

// NewConnectError creates a connect error for the given address
func NewConnectError(deviceIP string, err error) *Error {
	e := newError(KindConnect, "connect", connectMessage(err), err)
	e.DeviceIP = deviceIP
	return e
}

// NewAuthError creates an authentication error
func NewAuthError(message string, err error) *Error {
	return newError(KindAuth, "handshake", message, err)
}

// NewTimeoutError creates a request timeout error
func NewTimeoutError(op string, err error) *Error {
	return newError(KindTimeout, op, "unit did not respond in time", err)
}

// NewConnectionLost creates a connection lost error
func NewConnectionLost(op string, err error) *Error {
	return newError(KindConnectionLost, op, "connection closed", err)
}

// NewDecodeError creates a decode error
func NewDecodeError(message string, err error) *Error {
	return newError(KindDecode, "decode", message, err)
}

// NewIntegrityError creates an integrity error
func NewIntegrityError(message string) *Error {
	return newError(KindIntegrity, "verify", message, nil)
}

// NewValidationError creates a validation error
func NewValidationError(message string) *Error {
	return newError(KindValidation, "validate", message, nil)
}

// ClassifyIOError maps an error from a socket read or write onto the
// taxonomy. Errors that are already classified pass through unchanged.
func ClassifyIOError(op string, err error) error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return err
	}

	if os.IsTimeout(err) {
		return NewTimeoutError(op, err)
	}

	return NewConnectionLost(op, err)
}

// IsClosedConnection reports whether err means the peer or the local side
// closed the connection.
func IsClosedConnection(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}

func connectMessage(err error) string {
	if os.IsTimeout(err) {
		return "connection attempt timed out"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name)
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch {
		case errors.Is(opErr.Err, syscall.ECONNREFUSED):
			return "unit refused connection"
		case errors.Is(opErr.Err, syscall.EHOSTUNREACH):
			return "host unreachable"
		case errors.Is(opErr.Err, syscall.ENETUNREACH):
			return "network unreachable"
		}
	}

	return "could not connect"
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsDiscoveryTimeout checks if an error is a discovery timeout
func IsDiscoveryTimeout(err error) bool { return KindOf(err) == KindDiscoveryTimeout }

// IsConnectError checks if an error is a connect error
func IsConnectError(err error) bool { return KindOf(err) == KindConnect }

// IsAuthError checks if an error is an authentication error
func IsAuthError(err error) bool { return KindOf(err) == KindAuth }

// IsTimeout checks if an error is a request timeout
func IsTimeout(err error) bool { return KindOf(err) == KindTimeout }

// IsConnectionLost checks if an error is a lost connection
func IsConnectionLost(err error) bool { return KindOf(err) == KindConnectionLost }

// IsDecodeError checks if an error is a decode error
func IsDecodeError(err error) bool { return KindOf(err) == KindDecode }

// IsIntegrityError checks if an error is an integrity error
func IsIntegrityError(err error) bool { return KindOf(err) == KindIntegrity }

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool { return KindOf(err) == KindValidation }

// IsRetryable reports whether a caller may reasonably reconnect and retry.
// Auth, decode, integrity and validation failures will not fix themselves.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindDiscoveryTimeout, KindConnect, KindTimeout, KindConnectionLost:
		return true
	default:
		return false
	}
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "An unexpected error occurred. Please try again."
	}

	switch e.Kind {
	case KindDiscoveryTimeout:
		return strings.Join([]string{
			"No air conditioner answered the discovery broadcast.",
			"Troubleshooting:",
			"  • Check that the unit is powered and joined to your WiFi",
			"  • Make sure this computer is on the same subnet as the unit",
			"  • Broadcasts are often blocked between VLANs; try --target with the unit's IP",
		}, "\n")

	case KindConnect:
		hint := []string{"Could not open a connection to the unit."}
		if e.DeviceIP != "" {
			hint = append(hint, "  • Try pinging the unit: ping "+e.DeviceIP)
		}
		hint = append(hint,
			"Troubleshooting:",
			"  • Verify the IP address (run 'senville discover')",
			"  • The control port is 6444 unless discovery reported another",
			"  • Only one local client can be connected at a time; close other apps",
		)
		return strings.Join(hint, "\n")

	case KindAuth:
		return strings.Join([]string{
			"The unit rejected the token/key handshake.",
			"Troubleshooting:",
			"  • Token must be 128 hex characters and key 64 hex characters",
			"  • Token and key are tied to the device ID; re-fetch them if the module was re-paired",
			"  • Check SENVILLE_TOKEN and SENVILLE_KEY in your .env file",
		}, "\n")

	case KindTimeout:
		return strings.Join([]string{
			"The unit did not respond in time.",
			"Troubleshooting:",
			"  • Check the unit's WiFi signal",
			"  • Try increasing --timeout",
			"  • The session was closed; the next command reconnects",
		}, "\n")

	case KindConnectionLost:
		return strings.Join([]string{
			"The unit closed the connection.",
			"The WiFi module drops idle sessions; the next command reconnects.",
		}, "\n")

	case KindDecode, KindIntegrity:
		return strings.Join([]string{
			"The unit sent a reply that could not be understood.",
			"Troubleshooting:",
			"  • Run with --log-level debug to capture the raw frames",
			"  • Confirm the unit is an air conditioner (device type 0xAC)",
		}, "\n")

	case KindValidation:
		return "The requested values are invalid. Check the error message for details."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return err.Error()
	}

	switch e.Kind {
	case KindDiscoveryTimeout:
		return "No units found"
	case KindConnect:
		return "Cannot connect to unit - " + e.Message
	case KindAuth:
		return "Authentication failed - check token and key"
	case KindTimeout:
		return "Unit not responding (timeout)"
	case KindConnectionLost:
		return "Connection to unit lost"
	case KindDecode:
		return "Failed to decode unit response"
	case KindIntegrity:
		return "Corrupted frame from unit"
	default:
		return e.Message
	}
}
