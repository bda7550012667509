package midea

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
	"testing"
)

type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

func TestClassifyIOError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"timeout", &net.OpError{Op: "read", Net: "tcp", Err: &timeoutError{}}, KindTimeout},
		{"eof", io.EOF, KindConnectionLost},
		{"reset", &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}, KindConnectionLost},
		{"already classified", NewIntegrityError("bad sign"), KindIntegrity},
		{"wrapped classified", fmt.Errorf("ctx: %w", NewAuthError("nope", nil)), KindAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := KindOf(ClassifyIOError("request", tt.err))
			if got != tt.want {
				t.Errorf("KindOf(ClassifyIOError()) = %v, want %v", got, tt.want)
			}
		})
	}

	if ClassifyIOError("request", nil) != nil {
		t.Error("ClassifyIOError(nil) should return nil")
	}
}

func TestNewConnectError_Message(t *testing.T) {
	err := NewConnectError("192.168.1.50", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED})

	if err.Kind != KindConnect {
		t.Errorf("Kind = %v, want %v", err.Kind, KindConnect)
	}
	if err.Message != "unit refused connection" {
		t.Errorf("Message = %q, want %q", err.Message, "unit refused connection")
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Error("expected errors.Is to reach the underlying syscall error")
	}
}

func TestErrorIsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewTimeoutError("request", nil))

	if !errors.Is(err, &Error{Kind: KindTimeout}) {
		t.Error("errors.Is should match on kind")
	}
	if errors.Is(err, &Error{Kind: KindAuth}) {
		t.Error("errors.Is should not match a different kind")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{NewDiscoveryTimeout("none"), true},
		{NewConnectError("10.0.0.1", io.EOF), true},
		{NewTimeoutError("request", nil), true},
		{NewConnectionLost("request", io.EOF), true},
		{NewAuthError("rejected", nil), false},
		{NewDecodeError("bad", nil), false},
		{NewIntegrityError("bad"), false},
		{NewValidationError("bad"), false},
		{errors.New("plain"), false},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestGetTroubleshootingHint(t *testing.T) {
	hint := GetTroubleshootingHint(NewConnectError("10.0.0.9", io.EOF))
	if !strings.Contains(hint, "ping 10.0.0.9") {
		t.Errorf("hint should include ping suggestion, got:\n%s", hint)
	}

	hint = GetTroubleshootingHint(errors.New("boom"))
	if hint == "" {
		t.Error("expected fallback hint for foreign errors")
	}
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindDecode, Op: "decode", Message: "unknown mode 7", Err: io.ErrUnexpectedEOF}
	want := "Decode Error during decode: unknown mode 7 (caused by: unexpected EOF)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
