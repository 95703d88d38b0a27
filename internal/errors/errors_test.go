package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrAuth, "No credential source available", "Set HALYARD_SSH_KEY or start an agent")

	if err.Code != ErrAuth {
		t.Errorf("Code = %q, want %q", err.Code, ErrAuth)
	}
	if !strings.Contains(err.Error(), "No credential source available") {
		t.Errorf("Error() missing message: %s", err.Error())
	}
	if !strings.Contains(err.Error(), "Set HALYARD_SSH_KEY") {
		t.Errorf("Error() missing suggestion: %s", err.Error())
	}
}

func TestWrapWithCode(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := WrapWithCode(cause, ErrConnect, "Can't reach host", "Check the host is up")

	if err.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Error() missing cause: %s", err.Error())
	}
}

func TestIsCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{"matching code", New(ErrNoSession, "no session", ""), ErrNoSession, true},
		{"different code", New(ErrExec, "exec failed", ""), ErrNoSession, false},
		{"wrapped match", fmt.Errorf("outer: %w", New(ErrProbe, "probe failed", "")), ErrProbe, true},
		{"plain error", fmt.Errorf("plain"), ErrExec, false},
		{"nil error", nil, ErrExec, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCode(tt.err, tt.code); got != tt.want {
				t.Errorf("IsCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCode(t *testing.T) {
	if got := Code(New(ErrStore, "db busy", "")); got != ErrStore {
		t.Errorf("Code() = %q, want %q", got, ErrStore)
	}
	if got := Code(fmt.Errorf("plain")); got != "" {
		t.Errorf("Code() = %q, want empty", got)
	}
}
