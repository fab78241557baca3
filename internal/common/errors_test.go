package common

import (
	"errors"
	"testing"
)

func TestAppErrorFormatting(t *testing.T) {
	cause := errors.New("connection refused")
	e := NewAppError("BACKEND_DOWN", "chat backend unreachable", cause)
	if got := e.Error(); got != "BACKEND_DOWN: chat backend unreachable: connection refused" {
		t.Fatalf("Error() = %q", got)
	}
	if !errors.Is(e, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}

	bare := NewAppError("BAD_INPUT", "missing field", nil)
	if got := bare.Error(); got != "BAD_INPUT: missing field" {
		t.Fatalf("Error() = %q", got)
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "ignored") != nil {
		t.Fatal("wrapping nil should stay nil")
	}
	wrapped := WrapError(ErrBackendUnavailable, "open store")
	if !errors.Is(wrapped, ErrBackendUnavailable) {
		t.Fatalf("chain broken: %v", wrapped)
	}
	if wrapped.Error() != "open store: backend unavailable" {
		t.Fatalf("Error() = %q", wrapped.Error())
	}
}
