package ccerr

import (
	"errors"
	"testing"
)

func TestIsMatchesKind(t *testing.T) {
	err := New("assign", CapacityExhausted, "no free slot")
	if !Is(err, CapacityExhausted) {
		t.Fatal("expected Is to match the error's own kind")
	}
	if Is(err, Timeout) {
		t.Fatal("expected Is not to match a different kind")
	}
}

func TestErrorsIsWorksThroughStandardLibrary(t *testing.T) {
	err := New("assign", UnknownDevice, "no such device")
	if !errors.Is(err, New("other_op", UnknownDevice, "different message")) {
		t.Fatal("expected errors.Is to match by Kind regardless of Op/Msg")
	}
}

func TestWrapPreservesInnerError(t *testing.T) {
	inner := errors.New("read: broken pipe")
	wrapped := Wrap("read", SerialUnavailable, inner)
	if wrapped.Unwrap() != inner {
		t.Fatal("expected Wrap to preserve the inner error for Unwrap")
	}
	if !errors.Is(wrapped, inner) {
		t.Fatal("expected errors.Is to find the wrapped inner error")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if Wrap("op", Timeout, nil) != nil {
		t.Fatal("expected Wrap(nil) to return nil")
	}
}

func TestErrorMessageIncludesDeviceWhenSet(t *testing.T) {
	err := NewDevice("set_value", UnknownAssignment, 3, "unknown assignment")
	if got := err.Error(); got == "" {
		t.Fatal("expected a non-empty error message")
	}
}
