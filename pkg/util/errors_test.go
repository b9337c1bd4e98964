package util

import (
	"errors"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("spawner.load-nodes", "unreadable nodes file")
	if got := err.Error(); got == "" {
		t.Fatal("expected non-empty message")
	}
	if !errors.Is(err, ErrConfiguration) {
		t.Error("ConfigError should unwrap to ErrConfiguration")
	}
}

func TestRoundError(t *testing.T) {
	cause := errors.New("boom")
	err := NewRoundError(7, 12.5, cause)
	if !errors.Is(err, ErrRound) {
		t.Error("RoundError should unwrap to ErrRound")
	}
	if err.Device != 7 || err.Time != 12.5 {
		t.Errorf("unexpected fields: %+v", err)
	}
}

func TestTransportError(t *testing.T) {
	err := NewTransportError(3, 2, errors.New("dial refused"))
	if !errors.Is(err, ErrTransport) {
		t.Error("TransportError should unwrap to ErrTransport")
	}
}

func TestProtocolError(t *testing.T) {
	err := NewProtocolError(9, "truncated envelope")
	if !errors.Is(err, ErrProtocol) {
		t.Error("ProtocolError should unwrap to ErrProtocol")
	}
}

func TestInvariantError(t *testing.T) {
	err := NewInvariantError("duplicate uid", "uid 5 already live")
	msg := err.Error()
	if msg == "" {
		t.Fatal("expected non-empty message")
	}
	if !errors.Is(err, ErrInvariant) {
		t.Error("InvariantError should unwrap to ErrInvariant")
	}
}

func TestInvariantErrorNoDetails(t *testing.T) {
	err := NewInvariantError("trace stack popped empty", "")
	msg := err.Error()
	if err.Details != "" {
		t.Fatalf("expected empty details, got %q", err.Details)
	}
	if msg == "" {
		t.Fatal("expected non-empty message")
	}
}

func TestSentinelErrorsDistinct(t *testing.T) {
	sentinels := []error{ErrConfiguration, ErrRound, ErrTransport, ErrProtocol, ErrInvariant}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel errors should be distinct: %v == %v", a, b)
			}
		}
	}
}
