package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

func TestBuilder(t *testing.T) {
	err := New(PhaseBinding, KindValidation).
		Path("vertices").
		Detail("length %d not divisible by %d", 7, 2).
		Build()

	msg := err.Error()
	if !strings.Contains(msg, "[binding]") {
		t.Errorf("missing phase in %q", msg)
	}
	if !strings.Contains(msg, "validation") {
		t.Errorf("missing kind in %q", msg)
	}
	if !strings.Contains(msg, "at vertices") {
		t.Errorf("missing path in %q", msg)
	}
	if !strings.Contains(msg, "length 7 not divisible by 2") {
		t.Errorf("missing detail in %q", msg)
	}
}

func TestHandleZeroIsReported(t *testing.T) {
	err := InvalidHandle(PhasePool, 0)
	if !strings.Contains(err.Error(), "(handle 0)") {
		t.Errorf("handle 0 should appear in message, got %q", err.Error())
	}
}

func TestIsMatchesPhaseAndKind(t *testing.T) {
	err := ResourceExhausted("3d", 64)
	target := New(PhasePool, KindResourceExhausted).Build()

	if !stderrors.Is(err, target) {
		t.Error("expected Is to match on phase+kind")
	}

	other := New(PhaseMesh, KindResourceExhausted).Build()
	if stderrors.Is(err, other) {
		t.Error("Is should not match a different phase")
	}
}

func TestIsKindWalksCauseChain(t *testing.T) {
	inner := New(PhaseEngine, KindEngineFailure).Detail("code 2").Build()
	outer := New(PhaseRemesh, KindInvalidData).Cause(inner).Build()

	if !IsKind(outer, KindEngineFailure) {
		t.Error("IsKind should find the wrapped engine failure")
	}
	if IsKind(outer, KindDisposed) {
		t.Error("IsKind should not report an absent kind")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := EngineFailure("mmg2d_remesh", cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected Unwrap chain to reach cause")
	}
	if !strings.Contains(err.Error(), "caused by: boom") {
		t.Errorf("cause missing from %q", err.Error())
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cases := []struct {
		err  *Error
		kind Kind
	}{
		{ResourceExhausted("2d", 64), KindResourceExhausted},
		{InvalidHandle(PhaseBinding, 7), KindInvalidHandle},
		{Disposed("Remesh"), KindDisposed},
		{Validation(PhaseMesh, "radius", "must be > 0"), KindValidation},
		{OutOfBounds(16, 128), KindOutOfBounds},
	}
	for _, c := range cases {
		if c.err.Kind != c.kind {
			t.Errorf("got kind %q, want %q", c.err.Kind, c.kind)
		}
	}
}
