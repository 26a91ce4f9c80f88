package errs

import (
	"errors"
	"testing"
)

func TestParseErrorRecoverable(t *testing.T) {
	err := NewParseError("a.py", errors.New("unexpected token"))
	if !err.IsRecoverable() {
		t.Errorf("parse errors must be recoverable")
	}
	if err.File != "a.py" {
		t.Errorf("expected File to be set")
	}
}

func TestInvariantViolationFatal(t *testing.T) {
	err := NewInvariantViolation("unique-definition", "duplicate definition occurrence")
	if err.IsRecoverable() {
		t.Errorf("invariant violations must be fatal")
	}
}

func TestMultiErrorHasFatal(t *testing.T) {
	me := NewMultiError([]error{
		NewParseError("a.py", errors.New("x")),
		NewInvariantViolation("edge-endpoints", "dangling edge"),
		nil,
	})
	if len(me.Errors) != 2 {
		t.Fatalf("expected nils filtered, got %d errors", len(me.Errors))
	}
	if !me.HasFatal() {
		t.Errorf("expected HasFatal true when an invariant violation is present")
	}
}

func TestUnwrap(t *testing.T) {
	underlying := errors.New("boom")
	err := NewCacheCorruption("sym-1", underlying)
	if !errors.Is(err, underlying) {
		t.Errorf("StageError must unwrap to the underlying error")
	}
}
