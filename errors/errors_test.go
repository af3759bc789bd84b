package errors_test

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/wippyai/wasm-ld/errors"
)

func TestErrorRendering(t *testing.T) {
	err := errors.DuplicateSymbol("main", "a.o", "b.o")
	msg := err.Error()
	for _, want := range []string{"[resolve]", "duplicate_symbol", "main", "a.o", "b.o"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}

func TestErrorIsMatchesCategory(t *testing.T) {
	err := errors.TypeMismatch("x", "a.o", "Function", "b.o", "Global")
	target := &errors.Error{Phase: errors.PhaseResolve, Kind: errors.KindTypeMismatch}
	if !stderrors.Is(err, target) {
		t.Error("Is failed on matching phase+kind")
	}

	other := &errors.Error{Phase: errors.PhaseResolve, Kind: errors.KindUndefined}
	if stderrors.Is(err, other) {
		t.Error("Is matched a different kind")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := errors.IO("write output", "a.out", cause)
	if !stderrors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("cause missing from message: %q", err.Error())
	}
}

func TestInternalFormats(t *testing.T) {
	err := errors.Internal("index %d assigned twice", 7)
	if !strings.Contains(err.Error(), "index 7 assigned twice") {
		t.Errorf("formatting lost: %q", err.Error())
	}
}
