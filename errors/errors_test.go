package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseInit,
				Kind:   KindMissingExport,
				Detail: "module is missing exports",
				Names:  []string{"hashwx_make", "hashwx_exec"},
			},
			contains: []string{"[init]", "missing_export", "module is missing exports", "hashwx_make, hashwx_exec"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseExec,
				Kind:  KindInvalidHandle,
			},
			contains: []string{"[exec]", "invalid_handle"},
		},
		{
			name: "names without detail",
			err: &Error{
				Phase: PhaseLink,
				Kind:  KindMissingExport,
				Names: []string{"exec"},
			},
			contains: []string{"[link]", "missing_export: [exec]"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseAlloc,
				Kind:   KindAllocation,
				Detail: "engine out of contexts",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[alloc]", "allocation", "engine out of contexts", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseSeed,
		Kind:  KindInvalidInput,
	}

	if !err.Is(&Error{Phase: PhaseSeed, Kind: KindInvalidInput}) {
		t.Error("Is should match same phase and kind")
	}

	if err.Is(&Error{Phase: PhaseExec, Kind: KindInvalidInput}) {
		t.Error("Is should not match different phase")
	}

	if err.Is(&Error{Phase: PhaseSeed, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}

	if !err.Is(Sentinel(KindInvalidInput)) {
		t.Error("Sentinel should match kind in any phase")
	}

	if err.Is(Sentinel(KindInvalidHandle)) {
		t.Error("Sentinel should not match a different kind")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, Sentinel(KindInvalidInput)) {
		t.Error("errors.Is should see through fmt wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseSeed, KindInvalidInput).
		Names("seed").
		Value(31).
		Cause(cause).
		Detail("seed must be %d bytes, got %d", 32, 31).
		Build()

	if err.Phase != PhaseSeed {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseSeed)
	}
	if err.Kind != KindInvalidInput {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidInput)
	}
	if len(err.Names) != 1 || err.Names[0] != "seed" {
		t.Errorf("Names = %v, want [seed]", err.Names)
	}
	if err.Value != 31 {
		t.Errorf("Value = %v, want 31", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "seed must be 32 bytes, got 31" {
		t.Errorf("Detail = %v", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("InvalidHandle", func(t *testing.T) {
		err := InvalidHandle(PhaseExec, 7)
		if err.Kind != KindInvalidHandle {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidHandle)
		}
		if err.Value != uint32(7) {
			t.Errorf("Value = %v, want 7", err.Value)
		}
		if !strings.Contains(err.Detail, "7") {
			t.Errorf("Detail = %v, should contain handle", err.Detail)
		}
	})

	t.Run("AllocationFailed", func(t *testing.T) {
		err := AllocationFailed(PhaseAlloc, "no free context")
		if err.Kind != KindAllocation {
			t.Errorf("Kind = %v, want %v", err.Kind, KindAllocation)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseAlloc, "compiled mode")
		if err.Kind != KindUnsupported {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnsupported)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseHost, 65530, 32)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if !strings.Contains(err.Detail, "65562") {
			t.Errorf("Detail = %v, should contain end offset", err.Detail)
		}
	})

	t.Run("Trap", func(t *testing.T) {
		cause := errors.New("unreachable")
		err := Trap(PhaseExec, "hashwx_exec", cause)
		if err.Kind != KindTrap {
			t.Errorf("Kind = %v, want %v", err.Kind, KindTrap)
		}
		if !errors.Is(err, cause) {
			t.Error("Trap should wrap its cause")
		}
	})

	t.Run("MissingExports", func(t *testing.T) {
		err := MissingExports(PhaseInit, []string{"a", "b"})
		if err.Kind != KindMissingExport {
			t.Errorf("Kind = %v, want %v", err.Kind, KindMissingExport)
		}
		if !strings.Contains(err.Error(), "2 required") {
			t.Errorf("error should contain count, got %q", err.Error())
		}
	})

	t.Run("NotInitialized", func(t *testing.T) {
		err := NotInitialized(PhaseExec, "submodule")
		if err.Kind != KindNotInitialized {
			t.Errorf("Kind = %v, want %v", err.Kind, KindNotInitialized)
		}
	})

	t.Run("Load", func(t *testing.T) {
		err := Load("read file", errors.New("missing"))
		if err.Phase != PhaseLoad {
			t.Errorf("Phase = %v, want %v", err.Phase, PhaseLoad)
		}
	})
}
