package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/hashwx/errors"
)

// Mode selects how a context evaluates its program.
type Mode uint32

const (
	ModeInterpreted Mode = 0
	ModeCompiled    Mode = 1
)

// Compiled reports whether the compiled flag (bit 0) is set.
func (m Mode) Compiled() bool {
	return m&ModeCompiled != 0
}

func (m Mode) String() string {
	switch m {
	case ModeInterpreted:
		return "interpreted"
	case ModeCompiled:
		return "compiled"
	default:
		return fmt.Sprintf("mode(%d)", uint32(m))
	}
}

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "interpreted", "interp", "0":
		return ModeInterpreted, nil
	case "compiled", "1":
		return ModeCompiled, nil
	default:
		return 0, errors.Unsupported(errors.PhaseConfig, fmt.Sprintf("unknown mode %q", s))
	}
}

const (
	// SeedSize is the number of seed bytes read by CommitSeed.
	SeedSize = 32

	// RegisterCount is the number of 64-bit registers in a context.
	RegisterCount = 10

	// MemoryWords is the number of 64-bit scratch words in a context.
	MemoryWords = 256
)

// Alloc sentinels. Any native handle <= 0 is a failure.
const (
	AllocFailed       int32 = 0
	AllocNotSupported int32 = -1
)

// Engine is the hashing engine boundary. Every method other than Alloc
// requires a live native handle previously returned by Alloc; passing any
// other value is a programmer error and the result is undefined.
//
// Engines are not safe for concurrent use.
type Engine interface {
	// Alloc creates a context and returns its native handle, or a
	// non-positive sentinel: AllocFailed on exhaustion, AllocNotSupported
	// when the mode is unavailable.
	Alloc(ctx context.Context, mode Mode) (int32, error)

	// SeedLocation, RegisterLocation and MemoryLocation return the
	// linear-memory offsets of the seed buffer (SeedSize bytes), the
	// register file (RegisterCount words) and the scratch area.
	SeedLocation(ctx context.Context, native int32) (uint32, error)
	RegisterLocation(ctx context.Context, native int32) (uint32, error)
	MemoryLocation(ctx context.Context, native int32) (uint32, error)

	// CommitSeed derives the program from the seed buffer contents.
	// Compiled contexts also emit side-module code.
	CommitSeed(ctx context.Context, native int32) error

	// Exec evaluates the hash of nonce on an interpreted context.
	Exec(ctx context.Context, native int32, nonce uint64) (uint64, error)

	// ExecBegin initialises the register file for nonce, ExecFinal
	// folds the register file into the hash. A linked submodule runs
	// between the two.
	ExecBegin(ctx context.Context, native int32, nonce uint64) error
	ExecFinal(ctx context.Context, native int32) (uint64, error)

	// CodeLocation and CodeSize describe the side-module bytes emitted by
	// the last CommitSeed of a compiled context.
	CodeLocation(ctx context.Context, native int32) (uint32, error)
	CodeSize(ctx context.Context, native int32) (uint32, error)

	// Free releases a context.
	Free(ctx context.Context, native int32) error

	// Memory returns the engine's linear memory.
	Memory() api.Memory

	// Link compiles side-module bytes and instantiates them against the
	// engine's memory.
	Link(ctx context.Context, code []byte) (Submodule, error)

	// Close releases the engine and every submodule it linked.
	Close(ctx context.Context) error
}

// Submodule is a linked side module exporting exec(reg, mem).
type Submodule interface {
	Exec(ctx context.Context, reg, mem uint32) error
	Close(ctx context.Context) error
}

// Opener acquires an engine. It is called at most once per manager.
type Opener interface {
	Open(ctx context.Context) (Engine, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Engine, error)

func (f OpenerFunc) Open(ctx context.Context) (Engine, error) {
	return f(ctx)
}
