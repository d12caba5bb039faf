package hashwx

import (
	"context"
	"time"

	"github.com/wippyai/hashwx/engine"
	"github.com/wippyai/hashwx/errors"
	"github.com/wippyai/hashwx/resource"
)

// Handle identifies a live context. Handles start at 1.
type Handle = resource.Handle

// Mode selects the execution path of a context.
type Mode = engine.Mode

const (
	ModeInterpreted = engine.ModeInterpreted
	ModeCompiled    = engine.ModeCompiled
)

// SeedSize is the only accepted seed length.
const SeedSize = engine.SeedSize

// Sentinels for errors.Is. They match any phase.
var (
	ErrInvalidHandle  = errors.Sentinel(errors.KindInvalidHandle)
	ErrInvalidSeed    = errors.Sentinel(errors.KindInvalidInput)
	ErrExhausted      = errors.Sentinel(errors.KindAllocation)
	ErrUnsupported    = errors.Sentinel(errors.KindUnsupported)
	ErrNotInitialized = errors.Sentinel(errors.KindNotInitialized)
)

// Hasher is the caller surface shared by the Go API and the host module.
type Hasher interface {
	Alloc(ctx context.Context, mode Mode) (Handle, error)
	SetSeed(ctx context.Context, h Handle, seed []byte) error
	Exec(ctx context.Context, h Handle, nonce uint64) (uint64, error)
	Free(ctx context.Context, h Handle) error
}

// Recorder receives per-operation outcomes. err is nil on success.
type Recorder interface {
	ObserveAlloc(mode Mode, err error)
	ObserveSeed(mode Mode, elapsed time.Duration, err error)
	ObserveExec(mode Mode, err error)
	ObserveFree(mode Mode)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAlloc(Mode, error)               {}
func (nopRecorder) ObserveSeed(Mode, time.Duration, error) {}
func (nopRecorder) ObserveExec(Mode, error)                {}
func (nopRecorder) ObserveFree(Mode)                       {}
