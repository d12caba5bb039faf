package hashwx

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/hashwx/engine"
	"github.com/wippyai/hashwx/errors"
	"github.com/wippyai/hashwx/native"
	"github.com/wippyai/hashwx/resource"
)

// Config configures a Manager.
type Config struct {
	// Opener acquires the engine on the first Alloc. Nil selects the
	// reference engine with default settings.
	Opener engine.Opener
	Logger *zap.Logger
	// Recorder receives operation outcomes; nil disables recording.
	Recorder Recorder
	// Observers are subscribed to the handle table.
	Observers []resource.Observer
}

// entry is one live context.
type entry struct {
	sub    engine.Submodule
	native int32
	seed   uint32
	reg    uint32
	mem    uint32
	mode   Mode
}

// Manager owns a handle table over one engine. Every method is serialized
// by a single mutex; the engine is acquired once, on the first Alloc, and
// an acquisition failure is returned by every later Alloc.
type Manager struct {
	mu       sync.Mutex
	opener   engine.Opener
	engine   engine.Engine
	memory   Memory
	initErr  error
	opened   bool
	closed   bool
	table    *resource.Table[*entry]
	logger   *zap.Logger
	recorder Recorder
}

var _ Hasher = (*Manager)(nil)

// NewManager creates a manager. No engine is acquired until Alloc.
func NewManager(cfg Config) *Manager {
	opener := cfg.Opener
	if opener == nil {
		opener = native.Opener{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = Logger()
	}
	recorder := cfg.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	table := resource.NewTable[*entry]()
	for _, o := range cfg.Observers {
		table.Subscribe(o)
	}
	return &Manager{
		opener:   opener,
		table:    table,
		logger:   logger,
		recorder: recorder,
	}
}

// open acquires the engine exactly once. Callers hold m.mu.
func (m *Manager) open(ctx context.Context) error {
	if m.closed {
		return errClosed(errors.PhaseInit)
	}
	if m.opened {
		return m.initErr
	}
	m.opened = true

	start := time.Now()
	eng, err := m.opener.Open(ctx)
	if err != nil {
		m.initErr = errors.New(errors.PhaseInit, errors.KindNotInitialized).
			Cause(err).
			Detail("engine acquisition failed").
			Build()
		m.logger.Error("engine acquisition failed", zap.Error(err))
		return m.initErr
	}
	m.engine = eng
	m.memory = WrapMemory(eng.Memory(), errors.PhaseSeed)
	m.logger.Info("engine acquired", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// Alloc creates a context in mode and returns its handle, the lowest free
// slot. An engine that refuses the context consumes no slot.
func (m *Manager) Alloc(ctx context.Context, mode Mode) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h, err := m.alloc(ctx, mode)
	m.recorder.ObserveAlloc(mode, err)
	return h, err
}

func (m *Manager) alloc(ctx context.Context, mode Mode) (Handle, error) {
	if err := m.open(ctx); err != nil {
		return 0, err
	}

	id, err := m.engine.Alloc(ctx, mode)
	if err != nil {
		return 0, err
	}
	switch {
	case id == engine.AllocFailed:
		return 0, errors.AllocationFailed(errors.PhaseAlloc, "engine has no free contexts")
	case id < 0:
		return 0, errors.New(errors.PhaseAlloc, errors.KindUnsupported).
			Value(id).
			Detail("engine does not support %s contexts", mode).
			Build()
	}

	e := &entry{native: id, mode: mode}
	if err := m.locate(ctx, e); err != nil {
		_ = m.release(ctx, e)
		return 0, err
	}

	h := m.table.Insert(e)
	if h == 0 {
		_ = m.release(ctx, e)
		return 0, errors.NotInitialized(errors.PhaseAlloc, "handle table")
	}
	m.logger.Debug("context allocated",
		zap.Uint32("handle", uint32(h)),
		zap.Int32("native", id),
		zap.Stringer("mode", mode))
	return h, nil
}

func (m *Manager) locate(ctx context.Context, e *entry) error {
	var err error
	if e.seed, err = m.engine.SeedLocation(ctx, e.native); err != nil {
		return err
	}
	if e.reg, err = m.engine.RegisterLocation(ctx, e.native); err != nil {
		return err
	}
	e.mem, err = m.engine.MemoryLocation(ctx, e.native)
	return err
}

// release frees the native context and closes its submodule. Failures are
// logged; the entry is gone either way.
func (m *Manager) release(ctx context.Context, e *entry) error {
	err := m.engine.Free(ctx, e.native)
	if err != nil {
		m.logger.Warn("engine free failed", zap.Int32("native", e.native), zap.Error(err))
	}
	if e.sub != nil {
		if cerr := e.sub.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
		e.sub = nil
	}
	return err
}

func errClosed(phase errors.Phase) error {
	return errors.New(phase, errors.KindNotInitialized).Detail("manager is closed").Build()
}

func (m *Manager) lookup(phase errors.Phase, h Handle) (*entry, error) {
	if m.closed {
		return nil, errClosed(phase)
	}
	e, ok := m.table.Get(h)
	if !ok {
		return nil, errors.InvalidHandle(phase, uint32(h))
	}
	return e, nil
}

// SetSeed seeds h. A compiled context links the generated code and replaces
// its previous submodule. The seed length is checked before the engine is
// touched.
func (m *Manager) SetSeed(ctx context.Context, h Handle, seed []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.lookup(errors.PhaseSeed, h)
	if err != nil {
		return err
	}
	if len(seed) != SeedSize {
		return errors.New(errors.PhaseSeed, errors.KindInvalidInput).
			Value(len(seed)).
			Detail("seed must be %d bytes, got %d", SeedSize, len(seed)).
			Build()
	}

	start := time.Now()
	err = m.seed(ctx, e, seed)
	m.recorder.ObserveSeed(e.mode, time.Since(start), err)
	return err
}

func (m *Manager) seed(ctx context.Context, e *entry, seed []byte) error {
	if err := m.memory.Write(e.seed, seed); err != nil {
		return err
	}
	if err := m.engine.CommitSeed(ctx, e.native); err != nil {
		return err
	}
	if !e.mode.Compiled() {
		return nil
	}

	// the old code no longer matches the committed seed
	if e.sub != nil {
		if err := e.sub.Close(ctx); err != nil {
			m.logger.Warn("close submodule", zap.Int32("native", e.native), zap.Error(err))
		}
		e.sub = nil
	}

	loc, err := m.engine.CodeLocation(ctx, e.native)
	if err != nil {
		return err
	}
	size, err := m.engine.CodeSize(ctx, e.native)
	if err != nil {
		return err
	}
	code, err := m.memory.Read(loc, size)
	if err != nil {
		return err
	}
	sub, err := m.engine.Link(ctx, code)
	if err != nil {
		return err
	}
	e.sub = sub
	m.logger.Debug("context seeded", zap.Int32("native", e.native), zap.Uint32("code_size", size))
	return nil
}

// Exec evaluates the hash of nonce under h's seed.
func (m *Manager) Exec(ctx context.Context, h Handle, nonce uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, err := m.lookup(errors.PhaseExec, h)
	if err != nil {
		return 0, err
	}
	v, err := m.exec(ctx, e, nonce)
	m.recorder.ObserveExec(e.mode, err)
	return v, err
}

func (m *Manager) exec(ctx context.Context, e *entry, nonce uint64) (uint64, error) {
	if !e.mode.Compiled() {
		return m.engine.Exec(ctx, e.native, nonce)
	}
	if e.sub == nil {
		return 0, errors.New(errors.PhaseExec, errors.KindNotInitialized).
			Detail("compiled context has not been seeded").
			Build()
	}
	if err := m.engine.ExecBegin(ctx, e.native, nonce); err != nil {
		return 0, err
	}
	if err := e.sub.Exec(ctx, e.reg, e.mem); err != nil {
		return 0, err
	}
	return m.engine.ExecFinal(ctx, e.native)
}

// Free releases h. Freeing an absent handle is a no-op.
func (m *Manager) Free(ctx context.Context, h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	e, ok := m.table.Get(h)
	if !ok {
		return nil
	}
	err := m.release(ctx, e)
	m.table.Remove(h)
	m.recorder.ObserveFree(e.mode)
	m.logger.Debug("context freed", zap.Uint32("handle", uint32(h)))
	return err
}

// Mode returns the mode h was allocated with.
func (m *Manager) Mode(h Handle) (Mode, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.table.Get(h)
	if !ok {
		return 0, false
	}
	return e.mode, true
}

// Len returns the number of live contexts.
func (m *Manager) Len() int {
	return m.table.Len()
}

// Close frees every live context and closes the engine. Every later call
// fails with ErrNotInitialized, except Free which stays a no-op.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	var firstErr error
	if m.engine != nil {
		for _, h := range m.table.Handles() {
			e, _ := m.table.Remove(h)
			if err := m.release(ctx, e); err != nil && firstErr == nil {
				firstErr = err
			}
			m.recorder.ObserveFree(e.mode)
		}
		if err := m.engine.Close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close engine: %w", err)
		}
		m.engine = nil
	}
	_ = m.table.Close()
	return firstErr
}
