package native

import (
	"context"
	"encoding/binary"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hashwx/engine"
	"github.com/wippyai/hashwx/errors"
	"github.com/wippyai/hashwx/internal/siphash"
	"github.com/wippyai/hashwx/internal/wasmgen"
	"github.com/wippyai/hashwx/resource"
)

// Context slot layout in linear memory.
const (
	SeedOffset     = 0
	RegisterOffset = SeedOffset + engine.SeedSize
	MemoryOffset   = RegisterOffset + RegSize*8
	CodeOffset     = MemoryOffset + MemSize*8
	CodeCapacity   = 16384
	SlotSize       = CodeOffset + CodeCapacity

	// heapBase keeps native handles away from 0.
	heapBase  = 1024
	pageBytes = 65536

	DefaultMaxContexts = 64
)

// Config configures the reference engine.
type Config struct {
	Logger *zap.Logger
	// MaxContexts bounds live contexts; Alloc returns AllocFailed beyond it.
	MaxContexts int
	// SideCacheSize is the compiled side-module cache size; 0 disables it.
	SideCacheSize int
	// MemoryLimitPages caps the wazero runtime; 0 keeps the default.
	MemoryLimitPages uint32
	// InterpretedOnly makes compiled allocations report AllocNotSupported.
	InterpretedOnly bool
}

// Opener acquires a reference engine on Open.
type Opener struct {
	Config Config
}

func (o Opener) Open(ctx context.Context) (engine.Engine, error) {
	return New(ctx, o.Config)
}

type hashContext struct {
	programs *ProgramList
	key      siphash.Key
	mode     engine.Mode
	codeSize uint32
	seeded   bool
}

// Engine is a pure Go hashing engine. Contexts live in a wazero-hosted
// memory so compiled contexts can link their generated side modules
// against it exactly like an external module.
type Engine struct {
	runtime wazero.Runtime
	env     api.Module
	memory  api.Memory
	linker  *engine.Linker
	slots   *resource.LocalBackend[*hashContext]
	logger  *zap.Logger
	cfg     Config
}

var _ engine.Engine = (*Engine)(nil)

// New creates a reference engine.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.MaxContexts <= 0 {
		cfg.MaxContexts = DefaultMaxContexts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = engine.Logger()
	}

	pages := uint32((heapBase + cfg.MaxContexts*SlotSize + pageBytes - 1) / pageBytes)
	rt := engine.NewRuntime(ctx, cfg.MemoryLimitPages)

	env, err := rt.InstantiateWithConfig(ctx, wasmgen.MemoryModule(pages, &pages),
		wazero.NewModuleConfig().WithName(engine.MainModuleName))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, errors.Instantiation(errors.PhaseInit, err)
	}

	linker, err := engine.NewLinker(rt, cfg.SideCacheSize, logger)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	logger.Info("reference engine ready",
		zap.Int("max_contexts", cfg.MaxContexts),
		zap.Uint32("memory_pages", pages))

	return &Engine{
		runtime: rt,
		env:     env,
		memory:  env.Memory(),
		linker:  linker,
		slots:   resource.NewLocalBackend[*hashContext](),
		logger:  logger,
		cfg:     cfg,
	}, nil
}

func slotBase(h resource.Handle) uint32 {
	return heapBase + uint32(h-1)*SlotSize
}

func (e *Engine) lookup(phase errors.Phase, native int32) (*hashContext, uint32, error) {
	off := int64(native) - heapBase
	if off < 0 || off%SlotSize != 0 {
		return nil, 0, errors.InvalidHandle(phase, uint32(native))
	}
	h := resource.Handle(off/SlotSize + 1)
	hc, ok := e.slots.Get(h)
	if !ok {
		return nil, 0, errors.InvalidHandle(phase, uint32(native))
	}
	return hc, uint32(native), nil
}

func (e *Engine) Alloc(_ context.Context, mode engine.Mode) (int32, error) {
	if mode > engine.ModeCompiled || (mode.Compiled() && e.cfg.InterpretedOnly) {
		return engine.AllocNotSupported, nil
	}
	if e.slots.Len() >= e.cfg.MaxContexts {
		return engine.AllocFailed, nil
	}
	h, err := e.slots.Create(&hashContext{mode: mode})
	if err != nil {
		return engine.AllocFailed, nil
	}
	base := slotBase(h)
	// clear whatever a previous occupant left behind
	if !e.memory.Write(base, make([]byte, CodeOffset)) {
		e.slots.Drop(h)
		return engine.AllocFailed, nil
	}
	return int32(base), nil
}

func (e *Engine) SeedLocation(_ context.Context, native int32) (uint32, error) {
	_, base, err := e.lookup(errors.PhaseAlloc, native)
	return base + SeedOffset, err
}

func (e *Engine) RegisterLocation(_ context.Context, native int32) (uint32, error) {
	_, base, err := e.lookup(errors.PhaseAlloc, native)
	return base + RegisterOffset, err
}

func (e *Engine) MemoryLocation(_ context.Context, native int32) (uint32, error) {
	_, base, err := e.lookup(errors.PhaseAlloc, native)
	return base + MemoryOffset, err
}

func (e *Engine) CommitSeed(_ context.Context, native int32) error {
	hc, base, err := e.lookup(errors.PhaseSeed, native)
	if err != nil {
		return err
	}
	seed, ok := e.memory.Read(base+SeedOffset, engine.SeedSize)
	if !ok {
		return errors.OutOfBounds(errors.PhaseSeed, base+SeedOffset, engine.SeedSize)
	}
	pk, ek := Keys(seed)
	hc.programs = Generate(pk)
	hc.key = ek
	hc.seeded = true

	if hc.mode.Compiled() {
		code := Compile(hc.programs)
		if len(code) > CodeCapacity {
			return errors.New(errors.PhaseSeed, errors.KindAllocation).
				Value(len(code)).
				Detail("generated code exceeds %d bytes", CodeCapacity).
				Build()
		}
		if !e.memory.Write(base+CodeOffset, code) {
			return errors.OutOfBounds(errors.PhaseSeed, base+CodeOffset, uint32(len(code)))
		}
		hc.codeSize = uint32(len(code))
	}
	return nil
}

func (e *Engine) seeded(phase errors.Phase, native int32) (*hashContext, uint32, error) {
	hc, base, err := e.lookup(phase, native)
	if err != nil {
		return nil, 0, err
	}
	if !hc.seeded {
		return nil, 0, errors.NotInitialized(phase, "context seed")
	}
	return hc, base, nil
}

func (e *Engine) Exec(_ context.Context, native int32, nonce uint64) (uint64, error) {
	hc, _, err := e.seeded(errors.PhaseExec, native)
	if err != nil {
		return 0, err
	}
	r := InitRegisters(hc.key, nonce)
	hc.programs.Execute(&r)
	return Finalize(&r), nil
}

func (e *Engine) ExecBegin(_ context.Context, native int32, nonce uint64) error {
	hc, base, err := e.seeded(errors.PhaseExec, native)
	if err != nil {
		return err
	}
	r := InitRegisters(hc.key, nonce)
	var buf [RegSize * 8]byte
	for i, v := range r {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	if !e.memory.Write(base+RegisterOffset, buf[:]) {
		return errors.OutOfBounds(errors.PhaseExec, base+RegisterOffset, RegSize*8)
	}
	return nil
}

func (e *Engine) ExecFinal(_ context.Context, native int32) (uint64, error) {
	_, base, err := e.seeded(errors.PhaseExec, native)
	if err != nil {
		return 0, err
	}
	buf, ok := e.memory.Read(base+RegisterOffset, RegSize*8)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseExec, base+RegisterOffset, RegSize*8)
	}
	var r [RegSize]uint64
	for i := range r {
		r[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return Finalize(&r), nil
}

func (e *Engine) CodeLocation(_ context.Context, native int32) (uint32, error) {
	_, base, err := e.lookup(errors.PhaseSeed, native)
	return base + CodeOffset, err
}

func (e *Engine) CodeSize(_ context.Context, native int32) (uint32, error) {
	hc, _, err := e.lookup(errors.PhaseSeed, native)
	if err != nil {
		return 0, err
	}
	return hc.codeSize, nil
}

func (e *Engine) Free(_ context.Context, native int32) error {
	_, _, err := e.lookup(errors.PhaseFree, native)
	if err != nil {
		return err
	}
	h := resource.Handle((int64(native)-heapBase)/SlotSize + 1)
	e.slots.Drop(h)
	return nil
}

func (e *Engine) Memory() api.Memory {
	return e.memory
}

func (e *Engine) Link(ctx context.Context, code []byte) (engine.Submodule, error) {
	return e.linker.Link(ctx, code)
}

// LinkerStats returns side-module cache counters.
func (e *Engine) LinkerStats() engine.LinkerStats {
	return e.linker.Stats()
}

// Live returns the number of allocated contexts.
func (e *Engine) Live() int {
	return e.slots.Len()
}

func (e *Engine) Close(ctx context.Context) error {
	e.linker.Close()
	_ = e.slots.Close()
	return e.runtime.Close(ctx)
}
