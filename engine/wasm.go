package engine

import (
	"context"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hashwx/errors"
)

// Exports the external module must provide.
const (
	ExportMemory     = "memory"
	ExportAlloc      = "hashwx_alloc"
	ExportMake       = "hashwx_make"
	ExportExec       = "hashwx_exec"
	ExportFree       = "hashwx_free"
	ExportSeed       = "hashwx_seed"
	ExportRegisters  = "hashwx_registers"
	ExportMemoryBuf  = "hashwx_memory"
	ExportModule     = "hashwx_module"
	ExportModuleSize = "hashwx_module_size"
	ExportExecBegin  = "hashwx_exec_begin"
	ExportExecFinal  = "hashwx_exec_final"
	ExportInitialize = "_initialize"
)

// MainModuleName is the name the engine module is instantiated under.
// Side modules import their memory from it.
const MainModuleName = "env"

var requiredFuncs = []string{
	ExportAlloc, ExportMake, ExportExec, ExportFree,
	ExportSeed, ExportRegisters, ExportMemoryBuf,
	ExportModule, ExportModuleSize, ExportExecBegin, ExportExecFinal,
}

type signature struct {
	params, results []api.ValueType
}

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

var signatures = map[string]signature{
	ExportAlloc:      {[]api.ValueType{i32}, []api.ValueType{i32}},
	ExportMake:       {[]api.ValueType{i32, i32}, nil},
	ExportExec:       {[]api.ValueType{i32, i64}, []api.ValueType{i64}},
	ExportFree:       {[]api.ValueType{i32}, nil},
	ExportSeed:       {[]api.ValueType{i32}, []api.ValueType{i32}},
	ExportRegisters:  {[]api.ValueType{i32}, []api.ValueType{i32}},
	ExportMemoryBuf:  {[]api.ValueType{i32}, []api.ValueType{i32}},
	ExportModule:     {[]api.ValueType{i32}, []api.ValueType{i32}},
	ExportModuleSize: {[]api.ValueType{i32}, []api.ValueType{i32}},
	ExportExecBegin:  {[]api.ValueType{i32, i64}, nil},
	ExportExecFinal:  {[]api.ValueType{i32}, []api.ValueType{i64}},
}

// WasmConfig configures an engine backed by an external wasm module.
type WasmConfig struct {
	Loader           Loader
	Logger           *zap.Logger
	Location         string
	MemoryLimitPages uint32
	SideCacheSize    int
}

// WasmOpener acquires a WasmEngine on Open.
type WasmOpener struct {
	Config WasmConfig
}

func (o WasmOpener) Open(ctx context.Context) (Engine, error) {
	return OpenWasm(ctx, o.Config)
}

// WasmEngine drives an external hashwx module through wazero.
type WasmEngine struct {
	runtime wazero.Runtime
	module  api.Module
	memory  api.Memory
	linker  *Linker
	logger  *zap.Logger
	fns     map[string]api.Function
}

// OpenWasm loads, validates and instantiates the module at cfg.Location.
func OpenWasm(ctx context.Context, cfg WasmConfig) (*WasmEngine, error) {
	logger := loggerOr(cfg.Logger)
	loader := cfg.Loader
	if loader == nil {
		loader = SharedLoader()
	}

	bin, err := loader.Load(ctx, cfg.Location)
	if err != nil {
		return nil, err
	}

	rt := NewRuntime(ctx, cfg.MemoryLimitPages)
	e, err := newWasmEngine(ctx, rt, bin, cfg.SideCacheSize, logger)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	logger.Info("hashwx module ready",
		zap.String("location", cfg.Location),
		zap.Int("bytes", len(bin)),
		zap.Uint32("memory_pages", e.memory.Size()/65536))
	return e, nil
}

func newWasmEngine(ctx context.Context, rt wazero.Runtime, bin []byte, sideCache int, logger *zap.Logger) (*WasmEngine, error) {
	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindInvalidData, err, "compile hashwx module")
	}

	if missing := missingExports(compiled); len(missing) > 0 {
		return nil, errors.MissingExports(errors.PhaseInit, missing)
	}
	if wrong := mismatchedSignatures(compiled); len(wrong) > 0 {
		return nil, errors.New(errors.PhaseInit, errors.KindInvalidData).
			Names(wrong...).
			Detail("exports have unexpected signatures").
			Build()
	}

	mod, err := rt.InstantiateModule(ctx, compiled,
		wazero.NewModuleConfig().WithName(MainModuleName).WithStartFunctions())
	if err != nil {
		return nil, errors.Instantiation(errors.PhaseInit, err)
	}

	if init := mod.ExportedFunction(ExportInitialize); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = mod.Close(ctx)
			return nil, errors.Trap(errors.PhaseInit, ExportInitialize, err)
		}
	}

	linker, err := NewLinker(rt, sideCache, logger)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}

	e := &WasmEngine{
		runtime: rt,
		module:  mod,
		memory:  mod.Memory(),
		linker:  linker,
		logger:  logger,
		fns:     make(map[string]api.Function, len(requiredFuncs)),
	}
	for _, name := range requiredFuncs {
		e.fns[name] = mod.ExportedFunction(name)
	}
	return e, nil
}

func missingExports(compiled wazero.CompiledModule) []string {
	funcs := compiled.ExportedFunctions()
	var missing []string
	for _, name := range requiredFuncs {
		if _, ok := funcs[name]; !ok {
			missing = append(missing, name)
		}
	}
	if _, ok := compiled.ExportedMemories()[ExportMemory]; !ok {
		missing = append(missing, ExportMemory)
	}
	sort.Strings(missing)
	return missing
}

func mismatchedSignatures(compiled wazero.CompiledModule) []string {
	funcs := compiled.ExportedFunctions()
	var wrong []string
	for name, want := range signatures {
		def := funcs[name]
		if !sameTypes(def.ParamTypes(), want.params) || !sameTypes(def.ResultTypes(), want.results) {
			wrong = append(wrong, name)
		}
	}
	sort.Strings(wrong)
	return wrong
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (e *WasmEngine) call(ctx context.Context, phase errors.Phase, name string, params ...uint64) ([]uint64, error) {
	res, err := e.fns[name].Call(ctx, params...)
	if err != nil {
		return nil, errors.Trap(phase, name, err)
	}
	return res, nil
}

func (e *WasmEngine) call32(ctx context.Context, phase errors.Phase, name string, native int32) (uint32, error) {
	res, err := e.call(ctx, phase, name, api.EncodeI32(native))
	if err != nil {
		return 0, err
	}
	return api.DecodeU32(res[0]), nil
}

func (e *WasmEngine) Alloc(ctx context.Context, mode Mode) (int32, error) {
	res, err := e.call(ctx, errors.PhaseAlloc, ExportAlloc, api.EncodeU32(uint32(mode)))
	if err != nil {
		return 0, err
	}
	return api.DecodeI32(res[0]), nil
}

func (e *WasmEngine) SeedLocation(ctx context.Context, native int32) (uint32, error) {
	return e.call32(ctx, errors.PhaseAlloc, ExportSeed, native)
}

func (e *WasmEngine) RegisterLocation(ctx context.Context, native int32) (uint32, error) {
	return e.call32(ctx, errors.PhaseAlloc, ExportRegisters, native)
}

func (e *WasmEngine) MemoryLocation(ctx context.Context, native int32) (uint32, error) {
	return e.call32(ctx, errors.PhaseAlloc, ExportMemoryBuf, native)
}

func (e *WasmEngine) CommitSeed(ctx context.Context, native int32) error {
	seed, err := e.SeedLocation(ctx, native)
	if err != nil {
		return err
	}
	_, err = e.call(ctx, errors.PhaseSeed, ExportMake, api.EncodeI32(native), api.EncodeU32(seed))
	return err
}

func (e *WasmEngine) Exec(ctx context.Context, native int32, nonce uint64) (uint64, error) {
	res, err := e.call(ctx, errors.PhaseExec, ExportExec, api.EncodeI32(native), nonce)
	if err != nil {
		return 0, err
	}
	return res[0], nil
}

func (e *WasmEngine) ExecBegin(ctx context.Context, native int32, nonce uint64) error {
	_, err := e.call(ctx, errors.PhaseExec, ExportExecBegin, api.EncodeI32(native), nonce)
	return err
}

func (e *WasmEngine) ExecFinal(ctx context.Context, native int32) (uint64, error) {
	res, err := e.call(ctx, errors.PhaseExec, ExportExecFinal, api.EncodeI32(native))
	if err != nil {
		return 0, err
	}
	return res[0], nil
}

func (e *WasmEngine) CodeLocation(ctx context.Context, native int32) (uint32, error) {
	return e.call32(ctx, errors.PhaseSeed, ExportModule, native)
}

func (e *WasmEngine) CodeSize(ctx context.Context, native int32) (uint32, error) {
	return e.call32(ctx, errors.PhaseSeed, ExportModuleSize, native)
}

func (e *WasmEngine) Free(ctx context.Context, native int32) error {
	_, err := e.call(ctx, errors.PhaseFree, ExportFree, api.EncodeI32(native))
	return err
}

func (e *WasmEngine) Memory() api.Memory {
	return e.memory
}

func (e *WasmEngine) Link(ctx context.Context, code []byte) (Submodule, error) {
	return e.linker.Link(ctx, code)
}

// LinkerStats returns side-module cache counters.
func (e *WasmEngine) LinkerStats() LinkerStats {
	return e.linker.Stats()
}

func (e *WasmEngine) Close(ctx context.Context) error {
	e.linker.Close()
	return e.runtime.Close(ctx)
}
