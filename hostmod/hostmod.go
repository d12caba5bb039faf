// Package hostmod exports a hashwx.Hasher to wasm guests as the host
// module "hashwx".
//
// Guests import:
//
//	hashwx_alloc(mode i32) -> i32            handle, 0 when exhausted, -1 when unsupported
//	hashwx_make(handle i32, seed_ptr i32)    reads 32 bytes of guest memory
//	hashwx_exec(handle i32, nonce i64) -> i64
//	hashwx_free(handle i32)
//
// Any other failure traps the guest. The error is returned from the guest
// call that reached the host function and matches the hashwx sentinels.
package hostmod

import (
	"context"
	stderrors "errors"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hashwx"
	"github.com/wippyai/hashwx/engine"
	"github.com/wippyai/hashwx/errors"
)

// ModuleName is the import module name guests use.
const ModuleName = "hashwx"

const (
	FuncAlloc = "hashwx_alloc"
	FuncMake  = "hashwx_make"
	FuncExec  = "hashwx_exec"
	FuncFree  = "hashwx_free"
)

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

type host struct {
	hasher hashwx.Hasher
	logger *zap.Logger
}

// Instantiate registers the host module in rt. Guests that import it must
// be instantiated afterwards.
func Instantiate(ctx context.Context, rt wazero.Runtime, h hashwx.Hasher, logger *zap.Logger) (api.Module, error) {
	if logger == nil {
		logger = hashwx.Logger()
	}
	hm := &host{hasher: h, logger: logger.Named("hostmod")}

	builder := rt.NewHostModuleBuilder(ModuleName)
	funcs := []struct {
		name    string
		fn      api.GoModuleFunc
		params  []api.ValueType
		results []api.ValueType
	}{
		{FuncAlloc, hm.alloc, []api.ValueType{i32}, []api.ValueType{i32}},
		{FuncMake, hm.makeSeed, []api.ValueType{i32, i32}, nil},
		{FuncExec, hm.exec, []api.ValueType{i32, i64}, []api.ValueType{i64}},
		{FuncFree, hm.free, []api.ValueType{i32}, nil},
	}
	for _, f := range funcs {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.params, f.results).
			Export(f.name)
	}

	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Instantiation(errors.PhaseHost, err)
	}
	return mod, nil
}

// trap aborts the guest call with err.
func (h *host) trap(fn string, err error) {
	h.logger.Debug("guest call trapped", zap.String("func", fn), zap.Error(err))
	panic(err)
}

func (h *host) alloc(ctx context.Context, _ api.Module, stack []uint64) {
	mode := hashwx.Mode(api.DecodeU32(stack[0]))
	handle, err := h.hasher.Alloc(ctx, mode)
	switch {
	case err == nil:
		stack[0] = api.EncodeI32(int32(handle))
	case stderrors.Is(err, hashwx.ErrExhausted):
		stack[0] = api.EncodeI32(engine.AllocFailed)
	case stderrors.Is(err, hashwx.ErrUnsupported):
		stack[0] = api.EncodeI32(engine.AllocNotSupported)
	default:
		h.trap(FuncAlloc, err)
	}
}

func (h *host) makeSeed(ctx context.Context, mod api.Module, stack []uint64) {
	handle := hashwx.Handle(api.DecodeU32(stack[0]))
	ptr := api.DecodeU32(stack[1])

	mem := mod.Memory()
	if mem == nil {
		h.trap(FuncMake, errors.NotFound(errors.PhaseHost, "export", "memory"))
	}
	seed, err := hashwx.WrapMemory(mem, errors.PhaseHost).Read(ptr, hashwx.SeedSize)
	if err != nil {
		h.trap(FuncMake, err)
	}
	if err := h.hasher.SetSeed(ctx, handle, seed); err != nil {
		h.trap(FuncMake, err)
	}
}

func (h *host) exec(ctx context.Context, _ api.Module, stack []uint64) {
	handle := hashwx.Handle(api.DecodeU32(stack[0]))
	v, err := h.hasher.Exec(ctx, handle, stack[1])
	if err != nil {
		h.trap(FuncExec, err)
	}
	stack[0] = v
}

func (h *host) free(ctx context.Context, _ api.Module, stack []uint64) {
	if err := h.hasher.Free(ctx, hashwx.Handle(api.DecodeU32(stack[0]))); err != nil {
		h.trap(FuncFree, err)
	}
}
