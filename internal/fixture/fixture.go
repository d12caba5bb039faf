// Package fixture builds small wasm modules that implement the external
// hashwx module contract, for tests that need a real module without
// shipping a binary.
//
// The fixture hash is ((k ^ nonce) * Multiplier) ^ 1 where k is the XOR of
// the four little-endian words of the seed. Interpreted contexts compute it
// in hashwx_exec; compiled contexts split it across hashwx_exec_begin, the
// side module and hashwx_exec_final, so both modes agree.
package fixture

import (
	"encoding/binary"

	"github.com/wippyai/hashwx/internal/wasmgen"
)

// Multiplier is the odd constant applied by the fixture hash.
const Multiplier uint64 = 0x9e3779b97f4a7c15

// Context layout inside linear memory.
const (
	offType   = 0
	offKey    = 8
	offSeed   = 16
	offReg    = 48
	offMem    = 128
	ctxSize   = 2304
	heapBase  = 4096
	sideAddr  = 1024
	memPages  = 4
	pageBytes = 65536
)

// Options tweaks the generated main module.
type Options struct {
	// MaxContexts bounds live allocations; 0 means as many as fit.
	MaxContexts int
	// Omit lists exports to leave out.
	Omit []string
	// NoCompiled makes hashwx_alloc(1) return -1.
	NoCompiled bool
	// SkipInitialize leaves out _initialize. Without it the heap pointer
	// stays 0 and every alloc fails.
	SkipInitialize bool
}

// Hash computes the fixture hash for seed and nonce.
func Hash(seed []byte, nonce uint64) uint64 {
	var k uint64
	for i := 0; i < 4; i++ {
		k ^= binary.LittleEndian.Uint64(seed[i*8:])
	}
	return ((k ^ nonce) * Multiplier) ^ 1
}

// SideModule returns the side module every compiled context links:
// exec(reg, mem) multiplies reg[0] by Multiplier.
func SideModule() []byte {
	m := &wasmgen.Module{
		Imports: []wasmgen.Import{{
			Module: "env",
			Name:   "memory",
			Kind:   wasmgen.KindMemory,
			Memory: &wasmgen.Limits{Min: 1},
		}},
	}
	mul := Multiplier
	code := wasmgen.NewCode().
		LocalGet(0).
		LocalGet(0).
		I64Load(3, 0).
		I64Const(int64(mul)).
		Op(wasmgen.OpI64Mul).
		I64Store(3, 0).
		End()
	idx := m.AddFunc(wasmgen.FuncType{
		Params: []wasmgen.ValType{wasmgen.ValI32, wasmgen.ValI32},
	}, wasmgen.FuncBody{Code: code.Bytes()})
	m.Exports = append(m.Exports, wasmgen.Export{Name: "exec", Kind: wasmgen.KindFunc, Idx: idx})
	return m.Encode()
}

// MainModule returns the main module bytes.
func MainModule(opts Options) []byte {
	omit := make(map[string]bool, len(opts.Omit))
	for _, name := range opts.Omit {
		omit[name] = true
	}

	limit := int32(memPages * pageBytes)
	if opts.MaxContexts > 0 {
		limit = int32(heapBase + opts.MaxContexts*ctxSize)
	}

	side := SideModule()
	m := &wasmgen.Module{
		Memories: []wasmgen.Limits{{Min: memPages}},
		Globals: []wasmgen.Global{
			{Type: wasmgen.ValI32, Mutable: true, Init: wasmgen.NewCode().I32Const(0).Bytes()},
			{Type: wasmgen.ValI32, Init: wasmgen.NewCode().I32Const(limit).Bytes()},
		},
		Data: []wasmgen.DataSegment{{Offset: sideAddr, Init: side}},
	}
	const gNext, gLimit = 0, 1

	i32, i64 := wasmgen.ValI32, wasmgen.ValI64
	export := func(name string, ft wasmgen.FuncType, code *wasmgen.Code, locals ...wasmgen.LocalEntry) {
		if omit[name] {
			return
		}
		idx := m.AddFunc(ft, wasmgen.FuncBody{Locals: locals, Code: code.Bytes()})
		m.Exports = append(m.Exports, wasmgen.Export{Name: name, Kind: wasmgen.KindFunc, Idx: idx})
	}
	ptrOf := func(off int32) *wasmgen.Code {
		return wasmgen.NewCode().LocalGet(0).I32Const(off).Op(wasmgen.OpI32Add).End()
	}
	unary := wasmgen.FuncType{Params: []wasmgen.ValType{i32}, Results: []wasmgen.ValType{i32}}

	if !omit["memory"] {
		m.Exports = append(m.Exports, wasmgen.Export{Name: "memory", Kind: wasmgen.KindMemory, Idx: 0})
	}

	if !opts.SkipInitialize {
		export("_initialize", wasmgen.FuncType{}, wasmgen.NewCode().
			I32Const(heapBase).GlobalSet(gNext).End())
	}

	// hashwx_alloc(type) -> ctx
	maxType := int32(1)
	if opts.NoCompiled {
		maxType = 0
	}
	alloc := wasmgen.NewCode().
		LocalGet(0).I32Const(maxType).Op(wasmgen.OpI32GtU).
		If().I32Const(-1).Op(wasmgen.OpReturn).End().
		GlobalGet(gNext).Op(wasmgen.OpI32Eqz).
		If().I32Const(0).Op(wasmgen.OpReturn).End().
		GlobalGet(gNext).I32Const(ctxSize).Op(wasmgen.OpI32Add).GlobalGet(gLimit).Op(wasmgen.OpI32GtU).
		If().I32Const(0).Op(wasmgen.OpReturn).End().
		GlobalGet(gNext).LocalTee(1).LocalGet(0).I32Store(2, offType).
		GlobalGet(gNext).I32Const(ctxSize).Op(wasmgen.OpI32Add).GlobalSet(gNext).
		LocalGet(1).
		End()
	export("hashwx_alloc", unary, alloc, wasmgen.LocalEntry{Count: 1, ValType: i32})

	export("hashwx_seed", unary, ptrOf(offSeed))
	export("hashwx_registers", unary, ptrOf(offReg))
	export("hashwx_memory", unary, ptrOf(offMem))
	export("hashwx_module", unary, wasmgen.NewCode().I32Const(sideAddr).End())
	export("hashwx_module_size", unary, wasmgen.NewCode().I32Const(int32(len(side))).End())

	// hashwx_make(ctx, seed): key = xor of the four seed words
	mk := wasmgen.NewCode().
		LocalGet(0).
		LocalGet(1).I64Load(3, 0).
		LocalGet(1).I64Load(3, 8).Op(wasmgen.OpI64Xor).
		LocalGet(1).I64Load(3, 16).Op(wasmgen.OpI64Xor).
		LocalGet(1).I64Load(3, 24).Op(wasmgen.OpI64Xor).
		I64Store(3, offKey).
		End()
	export("hashwx_make", wasmgen.FuncType{Params: []wasmgen.ValType{i32, i32}}, mk)

	mul := Multiplier
	exec := wasmgen.NewCode().
		LocalGet(0).I64Load(3, offKey).
		LocalGet(1).Op(wasmgen.OpI64Xor).
		I64Const(int64(mul)).Op(wasmgen.OpI64Mul).
		I64Const(1).Op(wasmgen.OpI64Xor).
		End()
	export("hashwx_exec", wasmgen.FuncType{
		Params:  []wasmgen.ValType{i32, i64},
		Results: []wasmgen.ValType{i64},
	}, exec)

	begin := wasmgen.NewCode().
		LocalGet(0).
		LocalGet(0).I64Load(3, offKey).
		LocalGet(1).Op(wasmgen.OpI64Xor).
		I64Store(3, offReg).
		End()
	export("hashwx_exec_begin", wasmgen.FuncType{Params: []wasmgen.ValType{i32, i64}}, begin)

	final := wasmgen.NewCode().
		LocalGet(0).I64Load(3, offReg).
		I64Const(1).Op(wasmgen.OpI64Xor).
		End()
	export("hashwx_exec_final", wasmgen.FuncType{
		Params:  []wasmgen.ValType{i32},
		Results: []wasmgen.ValType{i64},
	}, final)

	// hashwx_free(ctx) clears the type word; memory is not reclaimed
	free := wasmgen.NewCode().
		LocalGet(0).I32Const(-1).I32Store(2, offType).
		End()
	export("hashwx_free", wasmgen.FuncType{Params: []wasmgen.ValType{i32}}, free)

	return m.Encode()
}
