package hostmod

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/hashwx"
	"github.com/wippyai/hashwx/errors"
	"github.com/wippyai/hashwx/internal/wasmgen"
	"github.com/wippyai/hashwx/native"
)

const seedAddr = 64

// guestModule imports the host functions and exports:
//
//	run(mode i32, nonce i64) -> i64   alloc, make(seedAddr), exec, free
//	alloc(mode i32) -> i32
//	make(h i32, ptr i32)
//	exec(h i32, nonce i64) -> i64
func guestModule(seed []byte) []byte {
	m := &wasmgen.Module{}
	imports := []struct {
		name string
		ft   wasmgen.FuncType
	}{
		{FuncAlloc, wasmgen.FuncType{Params: []wasmgen.ValType{wasmgen.ValI32}, Results: []wasmgen.ValType{wasmgen.ValI32}}},
		{FuncMake, wasmgen.FuncType{Params: []wasmgen.ValType{wasmgen.ValI32, wasmgen.ValI32}}},
		{FuncExec, wasmgen.FuncType{Params: []wasmgen.ValType{wasmgen.ValI32, wasmgen.ValI64}, Results: []wasmgen.ValType{wasmgen.ValI64}}},
		{FuncFree, wasmgen.FuncType{Params: []wasmgen.ValType{wasmgen.ValI32}}},
	}
	for _, imp := range imports {
		m.Imports = append(m.Imports, wasmgen.Import{
			Module:  ModuleName,
			Name:    imp.name,
			Kind:    wasmgen.KindFunc,
			TypeIdx: m.AddType(imp.ft),
		})
	}
	const (
		callAlloc = iota
		callMake
		callExec
		callFree
	)

	m.Memories = []wasmgen.Limits{{Min: 1}}
	m.Data = []wasmgen.DataSegment{{Offset: seedAddr, Init: seed}}

	run := wasmgen.NewCode().
		LocalGet(0).Call(callAlloc).LocalSet(2).
		LocalGet(2).I32Const(seedAddr).Call(callMake).
		LocalGet(2).LocalGet(1).Call(callExec).
		LocalGet(2).Call(callFree).
		End()
	runIdx := m.AddFunc(wasmgen.FuncType{
		Params:  []wasmgen.ValType{wasmgen.ValI32, wasmgen.ValI64},
		Results: []wasmgen.ValType{wasmgen.ValI64},
	}, wasmgen.FuncBody{
		Locals: []wasmgen.LocalEntry{{Count: 1, ValType: wasmgen.ValI32}},
		Code:   run.Bytes(),
	})

	allocIdx := m.AddFunc(imports[callAlloc].ft, wasmgen.FuncBody{
		Code: wasmgen.NewCode().LocalGet(0).Call(callAlloc).End().Bytes(),
	})
	makeIdx := m.AddFunc(imports[callMake].ft, wasmgen.FuncBody{
		Code: wasmgen.NewCode().LocalGet(0).LocalGet(1).Call(callMake).End().Bytes(),
	})
	execIdx := m.AddFunc(imports[callExec].ft, wasmgen.FuncBody{
		Code: wasmgen.NewCode().LocalGet(0).LocalGet(1).Call(callExec).End().Bytes(),
	})

	m.Exports = []wasmgen.Export{
		{Name: "memory", Kind: wasmgen.KindMemory, Idx: 0},
		{Name: "run", Kind: wasmgen.KindFunc, Idx: runIdx},
		{Name: "alloc", Kind: wasmgen.KindFunc, Idx: allocIdx},
		{Name: "make", Kind: wasmgen.KindFunc, Idx: makeIdx},
		{Name: "exec", Kind: wasmgen.KindFunc, Idx: execIdx},
	}
	return m.Encode()
}

func setup(t *testing.T, cfg native.Config, seed []byte) api.Module {
	t.Helper()
	ctx := context.Background()

	m := hashwx.NewManager(hashwx.Config{Opener: native.Opener{Config: cfg}})
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() {
		_ = rt.Close(ctx)
		_ = m.Close(ctx)
	})

	if _, err := Instantiate(ctx, rt, m, nil); err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	guest, err := rt.InstantiateWithConfig(ctx, guestModule(seed), wazero.NewModuleConfig().WithName("guest"))
	if err != nil {
		t.Fatalf("instantiate guest: %v", err)
	}
	return guest
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	seed := []byte("host-module-round-trip-seed-0001")
	guest := setup(t, native.Config{}, seed)

	for _, mode := range []hashwx.Mode{hashwx.ModeInterpreted, hashwx.ModeCompiled} {
		for _, nonce := range []uint64{0, 123456789} {
			res, err := guest.ExportedFunction("run").Call(ctx, api.EncodeU32(uint32(mode)), nonce)
			if err != nil {
				t.Fatalf("%s run(%d): %v", mode, nonce, err)
			}
			if want := native.Hash(seed, nonce); res[0] != want {
				t.Errorf("%s nonce %d: got %#x, want %#x", mode, nonce, res[0], want)
			}
		}
	}
}

func TestAllocSentinels(t *testing.T) {
	ctx := context.Background()
	guest := setup(t, native.Config{MaxContexts: 1, InterpretedOnly: true}, make([]byte, hashwx.SeedSize))
	alloc := guest.ExportedFunction("alloc")

	tests := []struct {
		name string
		mode hashwx.Mode
		want int32
	}{
		{"first", hashwx.ModeInterpreted, 1},
		{"exhausted", hashwx.ModeInterpreted, 0},
		{"unsupported", hashwx.ModeCompiled, -1},
	}
	for _, tt := range tests {
		res, err := alloc.Call(ctx, api.EncodeU32(uint32(tt.mode)))
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if got := api.DecodeI32(res[0]); got != tt.want {
			t.Errorf("%s: alloc = %d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestTraps(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		call func(guest api.Module) error
		want error
	}{
		{
			name: "exec unknown handle",
			call: func(guest api.Module) error {
				_, err := guest.ExportedFunction("exec").Call(ctx, api.EncodeU32(9), 1)
				return err
			},
			want: hashwx.ErrInvalidHandle,
		},
		{
			name: "make unknown handle",
			call: func(guest api.Module) error {
				_, err := guest.ExportedFunction("make").Call(ctx, api.EncodeU32(9), api.EncodeU32(seedAddr))
				return err
			},
			want: hashwx.ErrInvalidHandle,
		},
		{
			name: "seed outside memory",
			call: func(guest api.Module) error {
				if _, err := guest.ExportedFunction("alloc").Call(ctx, 0); err != nil {
					return err
				}
				_, err := guest.ExportedFunction("make").Call(ctx, api.EncodeU32(1), api.EncodeU32(65536-16))
				return err
			},
			want: errors.Sentinel(errors.KindOutOfBounds),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			guest := setup(t, native.Config{}, make([]byte, hashwx.SeedSize))
			err := tt.call(guest)
			if err == nil {
				t.Fatal("guest call succeeded")
			}
			if !stderrors.Is(err, tt.want) {
				t.Fatalf("error %v does not match %v", err, tt.want)
			}
		})
	}
}
