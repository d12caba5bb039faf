package wasmgen

import (
	"bytes"
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
)

func TestWriterLEB128(t *testing.T) {
	unsigned := []struct {
		encoded []byte
		value   uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}
	for _, tt := range unsigned {
		w := NewWriter()
		w.WriteU32(tt.value)
		if !bytes.Equal(w.Bytes(), tt.encoded) {
			t.Errorf("WriteU32(%d): got %x, want %x", tt.value, w.Bytes(), tt.encoded)
		}
	}

	signed := []struct {
		encoded []byte
		value   int64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, -1},
		{[]byte{0x3f}, 63},
		{[]byte{0xc0, 0x00}, 64},
		{[]byte{0x40}, -64},
		{[]byte{0x20}, 32},
		{[]byte{0xf8, 0x0f}, 2040},
	}
	for _, tt := range signed {
		w := NewWriter()
		w.WriteS64(tt.value)
		if !bytes.Equal(w.Bytes(), tt.encoded) {
			t.Errorf("WriteS64(%d): got %x, want %x", tt.value, w.Bytes(), tt.encoded)
		}
	}
}

func TestModuleEncodeHeader(t *testing.T) {
	bin := (&Module{}).Encode()
	want := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	if !bytes.Equal(bin, want) {
		t.Fatalf("empty module: got %x, want %x", bin, want)
	}
}

func TestAddTypeDeduplicates(t *testing.T) {
	m := &Module{}
	ft := FuncType{Params: []ValType{ValI32}, Results: []ValType{ValI64}}
	a := m.AddType(ft)
	b := m.AddType(FuncType{Params: []ValType{ValI32}, Results: []ValType{ValI64}})
	c := m.AddType(FuncType{Params: []ValType{ValI64}})
	if a != b {
		t.Errorf("identical signatures got different indices %d, %d", a, b)
	}
	if c == a {
		t.Error("distinct signature reused an index")
	}
	if len(m.Types) != 2 {
		t.Errorf("expected 2 types, got %d", len(m.Types))
	}
}

func TestModuleRunsInWazero(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	m := &Module{
		Memories: []Limits{{Min: 1}},
		Globals:  []Global{{Type: ValI64, Mutable: true, Init: NewCode().I64Const(5).Bytes()}},
		Data:     []DataSegment{{Offset: 16, Init: []byte{1, 0, 0, 0, 0, 0, 0, 0}}},
	}
	// add(x) = x + global0 + load64(16)
	code := NewCode().
		LocalGet(0).
		GlobalGet(0).
		Op(OpI64Add).
		I32Const(16).
		I64Load(3, 0).
		Op(OpI64Add).
		End()
	idx := m.AddFunc(FuncType{
		Params:  []ValType{ValI64},
		Results: []ValType{ValI64},
	}, FuncBody{Code: code.Bytes()})
	m.Exports = append(m.Exports,
		Export{Name: "add", Kind: KindFunc, Idx: idx},
		Export{Name: "memory", Kind: KindMemory, Idx: 0},
	)

	mod, err := rt.Instantiate(ctx, m.Encode())
	if err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	res, err := mod.ExportedFunction("add").Call(ctx, 100)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if res[0] != 106 {
		t.Errorf("add(100) = %d, want 106", res[0])
	}
}

func TestImportedMemory(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	env, err := rt.InstantiateWithConfig(ctx, MemoryModule(1, nil), wazero.NewModuleConfig().WithName("env"))
	if err != nil {
		t.Fatalf("instantiate env: %v", err)
	}

	m := &Module{
		Imports: []Import{{Module: "env", Name: "memory", Kind: KindMemory, Memory: &Limits{Min: 1}}},
	}
	// store(addr, v) writes v at addr
	code := NewCode().
		LocalGet(0).
		LocalGet(1).
		I64Store(3, 8).
		End()
	idx := m.AddFunc(FuncType{Params: []ValType{ValI32, ValI64}}, FuncBody{Code: code.Bytes()})
	m.Exports = append(m.Exports, Export{Name: "store", Kind: KindFunc, Idx: idx})

	side, err := rt.InstantiateWithConfig(ctx, m.Encode(), wazero.NewModuleConfig().WithName(""))
	if err != nil {
		t.Fatalf("instantiate side: %v", err)
	}
	if _, err := side.ExportedFunction("store").Call(ctx, 64, 0xdeadbeef); err != nil {
		t.Fatalf("call: %v", err)
	}
	got, ok := env.Memory().ReadUint64Le(72)
	if !ok || got != 0xdeadbeef {
		t.Errorf("shared memory read = %#x (ok=%v), want 0xdeadbeef", got, ok)
	}
}
