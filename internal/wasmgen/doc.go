// Package wasmgen encodes small core WebAssembly modules.
//
// It covers what generated hash programs and test fixtures need: function
// types, a single memory (defined or imported), globals, exports, function
// bodies and active data segments. Function bodies are built with Code:
//
//	code := wasmgen.NewCode().
//		LocalGet(0).
//		I64Const(1).
//		Op(wasmgen.OpI64Add).
//		End()
//
//	m := &wasmgen.Module{}
//	idx := m.AddFunc(wasmgen.FuncType{
//		Params:  []wasmgen.ValType{wasmgen.ValI64},
//		Results: []wasmgen.ValType{wasmgen.ValI64},
//	}, wasmgen.FuncBody{Code: code.Bytes()})
//	m.Exports = append(m.Exports, wasmgen.Export{Name: "inc", Kind: wasmgen.KindFunc, Idx: idx})
//	bin := m.Encode()
package wasmgen
