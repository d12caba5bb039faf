package native

import (
	"github.com/wippyai/hashwx/internal/wasmgen"
)

// Locals of the generated exec function.
const (
	parRP = 0  // register file pointer
	parMP = 1  // scratch memory pointer
	locR0 = 2  // r0..r9 occupy locals 2..11
	locBC = 12 // branch count, counts up to branchBudget
	locBF = 13 // branch flag, last RMCG result
	locMM = 14 // scratch index mask
)

const scratchBytes = MemSize * 8

var preOp = map[Opcode]byte{
	OpMulOr:  wasmgen.OpI64Or,
	OpMulXor: wasmgen.OpI64Xor,
	OpMulAdd: wasmgen.OpI64Add,
	OpXorRor: wasmgen.OpI64Rotr,
	OpAddRor: wasmgen.OpI64Rotr,
	OpSubRor: wasmgen.OpI64Rotr,
	OpXorAsr: wasmgen.OpI64ShrS,
	OpAddAsr: wasmgen.OpI64ShrS,
	OpSubAsr: wasmgen.OpI64ShrS,
	OpXorLsr: wasmgen.OpI64ShrU,
	OpAddLsr: wasmgen.OpI64ShrU,
	OpSubLsr: wasmgen.OpI64ShrU,
}

var postOp = map[Opcode]byte{
	OpMulOr:  wasmgen.OpI64Mul,
	OpMulXor: wasmgen.OpI64Mul,
	OpMulAdd: wasmgen.OpI64Mul,
	OpXorRor: wasmgen.OpI64Xor,
	OpAddRor: wasmgen.OpI64Add,
	OpSubRor: wasmgen.OpI64Sub,
	OpXorAsr: wasmgen.OpI64Xor,
	OpAddAsr: wasmgen.OpI64Add,
	OpSubAsr: wasmgen.OpI64Sub,
	OpXorLsr: wasmgen.OpI64Xor,
	OpAddLsr: wasmgen.OpI64Add,
	OpSubLsr: wasmgen.OpI64Sub,
}

// Compile translates a program list into a side module importing
// env.memory and exporting exec(rp, mp). exec loads r0..r9 from rp, runs
// both phases using mp as the scratch area and stores r0..r7 back.
//
// The result matches ProgramList.Execute for programs whose HALT is the
// last slot, which Generate guarantees.
func Compile(l *ProgramList) []byte {
	c := wasmgen.NewCode()

	for i := uint32(0); i < RegSize; i++ {
		c.LocalGet(parRP).I64Load(3, 8*i).LocalSet(locR0+i)
	}
	c.I64Const(0).LocalSet(locBC)
	c.I64Const(scratchBytes - 8).LocalSet(locMM)
	c.I32Const(scratchBytes).LocalGet(parMP).Op(wasmgen.OpI32Add).LocalSet(parMP)

	// register phase: each program spills r0..r7 below the previous one
	for i := range l {
		c.LocalGet(parMP).I32Const(64).Op(wasmgen.OpI32Sub).LocalSet(parMP)
		c.Loop()
		for _, in := range l[i] {
			emitInstruction(c, in, false)
		}
		c.End()
		for j := uint32(0); j < 8; j++ {
			c.LocalGet(parMP).LocalGet(locR0+j).I64Store(3, 56-8*j)
		}
	}

	c.I64Const(0).LocalSet(locBC)

	for i := range l {
		c.Loop()
		for _, in := range l[i] {
			emitInstruction(c, in, true)
		}
		c.End()
	}

	for j := uint32(0); j < 8; j++ {
		c.LocalGet(parRP).LocalGet(locR0+j).I64Store(3, 8*j)
	}
	c.End()

	m := &wasmgen.Module{
		Imports: []wasmgen.Import{{
			Module: "env",
			Name:   "memory",
			Kind:   wasmgen.KindMemory,
			Memory: &wasmgen.Limits{Min: 1},
		}},
	}
	idx := m.AddFunc(wasmgen.FuncType{
		Params: []wasmgen.ValType{wasmgen.ValI32, wasmgen.ValI32},
	}, wasmgen.FuncBody{
		Locals: []wasmgen.LocalEntry{{Count: 13, ValType: wasmgen.ValI64}},
		Code:   c.Bytes(),
	})
	m.Exports = []wasmgen.Export{{Name: "exec", Kind: wasmgen.KindFunc, Idx: idx}}
	return m.Encode()
}

func reg(r uint8) uint32 {
	return locR0 + uint32(r)
}

// emitSource pushes the source operand: the register itself, or in the
// memory phase the scratch word it selects.
func emitSource(c *wasmgen.Code, src uint8, memPhase bool) {
	if !memPhase {
		c.LocalGet(reg(src))
		return
	}
	c.LocalGet(reg(src)).
		LocalGet(locMM).
		Op(wasmgen.OpI64And).
		Op(wasmgen.OpI32WrapI64).
		LocalGet(parMP).
		Op(wasmgen.OpI32Add).
		I64Load(3, 0)
}

func emitInstruction(c *wasmgen.Code, in Instruction, memPhase bool) {
	switch in.Opcode {
	case OpMulOr, OpMulXor, OpMulAdd:
		c.LocalGet(reg(in.Dst)).
			I64Const(int64(in.Imm)).
			Op(preOp[in.Opcode])
		emitSource(c, in.Src, memPhase)
		c.Op(wasmgen.OpI64Mul).LocalSet(reg(in.Dst))
	case OpRMCG:
		c.LocalGet(reg(in.Dst)).
			LocalGet(reg(in.Src)).
			Op(wasmgen.OpI64Mul).
			I64Const(int64(in.Imm)).
			Op(wasmgen.OpI64Rotr).
			LocalTee(reg(in.Dst)).
			LocalSet(locBF)
	case OpBranch:
		c.LocalGet(locBC).
			LocalGet(locBF).
			Op(wasmgen.OpI64Or).
			I64Const(branchMask).
			Op(wasmgen.OpI64And).
			Op(wasmgen.OpI64Eqz).
			If().
			I64Const(1).
			LocalGet(locBC).
			Op(wasmgen.OpI64Add).
			LocalSet(locBC).
			Br(1).
			End()
	case OpHalt:
	default:
		c.LocalGet(reg(in.Dst)).
			I64Const(int64(in.Imm)).
			Op(preOp[in.Opcode])
		emitSource(c, in.Src, memPhase)
		c.Op(postOp[in.Opcode]).LocalSet(reg(in.Dst))
	}
}
