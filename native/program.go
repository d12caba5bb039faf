package native

import (
	"fmt"
	"math/bits"

	"github.com/wippyai/hashwx/internal/siphash"
)

const (
	ProgramSize = 10
	NumPrograms = 32
	RegSize     = 10
	MemSize     = 256

	branchBudget = 32
	branchMask   = 32
)

// Opcode is a virtual machine instruction type.
type Opcode uint8

const (
	OpMulOr  Opcode = iota // (rd | imm) * src
	OpMulXor               // (rd ^ imm) * src
	OpMulAdd               // (rd + imm) * src
	OpRMCG                 // rotr(rd * rs, imm), sets the branch flag
	OpXorRor               // rotr(rd, imm) ^ src
	OpAddRor               // rotr(rd, imm) + src
	OpSubRor               // rotr(rd, imm) - src
	OpXorAsr               // (rd >>> imm) ^ src, arithmetic
	OpAddAsr
	OpSubAsr
	OpXorLsr // (rd >> imm) ^ src, logical
	OpAddLsr
	OpSubLsr
	OpBranch
	OpHalt
)

var opNames = [...]string{
	"mulor", "mulxor", "muladd", "rmcg",
	"xorror", "addror", "subror",
	"xorasr", "addasr", "subasr",
	"xorlsr", "addlsr", "sublsr",
	"branch", "halt",
}

func (op Opcode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Instruction is one program slot.
type Instruction struct {
	Imm    uint32
	Opcode Opcode
	Src    uint8
	Dst    uint8
}

func (in Instruction) String() string {
	switch in.Opcode {
	case OpBranch, OpHalt:
		return in.Opcode.String()
	default:
		return fmt.Sprintf("%s r%d, r%d, %d", in.Opcode, in.Dst, in.Src, in.Imm)
	}
}

// Program is a fixed-length instruction sequence ending in OpHalt.
type Program [ProgramSize]Instruction

// ProgramList is the full program set derived from one seed.
type ProgramList [NumPrograms]Program

// arithmetic lists the opcodes a generator may place in free slots.
var arithmetic = [...]Opcode{
	OpMulOr, OpMulXor, OpMulAdd,
	OpXorRor, OpAddRor, OpSubRor,
	OpXorAsr, OpAddAsr, OpSubAsr,
	OpXorLsr, OpAddLsr, OpSubLsr,
}

// Generate derives a program list from key.
//
// Every program has exactly one RMCG, followed later by one BRANCH, and
// ends with HALT. RMCG multiplies by r8 or r9, which are odd. Other
// instructions write r0..r7 and never read their own destination.
func Generate(key siphash.Key) *ProgramList {
	rng := siphash.NewRNG(key, 0)
	list := &ProgramList{}
	for i := range list {
		generateProgram(rng, &list[i])
	}
	return list
}

func generateProgram(rng *siphash.RNG, p *Program) {
	rmcg := rng.Intn(ProgramSize - 2)
	branch := rmcg + 1 + rng.Intn(ProgramSize-2-rmcg)

	for i := 0; i < ProgramSize-1; i++ {
		switch i {
		case rmcg:
			p[i] = Instruction{
				Opcode: OpRMCG,
				Dst:    uint8(rng.Intn(8)),
				Src:    uint8(8 + rng.Intn(2)),
				Imm:    uint32(1 + rng.Intn(63)),
			}
		case branch:
			p[i] = Instruction{Opcode: OpBranch}
		default:
			op := arithmetic[rng.Intn(len(arithmetic))]
			dst := uint8(rng.Intn(8))
			src := uint8(rng.Intn(RegSize))
			if src == dst {
				src = (dst + 8) % RegSize
			}
			var imm uint32
			if op <= OpMulAdd {
				imm = rng.Uint32()
			} else {
				imm = uint32(1 + rng.Intn(63))
			}
			p[i] = Instruction{Opcode: op, Dst: dst, Src: src, Imm: imm}
		}
	}
	p[ProgramSize-1] = Instruction{Opcode: OpHalt}
}

// Execute runs the register phase then the memory phase over r.
func (l *ProgramList) Execute(r *[RegSize]uint64) {
	var mem [MemSize]uint64

	budget := uint32(branchBudget)
	for i := range l {
		budget = l[i].run(r, budget, nil)
		for j := 0; j < 8; j++ {
			mem[MemSize-1-8*i-j] = r[j]
		}
	}

	budget = branchBudget
	for i := range l {
		budget = l[i].run(r, budget, &mem)
	}
}

// run executes p until HALT and returns the remaining branch budget. With
// mem set, non-RMCG sources are read from mem indexed by the source register.
func (p *Program) run(r *[RegSize]uint64, budget uint32, mem *[MemSize]uint64) uint32 {
	var flag uint32
	ic := 0
	for {
		in := &p[ic]
		ic++

		var src uint64
		if mem != nil && in.Opcode != OpRMCG {
			src = mem[(r[in.Src]/8)%MemSize]
		} else if in.Src < RegSize {
			src = r[in.Src]
		}
		rd := r[in.Dst%RegSize]
		imm := uint64(in.Imm)

		switch in.Opcode {
		case OpMulOr:
			r[in.Dst] = (rd | imm) * src
		case OpMulXor:
			r[in.Dst] = (rd ^ imm) * src
		case OpMulAdd:
			r[in.Dst] = (rd + imm) * src
		case OpRMCG:
			v := bits.RotateLeft64(rd*src, -int(in.Imm))
			r[in.Dst] = v
			flag = uint32(v)
		case OpXorRor:
			r[in.Dst] = bits.RotateLeft64(rd, -int(in.Imm)) ^ src
		case OpAddRor:
			r[in.Dst] = bits.RotateLeft64(rd, -int(in.Imm)) + src
		case OpSubRor:
			r[in.Dst] = bits.RotateLeft64(rd, -int(in.Imm)) - src
		case OpXorAsr:
			r[in.Dst] = uint64(int64(rd)>>in.Imm) ^ src
		case OpAddAsr:
			r[in.Dst] = uint64(int64(rd)>>in.Imm) + src
		case OpSubAsr:
			r[in.Dst] = uint64(int64(rd)>>in.Imm) - src
		case OpXorLsr:
			r[in.Dst] = (rd >> in.Imm) ^ src
		case OpAddLsr:
			r[in.Dst] = (rd >> in.Imm) + src
		case OpSubLsr:
			r[in.Dst] = (rd >> in.Imm) - src
		case OpBranch:
			if budget != 0 && flag&branchMask == 0 {
				budget--
				ic = 0
			}
		case OpHalt:
			return budget
		}
	}
}

// InitRegisters fills the register file for nonce.
func InitRegisters(key siphash.Key, nonce uint64) [RegSize]uint64 {
	var r [RegSize]uint64
	rng := siphash.NewRNG(key, nonce)
	for i := 0; i < 8; i++ {
		r[i] = rng.Next()
	}
	r[8] = (r[4] &^ 7) | 3
	r[9] = (r[7] &^ 7) | 5
	return r
}

// Finalize folds the register file into the hash.
func Finalize(r *[RegSize]uint64) uint64 {
	_, _, _, r3 := siphash.Round(r[0], r[1], r[2], r[3])
	_, _, _, r7 := siphash.Round(r[4], r[5], r[6], r[7])
	return r3 ^ r7 ^ r[9]
}

// Keys splits a seed into the program key and the execution key.
func Keys(seed []byte) (program, exec siphash.Key) {
	return siphash.KeyFromBytes(seed[0:16]), siphash.KeyFromBytes(seed[16:32])
}

// Hash evaluates one hash without an engine.
func Hash(seed []byte, nonce uint64) uint64 {
	pk, ek := Keys(seed)
	r := InitRegisters(ek, nonce)
	Generate(pk).Execute(&r)
	return Finalize(&r)
}
