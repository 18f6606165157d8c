package vir

import (
	"github.com/gogpu/v3d/qpu"
)

// AddOp emits an add-slot operation into a new temp.
func (c *Compile) AddOp(op qpu.AddOp, a, b Reg) Reg {
	return c.EmitDef(c.AddInst(op, Null, a, b))
}

// AddOpDest emits an add-slot operation writing dst.
func (c *Compile) AddOpDest(op qpu.AddOp, dst, a, b Reg) *Inst {
	return c.EmitNonDef(c.AddInst(op, dst, a, b))
}

// MulOp emits a mul-slot operation into a new temp.
func (c *Compile) MulOp(op qpu.MulOp, a, b Reg) Reg {
	return c.EmitDef(c.MulInst(op, Null, a, b))
}

// MulOpDest emits a mul-slot operation writing dst.
func (c *Compile) MulOpDest(op qpu.MulOp, dst, a, b Reg) *Inst {
	return c.EmitNonDef(c.MulInst(op, dst, a, b))
}

func (c *Compile) ADD(a, b Reg) Reg    { return c.AddOp(qpu.AddADD, a, b) }
func (c *Compile) SUB(a, b Reg) Reg    { return c.AddOp(qpu.AddSUB, a, b) }
func (c *Compile) FADD(a, b Reg) Reg   { return c.AddOp(qpu.AddFADD, a, b) }
func (c *Compile) FSUB(a, b Reg) Reg   { return c.AddOp(qpu.AddFSUB, a, b) }
func (c *Compile) SHL(a, b Reg) Reg    { return c.AddOp(qpu.AddSHL, a, b) }
func (c *Compile) SHR(a, b Reg) Reg    { return c.AddOp(qpu.AddSHR, a, b) }
func (c *Compile) ASR(a, b Reg) Reg    { return c.AddOp(qpu.AddASR, a, b) }
func (c *Compile) AND(a, b Reg) Reg    { return c.AddOp(qpu.AddAND, a, b) }
func (c *Compile) OR(a, b Reg) Reg     { return c.AddOp(qpu.AddOR, a, b) }
func (c *Compile) XOR(a, b Reg) Reg    { return c.AddOp(qpu.AddXOR, a, b) }
func (c *Compile) MIN(a, b Reg) Reg    { return c.AddOp(qpu.AddMIN, a, b) }
func (c *Compile) MAX(a, b Reg) Reg    { return c.AddOp(qpu.AddMAX, a, b) }
func (c *Compile) UMIN(a, b Reg) Reg   { return c.AddOp(qpu.AddUMIN, a, b) }
func (c *Compile) UMAX(a, b Reg) Reg   { return c.AddOp(qpu.AddUMAX, a, b) }
func (c *Compile) FMIN(a, b Reg) Reg   { return c.AddOp(qpu.AddFMIN, a, b) }
func (c *Compile) FMAX(a, b Reg) Reg   { return c.AddOp(qpu.AddFMAX, a, b) }
func (c *Compile) VFPACK(a, b Reg) Reg { return c.AddOp(qpu.AddVFPACK, a, b) }

func (c *Compile) NOT(a Reg) Reg    { return c.AddOp(qpu.AddNOT, a, Null) }
func (c *Compile) NEG(a Reg) Reg    { return c.AddOp(qpu.AddNEG, a, Null) }
func (c *Compile) ITOF(a Reg) Reg   { return c.AddOp(qpu.AddITOF, a, Null) }
func (c *Compile) UTOF(a Reg) Reg   { return c.AddOp(qpu.AddUTOF, a, Null) }
func (c *Compile) FTOIZ(a Reg) Reg  { return c.AddOp(qpu.AddFTOIZ, a, Null) }
func (c *Compile) FTOUZ(a Reg) Reg  { return c.AddOp(qpu.AddFTOUZ, a, Null) }
func (c *Compile) FROUND(a Reg) Reg { return c.AddOp(qpu.AddFROUND, a, Null) }
func (c *Compile) FTRUNC(a Reg) Reg { return c.AddOp(qpu.AddFTRUNC, a, Null) }
func (c *Compile) FFLOOR(a Reg) Reg { return c.AddOp(qpu.AddFFLOOR, a, Null) }
func (c *Compile) FCEIL(a Reg) Reg  { return c.AddOp(qpu.AddFCEIL, a, Null) }
func (c *Compile) FDX(a Reg) Reg    { return c.AddOp(qpu.AddFDX, a, Null) }
func (c *Compile) FDY(a Reg) Reg    { return c.AddOp(qpu.AddFDY, a, Null) }

// SFU operations. The result is written to a register file entry two
// instructions later; lowering accounts for the latency.
func (c *Compile) RECIP(a Reg) Reg { return c.AddOp(qpu.AddRECIP, a, Null) }
func (c *Compile) RSQRT(a Reg) Reg { return c.AddOp(qpu.AddRSQRT, a, Null) }
func (c *Compile) EXP(a Reg) Reg   { return c.AddOp(qpu.AddEXP, a, Null) }
func (c *Compile) LOG(a Reg) Reg   { return c.AddOp(qpu.AddLOG, a, Null) }
func (c *Compile) SIN(a Reg) Reg   { return c.AddOp(qpu.AddSIN, a, Null) }

func (c *Compile) EIDX() Reg   { return c.AddOp(qpu.AddEIDX, Null, Null) }
func (c *Compile) TIDX() Reg   { return c.AddOp(qpu.AddTIDX, Null, Null) }
func (c *Compile) FXCD() Reg   { return c.AddOp(qpu.AddFXCD, Null, Null) }
func (c *Compile) FYCD() Reg   { return c.AddOp(qpu.AddFYCD, Null, Null) }
func (c *Compile) XCD() Reg    { return c.AddOp(qpu.AddXCD, Null, Null) }
func (c *Compile) YCD() Reg    { return c.AddOp(qpu.AddYCD, Null, Null) }
func (c *Compile) IID() Reg    { return c.AddOp(qpu.AddIID, Null, Null) }
func (c *Compile) SAMPID() Reg { return c.AddOp(qpu.AddSAMPID, Null, Null) }

// TMUWT waits for outstanding TMU writes.
func (c *Compile) TMUWT() Reg { return c.AddOp(qpu.AddTMUWT, Null, Null) }

func (c *Compile) UMUL24(a, b Reg) Reg { return c.MulOp(qpu.MulUMUL24, a, b) }
func (c *Compile) SMUL24(a, b Reg) Reg { return c.MulOp(qpu.MulSMUL24, a, b) }
func (c *Compile) FMUL(a, b Reg) Reg   { return c.MulOp(qpu.MulFMUL, a, b) }
func (c *Compile) MOV(a Reg) Reg       { return c.MulOp(qpu.MulMOV, a, Null) }
func (c *Compile) FMOV(a Reg) Reg      { return c.MulOp(qpu.MulFMOV, a, Null) }

// ADDDest emits dst = a + b.
func (c *Compile) ADDDest(dst, a, b Reg) *Inst { return c.AddOpDest(qpu.AddADD, dst, a, b) }

// MOVDest emits a move into dst.
func (c *Compile) MOVDest(dst, a Reg) *Inst { return c.MulOpDest(qpu.MulMOV, dst, a, Null) }

// FMOVDest emits a float move into dst.
func (c *Compile) FMOVDest(dst, a Reg) *Inst { return c.MulOpDest(qpu.MulFMOV, dst, a, Null) }

// NOP emits an instruction with both slots idle.
func (c *Compile) NOP() *Inst {
	return c.EmitNonDef(c.AddInst(qpu.AddNOP, Null, Null, Null))
}

func (c *Compile) emitSigDef(sig qpu.Sig) Reg {
	inst := c.AddInst(qpu.AddNOP, Null, Null, Null)
	inst.Sig = sig
	return c.EmitDef(inst)
}

// LDTMU collects the next TMU result.
func (c *Compile) LDTMU() Reg { return c.emitSigDef(qpu.Sig{Ldtmu: true}) }

// LDVARY loads the next varying coefficient.
func (c *Compile) LDVARY() Reg { return c.emitSigDef(qpu.Sig{Ldvary: true}) }

// LDUNIFA loads the next value from the unifa stream.
func (c *Compile) LDUNIFA() Reg { return c.emitSigDef(qpu.Sig{Ldunifa: true}) }

// Branch emits a branch at the end of the current block. The target is
// set with LinkBlocks.
func (c *Compile) Branch(cond qpu.BranchCond) *Inst {
	return c.Emit(c.BranchInst(cond))
}
