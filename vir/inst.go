package vir

import (
	"github.com/gogpu/v3d/qpu"
)

// InstKind distinguishes ALU instructions from branches.
type InstKind uint8

const (
	InstALU InstKind = iota
	InstBranch
)

// InstID indexes the instruction pool of a Compile.
type InstID int32

// NoInst is the absent instruction.
const NoInst InstID = -1

// AddSlot is the add ALU half of an instruction.
type AddSlot struct {
	Op      qpu.AddOp
	AUnpack qpu.Unpack
	BUnpack qpu.Unpack
	Pack    qpu.Pack
}

// MulSlot is the mul ALU half of an instruction.
type MulSlot struct {
	Op      qpu.MulOp
	AUnpack qpu.Unpack
	BUnpack qpu.Unpack
	Pack    qpu.Pack
}

// BranchInfo holds the fields of a branch instruction. The target is the
// first successor of the containing block.
type BranchInfo struct {
	Cond   qpu.BranchCond
	MsfIgn qpu.MsfIgn
	// UB makes the branch also move the uniform stream pointer.
	UB bool
}

// Inst is a VIR instruction. At most one ALU slot is active; signals such
// as ldunif or ldtmu ride on an instruction with both slots idle and write
// Dst through the signal address.
type Inst struct {
	ID   InstID
	Kind InstKind

	Add    AddSlot
	Mul    MulSlot
	Branch BranchInfo

	Sig   qpu.Sig
	Flags qpu.Flags

	Dst Reg
	Src [3]Reg

	// Uniform is the index of the uniform read by the instruction, or -1.
	Uniform int

	// IP is the instruction position assigned by liveness analysis.
	IP int

	IsLastThrsw    bool
	CondIsExecMask bool

	// LdtmuCount is the number of LDTMUs a TMU write expects back.
	LdtmuCount int

	block      BlockID
	prev, next InstID
	removed    bool
}

// Block returns the block containing the instruction.
func (i *Inst) Block() BlockID { return i.block }

// IsAdd reports whether the add slot is active.
func (i *Inst) IsAdd() bool {
	return i.Kind == InstALU && i.Add.Op != qpu.AddNOP
}

// IsMul reports whether the mul slot is active.
func (i *Inst) IsMul() bool {
	return i.Kind == InstALU && i.Mul.Op != qpu.MulNOP
}

// NumSrc returns how many of Src the instruction reads.
func (i *Inst) NumSrc() int {
	if i.Kind == InstBranch {
		return 0
	}
	if i.Add.Op != qpu.AddNOP {
		return i.Add.Op.NumSrc()
	}
	return i.Mul.Op.NumSrc()
}

// HasSideEffects reports whether removing the instruction could change the
// program even when its destination is unused.
func (i *Inst) HasSideEffects() bool {
	if i.Kind == InstBranch {
		return true
	}
	switch i.Add.Op {
	case qpu.AddSETREVF, qpu.AddSETMSF, qpu.AddVPMSETUP, qpu.AddSTVPMV,
		qpu.AddSTVPMD, qpu.AddSTVPMP, qpu.AddVPMWT, qpu.AddTMUWT:
		return true
	}
	if i.Mul.Op == qpu.MulMULTOP {
		return true
	}
	s := i.Sig
	if s.Ldtmu || s.Ldvary || s.Ldtlbu || s.Ldtlb || s.Wrtmuc || s.Thrsw {
		return true
	}
	// Each ldunifa advances the unifa pointer.
	return s.Ldunifa || s.Ldunifarf
}

// IsRawMov reports whether the instruction is an unconditional mul-slot
// MOV or FMOV without modifiers.
func (i *Inst) IsRawMov() bool {
	if i.Kind != InstALU || i.Add.Op != qpu.AddNOP {
		return false
	}
	if i.Mul.Op != qpu.MulMOV && i.Mul.Op != qpu.MulFMOV {
		return false
	}
	if i.Mul.Pack != qpu.PackNone || i.Mul.AUnpack != qpu.UnpackNone ||
		i.Mul.BUnpack != qpu.UnpackNone {
		return false
	}
	return i.Flags.AC == qpu.CondNone && i.Flags.MC == qpu.CondNone
}

// IsTex reports whether the instruction is part of a TMU access.
func (i *Inst) IsTex(d *qpu.DeviceInfo) bool {
	if i.Dst.File == FileMagic {
		return d.IsTMU(qpu.Waddr(i.Dst.Index))
	}
	return i.Kind == InstALU && i.Add.Op == qpu.AddTMUWT
}

// WritesTMU reports whether the instruction starts or extends a TMU
// request.
func (i *Inst) WritesTMU(d *qpu.DeviceInfo) bool {
	return (i.Dst.File == FileMagic && d.IsTMU(qpu.Waddr(i.Dst.Index))) ||
		i.Sig.Wrtmuc
}

// WritesR4Implicitly reports whether the instruction leaves a result in
// accumulator r4 besides its destination.
func (i *Inst) WritesR4Implicitly(d *qpu.DeviceInfo) bool {
	if !d.HasAccumulators {
		return false
	}
	return i.Dst.File == FileMagic && qpu.Waddr(i.Dst.Index).IsSFU()
}

// WritesRF0Implicitly reports whether a signal of the instruction writes
// rf0 on devices without accumulators.
func (i *Inst) WritesRF0Implicitly(d *qpu.DeviceInfo) bool {
	return i.Kind == InstALU && i.Sig.WritesRF0Implicitly(d)
}

// Cond returns the condition of the active slot.
func (i *Inst) Cond() qpu.Cond {
	if i.IsAdd() {
		return i.Flags.AC
	}
	return i.Flags.MC
}

// SetCond sets the condition of the active slot.
func (i *Inst) SetCond(c qpu.Cond) {
	if i.IsAdd() {
		i.Flags.AC = c
	} else {
		i.Flags.MC = c
	}
}

// SetPF sets the flag push of the active slot.
func (i *Inst) SetPF(pf qpu.PF) {
	if i.IsAdd() {
		i.Flags.APF = pf
	} else {
		i.Flags.MPF = pf
	}
}

// SetUF sets the flag update of the active slot.
func (i *Inst) SetUF(uf qpu.UF) {
	if i.IsAdd() {
		i.Flags.AUF = uf
	} else {
		i.Flags.MUF = uf
	}
}

// Unpack returns the unpack modifier of source src.
func (i *Inst) Unpack(src int) qpu.Unpack {
	switch {
	case i.IsAdd() && src == 0:
		return i.Add.AUnpack
	case i.IsAdd():
		return i.Add.BUnpack
	case src == 0:
		return i.Mul.AUnpack
	}
	return i.Mul.BUnpack
}

// SetUnpack sets the unpack modifier of source src.
func (i *Inst) SetUnpack(src int, u qpu.Unpack) {
	switch {
	case i.IsAdd() && src == 0:
		i.Add.AUnpack = u
	case i.IsAdd():
		i.Add.BUnpack = u
	case src == 0:
		i.Mul.AUnpack = u
	default:
		i.Mul.BUnpack = u
	}
}

// Pack returns the output pack of the active slot.
func (i *Inst) Pack() qpu.Pack {
	if i.IsAdd() {
		return i.Add.Pack
	}
	return i.Mul.Pack
}

// SetPack sets the output pack of the active slot.
func (i *Inst) SetPack(p qpu.Pack) {
	if i.IsAdd() {
		i.Add.Pack = p
	} else {
		i.Mul.Pack = p
	}
}

// HasUnpack reports whether source src carries an unpack modifier.
func (i *Inst) HasUnpack(src int) bool {
	return i.Unpack(src) != qpu.UnpackNone
}

// UnpacksF32 reports whether the active operation reads 32-bit floats.
func (i *Inst) UnpacksF32() bool {
	if i.IsAdd() {
		return i.Add.Op.ReadsFloat()
	}
	return i.Mul.Op.ReadsFloat()
}

// UnpacksF16 reports whether the active operation reads packed halves.
func (i *Inst) UnpacksF16() bool {
	if i.IsAdd() {
		return i.Add.Op.ReadsHalf()
	}
	return i.Mul.Op.ReadsHalf()
}

// WritesFlags reports whether the instruction pushes or updates flags.
func (i *Inst) WritesFlags() bool {
	if i.Kind != InstALU {
		return false
	}
	f := i.Flags
	return f.APF != qpu.PFNone || f.MPF != qpu.PFNone ||
		f.AUF != qpu.UFNone || f.MUF != qpu.UFNone
}

// PushesFlags reports whether the instruction pushes flags.
func (i *Inst) PushesFlags() bool {
	return i.Kind == InstALU &&
		(i.Flags.APF != qpu.PFNone || i.Flags.MPF != qpu.PFNone)
}

// ReadsFlags reports whether the instruction depends on the flags.
func (i *Inst) ReadsFlags() bool {
	if i.Kind == InstBranch {
		return i.Branch.Cond != qpu.BranchAlways
	}
	f := i.Flags
	if f.AC != qpu.CondNone || f.MC != qpu.CondNone ||
		f.AUF != qpu.UFNone || f.MUF != qpu.UFNone {
		return true
	}
	switch i.Add.Op {
	case qpu.AddVFLA, qpu.AddVFLNA, qpu.AddVFLB, qpu.AddVFLNB,
		qpu.AddFLAPUSH, qpu.AddFLBPUSH, qpu.AddFLAFIRST, qpu.AddFLNAFIRST:
		return true
	}
	return false
}

// ReadsUniform reports whether the instruction consumes a uniform.
func (i *Inst) ReadsUniform() bool { return i.Uniform >= 0 }

// IsLdunif reports whether the instruction is a plain uniform load.
func (i *Inst) IsLdunif() bool {
	return i.Sig.Ldunif || i.Sig.Ldunifrf
}

// IsLdunifa reports whether the instruction loads through unifa.
func (i *Inst) IsLdunifa() bool {
	return i.Sig.Ldunifa || i.Sig.Ldunifarf
}

// UsesSFU reports whether the instruction issues a special function unit
// request.
func (i *Inst) UsesSFU() bool {
	if i.Kind != InstALU {
		return false
	}
	if i.Add.Op.IsSFU() {
		return true
	}
	return i.Dst.File == FileMagic && qpu.Waddr(i.Dst.Index).IsSFU()
}

// IsNOP reports whether the instruction does nothing but possibly carry
// signals.
func (i *Inst) IsNOP() bool {
	return i.Kind == InstALU && i.Add.Op == qpu.AddNOP && i.Mul.Op == qpu.MulNOP
}

// usesSmallImm reports whether any source is a small immediate.
func (i *Inst) usesSmallImm() bool {
	for s := 0; s < i.NumSrc(); s++ {
		if i.Src[s].File == FileSmallImm {
			return true
		}
	}
	return false
}
