package qpu

// InstrType distinguishes ALU instructions from branches.
type InstrType uint8

const (
	InstrALU InstrType = iota
	InstrBranch
)

// Mux selects the source of an ALU input on devices with accumulators.
type Mux uint8

const (
	MuxR0 Mux = iota
	MuxR1
	MuxR2
	MuxR3
	MuxR4
	MuxR5
	MuxA
	MuxB
)

// ALUInput is one input of an ALU slot. Devices with accumulators use
// Mux together with the shared read addresses of the instruction; 7.x
// devices name the register file entry in Raddr.
type ALUInput struct {
	Mux    Mux
	Raddr  uint8
	Unpack Unpack
}

// AddALU is the add slot of an ALU instruction.
type AddALU struct {
	Op         AddOp
	A, B       ALUInput
	Waddr      uint8
	MagicWrite bool
	OutputPack Pack
}

// MulALU is the mul slot of an ALU instruction.
type MulALU struct {
	Op         MulOp
	A, B       ALUInput
	Waddr      uint8
	MagicWrite bool
	OutputPack Pack
}

// Branch holds the fields of a branch instruction. Offset is a byte
// offset relative to the instruction after the branch delay slots.
type Branch struct {
	Cond   BranchCond
	MsfIgn MsfIgn
	BDI    BranchDest
	BDU    BranchDest
	UB     bool
	Raddr  uint8
	Offset uint32
}

// Instr is a decoded QPU instruction.
type Instr struct {
	Type InstrType

	Sig      Sig
	SigAddr  uint8
	SigMagic bool

	// RaddrA and RaddrB are the register file read ports shared by both
	// ALU slots on devices with accumulators. When a small immediate is
	// signalled RaddrB holds its encoding.
	RaddrA uint8
	RaddrB uint8

	Flags Flags
	Add   AddALU
	Mul   MulALU

	Branch Branch
}

// NOP returns an ALU instruction doing nothing.
func NOP() Instr {
	return Instr{Type: InstrALU}
}

// WritesFlags reports whether the instruction pushes or updates flags.
func (in *Instr) WritesFlags() bool {
	if in.Type != InstrALU {
		return false
	}
	f := in.Flags
	return f.APF != PFNone || f.MPF != PFNone || f.AUF != UFNone || f.MUF != UFNone
}

// ReadsFlags reports whether the instruction is conditional on flags.
func (in *Instr) ReadsFlags() bool {
	if in.Type == InstrBranch {
		return in.Branch.Cond != BranchAlways
	}
	f := in.Flags
	if f.AC != CondNone || f.MC != CondNone || f.AUF != UFNone || f.MUF != UFNone {
		return true
	}
	switch in.Add.Op {
	case AddVFLA, AddVFLNA, AddVFLB, AddVFLNB, AddFLAPUSH, AddFLBPUSH,
		AddFLAFIRST, AddFLNAFIRST:
		return true
	}
	return false
}

// UsesSFU reports whether the instruction issues a special function
// request, either through a magic write or an SFU add operation.
func (in *Instr) UsesSFU() bool {
	if in.Type != InstrALU {
		return false
	}
	if in.Add.Op.IsSFU() {
		return true
	}
	if in.Add.Op != AddNOP && in.Add.MagicWrite && Waddr(in.Add.Waddr).IsSFU() {
		return true
	}
	if in.Mul.Op != MulNOP && in.Mul.MagicWrite && Waddr(in.Mul.Waddr).IsSFU() {
		return true
	}
	return false
}
