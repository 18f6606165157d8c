package asm

import (
	"github.com/gogpu/v3d/qpu"
	"github.com/gogpu/v3d/vir"
)

// OperandKind is the kind of register an operand names.
type OperandKind uint8

const (
	OperandNull OperandKind = iota
	OperandValue
	OperandPhys
	OperandMagic
	OperandImm
)

// Operand is a source or destination of a statement.
type Operand struct {
	Kind OperandKind
	// Name is the value name of an OperandValue.
	Name string
	// Index is the register number of OperandPhys, the magic address of
	// OperandMagic and the raw bits of OperandImm.
	Index  uint32
	Unpack qpu.Unpack
	Pos    Position
}

// StmtKind distinguishes instructions from the macros that expand to
// several of them.
type StmtKind uint8

const (
	StmtALU StmtKind = iota
	StmtSig
	StmtBranch
	StmtUniform
	StmtTMULoad
	StmtTMUStore
	StmtFlush
)

// Stmt is one line of textual VIR.
type Stmt struct {
	Kind StmtKind
	Pos  Position

	Dsts []Operand
	Srcs []Operand

	// IsMul selects MulOp over AddOp for StmtALU.
	IsMul bool
	AddOp qpu.AddOp
	MulOp qpu.MulOp

	// Sig holds the signal of a StmtSig and the extra signals of any
	// instruction.
	Sig  qpu.Sig
	Cond qpu.Cond
	PF   qpu.PF
	UF   qpu.UF
	Pack qpu.Pack

	// Uniform is the slot read by the instruction, or by a StmtUniform.
	HasUniform bool
	Uniform    vir.UniformSlot

	BranchCond qpu.BranchCond
	Target     string
}

func (s *Stmt) isUncondBranch() bool {
	return s.Kind == StmtBranch && s.BranchCond == qpu.BranchAlways
}

// Block is a labeled run of statements. Only the first block may be
// unlabeled.
type Block struct {
	Label string
	Pos   Position
	Stmts []Stmt
}

func (b *Block) last() *Stmt {
	if len(b.Stmts) == 0 {
		return nil
	}
	return &b.Stmts[len(b.Stmts)-1]
}

// fallsThrough reports whether control reaches the next block.
func (b *Block) fallsThrough() bool {
	s := b.last()
	return s == nil || !s.isUncondBranch()
}

// endsInBranch reports whether the block ends with a branch of any kind.
func (b *Block) endsInBranch() bool {
	s := b.last()
	return s != nil && s.Kind == StmtBranch
}

// Program is a parsed textual VIR shader. It implements v3d.Shader.
type Program struct {
	Name   string
	stage  vir.Stage
	Blocks []*Block
	// Threads is the .threads directive, 0 when absent. It caps the
	// thread count through Strategies.
	Threads int
}
