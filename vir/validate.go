package vir

import (
	"fmt"
	"strings"

	"github.com/gogpu/v3d/qpu"
)

// ValidationError describes one malformed instruction or block.
type ValidationError struct {
	Message string
	// Optional context
	Block BlockID
	Inst  InstID
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	switch {
	case e.Inst != NoInst:
		return fmt.Sprintf("block %d, instruction %d: %s", e.Block, e.Inst, e.Message)
	case e.Block != NoBlock:
		return fmt.Sprintf("block %d: %s", e.Block, e.Message)
	}
	return e.Message
}

// ValidationErrors is every problem Validate found.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i := range e {
		msgs[i] = e[i].Error()
	}
	return fmt.Sprintf("%d validation errors:\n%s", len(e), strings.Join(msgs, "\n"))
}

type validator struct {
	c      *Compile
	errors ValidationErrors
	block  *Block
}

// Validate checks the structural rules every pass relies on. It returns
// ValidationErrors, or nil.
func (c *Compile) Validate() error {
	v := &validator{c: c}
	for _, b := range c.Blocks() {
		v.block = b
		v.validateBlock(b)
	}
	if len(v.errors) > 0 {
		return v.errors
	}
	return nil
}

func (v *validator) addErrorInBlock(format string, args ...any) {
	v.errors = append(v.errors, ValidationError{
		Message: fmt.Sprintf(format, args...),
		Block:   v.block.ID,
		Inst:    NoInst,
	})
}

func (v *validator) addErrorInInst(inst *Inst, format string, args ...any) {
	v.errors = append(v.errors, ValidationError{
		Message: fmt.Sprintf(format, args...),
		Block:   v.block.ID,
		Inst:    inst.ID,
	})
}

func (v *validator) validateBlock(b *Block) {
	insts := v.c.BlockInsts(b)
	for i, inst := range insts {
		if inst.block != b.ID {
			v.addErrorInInst(inst, "linked into block %d but owned by %d", b.ID, inst.block)
		}
		if inst.Kind == InstBranch {
			if i != len(insts)-1 {
				v.addErrorInInst(inst, "branch is not the last instruction")
			}
			if b.Successors[0] == NoBlock {
				v.addErrorInInst(inst, "branch without target")
			}
			continue
		}
		v.validateInst(inst)
	}

	for _, s := range b.Successors {
		if s != NoBlock && v.c.Block(s) == nil {
			v.addErrorInBlock("successor %d does not exist", s)
		}
	}
}

func (v *validator) validateInst(inst *Inst) {
	c := v.c
	if inst.IsAdd() && inst.IsMul() {
		v.addErrorInInst(inst, "both ALU slots are active")
	}
	if !inst.Add.Op.Valid() || !inst.Mul.Op.Valid() {
		v.addErrorInInst(inst, "unknown opcode")
		return
	}
	if _, ok := qpu.SigPack(c.dev, inst.Sig); !ok {
		v.addErrorInInst(inst, "signals %v cannot be encoded", inst.Sig)
	}
	if inst.Uniform >= len(c.uniforms) {
		v.addErrorInInst(inst, "uniform %d out of range", inst.Uniform)
	}

	if inst.IsNOP() && !inst.Dst.IsNull() && !sigWritesDst(inst.Sig) {
		v.addErrorInInst(inst, "destination %v without an operation writing it", inst.Dst)
	}
	v.validateDst(inst)

	imms := 0
	for s := 0; s < inst.NumSrc(); s++ {
		src := inst.Src[s]
		switch src.File {
		case FileTemp:
			if int(src.Index) >= c.numTemps {
				v.addErrorInInst(inst, "source %v out of range", src)
			}
		case FileReg:
			if src.Index >= qpu.PhysCount {
				v.addErrorInInst(inst, "source %v out of range", src)
			}
		case FileMagic:
			if !c.dev.IsAccumulator(qpu.Waddr(src.Index)) {
				v.addErrorInInst(inst, "source %v cannot be read", src)
			}
		case FileSmallImm:
			imms++
			if _, ok := qpu.SmallImmPack(src.Index); !ok {
				v.addErrorInInst(inst, "0x%x is not a small immediate", src.Index)
			}
		case FileLoadImm:
			v.addErrorInInst(inst, "load immediates are not supported")
		}
	}
	if imms > 0 && !inst.Sig.SmallImm() {
		v.addErrorInInst(inst, "small immediate without its signal")
	}
	if c.dev.Ver < 71 && imms > 1 && inst.Src[0] != inst.Src[1] {
		v.addErrorInInst(inst, "two different small immediates")
	}
}

func (v *validator) validateDst(inst *Inst) {
	d := inst.Dst
	switch d.File {
	case FileNull:
	case FileTemp:
		if int(d.Index) >= v.c.numTemps {
			v.addErrorInInst(inst, "destination %v out of range", d)
		}
	case FileReg:
		if d.Index >= qpu.PhysCount {
			v.addErrorInInst(inst, "destination %v out of range", d)
		}
	case FileMagic:
		w := qpu.Waddr(d.Index)
		if w <= qpu.WaddrR5 && !v.c.dev.HasAccumulators {
			v.addErrorInInst(inst, "accumulator %v on a device without accumulators", w)
		}
	default:
		v.addErrorInInst(inst, "cannot write %v", d)
	}
}

func sigWritesDst(s qpu.Sig) bool {
	return s.Ldunif || s.Ldunifrf || s.Ldunifa || s.Ldunifarf ||
		s.Ldtmu || s.Ldvary || s.Ldvpm || s.Ldtlb || s.Ldtlbu
}
