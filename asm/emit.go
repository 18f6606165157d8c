package asm

import (
	"fmt"

	"github.com/gogpu/v3d"
	"github.com/gogpu/v3d/qpu"
	"github.com/gogpu/v3d/vir"
)

// Stage implements v3d.Shader.
func (p *Program) Stage() vir.Stage { return p.stage }

// Emit implements v3d.Shader. It replays the parsed program into c and can
// be called any number of times.
func (p *Program) Emit(c *vir.Compile, _ *v3d.Key) error {
	e := &emitter{
		prog:   p,
		c:      c,
		values: make(map[string]vir.Reg),
		blocks: make(map[string]*vir.Block),
	}

	var prev *Block
	for i, b := range p.Blocks {
		if i == 0 {
			if b.Label != "" {
				e.blocks[b.Label] = c.EntryBlock()
			}
		} else {
			vb := e.block(b.Label)
			if prev.fallsThrough() {
				c.LinkBlocks(c.CurrentBlock(), vb)
			}
			c.SetEmitBlock(vb)
		}

		for j := range b.Stmts {
			if err := e.stmt(&b.Stmts[j]); err != nil {
				return err
			}
		}
		if !b.endsInBranch() {
			c.FlushTMU()
		}
		prev = b
	}
	return nil
}

type emitter struct {
	prog   *Program
	c      *vir.Compile
	values map[string]vir.Reg
	blocks map[string]*vir.Block
}

func (e *emitter) errorf(pos Position, format string, args ...any) error {
	return &SourceError{Message: fmt.Sprintf(format, args...), Pos: pos, File: e.prog.Name}
}

// block returns the block of a label, creating it on first reference.
func (e *emitter) block(label string) *vir.Block {
	b, ok := e.blocks[label]
	if !ok {
		b = e.c.NewBlock()
		e.blocks[label] = b
	}
	return b
}

func (e *emitter) stmt(s *Stmt) error {
	c := e.c

	switch s.Kind {
	case StmtFlush:
		c.FlushTMU()
		return nil

	case StmtBranch:
		c.FlushTMU()
		cur := c.CurrentBlock()
		c.Branch(s.BranchCond)
		c.LinkBlocks(cur, e.block(s.Target))
		return nil

	case StmtUniform:
		e.values[s.Dsts[0].Name] = c.Uniform(s.Uniform.Contents, s.Uniform.Data)
		return nil

	case StmtTMULoad:
		addr, err := e.src(s.Srcs[0])
		if err != nil {
			return err
		}
		for i, r := range c.TMULoad(addr, len(s.Dsts)) {
			e.values[s.Dsts[i].Name] = r
		}
		return nil

	case StmtTMUStore:
		regs := make([]vir.Reg, len(s.Srcs))
		for i, o := range s.Srcs {
			r, err := e.src(o)
			if err != nil {
				return err
			}
			regs[i] = r
		}
		c.TMUStore(regs[0], regs[1:]...)
		return nil
	}

	var srcs [2]vir.Reg
	for i, o := range s.Srcs {
		r, err := e.src(o)
		if err != nil {
			return err
		}
		srcs[i] = r
	}

	var inst *vir.Inst
	switch {
	case s.Kind == StmtSig:
		inst = c.AddInst(qpu.AddNOP, vir.Null, vir.Null, vir.Null)
	case s.IsMul:
		inst = c.MulInst(s.MulOp, vir.Null, srcs[0], srcs[1])
	default:
		inst = c.AddInst(s.AddOp, vir.Null, srcs[0], srcs[1])
	}
	inst.Sig = s.Sig
	if s.Kind == StmtALU {
		inst.SetCond(s.Cond)
		inst.SetPF(s.PF)
		inst.SetUF(s.UF)
		inst.SetPack(s.Pack)
		for i, o := range s.Srcs {
			inst.SetUnpack(i, o.Unpack)
		}
	}
	if s.HasUniform {
		inst.Uniform = c.GetUniformIndex(s.Uniform.Contents, s.Uniform.Data)
	}

	if len(s.Dsts) == 0 {
		c.EmitNonDef(inst)
		return nil
	}
	return e.write(s, inst)
}

// write emits inst with the statement's destination. The first
// unconditional write of a value defines it.
func (e *emitter) write(s *Stmt, inst *vir.Inst) error {
	c := e.c
	d := s.Dsts[0]

	if d.Kind != OperandValue {
		inst.Dst = e.reg(d)
		c.EmitNonDef(inst)
		return nil
	}

	r, ok := e.values[d.Name]
	switch {
	case ok:
		if c.TMUPending(r) {
			c.FlushTMU()
		}
		inst.Dst = r
		c.EmitNonDef(inst)
	case s.Cond == qpu.CondNone:
		e.values[d.Name] = c.EmitDef(inst)
	default:
		r = c.GetTemp()
		e.values[d.Name] = r
		inst.Dst = r
		c.EmitNonDef(inst)
	}
	return nil
}

// src resolves a source operand, loading literals and collecting pending
// TMU results first.
func (e *emitter) src(o Operand) (vir.Reg, error) {
	c := e.c
	switch o.Kind {
	case OperandImm:
		return c.UniformUI(o.Index), nil
	case OperandValue:
		r, ok := e.values[o.Name]
		if !ok {
			return vir.Null, e.errorf(o.Pos, "value %q used before it is written", o.Name)
		}
		if c.TMUPending(r) {
			c.FlushTMU()
		}
		return r, nil
	}
	return e.reg(o), nil
}

func (e *emitter) reg(o Operand) vir.Reg {
	switch o.Kind {
	case OperandPhys:
		return vir.PhysReg(int(o.Index))
	case OperandMagic:
		return vir.Magic(qpu.Waddr(o.Index))
	}
	return vir.Null
}

// Strategies limits base to the thread count of the .threads directive.
func (p *Program) Strategies(base []v3d.Strategy) []v3d.Strategy {
	if p.Threads == 0 {
		return base
	}
	var out []v3d.Strategy
	for _, s := range base {
		if s.MinThreads > p.Threads {
			continue
		}
		s.MaxThreads = min(s.MaxThreads, p.Threads)
		out = append(out, s)
	}
	return out
}
