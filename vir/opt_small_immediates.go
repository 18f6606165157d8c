package vir

import (
	"github.com/gogpu/v3d/qpu"
)

// constantUniform returns the value of temp r when its definition is a
// load of a constant uniform.
func (c *Compile) constantUniform(r Reg) (uint32, bool) {
	if !r.IsTemp() {
		return 0, false
	}
	def := c.Def(int(r.Index))
	if def == nil || !def.IsLdunif() || def.Uniform < 0 {
		return 0, false
	}
	u := c.uniforms[def.Uniform]
	if u.Contents != UniformConstant {
		return 0, false
	}
	return u.Data, true
}

// OptSmallImmediates replaces a source loaded from a constant uniform by
// the same value encoded in the instruction, when the value has a small
// immediate encoding. An instruction carries at most one.
func (c *Compile) OptSmallImmediates() bool {
	progress := false
	c.ForEachInst(func(_ *Block, inst *Inst) {
		if inst.Kind != InstALU || inst.usesSmallImm() || inst.Sig.SmallImm() {
			return
		}
		for s := 0; s < inst.NumSrc(); s++ {
			v, ok := c.constantUniform(inst.Src[s])
			if !ok {
				continue
			}
			if _, ok := qpu.SmallImmPack(v); !ok {
				continue
			}

			old := inst.Src[s]
			inst.Src[s] = SmallImm(v)
			sig, ok := c.smallImmSig(inst, s)
			if !ok {
				inst.Src[s] = old
				continue
			}
			inst.Sig = sig
			if c.log.If("opt") {
				c.log.Printw("small immediate", "inst", inst.ID, "replaces", old, "value", v)
			}
			progress = true
			return
		}
	})
	return progress
}
