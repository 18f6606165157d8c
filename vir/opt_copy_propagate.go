package vir

import (
	"github.com/gogpu/v3d/qpu"
)

// isCopyMov reports whether inst is a plain temp-to-temp move whose
// readers could read its source instead.
func isCopyMov(inst *Inst) bool {
	if inst == nil || inst.Kind != InstALU || inst.Add.Op != qpu.AddNOP {
		return false
	}
	if inst.Mul.Op != qpu.MulMOV && inst.Mul.Op != qpu.MulFMOV {
		return false
	}
	if !inst.Dst.IsTemp() || !inst.Src[0].IsTemp() {
		return false
	}
	if inst.Mul.Pack != qpu.PackNone || inst.Flags.MC != qpu.CondNone {
		return false
	}
	return inst.Sig.IsZero() && !inst.WritesFlags() && !inst.ReadsUniform()
}

// absUnsafe lists operations where moving an ABS unpack onto the input
// changes the result or cannot be encoded.
func absUnsafe(op qpu.AddOp) bool {
	switch op {
	case qpu.AddVFPACK, qpu.AddFROUND, qpu.AddFTRUNC, qpu.AddFFLOOR,
		qpu.AddFCEIL, qpu.AddFDX, qpu.AddFDY, qpu.AddFTOIN, qpu.AddFTOIZ,
		qpu.AddFTOUZ, qpu.AddFTOC:
		return true
	}
	return false
}

func (c *Compile) tryCopyProp(inst *Inst, movs map[uint32]*Inst) bool {
	progress := false
	for s := 0; s < inst.NumSrc(); s++ {
		src := inst.Src[s]
		if !src.IsTemp() {
			continue
		}

		mov := movs[src.Index]
		if mov == nil {
			def := c.Def(int(src.Index))
			if !isCopyMov(def) {
				continue
			}
			// The move's source must also be defined once, or its value
			// at the move could differ from its value here.
			srcDef := c.Def(int(def.Src[0].Index))
			if srcDef == nil || (isCopyMov(srcDef) && srcDef.Src[0] == src) {
				continue
			}
			mov = def
		}
		if mov.Src[0] == src {
			continue
		}

		unpack := mov.Mul.AUnpack
		if unpack != qpu.UnpackNone {
			if inst.HasUnpack(s) {
				continue
			}
			if mov.UnpacksF32() != inst.UnpacksF32() ||
				mov.UnpacksF16() != inst.UnpacksF16() {
				continue
			}
			if unpack == qpu.UnpackAbs && inst.IsAdd() && absUnsafe(inst.Add.Op) {
				continue
			}
		}

		inst.Src[s] = mov.Src[0]
		if unpack != qpu.UnpackNone {
			inst.SetUnpack(s, unpack)
		}
		progress = true
	}
	return progress
}

// applyKills drops the moves invalidated by a write of inst's
// destination.
func applyKills(movs map[uint32]*Inst, inst *Inst) {
	if !inst.Dst.IsTemp() {
		return
	}
	for t, mov := range movs {
		if mov.Dst == inst.Dst || mov.Src[0] == inst.Dst {
			delete(movs, t)
		}
	}
}

func (c *Compile) copyPropagateOnce() bool {
	progress := false
	for _, b := range c.Blocks() {
		movs := make(map[uint32]*Inst)
		for _, inst := range c.BlockInsts(b) {
			if c.tryCopyProp(inst, movs) {
				progress = true
			}

			applyKills(movs, inst)
			if isCopyMov(inst) {
				movs[inst.Dst.Index] = inst
			}
		}
	}
	return progress
}

// OptCopyPropagate rewrites reads of plain moves to read the move's
// source, so the moves can be removed as dead code.
func (c *Compile) OptCopyPropagate() bool {
	progress := false
	for c.copyPropagateOnce() {
		progress = true
	}
	return progress
}
