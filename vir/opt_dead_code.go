package vir

import (
	"golang.org/x/tools/container/intsets"

	"github.com/gogpu/v3d/qpu"
)

func writesUnifa(inst *Inst) bool {
	return inst.Dst.IsMagic(qpu.WaddrUnifa)
}

// isLastLdunifa reports whether no other ldunifa reads from the same
// unifa setup after inst.
func (c *Compile) isLastLdunifa(inst *Inst) bool {
	for scan := c.Next(inst); scan != nil; scan = c.Next(scan) {
		if writesUnifa(scan) {
			return true
		}
		if scan.IsLdunifa() {
			return false
		}
	}
	return true
}

// isFirstLdunifa reports whether inst is the first ldunifa after the
// unifa write it reads from.
func (c *Compile) isFirstLdunifa(inst *Inst) bool {
	for scan := c.Prev(inst); scan != nil; scan = c.Prev(scan) {
		if writesUnifa(scan) {
			return true
		}
		if scan.IsLdunifa() {
			return false
		}
	}
	return true
}

// incrementUnifaAddress makes the unifa write feeding ldunifa point one
// word further, so the first load of the sequence can be dropped.
func (c *Compile) incrementUnifaAddress(ldunifa *Inst) bool {
	var unifa *Inst
	for scan := c.Prev(ldunifa); scan != nil; scan = c.Prev(scan) {
		if writesUnifa(scan) {
			unifa = scan
			break
		}
	}
	if unifa == nil || unifa.Cond() != qpu.CondNone {
		return false
	}

	defer c.clearCursor()

	switch {
	case unifa.IsMul() && unifa.Mul.Op == qpu.MulMOV && !unifa.HasUnpack(0):
		c.cursor = AfterInst(unifa)
		c.ADDDest(Magic(qpu.WaddrUnifa), unifa.Src[0], c.UniformUI(4))
	case unifa.IsAdd() && unifa.Add.Op == qpu.AddADD &&
		!unifa.HasUnpack(0) && !unifa.HasUnpack(1):
		c.cursor = AfterInst(unifa)
		tmp := c.ADD(unifa.Src[1], c.UniformUI(4))
		c.ADDDest(Magic(qpu.WaddrUnifa), unifa.Src[0], tmp)
	default:
		return false
	}
	c.RemoveInstruction(unifa)
	return true
}

// canWriteToNull reports whether the result of inst may be discarded.
// SFU requests must land in a register.
func canWriteToNull(inst *Inst) bool {
	return !inst.UsesSFU()
}

func (c *Compile) deadCodeOnce() bool {
	progress := false
	c.clearCursor()

	var used intsets.Sparse
	c.ForEachInst(func(_ *Block, inst *Inst) {
		for s := 0; s < inst.NumSrc(); s++ {
			if inst.Src[s].IsTemp() {
				used.Insert(int(inst.Src[s].Index))
			}
		}
	})

	for _, b := range c.Blocks() {
		var lastFlagsWrite *Inst
		for _, inst := range c.BlockInsts(b) {
			if inst.Removed() {
				continue
			}
			if inst.ReadsFlags() {
				lastFlagsWrite = nil
			}

			if !inst.Dst.IsNull() && !(inst.Dst.IsTemp() && !used.Has(int(inst.Dst.Index))) {
				continue
			}

			ldunifa := inst.IsLdunifa()
			if inst.HasSideEffects() && !ldunifa {
				continue
			}

			first, last := false, false
			if ldunifa {
				first = c.isFirstLdunifa(inst)
				last = c.isLastLdunifa(inst)
			}

			if inst.WritesFlags() {
				// A push with no reader before it is overwritten is dead.
				if lastFlagsWrite != nil && inst.PushesFlags() {
					lastFlagsWrite.Flags.APF = qpu.PFNone
					lastFlagsWrite.Flags.MPF = qpu.PFNone
					lastFlagsWrite.Flags.AUF = qpu.UFNone
					lastFlagsWrite.Flags.MUF = qpu.UFNone
					progress = true
				}
				lastFlagsWrite = inst
			}

			if inst.WritesFlags() || (ldunifa && !first && !last) {
				if inst.Dst.IsTemp() && canWriteToNull(inst) {
					if c.defs[inst.Dst.Index] == inst.ID {
						c.defs[inst.Dst.Index] = NoInst
					}
					inst.Dst = Null
					progress = true
				}
				continue
			}

			if first && !last {
				if !c.incrementUnifaAddress(inst) {
					continue
				}
			}

			if lastFlagsWrite == inst {
				lastFlagsWrite = nil
			}
			c.RemoveInstruction(inst)
			progress = true
		}
	}
	return progress
}

// OptDeadCode removes instructions whose results are never read and that
// have no side effects.
func (c *Compile) OptDeadCode() bool {
	progress := false
	for c.deadCodeOnce() {
		progress = true
	}
	return progress
}
