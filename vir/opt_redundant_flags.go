package vir

import (
	"github.com/gogpu/v3d/qpu"
)

// flagsOpEqual reports whether a and b compute the same flags.
func flagsOpEqual(a, b *Inst) bool {
	if a.Add != b.Add || a.Mul != b.Mul || a.Flags != b.Flags {
		return false
	}
	for s := 0; s < a.NumSrc(); s++ {
		if a.Src[s] != b.Src[s] {
			return false
		}
	}
	return true
}

func clearPush(inst *Inst) {
	inst.Flags.APF = qpu.PFNone
	inst.Flags.MPF = qpu.PFNone
}

func (c *Compile) redundantFlagsBlock(b *Block) bool {
	progress := false
	var last *Inst
	readSince := false

	for _, inst := range c.BlockInsts(b) {
		// Flags do not survive a thread switch.
		if inst.Kind != InstALU || inst.Sig.Thrsw ||
			inst.Flags.AUF != qpu.UFNone || inst.Flags.MUF != qpu.UFNone {
			last = nil
			continue
		}
		if last != nil && inst.ReadsFlags() {
			readSince = true
		}

		if inst.PushesFlags() {
			switch {
			case inst.ReadsFlags():
				last = nil
			case last != nil && flagsOpEqual(inst, last):
				if readSince {
					clearPush(inst)
				} else {
					clearPush(last)
					last = inst
				}
				progress = true
			default:
				last = inst
				readSince = false
			}
		}

		if last != nil && inst.Dst.IsTemp() {
			for s := 0; s < last.NumSrc(); s++ {
				if last.Src[s] == inst.Dst {
					last = nil
					break
				}
			}
		}
	}
	return progress
}

// OptRedundantFlags removes flag pushes that recompute the flags an
// earlier instruction in the block already produced.
func (c *Compile) OptRedundantFlags() bool {
	progress := false
	for _, b := range c.Blocks() {
		if c.redundantFlagsBlock(b) {
			progress = true
		}
	}
	return progress
}
