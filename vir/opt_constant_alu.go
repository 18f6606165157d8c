package vir

import (
	"math"

	"github.com/gogpu/v3d/qpu"
)

// foldable reports whether inst is a plain computation whose inputs may
// all be known.
func foldable(inst *Inst) bool {
	if inst.Kind != InstALU || inst.IsAdd() == inst.IsMul() {
		return false
	}
	if inst.NumSrc() < 1 || inst.Dst.IsNull() || inst.ReadsUniform() {
		return false
	}
	if inst.Flags != (qpu.Flags{}) || inst.Pack() != qpu.PackNone {
		return false
	}
	for s := 0; s < inst.NumSrc(); s++ {
		if inst.HasUnpack(s) {
			return false
		}
	}
	sig := inst.Sig
	sig.SmallImmA, sig.SmallImmB, sig.SmallImmC, sig.SmallImmD = false, false, false, false
	return sig.IsZero()
}

func (c *Compile) constantSources(inst *Inst) ([2]uint32, bool) {
	var v [2]uint32
	for s := 0; s < inst.NumSrc(); s++ {
		src := inst.Src[s]
		if src.File == FileSmallImm {
			v[s] = src.Index
			continue
		}
		u, ok := c.constantUniform(src)
		if !ok {
			return v, false
		}
		v[s] = u
	}
	return v, true
}

// ordinaryFloat reports whether f is neither NaN, infinite nor denormal,
// which the hardware may treat differently from Go.
func ordinaryFloat(bits uint32) bool {
	exp := bits >> 23 & 0xff
	if exp == 0xff {
		return false
	}
	return exp != 0 || bits&0x7fffff == 0
}

func foldFloat(op func(a, b float32) float32, a, b uint32) (uint32, bool) {
	if !ordinaryFloat(a) || !ordinaryFloat(b) {
		return 0, false
	}
	r := math.Float32bits(op(math.Float32frombits(a), math.Float32frombits(b)))
	if !ordinaryFloat(r) {
		return 0, false
	}
	return r, true
}

// f32ToF16 converts a float bit pattern to half precision when the
// conversion is exact and the result is a normal half or zero.
func f32ToF16(bits uint32) (uint16, bool) {
	sign := uint16(bits>>16) & 0x8000
	exp := int(bits>>23&0xff) - 127
	mant := bits & 0x7fffff
	if bits&0x7fffffff == 0 {
		return sign, true
	}
	if !ordinaryFloat(bits) || exp < -14 || exp > 15 || mant&0x1fff != 0 {
		return 0, false
	}
	return sign | uint16(exp+15)<<10 | uint16(mant>>13), true
}

func signExtend24(v uint32) int32 {
	return int32(v<<8) >> 8
}

func foldAdd(op qpu.AddOp, a, b uint32) (uint32, bool) {
	switch op {
	case qpu.AddADD:
		return a + b, true
	case qpu.AddSUB:
		return a - b, true
	case qpu.AddAND:
		return a & b, true
	case qpu.AddOR:
		return a | b, true
	case qpu.AddXOR:
		return a ^ b, true
	case qpu.AddSHL:
		return a << (b & 31), true
	case qpu.AddSHR:
		return a >> (b & 31), true
	case qpu.AddASR:
		return uint32(int32(a) >> (b & 31)), true
	case qpu.AddMIN:
		return uint32(min(int32(a), int32(b))), true
	case qpu.AddMAX:
		return uint32(max(int32(a), int32(b))), true
	case qpu.AddUMIN:
		return min(a, b), true
	case qpu.AddUMAX:
		return max(a, b), true
	case qpu.AddNOT:
		return ^a, true
	case qpu.AddNEG:
		return -a, true
	case qpu.AddFADD:
		return foldFloat(func(x, y float32) float32 { return x + y }, a, b)
	case qpu.AddFSUB:
		return foldFloat(func(x, y float32) float32 { return x - y }, a, b)
	case qpu.AddFMIN, qpu.AddFMAX:
		// Signed zeroes order differently on the hardware.
		if a&0x7fffffff == 0 && b&0x7fffffff == 0 && a != b {
			return 0, false
		}
		if op == qpu.AddFMIN {
			return foldFloat(func(x, y float32) float32 { return min(x, y) }, a, b)
		}
		return foldFloat(func(x, y float32) float32 { return max(x, y) }, a, b)
	case qpu.AddVFPACK:
		lo, ok := f32ToF16(a)
		if !ok {
			return 0, false
		}
		hi, ok := f32ToF16(b)
		if !ok {
			return 0, false
		}
		return uint32(hi)<<16 | uint32(lo), true
	}
	return 0, false
}

func foldMul(op qpu.MulOp, a, b uint32) (uint32, bool) {
	switch op {
	case qpu.MulUMUL24:
		return (a & 0xffffff) * (b & 0xffffff), true
	case qpu.MulSMUL24:
		return uint32(signExtend24(a) * signExtend24(b)), true
	case qpu.MulFMUL:
		return foldFloat(func(x, y float32) float32 { return x * y }, a, b)
	}
	return 0, false
}

// OptConstantALU evaluates instructions whose inputs are all constants and
// replaces each with a move from a constant uniform.
func (c *Compile) OptConstantALU() bool {
	progress := false
	c.ForEachInst(func(_ *Block, inst *Inst) {
		if !foldable(inst) {
			return
		}
		v, ok := c.constantSources(inst)
		if !ok {
			return
		}

		var result uint32
		if inst.IsAdd() {
			result, ok = foldAdd(inst.Add.Op, v[0], v[1])
		} else {
			result, ok = foldMul(inst.Mul.Op, v[0], v[1])
		}
		if !ok {
			return
		}

		dst := inst.Dst
		wasDef := dst.IsTemp() && c.defs[dst.Index] == inst.ID

		c.cursor = BeforeInst(inst)
		unif := c.UniformUI(result)
		mov := c.MOVDest(dst, unif)
		if wasDef {
			c.defs[dst.Index] = mov.ID
		}

		if c.log.If("opt") {
			c.log.Printw("folded constant", "inst", inst.ID, "value", result)
		}
		c.clearCursor()
		c.RemoveInstruction(inst)
		progress = true
	})
	return progress
}
