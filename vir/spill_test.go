package vir

import (
	"testing"

	"github.com/gogpu/v3d/qpu"
)

func references(c *Compile, r Reg) bool {
	found := false
	c.ForEachInst(func(_ *Block, inst *Inst) {
		if inst.Dst == r {
			found = true
		}
		for s := 0; s < inst.NumSrc(); s++ {
			if inst.Src[s] == r {
				found = true
			}
		}
	})
	return found
}

func countInsts(c *Compile, pred func(*Inst) bool) int {
	n := 0
	c.ForEachInst(func(_ *Block, inst *Inst) {
		if pred(inst) {
			n++
		}
	})
	return n
}

func TestSpillTMURoundTrip(t *testing.T) {
	c := newTestCompile(qpu.V42())
	x := c.ADD(c.EIDX(), c.TIDX())
	def := c.Def(int(x.Index))
	y := c.ADD(x, x)
	c.MOVDest(Magic(qpu.WaddrTLB), y)

	c.spillReg(int(x.Index), spillTMU)

	if c.Spills() != 1 || c.Fills() != 1 {
		t.Errorf("spills:fills = %d:%d, want 1:1", c.Spills(), c.Fills())
	}
	if c.SpillSize() != qpu.Channels*4 {
		t.Errorf("spill size = %d, want %d", c.SpillSize(), qpu.Channels*4)
	}
	if references(c, x) {
		t.Errorf("%v still referenced:\n%s", x, c.Dump())
	}
	if c.Spillable(int(x.Index)) {
		t.Error("spilled temp is still spillable")
	}

	// The value is stored right after it is computed.
	st := c.Next(def)
	if st == nil || !st.Dst.IsMagic(qpu.WaddrTMUD) || st.Src[0] != def.Dst {
		t.Fatalf("store does not follow the definition:\n%s", c.Dump())
	}

	// Both reads share one fill.
	use := c.Def(int(y.Index))
	if use.Src[0] != use.Src[1] {
		t.Errorf("reads %v and %v, want one fill", use.Src[0], use.Src[1])
	}
	if fill := c.Def(int(use.Src[0].Index)); fill == nil || !fill.Sig.Ldtmu {
		t.Errorf("%v is not loaded from the TMU", use.Src[0])
	}

	tests := []struct {
		name string
		pred func(*Inst) bool
		want int
	}{
		{"tmud", func(i *Inst) bool { return i.Dst.IsMagic(qpu.WaddrTMUD) }, 1},
		{"tmuau", func(i *Inst) bool { return i.Dst.IsMagic(qpu.WaddrTMUAU) }, 2},
		{"thrsw", func(i *Inst) bool { return i.Sig.Thrsw }, 2},
		{"tmuwt", func(i *Inst) bool { return i.Add.Op == qpu.AddTMUWT }, 1},
		{"ldtmu", func(i *Inst) bool { return i.Sig.Ldtmu }, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := countInsts(c, tt.pred); got != tt.want {
				t.Errorf("%d instructions, want %d", got, tt.want)
			}
		})
	}
	if c.LastThrsw() != nil {
		t.Error("spill thread switches became the last thread switch")
	}
}

func TestSpillUniform(t *testing.T) {
	c := newTestCompile(qpu.V42())
	u := c.Uniform(UniformUBOAddr, 3)
	def := c.Def(int(u.Index))
	a := c.ADD(u, c.EIDX())
	b := c.ADD(a, u)
	c.MOVDest(Magic(qpu.WaddrTLB), b)

	if typ := c.spillType(int(u.Index)); typ != spillUniform {
		t.Fatalf("spill type = %v, want uniform", typ)
	}
	c.spillReg(int(u.Index), spillUniform)

	if !def.Removed() {
		t.Error("original load kept")
	}
	if references(c, u) {
		t.Errorf("%v still referenced", u)
	}
	reads := []Reg{c.Def(int(a.Index)).Src[0], c.Def(int(b.Index)).Src[1]}
	for _, r := range reads {
		ld := c.Def(int(r.Index))
		if ld == nil || !ld.IsLdunif() || ld.Uniform != def.Uniform {
			t.Errorf("%v is not a reload of the uniform", r)
		}
	}
	if c.Spills() != 0 || c.Fills() != 0 {
		t.Errorf("uniform spill counted as TMU traffic")
	}
}

func TestSpillReconstruct(t *testing.T) {
	c := newTestCompile(qpu.V71())
	x := c.EIDX()
	a := c.ADD(x, c.TIDX())
	b := c.SHL(x, a)
	c.MOVDest(Magic(qpu.WaddrTLB), b)

	if typ := c.spillType(int(x.Index)); typ != spillReconstruct {
		t.Fatalf("spill type = %v, want reconstruct", typ)
	}
	c.spillReg(int(x.Index), spillReconstruct)

	if references(c, x) {
		t.Errorf("%v still referenced", x)
	}
	eidx := countInsts(c, func(i *Inst) bool { return i.Add.Op == qpu.AddEIDX })
	if eidx != 2 {
		t.Errorf("%d eidx instructions, want one per use", eidx)
	}
}
