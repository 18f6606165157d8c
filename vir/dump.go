package vir

import (
	"fmt"
	"strings"

	"github.com/gogpu/v3d/qpu"
)

// sigMnemonic returns the name of the signal a slot-less instruction is
// written as, clearing it from s.
func sigMnemonic(s *qpu.Sig) string {
	names := []struct {
		set  *bool
		name string
	}{
		{&s.Ldunif, "ldunif"}, {&s.Ldunifrf, "ldunifrf"},
		{&s.Ldunifa, "ldunifa"}, {&s.Ldunifarf, "ldunifarf"},
		{&s.Ldtmu, "ldtmu"}, {&s.Ldvary, "ldvary"}, {&s.Ldvpm, "ldvpm"},
		{&s.Ldtlb, "ldtlb"}, {&s.Ldtlbu, "ldtlbu"},
	}
	for _, n := range names {
		if *n.set {
			*n.set = false
			return n.name
		}
	}
	return "nop"
}

// extraSigs lists the signals printed as instruction modifiers.
func extraSigs(s qpu.Sig) []string {
	var out []string
	if s.Thrsw {
		out = append(out, "thrsw")
	}
	if s.Ldtmu {
		out = append(out, "ldtmu")
	}
	if s.Ldvary {
		out = append(out, "ldvary")
	}
	if s.Wrtmuc {
		out = append(out, "wrtmuc")
	}
	if s.Ucb {
		out = append(out, "ucb")
	}
	if s.Rotate {
		out = append(out, "rot")
	}
	return out
}

// DumpInst renders inst in the textual VIR syntax.
func (c *Compile) DumpInst(inst *Inst) string {
	var b strings.Builder

	if inst.Kind == InstBranch {
		b.WriteString("br")
		if inst.Branch.Cond != qpu.BranchAlways {
			b.WriteString(".")
			b.WriteString(inst.Branch.Cond.String())
		}
		if t := c.Block(c.blocks[inst.block].Successors[0]); t != nil {
			fmt.Fprintf(&b, " %v", t)
		}
		return b.String()
	}

	if !inst.Dst.IsNull() {
		fmt.Fprintf(&b, "%v = ", inst.Dst)
	}

	sig := inst.Sig
	sig.SmallImmA, sig.SmallImmB, sig.SmallImmC, sig.SmallImmD = false, false, false, false
	var pf qpu.PF
	var uf qpu.UF
	switch {
	case inst.IsAdd():
		b.WriteString(inst.Add.Op.String())
		pf, uf = inst.Flags.APF, inst.Flags.AUF
	case inst.IsMul():
		b.WriteString(inst.Mul.Op.String())
		pf, uf = inst.Flags.MPF, inst.Flags.MUF
	default:
		b.WriteString(sigMnemonic(&sig))
	}

	mods := []string{inst.Cond().String(), pf.String(), uf.String()}
	if inst.IsAdd() || inst.IsMul() {
		mods = append(mods, inst.Pack().String())
	}
	mods = append(mods, extraSigs(sig)...)
	for _, m := range mods {
		if m != "" {
			b.WriteString(".")
			b.WriteString(m)
		}
	}

	for s := 0; s < inst.NumSrc(); s++ {
		if s == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(inst.Src[s].String())
		if u := inst.Unpack(s); u != qpu.UnpackNone {
			b.WriteString(".")
			b.WriteString(u.String())
		}
	}

	if inst.Uniform >= 0 && inst.Uniform < len(c.uniforms) {
		u := c.uniforms[inst.Uniform]
		fmt.Fprintf(&b, " [%v 0x%08x]", u.Contents, u.Data)
	}
	if inst.IsLastThrsw {
		b.WriteString(" # last thrsw")
	}
	return b.String()
}

// Dump renders the whole program, one block label followed by its
// instructions.
func (c *Compile) Dump() string {
	var b strings.Builder
	fmt.Fprintf(&b, ".stage %v\n", c.cfg.Stage)
	fmt.Fprintf(&b, ".threads %d\n", c.threads)
	for _, blk := range c.Blocks() {
		fmt.Fprintf(&b, "%v:\n", blk)
		for _, inst := range c.BlockInsts(blk) {
			b.WriteString("\t")
			b.WriteString(c.DumpInst(inst))
			b.WriteString("\n")
		}
	}
	return b.String()
}
