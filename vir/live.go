package vir

import (
	"golang.org/x/tools/container/intsets"

	"github.com/gogpu/v3d/qpu"
)

// partialUpdate tracks conditional or packed writes of a temp within a
// block, one entry per 8-bit channel of the register.
type partialUpdate struct {
	channels uint8
	insts    [4]*Inst
}

func packChannels(p qpu.Pack) uint8 {
	switch p {
	case qpu.PackL:
		return 0x3
	case qpu.PackH:
		return 0xc
	}
	return 0xf
}

// LiveIntervalsValid reports whether TempStart and TempEnd describe the
// current program.
func (c *Compile) LiveIntervalsValid() bool { return c.liveValid }

func (c *Compile) payloadReg(index uint32) bool {
	if c.dev.Ver >= 71 {
		return index >= 1 && index <= 3
	}
	return index <= 2
}

func (c *Compile) setupUse(b *Block, ip int, src Reg) {
	if !src.IsTemp() {
		return
	}
	t := int(src.Index)
	c.TempStart[t] = min(c.TempStart[t], ip)
	c.TempEnd[t] = max(c.TempEnd[t], ip)

	// A read before any full definition in the block is a use of the
	// value flowing in.
	if !b.Def.Has(t) {
		b.Use.Insert(t)
	}
}

func (c *Compile) setupDef(b *Block, ip int, partial map[int]*partialUpdate, inst *Inst) {
	if inst.Kind != InstALU || !inst.Dst.IsTemp() {
		return
	}
	t := int(inst.Dst.Index)
	c.TempStart[t] = min(c.TempStart[t], ip)
	c.TempEnd[t] = max(c.TempEnd[t], ip)

	b.DefOut.Insert(t)

	if b.Use.Has(t) || b.Def.Has(t) {
		return
	}

	// Writes predicated on the execution mask count as full writes, so a
	// temp set on both sides of an if is screened off before the if.
	cond := inst.Cond()
	if inst.CondIsExecMask {
		cond = qpu.CondNone
	}
	mask := packChannels(inst.Pack())
	if cond == qpu.CondNone && mask == 0xf {
		b.Def.Insert(t)
		return
	}

	// Sequences like
	//
	//	mov.ifa t0, t1
	//	mov.ifna t0, t2
	//
	// or a pair of half-register writes together define the temp.
	st := partial[t]
	if st == nil {
		st = &partialUpdate{}
		partial[t] = st
	}
	if cond == qpu.CondNone {
		st.channels |= mask
	} else {
		for ch := 0; ch < 4; ch++ {
			if mask&(1<<ch) == 0 {
				continue
			}
			prev := st.insts[ch]
			if prev != nil && prev.Cond() == cond.Complement() {
				st.channels |= 1 << ch
			} else {
				st.insts[ch] = inst
			}
		}
	}
	if st.channels == 0xf {
		b.Def.Insert(t)
	}
}

// clearFlagState forgets conditional writes once the flags they were
// predicated on are overwritten.
func clearFlagState(partial map[int]*partialUpdate) {
	for _, st := range partial {
		for ch := range st.insts {
			if st.insts[ch] != nil && st.insts[ch].Cond() != qpu.CondNone {
				st.insts[ch] = nil
			}
		}
	}
}

func (c *Compile) setupDefUse() {
	ip := 0
	for _, b := range c.Blocks() {
		b.StartIP = ip
		partial := make(map[int]*partialUpdate)

		for _, inst := range c.BlockInsts(b) {
			inst.IP = ip
			for s := 0; s < inst.NumSrc(); s++ {
				c.setupUse(b, ip, inst.Src[s])
			}
			c.setupDef(b, ip, partial, inst)

			if inst.WritesFlags() {
				clearFlagState(partial)
			}

			// Payload values sit in their registers from the start of
			// the program until moved out.
			if inst.Src[0].File == FileReg && c.payloadReg(inst.Src[0].Index) &&
				inst.Dst.IsTemp() {
				c.TempStart[inst.Dst.Index] = 0
			}
			ip++
		}
		b.EndIP = ip
	}
}

func (c *Compile) liveDependencies() bool {
	changed := false
	blocks := c.Blocks()
	var liveIn intsets.Sparse
	for i := len(blocks) - 1; i >= 0; i-- {
		b := blocks[i]
		for _, s := range c.Successors(b) {
			if b.LiveOut.UnionWith(&s.LiveIn) {
				changed = true
			}
		}

		liveIn.Difference(&b.LiveOut, &b.Def)
		liveIn.UnionWith(&b.Use)
		if b.LiveIn.UnionWith(&liveIn) {
			changed = true
		}
	}
	return changed
}

func (c *Compile) definDefoutDependencies() bool {
	changed := false
	for _, b := range c.Blocks() {
		for _, s := range c.Successors(b) {
			if s.DefIn.UnionWith(&b.DefOut) {
				changed = true
			}
			s.DefOut.UnionWith(&b.DefOut)
		}
	}
	return changed
}

func (c *Compile) computeStartEnd() {
	var x intsets.Sparse
	var buf []int
	for _, b := range c.Blocks() {
		x.Intersection(&b.LiveIn, &b.DefIn)
		buf = x.AppendTo(buf[:0])
		for _, t := range buf {
			c.TempStart[t] = min(c.TempStart[t], b.StartIP)
			c.TempEnd[t] = max(c.TempEnd[t], b.StartIP)
		}

		x.Intersection(&b.LiveOut, &b.DefOut)
		buf = x.AppendTo(buf[:0])
		for _, t := range buf {
			c.TempStart[t] = min(c.TempStart[t], b.EndIP)
			c.TempEnd[t] = max(c.TempEnd[t], b.EndIP)
		}
	}
}

// CalculateLiveIntervals numbers the instructions and computes the
// [TempStart, TempEnd] range of every temp. Temps that are never
// referenced get MaxInstruction and -1.
func (c *Compile) CalculateLiveIntervals() {
	c.TempStart = make([]int, c.numTemps)
	c.TempEnd = make([]int, c.numTemps)
	for t := range c.TempStart {
		c.TempStart[t] = MaxInstruction
		c.TempEnd[t] = -1
	}

	for _, b := range c.Blocks() {
		b.Def.Clear()
		b.Use.Clear()
		b.LiveIn.Clear()
		b.LiveOut.Clear()
		b.DefIn.Clear()
		b.DefOut.Clear()
	}

	c.setupDefUse()

	for c.liveDependencies() {
	}
	for c.definDefoutDependencies() {
	}

	c.computeStartEnd()
	c.liveValid = true
}

// MaxTemps returns the highest number of temps live at one instruction.
func (c *Compile) MaxTemps() int {
	if !c.liveValid {
		c.CalculateLiveIntervals()
	}
	n := c.NumInsts()
	if n == 0 {
		return 0
	}
	pressure := make([]int, n)
	for t := 0; t < c.numTemps; t++ {
		for ip := c.TempStart[t]; ip < c.TempEnd[t] && ip < n; ip++ {
			pressure[ip]++
		}
	}
	return max(0, maxOf(pressure))
}

func maxOf(v []int) int {
	m := 0
	for _, x := range v {
		m = max(m, x)
	}
	return m
}
