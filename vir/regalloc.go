package vir

import (
	"golang.org/x/tools/container/intsets"

	"github.com/gogpu/v3d/qpu"
	"github.com/gogpu/v3d/ra"
)

// Register classes are described by which kinds of register a temp may
// live in.
const (
	classBitPhys = 1 << 0
	classBitAcc  = 1 << 1
	classBitR5   = 1 << 4
)

const (
	accCount = 6
	// maxThreadIndex bounds qpu.DeviceInfo.ThreadIndex for 1, 2 and 4
	// threads.
	maxThreadIndex = 2

	// Heuristics of the register selector.
	availableRFThreshold = 5
	priorityThreshold    = 20
)

// raClasses are the allocation classes for one thread count.
type raClasses struct {
	phys, physOrAcc, any *ra.Class
}

type raRegSet struct {
	set     *ra.RegSet
	classes [maxThreadIndex]raClasses
}

func (c *Compile) classBitsAny() uint8 {
	if c.dev.HasAccumulators {
		return classBitPhys | classBitAcc | classBitR5
	}
	return classBitPhys
}

// physIndex is the allocator register number of rf0. Accumulators come
// first on devices that have them.
func (c *Compile) physIndex() int {
	if c.dev.HasAccumulators {
		return accCount
	}
	return 0
}

func newRARegSet(d *qpu.DeviceInfo) *raRegSet {
	physIndex := 0
	if d.HasAccumulators {
		physIndex = accCount
	}
	rs := &raRegSet{set: ra.NewRegSet(physIndex + qpu.PhysCount)}
	for idx := range rs.classes {
		cls := &rs.classes[idx]
		cls.phys = rs.set.NewClass()
		cls.any = rs.set.NewClass()
		if d.HasAccumulators {
			cls.physOrAcc = rs.set.NewClass()
			for acc := 0; acc < accCount; acc++ {
				cls.any.AddReg(acc)
				if acc != int(qpu.WaddrR5) {
					cls.physOrAcc.AddReg(acc)
				}
			}
		}
		for i := 0; i < qpu.PhysCount>>idx; i++ {
			r := physIndex + i
			cls.phys.AddReg(r)
			cls.any.AddReg(r)
			if cls.physOrAcc != nil {
				cls.physOrAcc.AddReg(r)
			}
		}
	}
	rs.set.Finalize()
	return rs
}

func (rs *raRegSet) class(idx int, bits uint8) *ra.Class {
	cls := &rs.classes[idx]
	switch {
	case cls.physOrAcc == nil || bits == classBitPhys:
		return cls.phys
	case bits&classBitR5 != 0:
		return cls.any
	}
	return cls.physOrAcc
}

// raState is the allocator state of one coloring attempt.
type raState struct {
	c   *Compile
	rs  *raRegSet
	g   *ra.Graph
	idx int

	physIndex int
	// tempBase is the node number of temp 0; the nodes before it stand
	// for the accumulators or the implicit rf0 writes.
	tempBase int

	classBits  []uint8
	programEnd intsets.Sparse
	ldunifDst  intsets.Sparse

	nextAcc  int
	nextPhys int
}

func (s *raState) node(t int) int { return s.tempBase + t }

func (s *raState) priority(t int) int {
	return s.c.TempEnd[t] - s.c.TempStart[t]
}

func (s *raState) unused(t int) bool {
	return s.c.TempStart[t] > s.c.TempEnd[t]
}

// liveAcross calls fn for every temp live both before and after ip.
func (s *raState) liveAcross(ip int, fn func(t int)) {
	for t := 0; t < s.c.numTemps; t++ {
		if s.c.TempStart[t] < ip && s.c.TempEnd[t] > ip {
			fn(t)
		}
	}
}

func (s *raState) updateForInst(inst *Inst, ip int, lastLdvaryIP int) {
	c := s.c
	d := c.dev

	if inst.WritesR4Implicitly(d) {
		s.liveAcross(ip, func(t int) {
			s.g.AddInterference(int(qpu.WaddrR4), s.node(t))
		})
	}
	if inst.WritesRF0Implicitly(d) {
		s.liveAcross(ip, func(t int) {
			s.g.AddInterference(0, s.node(t))
		})
	}

	if inst.Kind == InstALU && inst.Dst.IsTemp() {
		t := int(inst.Dst.Index)
		if inst.IsAdd() && (inst.Add.Op.IsSFU() || inst.Add.Op.IsLDVPM()) {
			s.classBits[t] &= classBitPhys
		}

		// Payload registers are pinned to their own rf.
		if inst.IsMul() && inst.Mul.Op == qpu.MulMOV && inst.Src[0].File == FileReg &&
			c.payloadReg(inst.Src[0].Index) {
			s.g.SetNodeReg(s.node(t), s.physIndex+int(inst.Src[0].Index))
		}
	}

	if d.Ver >= 71 {
		for i := 0; i < inst.NumSrc(); i++ {
			if inst.Src[i].File != FileReg || inst.Src[i].Index != 0 {
				continue
			}
			// rf0 holds the ldvary result until it is read here.
			for t := 0; t < c.numTemps; t++ {
				if c.TempStart[t] < ip && c.TempEnd[t] > lastLdvaryIP {
					s.g.AddInterference(0, s.node(t))
				}
			}
			break
		}
	}

	if inst.Dst.IsTemp() {
		t := int(inst.Dst.Index)
		if d.HasAccumulators {
			// Only ldunif can load straight into r5.
			if !inst.Sig.Ldunif {
				s.classBits[t] &^= classBitR5
			}
		} else {
			if inst.Sig.Ldvary {
				s.g.AddInterference(0, s.node(t))
			}
			if inst.Sig.Ldunif || inst.Sig.Ldunifa {
				s.ldunifDst.Insert(t)
			}
		}
	}

	// Accumulators do not survive a thread switch.
	if inst.Sig.Thrsw && d.HasAccumulators {
		s.liveAcross(ip, func(t int) {
			s.classBits[t] &= classBitPhys
		})
	}
}

// buildGraph constructs the interference graph for the current liveness.
func (c *Compile) buildGraph() *raState {
	if c.raSet == nil {
		c.raSet = newRARegSet(c.dev)
	}
	if !c.liveValid {
		c.CalculateLiveIntervals()
	}

	s := &raState{
		c:         c,
		rs:        c.raSet,
		idx:       c.dev.ThreadIndex(c.threads),
		physIndex: c.physIndex(),
		classBits: make([]uint8, c.numTemps),
		nextPhys:  4,
	}
	if c.dev.Ver == 42 {
		s.nextPhys = 3
	}
	cls := &s.rs.classes[s.idx]

	if c.dev.HasAccumulators {
		s.tempBase = accCount
	} else {
		s.tempBase = 1
	}
	s.g = ra.NewGraph(s.rs.set, s.tempBase+c.numTemps)
	for n := 0; n < s.tempBase; n++ {
		s.g.SetNodeClass(n, cls.any)
		s.g.SetNodeReg(n, n)
	}
	s.g.SetSelector(ra.SelectorFunc(s.selectReg))

	anyBits := c.classBitsAny()
	for t := range s.classBits {
		s.classBits[t] = anyBits
	}

	lastLdvaryIP := -1
	var insts []*Inst
	c.ForEachInst(func(_ *Block, inst *Inst) {
		if inst.Sig.Ldvary {
			lastLdvaryIP = inst.IP
		}
		s.updateForInst(inst, inst.IP, lastLdvaryIP)
		insts = append(insts, inst)
	})

	// The final instructions of the program cannot use some of the low
	// register file entries.
	for _, inst := range insts[max(0, len(insts)-3):] {
		if inst.Dst.IsTemp() {
			s.programEnd.Insert(int(inst.Dst.Index))
		}
		for i := 0; i < inst.NumSrc(); i++ {
			if inst.Src[i].IsTemp() {
				s.programEnd.Insert(int(inst.Src[i].Index))
			}
		}
	}

	for t := 0; t < c.numTemps; t++ {
		bits := s.classBits[t]
		if c.physOnly.Has(t) {
			bits &= classBitPhys
		}
		s.g.SetNodeClass(s.node(t), s.rs.class(s.idx, bits))
	}

	for i := 0; i < c.numTemps; i++ {
		for j := i + 1; j < c.numTemps; j++ {
			if !(c.TempStart[i] >= c.TempEnd[j] || c.TempStart[j] >= c.TempEnd[i]) {
				s.g.AddInterference(s.node(i), s.node(j))
			}
		}
	}
	return s
}

func (s *raState) favorAccum(avail *intsets.Sparse, t int) bool {
	free := 0
	for i := 0; i < qpu.PhysCount && free < availableRFThreshold; i++ {
		if avail.Has(s.physIndex + i) {
			free++
		}
	}
	return free < availableRFThreshold || s.priority(t) <= priorityThreshold
}

func (s *raState) selectAccum(avail *intsets.Sparse) int {
	// r5 is only usable by ldunif, so take it when offered.
	if avail.Has(int(qpu.WaddrR5)) {
		return int(qpu.WaddrR5)
	}
	for i := 0; i < accCount; i++ {
		off := (s.nextAcc + i) % accCount
		if avail.Has(off) {
			s.nextAcc = off + 1
			return off
		}
	}
	return ra.NoReg
}

func (s *raState) selectRF(t int, avail *intsets.Sparse) int {
	v71 := s.c.dev.Ver >= 71

	// A plain ldunif on 7.x writes rf0; anything else needs ldunifrf.
	if v71 && s.ldunifDst.Has(t) && avail.Has(s.physIndex) {
		return s.physIndex
	}

	safeStart := 4
	if s.c.dev.Ver == 42 {
		safeStart = 3
	}
	if (s.programEnd.Has(t) || s.unused(t)) && s.nextPhys < safeStart {
		s.nextPhys = safeStart
	}

	for i := 0; i < qpu.PhysCount; i++ {
		off := (s.nextPhys + i) % qpu.PhysCount
		if v71 && off == 0 {
			continue
		}
		if avail.Has(s.physIndex + off) {
			s.nextPhys = off + 1
			return s.physIndex + off
		}
	}

	if v71 && avail.Has(s.physIndex) {
		s.nextPhys = 1
		return s.physIndex
	}
	return ra.NoReg
}

func (s *raState) selectReg(n int, avail *intsets.Sparse) int {
	t := n - s.tempBase
	if t < 0 {
		return avail.Min()
	}

	if s.unused(t) && avail.Has(s.physIndex) {
		return s.physIndex
	}

	if s.c.dev.HasAccumulators && s.favorAccum(avail, t) {
		if r := s.selectAccum(avail); r != ra.NoReg {
			return r
		}
	}
	if r := s.selectRF(t, avail); r != ra.NoReg {
		return r
	}
	if s.c.dev.HasAccumulators {
		return s.selectAccum(avail)
	}
	return ra.NoReg
}

// result maps every temp to its hardware register.
func (s *raState) result() []qpu.Reg {
	regs := make([]qpu.Reg, s.c.numTemps)
	for t := range regs {
		r := s.g.NodeReg(s.node(t))
		if r == ra.NoReg {
			// Temps never referenced are left uncolored.
			r = s.physIndex
		}
		if r < s.physIndex {
			regs[t] = qpu.Reg{Magic: true, Index: uint8(qpu.WaddrR0) + uint8(r)}
		} else {
			regs[t] = qpu.Reg{Index: uint8(r - s.physIndex)}
		}
	}
	return regs
}

func (c *Compile) tmuSpillingAllowed() bool {
	return c.cfg.MaxTMUSpills < 0 || c.spills+c.fills < c.cfg.MaxTMUSpills
}

// isEndOfTMUSequence reports whether inst collects the last result of a
// TMU operation before the next one is set up.
func (c *Compile) isEndOfTMUSequence(inst *Inst) bool {
	if !endsTMU(inst) {
		return false
	}
	for scan := c.Next(inst); scan != nil; scan = c.Next(scan) {
		if endsTMU(scan) {
			return false
		}
		if scan.WritesTMU(c.dev) {
			return true
		}
	}
	return true
}

func endsTMU(inst *Inst) bool {
	return inst.Sig.Ldtmu || (inst.IsAdd() && inst.Add.Op == qpu.AddTMUWT)
}

// loopScale multiplies the spill cost of an access once per enclosing
// loop.
const loopScale = 10.0

// loopDepths returns the loop nesting depth of each block, indexed by
// program order. A back edge to an earlier block encloses every block
// from its target to its source.
func (c *Compile) loopDepths() []int {
	depth := make([]int, len(c.order))
	for _, b := range c.Blocks() {
		for _, id := range b.Successors {
			if id == NoBlock {
				continue
			}
			if h := c.blocks[id]; h.Index >= 0 && h.Index <= b.Index {
				for i := h.Index; i <= b.Index; i++ {
					depth[i]++
				}
			}
		}
	}
	return depth
}

// spillCosts returns the cost of spilling each temp and drops from the
// spillable set the temps that cannot be spilled where they are accessed.
func (c *Compile) spillCosts() []float64 {
	const tmuScale = 10.0

	depths := c.loopDepths()
	costs := make([]float64, c.numTemps)
	startedLastSeg := false
	for _, b := range c.Blocks() {
		blockScale := 1.0
		for i := 0; i < depths[b.Index]; i++ {
			blockScale *= loopScale
		}

		inTMUSequence := false
		rtopHazard := false
		for _, inst := range c.BlockInsts(b) {
			if inst.IsLastThrsw {
				startedLastSeg = true
			}

			// No thread switch may be added once output writes began.
			noSpilling := (c.threads > 1 && startedLastSeg) ||
				!c.tmuSpillingAllowed() || rtopHazard

			for i := 0; i < inst.NumSrc(); i++ {
				if !inst.Src[i].IsTemp() {
					continue
				}
				t := int(inst.Src[i].Index)
				switch {
				case c.spillType(t) != spillTMU:
					costs[t] += blockScale
				case !noSpilling:
					scale := 1.0
					if inTMUSequence {
						scale = 3
					}
					costs[t] += tmuScale * scale * blockScale
				default:
					c.spillable.Remove(t)
				}
			}

			if inst.Dst.IsTemp() {
				t := int(inst.Dst.Index)
				switch {
				case c.spillType(t) != spillTMU:
					// Rematerialized at each use.
				case !noSpilling:
					costs[t] += tmuScale * blockScale
				default:
					c.spillable.Remove(t)
				}
			}

			// The ldvary result cannot be carried across a thread switch.
			if inst.Sig.Ldvary && inst.Dst.IsTemp() {
				c.spillable.Remove(int(inst.Dst.Index))
			}

			if c.isEndOfTMUSequence(inst) {
				inTMUSequence = false
			}
			if inst.WritesTMU(c.dev) {
				inTMUSequence = true
			}

			switch {
			case inst.IsMul() && inst.Mul.Op == qpu.MulMULTOP:
				rtopHazard = true
			case inst.IsMul() && inst.Mul.Op == qpu.MulUMUL24:
				rtopHazard = false
			}
		}
	}
	return costs
}

// chooseSpillNode sets the spill costs of the spillable temps and returns
// the best temp to spill, or -1.
func (s *raState) chooseSpillNode() int {
	c := s.c
	costs := c.spillCosts()
	for t := 0; t < c.numTemps; t++ {
		if c.spillable.Has(t) {
			s.g.SetSpillCost(s.node(t), costs[t])
		}
	}

	n := s.g.BestSpillNode()
	if n < s.tempBase {
		return -1
	}
	return n - s.tempBase
}

// RegisterAllocate assigns a hardware register to every temp, spilling
// temps as needed. It reports false when the program cannot be colored at
// the current thread count.
func (c *Compile) RegisterAllocate() ([]qpu.Reg, bool) {
	for {
		s := c.buildGraph()
		if s.g.Allocate() {
			return s.result(), true
		}

		t := s.chooseSpillNode()
		if t < 0 {
			c.raFailed("no spill candidate")
			return nil, false
		}

		typ := c.spillType(t)
		if typ == spillTMU && !c.tmuSpillingAllowed() {
			c.raFailed("TMU spill budget exhausted")
			return nil, false
		}

		c.spillReg(t, typ)

		if typ == spillTMU && c.cfg.MaxTMUSpills >= 0 && c.spills+c.fills > c.cfg.MaxTMUSpills {
			c.raFailed("TMU spill budget exceeded")
			return nil, false
		}
	}
}

func (c *Compile) raFailed(reason string) {
	if c.log.If("ra") {
		c.log.Printw("register allocation failed", "reason", reason,
			"threads", c.threads, "temps", c.numTemps, "spills", c.spills, "fills", c.fills)
	}
	if c.cfg.Debug.RA {
		c.debugf("%v shader %d.%d: register allocation failed at %d threads: %s",
			c.cfg.Stage.ShortName(), c.cfg.ProgramID, c.cfg.VariantID, c.threads, reason)
	}
}
