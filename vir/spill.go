package vir

import (
	"tlog.app/go/loc"

	"github.com/gogpu/v3d/qpu"
)

type spillType uint8

const (
	// spillTMU stores the value to scratch memory and loads it back.
	spillTMU spillType = iota
	// spillUniform reloads the uniform at each use.
	spillUniform
	// spillReconstruct recomputes the value at each use.
	spillReconstruct
)

var spillTypeNames = [...]string{"tmu", "uniform", "reconstruct"}

func (t spillType) String() string { return spillTypeNames[t] }

// tmuSpillConfig is the per-quad lookup configuration of spill and fill
// accesses.
const tmuSpillConfig = 0xffffff7f

func isReconstructable(inst *Inst) bool {
	if !inst.IsAdd() || inst.Flags != (qpu.Flags{}) || inst.Add.Pack != qpu.PackNone {
		return false
	}
	switch inst.Add.Op {
	case qpu.AddFXCD, qpu.AddFYCD, qpu.AddXCD, qpu.AddYCD,
		qpu.AddIID, qpu.AddEIDX, qpu.AddTIDX, qpu.AddSAMPID:
		return true
	}
	return false
}

func (c *Compile) spillType(t int) spillType {
	def := c.Def(t)
	switch {
	case def == nil:
		return spillTMU
	case def.Sig.Ldunif && def.Uniform >= 0:
		return spillUniform
	case isReconstructable(def):
		return spillReconstruct
	}
	return spillTMU
}

// setupSpillBase computes each channel's address in the spill area at
// the start of the program:
//
//	base = tidx * spill_size + eidx * 4 + spill_offset
func (c *Compile) setupSpillBase() {
	start := c.numTemps
	c.cursor = BeforeBlock(c.EntryBlock())

	threadOffset := c.UMUL24(c.TIDX(), c.Uniform(UniformSpillSizePerThread, 0))
	elementOffset := c.SHL(c.EIDX(), c.UniformUI(2))
	c.spillBase = c.ADD(c.ADD(threadOffset, elementOffset), c.Uniform(UniformSpillOffset, 0))

	for t := start; t < c.numTemps; t++ {
		c.spillable.Remove(t)
	}
	// The base lives across every thread switch.
	c.physOnly.Insert(int(c.spillBase.Index))
	c.clearCursor()
}

// emitSpillTMUA emits the TMU access of a spill store, or of a fill of
// the slot at offset, in which case it returns the loaded temp.
func (c *Compile) emitSpillTMUA(offset uint32, cond qpu.Cond, fill bool) Reg {
	off := c.UniformUI(offset)
	a := c.ADDDest(Magic(qpu.WaddrTMUAU), c.spillBase, off)
	a.Flags.AC = cond
	a.LdtmuCount = 1
	a.Uniform = c.GetUniformIndex(UniformConstant, tmuSpillConfig)

	c.Thrsw()

	if !fill {
		c.TMUWT()
		return Null
	}
	dst := c.LDTMU()
	c.physOnly.Insert(int(dst.Index))
	return dst
}

// emitTMUSpill stores the value written by inst after position. A
// postponed spill (position != inst) stores through the temp allocated
// for it and ignores inst's predicate, since the slot may have been
// written several times.
func (c *Compile) emitTMUSpill(inst *Inst, spillTemp Reg, position *Inst, offset uint32) {
	c.cursor = AfterInst(position)
	cond := inst.Cond()
	if inst == position {
		inst.Dst = c.GetTemp()
	} else {
		inst.Dst = spillTemp
		cond = qpu.CondNone
	}

	st := c.MOVDest(Magic(qpu.WaddrTMUD), inst.Dst)
	st.Flags.MC = cond
	c.emitSpillTMUA(offset, cond, false)
	c.spills++
	c.tmuDirtyRCL = true
}

// spillReg rewrites the program so that temp t no longer needs a
// register across its whole live range.
func (c *Compile) spillReg(t int, typ spillType) {
	if c.log.If("spill") {
		c.log.Printw("spill", "temp", t, "type", typ, "threads", c.threads, "from", loc.Caller(1))
	}
	if c.cfg.Debug.Spills {
		c.debugf("spilling t%d (%v)", t, typ)
	}

	savedLdunifOpt := c.disableLdunifOpt
	c.disableLdunifOpt = true
	lastThrsw, lastThrswAtTopLevel := c.lastThrsw, c.lastThrswAtTopLevel
	start := c.numTemps

	var (
		offset   uint32
		uniform  UniformSlot
		remakeOp qpu.AddOp
	)
	switch typ {
	case spillTMU:
		if c.spillBase.IsNull() {
			c.setupSpillBase()
		}
		offset = uint32(c.spillSize)
		c.spillSize += qpu.Channels * 4
	case spillUniform:
		uniform = c.uniforms[c.Def(t).Uniform]
	case spillReconstruct:
		remakeOp = c.Def(t).Add.Op
	}

	var (
		seqStart      *Inst
		postponed     *Inst
		postponedTemp Reg
	)
	for _, b := range c.Blocks() {
		for _, inst := range c.BlockInsts(b) {
			if inst.Removed() {
				continue
			}

			// Spill code cannot go inside a TMU sequence: spills wait
			// for its end and fills move before its start.
			if typ == spillTMU && c.isEndOfTMUSequence(inst) {
				if postponed != nil {
					c.emitTMUSpill(postponed, postponedTemp, inst, offset)
				}
				seqStart = nil
				postponed = nil
			}
			if typ == spillTMU && seqStart == nil && inst.WritesTMU(c.dev) {
				seqStart = inst
			}

			filled := -1
			for i := 0; i < inst.NumSrc(); i++ {
				if !inst.Src[i].IsTemp() || int(inst.Src[i].Index) != t {
					continue
				}
				if filled >= 0 {
					inst.Src[i] = inst.Src[filled]
					continue
				}

				c.cursor = BeforeInst(inst)
				switch typ {
				case spillUniform:
					inst.Src[i] = c.Uniform(uniform.Contents, uniform.Data)
				case spillReconstruct:
					inst.Src[i] = c.AddOp(remakeOp, Null, Null)
				default:
					switch {
					case postponed != nil:
						// Not stored yet; the value is still in its
						// temp.
						inst.Src[i] = postponedTemp
					default:
						if seqStart != nil {
							c.cursor = BeforeInst(seqStart)
						}
						inst.Src[i] = c.emitSpillTMUA(offset, qpu.CondNone, true)
						c.fills++
					}
				}
				filled = i
			}

			if !inst.Dst.IsTemp() || int(inst.Dst.Index) != t {
				continue
			}
			switch {
			case typ != spillTMU:
				c.clearCursor()
				c.RemoveInstruction(inst)
			case seqStart != nil:
				if postponed != nil {
					postponed.Dst = postponedTemp
				}
				if postponed == nil || inst.Cond() == qpu.CondNone {
					postponedTemp = c.GetTemp()
				}
				postponed = inst
			default:
				c.emitTMUSpill(inst, postponedTemp, inst, offset)
			}
		}

		// TMU sequences do not cross blocks.
		if postponed != nil {
			c.emitTMUSpill(postponed, postponedTemp, c.lastNonBranch(b), offset)
		}
		seqStart = nil
		postponed = nil
	}
	c.defs[t] = NoInst

	c.lastThrsw, c.lastThrswAtTopLevel = lastThrsw, lastThrswAtTopLevel
	for i := start; i < c.numTemps; i++ {
		c.spillable.Remove(i)
	}
	c.spillable.Remove(t)

	c.disableLdunifOpt = savedLdunifOpt
	c.clearCursor()
	c.liveValid = false
}

// lastNonBranch returns the last instruction of b that is not its
// branch.
func (c *Compile) lastNonBranch(b *Block) *Inst {
	inst := c.Inst(b.last)
	if inst != nil && inst.Kind == InstBranch {
		inst = c.Prev(inst)
	}
	return inst
}
