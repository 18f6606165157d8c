package vir

import (
	"github.com/gogpu/v3d/qpu"
)

// Schedule reorders instructions within blocks before register
// allocation. General TMU requests are hoisted unless
// DisableGeneralTMUSched is set. MoveBufferLoads sinks TMU result loads
// next to their first use and FallbackScheduler sinks plain computations
// the same way, both trading latency for register pressure. When one of
// the latter two is off, its dry run still records in Telemetry whether
// it would have changed anything.
func (c *Compile) Schedule() {
	if !c.cfg.DisableGeneralTMUSched {
		c.logSched("tmu_requests", c.hoistTMURequests(true))
	}

	if c.cfg.MoveBufferLoads {
		c.logSched("buffer_loads", c.sinkTMUResults(true))
	} else {
		c.Telemetry.MovableBufferLoads = c.sinkTMUResults(false)
	}

	if c.cfg.FallbackScheduler {
		c.logSched("fallback", c.sinkToUses(true))
	} else {
		c.Telemetry.SchedulableForPressure = c.sinkToUses(false)
	}
}

func (c *Compile) logSched(pass string, moved bool) {
	if moved && c.log.If("opt") {
		c.log.Printw("scheduled", "pass", pass, "insts", c.NumInsts())
	}
}

// hasSignal reports whether inst raises a signal other than a small
// immediate.
func hasSignal(inst *Inst) bool {
	s := inst.Sig
	s.SmallImmA, s.SmallImmB, s.SmallImmC, s.SmallImmD = false, false, false, false
	return !s.IsZero()
}

func readsReg(inst *Inst, r Reg) bool {
	for s := 0; s < inst.NumSrc(); s++ {
		if inst.Src[s] == r {
			return true
		}
	}
	return false
}

// tmuBarrier reports whether inst orders TMU traffic: no request or result
// load may move across it.
func (c *Compile) tmuBarrier(inst *Inst) bool {
	return inst.Kind == InstBranch || hasSignal(inst) || inst.WritesTMU(c.dev) ||
		inst.Add.Op == qpu.AddTMUWT || inst.HasSideEffects()
}

func (c *Compile) moveBefore(inst, pos *Inst) {
	b := c.blocks[inst.block]
	c.unlink(inst)
	c.insertBefore(b, pos.ID, inst)
	c.liveValid = false
}

func (c *Compile) moveAfter(inst, pos *Inst) {
	b := c.blocks[inst.block]
	c.unlink(inst)
	c.insertAfter(b, pos.ID, inst)
	c.liveValid = false
}

// hoistTMURequests moves each unconditional general TMU load request up
// to just after the definition of its address, so more work overlaps the
// lookup before the thread switch that waits for it.
func (c *Compile) hoistTMURequests(apply bool) bool {
	moved := false
	for _, b := range c.Blocks() {
		for _, inst := range c.BlockInsts(b) {
			if inst.LdtmuCount == 0 || inst.Cond() != qpu.CondNone || !inst.Src[0].IsTemp() {
				continue
			}
			if !inst.Dst.IsMagic(qpu.WaddrTMUAU) && !inst.Dst.IsMagic(qpu.WaddrTMUA) {
				continue
			}

			var stop *Inst
			for p := c.Prev(inst); p != nil; p = c.Prev(p) {
				if p.Dst == inst.Src[0] || c.tmuBarrier(p) {
					stop = p
					break
				}
			}
			if stop == c.Prev(inst) {
				continue
			}
			moved = true
			if !apply {
				return true
			}
			if stop == nil {
				c.unlink(inst)
				c.insertAfter(b, NoInst, inst)
				c.liveValid = false
			} else {
				c.moveAfter(inst, stop)
			}
		}
	}
	return moved
}

// sinkTMUResults moves each ldtmu down to its first reader, keeping the
// order of result loads.
func (c *Compile) sinkTMUResults(apply bool) bool {
	moved := false
	for _, b := range c.Blocks() {
		insts := c.BlockInsts(b)
		for i := len(insts) - 1; i >= 0; i-- {
			inst := insts[i]
			if !inst.Sig.Ldtmu || !inst.Dst.IsTemp() || c.defs[inst.Dst.Index] != inst.ID {
				continue
			}

			var user *Inst
			for p := c.Next(inst); p != nil; p = c.Next(p) {
				if readsReg(p, inst.Dst) || p.Dst == inst.Dst || c.tmuBarrier(p) {
					user = p
					break
				}
			}
			if user == nil || user == c.Next(inst) {
				continue
			}
			moved = true
			if !apply {
				return true
			}
			c.moveBefore(inst, user)
		}
	}
	return moved
}

// sinkable reports whether inst is a plain computation of its temp
// sources that may run anywhere before its first reader.
func (c *Compile) sinkable(inst *Inst) bool {
	if inst.Kind != InstALU || inst.NumSrc() == 0 || hasSignal(inst) ||
		inst.HasSideEffects() || inst.UsesSFU() || inst.Add.Op.IsLDVPM() {
		return false
	}
	if !inst.Dst.IsTemp() || c.defs[inst.Dst.Index] != inst.ID {
		return false
	}
	if inst.WritesFlags() || inst.ReadsFlags() || inst.ReadsUniform() {
		return false
	}
	for s := 0; s < inst.NumSrc(); s++ {
		if f := inst.Src[s].File; f != FileTemp && f != FileSmallImm {
			return false
		}
	}
	return true
}

// sinkToUses moves each plain computation down to its first reader in the
// same block, so its result lives as briefly as possible. Values with no
// reader in the block stay put.
func (c *Compile) sinkToUses(apply bool) bool {
	moved := false
	for _, b := range c.Blocks() {
		insts := c.BlockInsts(b)
		for i := len(insts) - 1; i >= 0; i-- {
			inst := insts[i]
			if !c.sinkable(inst) {
				continue
			}

			var stop *Inst
			for p := c.Next(inst); p != nil; p = c.Next(p) {
				if readsReg(p, inst.Dst) || p.Kind == InstBranch {
					stop = p
					break
				}
				// A source rewritten before the reader pins the
				// computation ahead of the rewrite.
				if p.Dst.IsTemp() && readsReg(inst, p.Dst) {
					stop = p
					break
				}
			}
			if stop == nil || stop.Kind == InstBranch || stop == c.Next(inst) {
				continue
			}
			moved = true
			if !apply {
				return true
			}
			c.moveBefore(inst, stop)
		}
	}
	return moved
}
