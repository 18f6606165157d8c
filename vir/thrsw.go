package vir

// Thrsw emits a thread switch. Single-threaded programs have nothing to
// switch to, so nothing is emitted.
func (c *Compile) Thrsw() {
	if c.threads == 1 {
		return
	}
	nop := c.NOP()
	nop.Sig.Thrsw = true
	c.lastThrsw = nop.ID
	c.lastThrswAtTopLevel = !c.InControlFlow
}

// LastThrsw returns the thread switch that starts the final segment, or
// nil.
func (c *Compile) LastThrsw() *Inst { return c.Inst(c.lastThrsw) }

// EmitLastThrsw marks the start of the program's final thread segment.
// Spill code can only switch threads before it, so a fresh thread switch
// is always inserted here; RestoreLastThrsw takes it back out when
// allocation did not spill.
func (c *Compile) EmitLastThrsw() {
	if c.lastThrswEmitted {
		return
	}
	c.lastThrswEmitted = true
	c.restoreLastThrsw = c.lastThrsw
	if c.threads == 1 {
		return
	}

	// The last switch must run unconditionally.
	if c.lastThrsw != NoInst && !c.lastThrswAtTopLevel {
		c.Thrsw()
	}

	// Fragment shaders always need one to lock the tile buffer.
	if c.lastThrsw == NoInst && c.cfg.Stage == StageFragment {
		c.Thrsw()
	}

	if c.restoreLastThrsw == c.lastThrsw {
		if prev := c.Inst(c.restoreLastThrsw); prev != nil {
			prev.IsLastThrsw = false
		}
		c.Thrsw()
	} else {
		c.restoreLastThrsw = c.lastThrsw
	}

	c.Inst(c.lastThrsw).IsLastThrsw = true
}

// RestoreLastThrsw removes the thread switch inserted by EmitLastThrsw and
// marks the previous one as last again.
func (c *Compile) RestoreLastThrsw() {
	last := c.Inst(c.lastThrsw)
	if last == nil || c.lastThrsw == c.restoreLastThrsw {
		return
	}
	c.clearCursor()
	c.RemoveInstruction(last)
	c.lastThrsw = c.restoreLastThrsw
	if prev := c.Inst(c.lastThrsw); prev != nil {
		prev.IsLastThrsw = true
	}
}

// RemoveThrsw deletes every thread switch, for programs that end up
// running single-threaded.
func (c *Compile) RemoveThrsw() {
	c.clearCursor()
	c.ForEachInst(func(_ *Block, inst *Inst) {
		if inst.Sig.Thrsw {
			c.RemoveInstruction(inst)
		}
	})
	c.lastThrsw = NoInst
	c.restoreLastThrsw = NoInst
}
