package vir

import (
	"tlog.app/go/errors"

	"github.com/gogpu/v3d/qpu"
)

// ErrRegisterAllocation is returned when the program cannot be allocated
// at the lowest thread count the compile allows.
var ErrRegisterAllocation = errors.New("register allocation failed")

// Allocate runs register allocation, halving the thread count on failure
// down to the configured minimum.
func (c *Compile) Allocate() ([]qpu.Reg, error) {
	minThreads := 1
	if c.dev.Ver >= 41 {
		minThreads = 2
	}
	floor := max(c.cfg.MinThreadsForRA, minThreads)

	for {
		regs, ok := c.RegisterAllocate()
		if ok {
			return regs, nil
		}
		if c.threads <= floor {
			return nil, errors.Wrap(ErrRegisterAllocation, "%v shader at %d threads", c.cfg.Stage, c.threads)
		}

		c.threads /= 2
		if c.log.If("perf") {
			c.log.Printw("reducing thread count", "threads", c.threads, "temps", c.numTemps)
		}
		if c.cfg.Debug.Perf {
			c.debugf("%v shader %d.%d: failed to allocate at %d threads, retrying at %d",
				c.cfg.Stage.ShortName(), c.cfg.ProgramID, c.cfg.VariantID, c.threads*2, c.threads)
		}
		if c.threads == 1 {
			c.RemoveThrsw()
		}
	}
}

// Finish optimizes, allocates and lowers the program built so far.
func (c *Compile) Finish() (*Program, error) {
	c.FlushTMU()
	c.EmitLastThrsw()
	c.Optimize()
	c.Schedule()

	if c.cfg.Validate {
		if err := c.Validate(); err != nil {
			return nil, errors.Wrap(err, "validate")
		}
	}
	if c.cfg.Debug.VIR {
		c.debugf("%v shader %d.%d VIR:\n%s", c.cfg.Stage.ShortName(),
			c.cfg.ProgramID, c.cfg.VariantID, c.Dump())
	}

	regs, err := c.Allocate()
	if err != nil {
		return nil, err
	}

	// The extra thread switch only served spilling.
	if c.spills+c.fills == 0 && c.lastThrsw != c.restoreLastThrsw {
		c.RestoreLastThrsw()
	}
	maxTemps := c.MaxTemps()

	p, err := c.ToQPU(regs)
	if err != nil {
		return nil, errors.Wrap(err, "lower to qpu")
	}
	p.Stats.MaxTemps = maxTemps

	if c.cfg.Debug.QPU {
		c.debugf("%v shader %d.%d QPU:\n%s", c.cfg.Stage.ShortName(),
			c.cfg.ProgramID, c.cfg.VariantID, p.Disassemble(c.dev))
	}
	if c.cfg.Debug.ShaderDB {
		c.debugf("%s", p.ShaderDB())
	}
	if c.log.If("stats") {
		c.log.Printw("compiled", "stage", c.cfg.Stage, "inst", p.Stats.Instructions,
			"threads", p.Threads, "spills", p.Stats.Spills, "fills", p.Stats.Fills)
	}
	return p, nil
}
