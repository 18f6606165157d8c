package vir

import (
	"fmt"

	"golang.org/x/tools/container/intsets"

	"github.com/gogpu/v3d/qpu"
)

// General TMU lookup configuration, passed as the uniform of a tmuau
// write.
const (
	tmuConfigBase     = 0xffffff00
	tmuOpRegular      = 0xf
	tmuLookupPerQuad  = 0 << 7
	tmuLookupPerPixel = 1 << 7
	tmuTypeVec2       = 2
	tmuType32BitUI    = 7

	// maxTMUQueueSize is how many TMU operations may be in flight.
	maxTMUQueueSize = 8
	// tmuFIFOSize is the output FIFO depth shared by all threads.
	tmuFIFOSize = 16
)

func tmuConfig(components int, perPixel bool) uint32 {
	cfg := uint32(tmuConfigBase | tmuOpRegular<<3)
	if perPixel {
		cfg |= tmuLookupPerPixel
	} else {
		cfg |= tmuLookupPerQuad
	}
	if components == 1 {
		cfg |= tmuType32BitUI
	} else {
		cfg |= uint32(tmuTypeVec2 + components - 2)
	}
	return cfg
}

type tmuPending struct {
	results []Reg
}

// tmuQueue tracks TMU operations issued but not yet collected.
type tmuQueue struct {
	outputFIFOSize int
	flushCount     int
	totalCount     int
	pending        []tmuPending
	outstanding    intsets.Sparse
}

func (c *Compile) tmuFIFOOverflow(components int) bool {
	if c.tmu.flushCount >= maxTMUQueueSize {
		return true
	}
	return components > 0 &&
		c.tmu.outputFIFOSize+components > tmuFIFOSize/c.threads
}

// TMUCount returns the number of TMU operations issued.
func (c *Compile) TMUCount() int { return c.tmu.totalCount }

// TMUPending reports whether r is the result of a TMU load that has not
// been collected yet. Reading it requires FlushTMU first.
func (c *Compile) TMUPending(r Reg) bool {
	return r.IsTemp() && c.tmu.outstanding.Has(int(r.Index))
}

// TMULoad queues a general memory load of n 32-bit components from addr
// and returns the temps the components will land in once the queue is
// flushed.
func (c *Compile) TMULoad(addr Reg, n int) []Reg {
	if n < 1 || n > 4 {
		panic(fmt.Sprintf("vir: TMU load of %d components", n))
	}
	if c.tmuFIFOOverflow(n) {
		c.FlushTMU()
	}

	w := c.MOVDest(Magic(qpu.WaddrTMUAU), addr)
	w.Uniform = c.GetUniformIndex(UniformConstant, tmuConfig(n, false))
	w.LdtmuCount = n
	if c.InControlFlow {
		w.SetCond(qpu.CondIfA)
	}

	results := make([]Reg, n)
	for i := range results {
		results[i] = c.GetTemp()
		c.tmu.outstanding.Insert(int(results[i].Index))
	}
	c.Telemetry.HasGeneralTMULoad = true
	c.addPendingTMU(results)
	return results
}

// TMUStore queues a general memory store of data to addr.
func (c *Compile) TMUStore(addr Reg, data ...Reg) {
	if len(data) < 1 || len(data) > 4 {
		panic(fmt.Sprintf("vir: TMU store of %d components", len(data)))
	}

	// All register writes of one request must fit the input FIFO.
	for len(data)+1 > tmuFIFOSize/c.threads && c.threads > 1 {
		c.threads /= 2
	}
	if c.tmuFIFOOverflow(0) {
		c.FlushTMU()
	}

	for _, d := range data {
		c.MOVDest(Magic(qpu.WaddrTMUD), d)
	}
	w := c.MOVDest(Magic(qpu.WaddrTMUAU), addr)
	w.Uniform = c.GetUniformIndex(UniformConstant, tmuConfig(len(data), true))
	if c.InControlFlow {
		w.SetCond(qpu.CondIfA)
	}
	c.tmuDirtyRCL = true
	c.addPendingTMU(nil)
}

func (c *Compile) addPendingTMU(results []Reg) {
	c.tmu.outputFIFOSize += len(results)
	c.tmu.pending = append(c.tmu.pending, tmuPending{results: results})
	c.tmu.flushCount++
	c.tmu.totalCount++

	if c.cfg.DisableTMUPipelining {
		c.FlushTMU()
	} else if c.tmu.flushCount > 1 {
		c.Telemetry.PipelinedAnyTMU = true
	}
}

// FlushTMU switches threads while the queued TMU operations complete, then
// collects every pending result. Stores are waited for with one TMUWT.
func (c *Compile) FlushTMU() {
	if c.tmu.flushCount == 0 {
		return
	}

	c.Thrsw()

	emittedTMUWT := false
	for _, p := range c.tmu.pending {
		if len(p.results) == 0 {
			if !emittedTMUWT {
				c.TMUWT()
				emittedTMUWT = true
			}
			continue
		}
		for _, r := range p.results {
			ld := c.AddInst(qpu.AddNOP, r, Null, Null)
			ld.Sig.Ldtmu = true
			c.Emit(ld)
			c.defs[r.Index] = ld.ID
		}
	}

	c.tmu.outputFIFOSize = 0
	c.tmu.flushCount = 0
	c.tmu.pending = c.tmu.pending[:0]
	c.tmu.outstanding.Clear()
}
