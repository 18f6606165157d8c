package v3d

import "github.com/gogpu/v3d/vir"

// ProgData describes a compiled program to the driver that runs it.
type ProgData struct {
	Stage   vir.Stage
	Threads int
	// SingleSeg is set when the program has no final thread switch, so
	// the hardware runs it as a single segment.
	SingleSeg bool

	// SpillSize is the scratch memory per thread, in bytes.
	SpillSize int
	TMUSpills int
	TMUFills  int
	// TMUCount is the number of TMU operations issued.
	TMUCount int
	// QPUReadStalls counts cycles lost waiting for SFU results.
	QPUReadStalls int

	CompileStrategyIdx int

	Uniforms          []vir.UniformSlot
	HasControlBarrier bool
	// TMUDirtyRCL is set when the program writes memory through the TMU.
	TMUDirtyRCL bool
}

func newProgData(p *vir.Program, strategy int) ProgData {
	return ProgData{
		Stage:              p.Stage,
		Threads:            p.Threads,
		SingleSeg:          p.SingleSeg,
		SpillSize:          p.SpillSize,
		TMUSpills:          p.Stats.Spills,
		TMUFills:           p.Stats.Fills,
		TMUCount:           p.TMUCount,
		QPUReadStalls:      p.Stats.SFUStalls,
		CompileStrategyIdx: strategy,
		Uniforms:           p.Uniforms,
		HasControlBarrier:  p.HasControlBarrier,
		TMUDirtyRCL:        p.TMUDirtyRCL,
	}
}
