package v3d

// Strategy is one set of compile parameters the driver tries.
type Strategy struct {
	Name string

	// MaxThreads is the thread count the attempt starts at and
	// MinThreads the lowest one register allocation may fall back to.
	MaxThreads int
	MinThreads int

	DisableGeneralTMUSched bool
	DisableGCM             bool
	DisableLoopUnrolling   bool
	DisableUBOLoadSorting  bool
	MoveBufferLoads        bool
	DisableTMUPipelining   bool

	// MaxTMUSpills bounds spills plus fills through the TMU; -1 means no
	// limit.
	MaxTMUSpills int

	// FallbackScheduler selects the scheduler that needs more registers
	// but fewer instructions.
	FallbackScheduler bool
}

// DefaultStrategies returns the strategies in the order the driver tries
// them. Four-thread strategies may not spill through the TMU.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "default", MaxThreads: 4, MinThreads: 4},
		{Name: "disable general TMU sched", MaxThreads: 4, MinThreads: 4,
			DisableGeneralTMUSched: true},
		{Name: "disable gcm", MaxThreads: 4, MinThreads: 4,
			DisableGeneralTMUSched: true, DisableGCM: true},
		{Name: "disable loop unrolling", MaxThreads: 4, MinThreads: 4,
			DisableGeneralTMUSched: true, DisableGCM: true, DisableLoopUnrolling: true},
		{Name: "disable UBO load sorting", MaxThreads: 4, MinThreads: 4,
			DisableGeneralTMUSched: true, DisableGCM: true, DisableLoopUnrolling: true,
			DisableUBOLoadSorting: true},
		{Name: "disable TMU pipelining", MaxThreads: 4, MinThreads: 4,
			DisableGeneralTMUSched: true, DisableGCM: true, DisableLoopUnrolling: true,
			DisableUBOLoadSorting: true, DisableTMUPipelining: true},
		{Name: "lower thread count", MaxThreads: 2, MinThreads: 1, MaxTMUSpills: -1},
		{Name: "disable general TMU sched (2t)", MaxThreads: 2, MinThreads: 1, MaxTMUSpills: -1,
			DisableGeneralTMUSched: true},
		{Name: "disable gcm (2t)", MaxThreads: 2, MinThreads: 1, MaxTMUSpills: -1,
			DisableGeneralTMUSched: true, DisableGCM: true},
		{Name: "disable loop unrolling (2t)", MaxThreads: 2, MinThreads: 1, MaxTMUSpills: -1,
			DisableGeneralTMUSched: true, DisableGCM: true, DisableLoopUnrolling: true},
		{Name: "Move buffer loads (2t)", MaxThreads: 2, MinThreads: 1, MaxTMUSpills: -1,
			DisableGeneralTMUSched: true, DisableGCM: true, DisableLoopUnrolling: true,
			DisableUBOLoadSorting: true, MoveBufferLoads: true},
		{Name: "disable TMU pipelining (2t)", MaxThreads: 2, MinThreads: 1, MaxTMUSpills: -1,
			DisableGeneralTMUSched: true, DisableGCM: true, DisableLoopUnrolling: true,
			DisableUBOLoadSorting: true, MoveBufferLoads: true, DisableTMUPipelining: true},
		{Name: "fallback scheduler", MaxThreads: 2, MinThreads: 1, MaxTMUSpills: -1,
			DisableGeneralTMUSched: true, DisableGCM: true, DisableLoopUnrolling: true,
			DisableUBOLoadSorting: true, MoveBufferLoads: true, DisableTMUPipelining: true,
			FallbackScheduler: true},
	}
}

// skipStrategy reports whether cur can be skipped after prev was tried
// with the outcome last. A strategy that changes the spill budget always
// runs. Otherwise it is skipped when nothing it changes could alter the
// program.
func skipStrategy(prev, cur Strategy, last *attempt) bool {
	if cur.MaxTMUSpills != prev.MaxTMUSpills {
		return false
	}

	t := last.telemetry
	changed := false
	// toggle records a switch that turned on and reports whether it can be
	// ignored.
	toggle := func(was, is, noEffect bool) bool {
		if was == is {
			return true
		}
		changed = true
		return is && noEffect
	}

	if !toggle(prev.DisableGeneralTMUSched, cur.DisableGeneralTMUSched, !t.HasGeneralTMULoad) ||
		!toggle(prev.DisableGCM, cur.DisableGCM, !t.GCMProgress) ||
		!toggle(prev.DisableLoopUnrolling, cur.DisableLoopUnrolling, !t.UnrolledAnyLoops) ||
		!toggle(prev.DisableUBOLoadSorting, cur.DisableUBOLoadSorting, !t.SortedAnyUBOLoads) ||
		!toggle(prev.DisableTMUPipelining, cur.DisableTMUPipelining, !t.PipelinedAnyTMU) ||
		!toggle(prev.MoveBufferLoads, cur.MoveBufferLoads, !t.MovableBufferLoads) ||
		!toggle(prev.FallbackScheduler, cur.FallbackScheduler, !t.SchedulableForPressure) {
		return false
	}

	if cur.MaxThreads != prev.MaxThreads || cur.MinThreads != prev.MinThreads {
		if cur.MaxThreads >= prev.MaxThreads || last.threads >= 4 {
			return false
		}
		changed = true
	}

	return changed
}
