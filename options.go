package v3d

import (
	"tlog.app/go/tlog"

	"github.com/gogpu/v3d/qpu"
	"github.com/gogpu/v3d/vir"
)

// Options configures shader compilation.
type Options struct {
	// Device is the target GPU (default: V3D 4.2)
	Device *qpu.DeviceInfo

	// Strategies are tried in order (default: DefaultStrategies())
	Strategies []Strategy

	// Validate enables VIR validation before register allocation
	Validate bool

	// DisableLdunifOpt disables reuse of earlier uniform loads
	DisableLdunifOpt bool

	// Debug selects the dumps written to DebugOutput
	Debug vir.Debug

	// DebugOutput receives fallback, spill and dump messages
	DebugOutput func(string)

	// Logger receives structured events; nil disables them
	Logger *tlog.Logger
}

// DefaultOptions returns sensible default options.
func DefaultOptions() Options {
	return Options{
		Device:     qpu.V42(),
		Strategies: DefaultStrategies(),
		Validate:   true,
	}
}

func (o Options) withDefaults() Options {
	if o.Device == nil {
		o.Device = qpu.V42()
	}
	if len(o.Strategies) == 0 {
		o.Strategies = DefaultStrategies()
	}
	return o
}

// config returns the parameters of one compile attempt under s.
func (o Options) config(key *Key, stage vir.Stage, s Strategy) vir.Config {
	return vir.Config{
		Device:    o.Device,
		Stage:     stage,
		ProgramID: key.ProgramID,
		VariantID: key.VariantID,

		Threads:         s.MaxThreads,
		MinThreadsForRA: s.MinThreads,
		MaxTMUSpills:    s.MaxTMUSpills,

		DisableTMUPipelining:   s.DisableTMUPipelining,
		DisableGeneralTMUSched: s.DisableGeneralTMUSched,
		DisableGCM:             s.DisableGCM,
		DisableLoopUnrolling:   s.DisableLoopUnrolling,
		DisableUBOLoadSorting:  s.DisableUBOLoadSorting,
		MoveBufferLoads:        s.MoveBufferLoads,
		FallbackScheduler:      s.FallbackScheduler,
		DisableLdunifOpt:       o.DisableLdunifOpt,
		Validate:               o.Validate,

		Debug:       o.Debug,
		DebugOutput: o.DebugOutput,
		Logger:      o.Logger,
	}
}
