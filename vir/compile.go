package vir

import (
	"fmt"

	"golang.org/x/tools/container/intsets"
	"tlog.app/go/tlog"

	"github.com/gogpu/v3d/qpu"
)

// Stage is the shader stage being compiled.
type Stage uint8

const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
	StageGeometry
)

var stageNames = [...]string{"vertex", "fragment", "compute", "geometry"}
var stageShortNames = [...]string{"VS", "FS", "CS", "GS"}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}

// ShortName returns the abbreviation used in statistics lines.
func (s Stage) ShortName() string {
	if int(s) < len(stageShortNames) {
		return stageShortNames[s]
	}
	return s.String()
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool { return int(s) < len(stageNames) }

// ParseStage returns the stage with the given name.
func ParseStage(name string) (Stage, bool) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), true
		}
	}
	return 0, false
}

// MaxInstruction is the TempStart of a temp that is never referenced.
const MaxInstruction = 1 << 30

// Debug selects diagnostic output. Dumps go to Config.DebugOutput.
type Debug struct {
	VIR      bool // VIR before register allocation
	QPU      bool // disassembly of the final code
	RA       bool // allocator failures
	Perf     bool // thread count reductions and spilling
	ShaderDB bool // statistics line per compile
	Spills   bool // every spill and fill
}

// Config holds the per-attempt parameters of a compile.
type Config struct {
	Device    *qpu.DeviceInfo
	Stage     Stage
	ProgramID int
	VariantID int

	// Threads is the thread count the compile starts at.
	Threads int
	// MinThreadsForRA is the lowest thread count register allocation may
	// fall back to.
	MinThreadsForRA int
	// MaxTMUSpills bounds spills plus fills through the TMU; -1 means no
	// limit.
	MaxTMUSpills int

	DisableTMUPipelining   bool
	DisableGeneralTMUSched bool
	DisableGCM             bool
	DisableLoopUnrolling   bool
	DisableUBOLoadSorting  bool
	MoveBufferLoads        bool
	FallbackScheduler      bool
	// DisableLdunifOpt turns off reuse of earlier uniform loads.
	DisableLdunifOpt bool
	// Validate checks the program before register allocation.
	Validate bool

	Debug       Debug
	DebugOutput func(string)
	Logger      *tlog.Logger
}

// Telemetry records whether optimizations the strategy driver can toggle
// had any effect.
type Telemetry struct {
	HasGeneralTMULoad bool
	PipelinedAnyTMU   bool

	// GCMProgress, UnrolledAnyLoops and SortedAnyUBOLoads belong to
	// front ends, which read the matching Config toggles through
	// Compile.Config and report here whether the transformation changed
	// their output.
	GCMProgress       bool
	UnrolledAnyLoops  bool
	SortedAnyUBOLoads bool

	// MovableBufferLoads and SchedulableForPressure are set when
	// MoveBufferLoads or FallbackScheduler, had they been on, would have
	// reordered the program.
	MovableBufferLoads     bool
	SchedulableForPressure bool
}

// Compile is the state of one compile attempt. It owns every block and
// instruction; nothing in it is safe for concurrent use.
type Compile struct {
	cfg Config
	dev *qpu.DeviceInfo
	log *tlog.Logger

	Telemetry Telemetry

	// InControlFlow is set by the front end while emitting code that does
	// not run unconditionally.
	InControlFlow bool
	// HasControlBarrier is set by the front end when the program
	// synchronizes workgroup invocations.
	HasControlBarrier bool

	threads int

	insts  []*Inst
	blocks []*Block
	order  []BlockID

	curBlock BlockID
	cursor   Cursor

	numTemps  int
	defs      []InstID
	spillable intsets.Sparse

	TempStart, TempEnd []int
	liveValid          bool

	uniforms         []UniformSlot
	disableLdunifOpt bool

	lastThrsw           InstID
	lastThrswAtTopLevel bool
	lastThrswEmitted    bool
	restoreLastThrsw    InstID

	tmu         tmuQueue
	tmuDirtyRCL bool

	spillBase     Reg
	spillSize     int
	spills, fills int
	// physOnly holds temps the allocator must keep out of accumulators,
	// such as the spill base and TMU fill results.
	physOnly intsets.Sparse

	raSet *raRegSet
}

// NewCompile creates the context of one compile attempt with an empty
// entry block as the emit block.
func NewCompile(cfg Config) *Compile {
	if cfg.Device == nil {
		cfg.Device = qpu.V42()
	}
	if cfg.Threads == 0 {
		cfg.Threads = 4
	}
	if cfg.MinThreadsForRA == 0 {
		cfg.MinThreadsForRA = 1
	}
	c := &Compile{
		cfg:              cfg,
		dev:              cfg.Device,
		log:              cfg.Logger,
		threads:          cfg.Threads,
		curBlock:         NoBlock,
		disableLdunifOpt: cfg.DisableLdunifOpt,
		lastThrsw:        NoInst,
		restoreLastThrsw: NoInst,
	}
	c.SetEmitBlock(c.NewBlock())
	return c
}

// Config returns the parameters the compile was created with.
func (c *Compile) Config() Config { return c.cfg }

// Device returns the target device.
func (c *Compile) Device() *qpu.DeviceInfo { return c.dev }

// Stage returns the shader stage.
func (c *Compile) Stage() Stage { return c.cfg.Stage }

// Threads returns the current thread count.
func (c *Compile) Threads() int { return c.threads }

// NumTemps returns the number of temps allocated so far.
func (c *Compile) NumTemps() int { return c.numTemps }

// Spills returns the number of TMU spill stores inserted.
func (c *Compile) Spills() int { return c.spills }

// Fills returns the number of TMU fill loads inserted.
func (c *Compile) Fills() int { return c.fills }

// SpillSize returns the per-thread spill memory in bytes.
func (c *Compile) SpillSize() int { return c.spillSize }

// Spillable reports whether temp t may still be chosen for spilling.
func (c *Compile) Spillable(t int) bool { return c.spillable.Has(t) }

func (c *Compile) debugf(format string, args ...any) {
	if c.cfg.DebugOutput != nil {
		c.cfg.DebugOutput(fmt.Sprintf(format, args...))
	}
}

// GetTemp returns a new spillable temp.
func (c *Compile) GetTemp() Reg {
	t := c.numTemps
	c.numTemps++
	if t >= len(c.defs) {
		size := max(len(c.defs)*2, 16)
		defs := make([]InstID, size)
		copy(defs, c.defs)
		for i := len(c.defs); i < size; i++ {
			defs[i] = NoInst
		}
		c.defs = defs
	}
	c.defs[t] = NoInst
	c.spillable.Insert(t)
	return Temp(t)
}

// Def returns the single unconditional definition of temp t, or nil when
// t is defined more than once or conditionally.
func (c *Compile) Def(t int) *Inst {
	if t < 0 || t >= c.numTemps {
		return nil
	}
	return c.Inst(c.defs[t])
}

// SetCursor moves the insertion point.
func (c *Compile) SetCursor(cur Cursor) { c.cursor = cur }

// Cursor returns the insertion point.
func (c *Compile) Cursor() Cursor { return c.cursor }

func (c *Compile) newInst() *Inst {
	inst := &Inst{
		ID:      InstID(len(c.insts)),
		Uniform: -1,
		block:   NoBlock,
		prev:    NoInst,
		next:    NoInst,
	}
	c.insts = append(c.insts, inst)
	return inst
}

// AddInst returns a detached add-slot instruction.
func (c *Compile) AddInst(op qpu.AddOp, dst, a, b Reg) *Inst {
	inst := c.newInst()
	inst.Add.Op = op
	inst.Dst = dst
	inst.Src[0], inst.Src[1] = a, b
	return inst
}

// MulInst returns a detached mul-slot instruction.
func (c *Compile) MulInst(op qpu.MulOp, dst, a, b Reg) *Inst {
	inst := c.newInst()
	inst.Mul.Op = op
	inst.Dst = dst
	inst.Src[0], inst.Src[1] = a, b
	return inst
}

// BranchInst returns a detached branch. The branch moves the uniform
// stream along with the instruction stream, so it reads a constant
// uniform that is patched with the distance once code is laid out.
func (c *Compile) BranchInst(cond qpu.BranchCond) *Inst {
	inst := c.newInst()
	inst.Kind = InstBranch
	inst.Branch = BranchInfo{Cond: cond, UB: true}
	inst.Uniform = c.GetUniformIndex(UniformConstant, 0)
	return inst
}

// Emit inserts inst at the cursor and moves the cursor past it.
func (c *Compile) Emit(inst *Inst) *Inst {
	if inst.block != NoBlock {
		panic(fmt.Sprintf("vir: instruction %d emitted twice", inst.ID))
	}
	c.fixupSmallImm(inst)

	b := c.blocks[c.cursor.Block]
	switch c.cursor.Mode {
	case CursorAdd:
		c.insertAfter(b, c.cursor.Inst, inst)
	case CursorAddTail:
		c.insertBefore(b, c.cursor.Inst, inst)
	}
	c.cursor = AfterInst(inst)
	c.liveValid = false
	return inst
}

// EmitDef gives inst a fresh temp destination, records it as the temp's
// definition and emits it.
func (c *Compile) EmitDef(inst *Inst) Reg {
	if !inst.Dst.IsNull() {
		panic("vir: EmitDef on an instruction with a destination")
	}
	if inst.Kind == InstALU && !(inst.Add.Op == qpu.AddNOP || inst.Add.Op.HasDst()) {
		panic(fmt.Sprintf("vir: EmitDef of %v, which has no destination", inst.Add.Op))
	}
	inst.Dst = c.GetTemp()
	c.defs[inst.Dst.Index] = inst.ID
	c.Emit(inst)
	return inst.Dst
}

// EmitNonDef emits inst, which writes an existing register. A temp
// destination loses its single definition.
func (c *Compile) EmitNonDef(inst *Inst) *Inst {
	if inst.Dst.IsTemp() {
		c.defs[inst.Dst.Index] = NoInst
	}
	return c.Emit(inst)
}

// fixupSmallImm sets the small immediate signal matching the sources.
func (c *Compile) fixupSmallImm(inst *Inst) {
	for s := 0; s < inst.NumSrc(); s++ {
		if inst.Src[s].File != FileSmallImm {
			continue
		}
		sig, ok := c.smallImmSig(inst, s)
		if !ok {
			panic(fmt.Sprintf("vir: small immediate %v cannot be encoded with signals %v",
				inst.Src[s], inst.Sig))
		}
		inst.Sig = sig
		return
	}
}

// smallImmSig returns the signals of inst extended to read source s as a
// small immediate.
func (c *Compile) smallImmSig(inst *Inst, s int) (qpu.Sig, bool) {
	if _, ok := qpu.SmallImmPack(inst.Src[s].Index); !ok {
		return inst.Sig, false
	}
	sig := inst.Sig
	if c.dev.Ver < 71 {
		sig.SmallImmB = true
	} else {
		switch {
		case inst.IsAdd() && s == 0:
			sig.SmallImmA = true
		case inst.IsAdd():
			sig.SmallImmB = true
		case s == 0:
			sig.SmallImmC = true
		default:
			sig.SmallImmD = true
		}
	}
	_, ok := qpu.SigPack(c.dev, sig)
	return sig, ok
}

// RemoveInstruction takes inst out of the program.
func (c *Compile) RemoveInstruction(inst *Inst) {
	if c.cursor.Inst == inst.ID {
		panic(fmt.Sprintf("vir: removing instruction %d under the cursor", inst.ID))
	}
	if inst.Dst.IsTemp() && c.defs[inst.Dst.Index] == inst.ID {
		c.defs[inst.Dst.Index] = NoInst
	}
	c.unlink(inst)
	inst.removed = true
	if c.lastThrsw == inst.ID {
		c.lastThrsw = NoInst
	}
	c.liveValid = false
}

// clearCursor parks the cursor so that any instruction may be removed.
func (c *Compile) clearCursor() {
	c.cursor = Cursor{Mode: CursorAddTail, Block: c.curBlock, Inst: NoInst}
}
