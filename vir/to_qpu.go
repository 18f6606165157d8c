package vir

import (
	"fmt"

	"tlog.app/go/errors"

	"github.com/gogpu/v3d/qpu"
)

// Stats summarizes a finished program.
type Stats struct {
	Instructions int
	NOPs         int
	// SFUStalls counts instructions that wait on a special function
	// result the hardware has not delivered yet.
	SFUStalls int
	Loops     int
	Uniforms  int
	MaxTemps  int
	Spills    int
	Fills     int
	Threads   int
}

// Program is the result of a successful compile.
type Program struct {
	Stage Stage
	// Code holds the encoded instructions and Instrs their decoded form.
	Code   []uint64
	Instrs []qpu.Instr
	// Uniforms is the uniform stream, one entry per uniform read in
	// execution order of straight-line code.
	Uniforms []UniformSlot

	Threads   int
	SpillSize int
	Stats     Stats

	// TMUDirtyRCL reports whether the program writes memory through the
	// TMU, which requires a cache flush at the end of the render job.
	TMUDirtyRCL bool
	// HasControlBarrier reports whether workgroup invocations
	// synchronize.
	HasControlBarrier bool
	// SingleSeg is set when the program has no final thread switch.
	SingleSeg bool
	// TMUCount is the number of TMU operations the program issues.
	TMUCount int
}

// ShaderDB formats the statistics line of the program.
func (p *Program) ShaderDB() string {
	s := p.Stats
	return fmt.Sprintf("%s shader: %d inst, %d threads, %d loops, %d uniforms, %d max-temps, "+
		"%d:%d spills:fills, %d sfu-stalls, %d inst-and-stalls, %d nops",
		p.Stage.ShortName(), s.Instructions, s.Threads, s.Loops, s.Uniforms, s.MaxTemps,
		s.Spills, s.Fills, s.SFUStalls, s.Instructions+s.SFUStalls, s.NOPs)
}

// Disassemble renders the program one instruction per line.
func (p *Program) Disassemble(d *qpu.DeviceInfo) string {
	var b []byte
	for i := range p.Instrs {
		b = fmt.Appendf(b, "%4d: %s\n", i, p.Instrs[i].Format(d))
	}
	return string(b)
}

// Latencies in instructions, counted from the issuing instruction.
const (
	sfuLatency       = 2
	unifaLatency     = 3
	thrswDelaySlots  = 2
	branchDelaySlots = 3
)

// operand is a lowered source.
type operand struct {
	reg  qpu.Reg
	imm  bool
	null bool
	// packed is the small immediate encoding.
	packed uint8
}

type qpuEmitter struct {
	c    *Compile
	dev  *qpu.DeviceInfo
	regs []qpu.Reg

	code     []qpu.Instr
	uniforms []UniformSlot
	branches []*Block

	sfuTick   int
	sfuReg    qpu.Reg
	unifaTick int
	stalls    int
}

// ToQPU lowers the allocated program, regs giving the register of each
// temp, to QPU instructions and packs them.
func (c *Compile) ToQPU(regs []qpu.Reg) (*Program, error) {
	e := &qpuEmitter{
		c:         c,
		dev:       c.dev,
		regs:      regs,
		sfuTick:   -1 << 20,
		unifaTick: -1 << 20,
	}

	for _, b := range c.Blocks() {
		b.startQPU = len(e.code)
		b.startUniform = len(e.uniforms)
		for _, inst := range c.BlockInsts(b) {
			var err error
			if inst.Kind == InstBranch {
				err = e.branch(b, inst)
			} else {
				err = e.alu(inst)
			}
			if err != nil {
				return nil, errors.Wrap(err, "instruction %d in %v", inst.ID, b)
			}
		}
	}

	// Thread end.
	end := qpu.NOP()
	end.Sig.Thrsw = true
	e.code = append(e.code, end)
	e.nops(thrswDelaySlots)

	if err := e.patchBranches(); err != nil {
		return nil, err
	}

	p := &Program{
		Stage:             c.cfg.Stage,
		Instrs:            e.code,
		Code:              make([]uint64, len(e.code)),
		Uniforms:          e.uniforms,
		Threads:           c.threads,
		SpillSize:         c.spillSize,
		TMUDirtyRCL:       c.tmuDirtyRCL,
		HasControlBarrier: c.HasControlBarrier,
		SingleSeg:         c.lastThrsw == NoInst,
		TMUCount:          c.tmu.totalCount,
	}
	for i := range e.code {
		word, err := qpu.Encode(c.dev, &e.code[i])
		if err != nil {
			return nil, errors.Wrap(err, "pack %d: %s", i, e.code[i].Format(c.dev))
		}
		p.Code[i] = word
	}

	p.Stats = Stats{
		Instructions: len(e.code),
		NOPs:         countNOPs(e.code),
		SFUStalls:    e.stalls,
		Loops:        c.countLoops(),
		Uniforms:     len(e.uniforms),
		Spills:       c.spills,
		Fills:        c.fills,
		Threads:      c.threads,
	}
	return p, nil
}

func countNOPs(code []qpu.Instr) int {
	n := 0
	for i := range code {
		in := &code[i]
		if in.Type == qpu.InstrALU && in.Add.Op == qpu.AddNOP &&
			in.Mul.Op == qpu.MulNOP && in.Sig.IsZero() {
			n++
		}
	}
	return n
}

// countLoops counts back edges.
func (c *Compile) countLoops() int {
	n := 0
	for _, b := range c.Blocks() {
		for _, s := range c.Successors(b) {
			if s.Index <= b.Index {
				n++
			}
		}
	}
	return n
}

func (e *qpuEmitter) nops(n int) {
	for i := 0; i < n; i++ {
		e.code = append(e.code, qpu.NOP())
	}
}

func (e *qpuEmitter) branch(b *Block, inst *Inst) error {
	if b.Successors[0] == NoBlock {
		return errors.New("branch without target")
	}
	in := qpu.Instr{
		Type: qpu.InstrBranch,
		Branch: qpu.Branch{
			Cond:   inst.Branch.Cond,
			MsfIgn: inst.Branch.MsfIgn,
			BDI:    qpu.BranchDestRel,
			BDU:    qpu.BranchDestRel,
			UB:     inst.Branch.UB,
		},
	}
	b.branchQPU = len(e.code)
	b.branchUniform = -1
	e.code = append(e.code, in)
	if inst.Uniform >= 0 {
		b.branchUniform = len(e.uniforms)
		e.uniforms = append(e.uniforms, e.c.uniforms[inst.Uniform])
	}
	e.branches = append(e.branches, b)
	e.nops(branchDelaySlots)
	return nil
}

// patchBranches fills in the distances of every branch to its target,
// in the instruction stream and in the uniform stream.
func (e *qpuEmitter) patchBranches() error {
	for _, b := range e.branches {
		target := e.c.Block(b.Successors[0])
		br := &e.code[b.branchQPU].Branch
		br.Offset = uint32(int32(target.startQPU-(b.branchQPU+4)) * 8)

		if b.branchUniform < 0 {
			if br.UB {
				return errors.New("branch in %v moves the uniform stream without a uniform", b)
			}
			continue
		}
		e.uniforms[b.branchUniform] = UniformSlot{
			Contents: UniformConstant,
			Data:     uint32(int32(target.startUniform-(b.branchUniform+1)) * 4),
		}
	}
	return nil
}

func (e *qpuEmitter) src(r Reg) (operand, error) {
	switch r.File {
	case FileNull:
		return operand{null: true}, nil
	case FileTemp:
		if int(r.Index) >= len(e.regs) {
			return operand{}, errors.New("temp %v has no register", r)
		}
		return operand{reg: e.regs[r.Index]}, nil
	case FileReg:
		return operand{reg: qpu.Reg{Index: uint8(r.Index)}}, nil
	case FileMagic:
		if !e.dev.IsAccumulator(qpu.Waddr(r.Index)) {
			return operand{}, errors.New("%v cannot be read", r)
		}
		return operand{reg: qpu.Reg{Magic: true, Index: uint8(r.Index)}}, nil
	case FileSmallImm:
		p, ok := qpu.SmallImmPack(r.Index)
		if !ok {
			return operand{}, errors.New("0x%x is not a small immediate", r.Index)
		}
		return operand{imm: true, packed: uint8(p)}, nil
	}
	return operand{}, errors.New("cannot encode source %v", r)
}

func (e *qpuEmitter) dst(r Reg) (addr uint8, magic bool, err error) {
	switch r.File {
	case FileNull:
		return uint8(qpu.WaddrNOP), true, nil
	case FileTemp:
		if int(r.Index) >= len(e.regs) {
			return 0, false, errors.New("temp %v has no register", r)
		}
		reg := e.regs[r.Index]
		return reg.Index, reg.Magic, nil
	case FileReg:
		return uint8(r.Index), false, nil
	case FileMagic:
		return uint8(r.Index), true, nil
	}
	return 0, false, errors.New("cannot write %v", r)
}

// readPorts tracks the register file read addresses an instruction uses
// on devices with accumulators.
type readPorts struct {
	usedA, usedB bool
}

func (e *qpuEmitter) setSrc(in *qpu.Instr, ports *readPorts, input *qpu.ALUInput, op operand) error {
	if !e.dev.HasAccumulators {
		switch {
		case op.imm:
			input.Raddr = op.packed
		case op.null:
			input.Raddr = 0
		case op.reg.Magic:
			return errors.New("accumulator %v on a device without accumulators", op.reg)
		default:
			input.Raddr = op.reg.Index
		}
		return nil
	}

	switch {
	case op.imm:
		if ports.usedB && in.RaddrB != op.packed {
			return errors.New("raddr_b is taken")
		}
		in.RaddrB = op.packed
		ports.usedB = true
		input.Mux = qpu.MuxB
	case op.null:
		input.Mux = qpu.MuxR5
	case op.reg.Magic:
		input.Mux = qpu.MuxR0 + qpu.Mux(op.reg.Index-uint8(qpu.WaddrR0))
	case !ports.usedA || in.RaddrA == op.reg.Index:
		in.RaddrA = op.reg.Index
		ports.usedA = true
		input.Mux = qpu.MuxA
	case !ports.usedB || (in.RaddrB == op.reg.Index && !in.Sig.SmallImm()):
		in.RaddrB = op.reg.Index
		ports.usedB = true
		input.Mux = qpu.MuxB
	default:
		return errors.New("no register file read port left for %v", op.reg)
	}
	return nil
}

// isNoOpMov reports whether inst copies a register onto itself.
func isNoOpMov(inst *Inst, srcs []operand, dst qpu.Reg) bool {
	if !inst.IsRawMov() || inst.WritesFlags() || !inst.Sig.IsZero() || inst.ReadsUniform() {
		return false
	}
	s := srcs[0]
	return !s.imm && !s.null && s.reg == dst
}

func (e *qpuEmitter) alu(inst *Inst) error {
	in := qpu.Instr{Type: qpu.InstrALU, Sig: inst.Sig, Flags: inst.Flags}

	n := inst.NumSrc()
	srcs := make([]operand, n)
	for i := range srcs {
		op, err := e.src(inst.Src[i])
		if err != nil {
			return err
		}
		srcs[i] = op
	}

	waddr, magic, err := e.dst(inst.Dst)
	if err != nil {
		return err
	}
	if isNoOpMov(inst, srcs, qpu.Reg{Magic: magic, Index: waddr}) {
		return nil
	}

	var ports readPorts
	switch {
	case inst.IsAdd():
		in.Add = qpu.AddALU{Op: inst.Add.Op, Waddr: waddr, MagicWrite: magic, OutputPack: inst.Add.Pack}
		in.Add.A.Unpack, in.Add.B.Unpack = inst.Add.AUnpack, inst.Add.BUnpack
		if n > 0 {
			err = e.setSrc(&in, &ports, &in.Add.A, srcs[0])
		}
		if err == nil && n > 1 {
			err = e.setSrc(&in, &ports, &in.Add.B, srcs[1])
		}
	case inst.IsMul():
		in.Mul = qpu.MulALU{Op: inst.Mul.Op, Waddr: waddr, MagicWrite: magic, OutputPack: inst.Mul.Pack}
		in.Mul.A.Unpack, in.Mul.B.Unpack = inst.Mul.AUnpack, inst.Mul.BUnpack
		if n > 0 {
			err = e.setSrc(&in, &ports, &in.Mul.A, srcs[0])
		}
		if err == nil && n > 1 {
			err = e.setSrc(&in, &ports, &in.Mul.B, srcs[1])
		}
	default:
		e.setSigDst(&in, inst, waddr, magic)
	}
	if err != nil {
		return err
	}

	e.waitForSFU(srcs)
	if inst.IsLdunifa() {
		for len(e.code) <= e.unifaTick+unifaLatency {
			e.nops(1)
		}
	}

	tick := len(e.code)
	e.code = append(e.code, in)
	if inst.Uniform >= 0 {
		e.uniforms = append(e.uniforms, e.c.uniforms[inst.Uniform])
	}

	if inst.UsesSFU() {
		e.sfuTick = tick
		e.sfuReg = qpu.Reg{Magic: magic, Index: waddr}
		if magic && qpu.Waddr(waddr).IsSFU() {
			e.sfuReg = qpu.Reg{Magic: true, Index: uint8(qpu.WaddrR4)}
		}
	}
	if inst.Dst.IsMagic(qpu.WaddrUnifa) {
		e.unifaTick = tick
	}

	if inst.Sig.Thrsw {
		if inst.IsLastThrsw {
			// The last switch is signalled by a second thrsw in the
			// first delay slot.
			last := qpu.NOP()
			last.Sig.Thrsw = true
			e.code = append(e.code, last)
			e.nops(thrswDelaySlots - 1)
		} else {
			e.nops(thrswDelaySlots)
		}
	}
	return nil
}

// setSigDst routes the destination of a signal-only instruction.
func (e *qpuEmitter) setSigDst(in *qpu.Instr, inst *Inst, waddr uint8, magic bool) {
	if inst.Sig.Ldunif || inst.Sig.Ldunifa {
		var rf bool
		if e.dev.HasAccumulators {
			rf = !magic || waddr != uint8(qpu.WaddrR5)
		} else {
			rf = magic || waddr != 0
		}
		if !rf {
			return
		}
		if in.Sig.Ldunif {
			in.Sig.Ldunif, in.Sig.Ldunifrf = false, true
		} else {
			in.Sig.Ldunifa, in.Sig.Ldunifarf = false, true
		}
	}
	if qpu.SigWritesAddress(e.dev, in.Sig) {
		in.SigAddr = waddr
		in.SigMagic = magic
	}
}

// waitForSFU pads with NOPs, or counts the stall on devices that
// interlock, when a source is a special function result still in flight.
func (e *qpuEmitter) waitForSFU(srcs []operand) {
	reads := false
	for _, s := range srcs {
		if !s.imm && !s.null && s.reg == e.sfuReg {
			reads = true
		}
	}
	if !reads {
		return
	}
	if e.dev.HasAccumulators {
		for len(e.code) <= e.sfuTick+sfuLatency {
			e.nops(1)
		}
		return
	}
	if len(e.code) == e.sfuTick+1 {
		e.stalls++
	}
}
