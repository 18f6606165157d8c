package vir

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/v3d/qpu"
)

func TestFinishStraightLine(t *testing.T) {
	for _, dev := range []*qpu.DeviceInfo{qpu.V42(), qpu.V71()} {
		t.Run(dev.String(), func(t *testing.T) {
			c := newTestCompile(dev)
			x := c.ADD(c.EIDX(), c.UniformUI(0x12345))
			c.MOVDest(Magic(qpu.WaddrTLB), x)

			p, err := c.Finish()
			if err != nil {
				t.Fatalf("Finish() error = %v", err)
			}
			if len(p.Code) != len(p.Instrs) || p.Stats.Instructions != len(p.Code) {
				t.Errorf("%d words, %d instructions, stats say %d",
					len(p.Code), len(p.Instrs), p.Stats.Instructions)
			}
			if p.Threads != 4 || p.Stats.Threads != 4 {
				t.Errorf("threads = %d, want 4", p.Threads)
			}
			if len(p.Uniforms) != 1 || p.Uniforms[0].Data != 0x12345 {
				t.Errorf("uniforms = %v, want the one constant", p.Uniforms)
			}

			n := len(p.Instrs)
			if n < 3 || !p.Instrs[n-3].Sig.Thrsw {
				t.Fatalf("program does not end with a thread end:\n%s", p.Disassemble(dev))
			}
			for _, in := range p.Instrs[n-2:] {
				if in.Sig.Thrsw || in.Add.Op != qpu.AddNOP || in.Mul.Op != qpu.MulNOP {
					t.Errorf("thread end delay slot is not a nop:\n%s", p.Disassemble(dev))
				}
			}

			for i, word := range p.Code {
				if _, err := qpu.Decode(dev, word); err != nil {
					t.Errorf("instruction %d does not decode: %v", i, err)
				}
			}

			if line := p.ShaderDB(); !strings.HasPrefix(line, "FS shader: ") {
				t.Errorf("ShaderDB() = %q", line)
			}
		})
	}
}

func TestFinishBranchTargets(t *testing.T) {
	c := newTestCompile(qpu.V71())
	b0 := c.EntryBlock()
	x := c.EIDX()
	c.Branch(qpu.BranchAlways)

	b1 := c.NewBlock()
	b2 := c.NewBlock()
	c.LinkBlocks(b0, b2)

	c.SetEmitBlock(b1)
	c.MOVDest(Magic(qpu.WaddrTLB), c.TIDX())
	c.LinkBlocks(b1, b2)

	c.SetEmitBlock(b2)
	c.MOVDest(Magic(qpu.WaddrTLB), x)

	p, err := c.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	br := p.Instrs[b0.branchQPU]
	if br.Type != qpu.InstrBranch {
		t.Fatalf("instruction %d is not the branch", b0.branchQPU)
	}
	if want := uint32((b2.startQPU - (b0.branchQPU + 4)) * 8); br.Branch.Offset != want {
		t.Errorf("offset = %d, want %d", int32(br.Branch.Offset), int32(want))
	}
	u := p.Uniforms[b0.branchUniform]
	if want := uint32((b2.startUniform - (b0.branchUniform + 1)) * 4); u.Data != want {
		t.Errorf("uniform distance = %d, want %d", u.Data, want)
	}
	for i := 1; i <= branchDelaySlots; i++ {
		in := p.Instrs[b0.branchQPU+i]
		if in.Type != qpu.InstrALU || in.Add.Op != qpu.AddNOP || in.Mul.Op != qpu.MulNOP {
			t.Errorf("delay slot %d is not a nop", i)
		}
	}
}

func TestFinishSFULatency(t *testing.T) {
	c := newTestCompile(qpu.V42())
	r := c.RECIP(c.EIDX())
	c.MOVDest(Magic(qpu.WaddrTLB), r)

	p, err := c.Finish()
	if err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	sfu, read := -1, -1
	for i, in := range p.Instrs {
		if in.Add.Op == qpu.AddRECIP {
			sfu = i
		}
		if in.Mul.Op == qpu.MulMOV && in.Mul.MagicWrite && in.Mul.Waddr == uint8(qpu.WaddrTLB) {
			read = i
		}
	}
	if sfu < 0 || read < 0 {
		t.Fatalf("missing instructions:\n%s", p.Disassemble(qpu.V42()))
	}
	if read-sfu <= sfuLatency {
		t.Errorf("result read %d instructions after the request", read-sfu)
	}
}

func TestRegisterAllocationTerminates(t *testing.T) {
	tests := []struct {
		name   string
		budget int
	}{
		{"no tmu spills", 0},
		{"unlimited", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCompile(Config{
				Device:       qpu.V42(),
				Stage:        StageCompute,
				MaxTMUSpills: tt.budget,
			})
			var vals []Reg
			for i := 0; i < 80; i++ {
				vals = append(vals, c.ADD(c.EIDX(), c.UniformUI(uint32(1000+i))))
			}
			sum := vals[0]
			for _, v := range vals[1:] {
				sum = c.ADD(sum, v)
			}
			c.MOVDest(Magic(qpu.WaddrTMUD), sum)

			p, err := c.Finish()
			if err != nil {
				if !errors.Is(err, ErrRegisterAllocation) {
					t.Fatalf("Finish() error = %v, want ErrRegisterAllocation", err)
				}
				return
			}
			if p.Threads > 4 || p.Threads < 1 {
				t.Errorf("threads = %d", p.Threads)
			}
			if tt.budget == 0 && p.Stats.Spills+p.Stats.Fills != 0 {
				t.Errorf("spilled %d:%d with a zero budget", p.Stats.Spills, p.Stats.Fills)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	c := newTestCompile(qpu.V71())
	x := c.EIDX()
	c.MOVDest(Magic(qpu.WaddrTLB), x)
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}

	bad := c.Def(int(x.Index))
	bad.Mul.Op = qpu.MulMOV
	c.MOVDest(Magic(qpu.WaddrR0), x)

	err := c.Validate()
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("Validate() = %v, want ValidationErrors", err)
	}
	if len(errs) != 2 {
		t.Errorf("%d errors, want 2: %v", len(errs), err)
	}
}

func TestDumpInst(t *testing.T) {
	c := newTestCompile(qpu.V42())
	x := c.EIDX()
	u := c.UniformUI(0x1234)
	s := c.FADD(x, u)
	c.Def(int(s.Index)).SetUnpack(0, qpu.UnpackAbs)
	m := c.MOVDest(Magic(qpu.WaddrTLB), s)
	m.SetCond(qpu.CondIfA)

	want := []string{
		"t0 = eidx",
		"t1 = ldunif [const 0x00001234]",
		"t2 = fadd t0.abs, t1",
		"tlb = mov.ifa t2",
	}
	var got []string
	c.ForEachInst(func(_ *Block, inst *Inst) {
		got = append(got, c.DumpInst(inst))
	})
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("dump:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}
