package asm

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/v3d"
	"github.com/gogpu/v3d/qpu"
	"github.com/gogpu/v3d/vir"
)

func emit(t *testing.T, src string) *vir.Compile {
	t.Helper()
	p, err := Parse("test.vir", src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	c := vir.NewCompile(vir.Config{Device: qpu.V42(), Stage: p.Stage()})
	if err := p.Emit(c, &v3d.Key{}); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}
	return c
}

// position returns the program order index of the first instruction
// matching pred, or -1.
func position(c *vir.Compile, pred func(*vir.Inst) bool) int {
	found, i := -1, 0
	c.ForEachInst(func(_ *vir.Block, inst *vir.Inst) {
		if found < 0 && pred(inst) {
			found = i
		}
		i++
	})
	return found
}

const blocksSource = `b0:
	x = eidx
	or.pushz x, x
	br.anya b2
b1:
	tlb = mov x
	br b2
b2:
	tlb = fmov x
`

func TestEmitBlocks(t *testing.T) {
	c := emit(t, blocksSource)
	blocks := c.Blocks()
	if len(blocks) != 3 {
		t.Fatalf("%d blocks, want 3", len(blocks))
	}

	tests := []struct {
		name  string
		block *vir.Block
		succ  []*vir.Block
	}{
		{"conditional branch then fall-through", blocks[0], []*vir.Block{blocks[2], blocks[1]}},
		{"unconditional branch", blocks[1], []*vir.Block{blocks[2]}},
		{"exit", blocks[2], nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Successors(tt.block)
			if len(got) != len(tt.succ) {
				t.Fatalf("successors = %v, want %v", got, tt.succ)
			}
			for i := range got {
				if got[i] != tt.succ[i] {
					t.Errorf("successor %d = %v, want %v", i, got[i], tt.succ[i])
				}
			}
		})
	}
}

func TestEmitRoundTrip(t *testing.T) {
	first := emit(t, blocksSource).Dump()
	second := emit(t, first).Dump()
	if first != second {
		t.Errorf("dump changed after reparsing:\n%s\nthen:\n%s", first, second)
	}
	if !strings.Contains(first, "br.anya b2") {
		t.Errorf("dump lost the branch:\n%s", first)
	}
}

func TestEmitCollectsTMUBeforeUse(t *testing.T) {
	c := emit(t, `.stage compute
	a = eidx
	v, w = tmuload a
	x = add v, a
	tmustore a, x
`)
	ldtmu := func(i *vir.Inst) bool { return i.Sig.Ldtmu }
	add := func(i *vir.Inst) bool { return i.Add.Op == qpu.AddADD }
	tmuwt := func(i *vir.Inst) bool { return i.Add.Op == qpu.AddTMUWT }

	if l, a := position(c, ldtmu), position(c, add); l < 0 || a < l {
		t.Errorf("ldtmu at %d, add at %d:\n%s", l, a, c.Dump())
	}
	n := 0
	c.ForEachInst(func(_ *vir.Block, inst *vir.Inst) {
		if inst.Sig.Ldtmu {
			n++
		}
	})
	if n != 2 {
		t.Errorf("%d ldtmu, want 2", n)
	}
	if position(c, tmuwt) < 0 {
		t.Errorf("store not waited for at block end:\n%s", c.Dump())
	}
}

func TestEmitCollectsTMUAtBlockEnd(t *testing.T) {
	c := emit(t, `	a = eidx
	v = tmuload a
next:
	tlb = mov v
`)
	entry := c.EntryBlock()
	found := false
	for _, inst := range c.BlockInsts(entry) {
		if inst.Sig.Ldtmu {
			found = true
		}
	}
	if !found {
		t.Errorf("load not collected in its block:\n%s", c.Dump())
	}
}

func TestEmitConditionalFirstWrite(t *testing.T) {
	c := emit(t, `	a = eidx
	or.pushz a, a
	r = mov.ifa a
	r = mov.ifna 1
	tlb = mov r
`)
	var dst vir.Reg
	c.ForEachInst(func(_ *vir.Block, inst *vir.Inst) {
		if inst.Mul.Op == qpu.MulMOV && inst.Cond() == qpu.CondIfA {
			dst = inst.Dst
		}
	})
	if !dst.IsTemp() {
		t.Fatalf("conditional write has destination %v", dst)
	}
	if c.Def(int(dst.Index)) != nil {
		t.Errorf("conditionally written %v has a single definition", dst)
	}
}

func TestStrategies(t *testing.T) {
	tests := []struct {
		name    string
		threads string
		want    int
	}{
		{"no directive", "", 13},
		{"four", ".threads 4\n", 13},
		{"two", ".threads 2\n", 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse("t.vir", tt.threads+"nop\n")
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			got := p.Strategies(v3d.DefaultStrategies())
			if len(got) != tt.want {
				t.Errorf("%d strategies, want %d", len(got), tt.want)
			}
			for _, s := range got {
				if p.Threads != 0 && s.MaxThreads > p.Threads {
					t.Errorf("%q starts at %d threads", s.Name, s.MaxThreads)
				}
			}
		})
	}
}

func TestCompileTestdata(t *testing.T) {
	files, err := filepath.Glob("testdata/*.vir")
	if err != nil || len(files) == 0 {
		t.Fatalf("no testdata: %v", err)
	}

	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			t.Fatal(err)
		}
		p, err := Parse(filepath.Base(file), string(src))
		if err != nil {
			t.Fatalf("Parse(%s) error = %v", file, err)
		}

		for _, dev := range []*qpu.DeviceInfo{qpu.V42(), qpu.V71()} {
			t.Run(filepath.Base(file)+"/"+dev.String(), func(t *testing.T) {
				opts := v3d.DefaultOptions()
				opts.Device = dev
				opts.Strategies = p.Strategies(opts.Strategies)

				res, err := v3d.Compile(&v3d.Key{}, p, opts)
				if err != nil {
					t.Fatalf("Compile() error = %v", err)
				}
				if len(res.Code) == 0 {
					t.Error("no code")
				}
				if _, err := qpu.Disassemble(dev, res.Code); err != nil {
					t.Errorf("Disassemble() error = %v", err)
				}
			})
		}
	}
}
