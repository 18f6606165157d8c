package asm

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/v3d/qpu"
	"github.com/gogpu/v3d/vir"
)

func TestParseInstruction(t *testing.T) {
	src := ".stage compute\n.threads 2\n\tx = fadd.ifa.pushz rf3.abs, -1.5 [const 7]\n"
	p, err := Parse("test.vir", src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.Stage() != vir.StageCompute || p.Threads != 2 {
		t.Errorf("stage %v threads %d", p.Stage(), p.Threads)
	}
	if len(p.Blocks) != 1 || len(p.Blocks[0].Stmts) != 1 {
		t.Fatalf("blocks = %+v", p.Blocks)
	}

	s := p.Blocks[0].Stmts[0]
	if s.Kind != StmtALU || s.IsMul || s.AddOp != qpu.AddFADD {
		t.Errorf("op = %v", s.AddOp)
	}
	if s.Cond != qpu.CondIfA || s.PF != qpu.PFPushZ {
		t.Errorf("cond %v pf %v", s.Cond, s.PF)
	}
	if len(s.Dsts) != 1 || s.Dsts[0].Kind != OperandValue || s.Dsts[0].Name != "x" {
		t.Errorf("dsts = %+v", s.Dsts)
	}
	if s.Srcs[0].Kind != OperandPhys || s.Srcs[0].Index != 3 || s.Srcs[0].Unpack != qpu.UnpackAbs {
		t.Errorf("src 0 = %+v", s.Srcs[0])
	}
	if s.Srcs[1].Kind != OperandImm || s.Srcs[1].Index != 0xbfc00000 {
		t.Errorf("src 1 = %+v", s.Srcs[1])
	}
	if !s.HasUniform || s.Uniform != (vir.UniformSlot{Contents: vir.UniformConstant, Data: 7}) {
		t.Errorf("uniform = %v", s.Uniform)
	}
}

func TestParseForms(t *testing.T) {
	tests := []struct {
		name string
		line string
		kind StmtKind
	}{
		{"mul op", "x = mov 1", StmtALU},
		{"add before mul", "x = add 1, 2", StmtALU},
		{"signal", "x = ldunif [ubo_addr 2]", StmtSig},
		{"thread switch", "nop.thrsw", StmtSig},
		{"uniform", "x = uniform ssbo_offset 0", StmtUniform},
		{"tmu load", "a, b, c = tmuload 64", StmtTMULoad},
		{"tmu store", "tmustore 64, 1, 2", StmtTMUStore},
		{"flush", "flush", StmtFlush},
		{"magic write", "tlb = fmov 0.25", StmtALU},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse("test.vir", tt.line)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := p.Blocks[0].Stmts[0].Kind; got != tt.kind {
				t.Errorf("kind = %v, want %v", got, tt.kind)
			}
		})
	}

	p, _ := Parse("test.vir", "x = add 1, 2")
	if s := p.Blocks[0].Stmts[0]; s.IsMul || s.AddOp != qpu.AddADD {
		t.Error("add resolved to the mul slot")
	}
}

func TestParseBlocks(t *testing.T) {
	src := `entry:
	x = eidx
	or.pushz x, x
	br.anya done
body:
	tlb = mov x
	br done
done:
	tlb = fmov x
`
	p, err := Parse("blocks.vir", src)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	var labels []string
	for _, b := range p.Blocks {
		labels = append(labels, b.Label)
	}
	if strings.Join(labels, ",") != "entry,body,done" {
		t.Errorf("labels = %v", labels)
	}
	if p.Blocks[0].fallsThrough() != true || p.Blocks[1].fallsThrough() != false {
		t.Error("fall-through misdetected")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown op", "x = frob 1", `unknown operation "frob"`},
		{"undefined value", "tlb = mov y", `value "y" used before it is written`},
		{"undefined label", "br nowhere", `undefined label "nowhere"`},
		{"source count", "x = eidx\ny = add x", "add takes 2 source(s), got 1"},
		{"stage", ".stage pixel", `unknown stage "pixel"`},
		{"after branch", "br done\ntlb = mov 1\ndone:", "instruction after branch"},
		{"label twice", "a:\na:", `label "a" redefined`},
		{"ldunif without slot", "x = ldunif", "ldunif needs a uniform"},
		{"literal destination", "5 = mov 1", "cannot write to a literal"},
		{"modifier", "x = mov.ifq 1", `unknown modifier "ifq"`},
		{"no destination", "x = nop", "nop has no destination"},
		{"store destination", "x = tmustore 1, 2", "tmustore has no destination"},
		{"load rewrite", "a = eidx\na = tmuload 0", `value "a" already written`},
		{"contents", "x = uniform bogus 1", `unknown uniform contents "bogus"`},
		{"bad character", "x = eidx $", "unexpected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.vir", tt.src)
			if err == nil {
				t.Fatal("Parse() succeeded")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want %q", err, tt.want)
			}
			if !strings.HasPrefix(err.Error(), "bad.vir:") {
				t.Errorf("error %q lacks the file name", err)
			}
		})
	}
}

func TestParseCollectsErrors(t *testing.T) {
	_, err := Parse("bad.vir", "x = frob 1\ny = eidx\nz = bogus 2\n")
	var errs SourceErrors
	if !errors.As(err, &errs) {
		t.Fatalf("error %T is not SourceErrors", err)
	}
	if len(errs) != 2 {
		t.Fatalf("%d errors, want 2: %v", len(errs), err)
	}
	if errs[0].Pos.Line != 1 || errs[1].Pos.Line != 3 {
		t.Errorf("lines %d and %d, want 1 and 3", errs[0].Pos.Line, errs[1].Pos.Line)
	}
	ctx := errs[1].Annotated()
	if !strings.Contains(ctx, "z = bogus 2") || !strings.Contains(ctx, "^") {
		t.Errorf("context:\n%s", ctx)
	}
}
