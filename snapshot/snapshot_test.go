// Package snapshot_test compiles every textual VIR shader in testdata/in/
// for each device and checks the resulting listings: compilation is
// deterministic, every word decodes to the instruction the compiler
// recorded, and the statistics agree with the code.
package snapshot_test

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/gogpu/v3d"
	"github.com/gogpu/v3d/asm"
	"github.com/gogpu/v3d/qpu"
)

type shaderFile struct {
	name   string
	source string
}

var devices = []*qpu.DeviceInfo{qpu.V42(), qpu.V71()}

func TestSnapshots(t *testing.T) {
	shaders := loadInputShaders(t, "testdata/in")
	if len(shaders) == 0 {
		t.Fatal("no input shaders found in testdata/in/")
	}

	for _, shader := range shaders {
		t.Run(shader.name, func(t *testing.T) {
			prog, err := asm.Parse(shader.name+".vir", shader.source)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}

			for _, dev := range devices {
				t.Run(dev.String(), func(t *testing.T) {
					res := compile(t, prog, dev)
					if again := compile(t, prog, dev); !slices.Equal(res.Code, again.Code) {
						t.Fatalf("compilation is not deterministic:\n%s", diffCode(dev, res.Code, again.Code))
					}
					checkListing(t, dev, res)
				})
			}
		})
	}
}

// loadInputShaders reads every .vir file in dir, sorted by name.
func loadInputShaders(t *testing.T, dir string) []shaderFile {
	t.Helper()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read input directory %q: %v", dir, err)
	}

	var shaders []shaderFile
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".vir") {
			continue
		}
		data, readErr := os.ReadFile(filepath.Join(dir, entry.Name()))
		if readErr != nil {
			t.Fatalf("read shader %q: %v", entry.Name(), readErr)
		}
		shaders = append(shaders, shaderFile{
			name:   strings.TrimSuffix(entry.Name(), ".vir"),
			source: string(data),
		})
	}
	return shaders
}

func compile(t *testing.T, prog *asm.Program, dev *qpu.DeviceInfo) *v3d.Result {
	t.Helper()

	opts := v3d.DefaultOptions()
	opts.Device = dev
	opts.Strategies = prog.Strategies(opts.Strategies)

	res, err := v3d.Compile(&v3d.Key{}, prog, opts)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return res
}

// checkListing compares the encoded words against the decoded program
// instruction by instruction and the statistics against both.
func checkListing(t *testing.T, dev *qpu.DeviceInfo, res *v3d.Result) {
	t.Helper()

	p := res.Program
	if len(p.Instrs) != len(res.Code) {
		t.Fatalf("%d instructions for %d words", len(p.Instrs), len(res.Code))
	}
	lines, err := qpu.Disassemble(dev, res.Code)
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	for i, line := range lines {
		if want := p.Instrs[i].Format(dev); line != want {
			t.Errorf("instruction %d decodes as %q, compiled as %q", i, line, want)
		}
	}

	st := p.Stats
	if st.Instructions != len(res.Code) {
		t.Errorf("stats count %d instructions, code has %d", st.Instructions, len(res.Code))
	}
	if st.Uniforms != len(res.ProgData.Uniforms) {
		t.Errorf("stats count %d uniforms, stream has %d", st.Uniforms, len(res.ProgData.Uniforms))
	}
	if !slices.Contains([]int{1, 2, 4}, res.ProgData.Threads) || st.Threads != res.ProgData.Threads {
		t.Errorf("threads = %d, stats %d", res.ProgData.Threads, st.Threads)
	}
	if !strings.Contains(res.Stats, fmt.Sprintf("%d inst,", len(res.Code))) {
		t.Errorf("stats line %q does not count %d instructions", res.Stats, len(res.Code))
	}
}

// diffCode reports the first instruction index where two programs differ,
// with the instructions around it.
func diffCode(dev *qpu.DeviceInfo, want, got []uint64) string {
	first := -1
	for i := 0; i < max(len(want), len(got)); i++ {
		if i >= len(want) || i >= len(got) || want[i] != got[i] {
			first = i
			break
		}
	}
	if first < 0 {
		return "(no difference found)"
	}

	const context = 3
	var sb strings.Builder
	fmt.Fprintf(&sb, "first difference at instruction %d (%d vs %d instructions):\n", first, len(want), len(got))
	for i := max(0, first-context); i <= first+context; i++ {
		w, g := formatWord(dev, want, i), formatWord(dev, got, i)
		if w == "" && g == "" {
			break
		}
		if w == g {
			fmt.Fprintf(&sb, "  %4d: %s\n", i, w)
			continue
		}
		fmt.Fprintf(&sb, "- %4d: %s\n+ %4d: %s\n", i, w, i, g)
	}
	return sb.String()
}

func formatWord(dev *qpu.DeviceInfo, code []uint64, i int) string {
	if i >= len(code) {
		return ""
	}
	in, err := qpu.Decode(dev, code[i])
	if err != nil {
		return fmt.Sprintf("%#016x (%v)", code[i], err)
	}
	return in.Format(dev)
}

func TestDiffCode(t *testing.T) {
	dev := qpu.V42()
	n := qpu.NOP()
	nop, err := qpu.Encode(dev, &n)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	thrsw := qpu.NOP()
	thrsw.Sig.Thrsw = true
	sw, err := qpu.Encode(dev, &thrsw)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	tests := []struct {
		name      string
		want, got []uint64
		first     string
	}{
		{"equal", []uint64{nop, sw}, []uint64{nop, sw}, "(no difference found)"},
		{"changed", []uint64{nop, nop, sw}, []uint64{nop, sw, sw}, "first difference at instruction 1 (3 vs 3 instructions)"},
		{"shorter", []uint64{nop, nop}, []uint64{nop}, "first difference at instruction 1 (2 vs 1 instructions)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := diffCode(dev, tt.want, tt.got)
			if !strings.HasPrefix(got, tt.first) {
				t.Errorf("diffCode() = %q, want prefix %q", got, tt.first)
			}
		})
	}
}
