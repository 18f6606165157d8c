package v3d

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/v3d/qpu"
	"github.com/gogpu/v3d/vir"
)

func colorShader(calls *int) Shader {
	return ShaderFunc(vir.StageFragment, func(c *vir.Compile, _ *Key) error {
		if calls != nil {
			*calls++
		}
		color := c.FADD(c.UniformF(0.5), c.FMUL(c.UniformF(0.25), c.UniformF(3)))
		c.MOVDest(vir.Magic(qpu.WaddrTLB), c.ADD(color, c.EIDX()))
		return nil
	})
}

// pressureShader keeps n values live at once.
func pressureShader(n int) Shader {
	return ShaderFunc(vir.StageCompute, func(c *vir.Compile, _ *Key) error {
		vals := make([]vir.Reg, n)
		for i := range vals {
			vals[i] = c.ADD(c.EIDX(), c.UniformUI(uint32(1000+i)))
		}
		sum := vals[0]
		for _, v := range vals[1:] {
			sum = c.ADD(sum, v)
		}
		c.MOVDest(vir.Magic(qpu.WaddrTMUD), sum)
		return nil
	})
}

func TestCompileSimple(t *testing.T) {
	for _, dev := range []*qpu.DeviceInfo{qpu.V42(), qpu.V71()} {
		t.Run(dev.String(), func(t *testing.T) {
			calls := 0
			opts := DefaultOptions()
			opts.Device = dev

			res, err := Compile(&Key{ProgramID: 3, VariantID: 1}, colorShader(&calls), opts)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			if calls != 1 {
				t.Errorf("Emit called %d times, want 1", calls)
			}
			if res.Strategy != "default" || res.ProgData.CompileStrategyIdx != 0 {
				t.Errorf("strategy = %q (%d), want default", res.Strategy, res.ProgData.CompileStrategyIdx)
			}
			if res.ProgData.Threads != 4 {
				t.Errorf("threads = %d, want 4", res.ProgData.Threads)
			}
			if res.ProgData.Stage != vir.StageFragment {
				t.Errorf("stage = %v", res.ProgData.Stage)
			}
			if res.ProgData.TMUSpills != 0 || res.ProgData.TMUFills != 0 {
				t.Errorf("spills:fills = %d:%d", res.ProgData.TMUSpills, res.ProgData.TMUFills)
			}
			if len(res.Code) == 0 || len(res.Code) != len(res.Program.Code) {
				t.Errorf("code has %d words", len(res.Code))
			}
			if len(res.ProgData.Uniforms) == 0 {
				t.Error("no uniforms recorded")
			}
			if !strings.HasPrefix(res.Stats, "FS shader: ") {
				t.Errorf("Stats = %q", res.Stats)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	emitErr := errors.New("unsupported intrinsic")

	tests := []struct {
		name   string
		shader Shader
		want   error
	}{
		{"nil shader", nil, ErrNilShader},
		{"bad stage", ShaderFunc(vir.Stage(42), func(*vir.Compile, *Key) error { return nil }), ErrUnsupportedStage},
		{"emit failure", ShaderFunc(vir.StageVertex, func(*vir.Compile, *Key) error { return emitErr }), emitErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(nil, tt.shader, DefaultOptions())
			if !errors.Is(err, tt.want) {
				t.Errorf("Compile() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCompileEmitFailureStops(t *testing.T) {
	calls := 0
	shader := ShaderFunc(vir.StageFragment, func(*vir.Compile, *Key) error {
		calls++
		return errors.New("broken shader")
	})
	if _, err := Compile(nil, shader, DefaultOptions()); err == nil {
		t.Fatal("Compile() succeeded")
	}
	if calls != 1 {
		t.Errorf("Emit called %d times, want 1", calls)
	}
}

func TestCompileFallback(t *testing.T) {
	var msgs []string
	opts := DefaultOptions()
	opts.DebugOutput = func(s string) { msgs = append(msgs, s) }

	res, err := Compile(nil, pressureShader(200), opts)
	if err != nil && !errors.Is(err, ErrAllStrategiesFailed) {
		t.Fatalf("Compile() error = %v", err)
	}
	if err == nil {
		if res.ProgData.CompileStrategyIdx < 6 {
			t.Errorf("strategy %q fit %d live values at 4 threads", res.Strategy, 200)
		}
		if res.ProgData.Threads > 2 {
			t.Errorf("threads = %d", res.ProgData.Threads)
		}
	}

	log := strings.Join(msgs, "\n")
	if !strings.Contains(log, "Falling back to strategy 'lower thread count' for CS prog 0/0") {
		t.Errorf("no fallback to two threads in:\n%s", log)
	}
	// Without TMU loads the TMU and NIR toggles cannot change anything.
	for _, name := range []string{"disable general TMU sched", "disable gcm", "disable TMU pipelining", "Move buffer loads (2t)"} {
		if strings.Contains(log, "'"+name+"'") {
			t.Errorf("strategy %q was not skipped", name)
		}
	}
}

// TestCompileFrontEndToggles checks that a toggle the front end honors is
// tried when its telemetry says it changed the previous attempt.
func TestCompileFrontEndToggles(t *testing.T) {
	var msgs []string
	opts := DefaultOptions()
	opts.DebugOutput = func(s string) { msgs = append(msgs, s) }

	inner := pressureShader(200)
	shader := ShaderFunc(vir.StageCompute, func(c *vir.Compile, key *Key) error {
		c.Telemetry.UnrolledAnyLoops = !c.Config().DisableLoopUnrolling
		return inner.Emit(c, key)
	})
	_, _ = Compile(nil, shader, opts)

	log := strings.Join(msgs, "\n")
	if !strings.Contains(log, "'disable loop unrolling'") {
		t.Errorf("loop unrolling toggle not tried in:\n%s", log)
	}
	for _, name := range []string{"disable gcm", "disable UBO load sorting"} {
		if strings.Contains(log, "'"+name+"'") {
			t.Errorf("strategy %q was not skipped", name)
		}
	}
}

func TestCompileDebugOutput(t *testing.T) {
	var msgs []string
	opts := DefaultOptions()
	opts.Debug = vir.Debug{ShaderDB: true, QPU: true}
	opts.DebugOutput = func(s string) { msgs = append(msgs, s) }

	res, err := Compile(nil, colorShader(nil), opts)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	found := false
	for _, m := range msgs {
		if m == res.Stats {
			found = true
		}
	}
	if !found {
		t.Errorf("stats line %q not written to DebugOutput: %q", res.Stats, msgs)
	}
	if len(msgs) != 2 {
		t.Errorf("%d messages, want disassembly and stats", len(msgs))
	}
}

func TestCompileCustomStrategies(t *testing.T) {
	opts := DefaultOptions()
	opts.Strategies = []Strategy{{Name: "single thread", MaxThreads: 1, MinThreads: 1, MaxTMUSpills: -1}}

	res, err := Compile(nil, colorShader(nil), opts)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if res.Strategy != "single thread" || res.ProgData.Threads != 1 {
		t.Errorf("strategy %q at %d threads", res.Strategy, res.ProgData.Threads)
	}
	if !res.ProgData.SingleSeg {
		t.Error("single-threaded program has a final thread switch")
	}
}
