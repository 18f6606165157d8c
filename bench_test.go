package v3d_test

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/gogpu/v3d"
	"github.com/gogpu/v3d/asm"
	"github.com/gogpu/v3d/qpu"
	"github.com/gogpu/v3d/vir"
)

// ---------------------------------------------------------------------------
// Test shader sources: textual VIR at different complexity levels
// ---------------------------------------------------------------------------

// shaderSmallFragment writes one constant color.
const shaderSmallFragment = `
.stage fragment
	c = fadd 0.5, 0.25
	tlb = fmov c
`

// shaderMediumCompute loads two words, combines them and stores the result.
const shaderMediumCompute = `
.stage compute
	i = eidx
	a = shl i, 2
	base = uniform ubo_addr 0
	addr = add base, a
	x, y = tmuload addr
	s = add x, y
	t = umul24 s, 3
	tmustore addr, t
`

// shaderLoopFragment has a loop with a conditional back edge.
const shaderLoopFragment = `
.stage fragment
	n = mov 16
	acc = mov 0
	i = eidx
loop:
	acc = add acc, i
	n = sub.pushz n, 1
	br.anyna loop
done:
	tlb = mov acc
`

type benchShader struct {
	name   string
	source string
}

var benchShaders = []benchShader{
	{"SmallFragment", shaderSmallFragment},
	{"MediumCompute", shaderMediumCompute},
	{"LoopFragment", shaderLoopFragment},
}

func mustParse(b *testing.B, name, source string) *asm.Program {
	b.Helper()
	p, err := asm.Parse(name, source)
	if err != nil {
		b.Fatalf("parse %s: %v", name, err)
	}
	return p
}

// pressureShader keeps n values live at once.
func pressureShader(n int) v3d.Shader {
	return v3d.ShaderFunc(vir.StageCompute, func(c *vir.Compile, _ *v3d.Key) error {
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

// ---------------------------------------------------------------------------
// Benchmarks
// ---------------------------------------------------------------------------

// BenchmarkParse measures textual VIR parsing alone.
func BenchmarkParse(b *testing.B) {
	for _, sc := range benchShaders {
		b.Run(sc.name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(sc.source)))
			var p *asm.Program
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				var err error
				p, err = asm.Parse(sc.name, sc.source)
				if err != nil {
					b.Fatal(err)
				}
			}
			runtime.KeepAlive(p)
		})
	}
}

// BenchmarkCompile measures the full backend per device.
func BenchmarkCompile(b *testing.B) {
	for _, dev := range []*qpu.DeviceInfo{qpu.V42(), qpu.V71()} {
		for _, sc := range benchShaders {
			p := mustParse(b, sc.name, sc.source)
			b.Run(dev.String()+"/"+sc.name, func(b *testing.B) {
				b.ReportAllocs()
				opts := v3d.DefaultOptions()
				opts.Device = dev
				var res *v3d.Result
				b.ResetTimer()
				for i := 0; i < b.N; i++ {
					var err error
					res, err = v3d.Compile(&v3d.Key{}, p, opts)
					if err != nil {
						b.Fatal(err)
					}
				}
				runtime.KeepAlive(res)
			})
		}
	}
}

// BenchmarkCompileWithoutValidation measures the cost of VIR validation by
// leaving it out.
func BenchmarkCompileWithoutValidation(b *testing.B) {
	p := mustParse(b, "MediumCompute", shaderMediumCompute)
	b.ReportAllocs()
	opts := v3d.DefaultOptions()
	opts.Validate = false
	var res *v3d.Result
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var err error
		res, err = v3d.Compile(&v3d.Key{}, p, opts)
		if err != nil {
			b.Fatal(err)
		}
	}
	runtime.KeepAlive(res)
}

// BenchmarkRegisterPressure measures shaders that force thread count
// reductions and spilling.
func BenchmarkRegisterPressure(b *testing.B) {
	for _, n := range []int{16, 48, 96} {
		b.Run(fmt.Sprintf("live%d", n), func(b *testing.B) {
			b.ReportAllocs()
			shader := pressureShader(n)
			var res *v3d.Result
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				// Failing every strategy still exercises the whole ladder.
				res, _ = v3d.Compile(&v3d.Key{}, shader, v3d.DefaultOptions())
			}
			runtime.KeepAlive(res)
		})
	}
}
