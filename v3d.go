// Package v3d provides a Pure Go shader compiler backend for the Broadcom
// VideoCore V3D GPU.
//
// A front end describes a shader by emitting VIR (the V3D intermediate
// representation) into a vir.Compile. The backend optimizes the VIR,
// allocates registers, and lowers it to QPU machine code. When the program
// does not fit the register file, the driver retries with progressively
// more conservative compile strategies and keeps the best result.
//
// Example usage:
//
//	shader := v3d.ShaderFunc(vir.StageFragment, func(c *vir.Compile, _ *v3d.Key) error {
//	    color := c.FADD(c.UniformF(0.5), c.UniformF(0.25))
//	    c.MOVDest(vir.Magic(qpu.WaddrTLB), color)
//	    return nil
//	})
//	res, err := v3d.Compile(&v3d.Key{}, shader, v3d.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Stats)
//
// Textual VIR can be compiled with the asm package:
//
//	shader, err := asm.Parse("color.vir", source)
//	res, err := v3d.Compile(&v3d.Key{}, shader, v3d.DefaultOptions())
package v3d

import (
	"fmt"

	"tlog.app/go/errors"

	"github.com/gogpu/v3d/vir"
)

var (
	// ErrAllStrategiesFailed is returned when register allocation failed
	// under every compile strategy.
	ErrAllStrategiesFailed = errors.New("failed to register allocate using all strategies")
	// ErrUnsupportedStage is returned for a shader of an unknown stage.
	ErrUnsupportedStage = errors.New("unsupported shader stage")
	// ErrNilShader is returned when no shader is given.
	ErrNilShader = errors.New("nil shader")
)

// Key identifies a shader variant. The backend passes it through to the
// front end unchanged.
type Key struct {
	// ProgramID and VariantID only label debug output.
	ProgramID int
	VariantID int
}

// Shader emits the VIR of one shader. Emit is called once per compile
// attempt, each time with a fresh vir.Compile, so it must be repeatable.
type Shader interface {
	Stage() vir.Stage
	Emit(c *vir.Compile, key *Key) error
}

type shaderFunc struct {
	stage vir.Stage
	emit  func(c *vir.Compile, key *Key) error
}

func (s shaderFunc) Stage() vir.Stage { return s.stage }

func (s shaderFunc) Emit(c *vir.Compile, key *Key) error { return s.emit(c, key) }

// ShaderFunc adapts an emit function to the Shader interface.
func ShaderFunc(stage vir.Stage, emit func(c *vir.Compile, key *Key) error) Shader {
	return shaderFunc{stage: stage, emit: emit}
}

// Result is a compiled shader.
type Result struct {
	// Code is the encoded QPU program.
	Code []uint64
	// Program holds the decoded instructions and the uniform stream.
	Program  *vir.Program
	ProgData ProgData
	// Stats is the shader-db statistics line.
	Stats string
	// Strategy names the compile strategy that produced the code.
	Strategy string
}

// Compile compiles shader, trying the strategies of opts in order.
//
// The compilation pipeline per attempt is:
//  1. Emit VIR through the shader
//  2. Optimize the VIR to a fixpoint
//  3. Validate the VIR (if enabled)
//  4. Allocate registers, spilling or lowering the thread count as allowed
//  5. Lower to QPU instructions and encode them
func Compile(key *Key, shader Shader, opts Options) (*Result, error) {
	if shader == nil {
		return nil, ErrNilShader
	}
	if !shader.Stage().Valid() {
		return nil, errors.Wrap(ErrUnsupportedStage, "%v", shader.Stage())
	}
	if key == nil {
		key = &Key{}
	}
	opts = opts.withDefaults()

	d := driver{key: key, shader: shader, opts: opts}
	best, err := d.run()
	if err != nil {
		return nil, err
	}

	p := best.prog
	if n := p.Stats.Spills + p.Stats.Fills; n > 0 {
		d.debugf("Compiled %s prog %d/%d with %d spills and %d fills.",
			shader.Stage().ShortName(), key.ProgramID, key.VariantID, p.Stats.Spills, p.Stats.Fills)
	}

	return &Result{
		Code:     p.Code,
		Program:  p,
		ProgData: newProgData(p, best.idx),
		Stats:    p.ShaderDB(),
		Strategy: opts.Strategies[best.idx].Name,
	}, nil
}

// attempt is the outcome of compiling under one strategy.
type attempt struct {
	idx       int
	prog      *vir.Program
	threads   int
	telemetry vir.Telemetry
}

type driver struct {
	key    *Key
	shader Shader
	opts   Options
}

func (d *driver) debugf(format string, args ...any) {
	if d.opts.DebugOutput != nil {
		d.opts.DebugOutput(fmt.Sprintf(format, args...))
	}
}

func (d *driver) run() (*attempt, error) {
	var best, last *attempt
	stage := d.shader.Stage()

	for i, s := range d.opts.Strategies {
		if i > 0 {
			if last != nil && skipStrategy(d.opts.Strategies[i-1], s, last) {
				if d.opts.Logger.If("strategy") {
					d.opts.Logger.Printw("skip strategy", "strategy", s.Name, "idx", i)
				}
				continue
			}
			d.debugf("Falling back to strategy '%s' for %s prog %d/%d",
				s.Name, stage.ShortName(), d.key.ProgramID, d.key.VariantID)
		}

		a, err := d.attempt(i, s)
		if a != nil {
			last = a
		}
		if err != nil {
			if errors.Is(err, vir.ErrRegisterAllocation) {
				if d.opts.Logger.If("strategy") {
					d.opts.Logger.Printw("strategy failed", "strategy", s.Name, "idx", i, "err", err)
				}
				continue
			}
			return nil, errors.Wrap(err, "%v prog %d/%d: strategy %q", stage, d.key.ProgramID, d.key.VariantID, s.Name)
		}

		st := a.prog.Stats
		if st.Spills == 0 || s.MinThreads == 4 {
			best = a
			break
		}
		if best == nil || st.Spills+st.Fills < best.prog.Stats.Spills+best.prog.Stats.Fills {
			best = a
		}
	}

	if best == nil {
		return nil, errors.Wrap(ErrAllStrategiesFailed, "%v prog %d/%d", stage, d.key.ProgramID, d.key.VariantID)
	}
	if d.opts.Logger.If("strategy") {
		d.opts.Logger.Printw("selected strategy", "strategy", d.opts.Strategies[best.idx].Name,
			"idx", best.idx, "threads", best.prog.Threads)
	}
	return best, nil
}

// attempt compiles the shader under s. The returned attempt carries the
// telemetry of the compile even when register allocation failed.
func (d *driver) attempt(idx int, s Strategy) (*attempt, error) {
	c := vir.NewCompile(d.opts.config(d.key, d.shader.Stage(), s))

	if err := d.shader.Emit(c, d.key); err != nil {
		return nil, errors.Wrap(err, "emit")
	}

	p, err := c.Finish()
	a := &attempt{idx: idx, threads: c.Threads(), telemetry: c.Telemetry}
	if err != nil {
		return a, err
	}
	a.prog = p
	return a, nil
}
