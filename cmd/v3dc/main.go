// Command v3dc compiles textual VIR to V3D QPU machine code.
//
// Usage:
//
//	v3dc [options] <input.vir>...
//
// Examples:
//
//	v3dc shader.vir                     # Compile and print statistics
//	v3dc -o shader.bin shader.vir       # Write the encoded program
//	v3dc -dis -device 71 shader.vir     # Disassemble for V3D 7.1
//	v3dc -v ra,spill *.vir              # Log allocator decisions
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/gogpu/v3d"
	"github.com/gogpu/v3d/asm"
	"github.com/gogpu/v3d/qpu"
)

var (
	output    = flag.String("o", "", "output file for a single input (default: <input>.bin with -bin)")
	writeBin  = flag.Bool("bin", false, "write <input>.bin next to each input")
	device    = flag.Int("device", 42, "V3D version: 42 or 71")
	dis       = flag.Bool("dis", false, "print the disassembly")
	dumpVIR   = flag.Bool("dump-vir", false, "print the VIR before register allocation")
	stratDbg  = flag.Bool("strategy-debug", false, "report strategy fallbacks and spills")
	stats     = flag.Bool("stats", true, "print the shader-db statistics line")
	noVal     = flag.Bool("novalidate", false, "skip VIR validation")
	verbosity = flag.String("v", "", "comma separated log topics (opt,ra,spill,perf,stats,strategy)")
	jobs      = flag.Int("j", 4, "number of inputs compiled in parallel")
	version   = flag.Bool("version", false, "print version")
)

const v3dcVersion = "0.1.0-dev"

func main() {
	flag.Usage = usage
	flag.Parse()

	if *version {
		fmt.Printf("v3dc version %s\n", v3dcVersion)
		return
	}

	args := flag.Args()
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: no input file specified")
		usage()
		os.Exit(1)
	}
	if *output != "" && len(args) > 1 {
		fmt.Fprintln(os.Stderr, "Error: -o needs exactly one input")
		os.Exit(1)
	}

	if *verbosity != "" {
		tlog.SetVerbosity(*verbosity)
	}

	dev, err := qpu.DeviceByVersion(*device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(dev, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run compiles every input. Reports are printed in input order once all
// compiles are done.
func run(dev *qpu.DeviceInfo, inputs []string) error {
	reports := make([]string, len(inputs))

	var g errgroup.Group
	g.SetLimit(max(*jobs, 1))

	for i, path := range inputs {
		i, path := i, path
		g.Go(func() (err error) {
			reports[i], err = compileFile(dev, path)
			return err
		})
	}

	err := g.Wait()
	for _, r := range reports {
		fmt.Print(r)
	}
	return err
}

// debugMu serializes debug output of parallel compiles.
var debugMu sync.Mutex

func compileFile(dev *qpu.DeviceInfo, path string) (string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "read")
	}

	prog, err := asm.Parse(filepath.Base(path), string(source))
	if err != nil {
		if errs, ok := err.(asm.SourceErrors); ok {
			return "", errors.New("%s", errs.Annotated())
		}
		return "", err
	}

	var sb strings.Builder

	opts := v3d.DefaultOptions()
	opts.Device = dev
	opts.Validate = !*noVal
	opts.Strategies = prog.Strategies(opts.Strategies)
	opts.Logger = tlog.DefaultLogger
	opts.Debug.VIR = *dumpVIR
	opts.Debug.Perf = *stratDbg
	opts.Debug.Spills = *stratDbg
	opts.Debug.RA = *stratDbg
	opts.DebugOutput = func(msg string) {
		debugMu.Lock()
		defer debugMu.Unlock()
		fmt.Fprintf(os.Stderr, "%s: %s\n", path, msg)
	}

	res, err := v3d.Compile(&v3d.Key{}, prog, opts)
	if err != nil {
		return "", errors.Wrap(err, "%s", path)
	}

	if *stats {
		fmt.Fprintf(&sb, "%s: %s\n", path, res.Stats)
		if res.ProgData.CompileStrategyIdx != 0 {
			fmt.Fprintf(&sb, "%s: strategy %q\n", path, res.Strategy)
		}
	}
	if *dis {
		sb.WriteString(res.Program.Disassemble(dev))
	}

	out := *output
	if out == "" && *writeBin {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ".bin"
	}
	if out != "" {
		if err := os.WriteFile(out, encode(res.Code), 0o644); err != nil {
			return "", errors.Wrap(err, "write output")
		}
		fmt.Fprintf(&sb, "%s: wrote %d instructions to %s\n", path, len(res.Code), out)
	}

	return sb.String(), nil
}

// encode lays out the program as little-endian 64-bit words, the order in
// which the QPU fetches them.
func encode(code []uint64) []byte {
	buf := make([]byte, 0, len(code)*8)
	for _, w := range code {
		buf = binary.LittleEndian.AppendUint64(buf, w)
	}
	return buf
}

func usage() {
	fmt.Fprintf(os.Stderr, `v3dc - V3D shader compiler

Usage:
  v3dc [options] <input.vir>...

Options:
`)
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  v3dc shader.vir                   Compile and print statistics
  v3dc -o shader.bin shader.vir     Write the encoded program
  v3dc -dis -device 71 shader.vir   Disassemble for V3D 7.1
`)
}
