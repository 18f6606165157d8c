// qpudis - V3D QPU disassembler
// Reads a program of little-endian 64-bit instruction words and prints one
// instruction per line.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"os"

	"github.com/gogpu/v3d/qpu"
)

var (
	device  = flag.Int("device", 42, "V3D version: 42 or 71")
	offsets = flag.Bool("offsets", true, "prefix each line with its byte offset")
	raw     = flag.Bool("raw", false, "print the instruction word next to the text")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: qpudis [-device 42|71] <file.bin>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}

	dev, err := qpu.DeviceByVersion(*device)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(data)%8 != 0 {
		fmt.Fprintf(os.Stderr, "Error: file size %d is not a multiple of 8\n", len(data))
		os.Exit(1)
	}

	code := make([]uint64, len(data)/8)
	for i := range code {
		code[i] = binary.LittleEndian.Uint64(data[i*8:])
	}

	lines, err := qpu.Disassemble(dev, code)
	for i, line := range lines {
		if *offsets {
			fmt.Printf("%5x: ", i*8)
		}
		if *raw {
			fmt.Printf("%016x  ", code[i])
		}
		fmt.Println(line)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
