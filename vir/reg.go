package vir

import (
	"fmt"

	"github.com/gogpu/v3d/qpu"
)

// File is the kind of storage a Reg refers to.
type File uint8

const (
	// FileNull is an absent operand. As a source it reads an undefined
	// value; as a destination the result is discarded.
	FileNull File = iota
	// FileTemp is a virtual register, replaced by a hardware location
	// during register allocation.
	FileTemp
	// FileReg is a physical register file entry.
	FileReg
	// FileMagic is a magic write address (or, as a source, an
	// accumulator).
	FileMagic
	// FileLoadImm is a 32-bit immediate loaded through the uniform stream.
	FileLoadImm
	// FileSmallImm is an immediate encoded in the instruction itself.
	FileSmallImm
)

var fileNames = [...]string{"null", "temp", "reg", "magic", "loadimm", "smallimm"}

func (f File) String() string {
	if int(f) < len(fileNames) {
		return fileNames[f]
	}
	return fmt.Sprintf("file(%d)", uint8(f))
}

// Reg is a VIR operand. For FileSmallImm and FileLoadImm, Index holds the
// raw 32-bit value.
type Reg struct {
	File  File
	Index uint32
}

// Null is the absent operand.
var Null = Reg{}

// Temp returns virtual register i.
func Temp(i int) Reg { return Reg{File: FileTemp, Index: uint32(i)} }

// PhysReg returns physical register file entry i.
func PhysReg(i int) Reg { return Reg{File: FileReg, Index: uint32(i)} }

// Magic returns the magic register w.
func Magic(w qpu.Waddr) Reg { return Reg{File: FileMagic, Index: uint32(w)} }

// SmallImm returns a small immediate holding v. The value must be
// encodable; see qpu.SmallImmPack.
func SmallImm(v uint32) Reg { return Reg{File: FileSmallImm, Index: v} }

// IsTemp reports whether r is a virtual register.
func (r Reg) IsTemp() bool { return r.File == FileTemp }

// IsNull reports whether r is the absent operand.
func (r Reg) IsNull() bool { return r.File == FileNull }

// IsMagic reports whether r is the magic register w.
func (r Reg) IsMagic(w qpu.Waddr) bool {
	return r.File == FileMagic && r.Index == uint32(w)
}

// String returns the spelling used by VIR dumps.
func (r Reg) String() string {
	switch r.File {
	case FileNull:
		return "-"
	case FileTemp:
		return fmt.Sprintf("t%d", r.Index)
	case FileReg:
		return fmt.Sprintf("rf%d", r.Index)
	case FileMagic:
		return qpu.Waddr(r.Index).String()
	case FileSmallImm:
		if p, ok := qpu.SmallImmPack(r.Index); ok && p < 32 {
			return fmt.Sprintf("%d", int32(r.Index))
		}
		return fmt.Sprintf("0x%08x", r.Index)
	case FileLoadImm:
		return fmt.Sprintf("imm(0x%08x)", r.Index)
	}
	return fmt.Sprintf("%v(%d)", r.File, r.Index)
}
