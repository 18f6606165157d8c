package qpu

import "fmt"

// Cond is an ALU execution condition on the A/B flags.
type Cond uint8

const (
	CondNone Cond = iota
	CondIfA
	CondIfB
	CondIfNA
	CondIfNB
)

var condNames = [...]string{"", "ifa", "ifb", "ifna", "ifnb"}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return fmt.Sprintf("cond(%d)", uint8(c))
}

// Complement returns the condition that is true exactly when c is false,
// or CondNone for CondNone.
func (c Cond) Complement() Cond {
	switch c {
	case CondIfA:
		return CondIfNA
	case CondIfNA:
		return CondIfA
	case CondIfB:
		return CondIfNB
	case CondIfNB:
		return CondIfB
	}
	return CondNone
}

// PF is a flag push: the ALU result is pushed onto the A/B flag stack.
type PF uint8

const (
	PFNone PF = iota
	PFPushZ
	PFPushN
	PFPushC
)

var pfNames = [...]string{"", "pushz", "pushn", "pushc"}

func (p PF) String() string {
	if int(p) < len(pfNames) {
		return pfNames[p]
	}
	return fmt.Sprintf("pf(%d)", uint8(p))
}

// UF is a flag update combining the ALU result with the current A flag.
type UF uint8

const (
	UFNone UF = iota
	UFAndZ
	UFAndNZ
	UFNorNZ
	UFNorZ
	UFAndN
	UFAndNN
	UFNorNN
	UFNorN
	UFAndC
	UFAndNC
	UFNorNC
	UFNorC
)

var ufNames = [...]string{
	"", "andz", "andnz", "nornz", "norz", "andn", "andnn",
	"nornn", "norn", "andc", "andnc", "nornc", "norc",
}

func (u UF) String() string {
	if int(u) < len(ufNames) {
		return ufNames[u]
	}
	return fmt.Sprintf("uf(%d)", uint8(u))
}

// Flags holds the condition and flag-update settings of both ALU slots.
type Flags struct {
	AC, MC   Cond
	APF, MPF PF
	AUF, MUF UF
}

// Pack is an output pack modifier selecting the 16-bit half written.
type Pack uint8

const (
	PackNone Pack = iota
	PackL
	PackH
)

var packNames = [...]string{"", "l", "h"}

func (p Pack) String() string {
	if int(p) < len(packNames) {
		return packNames[p]
	}
	return fmt.Sprintf("pack(%d)", uint8(p))
}

// ParsePack returns the output pack with the given suffix name.
func ParsePack(name string) (Pack, bool) {
	for i := 1; i < len(packNames); i++ {
		if packNames[i] == name {
			return Pack(i), true
		}
	}
	return PackNone, false
}

// Unpack is an input unpack modifier.
type Unpack uint8

const (
	UnpackNone Unpack = iota
	UnpackAbs
	UnpackL
	UnpackH
	UnpackReplicate32F16
	UnpackReplicateL16I
	UnpackReplicateH16I
	UnpackSwap16
)

var unpackNames = [...]string{"", "abs", "l", "h", "ff", "ll", "hh", "swp"}

func (u Unpack) String() string {
	if int(u) < len(unpackNames) {
		return unpackNames[u]
	}
	return fmt.Sprintf("unpack(%d)", uint8(u))
}

// ParseUnpack returns the unpack modifier with the given suffix name.
func ParseUnpack(name string) (Unpack, bool) {
	for i := 1; i < len(unpackNames); i++ {
		if unpackNames[i] == name {
			return Unpack(i), true
		}
	}
	return UnpackNone, false
}

// ParseCond returns the condition with the given suffix name.
func ParseCond(name string) (Cond, bool) {
	for i := 1; i < len(condNames); i++ {
		if condNames[i] == name {
			return Cond(i), true
		}
	}
	return CondNone, false
}

// ParsePF returns the flag push with the given suffix name.
func ParsePF(name string) (PF, bool) {
	for i := 1; i < len(pfNames); i++ {
		if pfNames[i] == name {
			return PF(i), true
		}
	}
	return PFNone, false
}

// ParseUF returns the flag update with the given suffix name.
func ParseUF(name string) (UF, bool) {
	for i := 1; i < len(ufNames); i++ {
		if ufNames[i] == name {
			return UF(i), true
		}
	}
	return UFNone, false
}

// BranchCond is the condition of a branch instruction.
type BranchCond uint8

const (
	BranchAlways BranchCond = iota
	BranchA0
	BranchNA0
	BranchAllA
	BranchAnyNA
	BranchAnyA
	BranchAllNA
)

var branchCondNames = [...]string{"", "a0", "na0", "alla", "anyna", "anya", "allna"}

func (c BranchCond) String() string {
	if int(c) < len(branchCondNames) {
		return branchCondNames[c]
	}
	return fmt.Sprintf("bcond(%d)", uint8(c))
}

// ParseBranchCond returns the branch condition with the given suffix.
func ParseBranchCond(name string) (BranchCond, bool) {
	for i := 1; i < len(branchCondNames); i++ {
		if branchCondNames[i] == name {
			return BranchCond(i), true
		}
	}
	return BranchAlways, false
}

// MsfIgn selects which channels of the multisample mask a branch ignores.
type MsfIgn uint8

const (
	MsfIgnNone MsfIgn = iota
	MsfIgnP
	MsfIgnQ
)

// BranchDest selects how a branch target is formed.
type BranchDest uint8

const (
	BranchDestAbs BranchDest = iota
	BranchDestRel
	BranchDestLinkReg
	BranchDestRegfile
)
