package qpu

import "strings"

// Sig is the set of signals an instruction raises alongside its ALU
// operations.
type Sig struct {
	Thrsw     bool
	Ldunif    bool
	Ldunifa   bool
	Ldunifrf  bool
	Ldunifarf bool
	Ldtmu     bool
	Ldvary    bool
	Ldvpm     bool
	Ldtlb     bool
	Ldtlbu    bool
	Ucb       bool
	Rotate    bool
	Wrtmuc    bool
	SmallImmA bool
	SmallImmB bool
	SmallImmC bool
	SmallImmD bool
}

// IsZero reports whether no signal is raised.
func (s Sig) IsZero() bool { return s == Sig{} }

// SmallImm reports whether any small immediate slot is in use.
func (s Sig) SmallImm() bool {
	return s.SmallImmA || s.SmallImmB || s.SmallImmC || s.SmallImmD
}

// String lists the raised signals separated by semicolons.
func (s Sig) String() string {
	var parts []string
	add := func(set bool, name string) {
		if set {
			parts = append(parts, name)
		}
	}
	add(s.Thrsw, "thrsw")
	add(s.Ldvary, "ldvary")
	add(s.Ldvpm, "ldvpm")
	add(s.Ldtmu, "ldtmu")
	add(s.Ldtlb, "ldtlb")
	add(s.Ldtlbu, "ldtlbu")
	add(s.Ldunif, "ldunif")
	add(s.Ldunifrf, "ldunifrf")
	add(s.Ldunifa, "ldunifa")
	add(s.Ldunifarf, "ldunifarf")
	add(s.Ucb, "ucb")
	add(s.Rotate, "rot")
	add(s.Wrtmuc, "wrtmuc")
	add(s.SmallImmA, "imma")
	add(s.SmallImmB, "immb")
	add(s.SmallImmC, "immc")
	add(s.SmallImmD, "immd")
	return strings.Join(parts, "; ")
}

// v41SigMap is the signal table of V3D 4.1 and 4.2. Index is the 5-bit
// signal field; unset entries are reserved.
var v41SigMap = [32]*Sig{
	0:  {},
	1:  {Thrsw: true},
	2:  {Ldunif: true},
	3:  {Thrsw: true, Ldunif: true},
	4:  {Ldtmu: true},
	5:  {Thrsw: true, Ldtmu: true},
	6:  {Ldtmu: true, Ldunif: true},
	7:  {Thrsw: true, Ldtmu: true, Ldunif: true},
	8:  {Ldvary: true},
	9:  {Thrsw: true, Ldvary: true},
	10: {Ldvary: true, Ldunif: true},
	11: {Thrsw: true, Ldvary: true, Ldunif: true},
	12: {Ldunifrf: true},
	13: {Thrsw: true, Ldunifrf: true},
	14: {SmallImmB: true, Ldvary: true},
	15: {SmallImmB: true},
	16: {Ldtlb: true},
	17: {Ldtlbu: true},
	18: {Wrtmuc: true},
	19: {Thrsw: true, Wrtmuc: true},
	20: {Ldvary: true, Wrtmuc: true},
	21: {Thrsw: true, Ldvary: true, Wrtmuc: true},
	22: {Ucb: true},
	23: {Rotate: true},
	24: {Ldunifa: true},
	25: {Ldunifarf: true},
	31: {SmallImmB: true, Ldtmu: true},
}

// v71SigMap is the signal table of V3D 7.1.
var v71SigMap = [32]*Sig{
	0:  {},
	1:  {Thrsw: true},
	2:  {Ldunif: true},
	3:  {Thrsw: true, Ldunif: true},
	4:  {Ldtmu: true},
	5:  {Thrsw: true, Ldtmu: true},
	6:  {Ldtmu: true, Ldunif: true},
	7:  {Thrsw: true, Ldtmu: true, Ldunif: true},
	8:  {Ldvary: true},
	9:  {Thrsw: true, Ldvary: true},
	10: {Ldvary: true, Ldunif: true},
	11: {Thrsw: true, Ldvary: true, Ldunif: true},
	12: {Ldunifrf: true},
	13: {Thrsw: true, Ldunifrf: true},
	14: {SmallImmA: true},
	15: {SmallImmB: true},
	16: {Ldtlb: true},
	17: {Ldtlbu: true},
	18: {Wrtmuc: true},
	19: {Thrsw: true, Wrtmuc: true},
	20: {Ldvary: true, Wrtmuc: true},
	21: {Thrsw: true, Ldvary: true, Wrtmuc: true},
	22: {Ucb: true},
	24: {Ldunifa: true},
	25: {Ldunifarf: true},
	30: {SmallImmC: true},
	31: {SmallImmD: true},
}

func sigMap(d *DeviceInfo) *[32]*Sig {
	if d.Ver >= 71 {
		return &v71SigMap
	}
	return &v41SigMap
}

// SigPack returns the signal field encoding s, or false when the
// combination is not encodable on d.
func SigPack(d *DeviceInfo, s Sig) (uint32, bool) {
	m := sigMap(d)
	for i, entry := range m {
		if entry != nil && *entry == s {
			return uint32(i), true
		}
	}
	return 0, false
}

// SigUnpack decodes a signal field.
func SigUnpack(d *DeviceInfo, field uint32) (Sig, bool) {
	if field >= 32 {
		return Sig{}, false
	}
	entry := sigMap(d)[field]
	if entry == nil {
		return Sig{}, false
	}
	return *entry, true
}

// SigWritesAddress reports whether the signal writes to the register
// named by the instruction's signal address rather than a fixed register.
func SigWritesAddress(d *DeviceInfo, s Sig) bool {
	if d.Ver < 41 {
		return false
	}
	return s.Ldunifrf || s.Ldunifarf || s.Ldvary || s.Ldtmu ||
		s.Ldtlb || s.Ldtlbu
}

// WritesR4 reports whether the signal writes the r4 accumulator
// implicitly. Only 4.0 and older devices return TMU results through r4.
func (s Sig) WritesR4(d *DeviceInfo) bool {
	return d.HasAccumulators && d.Ver < 41 && s.Ldtmu
}

// WritesRF0Implicitly reports whether the signal writes rf0 on devices
// without accumulators.
func (s Sig) WritesRF0Implicitly(d *DeviceInfo) bool {
	if d.HasAccumulators {
		return false
	}
	return s.Ldunif || s.Ldunifa || s.Ldvary
}
