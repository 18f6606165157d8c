package qpu

import "tlog.app/go/errors"

type field struct {
	shift uint
	mask  uint64
}

func bits(high, low uint) field {
	return field{shift: low, mask: ((uint64(1) << (high - low + 1)) - 1) << low}
}

var (
	fieldOpMul  = bits(63, 58)
	fieldSig    = bits(57, 53)
	fieldCond   = bits(52, 46)
	fieldMM     = bits(45, 45)
	fieldMA     = bits(44, 44)
	fieldWaddrM = bits(43, 38)
	fieldWaddrA = bits(37, 32)
	fieldOpAdd  = bits(31, 24)
	fieldMulB   = bits(23, 21)
	fieldMulA   = bits(20, 18)
	fieldRaddrC = bits(23, 18)
	fieldAddB   = bits(17, 15)
	fieldAddA   = bits(14, 12)
	fieldRaddrD = bits(17, 12)
	fieldRaddrA = bits(11, 6)
	fieldRaddrB = bits(5, 0)

	fieldBranchAddrLow  = bits(55, 35)
	fieldBranchCond     = bits(34, 32)
	fieldBranchAddrHigh = bits(31, 24)
	fieldBranchMsfIgn   = bits(22, 21)
	fieldBranchBDU      = bits(17, 15)
	fieldBranchUB       = bits(14, 14)
	fieldBranchBDI      = bits(13, 12)
)

func (f field) set(word *uint64, v uint32) error {
	val := uint64(v) << f.shift
	if val&^f.mask != 0 {
		return errors.New("value %d does not fit field at bit %d", v, f.shift)
	}
	*word |= val
	return nil
}

func (f field) get(word uint64) uint32 {
	return uint32((word & f.mask) >> f.shift)
}

// branchSig is the value of the top two signal bits marking a branch.
const branchSig = 16

// Encode encodes an instruction for device d.
func Encode(d *DeviceInfo, in *Instr) (uint64, error) {
	switch in.Type {
	case InstrALU:
		return packALU(d, in)
	case InstrBranch:
		return packBranch(in)
	}
	return 0, errors.New("unknown instruction type %d", in.Type)
}

func packBranch(in *Instr) (uint64, error) {
	var word uint64
	b := &in.Branch

	word |= uint64(branchSig) << fieldSig.shift
	cond := uint32(0)
	if b.Cond != BranchAlways {
		if b.Cond > BranchAllNA {
			return 0, errors.New("invalid branch condition %d", b.Cond)
		}
		cond = uint32(b.Cond-BranchA0) + 2
	}
	if b.Offset&7 != 0 {
		return 0, errors.New("branch offset %d is not instruction aligned", int32(b.Offset))
	}

	err := firstErr(
		fieldBranchCond.set(&word, cond),
		fieldBranchMsfIgn.set(&word, uint32(b.MsfIgn)),
		fieldBranchBDI.set(&word, uint32(b.BDI)),
		fieldBranchAddrLow.set(&word, (b.Offset>>3)&((1<<21)-1)),
		fieldBranchAddrHigh.set(&word, b.Offset>>24),
		fieldRaddrA.set(&word, uint32(b.Raddr)),
	)
	if err != nil {
		return 0, errors.Wrap(err, "pack branch")
	}
	if b.UB {
		word |= fieldBranchUB.mask
		if err := fieldBranchBDU.set(&word, uint32(b.BDU)); err != nil {
			return 0, errors.Wrap(err, "pack branch")
		}
	}
	return word, nil
}

func packFlags(in *Instr) (uint32, error) {
	f := in.Flags
	addActive := in.Add.Op != AddNOP
	mulActive := in.Mul.Op != MulNOP

	var cond Cond
	var pf PF
	var uf UF
	switch {
	case f == Flags{}:
		return 0, nil
	case addActive && mulActive:
		return 0, errors.New("flags on a dual-issue instruction are not encodable")
	case addActive:
		if f.MC != CondNone || f.MPF != PFNone || f.MUF != UFNone {
			return 0, errors.New("mul flags set on an idle mul slot")
		}
		cond, pf, uf = f.AC, f.APF, f.AUF
	case mulActive:
		if f.AC != CondNone || f.APF != PFNone || f.AUF != UFNone {
			return 0, errors.New("add flags set on an idle add slot")
		}
		cond, pf, uf = f.MC, f.MPF, f.MUF
	default:
		return 0, errors.New("flags set without an active ALU slot")
	}
	if pf != PFNone && uf != UFNone {
		return 0, errors.New("flag push and flag update on one slot")
	}

	code := uint32(cond)
	switch {
	case pf != PFNone:
		code |= uint32(pf) << 3
	case uf != UFNone:
		code |= (uint32(uf) + 3) << 3
	}
	return code, nil
}

func unpackFlags(in *Instr, code uint32) error {
	cond := Cond(code & 7)
	if cond > CondIfNB {
		return errors.New("invalid condition %d", cond)
	}
	var pf PF
	var uf UF
	switch hi := code >> 3; {
	case hi == 0:
	case hi <= 3:
		pf = PF(hi)
	default:
		uf = UF(hi - 3)
	}
	if code == 0 {
		return nil
	}
	switch {
	case in.Add.Op != AddNOP:
		in.Flags.AC, in.Flags.APF, in.Flags.AUF = cond, pf, uf
	case in.Mul.Op != MulNOP:
		in.Flags.MC, in.Flags.MPF, in.Flags.MUF = cond, pf, uf
	default:
		return errors.New("flags without an active ALU slot")
	}
	return nil
}

type modifiers struct {
	a, b Unpack
	pack Pack
}

func (m modifiers) zero() bool { return m == modifiers{} }

func packALU(d *DeviceInfo, in *Instr) (uint64, error) {
	if !in.Add.Op.Valid() || !in.Mul.Op.Valid() {
		return 0, errors.New("invalid ALU opcode add=%d mul=%d", in.Add.Op, in.Mul.Op)
	}

	var word uint64
	addActive := in.Add.Op != AddNOP
	mulActive := in.Mul.Op != MulNOP

	sig, ok := SigPack(d, in.Sig)
	if !ok {
		return 0, errors.New("signal combination %q is not encodable on %v", in.Sig.String(), d)
	}

	var cond uint32
	if SigWritesAddress(d, in.Sig) {
		if in.Flags != (Flags{}) {
			return 0, errors.New("flags conflict with signal write address")
		}
		cond = uint32(in.SigAddr)
		if in.SigMagic {
			cond |= 1 << 6
		}
	} else {
		var err error
		if cond, err = packFlags(in); err != nil {
			return 0, err
		}
	}

	addMods := modifiers{in.Add.A.Unpack, in.Add.B.Unpack, in.Add.OutputPack}
	mulMods := modifiers{in.Mul.A.Unpack, in.Mul.B.Unpack, in.Mul.OutputPack}
	if addActive && mulActive && !(addMods.zero() && mulMods.zero()) {
		return 0, errors.New("pack/unpack modifiers need a single active ALU slot")
	}
	if !addActive && !addMods.zero() || !mulActive && !mulMods.zero() {
		return 0, errors.New("pack/unpack modifiers on an idle ALU slot")
	}

	err := firstErr(
		fieldOpMul.set(&word, uint32(in.Mul.Op)+1),
		fieldSig.set(&word, sig),
		fieldCond.set(&word, cond),
		fieldOpAdd.set(&word, uint32(in.Add.Op)),
	)
	if err != nil {
		return 0, errors.Wrap(err, "pack alu")
	}

	if addActive {
		err = packSlotWrite(&word, fieldWaddrA, fieldMA, in.Add.Waddr, in.Add.MagicWrite)
	} else {
		err = packMods(d, &word, fieldWaddrA, false, mulMods)
	}
	if err != nil {
		return 0, err
	}
	if mulActive {
		err = packSlotWrite(&word, fieldWaddrM, fieldMM, in.Mul.Waddr, in.Mul.MagicWrite)
	} else {
		err = packMods(d, &word, fieldWaddrM, true, addMods)
	}
	if err != nil {
		return 0, err
	}

	if d.HasAccumulators {
		err = firstErr(
			fieldRaddrA.set(&word, uint32(in.RaddrA)),
			fieldRaddrB.set(&word, uint32(in.RaddrB)),
		)
		if err == nil && addActive {
			err = firstErr(
				fieldAddA.set(&word, uint32(in.Add.A.Mux)),
				fieldAddB.set(&word, uint32(in.Add.B.Mux)),
			)
		}
		if err == nil && mulActive {
			err = firstErr(
				fieldMulA.set(&word, uint32(in.Mul.A.Mux)),
				fieldMulB.set(&word, uint32(in.Mul.B.Mux)),
			)
		}
	} else {
		if addActive {
			err = firstErr(
				fieldRaddrA.set(&word, uint32(in.Add.A.Raddr)),
				fieldRaddrB.set(&word, uint32(in.Add.B.Raddr)),
			)
		}
		if err == nil && mulActive {
			err = firstErr(
				fieldRaddrC.set(&word, uint32(in.Mul.A.Raddr)),
				fieldRaddrD.set(&word, uint32(in.Mul.B.Raddr)),
			)
		}
	}
	if err != nil {
		return 0, errors.Wrap(err, "pack alu inputs")
	}
	return word, nil
}

func packSlotWrite(word *uint64, waddr, magic field, addr uint8, isMagic bool) error {
	if err := waddr.set(word, uint32(addr)); err != nil {
		return errors.Wrap(err, "pack write address")
	}
	if isMagic {
		*word |= magic.mask
	}
	return nil
}

// packMods stores the modifiers of the active slot in the idle slot's
// write address (input unpacks) and first input field (output pack).
// idleIsMul names which slot is idle.
func packMods(d *DeviceInfo, word *uint64, waddr field, idleIsMul bool, m modifiers) error {
	if m.a > UnpackSwap16 || m.b > UnpackSwap16 || m.pack > PackH {
		return errors.New("invalid modifiers %+v", m)
	}
	if err := waddr.set(word, uint32(m.a)|uint32(m.b)<<3); err != nil {
		return err
	}
	var f field
	switch {
	case d.HasAccumulators && idleIsMul:
		f = fieldMulA
	case d.HasAccumulators:
		f = fieldAddA
	case idleIsMul:
		f = fieldRaddrC
	default:
		// The add inputs own raddr a/b on 7.x.
		f = fieldRaddrA
	}
	return f.set(word, uint32(m.pack))
}

func unpackMods(d *DeviceInfo, word uint64, waddr field, idleIsMul bool) modifiers {
	w := waddr.get(word)
	var f field
	switch {
	case d.HasAccumulators && idleIsMul:
		f = fieldMulA
	case d.HasAccumulators:
		f = fieldAddA
	case idleIsMul:
		f = fieldRaddrC
	default:
		f = fieldRaddrA
	}
	return modifiers{
		a:    Unpack(w & 7),
		b:    Unpack(w >> 3 & 7),
		pack: Pack(f.get(word) & 3),
	}
}

// Decode decodes an instruction word for device d.
func Decode(d *DeviceInfo, word uint64) (Instr, error) {
	mulField := fieldOpMul.get(word)
	if mulField == 0 {
		if fieldSig.get(word)&24 == branchSig {
			return unpackBranch(word)
		}
		return Instr{}, errors.New("invalid instruction 0x%016x", word)
	}

	in := Instr{Type: InstrALU}
	in.Mul.Op = MulOp(mulField - 1)
	in.Add.Op = AddOp(fieldOpAdd.get(word))
	if !in.Add.Op.Valid() || !in.Mul.Op.Valid() {
		return Instr{}, errors.New("invalid ALU opcode in 0x%016x", word)
	}

	sig, ok := SigUnpack(d, fieldSig.get(word))
	if !ok {
		return Instr{}, errors.New("reserved signal %d in 0x%016x", fieldSig.get(word), word)
	}
	in.Sig = sig

	cond := fieldCond.get(word)
	if SigWritesAddress(d, sig) {
		in.SigAddr = uint8(cond & 63)
		in.SigMagic = cond&(1<<6) != 0
	} else if err := unpackFlags(&in, cond); err != nil {
		return Instr{}, errors.Wrap(err, "unpack 0x%016x", word)
	}

	addActive := in.Add.Op != AddNOP
	mulActive := in.Mul.Op != MulNOP

	if addActive {
		in.Add.Waddr = uint8(fieldWaddrA.get(word))
		in.Add.MagicWrite = word&fieldMA.mask != 0
	}
	if mulActive {
		in.Mul.Waddr = uint8(fieldWaddrM.get(word))
		in.Mul.MagicWrite = word&fieldMM.mask != 0
	}

	if d.HasAccumulators {
		in.RaddrA = uint8(fieldRaddrA.get(word))
		in.RaddrB = uint8(fieldRaddrB.get(word))
		if addActive {
			in.Add.A.Mux = Mux(fieldAddA.get(word))
			in.Add.B.Mux = Mux(fieldAddB.get(word))
		}
		if mulActive {
			in.Mul.A.Mux = Mux(fieldMulA.get(word))
			in.Mul.B.Mux = Mux(fieldMulB.get(word))
		}
	} else {
		if addActive {
			in.Add.A.Raddr = uint8(fieldRaddrA.get(word))
			in.Add.B.Raddr = uint8(fieldRaddrB.get(word))
		}
		if mulActive {
			in.Mul.A.Raddr = uint8(fieldRaddrC.get(word))
			in.Mul.B.Raddr = uint8(fieldRaddrD.get(word))
		}
	}

	switch {
	case addActive && !mulActive:
		m := unpackMods(d, word, fieldWaddrM, true)
		in.Add.A.Unpack, in.Add.B.Unpack, in.Add.OutputPack = m.a, m.b, m.pack
	case mulActive && !addActive:
		m := unpackMods(d, word, fieldWaddrA, false)
		in.Mul.A.Unpack, in.Mul.B.Unpack, in.Mul.OutputPack = m.a, m.b, m.pack
	}
	return in, nil
}

func unpackBranch(word uint64) (Instr, error) {
	in := Instr{Type: InstrBranch}
	b := &in.Branch

	cond := fieldBranchCond.get(word)
	switch {
	case cond == 0:
		b.Cond = BranchAlways
	case cond >= 2:
		b.Cond = BranchCond(cond-2) + BranchA0
	default:
		return Instr{}, errors.New("reserved branch condition in 0x%016x", word)
	}
	b.MsfIgn = MsfIgn(fieldBranchMsfIgn.get(word))
	b.BDI = BranchDest(fieldBranchBDI.get(word))
	b.UB = word&fieldBranchUB.mask != 0
	if b.UB {
		b.BDU = BranchDest(fieldBranchBDU.get(word))
	}
	b.Raddr = uint8(fieldRaddrA.get(word))
	b.Offset = fieldBranchAddrLow.get(word)<<3 | fieldBranchAddrHigh.get(word)<<24
	return in, nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
