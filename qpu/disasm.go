package qpu

import (
	"fmt"
	"math"
	"strings"

	"tlog.app/go/errors"
)

// Format renders the instruction in assembler syntax for device d.
func (in *Instr) Format(d *DeviceInfo) string {
	if in.Type == InstrBranch {
		return in.formatBranch()
	}

	var b strings.Builder
	b.WriteString(in.formatAdd(d))
	b.WriteString("; ")
	b.WriteString(in.formatMul(d))

	if sig := in.formatSig(d); sig != "" {
		b.WriteString("; ")
		b.WriteString(sig)
	}
	return b.String()
}

func (in *Instr) formatBranch() string {
	br := &in.Branch
	var b strings.Builder
	b.WriteString("b")
	if br.Cond != BranchAlways {
		b.WriteString(".")
		b.WriteString(br.Cond.String())
	}
	switch br.MsfIgn {
	case MsfIgnP:
		b.WriteString(".p")
	case MsfIgnQ:
		b.WriteString(".q")
	}
	switch br.BDI {
	case BranchDestRel:
		fmt.Fprintf(&b, " %+d", int32(br.Offset))
	case BranchDestAbs:
		fmt.Fprintf(&b, " 0x%x", br.Offset)
	case BranchDestLinkReg:
		b.WriteString(" lri")
	case BranchDestRegfile:
		fmt.Fprintf(&b, " rf%d", br.Raddr)
	}
	if br.UB {
		b.WriteString("; bu")
		switch br.BDU {
		case BranchDestRel:
			fmt.Fprintf(&b, " %+d", int32(br.Offset))
		case BranchDestLinkReg:
			b.WriteString(" lri")
		case BranchDestRegfile:
			fmt.Fprintf(&b, " rf%d", br.Raddr)
		}
	}
	return b.String()
}

func writeSuffixes(b *strings.Builder, c Cond, pf PF, uf UF) {
	for _, s := range [...]string{c.String(), pf.String(), uf.String()} {
		if s != "" {
			b.WriteString(".")
			b.WriteString(s)
		}
	}
}

func formatDst(waddr uint8, magic bool, pack Pack) string {
	var s string
	if magic {
		s = Waddr(waddr).String()
	} else {
		s = fmt.Sprintf("rf%d", waddr)
	}
	if pack != PackNone {
		s += "." + pack.String()
	}
	return s
}

func (in *Instr) formatAdd(d *DeviceInfo) string {
	a := &in.Add
	if a.Op == AddNOP {
		return "nop"
	}
	var b strings.Builder
	b.WriteString(a.Op.String())
	writeSuffixes(&b, in.Flags.AC, in.Flags.APF, in.Flags.AUF)

	sep := " "
	if a.Op.HasDst() {
		b.WriteString(sep)
		b.WriteString(formatDst(a.Waddr, a.MagicWrite, a.OutputPack))
		sep = ", "
	}
	if n := a.Op.NumSrc(); n > 0 {
		b.WriteString(sep)
		b.WriteString(in.formatInput(d, a.A, in.Sig.SmallImmA))
		if n > 1 {
			b.WriteString(", ")
			b.WriteString(in.formatInput(d, a.B, in.Sig.SmallImmB))
		}
	}
	return b.String()
}

func (in *Instr) formatMul(d *DeviceInfo) string {
	m := &in.Mul
	if m.Op == MulNOP {
		return "nop"
	}
	var b strings.Builder
	b.WriteString(m.Op.String())
	writeSuffixes(&b, in.Flags.MC, in.Flags.MPF, in.Flags.MUF)

	sep := " "
	if m.Op.HasDst() {
		b.WriteString(sep)
		b.WriteString(formatDst(m.Waddr, m.MagicWrite, m.OutputPack))
		sep = ", "
	}
	if n := m.Op.NumSrc(); n > 0 {
		b.WriteString(sep)
		b.WriteString(in.formatInput(d, m.A, in.Sig.SmallImmC))
		if n > 1 {
			b.WriteString(", ")
			b.WriteString(in.formatInput(d, m.B, in.Sig.SmallImmD))
		}
	}
	return b.String()
}

// formatInput renders one ALU input. imm is the 7.x small immediate
// signal of the input's read address; 4.x only has one on raddr b.
func (in *Instr) formatInput(d *DeviceInfo, src ALUInput, imm bool) string {
	var s string
	if d.HasAccumulators {
		switch src.Mux {
		case MuxA:
			s = fmt.Sprintf("rf%d", in.RaddrA)
		case MuxB:
			if in.Sig.SmallImmB {
				s = formatSmallImm(in.RaddrB)
			} else {
				s = fmt.Sprintf("rf%d", in.RaddrB)
			}
		default:
			s = fmt.Sprintf("r%d", src.Mux)
		}
	} else if imm {
		s = formatSmallImm(src.Raddr)
	} else {
		s = fmt.Sprintf("rf%d", src.Raddr)
	}
	if src.Unpack != UnpackNone {
		s += "." + src.Unpack.String()
	}
	return s
}

func formatSmallImm(raddr uint8) string {
	v, ok := SmallImmUnpack(uint32(raddr))
	switch {
	case !ok:
		return fmt.Sprintf("imm(%d)", raddr)
	case raddr < 32:
		return fmt.Sprintf("%d", int32(v))
	default:
		return fmt.Sprintf("%gf", math.Float32frombits(v))
	}
}

func (in *Instr) formatSig(d *DeviceInfo) string {
	s := in.Sig.String()
	if s == "" || !SigWritesAddress(d, in.Sig) {
		return s
	}
	dst := formatDst(in.SigAddr, in.SigMagic, PackNone)
	parts := strings.Split(s, "; ")
	for i, p := range parts {
		switch p {
		case "ldunifrf", "ldunifarf", "ldvary", "ldtmu", "ldtlb", "ldtlbu":
			parts[i] = p + "." + dst
		}
	}
	return strings.Join(parts, "; ")
}

// Disassemble decodes and formats every instruction of a program.
func Disassemble(d *DeviceInfo, code []uint64) ([]string, error) {
	lines := make([]string, 0, len(code))
	for i, word := range code {
		in, err := Decode(d, word)
		if err != nil {
			return lines, errors.Wrap(err, "instruction %d", i)
		}
		lines = append(lines, in.Format(d))
	}
	return lines, nil
}
