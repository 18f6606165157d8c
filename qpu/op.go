package qpu

import "fmt"

// AddOp is an operation of the add ALU.
type AddOp uint8

// Add ALU operations.
const (
	AddNOP AddOp = iota
	AddFADD
	AddFADDNF
	AddVFPACK
	AddADD
	AddSUB
	AddFSUB
	AddMIN
	AddMAX
	AddUMIN
	AddUMAX
	AddSHL
	AddSHR
	AddASR
	AddROR
	AddFMIN
	AddFMAX
	AddVFMIN
	AddAND
	AddOR
	AddXOR
	AddVADD
	AddVSUB
	AddNOT
	AddNEG
	AddFLAPUSH
	AddFLBPUSH
	AddFLPOP
	AddRECIP
	AddSETMSF
	AddSETREVF
	AddTIDX
	AddEIDX
	AddLR
	AddVFLA
	AddVFLNA
	AddVFLB
	AddVFLNB
	AddFXCD
	AddXCD
	AddFYCD
	AddYCD
	AddMSF
	AddREVF
	AddVDWWT
	AddIID
	AddSAMPID
	AddBARRIERID
	AddTMUWT
	AddVPMSETUP
	AddVPMWT
	AddFLAFIRST
	AddFLNAFIRST
	AddLDVPMVIn
	AddLDVPMVOut
	AddLDVPMDIn
	AddLDVPMDOut
	AddLDVPMP
	AddRSQRT
	AddEXP
	AddLOG
	AddSIN
	AddRSQRT2
	AddLDVPMGIn
	AddLDVPMGOut
	AddFCMP
	AddVFMAX
	AddFROUND
	AddFTOIN
	AddFTRUNC
	AddFTOIZ
	AddFFLOOR
	AddFTOUZ
	AddFCEIL
	AddFTOC
	AddFDX
	AddFDY
	AddSTVPMV
	AddSTVPMD
	AddSTVPMP
	AddITOF
	AddCLZ
	AddUTOF

	addOpCount
)

type opInfo struct {
	name  string
	nsrc  int
	noDst bool
}

var addOps = [addOpCount]opInfo{
	AddNOP:       {"nop", 0, true},
	AddFADD:      {"fadd", 2, false},
	AddFADDNF:    {"faddnf", 2, false},
	AddVFPACK:    {"vfpack", 2, false},
	AddADD:       {"add", 2, false},
	AddSUB:       {"sub", 2, false},
	AddFSUB:      {"fsub", 2, false},
	AddMIN:       {"min", 2, false},
	AddMAX:       {"max", 2, false},
	AddUMIN:      {"umin", 2, false},
	AddUMAX:      {"umax", 2, false},
	AddSHL:       {"shl", 2, false},
	AddSHR:       {"shr", 2, false},
	AddASR:       {"asr", 2, false},
	AddROR:       {"ror", 2, false},
	AddFMIN:      {"fmin", 2, false},
	AddFMAX:      {"fmax", 2, false},
	AddVFMIN:     {"vfmin", 2, false},
	AddAND:       {"and", 2, false},
	AddOR:        {"or", 2, false},
	AddXOR:       {"xor", 2, false},
	AddVADD:      {"vadd", 2, false},
	AddVSUB:      {"vsub", 2, false},
	AddNOT:       {"not", 1, false},
	AddNEG:       {"neg", 1, false},
	AddFLAPUSH:   {"flapush", 1, false},
	AddFLBPUSH:   {"flbpush", 1, false},
	AddFLPOP:     {"flpop", 1, false},
	AddRECIP:     {"recip", 1, false},
	AddSETMSF:    {"setmsf", 1, true},
	AddSETREVF:   {"setrevf", 1, true},
	AddTIDX:      {"tidx", 0, false},
	AddEIDX:      {"eidx", 0, false},
	AddLR:        {"lr", 0, false},
	AddVFLA:      {"vfla", 0, false},
	AddVFLNA:     {"vflna", 0, false},
	AddVFLB:      {"vflb", 0, false},
	AddVFLNB:     {"vflnb", 0, false},
	AddFXCD:      {"fxcd", 0, false},
	AddXCD:       {"xcd", 0, false},
	AddFYCD:      {"fycd", 0, false},
	AddYCD:       {"ycd", 0, false},
	AddMSF:       {"msf", 0, false},
	AddREVF:      {"revf", 0, false},
	AddVDWWT:     {"vdwwt", 0, true},
	AddIID:       {"iid", 0, false},
	AddSAMPID:    {"sampid", 0, false},
	AddBARRIERID: {"barrierid", 0, false},
	AddTMUWT:     {"tmuwt", 0, false},
	AddVPMSETUP:  {"vpmsetup", 1, true},
	AddVPMWT:     {"vpmwt", 0, true},
	AddFLAFIRST:  {"flafirst", 0, false},
	AddFLNAFIRST: {"flnafirst", 0, false},
	AddLDVPMVIn:  {"ldvpmv_in", 1, false},
	AddLDVPMVOut: {"ldvpmv_out", 1, false},
	AddLDVPMDIn:  {"ldvpmd_in", 1, false},
	AddLDVPMDOut: {"ldvpmd_out", 1, false},
	AddLDVPMP:    {"ldvpmp", 1, false},
	AddRSQRT:     {"rsqrt", 1, false},
	AddEXP:       {"exp", 1, false},
	AddLOG:       {"log", 1, false},
	AddSIN:       {"sin", 1, false},
	AddRSQRT2:    {"rsqrt2", 1, false},
	AddLDVPMGIn:  {"ldvpmg_in", 2, false},
	AddLDVPMGOut: {"ldvpmg_out", 2, false},
	AddFCMP:      {"fcmp", 2, false},
	AddVFMAX:     {"vfmax", 2, false},
	AddFROUND:    {"fround", 1, false},
	AddFTOIN:     {"ftoin", 1, false},
	AddFTRUNC:    {"ftrunc", 1, false},
	AddFTOIZ:     {"ftoiz", 1, false},
	AddFFLOOR:    {"ffloor", 1, false},
	AddFTOUZ:     {"ftouz", 1, false},
	AddFCEIL:     {"fceil", 1, false},
	AddFTOC:      {"ftoc", 1, false},
	AddFDX:       {"fdx", 1, false},
	AddFDY:       {"fdy", 1, false},
	AddSTVPMV:    {"stvpmv", 2, true},
	AddSTVPMD:    {"stvpmd", 2, true},
	AddSTVPMP:    {"stvpmp", 2, true},
	AddITOF:      {"itof", 1, false},
	AddCLZ:       {"clz", 1, false},
	AddUTOF:      {"utof", 1, false},
}

// String returns the assembler name of the operation.
func (op AddOp) String() string {
	if op < addOpCount {
		return addOps[op].name
	}
	return fmt.Sprintf("add_op(%d)", uint8(op))
}

// Valid reports whether op is a known operation.
func (op AddOp) Valid() bool { return op < addOpCount }

// NumSrc returns how many inputs the operation reads.
func (op AddOp) NumSrc() int {
	if op < addOpCount {
		return addOps[op].nsrc
	}
	return 0
}

// HasDst reports whether the operation writes a result.
func (op AddOp) HasDst() bool {
	return op < addOpCount && !addOps[op].noDst
}

// IsSFU reports whether the operation is issued to the special function
// unit (7.x encodes SFU requests as add operations).
func (op AddOp) IsSFU() bool {
	switch op {
	case AddRECIP, AddRSQRT, AddEXP, AddLOG, AddSIN, AddRSQRT2:
		return true
	}
	return false
}

// IsLDVPM reports whether the operation is a VPM load.
func (op AddOp) IsLDVPM() bool {
	switch op {
	case AddLDVPMVIn, AddLDVPMVOut, AddLDVPMDIn, AddLDVPMDOut,
		AddLDVPMP, AddLDVPMGIn, AddLDVPMGOut:
		return true
	}
	return false
}

// ReadsFloat reports whether the operation interprets its inputs as
// 32-bit floats, which decides the meaning of input unpack modifiers.
func (op AddOp) ReadsFloat() bool {
	switch op {
	case AddFADD, AddFADDNF, AddFSUB, AddFMIN, AddFMAX, AddFCMP,
		AddFROUND, AddFTOIN, AddFTRUNC, AddFTOIZ, AddFFLOOR, AddFTOUZ,
		AddFCEIL, AddFTOC, AddFDX, AddFDY:
		return true
	}
	return false
}

// ReadsHalf reports whether the operation interprets its inputs as packed
// 16-bit floats.
func (op AddOp) ReadsHalf() bool {
	switch op {
	case AddVFPACK, AddVFMIN, AddVFMAX:
		return true
	}
	return false
}

// ParseAddOp returns the add operation with the given assembler name.
func ParseAddOp(name string) (AddOp, bool) {
	for i := AddOp(0); i < addOpCount; i++ {
		if addOps[i].name == name {
			return i, true
		}
	}
	return AddNOP, false
}

// MulOp is an operation of the mul ALU.
type MulOp uint8

// Mul ALU operations.
const (
	MulNOP MulOp = iota
	MulADD
	MulSUB
	MulUMUL24
	MulVFMUL
	MulSMUL24
	MulMULTOP
	MulFMOV
	MulMOV
	MulFMUL

	mulOpCount
)

var mulOps = [mulOpCount]opInfo{
	MulNOP:    {"nop", 0, true},
	MulADD:    {"add", 2, false},
	MulSUB:    {"sub", 2, false},
	MulUMUL24: {"umul24", 2, false},
	MulVFMUL:  {"vfmul", 2, false},
	MulSMUL24: {"smul24", 2, false},
	MulMULTOP: {"multop", 2, true},
	MulFMOV:   {"fmov", 1, false},
	MulMOV:    {"mov", 1, false},
	MulFMUL:   {"fmul", 2, false},
}

// String returns the assembler name of the operation.
func (op MulOp) String() string {
	if op < mulOpCount {
		return mulOps[op].name
	}
	return fmt.Sprintf("mul_op(%d)", uint8(op))
}

// Valid reports whether op is a known operation.
func (op MulOp) Valid() bool { return op < mulOpCount }

// NumSrc returns how many inputs the operation reads.
func (op MulOp) NumSrc() int {
	if op < mulOpCount {
		return mulOps[op].nsrc
	}
	return 0
}

// HasDst reports whether the operation writes a result.
func (op MulOp) HasDst() bool {
	return op < mulOpCount && !mulOps[op].noDst
}

// ReadsFloat reports whether the operation interprets its inputs as
// 32-bit floats.
func (op MulOp) ReadsFloat() bool {
	return op == MulFMOV || op == MulFMUL
}

// ReadsHalf reports whether the operation interprets its inputs as packed
// 16-bit floats.
func (op MulOp) ReadsHalf() bool {
	return op == MulVFMUL
}

// ParseMulOp returns the mul operation with the given assembler name.
func ParseMulOp(name string) (MulOp, bool) {
	for i := MulOp(0); i < mulOpCount; i++ {
		if mulOps[i].name == name {
			return i, true
		}
	}
	return MulNOP, false
}
