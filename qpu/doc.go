// Package qpu describes the instruction set of the Broadcom V3D shader
// processor (QPU) and provides encoding and disassembly of QPU
// instructions.
//
// A QPU instruction is a 64-bit word issuing up to two ALU operations in
// parallel, one on the add unit and one on the mul unit, together with a
// signal field that triggers loads (uniforms, TMU results, varyings) and
// thread switches. Branch instructions share the same width.
//
// # Devices
//
// Two device generations are modelled:
//   - V3D 4.2 has six accumulators (r0-r5) next to the 64-entry physical
//     register file. ALU inputs select an accumulator or one of two
//     register file read ports through a mux.
//   - V3D 7.1 has no accumulators. Each ALU input names a register file
//     address directly, and implicit writes from signals land in rf0.
//
// # Encoding
//
// Pack and Unpack use the V3D field layout (mul opcode in the top bits,
// then signal, condition, write addresses, add opcode, input selectors and
// read addresses). Opcode numbers come from this package's own table and
// input unpack / output pack modifiers are carried in the fields of the
// idle ALU slot, so an instruction can carry modifiers only when a single
// ALU slot is active.
//
//	word, err := qpu.Encode(qpu.V42(), &instr)
//	back, err := qpu.Decode(qpu.V42(), word)
//
// # Disassembly
//
// Disassemble renders a program in the same spelling the VIR dumper uses
// for opcodes, conditions and signals.
package qpu
