package vir

import (
	"fmt"
	"math"

	"github.com/gogpu/v3d/qpu"
)

// UniformContents says what the driver must put in a uniform slot.
type UniformContents uint8

const (
	// UniformConstant is the 32-bit value in Data.
	UniformConstant UniformContents = iota
	// UniformUBOAddr is the address of uniform buffer Data.
	UniformUBOAddr
	// UniformSSBOOffset is the address of storage buffer Data.
	UniformSSBOOffset
	// UniformSharedOffset is the base of workgroup shared memory.
	UniformSharedOffset
	// UniformSpillOffset is the base of the spill area.
	UniformSpillOffset
	// UniformSpillSizePerThread is the spill area size of one thread.
	UniformSpillSizePerThread
	UniformViewportXScale
	UniformViewportYScale
	UniformViewportZOffset
	UniformViewportZScale
	// UniformUserClipPlane is component Data of the user clip planes.
	UniformUserClipPlane
	// UniformTextureConfig is the texture state of unit Data.
	UniformTextureConfig
	// UniformNumWorkGroups is dimension Data of the dispatch size.
	UniformNumWorkGroups
)

var uniformNames = [...]string{
	"const", "ubo_addr", "ssbo_offset", "shared_offset", "spill_offset",
	"spill_size", "vp_xscale", "vp_yscale", "vp_zoffset", "vp_zscale",
	"clip_plane", "tex_config", "num_wg",
}

func (u UniformContents) String() string {
	if int(u) < len(uniformNames) {
		return uniformNames[u]
	}
	return fmt.Sprintf("uniform(%d)", uint8(u))
}

// ParseUniformContents returns the contents with the given name.
func ParseUniformContents(name string) (UniformContents, bool) {
	for i, n := range uniformNames {
		if n == name {
			return UniformContents(i), true
		}
	}
	return 0, false
}

// UniformSlot is one entry of the uniform stream.
type UniformSlot struct {
	Contents UniformContents
	Data     uint32
}

func (u UniformSlot) String() string {
	return fmt.Sprintf("%v 0x%08x", u.Contents, u.Data)
}

// ldunifLookback is how many instructions back Uniform looks for a load
// of the same uniform to reuse.
const ldunifLookback = 20

// GetUniformIndex returns the index of the (contents, data) uniform,
// adding it to the pool if it is new.
func (c *Compile) GetUniformIndex(contents UniformContents, data uint32) int {
	for i, u := range c.uniforms {
		if u.Contents == contents && u.Data == data {
			return i
		}
	}
	c.uniforms = append(c.uniforms, UniformSlot{Contents: contents, Data: data})
	return len(c.uniforms) - 1
}

// UniformPool returns the deduplicated uniforms requested so far.
func (c *Compile) UniformPool() []UniformSlot { return c.uniforms }

// UniformSlotAt returns uniform index i.
func (c *Compile) UniformSlotAt(i int) UniformSlot { return c.uniforms[i] }

// Uniform returns a temp holding the uniform. When the same uniform was
// loaded recently in the current block and the load's temp has not been
// rewritten, that temp is returned instead of a new load.
func (c *Compile) Uniform(contents UniformContents, data uint32) Reg {
	n := len(c.uniforms)
	index := c.GetUniformIndex(contents, data)

	if n == len(c.uniforms) && !c.disableLdunifOpt {
		if r, ok := c.reuseLdunif(index); ok {
			return r
		}
	}

	inst := c.AddInst(qpu.AddNOP, Null, Null, Null)
	inst.Sig.Ldunif = true
	inst.Uniform = index
	inst.Dst = c.GetTemp()
	c.defs[inst.Dst.Index] = inst.ID
	c.Emit(inst)
	return inst.Dst
}

// UniformUI returns a temp holding the constant v.
func (c *Compile) UniformUI(v uint32) Reg { return c.Uniform(UniformConstant, v) }

// UniformF returns a temp holding the constant f.
func (c *Compile) UniformF(f float32) Reg { return c.UniformUI(math.Float32bits(f)) }

// instBeforeCursor returns the instruction just before the insertion
// point, or nil at the head of the block.
func (c *Compile) instBeforeCursor() *Inst {
	b := c.blocks[c.cursor.Block]
	switch {
	case c.cursor.Mode == CursorAdd:
		return c.Inst(c.cursor.Inst)
	case c.cursor.Inst == NoInst:
		return c.Inst(b.last)
	}
	return c.Inst(c.insts[c.cursor.Inst].prev)
}

func (c *Compile) reuseLdunif(index int) (Reg, bool) {
	var prev *Inst
	count := ldunifLookback
	for inst := c.instBeforeCursor(); inst != nil; inst = c.Prev(inst) {
		if inst.IsLdunif() && inst.Uniform == index {
			prev = inst
			break
		}
		count--
		if count == 0 {
			break
		}
	}
	if prev == nil {
		return Null, false
	}

	// Loads into magic registers such as unifa cannot be read back.
	if !prev.Dst.IsTemp() {
		return Null, false
	}
	for inst := c.Next(prev); inst != nil; inst = c.Next(inst) {
		if inst.Dst == prev.Dst {
			return Null, false
		}
	}
	return prev.Dst, true
}
