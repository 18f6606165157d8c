package vir

import (
	"fmt"

	"golang.org/x/tools/container/intsets"
)

// BlockID indexes the block pool of a Compile.
type BlockID int32

// NoBlock is the absent block.
const NoBlock BlockID = -1

// Block is a basic block: a doubly linked list of instructions with at
// most two successors. Successors[0] is the branch target and
// Successors[1] the fall-through.
type Block struct {
	ID BlockID
	// Index is the position of the block in program order.
	Index int

	first, last InstID

	Successors   [2]BlockID
	Predecessors []BlockID

	// StartIP and EndIP bound the block's instruction positions; EndIP is
	// one past the last instruction.
	StartIP, EndIP int

	// Liveness sets, indexed by temp.
	Def, Use, LiveIn, LiveOut, DefIn, DefOut intsets.Sparse

	// Filled while lowering to QPU code.
	startQPU, branchQPU         int
	startUniform, branchUniform int
}

// First returns the first instruction of the block, or NoInst.
func (b *Block) First() InstID { return b.first }

// Last returns the last instruction of the block, or NoInst.
func (b *Block) Last() InstID { return b.last }

// Empty reports whether the block has no instructions.
func (b *Block) Empty() bool { return b.first == NoInst }

// String implements fmt.Stringer.
func (b *Block) String() string { return fmt.Sprintf("b%d", b.Index) }

// CursorMode selects on which side of the cursor position new
// instructions go.
type CursorMode uint8

const (
	// CursorAdd inserts after Inst, or at the head of Block when Inst is
	// NoInst.
	CursorAdd CursorMode = iota
	// CursorAddTail inserts before Inst, or at the tail of Block when
	// Inst is NoInst.
	CursorAddTail
)

// Cursor is an insertion point for emitted instructions.
type Cursor struct {
	Mode  CursorMode
	Block BlockID
	Inst  InstID
}

// BeforeInst returns a cursor inserting just before inst.
func BeforeInst(inst *Inst) Cursor {
	return Cursor{Mode: CursorAddTail, Block: inst.block, Inst: inst.ID}
}

// AfterInst returns a cursor inserting just after inst.
func AfterInst(inst *Inst) Cursor {
	return Cursor{Mode: CursorAdd, Block: inst.block, Inst: inst.ID}
}

// BeforeBlock returns a cursor inserting at the head of b.
func BeforeBlock(b *Block) Cursor {
	return Cursor{Mode: CursorAdd, Block: b.ID, Inst: NoInst}
}

// AfterBlock returns a cursor inserting at the tail of b.
func AfterBlock(b *Block) Cursor {
	return Cursor{Mode: CursorAddTail, Block: b.ID, Inst: NoInst}
}

// NewBlock creates a block. It is not part of the program until passed to
// SetEmitBlock.
func (c *Compile) NewBlock() *Block {
	b := &Block{
		ID:         BlockID(len(c.blocks)),
		Index:      -1,
		first:      NoInst,
		last:       NoInst,
		Successors: [2]BlockID{NoBlock, NoBlock},
	}
	c.blocks = append(c.blocks, b)
	return b
}

// SetEmitBlock appends b to the program and moves the cursor to its end.
func (c *Compile) SetEmitBlock(b *Block) {
	if b.Index < 0 {
		b.Index = len(c.order)
		c.order = append(c.order, b.ID)
	}
	c.curBlock = b.ID
	c.cursor = AfterBlock(b)
}

// CurrentBlock returns the block instructions are emitted into.
func (c *Compile) CurrentBlock() *Block {
	if c.curBlock == NoBlock {
		return nil
	}
	return c.blocks[c.curBlock]
}

// Block returns the block with the given ID.
func (c *Compile) Block(id BlockID) *Block {
	if id == NoBlock {
		return nil
	}
	return c.blocks[id]
}

// Blocks returns the blocks in program order.
func (c *Compile) Blocks() []*Block {
	out := make([]*Block, len(c.order))
	for i, id := range c.order {
		out[i] = c.blocks[id]
	}
	return out
}

// EntryBlock returns the first block of the program.
func (c *Compile) EntryBlock() *Block {
	if len(c.order) == 0 {
		return nil
	}
	return c.blocks[c.order[0]]
}

// ExitBlock returns the last block of the program.
func (c *Compile) ExitBlock() *Block {
	if len(c.order) == 0 {
		return nil
	}
	return c.blocks[c.order[len(c.order)-1]]
}

// LinkBlocks adds succ as a successor of pred. The first link of a block
// is its branch target, the second its fall-through.
func (c *Compile) LinkBlocks(pred, succ *Block) {
	switch {
	case pred.Successors[0] == NoBlock:
		pred.Successors[0] = succ.ID
	case pred.Successors[1] == NoBlock:
		pred.Successors[1] = succ.ID
	default:
		panic(fmt.Sprintf("vir: block %v already has two successors", pred))
	}
	succ.Predecessors = append(succ.Predecessors, pred.ID)
}

// Successors returns the existing successors of b.
func (c *Compile) Successors(b *Block) []*Block {
	var out []*Block
	for _, s := range b.Successors {
		if s != NoBlock {
			out = append(out, c.blocks[s])
		}
	}
	return out
}

// Inst returns the instruction with the given ID.
func (c *Compile) Inst(id InstID) *Inst {
	if id == NoInst {
		return nil
	}
	return c.insts[id]
}

// Next returns the instruction after inst in its block, or nil.
func (c *Compile) Next(inst *Inst) *Inst { return c.Inst(inst.next) }

// Prev returns the instruction before inst in its block, or nil.
func (c *Compile) Prev(inst *Inst) *Inst { return c.Inst(inst.prev) }

// BlockInsts returns a snapshot of the instructions of b. Instructions
// inserted while walking the snapshot are not visited; removed ones are
// skipped by checking Removed.
func (c *Compile) BlockInsts(b *Block) []*Inst {
	var out []*Inst
	for id := b.first; id != NoInst; id = c.insts[id].next {
		out = append(out, c.insts[id])
	}
	return out
}

// ForEachInst calls fn for every instruction in program order.
func (c *Compile) ForEachInst(fn func(b *Block, inst *Inst)) {
	for _, id := range c.order {
		b := c.blocks[id]
		for _, inst := range c.BlockInsts(b) {
			if !inst.removed {
				fn(b, inst)
			}
		}
	}
}

// Removed reports whether inst was taken out of the program.
func (i *Inst) Removed() bool { return i.removed }

// NumInsts returns the number of instructions in the program.
func (c *Compile) NumInsts() int {
	n := 0
	for _, id := range c.order {
		for iid := c.blocks[id].first; iid != NoInst; iid = c.insts[iid].next {
			n++
		}
	}
	return n
}

func (c *Compile) insertAfter(b *Block, pos InstID, inst *Inst) {
	inst.block = b.ID
	inst.prev = pos
	if pos == NoInst {
		inst.next = b.first
		b.first = inst.ID
	} else {
		inst.next = c.insts[pos].next
		c.insts[pos].next = inst.ID
	}
	if inst.next == NoInst {
		b.last = inst.ID
	} else {
		c.insts[inst.next].prev = inst.ID
	}
}

func (c *Compile) insertBefore(b *Block, pos InstID, inst *Inst) {
	if pos == NoInst {
		c.insertAfter(b, b.last, inst)
		return
	}
	c.insertAfter(b, c.insts[pos].prev, inst)
}

func (c *Compile) unlink(inst *Inst) {
	b := c.blocks[inst.block]
	if inst.prev == NoInst {
		b.first = inst.next
	} else {
		c.insts[inst.prev].next = inst.next
	}
	if inst.next == NoInst {
		b.last = inst.prev
	} else {
		c.insts[inst.next].prev = inst.prev
	}
	inst.prev, inst.next = NoInst, NoInst
}
