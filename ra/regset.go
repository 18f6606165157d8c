package ra

import (
	"fmt"

	"golang.org/x/tools/container/intsets"
)

// RegSet is the set of registers of a target together with the classes
// values may be allocated to.
type RegSet struct {
	count     int
	classes   []*Class
	finalized bool
}

// Class is a subset of the registers of a RegSet.
type Class struct {
	set   *RegSet
	index int
	regs  intsets.Sparse

	// p is the number of registers in the class.
	p int
	// q[c] is the largest number of registers of this class a single
	// register of class c can conflict with.
	q []int
}

// NewRegSet returns a register set of count registers numbered from 0.
func NewRegSet(count int) *RegSet {
	return &RegSet{count: count}
}

// Count returns the number of registers.
func (s *RegSet) Count() int { return s.count }

// NewClass adds an empty class.
func (s *RegSet) NewClass() *Class {
	if s.finalized {
		panic("ra: NewClass after Finalize")
	}
	c := &Class{set: s, index: len(s.classes)}
	s.classes = append(s.classes, c)
	return c
}

// AddReg adds register r to the class.
func (c *Class) AddReg(r int) {
	if r < 0 || r >= c.set.count {
		panic(fmt.Sprintf("ra: register %d out of range [0,%d)", r, c.set.count))
	}
	c.regs.Insert(r)
}

// Index returns the class number within its register set.
func (c *Class) Index() int { return c.index }

// Contains reports whether r belongs to the class.
func (c *Class) Contains(r int) bool { return c.regs.Has(r) }

// Len returns the number of registers in the class.
func (c *Class) Len() int { return c.regs.Len() }

// Regs returns the class registers. The caller must not modify the set.
func (c *Class) Regs() *intsets.Sparse { return &c.regs }

// Finalize computes the colorability bounds of every class pair. It must
// be called after all classes are populated and before graphs are built.
func (s *RegSet) Finalize() {
	for _, c := range s.classes {
		c.p = c.regs.Len()
		c.q = make([]int, len(s.classes))
		for _, other := range s.classes {
			// Registers do not alias, so a register of other conflicts
			// with at most one register of c.
			if c.regs.Intersects(&other.regs) {
				c.q[other.index] = 1
			}
		}
	}
	s.finalized = true
}
