package ra

import (
	"fmt"

	"golang.org/x/tools/container/intsets"
)

// NoReg marks a node without a register.
const NoReg = -1

// Selector picks a register for node out of avail, the class registers
// not taken by any already colored neighbor. It returns NoReg when none
// is acceptable.
type Selector interface {
	SelectReg(node int, avail *intsets.Sparse) int
}

// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(node int, avail *intsets.Sparse) int

// SelectReg implements Selector.
func (f SelectorFunc) SelectReg(node int, avail *intsets.Sparse) int {
	return f(node, avail)
}

// LowestSelector picks the lowest numbered available register.
type LowestSelector struct{}

// SelectReg implements Selector.
func (LowestSelector) SelectReg(_ int, avail *intsets.Sparse) int {
	if avail.IsEmpty() {
		return NoReg
	}
	return avail.Min()
}

type node struct {
	class     *Class
	adj       intsets.Sparse
	adjList   []int
	forcedReg int
	reg       int
	spillCost float64

	qTotal  int
	inStack bool
}

// Graph is an interference graph over the registers of a RegSet.
type Graph struct {
	set      *RegSet
	nodes    []*node
	selector Selector
	stack    []int
}

// NewGraph returns a graph with count nodes, all in the first class of
// set.
func NewGraph(set *RegSet, count int) *Graph {
	if !set.finalized {
		panic("ra: graph built on a register set that was not finalized")
	}
	if len(set.classes) == 0 {
		panic("ra: register set has no classes")
	}
	g := &Graph{set: set, selector: LowestSelector{}}
	for i := 0; i < count; i++ {
		g.AddNode(set.classes[0])
	}
	return g
}

// AddNode appends a node of class c and returns its number.
func (g *Graph) AddNode(c *Class) int {
	g.nodes = append(g.nodes, &node{class: c, forcedReg: NoReg, reg: NoReg})
	return len(g.nodes) - 1
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// SetSelector replaces the register choice heuristic.
func (g *Graph) SetSelector(s Selector) { g.selector = s }

// SetNodeClass constrains node n to class c.
func (g *Graph) SetNodeClass(n int, c *Class) {
	g.nodes[n].class = c
}

// NodeClass returns the class of node n.
func (g *Graph) NodeClass(n int) *Class { return g.nodes[n].class }

// SetNodeReg pins node n to register r. Pinned nodes are not colored and
// never chosen for spilling.
func (g *Graph) SetNodeReg(n, r int) {
	g.nodes[n].forcedReg = r
	g.nodes[n].reg = r
}

// NodeReg returns the register assigned to node n, or NoReg.
func (g *Graph) NodeReg(n int) int { return g.nodes[n].reg }

// AddInterference records that nodes a and b may not share a register.
func (g *Graph) AddInterference(a, b int) {
	if a == b || g.nodes[a].adj.Has(b) {
		return
	}
	na, nb := g.nodes[a], g.nodes[b]
	na.adj.Insert(b)
	na.adjList = append(na.adjList, b)
	nb.adj.Insert(a)
	nb.adjList = append(nb.adjList, a)
}

// HasInterference reports whether a and b interfere.
func (g *Graph) HasInterference(a, b int) bool {
	return g.nodes[a].adj.Has(b)
}

// ResetInterference removes every edge of node n.
func (g *Graph) ResetInterference(n int) {
	nn := g.nodes[n]
	for _, m := range nn.adjList {
		nm := g.nodes[m]
		nm.adj.Remove(n)
		nm.adjList = removeInt(nm.adjList, n)
	}
	nn.adj.Clear()
	nn.adjList = nn.adjList[:0]
}

func removeInt(list []int, v int) []int {
	for i, x := range list {
		if x == v {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Neighbors returns the nodes interfering with n.
func (g *Graph) Neighbors(n int) []int { return g.nodes[n].adjList }

// SetSpillCost sets the cost of spilling node n. Nodes with a cost of
// zero or less are never spill candidates.
func (g *Graph) SetSpillCost(n int, cost float64) {
	g.nodes[n].spillCost = cost
}

func (g *Graph) q(n, m int) int {
	return g.nodes[n].class.q[g.nodes[m].class.index]
}

// simplify pushes every unpinned node on the select stack, trivially
// colorable ones first and the rest optimistically.
func (g *Graph) simplify() {
	g.stack = g.stack[:0]

	remaining := 0
	for i, n := range g.nodes {
		n.inStack = false
		n.qTotal = 0
		if n.forcedReg != NoReg {
			continue
		}
		remaining++
		for _, m := range n.adjList {
			n.qTotal += g.q(i, m)
		}
	}

	push := func(i int) {
		n := g.nodes[i]
		n.inStack = true
		g.stack = append(g.stack, i)
		remaining--
		for _, m := range n.adjList {
			nm := g.nodes[m]
			if nm.forcedReg == NoReg && !nm.inStack {
				nm.qTotal -= g.q(m, i)
			}
		}
	}

	for remaining > 0 {
		progress := false
		best, bestQ := -1, 0
		for i, n := range g.nodes {
			if n.forcedReg != NoReg || n.inStack {
				continue
			}
			if n.qTotal < n.class.p {
				push(i)
				progress = true
				continue
			}
			if best < 0 || n.qTotal < bestQ {
				best, bestQ = i, n.qTotal
			}
		}
		if !progress && best >= 0 {
			push(best)
		}
	}
}

// sel pops the stack assigning registers. It stops at the first node the
// selector cannot place, leaving that node off the stack so it stays a
// spill candidate.
func (g *Graph) sel() bool {
	avail := new(intsets.Sparse)
	for len(g.stack) > 0 {
		i := g.stack[len(g.stack)-1]
		n := g.nodes[i]
		n.inStack = false

		avail.Copy(&n.class.regs)
		for _, m := range n.adjList {
			if r := g.nodes[m].reg; r != NoReg {
				avail.Remove(r)
			}
		}

		r := NoReg
		if !avail.IsEmpty() {
			r = g.selector.SelectReg(i, avail)
		}
		if r == NoReg {
			return false
		}
		if !avail.Has(r) {
			panic(fmt.Sprintf("ra: selector chose unavailable register %d for node %d", r, i))
		}
		n.reg = r
		g.stack = g.stack[:len(g.stack)-1]
	}
	return true
}

// Allocate colors the graph. It reports false when some node could not
// be given a register; BestSpillNode then names a candidate to spill.
func (g *Graph) Allocate() bool {
	for _, n := range g.nodes {
		n.reg = n.forcedReg
	}
	g.simplify()
	return g.sel()
}

// spillBenefit estimates how much removing n eases coloring of its
// neighbors.
func (g *Graph) spillBenefit(n int) float64 {
	nn := g.nodes[n]
	var benefit float64
	for _, m := range nn.adjList {
		benefit += float64(g.q(n, m)) / float64(nn.class.p)
	}
	return benefit
}

// BestSpillNode returns the node with the best ratio of spill benefit to
// spill cost among nodes with a positive cost that were reached by the
// last select phase, or -1 when there is none.
func (g *Graph) BestSpillNode() int {
	best := -1
	bestRatio := 0.0
	for i, n := range g.nodes {
		if n.spillCost <= 0 || n.inStack || n.forcedReg != NoReg {
			continue
		}
		ratio := g.spillBenefit(i) / n.spillCost
		if ratio > bestRatio {
			best, bestRatio = i, ratio
		}
	}
	return best
}
