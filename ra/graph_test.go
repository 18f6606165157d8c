package ra

import (
	"testing"

	"golang.org/x/tools/container/intsets"
)

func newSet(count int) (*RegSet, *Class) {
	s := NewRegSet(count)
	c := s.NewClass()
	for r := 0; r < count; r++ {
		c.AddReg(r)
	}
	s.Finalize()
	return s, c
}

type interval struct{ start, end int }

func overlaps(a, b interval) bool {
	return !(a.start >= b.end || b.start >= a.end)
}

func TestIntervalScenarios(t *testing.T) {
	tests := []struct {
		name     string
		a, b     interval
		sameRegs bool
	}{
		{"disjoint", interval{0, 5}, interval{6, 10}, true},
		{"overlapping", interval{0, 5}, interval{3, 8}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newSet(1)
			g := NewGraph(s, 2)
			if overlaps(tt.a, tt.b) {
				g.AddInterference(0, 1)
			}

			ok := g.Allocate()
			if ok != tt.sameRegs {
				t.Fatalf("Allocate() with one register = %v, want %v", ok, tt.sameRegs)
			}
			if ok && g.NodeReg(0) != g.NodeReg(1) {
				t.Errorf("nodes got %d and %d, want a shared register", g.NodeReg(0), g.NodeReg(1))
			}
		})
	}

	// With two registers the overlapping pair must split.
	s, _ := newSet(2)
	g := NewGraph(s, 2)
	g.AddInterference(0, 1)
	if !g.Allocate() {
		t.Fatal("Allocate() failed with two registers")
	}
	if g.NodeReg(0) == g.NodeReg(1) {
		t.Errorf("interfering nodes share register %d", g.NodeReg(0))
	}
}

func TestAllocateClique(t *testing.T) {
	const n = 8
	s, _ := newSet(n)
	g := NewGraph(s, n)
	for a := 0; a < n; a++ {
		for b := a + 1; b < n; b++ {
			g.AddInterference(a, b)
		}
	}
	if !g.Allocate() {
		t.Fatal("Allocate() failed on a clique that fits")
	}
	seen := map[int]bool{}
	for i := 0; i < n; i++ {
		r := g.NodeReg(i)
		if seen[r] {
			t.Fatalf("register %d assigned twice", r)
		}
		seen[r] = true
	}

	// One more node makes it uncolorable.
	extra := g.AddNode(s.classes[0])
	for a := 0; a < n; a++ {
		g.AddInterference(a, extra)
	}
	if g.Allocate() {
		t.Fatal("Allocate() succeeded on an oversized clique")
	}
}

func TestPinnedAndClasses(t *testing.T) {
	s := NewRegSet(4)
	low := s.NewClass()
	low.AddReg(0)
	low.AddReg(1)
	high := s.NewClass()
	high.AddReg(2)
	high.AddReg(3)
	s.Finalize()

	if low.q[high.Index()] != 0 || low.q[low.Index()] != 1 {
		t.Fatalf("q = %v, want disjoint classes not to conflict", low.q)
	}

	g := NewGraph(s, 3)
	g.SetNodeReg(0, 1)
	g.SetNodeClass(1, low)
	g.SetNodeClass(2, high)
	g.AddInterference(0, 1)
	g.AddInterference(1, 2)

	if !g.Allocate() {
		t.Fatal("Allocate() failed")
	}
	if got := g.NodeReg(0); got != 1 {
		t.Errorf("pinned node got %d, want 1", got)
	}
	if got := g.NodeReg(1); got != 0 {
		t.Errorf("node 1 got %d, want 0", got)
	}
	if got := g.NodeReg(2); !high.Contains(got) {
		t.Errorf("node 2 got %d outside its class", got)
	}
}

func TestSelector(t *testing.T) {
	s, _ := newSet(4)
	g := NewGraph(s, 2)
	g.AddInterference(0, 1)

	var calls int
	g.SetSelector(SelectorFunc(func(_ int, avail *intsets.Sparse) int {
		calls++
		return avail.Max()
	}))
	if !g.Allocate() {
		t.Fatal("Allocate() failed")
	}
	if calls != 2 {
		t.Errorf("selector called %d times, want 2", calls)
	}
	regs := []int{g.NodeReg(0), g.NodeReg(1)}
	if !(regs[0] == 3 && regs[1] == 2 || regs[0] == 2 && regs[1] == 3) {
		t.Errorf("got registers %v, want the two highest", regs)
	}

	g.SetSelector(SelectorFunc(func(int, *intsets.Sparse) int { return NoReg }))
	if g.Allocate() {
		t.Error("Allocate() succeeded with a refusing selector")
	}
}

func TestResetInterference(t *testing.T) {
	s, _ := newSet(1)
	g := NewGraph(s, 3)
	g.AddInterference(0, 1)
	g.AddInterference(0, 2)
	g.AddInterference(0, 1)
	if len(g.Neighbors(0)) != 2 {
		t.Fatalf("duplicate edge recorded: %v", g.Neighbors(0))
	}

	g.ResetInterference(0)
	if g.HasInterference(0, 1) || g.HasInterference(2, 0) {
		t.Error("edges survived ResetInterference")
	}
	if len(g.Neighbors(1)) != 0 || len(g.Neighbors(2)) != 0 {
		t.Error("neighbor lists not cleaned")
	}
	if !g.Allocate() {
		t.Error("Allocate() failed on an edgeless graph")
	}
}

func TestBestSpillNode(t *testing.T) {
	s, _ := newSet(2)
	g := NewGraph(s, 4)
	// Node 0 interferes with everyone, the others form a triangle.
	for a := 0; a < 4; a++ {
		for b := a + 1; b < 4; b++ {
			g.AddInterference(a, b)
		}
	}
	g.SetSpillCost(0, 1)
	g.SetSpillCost(1, 10)
	g.SetSpillCost(2, 10)
	g.SetSpillCost(3, 0)

	if g.Allocate() {
		t.Fatal("Allocate() succeeded on a 4-clique with two registers")
	}
	// Node 0 is pushed first and never reached by select, node 3 is free
	// to keep, so the first failing node is the candidate.
	if best := g.BestSpillNode(); best != 1 {
		t.Errorf("BestSpillNode() = %d, want 1", best)
	}

	// Spilling removes the node from the graph; the rest must still fit
	// once a second one goes.
	g.ResetInterference(0)
	g.SetSpillCost(0, 0)
	g.ResetInterference(1)
	g.SetSpillCost(1, 0)
	if !g.Allocate() {
		t.Error("Allocate() failed after removing two nodes")
	}
}
