// Package ra implements a graph-coloring register allocator.
//
// Registers are plain integers grouped into classes. A Graph holds one
// node per value to allocate, each constrained to a class, with
// interference edges between nodes that may not share a register.
// Allocation follows the optimistic simplify/select scheme: nodes that are
// trivially colorable for their class are removed first, the rest are
// pushed optimistically, and registers are then assigned in reverse
// order. Which register a node gets out of the available set is decided
// by a Selector, so targets can plug in their own heuristics.
//
// When Allocate fails, BestSpillNode names the node whose removal helps
// the most relative to its spill cost.
package ra
