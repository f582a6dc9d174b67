package network

import (
	"fmt"
	"sort"

	"github.com/san-kum/hydrosim/internal/dynamo"
)

// levels groups node indices so that every node only reads from nodes in
// earlier levels. Nodes within a level keep declaration order.
func levels(nodes []Node, index map[string]int) ([][]int, error) {
	indeg := make([]int, len(nodes))
	downstream := make([][]int, len(nodes))
	for i, n := range nodes {
		seen := map[int]bool{}
		for _, p := range n.Inputs {
			if p.External() {
				continue
			}
			up, ok := index[p.Node]
			if !ok {
				return nil, fmt.Errorf("%w: %s reads from %q", dynamo.ErrUnknownNode, n.Element.ID(), p.Node)
			}
			if up == i {
				return nil, fmt.Errorf("%w: %s reads its own output", dynamo.ErrCycle, n.Element.ID())
			}
			if !seen[up] {
				seen[up] = true
				indeg[i]++
				downstream[up] = append(downstream[up], i)
			}
		}
	}

	var out [][]int
	var frontier []int
	for i, d := range indeg {
		if d == 0 {
			frontier = append(frontier, i)
		}
	}
	visited := 0
	for len(frontier) > 0 {
		sort.Ints(frontier)
		out = append(out, frontier)
		visited += len(frontier)
		var next []int
		for _, i := range frontier {
			for _, d := range downstream[i] {
				indeg[d]--
				if indeg[d] == 0 {
					next = append(next, d)
				}
			}
		}
		frontier = next
	}

	if visited != len(nodes) {
		var stuck []string
		for i, d := range indeg {
			if d > 0 {
				stuck = append(stuck, nodes[i].Element.ID())
			}
		}
		return nil, fmt.Errorf("%w: %v", dynamo.ErrCycle, stuck)
	}
	return out, nil
}
