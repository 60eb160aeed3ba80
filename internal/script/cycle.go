package script

import (
	"cmp"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/wodrt/internal/ir"
)

// Cycle is a loop in the child graph: following children lists from
// Path[0] leads back to it. Compiling such a script would never terminate.
type Cycle struct {
	Path    []int64 `json:"path"`
	Message string  `json:"message"`
}

// childGraph maps a statement id to the ids it lists as children.
type childGraph map[int64][]int64

func buildChildGraph(stmts []ir.Statement) childGraph {
	g := make(childGraph, len(stmts))
	for _, st := range stmts {
		if g[st.ID] == nil {
			g[st.ID] = []int64{}
		}
		for _, group := range st.Children {
			g[st.ID] = append(g[st.ID], group...)
		}
	}
	return g
}

// FindCycles reports every strongly connected component of the child graph
// with more than one statement, plus self-loops. A tree returns nil.
//
// Components are found with Tarjan's algorithm. Nodes are visited in
// ascending id order so the result is deterministic.
func FindCycles(stmts []ir.Statement) []Cycle {
	g := buildChildGraph(stmts)

	var cycles []Cycle
	for _, scc := range tarjanSCC(g) {
		if len(scc) > 1 || slices.Contains(g[scc[0]], scc[0]) {
			cycles = append(cycles, sccToCycle(scc, g))
		}
	}
	slices.SortFunc(cycles, func(a, b Cycle) int {
		return cmp.Compare(a.Path[0], b.Path[0])
	})
	return cycles
}

func tarjanSCC(g childGraph) [][]int64 {
	var (
		index   = 0
		stack   []int64
		indices = make(map[int64]int)
		lowlink = make(map[int64]int)
		onStack = make(map[int64]bool)
		sccs    [][]int64
	)

	var strongConnect func(int64)
	strongConnect = func(v int64) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g[v] {
			if _, known := g[w]; !known {
				// Unknown child, reported separately.
				continue
			}
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []int64
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]int64, 0, len(g))
	for id := range g {
		nodes = append(nodes, id)
	}
	slices.Sort(nodes)
	for _, id := range nodes {
		if _, visited := indices[id]; !visited {
			strongConnect(id)
		}
	}
	return sccs
}

// sccToCycle walks edges inside the component from its smallest id until it
// returns to the start.
func sccToCycle(scc []int64, g childGraph) Cycle {
	start := scc[0]
	if len(scc) == 1 {
		return Cycle{
			Path:    []int64{start, start},
			Message: fmt.Sprintf("statement %d lists itself as a child", start),
		}
	}

	members := make(map[int64]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}
	path := []int64{start}
	visited := map[int64]bool{}
	for cur := start; ; {
		visited[cur] = true
		next, found := int64(0), false
		for _, w := range g[cur] {
			if members[w] && (!visited[w] || w == start) {
				next, found = w, true
				break
			}
		}
		if !found {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		cur = next
	}

	parts := make([]string, len(path))
	for i, id := range path {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return Cycle{
		Path:    path,
		Message: "child cycle: " + strings.Join(parts, " -> "),
	}
}
