package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/wodrt/internal/ir"
)

// PlanNode describes how one statement group would compile, without
// allocating anything. Compilation at run time is lazy; a plan is the static
// preview the compile command prints.
type PlanNode struct {
	Group    []int64    `json:"group"`
	Strategy string     `json:"strategy,omitempty"`
	Label    string     `json:"label"`
	Error    string     `json:"error,omitempty"`
	Children []PlanNode `json:"children,omitempty"`
}

// Plan walks the script from its root groups and selects a strategy for
// every group. Groups that would fail carry Error instead of Strategy.
// Returns an error only if the child graph revisits a statement.
func (c *Compiler) Plan(s *ir.Script) ([]PlanNode, error) {
	visiting := make(map[int64]bool)
	var walk func(ids []int64) (PlanNode, error)
	walk = func(ids []int64) (PlanNode, error) {
		node := PlanNode{Group: ids}
		stmts, err := s.Lookup(ids)
		if err != nil {
			node.Error = err.Error()
			return node, nil
		}
		labels := make([]string, 0, len(stmts))
		for _, st := range stmts {
			labels = append(labels, st.Label())
		}
		node.Label = strings.Join(labels, " + ")

		st, err := c.Select(stmts)
		if err != nil {
			node.Error = err.Error()
			return node, nil
		}
		node.Strategy = st.Name()

		if len(stmts) != 1 {
			return node, nil
		}
		parent := stmts[0]
		if visiting[parent.ID] {
			return node, fmt.Errorf("statement %d is its own descendant", parent.ID)
		}
		visiting[parent.ID] = true
		defer delete(visiting, parent.ID)
		for _, g := range parent.Children {
			if len(g) == 0 {
				continue
			}
			child, err := walk(g)
			if err != nil {
				return node, err
			}
			node.Children = append(node.Children, child)
		}
		return node, nil
	}

	var out []PlanNode
	for _, g := range s.RootGroups() {
		n, err := walk(g)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
