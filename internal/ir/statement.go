package ir

import (
	"fmt"
	"strings"
)

// Statement is one parsed line of a workout script.
//
// Children is two-dimensional: each inner slice is a group of sibling ids
// compiled together into one block (e.g. an effort label plus a separate
// rep count). Statements are immutable once loaded.
type Statement struct {
	ID        int64      `json:"id"`
	Parent    *int64     `json:"parent,omitempty"`
	Children  [][]int64  `json:"children,omitempty"`
	Fragments []Fragment `json:"fragments"`
	Meta      IRObject   `json:"meta,omitempty"`
}

// Fragment returns the first fragment of type t.
func (s Statement) Fragment(t FragmentType) (Fragment, bool) {
	for _, f := range s.Fragments {
		if f.Type == t {
			return f, true
		}
	}
	return Fragment{}, false
}

// Has reports whether the statement carries a fragment of type t.
func (s Statement) Has(t FragmentType) bool {
	_, ok := s.Fragment(t)
	return ok
}

// HasChildren reports whether the statement has at least one child id.
func (s Statement) HasChildren() bool {
	for _, g := range s.Children {
		if len(g) > 0 {
			return true
		}
	}
	return false
}

// Label joins the effort and action labels of the statement, falling back
// to the fragment images.
func (s Statement) Label() string {
	var parts []string
	for _, f := range s.Fragments {
		if f.Type == FragmentEffort || f.Type == FragmentAction {
			parts = append(parts, f.Label)
		}
	}
	if len(parts) == 0 {
		for _, f := range s.Fragments {
			if f.Image != "" {
				parts = append(parts, f.Image)
			}
		}
	}
	return strings.Join(parts, " ")
}

// UnknownStatementError is returned when a group references an id the
// script does not contain.
type UnknownStatementError struct {
	ID int64
}

func (e *UnknownStatementError) Error() string {
	return fmt.Sprintf("unknown statement id %d", e.ID)
}

// DuplicateStatementError is returned by NewScript when two statements
// share an id.
type DuplicateStatementError struct {
	ID int64
}

func (e *DuplicateStatementError) Error() string {
	return fmt.Sprintf("duplicate statement id %d", e.ID)
}

// Script is an ordered, indexed set of statements.
type Script struct {
	Name       string
	Statements []Statement
	index      map[int64]int
}

// NewScript indexes the statements. Source order is preserved.
func NewScript(name string, stmts []Statement) (*Script, error) {
	s := &Script{
		Name:       name,
		Statements: stmts,
		index:      make(map[int64]int, len(stmts)),
	}
	for i, st := range stmts {
		if _, dup := s.index[st.ID]; dup {
			return nil, &DuplicateStatementError{ID: st.ID}
		}
		s.index[st.ID] = i
	}
	return s, nil
}

// MustScript is like NewScript but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustScript(name string, stmts []Statement) *Script {
	s, err := NewScript(name, stmts)
	if err != nil {
		panic(err)
	}
	return s
}

// Statement returns the statement with the given id.
func (s *Script) Statement(id int64) (Statement, bool) {
	i, ok := s.index[id]
	if !ok {
		return Statement{}, false
	}
	return s.Statements[i], true
}

// Lookup resolves a group of ids in order.
// Returns *UnknownStatementError for the first id not in the script.
func (s *Script) Lookup(ids []int64) ([]Statement, error) {
	out := make([]Statement, 0, len(ids))
	for _, id := range ids {
		st, ok := s.Statement(id)
		if !ok {
			return nil, &UnknownStatementError{ID: id}
		}
		out = append(out, st)
	}
	return out, nil
}

// RootGroups returns one single-statement group per top-level statement,
// in source order. A statement is top-level when it has no parent and no
// other statement lists it as a child.
func (s *Script) RootGroups() [][]int64 {
	referenced := make(map[int64]bool)
	for _, st := range s.Statements {
		for _, g := range st.Children {
			for _, id := range g {
				referenced[id] = true
			}
		}
	}

	var groups [][]int64
	for _, st := range s.Statements {
		if st.Parent == nil && !referenced[st.ID] {
			groups = append(groups, []int64{st.ID})
		}
	}
	return groups
}

// Hash returns the content hash of the script.
func (s *Script) Hash() (string, error) {
	return ScriptHash(s)
}
