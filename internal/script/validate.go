package script

import (
	"fmt"
	"strings"

	"github.com/roach88/wodrt/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrDuplicateID     = "E201" // two statements share an id
	ErrUnknownChild    = "E202" // child or parent id not in the script
	ErrParentMismatch  = "E203" // parent pointer disagrees with the children lists
	ErrInvalidFragment = "E204" // fragment payload does not match its type
	ErrInvalidNumber   = "E205" // negative id or numeric payload
	ErrEmptyScript     = "E206" // no statements
	ErrChildCycle      = "E207" // a statement is its own descendant
)

// ValidationError is one problem found in a Document.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// InvalidScriptError carries every validation error of a document.
type InvalidScriptError struct {
	Name   string
	Errors []ValidationError
}

func (e *InvalidScriptError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "script %q has %d error(s)", e.Name, len(e.Errors))
	for _, ve := range e.Errors {
		b.WriteString("\n  ")
		b.WriteString(ve.Error())
	}
	return b.String()
}

// Validate checks a document and returns all errors found (does not
// fail fast). An empty result means Script will succeed.
func (d *Document) Validate() []ValidationError {
	if len(d.Statements) == 0 {
		return []ValidationError{{
			Field:   "statements",
			Message: "script has no statements",
			Code:    ErrEmptyScript,
		}}
	}

	var errs []ValidationError
	add := func(id int64, field, code, format string, args ...any) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    code,
			Line:    d.Lines[id],
		})
	}

	byID := make(map[int64]ir.Statement, len(d.Statements))
	for i, st := range d.Statements {
		field := fmt.Sprintf("statements[%d]", i)
		if _, dup := byID[st.ID]; dup {
			add(st.ID, field+".id", ErrDuplicateID, "duplicate statement id %d", st.ID)
			continue
		}
		byID[st.ID] = st
		if st.ID < 0 {
			add(st.ID, field+".id", ErrInvalidNumber, "statement id must be >= 0, got %d", st.ID)
		}
		for j, f := range st.Fragments {
			ff := fmt.Sprintf("%s.fragments[%d]", field, j)
			if msg := negativePayload(f); msg != "" {
				add(st.ID, ff, ErrInvalidNumber, "%s", msg)
				continue
			}
			if err := f.Validate(); err != nil {
				add(st.ID, ff, ErrInvalidFragment, "%v", err)
			}
		}
	}

	// Parent pointers and children lists must agree.
	childOf := make(map[int64]int64)
	for i, st := range d.Statements {
		for g, group := range st.Children {
			for k, id := range group {
				field := fmt.Sprintf("statements[%d].children[%d][%d]", i, g, k)
				child, ok := byID[id]
				if !ok {
					add(st.ID, field, ErrUnknownChild, "statement %d lists unknown child %d", st.ID, id)
					continue
				}
				if child.Parent != nil && *child.Parent != st.ID {
					add(st.ID, field, ErrParentMismatch,
						"statement %d lists child %d whose parent is %d", st.ID, id, *child.Parent)
				}
				if prev, seen := childOf[id]; seen && prev != st.ID {
					add(st.ID, field, ErrParentMismatch,
						"statement %d is a child of both %d and %d", id, prev, st.ID)
				}
				childOf[id] = st.ID
			}
		}
	}
	for i, st := range d.Statements {
		if st.Parent == nil {
			continue
		}
		field := fmt.Sprintf("statements[%d].parent", i)
		if _, ok := byID[*st.Parent]; !ok {
			add(st.ID, field, ErrUnknownChild, "statement %d has unknown parent %d", st.ID, *st.Parent)
			continue
		}
		if owner, ok := childOf[st.ID]; !ok || owner != *st.Parent {
			add(st.ID, field, ErrParentMismatch,
				"statement %d names parent %d, which does not list it as a child", st.ID, *st.Parent)
		}
	}

	for _, c := range FindCycles(d.Statements) {
		add(c.Path[0], "children", ErrChildCycle, "%s", c.Message)
	}
	return errs
}

func negativePayload(f ir.Fragment) string {
	switch {
	case f.Duration < 0:
		return fmt.Sprintf("duration must be >= 0, got %d", f.Duration)
	case f.Count < 0:
		return fmt.Sprintf("count must be >= 0, got %d", f.Count)
	case f.Amount < 0:
		return fmt.Sprintf("amount must be >= 0, got %d", f.Amount)
	}
	for i, n := range f.Sequence {
		if n < 0 {
			return fmt.Sprintf("sequence[%d] must be >= 0, got %d", i, n)
		}
	}
	return ""
}
