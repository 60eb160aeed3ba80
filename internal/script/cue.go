package script

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/wodrt/internal/ir"
)

// CompileError is a decoding error with its CUE source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileString compiles CUE source holding a single workout with a
// top-level `statements` list.
func CompileString(name, src string) (*Document, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(name))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return Compile(name, v)
}

// Compile decodes a workout struct, e.g.
//
//	workout: fran: {
//		statements: [
//			{id: 1, children: [2, 3], fragments: [{type: "rounds", sequence: [21, 15, 9]}]},
//			{id: 2, parent: 1, fragments: [{type: "effort", label: "Thrusters"}]},
//			{id: 3, parent: 1, fragments: [{type: "effort", label: "Pull-ups"}]},
//		]
//	}
//
// Compile(name, v.LookupPath(cue.ParsePath("workout.fran"))). An empty name
// falls back to the value's last path selector.
func Compile(name string, v cue.Value) (*Document, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	if name == "" {
		if sels := v.Path().Selectors(); len(sels) > 0 {
			name = sels[len(sels)-1].String()
		}
	}

	doc := &Document{Name: name, Lines: make(map[int64]int)}
	if label, ok, err := stringField(v, "name"); err != nil {
		return nil, err
	} else if ok {
		doc.Name = label
	}

	list := v.LookupPath(cue.ParsePath("statements"))
	if !list.Exists() {
		return nil, &CompileError{
			Field:   "statements",
			Message: "statements is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := list.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		st, err := compileStatement(iter.Value())
		if err != nil {
			return nil, err
		}
		doc.Statements = append(doc.Statements, st)
		if p := iter.Value().Pos(); p.IsValid() {
			doc.Lines[st.ID] = p.Line()
		}
	}
	return doc, nil
}

func compileStatement(v cue.Value) (ir.Statement, error) {
	var st ir.Statement

	id, ok, err := intField(v, "id")
	if err != nil {
		return st, err
	}
	if !ok {
		return st, &CompileError{Field: "id", Message: "statement id is required", Pos: v.Pos()}
	}
	st.ID = id

	if parent, ok, err := intField(v, "parent"); err != nil {
		return st, err
	} else if ok {
		st.Parent = &parent
	}

	if cv := v.LookupPath(cue.ParsePath("children")); cv.Exists() {
		st.Children, err = compileChildren(cv)
		if err != nil {
			return st, err
		}
	}

	fv := v.LookupPath(cue.ParsePath("fragments"))
	if fv.Exists() {
		iter, err := fv.List()
		if err != nil {
			return st, formatCUEError(err)
		}
		for iter.Next() {
			f, err := compileFragment(iter.Value())
			if err != nil {
				return st, err
			}
			st.Fragments = append(st.Fragments, f)
		}
	}
	return st, nil
}

// compileChildren accepts a list whose elements are ids (a group of one) or
// lists of ids (a group compiled together).
func compileChildren(v cue.Value) ([][]int64, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var groups [][]int64
	for iter.Next() {
		el := iter.Value()
		if el.Kind() == cue.ListKind {
			ids, err := intList(el, "children")
			if err != nil {
				return nil, err
			}
			groups = append(groups, ids)
			continue
		}
		id, err := intValue(el, "children")
		if err != nil {
			return nil, err
		}
		groups = append(groups, []int64{id})
	}
	return groups, nil
}

func compileFragment(v cue.Value) (ir.Fragment, error) {
	var f ir.Fragment

	typ, ok, err := stringField(v, "type")
	if err != nil {
		return f, err
	}
	if !ok {
		return f, &CompileError{Field: "type", Message: "fragment type is required", Pos: v.Pos()}
	}
	f.Type = ir.FragmentType(typ)

	for _, sf := range []struct {
		name string
		dst  *string
	}{
		{"image", &f.Image},
		{"label", &f.Label},
		{"unit", &f.Unit},
	} {
		s, ok, err := stringField(v, sf.name)
		if err != nil {
			return f, err
		}
		if ok {
			*sf.dst = s
		}
	}
	if dir, ok, err := stringField(v, "direction"); err != nil {
		return f, err
	} else if ok {
		f.Direction = ir.Direction(dir)
	}

	for _, nf := range []struct {
		name string
		dst  *int64
	}{
		{"count", &f.Count},
		{"amount", &f.Amount},
	} {
		n, ok, err := intField(v, nf.name)
		if err != nil {
			return f, err
		}
		if ok {
			*nf.dst = n
		}
	}

	if dv := v.LookupPath(cue.ParsePath("duration")); dv.Exists() {
		f.Duration, err = durationValue(dv)
		if err != nil {
			return f, err
		}
	}
	if sv := v.LookupPath(cue.ParsePath("sequence")); sv.Exists() {
		f.Sequence, err = intList(sv, "sequence")
		if err != nil {
			return f, err
		}
	}
	return f, nil
}

func durationValue(v cue.Value) (int64, error) {
	if v.Kind() == cue.StringKind {
		s, err := v.String()
		if err != nil {
			return 0, formatCUEError(err)
		}
		ms, err := ParseDuration(s)
		if err != nil {
			return 0, &CompileError{Field: "duration", Message: err.Error(), Pos: v.Pos()}
		}
		return ms, nil
	}
	return intValue(v, "duration")
}

func stringField(v cue.Value, name string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, &CompileError{Field: name, Message: "must be a string", Pos: fv.Pos()}
	}
	return s, true, nil
}

func intField(v cue.Value, name string) (int64, bool, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		return 0, false, nil
	}
	n, err := intValue(fv, name)
	return n, err == nil, err
}

// intValue reads an integer. Floats are forbidden: hashed statement content
// must stay integral.
func intValue(v cue.Value, field string) (int64, error) {
	switch v.Kind() {
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return 0, formatCUEError(err)
		}
		return n, nil
	case cue.FloatKind, cue.NumberKind:
		return 0, &CompileError{
			Field:   field,
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return 0, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("must be an int, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func intList(v cue.Value, field string) ([]int64, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []int64
	for iter.Next() {
		n, err := intValue(iter.Value(), field)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
