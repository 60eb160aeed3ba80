package queryir

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/wodrt/internal/ir"
)

// FieldError reports a column value that cannot be used in a query.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// ValidationResult lists every problem found in a query.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Err returns the problems as one error, or nil when the query is valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("invalid query: %s", strings.Join(r.Errors, "; "))
}

// Validate checks a query against the archive schema: known tables, known
// columns, and comparable literals. It does not fail fast.
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{errors: []string{}}
	v.validateQuery(query)
	return ValidationResult{
		Valid:  len(v.errors) == 0,
		Errors: v.errors,
	}
}

type validator struct {
	errors  []string
	columns []string
	table   string
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addError("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	columns, ok := Tables[sel.From]
	if !ok {
		v.addError("unknown table %q: must be one of %s", sel.From, strings.Join(tableNames(), ", "))
		return
	}
	v.table, v.columns = sel.From, columns

	for _, col := range sortedKeys(sel.Bindings) {
		v.checkColumn(col)
		if sel.Bindings[col] == "" {
			v.addError("column %q is bound to an empty name", col)
		}
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Equals:
		v.validateEquals(pred)
	case *Equals:
		v.validateEquals(*pred)
	case BoundEquals:
		v.validateBound(pred)
	case *BoundEquals:
		v.validateBound(*pred)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addError("unknown predicate type %T", p)
	}
}

func (v *validator) validateEquals(eq Equals) {
	v.checkColumn(eq.Field)
	switch eq.Value.(type) {
	case ir.IRString, ir.IRInt, ir.IRBool:
	case nil, ir.IRNull:
		v.addError("column %q compared to null", eq.Field)
	default:
		v.addError("column %q compared to a %T; only strings, ints and bools are comparable", eq.Field, eq.Value)
	}
}

func (v *validator) validateBound(b BoundEquals) {
	v.checkColumn(b.Field)
	if b.BoundVar == "" {
		v.addError("column %q has an empty bound variable", b.Field)
	}
}

func (v *validator) checkColumn(col string) {
	if !slices.Contains(v.columns, col) {
		v.addError("unknown column %q in table %s", col, v.table)
	}
}

func tableNames() []string {
	names := make([]string, 0, len(Tables))
	for t := range Tables {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
