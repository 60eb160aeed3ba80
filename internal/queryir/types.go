package queryir

import (
	"sort"

	"github.com/roach88/wodrt/internal/ir"
)

// Query is an abstract read over the archive.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode()
}

// Predicate is a row filter.
//
// This is a sealed interface - only types in this package implement it.
// Predicate types:
//   - Equals: field = literal value
//   - BoundEquals: field = value bound at compile time
//   - And: all predicates must be true
type Predicate interface {
	predicateNode()
}

// Select reads rows of one archive table.
//
// Semantics:
//
//	SELECT <bindings> FROM <from> WHERE <filter> ORDER BY <stable key>
//
// Example:
//
//	Select{
//	  From: "records",
//	  Filter: And{Predicates: []Predicate{
//	    BoundEquals{Field: "session_id", BoundVar: "session"},
//	    Equals{Field: "label", Value: ir.IRString("Thrusters")},
//	  }},
//	  Bindings: map[string]string{"status": "status"},
//	}
//
// Empty Bindings selects every column.
type Select struct {
	From     string            // archive table
	Filter   Predicate         // nil = every row
	Bindings map[string]string // column → result name
}

func (Select) queryNode() {}

// Equals compares a column with a literal.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// BoundEquals compares a column with a value supplied when the query is
// compiled, e.g. the session under test.
type BoundEquals struct {
	Field    string
	BoundVar string
}

func (BoundEquals) predicateNode() {}

// And is a conjunction. Empty Predicates is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Tables lists the archive tables and their columns. Only these names may
// appear in a query.
var Tables = map[string][]string{
	"sessions": {"id", "script_name", "script_hash", "script", "started_at", "ended_at", "digest"},
	"events":   {"session_id", "seq", "name", "ts", "source", "data"},
	"records": {
		"id", "session_id", "position", "seq", "block_key", "parent_span_id",
		"type", "label", "status", "started_at", "ended_at", "metrics",
	},
	"metrics": {"id", "session_id", "idx", "exercise_id", "body"},
}

// SessionColumn returns the column of table that holds the session id.
func SessionColumn(table string) string {
	if table == "sessions" {
		return "id"
	}
	return "session_id"
}

// OrderKey returns the column that orders table's rows within a session.
func OrderKey(table string) string {
	switch table {
	case "events":
		return "seq"
	case "records":
		return "position"
	case "metrics":
		return "idx"
	}
	return "id"
}

// Where builds an equality filter from plain values, sorted by column so
// the result is deterministic. Values must convert with ir.FromAny.
func Where(fields map[string]any) (Predicate, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	preds := make([]Predicate, 0, len(keys))
	for _, k := range keys {
		v, err := ir.FromAny(fields[k])
		if err != nil {
			return nil, &FieldError{Field: k, Err: err}
		}
		preds = append(preds, Equals{Field: k, Value: v})
	}
	return And{Predicates: preds}, nil
}
