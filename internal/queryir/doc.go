// Package queryir is a small query representation over the session archive.
//
// Callers that read archive rows generically, such as final_state scenario
// assertions, describe what they want as a Select instead of writing SQL.
// The querysql package compiles a Select to parameterized SQLite.
//
//	[assertion] → [Select] → Validate → [querysql] → SQL + args
//
// Query and Predicate are sealed: only types in this package implement
// them, so compilers can switch over them exhaustively.
//
//	switch q := query.(type) {
//	case Select:
//	    // Handle select
//	default:
//	    // Impossible
//	}
//
// Literal values are ir.IRValue, which has no floats, so comparisons are
// exact. Table and column names are checked against Tables by Validate;
// nothing outside it can reach the SQL text.
package queryir
