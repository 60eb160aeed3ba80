// Package querysql compiles queryir queries to parameterized SQLite.
package querysql

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/queryir"
)

// UnboundVariableError is returned when a BoundEquals names a variable the
// compiler has no value for.
type UnboundVariableError struct {
	Var string
}

func (e *UnboundVariableError) Error() string {
	return fmt.Sprintf("unbound variable %q", e.Var)
}

// SQLCompiler compiles queryir queries to parameterized SQL for SQLite.
//
// Every query is validated first and ends with an ORDER BY on the table's
// stable key, so results come back in archive order. Values are always
// parameters, never interpolated.
type SQLCompiler struct {
	// BoundValues holds the values for BoundEquals predicates.
	BoundValues map[string]any
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{
		BoundValues: make(map[string]any),
	}
}

// Bind sets the value of a bound variable and returns c.
func (c *SQLCompiler) Bind(name string, value any) *SQLCompiler {
	c.BoundValues[name] = value
	return c
}

// Compile converts a query to SQL and its arguments.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q).Err(); err != nil {
		return "", nil, err
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	var where string
	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where = " WHERE " + filterSQL
		params = filterParams
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		compileBindings(q.Bindings),
		q.From,
		where,
		stableOrderKey(q.From))
	return sql, params, nil
}

// compileBindings converts bindings to a column list. Keys are sorted for
// deterministic output.
func compileBindings(bindings map[string]string) string {
	if len(bindings) == 0 {
		return "*"
	}

	keys := make([]string, 0, len(bindings))
	for k := range bindings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, col := range keys {
		if name := bindings[col]; name != col {
			parts = append(parts, fmt.Sprintf("%s AS %s", col, name))
		} else {
			parts = append(parts, col)
		}
	}
	return strings.Join(parts, ", ")
}

// stableOrderKey orders rows by session, then archive position.
// COLLATE BINARY keeps text ordering identical across SQLite builds.
func stableOrderKey(table string) string {
	session := queryir.SessionColumn(table)
	key := queryir.OrderKey(table)
	if session == key {
		return key + " ASC COLLATE BINARY"
	}
	return session + " ASC COLLATE BINARY, " + key + " ASC"
}

func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return compileEquals(pred)
	case *queryir.Equals:
		return compileEquals(*pred)
	case queryir.BoundEquals:
		return c.compileBoundEquals(pred)
	case *queryir.BoundEquals:
		return c.compileBoundEquals(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func compileEquals(eq queryir.Equals) (string, []any, error) {
	param, err := irValueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("field %s: %w", eq.Field, err)
	}
	return eq.Field + " = ?", []any{param}, nil
}

func (c *SQLCompiler) compileBoundEquals(beq queryir.BoundEquals) (string, []any, error) {
	val, ok := c.BoundValues[beq.BoundVar]
	if !ok {
		return "", nil, &UnboundVariableError{Var: beq.BoundVar}
	}
	return beq.Field + " = ?", []any{val}, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, ps, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// irValueToParam converts a scalar ir.IRValue to a SQL parameter. Booleans
// become 0/1, as SQLite stores them.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}
