package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/wodrt/internal/compiler"
	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/memory"
	"github.com/roach88/wodrt/internal/queryir"
	"github.com/roach88/wodrt/internal/querysql"
	"github.com/roach88/wodrt/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEntry // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, entry := range e.Trace {
			switch entry.Kind {
			case KindEvent, KindError:
				fmt.Fprintf(&buf, "  [%d] %6dms %s %s\n", entry.Seq, entry.AtMs, entry.Kind, entry.Name)
			case KindMetric:
				fmt.Fprintf(&buf, "  [%d] %6dms metric %s %v\n", entry.Seq, entry.AtMs, entry.Name, entry.Values)
			default:
				fmt.Fprintf(&buf, "  [%d] %6dms %s %s %q %s\n", entry.Seq, entry.AtMs, entry.Kind, entry.Name, entry.Label, entry.Status)
			}
		}
	}

	return buf.String()
}

// AssertionContext provides what assertions inspect besides the result.
type AssertionContext struct {
	Ctx       context.Context
	Store     *store.Store
	Engine    *engine.Engine
	Compiler  *compiler.Compiler
	SessionID string
	Logger    *slog.Logger
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertComplete:
			err = assertComplete(result, assertion)
		case AssertStackDepth, AssertStackTop, AssertMemory:
			if actx == nil || actx.Engine == nil {
				err = fmt.Errorf("assertion[%d]: %s requires an engine", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertStackDepth:
				err = assertStackDepth(result, actx.Engine, assertion)
			case AssertStackTop:
				err = assertStackTop(result, actx.Engine, assertion)
			default:
				err = assertMemory(actx.Engine, assertion)
			}
		case AssertMetricCount:
			err = assertMetricCount(result, assertion)
		case AssertMetricTotal:
			err = assertMetricTotal(result, assertion)
		case AssertHistoryContains:
			err = assertHistoryContains(result, assertion)
		case AssertHistoryOrder:
			err = assertHistoryOrder(result, assertion)
		case AssertError:
			err = assertError(result, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, actx.SessionID, assertion)
			}
		case AssertReplay:
			if actx == nil || actx.Store == nil || actx.Compiler == nil {
				err = fmt.Errorf("assertion[%d]: replay requires database context", i)
			} else {
				err = assertReplay(actx)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func assertComplete(result *Result, a Assertion) error {
	if result.Done != *a.Done {
		return &AssertionError{
			Type:     AssertComplete,
			Expected: fmt.Sprintf("done = %t", *a.Done),
			Actual:   fmt.Sprintf("done = %t", result.Done),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertStackDepth(result *Result, e *engine.Engine, a Assertion) error {
	if got := e.Stack().Depth(); got != *a.Depth {
		return &AssertionError{
			Type:     AssertStackDepth,
			Expected: fmt.Sprintf("depth %d", *a.Depth),
			Actual:   fmt.Sprintf("depth %d", got),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertStackTop(result *Result, e *engine.Engine, a Assertion) error {
	top := e.Stack().Top()
	if top == nil {
		return &AssertionError{
			Type:     AssertStackTop,
			Expected: fmt.Sprintf("top block %q", a.Label),
			Actual:   "empty stack",
			Trace:    result.Trace,
		}
	}
	if top.Label != a.Label {
		return &AssertionError{
			Type:     AssertStackTop,
			Expected: fmt.Sprintf("top block %q", a.Label),
			Actual:   fmt.Sprintf("top block %q (%s)", top.Label, top.Type),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertMemory matches the visible cell of the given type owned by the
// block nearest the top of the stack. Struct values are compared field by
// field through their JSON names; a scalar value is compared under the key
// "value".
func assertMemory(e *engine.Engine, a Assertion) error {
	cell, ok := nearestCell(e, a.Cell)
	if !ok {
		return &AssertionError{
			Type:     AssertMemory,
			Expected: fmt.Sprintf("a visible %s cell", a.Cell),
			Actual:   "no such cell",
		}
	}
	actual, err := plainValue(cell.Value)
	if err != nil {
		return fmt.Errorf("memory %s: %w", a.Cell, err)
	}
	fields, ok := actual.(map[string]any)
	if !ok {
		fields = map[string]any{"value": actual}
	}

	keys := sortedKeys(a.Expect)
	for _, key := range keys {
		got, exists := fields[key]
		if !exists {
			return &AssertionError{
				Type:     AssertMemory,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("fields: %v", sortedKeys(fields)),
			}
		}
		if !valuesEqual(got, a.Expect[key]) {
			return &AssertionError{
				Type:     AssertMemory,
				Expected: fmt.Sprintf("%s.%s = %v", a.Cell, key, a.Expect[key]),
				Actual:   fmt.Sprintf("%s.%s = %v", a.Cell, key, got),
			}
		}
	}
	return nil
}

func nearestCell(e *engine.Engine, typ string) (memory.Cell, bool) {
	blocks := e.Stack().Blocks()
	for i := len(blocks) - 1; i >= 0; i-- {
		if cells := e.Memory().Cells(memory.Filter{Type: typ, OwnerID: blocks[i].Key}); len(cells) > 0 {
			return cells[0], true
		}
	}
	cells := e.Memory().Cells(memory.Filter{Type: typ})
	if len(cells) == 0 {
		return memory.Cell{}, false
	}
	return cells[len(cells)-1], true
}

func assertMetricCount(result *Result, a Assertion) error {
	count := 0
	for _, entry := range result.Trace {
		if entry.Kind == KindMetric && entry.Name == a.Exercise {
			count++
		}
	}
	if count != *a.Count {
		return &AssertionError{
			Type:     AssertMetricCount,
			Expected: fmt.Sprintf("%d metrics for %s", *a.Count, a.Exercise),
			Actual:   fmt.Sprintf("%d metrics", count),
			Trace:    result.Trace,
		}
	}
	return nil
}

func assertMetricTotal(result *Result, a Assertion) error {
	var total int64
	for _, entry := range result.Trace {
		if entry.Kind == KindMetric && entry.Name == a.Exercise {
			total += entry.Values[a.Metric]
		}
	}
	if total != *a.Value {
		return &AssertionError{
			Type:     AssertMetricTotal,
			Expected: fmt.Sprintf("%s %s total %d", a.Exercise, a.Metric, *a.Value),
			Actual:   fmt.Sprintf("total %d", total),
			Trace:    result.Trace,
		}
	}
	return nil
}

// assertHistoryContains counts finalized spans matching every given field.
// Without a count, at least one must match.
func assertHistoryContains(result *Result, a Assertion) error {
	count := 0
	for _, rec := range result.History {
		if a.Record != "" && rec.Type != a.Record {
			continue
		}
		if a.Label != "" && rec.Label != a.Label {
			continue
		}
		if a.Status != "" && string(rec.Status) != a.Status {
			continue
		}
		count++
	}

	desc := describeSpan(a)
	switch {
	case a.Count != nil && count != *a.Count:
		return &AssertionError{
			Type:     AssertHistoryContains,
			Expected: fmt.Sprintf("%d spans %s", *a.Count, desc),
			Actual:   fmt.Sprintf("%d spans", count),
			Trace:    result.Trace,
		}
	case a.Count == nil && count == 0:
		return &AssertionError{
			Type:     AssertHistoryContains,
			Expected: fmt.Sprintf("a span %s", desc),
			Actual:   "not found in history",
			Trace:    result.Trace,
		}
	}
	return nil
}

func describeSpan(a Assertion) string {
	var parts []string
	if a.Record != "" {
		parts = append(parts, "type="+a.Record)
	}
	if a.Label != "" {
		parts = append(parts, fmt.Sprintf("label=%q", a.Label))
	}
	if a.Status != "" {
		parts = append(parts, "status="+a.Status)
	}
	return "with " + strings.Join(parts, " ")
}

// assertHistoryOrder checks the full sequence of finalized span types.
func assertHistoryOrder(result *Result, a Assertion) error {
	types := make([]string, len(result.History))
	for i, rec := range result.History {
		types[i] = rec.Type
	}
	if !slices.Equal(types, a.Order) {
		return &AssertionError{
			Type:     AssertHistoryOrder,
			Expected: fmt.Sprintf("%v", a.Order),
			Actual:   fmt.Sprintf("%v", types),
		}
	}
	return nil
}

func assertError(result *Result, a Assertion) error {
	for _, err := range result.engineErrs {
		if strings.Contains(err.Error(), a.Contains) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertError,
		Expected: fmt.Sprintf("an engine error containing %q", a.Contains),
		Actual:   fmt.Sprintf("%d engine errors", len(result.engineErrs)),
		Trace:    result.Trace,
	}
}

// assertFinalState checks that exactly one archive row of the session
// matches Where and carries the expected values. The query is validated
// against the archive schema and compiled with parameters only.
func assertFinalState(ctx context.Context, st *store.Store, sessionID string, assertion Assertion) error {
	query, err := finalStateQuery(assertion)
	if err != nil {
		return err
	}
	sql, args, err := querysql.NewSQLCompiler().Bind("session", sessionID).Compile(query)
	if err != nil {
		return fmt.Errorf("final_state: %w", err)
	}

	rows, err := st.Query(ctx, sql, args...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}
	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Several matches make the assertion ambiguous.
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(assertion.Where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any, len(columns))
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	for _, key := range sortedKeys(assertion.Expect) {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// assertReplay replays the archived session on a fresh engine and compares
// history digests.
func assertReplay(actx *AssertionContext) error {
	res, err := actx.Store.ReplayCheck(actx.Ctx, actx.SessionID, actx.Compiler,
		engine.WithLogger(actx.Logger),
		engine.WithSpanIDs(engine.NewSequenceGenerator("span")),
		engine.WithBlockKeys(engine.NewSequenceGenerator("blk")),
	)
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	if !res.Match {
		return &AssertionError{
			Type:     AssertReplay,
			Expected: fmt.Sprintf("digest %s", res.Stored),
			Actual:   fmt.Sprintf("archived %s, replayed %s over %d events", res.Archived, res.Replayed, res.Events),
		}
	}
	return nil
}

// finalStateQuery selects the session's rows of the assertion's table that
// match its Where fields.
func finalStateQuery(assertion Assertion) (queryir.Select, error) {
	preds := []queryir.Predicate{
		queryir.BoundEquals{Field: queryir.SessionColumn(assertion.Table), BoundVar: "session"},
	}
	where, err := queryir.Where(assertion.Where)
	if err != nil {
		return queryir.Select{}, fmt.Errorf("final_state where: %w", err)
	}
	if where != nil {
		preds = append(preds, where)
	}
	return queryir.Select{
		From:   assertion.Table,
		Filter: queryir.And{Predicates: preds},
	}, nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares an expected value with a value scanned from
// SQLite. Integers may come back as int64, text as string or []byte, and
// booleans as 0/1.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		actualStr, ok := actual.(string)
		return ok && exp == actualStr
	case int:
		actualInt, ok := actual.(int64)
		return ok && int64(exp) == actualInt
	case int64:
		actualInt, ok := actual.(int64)
		return ok && exp == actualInt
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

// plainValue converts a memory cell value into strings, int64s, bools,
// slices and maps keyed by JSON field names.
func plainValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	irv, err := ir.FromAny(raw)
	if err != nil {
		return nil, err
	}
	return ir.ToAny(irv), nil
}

// valuesEqual compares a plain actual value with a YAML-decoded expected
// value, normalizing integer widths.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	exp, err := ir.FromAny(expected)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(actual, ir.ToAny(exp))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
