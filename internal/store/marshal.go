package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/wodrt/internal/ir"
)

// marshalEventData converts event data to canonical JSON TEXT for storage.
// Values must be IR-representable: no floats, no nulls.
func marshalEventData(data map[string]any) (string, error) {
	if len(data) == 0 {
		return "{}", nil
	}
	v, err := ir.FromAny(data)
	if err != nil {
		return "", fmt.Errorf("marshal event data: %w", err)
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("marshal event data: %w", err)
	}
	return string(b), nil
}

// unmarshalEventData restores event data with integers as int64.
// Empty objects come back as nil.
func unmarshalEventData(data string) (map[string]any, error) {
	v, err := ir.UnmarshalIRValue([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("unmarshal event data: %w", err)
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("unmarshal event data: expected object, got %T", v)
	}
	if len(obj) == 0 {
		return nil, nil
	}
	return ir.ToAny(obj).(map[string]any), nil
}

// marshalStatements stores a script as JSON TEXT. Statement JSON is
// integral by construction; Meta goes through IRObject's marshaler.
func marshalStatements(stmts []ir.Statement) (string, error) {
	b, err := json.Marshal(stmts)
	if err != nil {
		return "", fmt.Errorf("marshal statements: %w", err)
	}
	return string(b), nil
}

func marshalMetric(m ir.RuntimeMetric) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metric: %w", err)
	}
	return string(b), nil
}

func unmarshalMetric(body string) (ir.RuntimeMetric, error) {
	var m ir.RuntimeMetric
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		return m, fmt.Errorf("unmarshal metric: %w", err)
	}
	return m, nil
}

func marshalMetrics(ms []ir.RuntimeMetric) (string, error) {
	if len(ms) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(ms)
	if err != nil {
		return "", fmt.Errorf("marshal metrics: %w", err)
	}
	return string(b), nil
}

// unmarshalMetrics returns nil for an empty list so records round-trip.
func unmarshalMetrics(body string) ([]ir.RuntimeMetric, error) {
	var ms []ir.RuntimeMetric
	if err := json.Unmarshal([]byte(body), &ms); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	if len(ms) == 0 {
		return nil, nil
	}
	return ms, nil
}
