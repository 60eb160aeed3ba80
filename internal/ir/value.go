package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

// IRValue is the closed set of values statement metadata, archive filters
// and hashed records may hold: IRNull, IRString, IRInt, IRBool, IRArray
// and IRObject. There is no float type, so every digest input is integral.
type IRValue interface {
	irValue()
}

// IRNull is JSON null. It survives plain JSON encoding but is rejected by
// MarshalCanonical.
type IRNull struct{}

// IRString is a UTF-8 string.
type IRString string

// IRInt is a signed 64-bit integer.
type IRInt int64

// IRBool is a boolean.
type IRBool bool

// IRArray is an ordered list.
type IRArray []IRValue

// IRObject maps keys to values. Iterate with SortedKeys when order matters.
type IRObject map[string]IRValue

func (IRNull) irValue()   {}
func (IRString) irValue() {}
func (IRInt) irValue()    {}
func (IRBool) irValue()   {}
func (IRArray) irValue()  {}
func (IRObject) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

// SortedKeys returns the object's keys ordered by UTF-16 code units, the
// order RFC 8785 prescribes. It differs from byte order only for keys with
// characters outside the Basic Multilingual Plane.
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares a and b one UTF-16 code unit at a time
// without materializing either encoding.
func compareKeysRFC8785(a, b string) int {
	for a != "" && b != "" {
		ra, na := utf8.DecodeRuneInString(a)
		rb, nb := utf8.DecodeRuneInString(b)
		if ra != rb {
			ua, ub := leadUnit(ra), leadUnit(rb)
			if ua == ub {
				// Both astral: trail units follow code point order.
				return int(ra - rb)
			}
			return int(ua - ub)
		}
		a, b = a[na:], b[nb:]
	}
	return len(a) - len(b)
}

// leadUnit is the first UTF-16 code unit of r.
func leadUnit(r rune) rune {
	if r < 0x10000 {
		return r
	}
	return 0xD800 + (r-0x10000)>>10
}

// MarshalJSON writes the object with keys in SortedKeys order. Use
// MarshalCanonical for anything that gets hashed.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	return MarshalIRValue(obj)
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	o, ok := v.(IRObject)
	if !ok {
		return fmt.Errorf("expected JSON object, got %T", v)
	}
	*obj = o
	return nil
}

// MarshalIRValue encodes v as plain JSON. Null is allowed and strings are
// not normalized.
func MarshalIRValue(v IRValue) ([]byte, error) {
	var buf bytes.Buffer
	if err := (encoder{buf: &buf}).value(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalIRValue decodes JSON into an IRValue. Floats and null are
// rejected.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// FromAny converts what encoding/json (with UseNumber), yaml.v3 or
// cue.Value.Decode produce into an IRValue. Null and floats are rejected;
// the error names the path to the offending element.
func FromAny(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden: use string, int, bool, array or object")
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, fmt.Errorf("number out of int64 range: %d", val)
		}
		return IRInt(val), nil
	case json.Number:
		if strings.ContainsAny(string(val), ".eE") {
			return nil, fmt.Errorf("floats are forbidden: %s", val)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", val)
		}
		return IRInt(n), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden: %v", val)
	case []any:
		arr := make(IRArray, 0, len(val))
		for i, elem := range val {
			x, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr = append(arr, x)
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			x, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			obj[k] = x
		}
		return obj, nil
	}
	return nil, fmt.Errorf("unsupported type %T", v)
}

// ToAny is the inverse of FromAny: string, int64, bool, []any and
// map[string]any. IRNull becomes nil.
func ToAny(v IRValue) any {
	switch val := v.(type) {
	case IRString:
		return string(val)
	case IRInt:
		return int64(val)
	case IRBool:
		return bool(val)
	case IRArray:
		out := make([]any, len(val))
		for i := range val {
			out[i] = ToAny(val[i])
		}
		return out
	case IRObject:
		out := make(map[string]any, len(val))
		for k := range val {
			out[k] = ToAny(val[k])
		}
		return out
	}
	return nil
}
