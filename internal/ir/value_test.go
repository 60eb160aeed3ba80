package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIRValueSealed(t *testing.T) {
	values := []IRValue{IRNull{}, IRString(""), IRInt(0), IRBool(false), IRArray{}, IRObject{}}
	assert.Len(t, values, 6)
}

func TestCompareKeysRFC8785(t *testing.T) {
	tests := []struct {
		a, b string
		want int // sign only
	}{
		{"a", "b", -1},
		{"b", "a", 1},
		{"a", "a", 0},
		{"a", "ab", -1},
		{"\U00010000", "\uE000", -1},
		{"\U00010000", "\U00010001", -1},
		{"\U0001F600", "\U00010000", 1},
		{"\uFFFF", "\U00010000", 1},
		{"", "a", -1},
	}

	for _, tt := range tests {
		got := compareKeysRFC8785(tt.a, tt.b)
		switch {
		case tt.want < 0:
			assert.Negative(t, got, "%q vs %q", tt.a, tt.b)
		case tt.want > 0:
			assert.Positive(t, got, "%q vs %q", tt.a, tt.b)
		default:
			assert.Zero(t, got, "%q vs %q", tt.a, tt.b)
		}
	}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{"reps": IRInt(1), "effort": IRInt(2), "amount": IRInt(3)}
	assert.Equal(t, []string{"amount", "effort", "reps"}, obj.SortedKeys())
	assert.Empty(t, IRObject{}.SortedKeys())
}

func TestIRObjectJSONRoundTrip(t *testing.T) {
	original := IRObject{
		"coach": IRString("Greg"),
		"tags":  IRArray{IRString("hero"), IRString("benchmark")},
		"score": IRObject{"rounds": IRInt(20), "rx": IRBool(true)},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Equal(t, `{"coach":"Greg","score":{"rounds":20,"rx":true},"tags":["hero","benchmark"]}`, string(data))

	var decoded IRObject
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)
}

func TestIRNullMarshaling(t *testing.T) {
	data, err := MarshalIRValue(IRObject{"a": IRNull{}, "b": IRArray{IRNull{}}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":null,"b":[null]}`, string(data))
}

func TestUnmarshalIRValue(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected IRValue
	}{
		{"string", `"hello"`, IRString("hello")},
		{"integer", `42`, IRInt(42)},
		{"negative integer", `-100`, IRInt(-100)},
		{"bool", `true`, IRBool(true)},
		{"array", `[21,15,9]`, IRArray{IRInt(21), IRInt(15), IRInt(9)}},
		{"object", `{"a":1}`, IRObject{"a": IRInt(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := UnmarshalIRValue([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestUnmarshalIRValueRejects(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{"float", `3.14`, "float"},
		{"exponent", `1e10`, "float"},
		{"nested float", `{"a": {"b": [1.5]}}`, "float"},
		{"null", `null`, "null"},
		{"nested null", `[1, null]`, "null"},
		{"out of range", `99999999999999999999`, "range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalIRValue([]byte(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(map[string]any{
		"source": "crossfit.com",
		"year":   2024,
		"tags":   []any{"hero", int64(1)},
	})
	require.NoError(t, err)
	assert.Equal(t, IRObject{
		"source": IRString("crossfit.com"),
		"year":   IRInt(2024),
		"tags":   IRArray{IRString("hero"), IRInt(1)},
	}, v)

	_, err = FromAny(2.5)
	assert.ErrorContains(t, err, "float")

	_, err = FromAny(map[string]any{"a": nil})
	assert.ErrorContains(t, err, "null")

	_, err = FromAny(make(chan int))
	assert.ErrorContains(t, err, "unsupported")
}
