package queryir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/wodrt/internal/ir"
)

func TestValidate_Valid(t *testing.T) {
	tests := []struct {
		name  string
		query Query
	}{
		{"bare select", Select{From: "sessions"}},
		{"pointer select", &Select{From: "events"}},
		{
			name: "filter and bindings",
			query: Select{
				From: "records",
				Filter: And{Predicates: []Predicate{
					BoundEquals{Field: "session_id", BoundVar: "session"},
					Equals{Field: "type", Value: ir.IRString("effort")},
					&Equals{Field: "seq", Value: ir.IRInt(3)},
				}},
				Bindings: map[string]string{"label": "label", "status": "state"},
			},
		},
		{"empty and", Select{From: "metrics", Filter: And{}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query)
			assert.True(t, result.Valid, result.Errors)
			assert.Empty(t, result.Errors)
			assert.NoError(t, result.Err())
		})
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  string
	}{
		{"nil query", nil, "nil query"},
		{"unknown table", Select{From: "sqlite_master"}, `unknown table "sqlite_master"`},
		{
			name:  "unknown filter column",
			query: Select{From: "events", Filter: Equals{Field: "name OR 1=1", Value: ir.IRString("x")}},
			want:  `unknown column "name OR 1=1" in table events`,
		},
		{
			name:  "unknown binding column",
			query: Select{From: "metrics", Bindings: map[string]string{"reps": "reps"}},
			want:  `unknown column "reps"`,
		},
		{
			name:  "empty binding name",
			query: Select{From: "metrics", Bindings: map[string]string{"body": ""}},
			want:  "empty name",
		},
		{
			name:  "null literal",
			query: Select{From: "sessions", Filter: Equals{Field: "digest", Value: ir.IRNull{}}},
			want:  "compared to null",
		},
		{
			name:  "array literal",
			query: Select{From: "sessions", Filter: Equals{Field: "id", Value: ir.IRArray{}}},
			want:  "only strings, ints and bools",
		},
		{
			name:  "empty bound variable",
			query: Select{From: "records", Filter: BoundEquals{Field: "session_id"}},
			want:  "empty bound variable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate(tt.query)
			assert.False(t, result.Valid)
			require.NotEmpty(t, result.Errors)
			assert.Contains(t, result.Errors[0], tt.want)
			assert.ErrorContains(t, result.Err(), tt.want)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	q := Select{
		From: "records",
		Filter: And{Predicates: []Predicate{
			Equals{Field: "nope", Value: ir.IRString("x")},
			And{Predicates: []Predicate{Equals{Field: "label", Value: ir.IRNull{}}}},
		}},
		Bindings: map[string]string{"missing": "m"},
	}

	result := Validate(q)
	assert.False(t, result.Valid)
	assert.Len(t, result.Errors, 3)
}

func TestWhere(t *testing.T) {
	pred, err := Where(map[string]any{"type": "root", "seq": 2, "done": true})
	require.NoError(t, err)
	assert.Equal(t, And{Predicates: []Predicate{
		Equals{Field: "done", Value: ir.IRBool(true)},
		Equals{Field: "seq", Value: ir.IRInt(2)},
		Equals{Field: "type", Value: ir.IRString("root")},
	}}, pred)

	pred, err = Where(nil)
	require.NoError(t, err)
	assert.Nil(t, pred)

	_, err = Where(map[string]any{"seq": 1.5})
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "seq", fe.Field)
}

func TestTableKeys(t *testing.T) {
	for table, columns := range Tables {
		assert.Contains(t, columns, SessionColumn(table), table)
		assert.Contains(t, columns, OrderKey(table), table)
	}
	assert.Equal(t, "id", SessionColumn("sessions"))
	assert.Equal(t, "position", OrderKey("records"))
}
