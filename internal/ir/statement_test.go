package ir

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

func franScript(t *testing.T) *Script {
	t.Helper()
	s, err := NewScript("fran", []Statement{
		{ID: 1, Children: [][]int64{{2}, {3}}, Fragments: []Fragment{
			{Type: FragmentRounds, Sequence: []int64{21, 15, 9}, Image: "21-15-9"},
		}},
		{ID: 2, Parent: ptr(1), Fragments: []Fragment{
			{Type: FragmentEffort, Label: "Thrusters"},
			{Type: FragmentResistance, Amount: 95, Unit: "lb"},
		}},
		{ID: 3, Parent: ptr(1), Fragments: []Fragment{{Type: FragmentEffort, Label: "Pull-ups"}}},
		{ID: 4, Fragments: []Fragment{{Type: FragmentTimer, Duration: 60000, Image: "1:00"}}},
	})
	require.NoError(t, err)
	return s
}

func TestScriptLookup(t *testing.T) {
	s := franScript(t)

	stmts, err := s.Lookup([]int64{3, 2})
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, int64(3), stmts[0].ID)
	assert.Equal(t, int64(2), stmts[1].ID)

	_, err = s.Lookup([]int64{2, 99})
	var unknown *UnknownStatementError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, int64(99), unknown.ID)
}

func TestScriptRootGroups(t *testing.T) {
	s := franScript(t)
	assert.Equal(t, [][]int64{{1}, {4}}, s.RootGroups())
}

func TestNewScriptRejectsDuplicates(t *testing.T) {
	_, err := NewScript("dup", []Statement{{ID: 1}, {ID: 1}})
	var dup *DuplicateStatementError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, int64(1), dup.ID)
}

func TestStatementHelpers(t *testing.T) {
	s := franScript(t)
	root, ok := s.Statement(1)
	require.True(t, ok)

	assert.True(t, root.Has(FragmentRounds))
	assert.False(t, root.Has(FragmentTimer))
	assert.True(t, root.HasChildren())
	assert.Equal(t, "21-15-9", root.Label())

	thrusters, _ := s.Statement(2)
	assert.Equal(t, "Thrusters", thrusters.Label())
	res, ok := thrusters.Fragment(FragmentResistance)
	require.True(t, ok)
	assert.Equal(t, int64(95), res.Amount)
	assert.False(t, thrusters.HasChildren())
}

func TestFragmentValidate(t *testing.T) {
	tests := []struct {
		name    string
		frag    Fragment
		wantErr string
	}{
		{"countdown", Fragment{Type: FragmentTimer, Duration: 60000}, ""},
		{"count up", Fragment{Type: FragmentTimer, Direction: DirectionUp}, ""},
		{"countdown without duration", Fragment{Type: FragmentTimer, Direction: DirectionDown}, "requires a duration"},
		{"bad direction", Fragment{Type: FragmentTimer, Direction: "sideways"}, "direction"},
		{"rounds", Fragment{Type: FragmentRounds, Count: 3}, ""},
		{"rep scheme", Fragment{Type: FragmentRounds, Sequence: []int64{21, 15, 9}}, ""},
		{"zero rounds", Fragment{Type: FragmentRounds}, "count >= 1"},
		{"bad sequence", Fragment{Type: FragmentRounds, Sequence: []int64{5, 0}}, "sequence[1]"},
		{"negative reps", Fragment{Type: FragmentRep, Count: -1}, "rep count"},
		{"effort without label", Fragment{Type: FragmentEffort}, "requires a label"},
		{"action", Fragment{Type: FragmentAction, Label: ActionEMOM}, ""},
		{"negative load", Fragment{Type: FragmentResistance, Amount: -5}, "amount"},
		{"unknown", Fragment{Type: "tempo"}, "unknown fragment type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.frag.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFragmentDerived(t *testing.T) {
	assert.Equal(t, DirectionDown, Fragment{Type: FragmentTimer, Duration: 1000}.TimerDirection())
	assert.Equal(t, DirectionUp, Fragment{Type: FragmentTimer}.TimerDirection())
	assert.Equal(t, DirectionUp, Fragment{Type: FragmentTimer, Duration: 1000, Direction: DirectionUp}.TimerDirection())

	assert.Equal(t, int64(3), Fragment{Type: FragmentRounds, Sequence: []int64{21, 15, 9}}.TotalRounds())
	assert.Equal(t, int64(5), Fragment{Type: FragmentRounds, Count: 5}.TotalRounds())

	f := Fragment{Type: FragmentRounds, Sequence: []int64{1, 2}}
	c := f.Clone()
	c.Sequence[0] = 99
	assert.Equal(t, int64(1), f.Sequence[0])
}

func TestRuntimeMetricCloneIsDeep(t *testing.T) {
	stop := time.UnixMilli(2000)
	m := RuntimeMetric{
		ExerciseID: "thrusters",
		Values:     []MetricValue{{Type: MetricReps, Value: 21}},
		Spans:      []TimeSpan{{Start: time.UnixMilli(1000), Stop: &stop}},
	}
	c := m.Clone()
	c.Values[0].Value = 0
	*c.Spans[0].Stop = time.UnixMilli(9999)

	assert.Equal(t, int64(21), m.Values[0].Value)
	assert.Equal(t, time.UnixMilli(2000), *m.Spans[0].Stop)

	v, ok := m.Value(MetricReps)
	require.True(t, ok)
	assert.Equal(t, int64(21), v.Value)
	_, ok = m.Value(MetricCalories)
	assert.False(t, ok)
	assert.Equal(t, time.Second, m.Spans[0].Duration(time.Time{}))
}

func TestExecutionRecordClone(t *testing.T) {
	end := time.UnixMilli(5000)
	r := ExecutionRecord{
		ID: "span", Start: time.UnixMilli(1000), End: &end, Status: StatusCompleted,
		Metrics: []RuntimeMetric{{ExerciseID: "row", Values: []MetricValue{{Type: MetricDistance, Value: 500, Unit: "m"}}}},
	}
	c := r.Clone()
	*c.End = time.UnixMilli(0)
	c.Metrics[0].Values[0].Value = 0

	assert.Equal(t, int64(500), r.Metrics[0].Values[0].Value)
	assert.Equal(t, 4*time.Second, r.Elapsed(time.Time{}))

	active := ExecutionRecord{Start: time.UnixMilli(1000)}
	assert.Equal(t, 2*time.Second, active.Elapsed(time.UnixMilli(3000)))
}

func TestNormalizeExerciseID(t *testing.T) {
	tests := map[string]string{
		"Pushups":          "pushups",
		"  Air   Squats ":  "air-squats",
		"Caf\u00e9 Burpee":  "caf\u00e9-burpee",
		"Cafe\u0301 Burpee": "caf\u00e9-burpee",
		"":                 "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeExerciseID(in), "input %q", in)
	}
}
