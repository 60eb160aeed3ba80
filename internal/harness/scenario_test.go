package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pushupsWorkout = `
workout:
  name: Pushups
  statements:
    - id: 1
      fragments:
        - {type: rep, count: 10}
        - {type: effort, label: Pushups}
`

func TestLoadScenario_ValidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rest.yaml"), []byte(`
name: Rest
statements:
  - id: 1
    fragments:
      - {type: timer, duration: "1:00"}
`), 0644))
	scenarioPath := filepath.Join(dir, "rest.scenario.yaml")
	content := `
name: rest_scenario
description: "Rest ends on expiry"
script: rest.yaml
steps:
  - {at: "0:30", event: tick}
  - {at: "1:00", event: tick, every: 10s}
assertions:
  - {type: complete, done: true}
`
	require.NoError(t, os.WriteFile(scenarioPath, []byte(content), 0644))

	scenario, err := LoadScenario(scenarioPath)
	require.NoError(t, err)

	assert.Equal(t, "rest_scenario", scenario.Name)
	assert.Equal(t, filepath.Join(dir, "rest.yaml"), scenario.Script)
	require.Len(t, scenario.Steps, 2)
	assert.Equal(t, 30*time.Second, scenario.Steps[0].Offset())
	assert.Equal(t, time.Minute, scenario.Steps[1].Offset())
	assert.Equal(t, 10*time.Second, scenario.Steps[1].period)

	s, err := scenario.LoadScript()
	require.NoError(t, err)
	assert.Equal(t, "Rest", s.Name)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_InlineWorkout(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: inline
description: "inline workout"
`+pushupsWorkout+`
assertions:
  - {type: complete, done: false}
`), "")
	require.NoError(t, err)
	require.NotNil(t, scenario.Workout)

	s, err := scenario.LoadScript()
	require.NoError(t, err)
	assert.Equal(t, "Pushups", s.Name)
	assert.Len(t, s.Statements, 1)
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: "typo"
`+pushupsWorkout+`
assertion:
  - {type: complete, done: true}
`), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing name",
			body: "description: d\n" + pushupsWorkout + "assertions: [{type: replay}]\n",
			want: "name is required",
		},
		{
			name: "missing description",
			body: "name: n\n" + pushupsWorkout + "assertions: [{type: replay}]\n",
			want: "description is required",
		},
		{
			name: "no script",
			body: "name: n\ndescription: d\nassertions: [{type: replay}]\n",
			want: "one of script or workout is required",
		},
		{
			name: "script and workout",
			body: "name: n\ndescription: d\nscript: x.yaml\n" + pushupsWorkout + "assertions: [{type: replay}]\n",
			want: "mutually exclusive",
		},
		{
			name: "missing script file",
			body: "name: n\ndescription: d\nscript: /nonexistent/x.yaml\nassertions: [{type: replay}]\n",
			want: "script file not found",
		},
		{
			name: "no assertions",
			body: "name: n\ndescription: d\n" + pushupsWorkout,
			want: "assertions list is required",
		},
		{
			name: "step without event",
			body: "name: n\ndescription: d\n" + pushupsWorkout + "steps: [{at: 10s}]\nassertions: [{type: replay}]\n",
			want: "steps[0]: event is required",
		},
		{
			name: "bad offset",
			body: "name: n\ndescription: d\n" + pushupsWorkout + "steps: [{at: soon, event: next}]\nassertions: [{type: replay}]\n",
			want: "steps[0]: at",
		},
		{
			name: "steps out of order",
			body: "name: n\ndescription: d\n" + pushupsWorkout + "steps: [{at: 20s, event: next}, {at: 10s, event: next}]\nassertions: [{type: replay}]\n",
			want: "steps[1]: at 10s is before the previous step",
		},
		{
			name: "zero period",
			body: "name: n\ndescription: d\n" + pushupsWorkout + "steps: [{at: 20s, event: tick, every: 0s}]\nassertions: [{type: replay}]\n",
			want: "every must be positive",
		},
		{
			name: "unknown assertion",
			body: "name: n\ndescription: d\n" + pushupsWorkout + "assertions: [{type: trace_contains}]\n",
			want: `unknown assertion type "trace_contains"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.body), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateAssertion(t *testing.T) {
	depth := -1
	count := 2
	tests := []struct {
		name string
		a    Assertion
		want string
	}{
		{"missing type", Assertion{}, "type is required"},
		{"complete without done", Assertion{Type: AssertComplete}, "done is required"},
		{"negative depth", Assertion{Type: AssertStackDepth, Depth: &depth}, "non-negative depth"},
		{"stack_top without label", Assertion{Type: AssertStackTop}, "label is required"},
		{"memory without expect", Assertion{Type: AssertMemory, Cell: "round:state"}, "expect is required"},
		{"metric_count without count", Assertion{Type: AssertMetricCount, Exercise: "pushups"}, "count must be non-negative"},
		{"metric_total without metric", Assertion{Type: AssertMetricTotal, Exercise: "pushups"}, "exercise and metric are required"},
		{"history_contains without filter", Assertion{Type: AssertHistoryContains, Count: &count}, "one of record, label or status"},
		{"history_order without order", Assertion{Type: AssertHistoryOrder}, "order list is required"},
		{"error without contains", Assertion{Type: AssertError}, "contains is required"},
		{"final_state without table", Assertion{Type: AssertFinalState}, "table is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateAssertion(0, &tt.a)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	require.NoError(t, validateAssertion(0, &Assertion{Type: AssertReplay}))
}
