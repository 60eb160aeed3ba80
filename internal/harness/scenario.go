package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/wodrt/internal/ir"
	"github.com/roach88/wodrt/internal/script"
)

// Scenario defines one scripted workout session and what it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Script is the path of a .cue or .yaml script, relative to the
	// scenario file.
	Script string `yaml:"script,omitempty"`

	// Workout is an inline script in the YAML script format. Exactly one of
	// Script and Workout is set.
	Workout *yaml.Node `yaml:"workout,omitempty"`

	// Steps are the input events, in time order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state, trace and archive.
	Assertions []Assertion `yaml:"assertions"`
}

// Step delivers one input event at an offset from session start.
type Step struct {
	// At is the offset from session start, e.g. "90s" or "1:30".
	At string `yaml:"at"`

	// Event is the event name: next, tick, stop or any custom name.
	Event string `yaml:"event"`

	// Every, when set, emits ticks at this period from the previous step's
	// offset up to At, before Event itself is delivered.
	Every string `yaml:"every,omitempty"`

	offset time.Duration
	period time.Duration
}

// Offset returns the parsed At offset.
func (s Step) Offset() time.Duration { return s.offset }

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type selects the check; see the Assert constants.
	Type string `yaml:"type"`

	Done     *bool  `yaml:"done,omitempty"`     // complete
	Depth    *int   `yaml:"depth,omitempty"`    // stack_depth
	Label    string `yaml:"label,omitempty"`    // stack_top, history_contains
	Cell     string `yaml:"cell,omitempty"`     // memory
	Exercise string `yaml:"exercise,omitempty"` // metric_count, metric_total
	Metric   string `yaml:"metric,omitempty"`   // metric_total
	Count    *int   `yaml:"count,omitempty"`    // metric_count, history_contains
	Value    *int64 `yaml:"value,omitempty"`    // metric_total
	Record   string `yaml:"record,omitempty"`   // history_contains: span type
	Status   string `yaml:"status,omitempty"`   // history_contains
	Contains string `yaml:"contains,omitempty"` // error

	// Order is the expected span type sequence (history_order).
	Order []string `yaml:"order,omitempty"`

	// Table is the archive table name (final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies row filters (final_state). The session id is always
	// added.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (memory, final_state).
	// Subset match: only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertComplete        = "complete"
	AssertStackDepth      = "stack_depth"
	AssertStackTop        = "stack_top"
	AssertMemory          = "memory"
	AssertMetricCount     = "metric_count"
	AssertMetricTotal     = "metric_total"
	AssertHistoryContains = "history_contains"
	AssertHistoryOrder    = "history_order"
	AssertError           = "error"
	AssertFinalState      = "final_state"
	AssertReplay          = "replay"
)

// LoadScenario reads and parses a scenario YAML file. A relative script
// path is resolved against the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the script path relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data, basePath)
}

// ParseScenario decodes and validates a scenario.
func ParseScenario(data []byte, basePath string) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Script != "" && !filepath.IsAbs(scenario.Script) && basePath != "" {
		scenario.Script = filepath.Join(basePath, scenario.Script)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScript returns the scenario's validated script.
func (s *Scenario) LoadScript() (*ir.Script, error) {
	if s.Script != "" {
		return script.Load(s.Script)
	}
	data, err := yaml.Marshal(s.Workout)
	if err != nil {
		return nil, fmt.Errorf("encode inline workout: %w", err)
	}
	doc, err := script.ParseYAML(s.Name, data)
	if err != nil {
		return nil, err
	}
	return doc.Script()
}

// validateScenario checks that required fields are present and valid, and
// parses step offsets.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	switch {
	case s.Script == "" && s.Workout == nil:
		return fmt.Errorf("one of script or workout is required")
	case s.Script != "" && s.Workout != nil:
		return fmt.Errorf("script and workout are mutually exclusive")
	case s.Script != "":
		if _, err := os.Stat(s.Script); os.IsNotExist(err) {
			return fmt.Errorf("script file not found: %s", s.Script)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	var prev time.Duration
	for i := range s.Steps {
		step := &s.Steps[i]
		if step.Event == "" {
			return fmt.Errorf("steps[%d]: event is required", i)
		}
		ms, err := script.ParseDuration(step.At)
		if err != nil {
			return fmt.Errorf("steps[%d]: at: %w", i, err)
		}
		step.offset = time.Duration(ms) * time.Millisecond
		if step.offset < prev {
			return fmt.Errorf("steps[%d]: at %s is before the previous step", i, step.At)
		}
		if step.Every != "" {
			ms, err := script.ParseDuration(step.Every)
			if err != nil {
				return fmt.Errorf("steps[%d]: every: %w", i, err)
			}
			if ms == 0 {
				return fmt.Errorf("steps[%d]: every must be positive", i)
			}
			step.period = time.Duration(ms) * time.Millisecond
		}
		prev = step.offset
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertComplete:
		if a.Done == nil {
			return fmt.Errorf("assertions[%d]: done is required for complete", index)
		}
	case AssertStackDepth:
		if a.Depth == nil || *a.Depth < 0 {
			return fmt.Errorf("assertions[%d]: non-negative depth is required for stack_depth", index)
		}
	case AssertStackTop:
		if a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required for stack_top", index)
		}
	case AssertMemory:
		if a.Cell == "" {
			return fmt.Errorf("assertions[%d]: cell is required for memory", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for memory", index)
		}
	case AssertMetricCount:
		if a.Exercise == "" {
			return fmt.Errorf("assertions[%d]: exercise is required for metric_count", index)
		}
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for metric_count", index)
		}
	case AssertMetricTotal:
		if a.Exercise == "" || a.Metric == "" {
			return fmt.Errorf("assertions[%d]: exercise and metric are required for metric_total", index)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for metric_total", index)
		}
	case AssertHistoryContains:
		if a.Record == "" && a.Label == "" && a.Status == "" {
			return fmt.Errorf("assertions[%d]: one of record, label or status is required for history_contains", index)
		}
		if a.Count != nil && *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for history_contains", index)
		}
	case AssertHistoryOrder:
		if len(a.Order) == 0 {
			return fmt.Errorf("assertions[%d]: order list is required for history_order", index)
		}
	case AssertError:
		if a.Contains == "" {
			return fmt.Errorf("assertions[%d]: contains is required for error", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertReplay:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
