package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/wodrt/internal/ir"
)

// TraceSnapshot captures the observable outcome of a scenario run.
// Session ids are random and left out; everything else is deterministic.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Digest       string       `json:"digest"`
	Done         bool         `json:"done"`
	Trace        []TraceEntry `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical
// JSON serialization. ir.MarshalCanonical only handles IR types and
// primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, entry := range s.Trace {
		m := map[string]any{
			"seq":   entry.Seq,
			"kind":  entry.Kind,
			"name":  entry.Name,
			"at_ms": entry.AtMs,
		}
		if entry.Key != "" {
			m["key"] = entry.Key
		}
		if entry.Label != "" {
			m["label"] = entry.Label
		}
		if entry.Status != "" {
			m["status"] = entry.Status
		}
		if len(entry.Values) > 0 {
			values := make(map[string]any, len(entry.Values))
			for k, v := range entry.Values {
				values[k] = v
			}
			m["values"] = values
		}
		traceList[i] = m
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"digest":        s.Digest,
		"done":          s.Done,
		"trace":         traceList,
	}
}

// Snapshot returns the canonical JSON golden files hold for a result.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Digest:       result.Digest,
		Done:         result.Done,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// AssertGoldenIn compares a result's snapshot against dir/{scenarioName}.golden.
// Mismatches fail t via goldie; regenerate with -update.
func AssertGoldenIn(t *testing.T, dir, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(dir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
