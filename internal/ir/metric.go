package ir

import (
	"slices"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// MetricValueType tags a single measured value.
type MetricValueType string

const (
	MetricReps       MetricValueType = "reps"
	MetricResistance MetricValueType = "resistance"
	MetricDistance   MetricValueType = "distance"
	MetricTime       MetricValueType = "time" // milliseconds
	MetricRounds     MetricValueType = "rounds"
	MetricCalories   MetricValueType = "calories"
	MetricEffort     MetricValueType = "effort"
	MetricAction     MetricValueType = "action"
)

// MetricValue is one typed measurement.
type MetricValue struct {
	Type  MetricValueType `json:"type"`
	Value int64           `json:"value"`
	Unit  string          `json:"unit,omitempty"`
}

// TimeSpan is a start/stop interval. Stop is nil while the interval is open.
type TimeSpan struct {
	Start time.Time  `json:"start"`
	Stop  *time.Time `json:"stop,omitempty"`
}

// Duration returns the interval length, measuring open intervals up to now.
func (s TimeSpan) Duration(now time.Time) time.Duration {
	if s.Stop != nil {
		return s.Stop.Sub(s.Start)
	}
	return now.Sub(s.Start)
}

// RuntimeMetric is a performance record emitted by a block.
type RuntimeMetric struct {
	ExerciseID string        `json:"exercise_id"`
	Values     []MetricValue `json:"values"`
	Spans      []TimeSpan    `json:"spans,omitempty"`
}

// Value returns the first value of type t.
func (m RuntimeMetric) Value(t MetricValueType) (MetricValue, bool) {
	for _, v := range m.Values {
		if v.Type == t {
			return v, true
		}
	}
	return MetricValue{}, false
}

// Clone returns a deep copy that shares no memory with m.
func (m RuntimeMetric) Clone() RuntimeMetric {
	out := RuntimeMetric{
		ExerciseID: m.ExerciseID,
		Values:     slices.Clone(m.Values),
	}
	if m.Spans != nil {
		out.Spans = make([]TimeSpan, len(m.Spans))
		for i, s := range m.Spans {
			out.Spans[i] = TimeSpan{Start: s.Start}
			if s.Stop != nil {
				stop := *s.Stop
				out.Spans[i].Stop = &stop
			}
		}
	}
	return out
}

// NormalizeExerciseID turns a display label into a stable exercise id:
// NFC normalized, lower-cased, whitespace runs collapsed to '-'.
// "Pushups" and " pushups " map to the same id.
func NormalizeExerciseID(label string) string {
	s := strings.ToLower(norm.NFC.String(strings.TrimSpace(label)))
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), "-")
}
