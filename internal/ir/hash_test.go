package ir

import (
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMetric() RuntimeMetric {
	start := time.UnixMilli(1_700_000_000_000)
	stop := start.Add(30 * time.Second)
	return RuntimeMetric{
		ExerciseID: "pushups",
		Values: []MetricValue{
			{Type: MetricReps, Value: 10},
			{Type: MetricTime, Value: 30000, Unit: "ms"},
		},
		Spans: []TimeSpan{{Start: start, Stop: &stop}},
	}
}

func TestMetricIDDeterminism(t *testing.T) {
	m := sampleMetric()
	id1 := MustMetricID("01HSESSION", 0, m)
	id2 := MustMetricID("01HSESSION", 0, m.Clone())
	assert.Equal(t, id1, id2)

	_, err := hex.DecodeString(id1)
	require.NoError(t, err)
	assert.Len(t, id1, 64)
}

func TestMetricIDChangesWithInput(t *testing.T) {
	m := sampleMetric()
	base := MustMetricID("s1", 0, m)

	assert.NotEqual(t, base, MustMetricID("s2", 0, m), "session changes id")
	assert.NotEqual(t, base, MustMetricID("s1", 1, m), "index changes id")

	changed := m.Clone()
	changed.Values[0].Value = 11
	assert.NotEqual(t, base, MustMetricID("s1", 0, changed), "value changes id")

	open := m.Clone()
	open.Spans[0].Stop = nil
	assert.NotEqual(t, base, MustMetricID("s1", 0, open), "open span changes id")
}

func TestScriptHash(t *testing.T) {
	parent := int64(1)
	build := func(reps int64) *Script {
		return MustScript("fran", []Statement{
			{ID: 1, Children: [][]int64{{2}}, Fragments: []Fragment{{Type: FragmentRounds, Count: 3}}},
			{ID: 2, Parent: &parent, Fragments: []Fragment{
				{Type: FragmentRep, Count: reps},
				{Type: FragmentEffort, Label: "Pushups"},
			}},
		})
	}

	h1, err := build(10).Hash()
	require.NoError(t, err)
	h2, err := build(10).Hash()
	require.NoError(t, err)
	h3, err := build(12).Hash()
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}

func TestScriptHashRejectsNullMeta(t *testing.T) {
	s := MustScript("bad", []Statement{{ID: 1, Meta: IRObject{"x": IRNull{}}}})
	_, err := s.Hash()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ScriptHash")
}

func TestRecordDigestIgnoresIdentity(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	history := func(rootID, childID, key string, offset time.Duration) []ExecutionRecord {
		start := now.Add(offset)
		return []ExecutionRecord{
			{ID: childID, BlockKey: key + "-c", ParentSpanID: rootID, Type: "effort", Label: "Pushups",
				Start: start, Status: StatusCompleted, Metrics: []RuntimeMetric{{ExerciseID: "pushups",
					Values: []MetricValue{{Type: MetricReps, Value: 10}}}}},
			{ID: rootID, BlockKey: key, Type: "rounds", Label: "3 Rounds", Start: start, Status: StatusCompleted},
		}
	}

	d1, err := RecordDigest(history("a", "b", "k1", 0))
	require.NoError(t, err)
	d2, err := RecordDigest(history("x", "y", "k2", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	changed := history("a", "b", "k1", 0)
	changed[0].Status = StatusFailed
	d3, err := RecordDigest(changed)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)
}

func TestDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain(DomainMetric, data), hashWithDomain(DomainScript, data))
	assert.NotEqual(t, hashWithDomain("ab", []byte("c")), hashWithDomain("a", []byte("bc")))
	assert.Equal(t, "wodrt/metric/v1", DomainMetric)
	assert.Equal(t, "wodrt/record/v1", DomainRecord)
}
