package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainMetric = "wodrt/metric/v1"
	DomainScript = "wodrt/script/v1"
	DomainRecord = "wodrt/record/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// MetricID computes the content-addressed ID of a metric collected in a
// session. The same metric at the same collection index hashes identically
// across replays, which makes archive inserts idempotent.
func MetricID(sessionID string, index int64, m RuntimeMetric) (string, error) {
	obj := IRObject{
		"session_id": IRString(sessionID),
		"index":      IRInt(index),
		"metric":     metricObject(m),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("MetricID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainMetric, canonical), nil
}

// ScriptHash identifies a script by its statement content.
func ScriptHash(s *Script) (string, error) {
	stmts := make(IRArray, 0, len(s.Statements))
	for _, st := range s.Statements {
		stmts = append(stmts, statementObject(st))
	}
	canonical, err := MarshalCanonical(IRObject{"statements": stmts})
	if err != nil {
		return "", fmt.Errorf("ScriptHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainScript, canonical), nil
}

// RecordDigest hashes the structural content of an execution history:
// block types, labels, statuses, nesting and metrics. Span ids, block keys and
// wall-clock stamps are excluded so a replayed session digests identically
// to the archived one.
func RecordDigest(records []ExecutionRecord) (string, error) {
	index := make(map[string]int, len(records))
	for i, r := range records {
		index[r.ID] = i
	}

	arr := make(IRArray, 0, len(records))
	for _, r := range records {
		parent := IRInt(-1)
		if i, ok := index[r.ParentSpanID]; ok {
			parent = IRInt(i)
		}
		metrics := make(IRArray, 0, len(r.Metrics))
		for _, m := range r.Metrics {
			metrics = append(metrics, metricValuesObject(m))
		}
		arr = append(arr, IRObject{
			"type":    IRString(r.Type),
			"label":   IRString(r.Label),
			"status":  IRString(r.Status),
			"parent":  parent,
			"metrics": metrics,
		})
	}

	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("RecordDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRecord, canonical), nil
}

// MustMetricID is like MetricID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustMetricID(sessionID string, index int64, m RuntimeMetric) string {
	id, err := MetricID(sessionID, index, m)
	if err != nil {
		panic(err)
	}
	return id
}

func metricValuesObject(m RuntimeMetric) IRObject {
	values := make(IRArray, 0, len(m.Values))
	for _, v := range m.Values {
		values = append(values, IRObject{
			"type":  IRString(v.Type),
			"value": IRInt(v.Value),
			"unit":  IRString(v.Unit),
		})
	}
	return IRObject{
		"exercise_id": IRString(m.ExerciseID),
		"values":      values,
	}
}

func metricObject(m RuntimeMetric) IRObject {
	obj := metricValuesObject(m)
	spans := make(IRArray, 0, len(m.Spans))
	for _, sp := range m.Spans {
		span := IRObject{"start": IRInt(sp.Start.UnixMilli())}
		if sp.Stop != nil {
			span["stop"] = unixMillis(sp.Stop)
		}
		spans = append(spans, span)
	}
	obj["spans"] = spans
	return obj
}

func statementObject(st Statement) IRObject {
	children := make(IRArray, 0, len(st.Children))
	for _, group := range st.Children {
		ids := make(IRArray, 0, len(group))
		for _, id := range group {
			ids = append(ids, IRInt(id))
		}
		children = append(children, ids)
	}
	frags := make(IRArray, 0, len(st.Fragments))
	for _, f := range st.Fragments {
		frags = append(frags, f.toIR())
	}
	obj := IRObject{
		"id":        IRInt(st.ID),
		"children":  children,
		"fragments": frags,
	}
	if st.Parent != nil {
		obj["parent"] = IRInt(*st.Parent)
	}
	if len(st.Meta) > 0 {
		obj["meta"] = st.Meta
	}
	return obj
}

// unixMillis encodes a timestamp as integer milliseconds; zero for nil.
func unixMillis(t *time.Time) IRInt {
	if t == nil {
		return 0
	}
	return IRInt(t.UnixMilli())
}
