package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
)

// ReadEvents returns a session's input events in arrival order.
// Returns an empty slice (not nil) if none exist.
func (s *Store) ReadEvents(ctx context.Context, sessionID string) ([]events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, ts, source, data
		FROM events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []events.Event{}
	for rows.Next() {
		var (
			ev   events.Event
			ts   int64
			data string
		)
		if err := rows.Scan(&ev.Name, &ts, &ev.Source, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Timestamp = time.Unix(0, ts).UTC()
		if ev.Data, err = unmarshalEventData(data); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// ReadRecords returns a session's history in the order it was finalized.
// Returns an empty slice (not nil) if none exist.
func (s *Store) ReadRecords(ctx context.Context, sessionID string) ([]ir.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, block_key, parent_span_id, type, label, status, started_at, ended_at, metrics
		FROM records
		WHERE session_id = ?
		ORDER BY position ASC, id COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []ir.ExecutionRecord{}
	for rows.Next() {
		var (
			rec     ir.ExecutionRecord
			status  string
			started int64
			ended   sql.NullInt64
			metrics string
		)
		if err := rows.Scan(&rec.ID, &rec.Seq, &rec.BlockKey, &rec.ParentSpanID, &rec.Type, &rec.Label,
			&status, &started, &ended, &metrics); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.Status = ir.SpanStatus(status)
		rec.Start = time.Unix(0, started).UTC()
		if ended.Valid {
			t := time.Unix(0, ended.Int64).UTC()
			rec.End = &t
		}
		if rec.Metrics, err = unmarshalMetrics(metrics); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

// ReadMetrics returns a session's metrics in collection order.
// Returns an empty slice (not nil) if none exist.
func (s *Store) ReadMetrics(ctx context.Context, sessionID string) ([]ir.RuntimeMetric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM metrics
		WHERE session_id = ?
		ORDER BY idx ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	out := []ir.RuntimeMetric{}
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m, err := unmarshalMetric(body)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	return out, nil
}

// ExerciseTotals sums archived metric values per exercise across all
// sessions. Values are summed in Go: metric bodies are canonical JSON.
func (s *Store) ExerciseTotals(ctx context.Context, exerciseID string) (map[ir.MetricValueType]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT body FROM metrics
		WHERE exercise_id = ?
		ORDER BY session_id COLLATE BINARY ASC, idx ASC
	`, exerciseID)
	if err != nil {
		return nil, fmt.Errorf("query exercise totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[ir.MetricValueType]int64)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		m, err := unmarshalMetric(body)
		if err != nil {
			return nil, err
		}
		for _, v := range m.Values {
			totals[v.Type] += v.Value
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	return totals, nil
}
