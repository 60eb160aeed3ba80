package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
)

// WriteEvent appends an input event.
// Uses ON CONFLICT DO NOTHING for idempotency - rewriting a seq is ignored.
//
// Event data is serialized to canonical JSON (RFC 8785).
func (s *Store) WriteEvent(ctx context.Context, sessionID string, seq int64, ev events.Event) error {
	data, err := marshalEventData(ev.Data)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (session_id, seq, name, ts, source, data)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, sessionID, seq, ev.Name, ev.Timestamp.UnixNano(), ev.Source, data)
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WriteRecords archives a finalized history in order, in one transaction.
// Uses ON CONFLICT DO NOTHING for idempotency.
func (s *Store) WriteRecords(ctx context.Context, sessionID string, records []ir.ExecutionRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	defer tx.Rollback()

	for i, rec := range records {
		metrics, err := marshalMetrics(rec.Metrics)
		if err != nil {
			return fmt.Errorf("write records: %w", err)
		}
		var ended sql.NullInt64
		if rec.End != nil {
			ended = sql.NullInt64{Int64: rec.End.UnixNano(), Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO records
			(id, session_id, position, seq, block_key, parent_span_id, type, label, status, started_at, ended_at, metrics)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`,
			rec.ID,
			sessionID,
			i,
			rec.Seq,
			rec.BlockKey,
			rec.ParentSpanID,
			rec.Type,
			rec.Label,
			string(rec.Status),
			rec.Start.UnixNano(),
			ended,
			metrics,
		)
		if err != nil {
			return fmt.Errorf("write record %s: %w", rec.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return nil
}

// WriteMetric archives the index-th collected metric of a session.
// The row id is ir.MetricID, so rewriting the same metric is a no-op.
func (s *Store) WriteMetric(ctx context.Context, sessionID string, index int64, m ir.RuntimeMetric) error {
	id, err := ir.MetricID(sessionID, index, m)
	if err != nil {
		return fmt.Errorf("write metric: %w", err)
	}
	body, err := marshalMetric(m)
	if err != nil {
		return fmt.Errorf("write metric: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metrics (id, session_id, idx, exercise_id, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, id, sessionID, index, m.ExerciseID, body)
	if err != nil {
		return fmt.Errorf("write metric: %w", err)
	}
	return nil
}
