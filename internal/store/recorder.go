package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
)

// Recorder archives a running session. It streams input events and metrics
// as the engine reports them; the history is written by Finish once the
// session is over.
//
// Write failures are logged and remembered, never returned to the engine:
// a broken archive must not stop a workout.
type Recorder struct {
	engine.BaseObserver

	ctx       context.Context
	store     *Store
	sessionID string
	logger    *slog.Logger

	mu  sync.Mutex
	seq int64
	err error
}

// NewRecorder returns a Recorder writing under sessionID.
// A nil logger uses slog.Default().
func NewRecorder(ctx context.Context, s *Store, sessionID string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		ctx:       ctx,
		store:     s,
		sessionID: sessionID,
		logger:    logger.With("session_id", sessionID),
	}
}

// SessionID returns the archive id.
func (r *Recorder) SessionID() string { return r.sessionID }

func (r *Recorder) EventHandled(ev events.Event) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.mu.Unlock()
	r.fail(r.store.WriteEvent(r.ctx, r.sessionID, seq, ev), "event", ev.Name)
}

func (r *Recorder) MetricEmitted(b *engine.Block, index int, m ir.RuntimeMetric) {
	r.fail(r.store.WriteMetric(r.ctx, r.sessionID, int64(index), m), "metric", m.ExerciseID)
}

func (r *Recorder) fail(err error, kind, name string) {
	if err == nil {
		return
	}
	r.logger.Warn("archive write failed",
		"kind", kind,
		"name", name,
		"error", err)
	r.mu.Lock()
	r.err = errors.Join(r.err, err)
	r.mu.Unlock()
}

// Err returns every write error seen so far.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Finish writes the finalized history and closes the session with its
// digest. Returns the digest and any error seen during the session.
func (r *Recorder) Finish(ctx context.Context, history []ir.ExecutionRecord, endedAt time.Time) (string, error) {
	if err := r.store.WriteRecords(ctx, r.sessionID, history); err != nil {
		return "", errors.Join(r.Err(), err)
	}
	digest, err := ir.RecordDigest(history)
	if err != nil {
		return "", errors.Join(r.Err(), fmt.Errorf("digest history: %w", err))
	}
	if err := r.store.EndSession(ctx, r.sessionID, endedAt, digest); err != nil {
		return "", errors.Join(r.Err(), err)
	}
	r.logger.Info("session archived",
		"records", len(history),
		"digest", digest)
	return digest, r.Err()
}
