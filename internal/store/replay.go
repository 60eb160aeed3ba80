package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/ir"
)

// ReplayResult compares an archived history with its replay.
type ReplayResult struct {
	SessionID string `json:"session_id"`
	Events    int    `json:"events"`
	Stored    string `json:"stored_digest"`   // digest written when the session ended
	Archived  string `json:"archived_digest"` // digest of the archived records
	Replayed  string `json:"replayed_digest"`
	Match     bool   `json:"match"`
}

// Replay runs a fresh engine over an archived session: the archived script
// is started at the session's start time and every archived input event is
// handled in order. Handle errors are returned after the whole log has been
// applied, as the live session saw them too.
func (s *Store) Replay(ctx context.Context, sessionID string, c engine.Compiler, opts ...engine.Option) (*engine.Engine, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	script, err := s.ReadScript(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	evs, err := s.ReadEvents(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	opts = append(slices.Clip(opts), engine.WithTimeSource(engine.FixedTime{T: sess.StartedAt}))
	e := engine.New(c, opts...)
	if err := e.Start(script); err != nil && !e.Done() {
		return e, fmt.Errorf("replay %s: start: %w", sessionID, err)
	}
	var firstErr error
	for _, ev := range evs {
		if err := ctx.Err(); err != nil {
			return e, err
		}
		if err := e.Handle(ev); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("replay %s: %s: %w", sessionID, ev.Name, err)
		}
	}
	return e, firstErr
}

// ReplayCheck replays a session and compares digests. Replay errors that
// the live session also hit are not failures; only the digests decide.
func (s *Store) ReplayCheck(ctx context.Context, sessionID string, c engine.Compiler, opts ...engine.Option) (ReplayResult, error) {
	res := ReplayResult{SessionID: sessionID}

	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return res, err
	}
	res.Stored = sess.Digest

	records, err := s.ReadRecords(ctx, sessionID)
	if err != nil {
		return res, err
	}
	if res.Archived, err = ir.RecordDigest(records); err != nil {
		return res, fmt.Errorf("digest archived history: %w", err)
	}

	evs, err := s.ReadEvents(ctx, sessionID)
	if err != nil {
		return res, err
	}
	res.Events = len(evs)

	e, err := s.Replay(ctx, sessionID, c, opts...)
	if e == nil {
		return res, err
	}
	if res.Replayed, err = ir.RecordDigest(e.Log().History()); err != nil {
		return res, fmt.Errorf("digest replayed history: %w", err)
	}
	res.Match = res.Archived == res.Replayed && (res.Stored == "" || res.Stored == res.Archived)
	return res, nil
}
