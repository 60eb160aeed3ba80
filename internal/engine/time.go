package engine

import (
	"sync/atomic"
	"time"
)

// TimeSource is where the engine reads "now": at Start, and for events
// that arrive without a timestamp. Otherwise an event's own timestamp is
// the session time.
type TimeSource interface {
	Now() time.Time
}

// SystemTime is the wall clock.
type SystemTime struct{}

func (SystemTime) Now() time.Time { return time.Now() }

// FixedTime always reports T. Live runs and replays start the session at a
// known instant and let each event carry its own time from there.
type FixedTime struct {
	T time.Time
}

func (f FixedTime) Now() time.Time { return f.T }

// recordSeq numbers execution records. Seqs start at 1 and never repeat,
// so history order does not depend on timestamp resolution.
type recordSeq struct {
	n atomic.Int64
}

func (s *recordSeq) next() int64 { return s.n.Add(1) }

func (s *recordSeq) last() int64 { return s.n.Load() }
