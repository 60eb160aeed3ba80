// Package store provides the SQLite-backed session archive.
//
// The archive is append-only:
//   - Sessions: one row per run (ULID id, script, start/end, history digest)
//   - Events: the external input events in arrival order
//   - Records: the finalized execution history
//   - Metrics: collected metrics, content-addressed by ir.MetricID
//
// # Ordering
//
// Events are keyed by (session_id, seq) where seq is the arrival order.
// Records keep their history position so a read returns them in the order
// the runtime finalized them. Queries always include an ORDER BY; results
// never depend on rowid order.
//
// # Replay
//
// The runtime's time comes only from event timestamps, so feeding a
// session's archived events to a fresh engine reproduces its history.
// ReplayCheck compares the digests of both histories.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
