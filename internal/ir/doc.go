// Package ir provides the canonical data model for wodrt.
//
// It holds the parsed workout input (Statement, Fragment, Script), the records
// the runtime produces (RuntimeMetric, ExecutionRecord), and the canonical JSON
// and content hashing used to identify them in the session archive.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere: durations are milliseconds, loads and distances are integers
//   - All JSON tags use snake_case
//   - Records carry a logical seq for ordering; wall-clock stamps are informational
package ir
