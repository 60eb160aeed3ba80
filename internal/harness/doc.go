// Package harness runs workout scenarios against the real engine.
//
// A scenario names a script, drives the engine with a timed list of input
// events and checks the outcome with assertions. Every run uses a manual
// clock, sequential span ids and block keys, and a fresh in-memory session
// archive, so traces are reproducible and can be compared against golden
// files.
//
// # Scenario Format
//
//	name: fran_rep_scheme
//	description: "21-15-9 counts down and totals 45 reps"
//	script: ../../script/testdata/fran.yaml
//	steps:
//	  - {at: "1:00", event: next}
//	  - {at: "1:30", event: tick, every: 10s}
//	  - {at: "2:00", event: stop}
//	assertions:
//	  - {type: complete, done: true}
//	  - {type: metric_total, exercise: thrusters, metric: reps, value: 45}
//	  - type: final_state
//	    table: records
//	    where: {type: root}
//	    expect: {status: completed}
//
// A script is either a path, resolved against the scenario file's
// directory, or an inline workout in the YAML script format.
//
// Step offsets are measured from session start and use the script duration
// syntax ("90s", "1:30"). A step with every emits ticks at that period from
// the previous step's offset up to its own.
//
// # Assertion Types
//
//   - complete: whether the session ended
//   - stack_depth: the number of blocks on the stack
//   - stack_top: the label of the top block
//   - memory: a subset match on the first visible cell of a type
//   - metric_count: how many metrics an exercise produced
//   - metric_total: the summed value of one metric type for an exercise
//   - history_contains: a finalized span with a type, label or status
//   - history_order: the exact sequence of finalized span types
//   - error: an engine error containing a substring
//   - final_state: a row in the session archive
//   - replay: replaying the archived events reproduces the history digest
//
// An engine error not claimed by an error assertion fails the scenario.
package harness
