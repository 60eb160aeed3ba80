// Package script loads workout scripts into the statement model the runtime
// executes.
//
// Scripts are authored in CUE or YAML. Both formats decode into a Document,
// which is validated before it is indexed into an ir.Script:
//
//	doc, err := script.LoadFile("fran.cue")
//	s, err := doc.Script()
//
// A CUE package directory may hold several workouts under a top-level
// `workout` struct; LoadDir returns all of them.
//
// Durations accept integer milliseconds, Go duration strings ("90s", "20m")
// or clock notation ("20:00", ":60", "1:00:00"). Floats are rejected
// everywhere.
package script
