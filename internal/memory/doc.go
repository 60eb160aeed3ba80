// Package memory implements the shared memory arena of a workout session.
//
// Cells are typed values keyed by (type, owner, visibility). Blocks never
// hold pointers to each other; a descendant finds an ancestor's data by
// searching for an inherited cell with an empty owner filter:
//
//	target, _, ok := memory.Find[int64](store, memory.Filter{
//	    Type:       "metric:reps",
//	    Visibility: memory.Inherited,
//	    Requester:  childKey,
//	})
//
// Writers are fixed at compile time: a behavior writes only the cells it
// allocated or was constructed with. Readers may search anything visible.
package memory
