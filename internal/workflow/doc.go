// Package workflow runs the two sync batches and their combination.
//
// A batch selects candidates, dispatches each one strictly in sequence and
// commits the item id to the processed state only after its side effect
// succeeded:
//
//	attachments: Gmail search -> folder routing -> Drive upload -> state
//	documents:   Drive listing -> download -> extraction -> sheet sync -> state
//
// Item failures are logged, counted and skipped. Only a failed precondition
// (listing error, base folder, missing extraction agent, memory pressure)
// aborts a batch; such runs return an error wrapping ErrPrecondition and a
// Result with Success set to false.
//
// Progress is reported on an events.Sink. The engine never blocks on it.
package workflow
