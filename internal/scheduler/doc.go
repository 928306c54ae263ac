// Package scheduler runs shader build work on two long-lived worker
// goroutines: one draining an init queue (compile, create pipelines) and one
// draining a bake queue (finalize created pipelines).
//
// Progress is tracked per shader index and globally. The owning goroutine
// waits for all outstanding work with [Scheduler.Flush], which then runs the
// finalize step of every shader whose init job succeeded.
//
// When multithreading is disabled the same queues are drained inline on the
// calling goroutine, so every code path is shared between the two modes.
package scheduler
