// Package checkpoint schedules write-ahead-log checkpoints in the
// background.
//
// Handles report every commit to a Scheduler through Observe. Commits that
// leave more than PageThreshold frames in the WAL re-queue the database path
// in a debounce queue; a single worker goroutine checkpoints each path once
// it has been quiet for Delay. The worker only checkpoints databases that are
// still open: it asks its Lookup for the path and never opens a new
// connection.
//
// # Design
//
//	handle commit ──Observe──▶ events chan ──intake──▶ TimedQueue ──worker──▶ Target.Checkpoint
//
//   - Observe never blocks. If the event buffer is full the event is dropped;
//     the next large commit on that path queues it again.
//   - Checkpoint failures are logged and reported to notifiers. They never
//     reach the committing goroutine.
//   - Worker goroutines start on the first Observe (or Sweep) and stop on
//     Close.
//
// # Usage
//
//	sched := checkpoint.New(lookup, checkpoint.Options{})
//	sched.SetLogger(log)
//	defer sched.Close()
//
//	chain := dbconfig.Default(traces, sched)
package checkpoint
