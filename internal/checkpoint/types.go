package checkpoint

import (
	"context"
	"time"
)

// Scheduler defaults.
const (
	// DefaultDelay is how long a path must stay quiet before it is checkpointed.
	DefaultDelay = 2 * time.Second

	// DefaultPageThreshold is the WAL size, in frames, above which a commit
	// schedules a checkpoint.
	DefaultPageThreshold = 1000

	// DefaultEventBuffer is the capacity of the commit event channel.
	DefaultEventBuffer = 256

	// DefaultTimeout bounds a single checkpoint.
	DefaultTimeout = 30 * time.Second
)

// Options configures a Scheduler. Zero values select the defaults.
type Options struct {
	Delay         time.Duration
	PageThreshold int
	EventBuffer   int
	Timeout       time.Duration
}

func (o Options) withDefaults() Options {
	if o.Delay <= 0 {
		o.Delay = DefaultDelay
	}
	if o.PageThreshold <= 0 {
		o.PageThreshold = DefaultPageThreshold
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = DefaultEventBuffer
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Target is an open database that can be checkpointed.
type Target interface {
	Checkpoint(ctx context.Context) error
}

// Lookup finds the database currently open at path. It must not open a
// database that is not already open.
type Lookup interface {
	Lookup(path string) (Target, bool)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(path string) (Target, bool)

// Lookup implements Lookup.
func (f LookupFunc) Lookup(path string) (Target, bool) {
	return f(path)
}

// Result describes one checkpoint attempt.
type Result struct {
	Path     string
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Notifier receives the result of every checkpoint attempt. It is called on
// the worker goroutine and should return quickly.
type Notifier interface {
	CheckpointDone(r Result)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(r Result)

// CheckpointDone implements Notifier.
func (f NotifierFunc) CheckpointDone(r Result) {
	f(r)
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Observed  int64 // commits reported through Observe
	Queued    int64 // re-queues applied to the debounce queue
	Dropped   int64 // events dropped because the buffer was full
	Skipped   int64 // expired paths with no open database
	Completed int64 // successful checkpoints
	Failed    int64 // failed checkpoints
	Pending   int   // paths waiting in the debounce queue
}

// Logger defines the logging interface used by the Scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
