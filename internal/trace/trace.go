// Package trace defines the SQL and performance trace sinks attached to
// database handles, and the Registry that holds the process-wide sinks.
package trace

import (
	"sync"
	"time"
)

// SQLTrace receives the text of every statement executed on a handle.
type SQLTrace func(sql string)

// Footprint describes the work done by one autocommit statement or one
// explicit transaction on a handle.
type Footprint struct {
	// Path is the database file the handle is connected to.
	Path string

	// Statements counts executions per statement text.
	Statements map[string]int

	// Cost is the wall time from the first statement to completion.
	Cost time.Duration
}

// Total returns the number of statements in the footprint.
func (f Footprint) Total() int {
	n := 0
	for _, c := range f.Statements {
		n += c
	}
	return n
}

// PerformanceTrace receives a Footprint each time a handle completes a unit
// of work.
type PerformanceTrace func(Footprint)

// Logger is the logging interface used by the log-backed sinks.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Registry holds the currently registered sinks. Handles copy the sinks at
// configuration time, so later changes only affect handles configured
// afterwards.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	performance PerformanceTrace
	sql         SQLTrace
}

// NewRegistry creates a Registry with no sinks registered.
func NewRegistry() *Registry {
	return &Registry{}
}

// SetPerformanceTrace registers the performance sink. Nil clears it.
func (r *Registry) SetPerformanceTrace(fn PerformanceTrace) {
	r.mu.Lock()
	r.performance = fn
	r.mu.Unlock()
}

// SetSQLTrace registers the SQL sink. Nil clears it.
func (r *Registry) SetSQLTrace(fn SQLTrace) {
	r.mu.Lock()
	r.sql = fn
	r.mu.Unlock()
}

// PerformanceTrace returns the registered performance sink, or nil.
func (r *Registry) PerformanceTrace() PerformanceTrace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.performance
}

// SQLTrace returns the registered SQL sink, or nil.
func (r *Registry) SQLTrace() SQLTrace {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sql
}

// LogSQL returns a SQLTrace that writes each statement at debug level.
func LogSQL(logger Logger) SQLTrace {
	return func(sql string) {
		logger.Debug("sql executed", "sql", sql)
	}
}

// LogSlow returns a PerformanceTrace that warns about footprints whose cost
// reaches threshold.
func LogSlow(logger Logger, threshold time.Duration) PerformanceTrace {
	return func(f Footprint) {
		if f.Cost < threshold {
			return
		}
		logger.Warn("slow database work",
			"path", f.Path,
			"statements", f.Total(),
			"cost_ms", f.Cost.Milliseconds(),
		)
	}
}

// Fanout returns a PerformanceTrace that forwards to every non-nil sink in
// order. It returns nil when no sinks are given.
func Fanout(sinks ...PerformanceTrace) PerformanceTrace {
	var live []PerformanceTrace
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	if len(live) == 0 {
		return nil
	}
	return func(f Footprint) {
		for _, s := range live {
			s(f)
		}
	}
}
